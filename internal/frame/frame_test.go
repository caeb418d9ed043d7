package frame

import (
	"image"
	"image/color"
	"testing"

	xdraw "golang.org/x/image/draw"

	"github.com/psincf/Cells-sub001/internal/world"
	"github.com/psincf/Cells-sub001/threadpool"
)

var (
	bg  = color.RGBA{1, 2, 3, 0xff}
	red = color.RGBA{0xff, 0, 0, 0xff}
)

func snapshot(w, h float32, cells ...world.Cell) *world.Snapshot {
	return &world.Snapshot{Width: w, Height: h, Cells: cells}
}

func TestRenderer_TileCount(t *testing.T) {
	pool := threadpool.New(2)
	defer pool.Close()

	tests := []struct {
		w, h, tile, want int
	}{
		{64, 64, 64, 1},
		{65, 64, 64, 2},
		{200, 100, 64, 8},
		{10, 10, 4, 9},
	}
	for _, tt := range tests {
		r := New(pool, tt.w, tt.h, 1, WithTileSize(tt.tile))
		if got := r.TileCount(); got != tt.want {
			t.Errorf("TileCount(%dx%d/%d) = %d, want %d", tt.w, tt.h, tt.tile, got, tt.want)
		}
	}
}

func TestRenderer_ClearOnly(t *testing.T) {
	pool := threadpool.New(3)
	defer pool.Close()

	r := New(pool, 100, 70, 1, WithBackground(bg), WithTileSize(16))
	img := r.Render(snapshot(100, 70))

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if got := img.RGBAAt(x, y); got != bg {
				t.Fatalf("pixel (%d, %d) = %v, want background %v", x, y, got, bg)
			}
		}
	}
}

func TestRenderer_DiscAcrossTiles(t *testing.T) {
	pool := threadpool.New(4)
	defer pool.Close()

	// The disc sits on the corner shared by four 16px tiles.
	r := New(pool, 64, 64, 1, WithBackground(bg), WithTileSize(16))
	cell := world.Cell{X: 16, Y: 16, Energy: 1, Color: red}
	img := r.Render(snapshot(64, 64, cell))

	for _, p := range []image.Point{{15, 15}, {16, 15}, {15, 16}, {16, 16}, {13, 16}, {18, 16}} {
		if got := img.RGBAAt(p.X, p.Y); got != red {
			t.Errorf("pixel %v = %v, want cell color", p, got)
		}
	}
	if got := img.RGBAAt(40, 40); got != bg {
		t.Errorf("pixel (40, 40) = %v, want background", got)
	}
}

func TestRenderer_WorldToCanvasScale(t *testing.T) {
	pool := threadpool.New(2)
	defer pool.Close()

	// World is twice the canvas size in each direction.
	r := New(pool, 50, 50, 1, WithBackground(bg))
	img := r.Render(snapshot(100, 100, world.Cell{X: 80, Y: 20, Energy: 0.5, Color: red}))

	if got := img.RGBAAt(40, 10); got != red {
		t.Errorf("pixel (40, 10) = %v, want cell color", got)
	}
}

func TestRenderer_Upscale(t *testing.T) {
	for _, sc := range []xdraw.Scaler{xdraw.NearestNeighbor, xdraw.ApproxBiLinear} {
		pool := threadpool.New(2)

		r := New(pool, 32, 24, 3, WithBackground(bg), WithScaler(sc), WithTileSize(8))
		img := r.Render(snapshot(32, 24, world.Cell{X: 10, Y: 10, Energy: 1, Color: red}))

		if got, want := img.Bounds(), image.Rect(0, 0, 96, 72); got != want {
			t.Errorf("Bounds() = %v, want %v", got, want)
		}
		// Smoothing scalers may round by one step.
		if got := img.RGBAAt(30, 30); got.R < 0xf0 || got.G > 0x0f {
			t.Errorf("%T: pixel (30, 30) = %v, want close to cell color", sc, got)
		}
		if got := img.RGBAAt(90, 70); got.R > 0x0f {
			t.Errorf("%T: pixel (90, 70) = %v, want close to background", sc, got)
		}
		pool.Close()
	}
}

func TestRenderer_NoWorkers(t *testing.T) {
	pool := threadpool.New(1)
	pool.SetThreads(0)
	defer pool.Close()

	r := New(pool, 20, 20, 2, WithBackground(bg), WithTileSize(8))
	img := r.Render(snapshot(20, 20, world.Cell{X: 5, Y: 5, Energy: 1, Color: red}))

	if got := img.RGBAAt(10, 10); got != red {
		t.Errorf("pixel (10, 10) = %v, want cell color", got)
	}
}

func TestDrawDisc_Clipped(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	clip := image.Rect(0, 0, 5, 10)

	drawDisc(img, clip, 5, 5, 3, red)

	if got := img.RGBAAt(4, 5); got != red {
		t.Errorf("pixel inside clip = %v, want cell color", got)
	}
	if got := img.RGBAAt(5, 5); got == red {
		t.Error("pixel outside clip was painted")
	}
}
