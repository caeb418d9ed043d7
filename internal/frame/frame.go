// Package frame rasterizes world snapshots into RGBA images.
//
// The low-resolution canvas is divided into square tiles. Cells are binned
// into every tile their disc overlaps, then each tile is cleared and drawn by
// its own pool task. The finished canvas is upscaled into the output image
// one tile row at a time with golang.org/x/image/draw.
//
// Thread safety: a Renderer is driven from one goroutine. The image returned
// by Render is reused by the next call.
package frame

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/psincf/Cells-sub001/internal/world"
	"github.com/psincf/Cells-sub001/threadpool"
)

// DefaultTileSize is the tile edge in canvas pixels.
// A 64x64 RGBA tile is 16KB and fits in L1.
const DefaultTileSize = 64

// Option configures a Renderer.
type Option func(*options)

type options struct {
	background color.RGBA
	scaler     xdraw.Scaler
	tileSize   int
}

func defaultOptions() options {
	return options{
		background: color.RGBA{0x10, 0x12, 0x1a, 0xff},
		scaler:     xdraw.NearestNeighbor,
		tileSize:   DefaultTileSize,
	}
}

// WithBackground sets the clear color.
func WithBackground(c color.RGBA) Option {
	return func(o *options) {
		o.background = c
	}
}

// WithScaler sets the interpolator used for upscaling. Smoothing scalers
// such as xdraw.ApproxBiLinear sample only within each tile row, so faint
// seams may show between rows.
func WithScaler(s xdraw.Scaler) Option {
	return func(o *options) {
		if s != nil {
			o.scaler = s
		}
	}
}

// WithTileSize sets the tile edge in canvas pixels.
func WithTileSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.tileSize = n
		}
	}
}

// Renderer draws snapshots on a thread pool.
type Renderer struct {
	pool  *threadpool.Pool
	opts  options
	scale int

	canvas *image.RGBA
	out    *image.RGBA

	tilesX, tilesY int
	bins           [][]int32
}

// New creates a renderer with a width x height canvas, upscaled by scale
// into the output. A scale below 1 is treated as 1.
func New(pool *threadpool.Pool, width, height, scale int, opts ...Option) *Renderer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	scale = max(scale, 1)
	width = max(width, 1)
	height = max(height, 1)

	r := &Renderer{
		pool:   pool,
		opts:   o,
		scale:  scale,
		canvas: image.NewRGBA(image.Rect(0, 0, width, height)),
		tilesX: (width + o.tileSize - 1) / o.tileSize,
		tilesY: (height + o.tileSize - 1) / o.tileSize,
	}
	r.bins = make([][]int32, r.tilesX*r.tilesY)
	if scale == 1 {
		r.out = r.canvas
	} else {
		r.out = image.NewRGBA(image.Rect(0, 0, width*scale, height*scale))
	}
	return r
}

// Bounds returns the bounds of the output image.
func (r *Renderer) Bounds() image.Rectangle { return r.out.Bounds() }

// TileCount returns the number of canvas tiles.
func (r *Renderer) TileCount() int { return len(r.bins) }

// tileRect returns the canvas rectangle of tile (tx, ty), clipped for edge
// tiles.
func (r *Renderer) tileRect(tx, ty int) image.Rectangle {
	n := r.opts.tileSize
	return image.Rect(tx*n, ty*n, (tx+1)*n, (ty+1)*n).Intersect(r.canvas.Bounds())
}

// Render draws s and returns the output image. The caller must hold the
// snapshot's guard for the duration of the call.
func (r *Renderer) Render(s *world.Snapshot) *image.RGBA {
	b := r.canvas.Bounds()
	sx := float32(b.Dx()) / max(s.Width, 1)
	sy := float32(b.Dy()) / max(s.Height, 1)

	r.bin(s.Cells, sx, sy)

	r.pool.Scope(func(sc *threadpool.Scope) {
		for ty := range r.tilesY {
			for tx := range r.tilesX {
				sc.Spawn(func() {
					r.drawTile(tx, ty, s.Cells, sx, sy)
				})
			}
		}
	})

	if r.scale > 1 {
		r.pool.Scope(func(sc *threadpool.Scope) {
			for ty := range r.tilesY {
				sc.Spawn(func() {
					r.upscaleRow(ty)
				})
			}
		})
	}
	return r.out
}

// bin assigns every cell to the tiles its disc overlaps.
func (r *Renderer) bin(cells []world.Cell, sx, sy float32) {
	for i := range r.bins {
		r.bins[i] = r.bins[i][:0]
	}
	n := float32(r.opts.tileSize)
	for i := range cells {
		c := &cells[i]
		rad := c.Radius()
		x0 := clampTile(int((c.X*sx-rad)/n), r.tilesX)
		x1 := clampTile(int((c.X*sx+rad)/n), r.tilesX)
		y0 := clampTile(int((c.Y*sy-rad)/n), r.tilesY)
		y1 := clampTile(int((c.Y*sy+rad)/n), r.tilesY)
		for ty := y0; ty <= y1; ty++ {
			for tx := x0; tx <= x1; tx++ {
				t := ty*r.tilesX + tx
				r.bins[t] = append(r.bins[t], int32(i)) //nolint:gosec // cell count fits int32
			}
		}
	}
}

func clampTile(t, n int) int {
	return max(0, min(t, n-1))
}

// drawTile clears one tile and draws the cells binned into it, clipped to
// the tile rectangle.
func (r *Renderer) drawTile(tx, ty int, cells []world.Cell, sx, sy float32) {
	rect := r.tileRect(tx, ty)
	fillRect(r.canvas, rect, r.opts.background)

	for _, i := range r.bins[ty*r.tilesX+tx] {
		c := &cells[i]
		drawDisc(r.canvas, rect, c.X*sx, c.Y*sy, c.Radius(), c.Color)
	}
}

// upscaleRow scales one row of tiles into the output.
func (r *Renderer) upscaleRow(ty int) {
	src := r.tileRect(0, ty).Union(r.tileRect(r.tilesX-1, ty))
	dst := image.Rect(src.Min.X*r.scale, src.Min.Y*r.scale, src.Max.X*r.scale, src.Max.Y*r.scale)
	r.opts.scaler.Scale(r.out, dst, r.canvas, src, xdraw.Src, nil)
}

// fillRect fills rect with c by writing the first row and copying it down.
func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	if rect.Empty() {
		return
	}
	first := img.PixOffset(rect.Min.X, rect.Min.Y)
	row := img.Pix[first : first+rect.Dx()*4]
	for x := 0; x < len(row); x += 4 {
		row[x], row[x+1], row[x+2], row[x+3] = c.R, c.G, c.B, c.A
	}
	for y := rect.Min.Y + 1; y < rect.Max.Y; y++ {
		off := img.PixOffset(rect.Min.X, y)
		copy(img.Pix[off:off+len(row)], row)
	}
}

// drawDisc paints the disc centered at (cx, cy) with radius rad, limited to
// clip. Pixels are covered when their center lies inside the disc.
func drawDisc(img *image.RGBA, clip image.Rectangle, cx, cy, rad float32, c color.RGBA) {
	area := image.Rect(int(cx-rad), int(cy-rad), int(cx+rad)+1, int(cy+rad)+1).Intersect(clip)
	r2 := rad * rad
	for y := area.Min.Y; y < area.Max.Y; y++ {
		dy := float32(y) + 0.5 - cy
		off := img.PixOffset(area.Min.X, y)
		for x := area.Min.X; x < area.Max.X; x++ {
			dx := float32(x) + 0.5 - cx
			if dx*dx+dy*dy <= r2 {
				p := img.Pix[off : off+4 : off+4]
				p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
			}
			off += 4
		}
	}
}
