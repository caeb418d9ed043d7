package hud

import (
	"image"
	"image/color"
	"sync"
	"testing"

	"golang.org/x/text/language"
)

func newOverlay(t *testing.T, opts ...Option) *Overlay {
	t.Helper()
	ov, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ov
}

// =============================================================================
// Formatting
// =============================================================================

func TestOverlay_SprintfGroupsDigits(t *testing.T) {
	tests := []struct {
		locale language.Tag
		want   string
	}{
		{language.English, "cells: 1,234,567"},
		{language.German, "cells: 1.234.567"},
	}
	for _, tt := range tests {
		ov := newOverlay(t, WithLocale(tt.locale))
		if got := ov.Sprintf("cells: %d", 1234567); got != tt.want {
			t.Errorf("Sprintf(%v) = %q, want %q", tt.locale, got, tt.want)
		}
	}
}

// =============================================================================
// Measuring
// =============================================================================

func TestOverlay_MeasureGrowsWithText(t *testing.T) {
	ov := newOverlay(t)

	if w := ov.Measure(""); w != 0 {
		t.Errorf("Measure(\"\") = %v, want 0", w)
	}
	short := ov.Measure("fps")
	long := ov.Measure("fps fps fps")
	if short <= 0 {
		t.Fatalf("Measure(\"fps\") = %v, want positive", short)
	}
	if long <= short {
		t.Errorf("Measure(long) = %v, want more than %v", long, short)
	}
}

func TestOverlay_MeasureScalesWithSize(t *testing.T) {
	small := newOverlay(t, WithSize(10)).Measure("frame 42")
	large := newOverlay(t, WithSize(20)).Measure("frame 42")
	if large <= small {
		t.Errorf("Measure at 20px = %v, want more than %v at 10px", large, small)
	}
}

func TestOverlay_MeasureCached(t *testing.T) {
	ov := newOverlay(t)
	a := ov.Measure("threads: 8")
	b := ov.Measure("threads: 8")
	if a != b {
		t.Errorf("repeated Measure = %v then %v", a, b)
	}
	hits, misses, size := ov.CacheStats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("CacheStats() = (%d, %d, %d), want (1, 1, 1)", hits, misses, size)
	}
}

func TestOverlay_ConcurrentMeasure(t *testing.T) {
	ov := newOverlay(t)
	want := ov.Measure("concurrent")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if got := ov.Measure("concurrent"); got != want {
					t.Errorf("Measure() = %v, want %v", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// =============================================================================
// Drawing
// =============================================================================

func TestOverlay_Draw(t *testing.T) {
	white := color.RGBA{0xff, 0xff, 0xff, 0xff}
	black := color.RGBA{0, 0, 0, 0xff}
	ov := newOverlay(t, WithColors(white, black))

	dst := image.NewRGBA(image.Rect(0, 0, 200, 100))
	rect := ov.Draw(dst, image.Pt(10, 10), "frame 1", "cells 20")

	if rect.Min != image.Pt(10, 10) {
		t.Errorf("rect.Min = %v, want (10, 10)", rect.Min)
	}
	if want := 2*ov.LineHeight() + 2*defaultOptions().padding; rect.Dy() != want {
		t.Errorf("rect.Dy() = %d, want %d", rect.Dy(), want)
	}
	if rect.Dx() <= ov.Measure("cells 20").Ceil() {
		t.Errorf("rect.Dx() = %d, want wider than the longest line", rect.Dx())
	}

	var lit int
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if dst.RGBAAt(x, y).R > 0x80 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("no glyph pixels drawn inside the panel")
	}
	if got := dst.RGBAAt(5, 5); got != (color.RGBA{}) {
		t.Errorf("pixel outside panel = %v, want untouched", got)
	}
}

func TestOverlay_DrawNoLines(t *testing.T) {
	ov := newOverlay(t)
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if r := ov.Draw(dst, image.Pt(3, 3)); !r.Empty() {
		t.Errorf("Draw() with no lines = %v, want empty", r)
	}
}

// =============================================================================
// LRU
// =============================================================================

func TestLRU_EvictsOldest(t *testing.T) {
	c := newLRU[string, int](2)
	c.put("a", 1)
	c.put("b", 2)
	c.get("a")
	c.put("c", 3)

	if _, ok := c.get("b"); ok {
		t.Error("least recently used entry b survived eviction")
	}
	if v, ok := c.get("a"); !ok || v != 1 {
		t.Errorf("get(a) = (%d, %v), want (1, true)", v, ok)
	}
	if v, ok := c.get("c"); !ok || v != 3 {
		t.Errorf("get(c) = (%d, %v), want (3, true)", v, ok)
	}
	if c.len() != 2 {
		t.Errorf("len() = %d, want 2", c.len())
	}
}

func TestLRU_Update(t *testing.T) {
	c := newLRU[int, string](1)
	c.put(1, "x")
	c.put(1, "y")
	if v, _ := c.get(1); v != "y" {
		t.Errorf("get(1) = %q, want \"y\"", v)
	}
	c.put(2, "z")
	if _, ok := c.get(1); ok {
		t.Error("capacity 1 cache kept two entries")
	}
}
