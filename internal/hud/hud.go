// Package hud draws a text overlay of frame counters onto rendered images.
//
// Glyphs are rasterized from Go Regular through golang.org/x/image/font.
// Line widths for the backing panel come from HarfBuzz shaping via
// go-text/typesetting and are cached per string. Numbers are formatted with
// the locale's digit grouping through golang.org/x/text/message.
package hud

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/go-text/typesetting/di"
	gtfont "github.com/go-text/typesetting/font"
	gtlanguage "github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Option configures an Overlay.
type Option func(*options)

type options struct {
	size      float64
	locale    language.Tag
	text      color.Color
	panel     color.Color
	padding   int
	cacheSize int
}

func defaultOptions() options {
	return options{
		size:      13,
		locale:    language.English,
		text:      color.RGBA{0xe8, 0xe8, 0xe8, 0xff},
		panel:     color.RGBA{0, 0, 0, 0xa0},
		padding:   6,
		cacheSize: 256,
	}
}

// WithSize sets the font size in pixels.
func WithSize(px float64) Option {
	return func(o *options) {
		if px > 0 {
			o.size = px
		}
	}
}

// WithLocale sets the locale used for number formatting.
func WithLocale(tag language.Tag) Option {
	return func(o *options) {
		o.locale = tag
	}
}

// WithColors sets the text and panel colors.
func WithColors(text, panel color.Color) Option {
	return func(o *options) {
		o.text = text
		o.panel = panel
	}
}

// WithCacheSize sets how many measured strings are kept.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// Overlay draws text panels. It is safe for concurrent use; calls are
// serialized because neither font face is.
type Overlay struct {
	mu sync.Mutex

	opts    options
	face    font.Face
	metrics font.Metrics

	shapeFace *gtfont.Face
	shaper    shaping.HarfbuzzShaper
	widths    *lru[string, fixed.Int26_6]

	printer *message.Printer
}

// New parses the embedded Go Regular font twice, once for rasterizing and
// once for shaping.
func New(opts ...Option) (*Overlay, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("hud: parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    o.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("hud: create face: %w", err)
	}

	shapeFace, err := gtfont.ParseTTF(bytes.NewReader(goregular.TTF))
	if err != nil {
		return nil, fmt.Errorf("hud: parse font for shaping: %w", err)
	}

	return &Overlay{
		opts:      o,
		face:      face,
		metrics:   face.Metrics(),
		shapeFace: shapeFace,
		widths:    newLRU[string, fixed.Int26_6](o.cacheSize),
		printer:   message.NewPrinter(o.locale),
	}, nil
}

// Sprintf formats according to the overlay's locale, so %d groups digits.
func (ov *Overlay) Sprintf(format string, args ...any) string {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	return ov.printer.Sprintf(format, args...)
}

// LineHeight returns the distance between baselines in pixels.
func (ov *Overlay) LineHeight() int {
	return ov.metrics.Height.Ceil()
}

// Measure returns the shaped advance of s.
func (ov *Overlay) Measure(s string) fixed.Int26_6 {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	return ov.measureLocked(s)
}

func (ov *Overlay) measureLocked(s string) fixed.Int26_6 {
	if s == "" {
		return 0
	}
	if w, ok := ov.widths.get(s); ok {
		return w
	}

	runes := []rune(s)
	out := ov.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      ov.shapeFace,
		Size:      fixed.Int26_6(ov.opts.size * 64),
		Script:    scriptOf(runes),
		Language:  gtlanguage.NewLanguage(ov.opts.locale.String()),
	})
	w := out.Advance
	if w < 0 {
		w = -w
	}
	ov.widths.put(s, w)
	return w
}

// scriptOf returns the script of the first non-space rune.
func scriptOf(runes []rune) gtlanguage.Script {
	for _, r := range runes {
		if r != ' ' && r != '\t' {
			return gtlanguage.LookupScript(r)
		}
	}
	return gtlanguage.Latin
}

// Draw paints a translucent panel at the top-left point at and writes lines
// on it, one per row. It returns the panel rectangle.
func (ov *Overlay) Draw(dst draw.Image, at image.Point, lines ...string) image.Rectangle {
	if len(lines) == 0 {
		return image.Rectangle{Min: at, Max: at}
	}

	ov.mu.Lock()
	defer ov.mu.Unlock()

	var width fixed.Int26_6
	for _, l := range lines {
		width = max(width, ov.measureLocked(l))
	}
	pad := ov.opts.padding
	lineH := ov.metrics.Height.Ceil()
	rect := image.Rect(at.X, at.Y, at.X+width.Ceil()+2*pad, at.Y+len(lines)*lineH+2*pad)

	draw.Draw(dst, rect, image.NewUniform(ov.opts.panel), image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(ov.opts.text),
		Face: ov.face,
	}
	ascent := ov.metrics.Ascent.Ceil()
	for i, l := range lines {
		d.Dot = fixed.P(at.X+pad, at.Y+pad+ascent+i*lineH)
		d.DrawString(l)
	}
	return rect
}

// CacheStats reports width cache hits, misses and current size.
func (ov *Overlay) CacheStats() (hits, misses uint64, size int) {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	return ov.widths.hits, ov.widths.misses, ov.widths.len()
}
