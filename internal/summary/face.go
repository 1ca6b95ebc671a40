package summary

import (
	"image"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// fallbackFace draws each rune with primary when covers has a glyph for it
// and with fallback otherwise. Glyphs are placed one by one; scripts that
// need shaping (conjuncts, reordered vowel signs) come out unshaped.
type fallbackFace struct {
	covers   *truetype.Font
	primary  font.Face
	fallback font.Face
}

func (f *fallbackFace) pick(r rune) font.Face {
	if f.covers.Index(r) != 0 {
		return f.primary
	}
	return f.fallback
}

func (f *fallbackFace) Close() error {
	f.primary.Close()
	return f.fallback.Close()
}

func (f *fallbackFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	return f.pick(r).Glyph(dot, r)
}

func (f *fallbackFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	return f.pick(r).GlyphBounds(r)
}

func (f *fallbackFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) {
	return f.pick(r).GlyphAdvance(r)
}

func (f *fallbackFace) Kern(r0, r1 rune) fixed.Int26_6 {
	a, b := f.pick(r0), f.pick(r1)
	if a != b {
		return 0
	}
	return a.Kern(r0, r1)
}

func (f *fallbackFace) Metrics() font.Metrics {
	m, fb := f.primary.Metrics(), f.fallback.Metrics()
	m.Height = max(m.Height, fb.Height)
	m.Ascent = max(m.Ascent, fb.Ascent)
	m.Descent = max(m.Descent, fb.Descent)
	return m
}
