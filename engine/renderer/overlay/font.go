package overlay

import (
	"fmt"
	"image"
	"unicode/utf8"

	"github.com/fzipp/bmfont"
	"github.com/spaghettifunk/framecore/engine/core"
	"golang.org/x/image/font/basicfont"
)

// Glyph is one character cell of a font atlas, in atlas pixels.
type Glyph struct {
	X, Y          int
	Width, Height int
	XOffset       int
	YOffset       int
	XAdvance      int
	Page          int
}

type kerningPair struct {
	first, second rune
}

// Font is a glyph table over an atlas texture. The overlay only lays out
// quads; uploading the atlas and filling Texture is up to the owner.
type Font struct {
	Face        string
	Size        int
	LineHeight  int
	Baseline    int
	AtlasWidth  int
	AtlasHeight int
	// Texture is the bindless index of the uploaded atlas.
	Texture uint32
	// Pages lists the atlas image files of BMFont fonts.
	Pages []string

	glyphs     map[rune]Glyph
	kernings   map[kerningPair]int
	tabAdvance int
	atlas      image.Image
}

// LoadBMFont reads an AngelCode BMFont descriptor and its page sheets.
func LoadBMFont(path string) (*Font, error) {
	bf, err := bmfont.Load(path)
	if err != nil {
		core.LogError("failed to load bitmap font %s: %s", path, err)
		return nil, fmt.Errorf("loading bitmap font %s: %w", path, err)
	}

	f := &Font{
		Face:        bf.Descriptor.Info.Face,
		Size:        bf.Descriptor.Info.Size,
		LineHeight:  bf.Descriptor.Common.LineHeight,
		Baseline:    bf.Descriptor.Common.Base,
		AtlasWidth:  bf.Descriptor.Common.ScaleW,
		AtlasHeight: bf.Descriptor.Common.ScaleH,
		Pages:       make([]string, len(bf.Descriptor.Pages)),
		glyphs:      make(map[rune]Glyph, len(bf.Descriptor.Chars)),
		kernings:    make(map[kerningPair]int, len(bf.Descriptor.Kerning)),
	}
	for _, p := range bf.Descriptor.Pages {
		if p.ID >= 0 && p.ID < len(f.Pages) {
			f.Pages[p.ID] = p.File
		}
	}
	for _, g := range bf.Descriptor.Chars {
		f.glyphs[g.ID] = Glyph{
			X:        g.X,
			Y:        g.Y,
			Width:    g.Width,
			Height:   g.Height,
			XOffset:  g.XOffset,
			YOffset:  g.YOffset,
			XAdvance: g.XAdvance,
			Page:     g.Page,
		}
	}
	for pair, k := range bf.Descriptor.Kerning {
		f.kernings[kerningPair{pair.First, pair.Second}] = k.Amount
	}
	f.setupTab()

	if f.AtlasWidth <= 0 || f.AtlasHeight <= 0 {
		return nil, fmt.Errorf("bitmap font %s has an empty atlas: %w", path, core.ErrInvalidConfig)
	}
	core.LogDebug("loaded bitmap font %s (%d glyphs, %d kernings)", f.Face, len(f.glyphs), len(f.kernings))
	return f, nil
}

// NewBasicFont builds a font over the fixed 7x13 face shipped with
// x/image. Its atlas is one glyph column, every glyph stacked vertically.
func NewBasicFont() *Font {
	face := basicfont.Face7x13
	bounds := face.Mask.Bounds()
	f := &Font{
		Face:        "basic7x13",
		Size:        face.Height,
		LineHeight:  face.Height,
		Baseline:    face.Ascent,
		AtlasWidth:  bounds.Dx(),
		AtlasHeight: bounds.Dy(),
		glyphs:      make(map[rune]Glyph),
		kernings:    make(map[kerningPair]int),
		atlas:       face.Mask,
	}
	for _, rg := range face.Ranges {
		for r := rg.Low; r < rg.High; r++ {
			cell := int(r-rg.Low) + rg.Offset
			f.glyphs[r] = Glyph{
				X:        bounds.Min.X,
				Y:        bounds.Min.Y + cell*face.Height,
				Width:    face.Width,
				Height:   face.Height,
				XOffset:  face.Left,
				XAdvance: face.Advance,
			}
		}
	}
	f.setupTab()
	return f
}

func (f *Font) setupTab() {
	if g, ok := f.glyphs[' ']; ok && g.XAdvance > 0 {
		f.tabAdvance = g.XAdvance * 4
		return
	}
	f.tabAdvance = f.Size * 4
}

// Atlas returns the atlas image when the font carries one in memory.
func (f *Font) Atlas() image.Image {
	return f.atlas
}

func (f *Font) GlyphCount() int {
	return len(f.glyphs)
}

// Glyph returns the glyph of r, falling back to the font's unknown glyph.
func (f *Font) Glyph(r rune) (Glyph, bool) {
	for _, c := range [...]rune{r, -1, utf8.RuneError, '?'} {
		if g, ok := f.glyphs[c]; ok {
			return g, c == r
		}
	}
	return Glyph{}, false
}

// Kerning is the extra advance between first and second.
func (f *Font) Kerning(first, second rune) int {
	return f.kernings[kerningPair{first, second}]
}

// Measure returns the size of the laid out text in pixels.
func (f *Font) Measure(text string) (width, height float32) {
	if text == "" {
		return 0, 0
	}
	x := float32(0)
	lines := 1
	f.layout(text, func(r rune, g Glyph, pen float32) {}, func(lineWidth float32) {
		width = max(width, lineWidth)
		lines++
	}, &x)
	width = max(width, x)
	return width, float32(lines * f.LineHeight)
}

// layout walks text, calling glyph for every drawable rune with the pen
// position before it, and newline with the finished line width.
func (f *Font) layout(text string, glyph func(r rune, g Glyph, pen float32), newline func(lineWidth float32), pen *float32) {
	prev := rune(-1)
	for _, r := range text {
		switch r {
		case '\n':
			newline(*pen)
			*pen = 0
			prev = -1
			continue
		case '\t':
			*pen += float32(f.tabAdvance)
			prev = -1
			continue
		}
		g, _ := f.Glyph(r)
		if prev >= 0 {
			*pen += float32(f.Kerning(prev, r))
		}
		glyph(r, g, *pen)
		*pen += float32(g.XAdvance)
		prev = r
	}
}
