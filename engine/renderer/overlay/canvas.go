package overlay

import (
	"errors"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
)

var ErrNoFont = errors.New("canvas has no font")

// Canvas is an immediate-mode 2D producer. Everything drawn between Begin
// and End becomes one snapshot in the mailbox. Consecutive primitives that
// share texture, clip and topology are merged into a single draw call.
// A Canvas belongs to the producer goroutine.
type Canvas struct {
	mb    *mailbox.Mailbox[math.Vertex2D]
	font  *Font
	white uint32
	size  gpu.Size
	clip  mailbox.Rect

	batch   mailbox.DrawCall
	batched bool
}

// NewCanvas draws untextured primitives with the white texture's bindless
// index.
func NewCanvas(mb *mailbox.Mailbox[math.Vertex2D], whiteTexture uint32) *Canvas {
	return &Canvas{mb: mb, white: whiteTexture}
}

func (c *Canvas) SetFont(f *Font) {
	c.font = f
}

func (c *Canvas) Font() *Font {
	return c.font
}

// Begin starts a snapshot for a target of the given size. The clip covers
// the whole target.
func (c *Canvas) Begin(size gpu.Size) {
	c.size = size
	c.clip = c.full()
	c.batched = false
	c.mb.BeginFrame()
}

// End flushes the pending batch and publishes the snapshot.
func (c *Canvas) End() {
	c.flush()
	c.mb.EndFrame()
}

func (c *Canvas) full() mailbox.Rect {
	return mailbox.Rect{Width: float32(c.size.Width), Height: float32(c.size.Height)}
}

// SetClip restricts following primitives to r.
func (c *Canvas) SetClip(r mailbox.Rect) {
	c.clip = r
}

func (c *Canvas) ResetClip() {
	c.clip = c.full()
}

// Rect fills r with colour.
func (c *Canvas) Rect(r mailbox.Rect, colour math.Vec4) {
	c.quad(r.X, r.Y, r.X+r.Width, r.Y+r.Height, 0, 0, 1, 1, colour, c.white)
}

// RectOutline strokes the border of r.
func (c *Canvas) RectOutline(r mailbox.Rect, colour math.Vec4) {
	tl := math.NewVec2(r.X, r.Y)
	tr := math.NewVec2(r.X+r.Width, r.Y)
	br := math.NewVec2(r.X+r.Width, r.Y+r.Height)
	bl := math.NewVec2(r.X, r.Y+r.Height)
	c.Line(tl, tr, colour)
	c.Line(tr, br, colour)
	c.Line(br, bl, colour)
	c.Line(bl, tl, colour)
}

// Line draws a one pixel line from a to b.
func (c *Canvas) Line(a, b math.Vec2, colour math.Vec4) {
	v := [2]math.Vertex2D{
		{Position: a, Colour: colour},
		{Position: b, Colour: colour},
	}
	idx := [2]uint32{0, 1}
	c.emit(c.white, true, v[:], idx[:])
}

// Text draws text with its top-left corner at pos and returns the pen
// advance of the last line.
func (c *Canvas) Text(pos math.Vec2, text string, colour math.Vec4) float32 {
	core.Assertf(c.font != nil, ErrNoFont, "text %q", text)
	f := c.font
	aw, ah := float32(f.AtlasWidth), float32(f.AtlasHeight)
	y := pos.Y
	pen := float32(0)
	f.layout(text, func(r rune, g Glyph, x float32) {
		if g.Width == 0 || g.Height == 0 {
			return
		}
		minX := pos.X + x + float32(g.XOffset)
		minY := y + float32(g.YOffset)
		c.quad(minX, minY, minX+float32(g.Width), minY+float32(g.Height),
			float32(g.X)/aw, float32(g.Y)/ah,
			float32(g.X+g.Width)/aw, float32(g.Y+g.Height)/ah,
			colour, f.Texture)
	}, func(float32) {
		y += float32(f.LineHeight)
	}, &pen)
	return pen
}

func (c *Canvas) quad(x0, y0, x1, y1, u0, v0, u1, v1 float32, colour math.Vec4, texture uint32) {
	// 0    3
	//
	// 2    1
	v := [4]math.Vertex2D{
		{Position: math.NewVec2(x0, y0), Texcoord: math.NewVec2(u0, v0), Colour: colour},
		{Position: math.NewVec2(x1, y1), Texcoord: math.NewVec2(u1, v1), Colour: colour},
		{Position: math.NewVec2(x0, y1), Texcoord: math.NewVec2(u0, v1), Colour: colour},
		{Position: math.NewVec2(x1, y0), Texcoord: math.NewVec2(u1, v0), Colour: colour},
	}
	idx := [6]uint32{2, 1, 0, 3, 0, 1}
	c.emit(texture, false, v[:], idx[:])
}

// emit appends one primitive, extending the open draw call when texture,
// clip and topology match.
func (c *Canvas) emit(texture uint32, lines bool, v []math.Vertex2D, idx []uint32) {
	if c.batched && (c.batch.Texture != texture || c.batch.Lines != lines || c.batch.Clip != c.clip) {
		c.flush()
	}
	base := c.mb.AddVertices(v...)
	if !c.batched {
		c.batch = mailbox.DrawCall{
			FirstIndex: c.mb.IndexCount(),
			BaseVertex: int32(base),
			Texture:    texture,
			Clip:       c.clip,
			Lines:      lines,
		}
		c.batched = true
	}
	rel := base - uint32(c.batch.BaseVertex)
	var shifted [6]uint32
	for i, ix := range idx {
		shifted[i] = ix + rel
	}
	c.mb.AddIndices(shifted[:len(idx)]...)
	c.batch.IndexCount += uint32(len(idx))
}

func (c *Canvas) flush() {
	if c.batched && c.batch.IndexCount > 0 {
		c.mb.AddDrawCall(c.batch)
	}
	c.batched = false
}
