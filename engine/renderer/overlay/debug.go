package overlay

import (
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
)

// DebugDraw produces world-space line lists. All lines of a frame end up in
// a single line-topology draw call.
type DebugDraw struct {
	mb    *mailbox.Mailbox[math.Vertex3D]
	white uint32

	first   uint32
	base    uint32
	count   uint32
	started bool
}

func NewDebugDraw(mb *mailbox.Mailbox[math.Vertex3D], whiteTexture uint32) *DebugDraw {
	return &DebugDraw{mb: mb, white: whiteTexture}
}

func (d *DebugDraw) Begin() {
	d.mb.BeginFrame()
	d.count = 0
	d.started = false
}

func (d *DebugDraw) End() {
	if d.count > 0 {
		d.mb.AddDrawCall(mailbox.DrawCall{
			FirstIndex: d.first,
			IndexCount: d.count,
			BaseVertex: int32(d.base),
			Texture:    d.white,
			Lines:      true,
		})
	}
	d.mb.EndFrame()
}

func (d *DebugDraw) Line(a, b math.Vec3, colour math.Vec4) {
	v := [2]math.Vertex3D{
		{Position: a, Colour: colour},
		{Position: b, Colour: colour},
	}
	base := d.mb.AddVertices(v[:]...)
	if !d.started {
		d.base = base
		d.first = d.mb.IndexCount()
		d.started = true
	}
	rel := base - d.base
	d.mb.AddIndices(rel, rel+1)
	d.count += 2
}

// corners are ordered so that i, i^1, i^2 and i^4 are the edge neighbours.
func boxEdges(corners *[8]math.Vec3, colour math.Vec4, line func(a, b math.Vec3, colour math.Vec4)) {
	for i := 0; i < 8; i++ {
		for _, bit := range [...]int{1, 2, 4} {
			if i&bit == 0 {
				line(corners[i], corners[i|bit], colour)
			}
		}
	}
}

// Box draws the twelve edges of an axis-aligned box.
func (d *DebugDraw) Box(e math.Extents3D, colour math.Vec4) {
	var corners [8]math.Vec3
	for i := range corners {
		c := e.Min
		if i&1 != 0 {
			c.X = e.Max.X
		}
		if i&2 != 0 {
			c.Y = e.Max.Y
		}
		if i&4 != 0 {
			c.Z = e.Max.Z
		}
		corners[i] = c
	}
	boxEdges(&corners, colour, d.Line)
}

// Frustum draws the volume seen through viewProjection.
func (d *DebugDraw) Frustum(viewProjection math.Mat4, colour math.Vec4) {
	inv := viewProjection.Inverse()
	var corners [8]math.Vec3
	for i := range corners {
		ndc := math.NewVec4(-1, -1, -1, 1)
		if i&1 != 0 {
			ndc.X = 1
		}
		if i&2 != 0 {
			ndc.Y = 1
		}
		if i&4 != 0 {
			ndc.Z = 1
		}
		p := ndc.Transform(inv)
		if p.W != 0 {
			p = math.NewVec4(p.X/p.W, p.Y/p.W, p.Z/p.W, 1)
		}
		corners[i] = p.ToVec3()
	}
	boxEdges(&corners, colour, d.Line)
}

// Axes draws the basis of m, red for x, green for y and blue for z.
func (d *DebugDraw) Axes(m math.Mat4, length float32) {
	origin := m.Translation()
	d.Line(origin, origin.Add(m.Right().MulScalar(length)), math.NewVec4(1, 0, 0, 1))
	d.Line(origin, origin.Add(m.Up().MulScalar(length)), math.NewVec4(0, 1, 0, 1))
	d.Line(origin, origin.Add(m.Forward().MulScalar(-length)), math.NewVec4(0, 0, 1, 1))
}
