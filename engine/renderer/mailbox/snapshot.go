package mailbox

import (
	"github.com/spaghettifunk/framecore/engine/containers"
	"github.com/spaghettifunk/framecore/engine/core"
)

// Rect is a clip rectangle in target pixels.
type Rect struct {
	X, Y, Width, Height float32
}

// DrawCall is one draw over the snapshot's index array.
type DrawCall struct {
	FirstIndex uint32
	IndexCount uint32
	BaseVertex int32
	// Bindless index of the texture sampled by the draw.
	Texture uint32
	Clip    Rect
	// Lines selects line topology instead of triangles.
	Lines bool
}

// Snapshot is one producer frame of geometry. It never grows; its arrays
// are allocated once with the mailbox.
type Snapshot[V any] struct {
	vertices  containers.FixedVec[V]
	indices   containers.FixedVec[uint32]
	drawCalls containers.FixedVec[DrawCall]
	sequence  uint64
}

func newSnapshot[V any](cfg Config) *Snapshot[V] {
	return &Snapshot[V]{
		vertices:  containers.NewFixedVec(make([]V, 0, cfg.MaxVertices)),
		indices:   containers.NewFixedVec(make([]uint32, 0, cfg.MaxIndices)),
		drawCalls: containers.NewFixedVec(make([]DrawCall, 0, cfg.MaxDrawCalls)),
	}
}

func (s *Snapshot[V]) reset() {
	s.vertices.Clear()
	s.indices.Clear()
	s.drawCalls.Clear()
}

func (s *Snapshot[V]) addVertices(v []V) uint32 {
	base := uint32(s.vertices.Len())
	core.Assertf(s.vertices.PushSlice(v), core.ErrCapacityExceeded,
		"snapshot vertices: %d + %d > %d", s.vertices.Len(), len(v), s.vertices.Cap())
	return base
}

func (s *Snapshot[V]) addIndices(i []uint32) uint32 {
	first := uint32(s.indices.Len())
	core.Assertf(s.indices.PushSlice(i), core.ErrCapacityExceeded,
		"snapshot indices: %d + %d > %d", s.indices.Len(), len(i), s.indices.Cap())
	return first
}

func (s *Snapshot[V]) addDrawCall(dc DrawCall) {
	core.Assertf(s.drawCalls.Push(dc), core.ErrCapacityExceeded,
		"snapshot draw calls: %d", s.drawCalls.Cap())
}

// View is the consumer's read-only handle on an acquired snapshot. It is
// valid until Release.
type View[V any] struct {
	snapshot *Snapshot[V]
	slot     int
	// Stale is set when nothing newer was published since the last acquire.
	Stale bool
}

func (v View[V]) Vertices() []V {
	return v.snapshot.vertices.Items()
}

func (v View[V]) Indices() []uint32 {
	return v.snapshot.indices.Items()
}

func (v View[V]) DrawCalls() []DrawCall {
	return v.snapshot.drawCalls.Items()
}

// Sequence is the 1-based publish number of the snapshot.
func (v View[V]) Sequence() uint64 {
	return v.snapshot.sequence
}

func (v View[V]) Empty() bool {
	return v.snapshot.drawCalls.Len() == 0
}
