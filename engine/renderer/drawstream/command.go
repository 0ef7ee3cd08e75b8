package drawstream

import (
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

// Command is one indexed draw. It holds no pointers so streams can live in
// the transient frame allocator.
type Command struct {
	StartIndex    uint32
	IndexCount    uint32
	BaseVertex    uint32
	InstanceCount uint32
	FirstInstance uint16

	// Bindless indices pushed before the draw.
	MaterialIndex uint32
	TextureIndex  uint32
	EntityIndex   uint32

	VertexBuffer gpu.BufferHandle
	IndexBuffer  gpu.BufferHandle
	Pipeline     gpu.PipelineHandle
	VertexStride uint16

	// Distance to the viewer, only read by BuildByDistance.
	Distance float32
}

// Commands must stay within 64 bytes.
var _ [64 - unsafe.Sizeof(Command{})]byte

func (c *Command) SortKey() SortKey {
	return MakeSortKey(c.Pipeline, c.IndexBuffer, c.VertexBuffer)
}
