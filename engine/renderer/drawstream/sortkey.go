package drawstream

import "github.com/spaghettifunk/framecore/engine/renderer/gpu"

// SortKey packs the three costliest bindings so that ascending order groups
// draws by pipeline, then index buffer, then vertex buffer.
//
//	63        44 43          22 21           0
//	| pipeline | index buffer | vertex buffer |
type SortKey uint64

const (
	pipelineBits     = 20
	indexBufferBits  = 22
	vertexBufferBits = 22

	vertexBufferShift = 0
	indexBufferShift  = vertexBufferShift + vertexBufferBits
	pipelineShift     = indexBufferShift + indexBufferBits

	pipelineMask     = 1<<pipelineBits - 1
	indexBufferMask  = 1<<indexBufferBits - 1
	vertexBufferMask = 1<<vertexBufferBits - 1
)

// MakeSortKey truncates each handle to its field width. Handles that differ
// only above their field share key bits and may interleave after sorting;
// BoundState compares full handles, so that costs rebinds, never a wrong bind.
func MakeSortKey(pipeline gpu.PipelineHandle, ib, vb gpu.BufferHandle) SortKey {
	return SortKey(uint64(pipeline)&pipelineMask)<<pipelineShift |
		SortKey(uint64(ib)&indexBufferMask)<<indexBufferShift |
		SortKey(uint64(vb)&vertexBufferMask)<<vertexBufferShift
}

func (k SortKey) Pipeline() gpu.PipelineHandle {
	return gpu.PipelineHandle(uint64(k) >> pipelineShift & pipelineMask)
}

func (k SortKey) IndexBuffer() gpu.BufferHandle {
	return gpu.BufferHandle(uint64(k) >> indexBufferShift & indexBufferMask)
}

func (k SortKey) VertexBuffer() gpu.BufferHandle {
	return gpu.BufferHandle(uint64(k) >> vertexBufferShift & vertexBufferMask)
}

// DiffMask tells which bindings must be re-issued before a draw.
type DiffMask uint8

const (
	DiffPipeline DiffMask = 1 << iota
	DiffIndexBuffer
	DiffVertexBuffer

	DiffAll = DiffPipeline | DiffIndexBuffer | DiffVertexBuffer
)

// BoundState is the last bound pipeline/index buffer/vertex buffer triple.
type BoundState struct {
	Pipeline     gpu.PipelineHandle
	IndexBuffer  gpu.BufferHandle
	VertexBuffer gpu.BufferHandle
	valid        bool
}

// Diff compares c against the bound state. Nothing is bound before the
// first command, so it gets every bit.
func (s *BoundState) Diff(c *Command) DiffMask {
	if !s.valid {
		return DiffAll
	}
	var m DiffMask
	if c.Pipeline != s.Pipeline {
		m |= DiffPipeline
	}
	if c.IndexBuffer != s.IndexBuffer {
		m |= DiffIndexBuffer
	}
	if c.VertexBuffer != s.VertexBuffer {
		m |= DiffVertexBuffer
	}
	return m
}

func (s *BoundState) Apply(c *Command) {
	s.Pipeline = c.Pipeline
	s.IndexBuffer = c.IndexBuffer
	s.VertexBuffer = c.VertexBuffer
	s.valid = true
}

func (s *BoundState) Reset() {
	*s = BoundState{}
}
