package drawstream

import (
	"errors"
	"io"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	core.SetLogOutput(io.Discard)
}

func TestCommandFitsInSixtyFourBytes(t *testing.T) {
	assert.LessOrEqual(t, unsafe.Sizeof(Command{}), uintptr(64))
}

func TestSortKeyLayout(t *testing.T) {
	k := MakeSortKey(3, 5, 7)
	assert.Equal(t, SortKey(3<<44|5<<22|7), k)
	assert.Equal(t, gpu.PipelineHandle(3), k.Pipeline())
	assert.Equal(t, gpu.BufferHandle(5), k.IndexBuffer())
	assert.Equal(t, gpu.BufferHandle(7), k.VertexBuffer())

	// pipeline dominates, then index buffer, then vertex buffer
	assert.Less(t, MakeSortKey(1, 1<<21, 1<<21), MakeSortKey(2, 0, 0))
	assert.Less(t, MakeSortKey(1, 1, 1<<21), MakeSortKey(1, 2, 0))

	full := MakeSortKey(pipelineMask, indexBufferMask, vertexBufferMask)
	assert.Equal(t, SortKey(^uint64(0)), full)
}

func randomCommands(r *rand.Rand, n int) []Command {
	cmds := make([]Command, n)
	for i := range cmds {
		cmds[i] = Command{
			Pipeline:     gpu.PipelineHandle(1 + r.Intn(3)),
			IndexBuffer:  gpu.BufferHandle(1 + r.Intn(3)),
			VertexBuffer: gpu.BufferHandle(1 + r.Intn(3)),
			IndexCount:   uint32(3 * (1 + r.Intn(10))),
			EntityIndex:  uint32(i),
			Distance:     r.Float32() * 100,
			VertexStride: 48,
		}
	}
	return cmds
}

func prepared(t *testing.T, cmds []Command) *Stream {
	t.Helper()
	a := frame.NewAllocator(64 << 10)
	s := &Stream{}
	s.Prepare(a, len(cmds))
	for _, c := range cmds {
		s.Add(c)
	}
	return s
}

func TestBuildSortsStablyByKey(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		s := prepared(t, randomCommands(r, 200))
		s.Build()
		require.True(t, s.Built())

		for i := 1; i < s.Len(); i++ {
			prev, cur := s.At(i-1), s.At(i)
			require.LessOrEqual(t, prev.SortKey(), cur.SortKey())
			if prev.SortKey() == cur.SortKey() {
				require.Less(t, prev.EntityIndex, cur.EntityIndex, "equal keys keep submission order")
			}
		}
	}
}

func TestDiffMaskMatchesChangedFields(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	s := prepared(t, randomCommands(r, 300))
	s.Build()

	assert.Equal(t, DiffAll, s.Mask(0))
	for i := 1; i < s.Len(); i++ {
		prev, cur := s.At(i-1), s.At(i)
		m := s.Mask(i)
		assert.Equal(t, prev.Pipeline != cur.Pipeline, m&DiffPipeline != 0)
		assert.Equal(t, prev.IndexBuffer != cur.IndexBuffer, m&DiffIndexBuffer != 0)
		assert.Equal(t, prev.VertexBuffer != cur.VertexBuffer, m&DiffVertexBuffer != 0)
		unchanged := prev.Pipeline == cur.Pipeline && prev.IndexBuffer == cur.IndexBuffer && prev.VertexBuffer == cur.VertexBuffer
		assert.Equal(t, unchanged, m == 0)
	}
}

func TestKeyCollisionStillRebinds(t *testing.T) {
	wrapped := gpu.BufferHandle(1 + 1<<vertexBufferBits)
	a := Command{Pipeline: 1, IndexBuffer: 2, VertexBuffer: 1, IndexCount: 3}
	b := Command{Pipeline: 1, IndexBuffer: 2, VertexBuffer: wrapped, IndexCount: 3}
	require.Equal(t, a.SortKey(), b.SortKey())

	s := prepared(t, []Command{a, b, a})
	s.Build()
	require.Equal(t, 3, s.Len())
	for i := 1; i < s.Len(); i++ {
		assert.Equal(t, DiffVertexBuffer, s.Mask(i))
	}
}

func TestBuildByDistanceIsBackToFront(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	s := prepared(t, randomCommands(r, 100))
	s.BuildByDistance()

	assert.Equal(t, OrderBackToFront, s.Order())
	for i := 1; i < s.Len(); i++ {
		assert.GreaterOrEqual(t, s.At(i-1).Distance, s.At(i).Distance)
	}
}

func TestDrawEmitsOnlyFlaggedBinds(t *testing.T) {
	s := prepared(t, []Command{
		{Pipeline: 2, IndexBuffer: 1, VertexBuffer: 1, IndexCount: 6, MaterialIndex: 4},
		{Pipeline: 1, IndexBuffer: 1, VertexBuffer: 1, IndexCount: 3, BaseVertex: 8, VertexStride: 32},
		{Pipeline: 1, IndexBuffer: 1, VertexBuffer: 1, IndexCount: 9, InstanceCount: 4, FirstInstance: 2},
		{Pipeline: 1, IndexBuffer: 1, VertexBuffer: 2, IndexCount: 3},
	})
	s.Build()

	enc := &headless.Encoder{}
	st := s.Draw(enc)
	assert.Equal(t, Stats{Draws: 4, PipelineBinds: 2, IndexBufferBinds: 1, VertexBufferBinds: 3}, st)

	ops := []headless.Op{}
	for _, c := range enc.Commands() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []headless.Op{
		headless.OpBindPipeline, headless.OpBindIndexBuffer, headless.OpBindVertexBuffer, headless.OpSetDrawIndices, headless.OpDrawIndexed,
		headless.OpSetDrawIndices, headless.OpDrawIndexed,
		headless.OpBindVertexBuffer, headless.OpSetDrawIndices, headless.OpDrawIndexed,
		headless.OpBindPipeline, headless.OpBindVertexBuffer, headless.OpSetDrawIndices, headless.OpDrawIndexed,
	}, ops)

	first := enc.Commands()[4]
	assert.Equal(t, uint32(3), first.Count)
	assert.Equal(t, int32(8), first.VertexOffset)
	assert.Equal(t, uint32(1), first.Instances)
	second := enc.Commands()[6]
	assert.Equal(t, uint32(4), second.Instances)
	assert.Equal(t, uint32(2), second.FirstInstance)
}

func TestStreamCapacityIsFatal(t *testing.T) {
	a := frame.NewAllocator(int(unsafe.Sizeof(Command{})) * 4)
	s := &Stream{}
	err := catch(func() { s.Prepare(a, 100) })
	assert.True(t, errors.Is(err, core.ErrAllocatorExhausted))

	a = frame.NewAllocator(4 << 10)
	s.Prepare(a, 1)
	s.Add(Command{})
	err = catch(func() { s.Add(Command{}) })
	assert.True(t, errors.Is(err, core.ErrCapacityExceeded))
}

func TestDrawBeforeBuildIsFatal(t *testing.T) {
	s := prepared(t, []Command{{Pipeline: 1}})
	err := catch(func() { s.Draw(&headless.Encoder{}) })
	assert.True(t, errors.Is(err, ErrNotBuilt))

	empty := prepared(t, nil)
	assert.NotPanics(t, func() { empty.Draw(&headless.Encoder{}) })
}

func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}
