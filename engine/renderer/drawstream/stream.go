package drawstream

import (
	"cmp"
	"errors"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"golang.org/x/exp/slices"
)

var ErrNotBuilt = errors.New("draw stream replayed before build")

type Order int

const (
	// OrderState sorts by SortKey to minimise rebinds.
	OrderState Order = iota
	// OrderBackToFront sorts by descending distance for blending.
	OrderBackToFront
)

func (o Order) String() string {
	if o == OrderBackToFront {
		return "back-to-front"
	}
	return "state"
}

type Stats struct {
	Draws             uint32
	PipelineBinds     uint32
	IndexBufferBinds  uint32
	VertexBufferBinds uint32
}

// Stream collects the draw commands of one pass for one frame. Its memory
// comes from the frame allocator and is invalid after that allocator resets.
type Stream struct {
	commands []Command
	masks    []DiffMask
	count    int
	built    bool
	order    Order
}

// Prepare carves room for maxCommands from a. An allocator that cannot hold
// them is a sizing bug and fatal.
func (s *Stream) Prepare(a *frame.Allocator, maxCommands int) {
	core.Assertf(frame.Fits[Command](a, maxCommands), core.ErrAllocatorExhausted,
		"draw stream of %d commands, %d bytes remaining", maxCommands, a.Remaining())
	s.commands = frame.Alloc[Command](a, maxCommands)
	s.masks = frame.Alloc[DiffMask](a, maxCommands)
	s.count = 0
	s.built = false
}

// Add appends in caller order.
func (s *Stream) Add(cmd Command) {
	core.Assertf(s.count < len(s.commands), core.ErrCapacityExceeded,
		"draw stream full at %d commands", len(s.commands))
	s.commands[s.count] = cmd
	s.count++
	s.built = false
}

// Build orders the commands by SortKey, keeping submission order between
// equal keys, and computes each command's diff mask.
func (s *Stream) Build() {
	slices.SortStableFunc(s.commands[:s.count], func(a, b Command) int {
		return cmp.Compare(a.SortKey(), b.SortKey())
	})
	s.order = OrderState
	s.computeMasks()
}

// BuildByDistance orders the commands back to front, ignoring SortKey.
func (s *Stream) BuildByDistance() {
	slices.SortStableFunc(s.commands[:s.count], func(a, b Command) int {
		return cmp.Compare(b.Distance, a.Distance)
	})
	s.order = OrderBackToFront
	s.computeMasks()
}

func (s *Stream) computeMasks() {
	var bound BoundState
	for i := 0; i < s.count; i++ {
		s.masks[i] = bound.Diff(&s.commands[i])
		bound.Apply(&s.commands[i])
	}
	s.built = true
}

// Draw replays a built stream: binds flagged by each mask, the draw's
// bindless indices, then the indexed draw.
func (s *Stream) Draw(enc gpu.Encoder) Stats {
	core.Assertf(s.built || s.count == 0, ErrNotBuilt, "%d commands", s.count)
	var st Stats
	for i := 0; i < s.count; i++ {
		c := &s.commands[i]
		m := s.masks[i]
		if m&DiffPipeline != 0 {
			enc.BindPipeline(c.Pipeline)
			st.PipelineBinds++
		}
		if m&DiffIndexBuffer != 0 {
			enc.BindIndexBuffer(c.IndexBuffer, 0)
			st.IndexBufferBinds++
		}
		if m&DiffVertexBuffer != 0 {
			enc.BindVertexBuffer(c.VertexBuffer, 0, uint32(c.VertexStride))
			st.VertexBufferBinds++
		}
		enc.SetDrawIndices(c.MaterialIndex, c.TextureIndex, c.EntityIndex)
		instances := c.InstanceCount
		if instances == 0 {
			instances = 1
		}
		enc.DrawIndexed(c.IndexCount, instances, c.StartIndex, int32(c.BaseVertex), uint32(c.FirstInstance))
		st.Draws++
	}
	return st
}

func (s *Stream) Len() int {
	return s.count
}

func (s *Stream) Cap() int {
	return len(s.commands)
}

func (s *Stream) Built() bool {
	return s.built
}

func (s *Stream) Order() Order {
	return s.order
}

func (s *Stream) At(i int) Command {
	return s.commands[i]
}

func (s *Stream) Mask(i int) DiffMask {
	return s.masks[i]
}

func (s *Stream) Commands() []Command {
	return s.commands[:s.count]
}

// Reset forgets the carved memory. Prepare must be called again.
func (s *Stream) Reset() {
	*s = Stream{}
}
