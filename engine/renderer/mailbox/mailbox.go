package mailbox

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/framecore/engine/containers"
	"github.com/spaghettifunk/framecore/engine/core"
)

const (
	DefaultSlots = 3
	MinSlots     = 3

	freshBit  = uint32(1) << 31
	indexMask = freshBit - 1
)

var (
	ErrNotInFrame  = errors.New("mailbox producer call outside BeginFrame/EndFrame")
	ErrAlreadyHeld = errors.New("mailbox snapshot acquired twice without release")
	ErrNotHeld     = errors.New("mailbox release of a snapshot that is not held")
)

type Config struct {
	Name         string
	Slots        int
	MaxVertices  int
	MaxIndices   int
	MaxDrawCalls int
}

type Stats struct {
	Published uint64
	// Dropped counts snapshots superseded before the consumer saw them.
	Dropped  uint64
	Acquired uint64
	Stale    uint64
	Empty    uint64
}

// Mailbox hands snapshots from exactly one producer goroutine to exactly one
// consumer goroutine without blocking either side.
//
// Every slot is owned by one party at a time: the producer's write slot,
// the consumer's read slot, and the published middle slot which is exchanged
// atomically. Publishing swaps the write slot into the middle; acquiring
// swaps the read slot out of the middle, but only when the middle holds a
// snapshot the consumer has not seen. A snapshot replaced in the middle
// before being acquired is dropped. Slots beyond three rotate through a
// producer-side free queue.
type Mailbox[V any] struct {
	name  string
	slots []*Snapshot[V]

	// published middle slot index, plus freshBit when unread
	state atomic.Uint32

	// producer side
	write    int
	free     *containers.RingQueue[int]
	inFrame  bool
	sequence uint64

	// consumer side
	read    int
	hasData bool
	held    bool

	published atomic.Uint64
	dropped   atomic.Uint64
	acquired  atomic.Uint64
	stale     atomic.Uint64
	empty     atomic.Uint64
}

func New[V any](cfg Config) (*Mailbox[V], error) {
	if cfg.Slots == 0 {
		cfg.Slots = DefaultSlots
	}
	if cfg.Slots < MinSlots {
		return nil, fmt.Errorf("mailbox %s: %d slots, need at least %d: %w", cfg.Name, cfg.Slots, MinSlots, core.ErrInvalidConfig)
	}
	if cfg.MaxVertices <= 0 || cfg.MaxIndices <= 0 || cfg.MaxDrawCalls <= 0 {
		return nil, fmt.Errorf("mailbox %s: capacities must be positive: %w", cfg.Name, core.ErrInvalidConfig)
	}
	m := &Mailbox[V]{
		name:  cfg.Name,
		slots: make([]*Snapshot[V], cfg.Slots),
		write: 0,
		read:  2,
		free:  containers.NewRingQueue[int](cfg.Slots - MinSlots),
	}
	for i := range m.slots {
		m.slots[i] = newSnapshot[V](cfg)
	}
	m.state.Store(1)
	for i := MinSlots; i < cfg.Slots; i++ {
		if err := m.free.Enqueue(i); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mailbox[V]) Name() string {
	return m.name
}

// BeginFrame starts writing a new snapshot into the producer's slot.
func (m *Mailbox[V]) BeginFrame() {
	core.Assertf(!m.inFrame, ErrNotInFrame, "mailbox %s: BeginFrame twice", m.name)
	m.inFrame = true
	m.slots[m.write].reset()
}

// AddVertices appends vertices and returns the index of the first one.
func (m *Mailbox[V]) AddVertices(v ...V) uint32 {
	core.Assertf(m.inFrame, ErrNotInFrame, "mailbox %s: AddVertices", m.name)
	return m.slots[m.write].addVertices(v)
}

// AddIndices appends indices and returns the position of the first one.
func (m *Mailbox[V]) AddIndices(i ...uint32) uint32 {
	core.Assertf(m.inFrame, ErrNotInFrame, "mailbox %s: AddIndices", m.name)
	return m.slots[m.write].addIndices(i)
}

func (m *Mailbox[V]) AddDrawCall(dc DrawCall) {
	core.Assertf(m.inFrame, ErrNotInFrame, "mailbox %s: AddDrawCall", m.name)
	m.slots[m.write].addDrawCall(dc)
}

// VertexCount is the number of vertices written so far this frame.
func (m *Mailbox[V]) VertexCount() uint32 {
	return uint32(m.slots[m.write].vertices.Len())
}

func (m *Mailbox[V]) IndexCount() uint32 {
	return uint32(m.slots[m.write].indices.Len())
}

// EndFrame publishes the snapshot and moves the producer to another slot.
// It never waits for the consumer.
func (m *Mailbox[V]) EndFrame() {
	core.Assertf(m.inFrame, ErrNotInFrame, "mailbox %s: EndFrame without BeginFrame", m.name)
	m.inFrame = false
	m.sequence++
	m.slots[m.write].sequence = m.sequence

	old := m.state.Swap(uint32(m.write) | freshBit)
	m.published.Add(1)
	if old&freshBit != 0 {
		m.dropped.Add(1)
	}

	next := int(old & indexMask)
	if oldest, err := m.free.Dequeue(); err == nil {
		_ = m.free.Enqueue(next)
		next = oldest
	}
	m.write = next
}

// TryAcquireLatest returns the newest published snapshot. When nothing new
// was published it returns the previously acquired snapshot marked Stale,
// and false only if nothing was ever published. It never blocks.
func (m *Mailbox[V]) TryAcquireLatest() (View[V], bool) {
	core.Assertf(!m.held, ErrAlreadyHeld, "mailbox %s", m.name)

	if m.state.Load()&freshBit != 0 {
		old := m.state.Swap(uint32(m.read))
		m.read = int(old & indexMask)
		m.hasData = true
		m.held = true
		m.acquired.Add(1)
		return View[V]{snapshot: m.slots[m.read], slot: m.read}, true
	}

	if !m.hasData {
		m.empty.Add(1)
		return View[V]{}, false
	}
	m.held = true
	m.stale.Add(1)
	return View[V]{snapshot: m.slots[m.read], slot: m.read, Stale: true}, true
}

// Release ends the consumer's use of view.
func (m *Mailbox[V]) Release(view View[V]) {
	core.Assertf(m.held && view.snapshot != nil && view.slot == m.read, ErrNotHeld, "mailbox %s: slot %d", m.name, view.slot)
	m.held = false
}

func (m *Mailbox[V]) Stats() Stats {
	return Stats{
		Published: m.published.Load(),
		Dropped:   m.dropped.Load(),
		Acquired:  m.acquired.Load(),
		Stale:     m.stale.Load(),
		Empty:     m.empty.Load(),
	}
}
