package frame

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

const (
	DefaultFramesInFlight   = 3
	MinFramesInFlight       = 2
	MaxFramesInFlight       = 3
	DefaultAllocatorBytes   = 4 << 20
	DefaultBindlessCapacity = 1024
)

type Config struct {
	FramesInFlight   int
	AllocatorBytes   int
	BindlessCapacity int
	// Size is the initial size of size-dependent targets.
	Size gpu.Size
}

// Counters are zeroed for a slot on every Reset.
type Counters struct {
	Vertices  uint32
	Indices   uint32
	DrawCalls uint32
	Copies    uint32
}

// BufferSet holds one Buffer per frame slot.
type BufferSet struct {
	desc  gpu.BufferDesc
	slots []*Buffer
}

func (s *BufferSet) Slot(frameIndex uint64) *Buffer {
	return s.slots[frameIndex%uint64(len(s.slots))]
}

func (s *BufferSet) Desc() gpu.BufferDesc {
	return s.desc
}

// ResourceSet owns every per-frame-in-flight resource: K transient
// allocators, K copies of each buffer and K copies of each render target.
// A slot is only touched again once the frame that last used it retired.
type ResourceSet struct {
	device     gpu.Device
	cfg        Config
	size       gpu.Size
	allocators []*Allocator
	counters   []Counters
	buffers    []*BufferSet
	targets    []*TargetSet
	bindless   *core.HandleTable
}

func NewResourceSet(device gpu.Device, cfg Config) (*ResourceSet, error) {
	if cfg.FramesInFlight == 0 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	if cfg.FramesInFlight < MinFramesInFlight || cfg.FramesInFlight > MaxFramesInFlight {
		return nil, fmt.Errorf("frames in flight %d not in [%d,%d]: %w", cfg.FramesInFlight, MinFramesInFlight, MaxFramesInFlight, core.ErrInvalidConfig)
	}
	if cfg.AllocatorBytes == 0 {
		cfg.AllocatorBytes = DefaultAllocatorBytes
	}
	if cfg.BindlessCapacity == 0 {
		cfg.BindlessCapacity = DefaultBindlessCapacity
	}
	rs := &ResourceSet{
		device:     device,
		cfg:        cfg,
		size:       cfg.Size,
		allocators: make([]*Allocator, cfg.FramesInFlight),
		counters:   make([]Counters, cfg.FramesInFlight),
		bindless:   core.NewHandleTable(cfg.BindlessCapacity),
	}
	for i := range rs.allocators {
		rs.allocators[i] = NewAllocator(cfg.AllocatorBytes)
	}
	return rs, nil
}

func (rs *ResourceSet) Device() gpu.Device {
	return rs.device
}

func (rs *ResourceSet) FramesInFlight() int {
	return rs.cfg.FramesInFlight
}

func (rs *ResourceSet) Slot(frameIndex uint64) int {
	return int(frameIndex % uint64(rs.cfg.FramesInFlight))
}

func (rs *ResourceSet) Size() gpu.Size {
	return rs.size
}

func (rs *ResourceSet) Allocator(frameIndex uint64) *Allocator {
	return rs.allocators[rs.Slot(frameIndex)]
}

func (rs *ResourceSet) Counters(frameIndex uint64) *Counters {
	return &rs.counters[rs.Slot(frameIndex)]
}

// Reset prepares the slot of frameIndex for a new frame: the allocator is
// rewound, buffer cursors and counters are zeroed.
func (rs *ResourceSet) Reset(frameIndex uint64) {
	slot := rs.Slot(frameIndex)
	rs.allocators[slot].Reset()
	rs.counters[slot] = Counters{}
	for _, bs := range rs.buffers {
		bs.slots[slot].Reset()
	}
}

// CreateBuffer allocates K staging/device pairs with fixed capacity.
func (rs *ResourceSet) CreateBuffer(desc gpu.BufferDesc) (*BufferSet, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s has zero size: %w", desc.Name, core.ErrInvalidConfig)
	}
	bs := &BufferSet{desc: desc, slots: make([]*Buffer, 0, rs.cfg.FramesInFlight)}
	for i := 0; i < rs.cfg.FramesInFlight; i++ {
		b, err := rs.createBuffer(desc, i)
		if err != nil {
			rs.destroyBufferSet(bs)
			return nil, err
		}
		bs.slots = append(bs.slots, b)
	}
	rs.buffers = append(rs.buffers, bs)
	return bs, nil
}

func (rs *ResourceSet) createBuffer(desc gpu.BufferDesc, slot int) (*Buffer, error) {
	name := fmt.Sprintf("%s[%d]", desc.Name, slot)
	stagingDesc := desc
	stagingDesc.Name = name + ".staging"
	staging, mapped, err := rs.device.CreateStagingBuffer(stagingDesc)
	if err != nil {
		return nil, fmt.Errorf("creating staging buffer %s: %w", name, err)
	}
	deviceDesc := desc
	deviceDesc.Name = name
	dev, err := rs.device.CreateDeviceBuffer(deviceDesc)
	if err != nil {
		rs.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("creating device buffer %s: %w", name, err)
	}
	b := &Buffer{
		name:    name,
		usage:   desc.Usage,
		staging: staging,
		device:  dev,
		mapped:  mapped,
	}
	idx, err := rs.bindless.Acquire(b)
	if err != nil {
		rs.device.DestroyBuffer(staging)
		rs.device.DestroyBuffer(dev)
		return nil, fmt.Errorf("bindless index for %s: %w", name, err)
	}
	b.bindless = idx
	return b, nil
}

func (rs *ResourceSet) destroyBufferSet(bs *BufferSet) {
	for _, b := range bs.slots {
		rs.device.DestroyBuffer(b.staging)
		rs.device.DestroyBuffer(b.device)
		if err := rs.bindless.Release(b.bindless); err != nil {
			core.LogWarn(err.Error())
		}
	}
	bs.slots = nil
}

func (rs *ResourceSet) DestroyBuffer(bs *BufferSet) {
	for i, other := range rs.buffers {
		if other == bs {
			rs.buffers = append(rs.buffers[:i], rs.buffers[i+1:]...)
			break
		}
	}
	rs.destroyBufferSet(bs)
}

// CreateTarget creates one target per slot. Size-dependent targets follow
// the set's size and are recreated by Resize.
func (rs *ResourceSet) CreateTarget(desc gpu.TargetDesc, sizeDependent bool) (*TargetSet, error) {
	if sizeDependent {
		desc.Size = rs.size
	}
	ts := &TargetSet{
		device:        rs.device,
		desc:          desc,
		sizeDependent: sizeDependent,
		slots:         make([]targetSlot, rs.cfg.FramesInFlight),
	}
	if err := ts.create(); err != nil {
		return nil, err
	}
	rs.targets = append(rs.targets, ts)
	return ts, nil
}

func (rs *ResourceSet) DestroyTarget(ts *TargetSet) {
	for i, other := range rs.targets {
		if other == ts {
			rs.targets = append(rs.targets[:i], rs.targets[i+1:]...)
			break
		}
	}
	ts.destroy()
}

// Resize recreates every size-dependent target. Resizing to the current
// size is a no-op. Callers drain the GPU first.
func (rs *ResourceSet) Resize(size gpu.Size) error {
	if size == rs.size {
		return nil
	}
	rs.size = size
	for _, ts := range rs.targets {
		if err := ts.Resize(size); err != nil {
			return err
		}
	}
	return nil
}

// BindlessLive is the number of bindless indices in use.
func (rs *ResourceSet) BindlessLive() int {
	return rs.bindless.Live()
}

func (rs *ResourceSet) Destroy() {
	for i := len(rs.targets) - 1; i >= 0; i-- {
		rs.targets[i].destroy()
	}
	rs.targets = nil
	for i := len(rs.buffers) - 1; i >= 0; i-- {
		rs.destroyBufferSet(rs.buffers[i])
	}
	rs.buffers = nil
}

type targetSlot struct {
	handle gpu.TargetHandle
	state  gpu.TargetState
}

// TargetSet is a render target replicated across frame slots, each copy
// carrying its own usage state.
type TargetSet struct {
	device        gpu.Device
	desc          gpu.TargetDesc
	sizeDependent bool
	generation    string
	slots         []targetSlot
}

func (ts *TargetSet) create() error {
	ts.generation = uuid.NewString()[:8]
	for i := range ts.slots {
		desc := ts.desc
		desc.Name = fmt.Sprintf("%s[%d]#%s", ts.desc.Name, i, ts.generation)
		h, err := ts.device.CreateTarget(desc)
		if err != nil {
			ts.destroy()
			return fmt.Errorf("creating target %s: %w", desc.Name, err)
		}
		ts.slots[i] = targetSlot{handle: h, state: gpu.TargetUninitialized}
	}
	return nil
}

func (ts *TargetSet) destroy() {
	for i := range ts.slots {
		if ts.slots[i].handle != 0 {
			ts.device.DestroyTarget(ts.slots[i].handle)
		}
		ts.slots[i] = targetSlot{state: gpu.TargetDestroyed}
	}
}

func (ts *TargetSet) Name() string {
	return ts.desc.Name
}

func (ts *TargetSet) Desc() gpu.TargetDesc {
	return ts.desc
}

func (ts *TargetSet) Size() gpu.Size {
	return ts.desc.Size
}

func (ts *TargetSet) SizeDependent() bool {
	return ts.sizeDependent
}

// Generation changes every time the targets are recreated.
func (ts *TargetSet) Generation() string {
	return ts.generation
}

func (ts *TargetSet) Handle(frameIndex uint64) gpu.TargetHandle {
	return ts.slots[frameIndex%uint64(len(ts.slots))].handle
}

func (ts *TargetSet) State(frameIndex uint64) gpu.TargetState {
	return ts.slots[frameIndex%uint64(len(ts.slots))].state
}

// Transition records a barrier moving the slot's target to state to. It is
// a no-op if the target is already there; illegal transitions are fatal.
func (ts *TargetSet) Transition(enc gpu.Encoder, frameIndex uint64, to gpu.TargetState) {
	s := &ts.slots[frameIndex%uint64(len(ts.slots))]
	if s.state == to {
		return
	}
	core.Assertf(s.state.CanTransition(to), core.ErrInvalidTransition,
		"target %s: %s -> %s", ts.desc.Name, s.state, to)
	enc.Barrier(s.handle, s.state, to)
	s.state = to
}

// Resize destroys and recreates the targets if they follow the framebuffer
// size and the size changed.
func (ts *TargetSet) Resize(size gpu.Size) error {
	if !ts.sizeDependent || size == ts.desc.Size {
		return nil
	}
	ts.destroy()
	ts.desc.Size = size
	return ts.create()
}
