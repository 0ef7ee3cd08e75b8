package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

var (
	ErrUnknownResource   = errors.New("unknown resource")
	ErrUnsatisfiedWait   = errors.New("semaphore wait can never be satisfied")
	ErrNonMonotonic      = errors.New("semaphore signal is not increasing")
	ErrCopyOutOfBounds   = errors.New("buffer copy out of bounds")
	ErrForeignEncoder    = errors.New("encoder was not created by this device")
	ErrTargetNotWritable = errors.New("render target is not in render-target state")
)

type Options struct {
	FramesInFlight int
	// Record keeps every submission for later inspection.
	Record bool
}

type Submission struct {
	Slot     int
	Label    string
	Commands []Command
	Waits    []gpu.SemaphoreValue
	Signal   gpu.SemaphoreValue
	Last     bool
}

type Stats struct {
	Submissions uint64
	Copies      uint64
	CopiedBytes uint64
	Barriers    uint64
	Draws       uint64
	FrameWaits  uint64
}

type buffer struct {
	desc    gpu.BufferDesc
	staging bool
	data    []byte
}

type target struct {
	desc  gpu.TargetDesc
	state gpu.TargetState
}

type semaphore struct {
	name  string
	value uint64
}

// Device executes submissions synchronously on the CPU. Copies move bytes,
// barriers and semaphores are validated, draws are only counted.
type Device struct {
	mu   sync.Mutex
	opts Options
	next uint32

	buffers    map[gpu.BufferHandle]*buffer
	targets    map[gpu.TargetHandle]*target
	pipelines  map[gpu.PipelineHandle]gpu.PipelineDesc
	tables     map[gpu.TableHandle]gpu.TableDesc
	semaphores map[gpu.SemaphoreHandle]*semaphore

	recorded []Submission
	stats    Stats
}

func New(opts Options) *Device {
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = 2
	}
	return &Device{
		opts:       opts,
		buffers:    make(map[gpu.BufferHandle]*buffer),
		targets:    make(map[gpu.TargetHandle]*target),
		pipelines:  make(map[gpu.PipelineHandle]gpu.PipelineDesc),
		tables:     make(map[gpu.TableHandle]gpu.TableDesc),
		semaphores: make(map[gpu.SemaphoreHandle]*semaphore),
	}
}

func (d *Device) Name() string {
	return "headless"
}

func (d *Device) FramesInFlight() int {
	return d.opts.FramesInFlight
}

func (d *Device) handle() uint32 {
	d.next++
	return d.next
}

func (d *Device) CreateStagingBuffer(desc gpu.BufferDesc) (gpu.BufferHandle, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.BufferHandle(d.handle())
	b := &buffer{desc: desc, staging: true, data: make([]byte, desc.Size)}
	d.buffers[h] = b
	return h, b.data, nil
}

func (d *Device) CreateDeviceBuffer(desc gpu.BufferDesc) (gpu.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.BufferHandle(d.handle())
	d.buffers[h] = &buffer{desc: desc, data: make([]byte, desc.Size)}
	return h, nil
}

func (d *Device) DestroyBuffer(h gpu.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[h]; !ok {
		core.LogWarn("headless: destroy of unknown buffer %d", h)
		return
	}
	delete(d.buffers, h)
}

func (d *Device) CreateTarget(desc gpu.TargetDesc) (gpu.TargetHandle, error) {
	if desc.Size.Empty() {
		return 0, fmt.Errorf("headless: target %s has empty size %s", desc.Name, desc.Size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.TargetHandle(d.handle())
	d.targets[h] = &target{desc: desc, state: gpu.TargetUninitialized}
	return h, nil
}

func (d *Device) DestroyTarget(h gpu.TargetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.targets[h]; !ok {
		core.LogWarn("headless: destroy of unknown target %d", h)
		return
	}
	delete(d.targets, h)
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.PipelineHandle(d.handle())
	d.pipelines[h] = desc
	return h, nil
}

func (d *Device) DestroyPipeline(h gpu.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, h)
}

func (d *Device) CreateTable(desc gpu.TableDesc) (gpu.TableHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range desc.Buffers {
		if _, ok := d.buffers[b]; !ok {
			return 0, fmt.Errorf("headless: table %s references buffer %d: %w", desc.Name, b, ErrUnknownResource)
		}
	}
	h := gpu.TableHandle(d.handle())
	d.tables[h] = desc
	return h, nil
}

func (d *Device) DestroyTable(h gpu.TableHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tables, h)
}

func (d *Device) CreateSemaphore(name string) (gpu.SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.SemaphoreHandle(d.handle())
	d.semaphores[h] = &semaphore{name: name}
	return h, nil
}

func (d *Device) DestroySemaphore(h gpu.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, h)
}

func (d *Device) BeginCommands(slot int, label string) (gpu.Encoder, error) {
	if slot < 0 || slot >= d.opts.FramesInFlight {
		return nil, fmt.Errorf("headless: slot %d out of range [0,%d)", slot, d.opts.FramesInFlight)
	}
	return &Encoder{slot: slot, label: label}, nil
}

func (d *Device) Submit(sub gpu.Submission) error {
	enc, ok := sub.Encoder.(*Encoder)
	if !ok {
		return ErrForeignEncoder
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range sub.Waits {
		s, ok := d.semaphores[w.Semaphore]
		if !ok {
			return fmt.Errorf("headless: %s waits on semaphore %d: %w", enc.label, w.Semaphore, ErrUnknownResource)
		}
		// Submissions execute in order, so a wait above the current value
		// would deadlock a real queue.
		if w.Value > s.value {
			return fmt.Errorf("headless: %s waits on %s=%d, current %d: %w", enc.label, s.name, w.Value, s.value, ErrUnsatisfiedWait)
		}
	}

	for i := range enc.commands {
		if err := d.execute(&enc.commands[i]); err != nil {
			return fmt.Errorf("headless: %s command %d (%s): %w", enc.label, i, enc.commands[i].Op, err)
		}
	}

	if sub.Signal.Semaphore != 0 {
		s, ok := d.semaphores[sub.Signal.Semaphore]
		if !ok {
			return fmt.Errorf("headless: %s signals semaphore %d: %w", enc.label, sub.Signal.Semaphore, ErrUnknownResource)
		}
		if sub.Signal.Value <= s.value {
			return fmt.Errorf("headless: %s signals %s=%d, current %d: %w", enc.label, s.name, sub.Signal.Value, s.value, ErrNonMonotonic)
		}
		s.value = sub.Signal.Value
	}

	d.stats.Submissions++
	if d.opts.Record {
		d.recorded = append(d.recorded, Submission{
			Slot:     sub.Slot,
			Label:    enc.label,
			Commands: enc.commands,
			Waits:    append([]gpu.SemaphoreValue(nil), sub.Waits...),
			Signal:   sub.Signal,
			Last:     sub.Last,
		})
	}
	return nil
}

func (d *Device) execute(c *Command) error {
	switch c.Op {
	case OpCopyBuffer:
		src, ok := d.buffers[c.Src]
		dst, ok2 := d.buffers[c.Dst]
		if !ok || !ok2 {
			return ErrUnknownResource
		}
		if c.SrcOffset+c.Size > uint64(len(src.data)) || c.DstOffset+c.Size > uint64(len(dst.data)) {
			return ErrCopyOutOfBounds
		}
		copy(dst.data[c.DstOffset:c.DstOffset+c.Size], src.data[c.SrcOffset:c.SrcOffset+c.Size])
		d.stats.Copies++
		d.stats.CopiedBytes += c.Size
	case OpBarrier:
		t, ok := d.targets[c.Target]
		if !ok {
			return ErrUnknownResource
		}
		if t.state != c.From || !c.From.CanTransition(c.To) {
			return fmt.Errorf("%s is %s, barrier %s -> %s: %w", t.desc.Name, t.state, c.From, c.To, core.ErrInvalidTransition)
		}
		t.state = c.To
		d.stats.Barriers++
	case OpBeginRendering:
		for _, h := range c.Attachments.Colour {
			if err := d.writable(h); err != nil {
				return err
			}
		}
		if c.Attachments.Depth != 0 {
			if err := d.writable(c.Attachments.Depth); err != nil {
				return err
			}
		}
	case OpBindPipeline:
		if _, ok := d.pipelines[c.Pipeline]; !ok {
			return ErrUnknownResource
		}
	case OpBindVertexBuffer, OpBindIndexBuffer:
		if _, ok := d.buffers[c.Buffer]; !ok {
			return ErrUnknownResource
		}
	case OpBindTable:
		if _, ok := d.tables[c.Table]; !ok {
			return ErrUnknownResource
		}
	case OpDrawIndexed, OpDraw:
		d.stats.Draws++
	}
	return nil
}

func (d *Device) writable(h gpu.TargetHandle) error {
	t, ok := d.targets[h]
	if !ok {
		return ErrUnknownResource
	}
	if t.state != gpu.TargetRenderTarget {
		return fmt.Errorf("%s is %s: %w", t.desc.Name, t.state, ErrTargetNotWritable)
	}
	return nil
}

// WaitFrame returns immediately, every submission already retired.
func (d *Device) WaitFrame(slot int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.FrameWaits++
	return nil
}

func (d *Device) WaitIdle() error {
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.buffers) + len(d.targets) + len(d.semaphores); n > 0 {
		core.LogWarn("headless: destroying device with %d live resources", n)
	}
	d.buffers = make(map[gpu.BufferHandle]*buffer)
	d.targets = make(map[gpu.TargetHandle]*target)
	d.pipelines = make(map[gpu.PipelineHandle]gpu.PipelineDesc)
	d.tables = make(map[gpu.TableHandle]gpu.TableDesc)
	d.semaphores = make(map[gpu.SemaphoreHandle]*semaphore)
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.recorded...)
}

func (d *Device) ClearRecording() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recorded = nil
}

// BufferContents returns a copy of a buffer's bytes.
func (d *Device) BufferContents(h gpu.BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return nil
	}
	return append([]byte(nil), b.data...)
}

func (d *Device) TargetDesc(h gpu.TargetHandle) (gpu.TargetDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.targets[h]
	if !ok {
		return gpu.TargetDesc{}, false
	}
	return t.desc, true
}

func (d *Device) TargetState(h gpu.TargetHandle) gpu.TargetState {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.targets[h]
	if !ok {
		return gpu.TargetDestroyed
	}
	return t.state
}

func (d *Device) SemaphoreValue(h gpu.SemaphoreHandle) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.semaphores[h]; ok {
		return s.value
	}
	return 0
}

func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

func (d *Device) LiveTargets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

func (d *Device) LiveSemaphores() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.semaphores)
}

func (d *Device) LivePipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipelines)
}
