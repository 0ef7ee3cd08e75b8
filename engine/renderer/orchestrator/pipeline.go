package orchestrator

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
	"github.com/spaghettifunk/framecore/engine/renderer/views"
)

type Config struct {
	FramesInFlight   int
	AllocatorBytes   int
	BindlessCapacity int
	Size             gpu.Size
	// Passes run in this order. A pass may only take inputs from passes
	// listed before it.
	Passes []pass.Config
}

// Stats are the counters of the last rendered frame.
type Stats struct {
	Frame             uint64
	Passes            int
	Draws             uint32
	PipelineBinds     uint32
	IndexBufferBinds  uint32
	VertexBufferBinds uint32
	Copies            uint32
	CanvasesSkipped   uint32
	CanvasesStale     uint32
	Resizes           uint64
}

// Pipeline runs an ordered list of passes over a shared ResourceSet. Each
// pass is one submission that waits on the completion semaphores of its
// inputs and signals its own with frameIndex+1.
//
// Prepare belongs to the producer goroutine, Render, WaitSlot and Resize to
// the render goroutine.
type Pipeline struct {
	device gpu.Device
	rs     *frame.ResourceSet
	views  *views.Set

	passes     []*pass.Pass
	lookup     map[string]int
	semaphores []gpu.SemaphoreHandle
	waits      [][]gpu.SemaphoreValue
	deps       [][]int
	size       gpu.Size

	mu    sync.Mutex
	stats Stats
}

func New(device gpu.Device, cfg Config) (*Pipeline, error) {
	rs, err := frame.NewResourceSet(device, frame.Config{
		FramesInFlight:   cfg.FramesInFlight,
		AllocatorBytes:   cfg.AllocatorBytes,
		BindlessCapacity: cfg.BindlessCapacity,
		Size:             cfg.Size,
	})
	if err != nil {
		return nil, err
	}
	pl := &Pipeline{
		device: device,
		rs:     rs,
		views:  views.NewSet(),
		lookup: make(map[string]int, len(cfg.Passes)),
		size:   cfg.Size,
	}
	if err := pl.resolve(cfg.Passes); err != nil {
		rs.Destroy()
		return nil, err
	}

	for i, p := range pl.passes {
		sem, err := device.CreateSemaphore(p.Name() + ".done")
		if err != nil {
			pl.Uninit()
			return nil, fmt.Errorf("semaphore for pass %s: %w", p.Name(), err)
		}
		pl.semaphores = append(pl.semaphores, sem)
		inputs := make([]*pass.Pass, len(pl.deps[i]))
		for j, d := range pl.deps[i] {
			inputs[j] = pl.passes[d]
		}
		if err := p.Init(pass.InitContext{Device: device, Resources: rs, Inputs: inputs}); err != nil {
			core.LogError(err.Error())
			pl.Uninit()
			return nil, err
		}
	}
	core.LogInfo("render pipeline ready: %d passes, %d frames in flight, %s", len(pl.passes), rs.FramesInFlight(), cfg.Size)
	return pl, nil
}

// resolve validates names and dependency order.
func (pl *Pipeline) resolve(cfgs []pass.Config) error {
	if len(cfgs) == 0 {
		return fmt.Errorf("render pipeline without passes: %w", core.ErrInvalidConfig)
	}
	for i, c := range cfgs {
		if _, ok := pl.lookup[c.Name]; ok {
			return fmt.Errorf("duplicate pass name %q: %w", c.Name, core.ErrInvalidConfig)
		}
		p := pass.New(c)
		if err := p.Validate(); err != nil {
			return err
		}
		deps := make([]int, 0, len(c.Inputs))
		waits := make([]gpu.SemaphoreValue, 0, len(c.Inputs))
		for _, in := range c.Inputs {
			d, ok := pl.lookup[in]
			if !ok {
				return fmt.Errorf("pass %s reads %q which is not an earlier pass: %w", c.Name, in, core.ErrInvalidConfig)
			}
			deps = append(deps, d)
			waits = append(waits, gpu.SemaphoreValue{})
		}
		pl.lookup[c.Name] = i
		pl.passes = append(pl.passes, p)
		pl.deps = append(pl.deps, deps)
		pl.waits = append(pl.waits, waits)
	}
	return nil
}

func (pl *Pipeline) Views() *views.Set {
	return pl.views
}

func (pl *Pipeline) Resources() *frame.ResourceSet {
	return pl.rs
}

func (pl *Pipeline) Device() gpu.Device {
	return pl.device
}

func (pl *Pipeline) Size() gpu.Size {
	return pl.size
}

func (pl *Pipeline) FramesInFlight() int {
	return pl.rs.FramesInFlight()
}

func (pl *Pipeline) Passes() []*pass.Pass {
	return pl.passes
}

func (pl *Pipeline) Pass(name string) (*pass.Pass, bool) {
	i, ok := pl.lookup[name]
	if !ok {
		return nil, false
	}
	return pl.passes[i], true
}

// Semaphore returns the completion semaphore of a pass.
func (pl *Pipeline) Semaphore(name string) (gpu.SemaphoreHandle, bool) {
	i, ok := pl.lookup[name]
	if !ok || i >= len(pl.semaphores) {
		return 0, false
	}
	return pl.semaphores[i], true
}

// Prepare resets the slot of frameIndex and lets every pass fill it. The
// views for the frame must already be generated.
func (pl *Pipeline) Prepare(frameIndex uint64) {
	pl.rs.Reset(frameIndex)
	ctx := pass.PrepareContext{Views: pl.views, Resources: pl.rs}
	for _, p := range pl.passes {
		p.Prepare(frameIndex, ctx)
	}
}

// Render records and submits every pass of frameIndex in order. A target
// size differing from the current one resizes first.
func (pl *Pipeline) Render(frameIndex uint64, targetSize gpu.Size, shared *pass.SharedBindings) error {
	if !targetSize.Empty() && targetSize != pl.size {
		if err := pl.Resize(targetSize); err != nil {
			return err
		}
	}

	slot := pl.rs.Slot(frameIndex)
	value := frameIndex + 1
	st := Stats{Frame: frameIndex, Passes: len(pl.passes)}

	for i, p := range pl.passes {
		enc, err := pl.device.BeginCommands(slot, p.Name())
		if err != nil {
			core.LogError("pass %s: %s", p.Name(), err)
			return fmt.Errorf("begin commands for pass %s: %w", p.Name(), err)
		}
		ps := p.Render(frameIndex, enc, pl.size, shared)

		waits := pl.waits[i]
		for j, d := range pl.deps[i] {
			waits[j] = gpu.SemaphoreValue{Semaphore: pl.semaphores[d], Value: value}
		}
		sub := gpu.Submission{
			Encoder: enc,
			Slot:    slot,
			Waits:   waits,
			Signal:  gpu.SemaphoreValue{Semaphore: pl.semaphores[i], Value: value},
			Last:    i == len(pl.passes)-1,
		}
		if err := pl.device.Submit(sub); err != nil {
			core.LogError("pass %s: %s", p.Name(), err)
			return fmt.Errorf("submit pass %s of frame %d: %w", p.Name(), frameIndex, err)
		}

		st.Draws += ps.Draws
		st.PipelineBinds += ps.PipelineBinds
		st.IndexBufferBinds += ps.IndexBufferBinds
		st.VertexBufferBinds += ps.VertexBufferBinds
		st.Copies += ps.Copies
		if ps.CanvasSkipped {
			st.CanvasesSkipped++
		}
		if ps.CanvasStale {
			st.CanvasesStale++
		}
	}

	pl.mu.Lock()
	st.Resizes = pl.stats.Resizes
	pl.stats = st
	pl.mu.Unlock()
	return nil
}

// WaitSlot blocks until the GPU retired the last frame that used the slot
// of frameIndex.
func (pl *Pipeline) WaitSlot(frameIndex uint64) error {
	return pl.device.WaitFrame(pl.rs.Slot(frameIndex))
}

// Resize drains the GPU and recreates every framebuffer-sized target, pass
// by pass in pipeline order. Resizing to the current size does nothing.
func (pl *Pipeline) Resize(size gpu.Size) error {
	if size == pl.size || size.Empty() {
		return nil
	}
	if err := pl.device.WaitIdle(); err != nil {
		return fmt.Errorf("draining before resize: %w", err)
	}
	for _, p := range pl.passes {
		if err := p.Resize(size); err != nil {
			core.LogError(err.Error())
			return err
		}
	}
	if err := pl.rs.Resize(size); err != nil {
		return err
	}
	core.LogInfo("render pipeline resized %s -> %s", pl.size, size)
	pl.size = size

	pl.mu.Lock()
	pl.stats.Resizes++
	pl.mu.Unlock()
	return nil
}

// Uninit drains the GPU and tears the passes down in reverse order.
func (pl *Pipeline) Uninit() {
	if err := pl.device.WaitIdle(); err != nil {
		core.LogWarn("wait idle before teardown: %s", err)
	}
	for i := len(pl.passes) - 1; i >= 0; i-- {
		pl.passes[i].Uninit()
	}
	for i := len(pl.semaphores) - 1; i >= 0; i-- {
		pl.device.DestroySemaphore(pl.semaphores[i])
	}
	pl.semaphores = nil
	pl.rs.Destroy()
}

func (pl *Pipeline) Stats() Stats {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.stats
}
