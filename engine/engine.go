package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framecore/engine/assets"
	"github.com/spaghettifunk/framecore/engine/config"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/platform"
	"github.com/spaghettifunk/framecore/engine/renderer/components"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/orchestrator"
	"github.com/spaghettifunk/framecore/engine/renderer/overlay"
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
	"github.com/spaghettifunk/framecore/engine/renderer/views"
	"github.com/spaghettifunk/framecore/engine/systems"
	"golang.org/x/sync/errgroup"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	// fixedStep is the simulation step FnUpdate is called with.
	fixedStep = 1.0 / 60.0
	// maxSteps bounds the catch-up after a long frame.
	maxSteps = 5
	// DefaultFont is looked up under the fonts asset directory.
	DefaultFont = "default.fnt"
	// maxJobWorkers bounds the loader pool.
	maxJobWorkers = 4
)

// FrameContext is handed to Game.FnRender on the producer goroutine.
type FrameContext struct {
	FrameIndex uint64
	Size       gpu.Size
	// Alpha is the interpolation factor between the last two simulation
	// steps.
	Alpha  float32
	Views  *views.Set
	Camera *components.Camera

	canvases map[string]*overlay.Canvas
	debug    map[string]*overlay.DebugDraw
}

// Canvas returns the 2D overlay producer of a mailbox, or nil.
func (f *FrameContext) Canvas(name string) *overlay.Canvas {
	return f.canvases[name]
}

// Debug returns the world-space line producer of a mailbox, or nil.
func (f *FrameContext) Debug(name string) *overlay.DebugDraw {
	return f.debug[name]
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	runID        uuid.UUID
	cfg          atomic.Pointer[config.Config]

	events       *core.EventBus
	platform     *platform.Platform
	assetManager *assets.AssetManager
	jobs         *systems.JobSystem
	device       gpu.Device
	pipeline     *orchestrator.Pipeline
	mailboxes    *mailboxes
	canvases     map[string]*overlay.Canvas
	debug        map[string]*overlay.DebugDraw
	font         *overlay.Font
	tables       []gpu.TableHandle
	camera       *components.Camera
	clock        *core.Clock
	metrics      *core.Metrics

	// requested framebuffer size, width<<32 | height
	size        atomic.Uint64
	isSuspended atomic.Bool
	frames      atomic.Uint64

	quit     chan struct{}
	quitOnce sync.Once
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = NewApplicationConfig(config.Default(), "")
	}
	cfg := g.ApplicationConfig.Config
	if cfg == nil {
		cfg = config.Default()
		g.ApplicationConfig.Config = cfg
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(cfg.Application.LogLevel)

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	events := core.NewEventBus()
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		runID:        uuid.New(),
		events:       events,
		platform:     platform.New(events),
		assetManager: am,
		canvases:     make(map[string]*overlay.Canvas),
		debug:        make(map[string]*overlay.DebugDraw),
		camera:       components.NewCamera(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		quit:         make(chan struct{}),
	}
	e.cfg.Store(cfg)
	e.storeSize(cfg.Size())
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.cfg.Load()
	app := e.gameInstance.ApplicationConfig
	core.LogInfo("initializing %s (run %s, %s backend)", app.Name, e.runID, cfg.Renderer.Backend)

	// register some events
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_CONFIG_RELOADED, e, e.onEvent)

	if app.Window {
		if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
			return err
		}
		if w, h := e.platform.FramebufferSize(); w > 0 && h > 0 {
			e.storeSize(gpu.Size{Width: w, Height: h})
		}
	}

	js, err := systems.NewJobSystem(min(runtime.NumCPU(), maxJobWorkers), 2*maxJobWorkers)
	if err != nil {
		return err
	}
	e.jobs = js

	if err := e.assetManager.Initialize(cfg.Renderer.AssetPath, e.onAssetChanged); err != nil {
		core.LogError(err.Error())
		return err
	}

	device, err := createDevice(cfg, e.platform.VulkanProcAddr())
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	e.device = device

	mb, err := createMailboxes(cfg)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	e.mailboxes = mb
	e.font = e.loadFont()
	for name, m := range mb.flat {
		c := overlay.NewCanvas(m, 0)
		c.SetFont(e.font)
		e.canvases[name] = c
	}
	for name, m := range mb.world {
		e.debug[name] = overlay.NewDebugDraw(m, 0)
	}

	shaders := prefetchShaders(e.jobs, cfg, assetShaders(e.assetManager))
	oc, err := pipelineConfig(cfg, mb, e.gameInstance.Collectors, shaders)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	oc.Size = e.requestedSize()
	pl, err := orchestrator.New(device, oc)
	if err != nil {
		return err
	}
	e.pipeline = pl

	e.camera.SetPosition(math.NewVec3(0, 5, 15))
	e.camera.LookAt(math.NewVec3Zero())
	e.camera.Tick()

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		size := e.requestedSize()
		if err := e.gameInstance.FnOnResize(size.Width, size.Height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// loadFont prefers a bitmap font shipped with the assets and falls back to
// the built-in face.
func (e *Engine) loadFont() *overlay.Font {
	res, err := e.assetManager.LoadAsset(DefaultFont, assets.ResourceTypeBitmapFont, nil)
	if err == nil {
		if f, ok := res.Data.(*overlay.Font); ok {
			core.LogDebug("overlay font %s loaded from %s", f.Face, res.FullPath)
			return f
		}
	}
	core.LogDebug("overlay falls back to the built-in font: %v", err)
	return overlay.NewBasicFont()
}

// SetSharedBuffers binds the storage buffers of bs to every pass through one
// table per frame slot.
func (e *Engine) SetSharedBuffers(bs *frame.BufferSet) error {
	e.destroyTables()
	for i := 0; i < e.pipeline.FramesInFlight(); i++ {
		b := bs.Slot(uint64(i))
		t, err := e.device.CreateTable(gpu.TableDesc{
			Name:    fmt.Sprintf("%s.table[%d]", bs.Desc().Name, i),
			Buffers: []gpu.BufferHandle{b.Device()},
		})
		if err != nil {
			e.destroyTables()
			return fmt.Errorf("shared table for slot %d: %w", i, err)
		}
		e.tables = append(e.tables, t)
	}
	return nil
}

func (e *Engine) destroyTables() {
	for _, t := range e.tables {
		e.device.DestroyTable(t)
	}
	e.tables = nil
}

func (e *Engine) shared(frameIndex uint64) *pass.SharedBindings {
	if len(e.tables) == 0 {
		return nil
	}
	return &pass.SharedBindings{Table: e.tables[frameIndex%uint64(len(e.tables))]}
}

// Run drives the frame loop until the context is done, Quit is called, the
// configured frame count is reached or a frame fails.
//
// The producer goroutine simulates, generates views, draws the overlay and
// prepares every pass; the render goroutine records and submits. They hand
// frames over through two channels: tokens grants the producer a frame whose
// slot the GPU has retired, ready passes a prepared frame on. At most K-1
// frames are granted ahead of the GPU. The calling goroutine pumps window
// messages, so Run belongs on the main goroutine when a window is open.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("run in stage %d: %w", e.currentStage, core.ErrInvalidTransition)
	}
	e.currentStage = EngineStageRunning

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchers, wctx := errgroup.WithContext(runCtx)
	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" {
		watchers.Go(func() error {
			return config.Watch(wctx, path, e.onConfigChanged)
		})
	}

	k := e.pipeline.FramesInFlight()
	tokens := make(chan uint64, k)
	ready := make(chan uint64, k)
	frames, fctx := errgroup.WithContext(runCtx)
	frames.Go(func() error { return e.produce(fctx, tokens, ready) })
	frames.Go(func() error { return e.render(fctx, tokens, ready, k) })

	done := make(chan error, 1)
	go func() { done <- frames.Wait() }()

	err := e.pump(done)
	cancel()
	if werr := watchers.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		core.LogError("frame loop stopped: %s", err)
	}
	e.currentStage = EngineStageInitialized
	return err
}

func (e *Engine) pump(done <-chan error) error {
	ticker := time.NewTicker(4 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if !e.platform.PumpMessages() {
				e.Quit()
			}
		}
	}
}

func (e *Engine) produce(ctx context.Context, tokens <-chan uint64, ready chan<- uint64) error {
	defer close(ready)

	e.clock.Start()
	lastTime := e.clock.Elapsed()
	accumulator := 0.0

	for {
		var frameIndex uint64
		select {
		case <-ctx.Done():
			return nil
		case <-e.quit:
			return nil
		case frameIndex = <-tokens:
		}
		cfg := e.cfg.Load()
		if cfg.Application.MaxFrames > 0 && frameIndex >= cfg.Application.MaxFrames {
			return nil
		}
		for e.isSuspended.Load() {
			select {
			case <-ctx.Done():
				return nil
			case <-e.quit:
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			e.clock.Update()
			lastTime = e.clock.Elapsed()
		}

		frameStartTime := platform.GetAbsoluteTime()
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - lastTime
		accumulator += delta
		lastTime = currentTime

		steps := 0
		for accumulator >= fixedStep && steps < maxSteps {
			e.camera.Tick()
			if e.gameInstance.FnUpdate != nil {
				if err := e.gameInstance.FnUpdate(fixedStep); err != nil {
					core.LogError("Game update failed, shutting down: %s", err)
					return err
				}
			}
			accumulator -= fixedStep
			steps++
		}
		if steps == maxSteps {
			accumulator = 0
		}
		alpha := float32(accumulator / fixedStep)

		if err := e.prepareFrame(frameIndex, alpha, delta); err != nil {
			return err
		}

		select {
		case ready <- frameIndex:
		case <-ctx.Done():
			return nil
		}

		// Give the rest of the frame budget back to the OS.
		if cfg.Application.TargetFPS > 0 {
			remaining := 1.0/float64(cfg.Application.TargetFPS) - (platform.GetAbsoluteTime() - frameStartTime)
			if remaining > 0 {
				e.platform.Sleep(remaining * 1000)
			}
		}
	}
}

// prepareFrame runs the per-frame producer work for frameIndex.
func (e *Engine) prepareFrame(frameIndex uint64, alpha float32, delta float64) error {
	size := e.requestedSize()
	vs := e.pipeline.Views()
	vs.Reset()
	vs.GenerateView(views.Main, e.camera.State(), size, alpha)

	for _, c := range e.canvases {
		c.Begin(size)
	}
	for _, d := range e.debug {
		d.Begin()
	}
	var err error
	if e.gameInstance.FnRender != nil {
		err = e.gameInstance.FnRender(&FrameContext{
			FrameIndex: frameIndex,
			Size:       size,
			Alpha:      alpha,
			Views:      vs,
			Camera:     e.camera,
			canvases:   e.canvases,
			debug:      e.debug,
		}, delta)
	}
	for _, d := range e.debug {
		d.End()
	}
	for _, c := range e.canvases {
		c.End()
	}
	if err != nil {
		core.LogError("Game render failed, shutting down: %s", err)
		return err
	}

	e.pipeline.Prepare(frameIndex)
	return nil
}

func (e *Engine) render(ctx context.Context, tokens chan<- uint64, ready <-chan uint64, k int) error {
	for i := 0; i < k-1; i++ {
		if err := e.pipeline.WaitSlot(uint64(i)); err != nil {
			return err
		}
		tokens <- uint64(i)
	}
	next := uint64(k - 1)

	last := platform.GetAbsoluteTime()
	for {
		var frameIndex uint64
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-ready:
			if !ok {
				return nil
			}
			frameIndex = f
		}

		if err := e.pipeline.Render(frameIndex, e.requestedSize(), e.shared(frameIndex)); err != nil {
			return err
		}
		now := platform.GetAbsoluteTime()
		e.metrics.Update(now - last)
		last = now
		n := e.frames.Add(1)
		if every := e.cfg.Load().Application.MetricsEvery; every > 0 && n%every == 0 {
			e.logMetrics()
		}

		// The slot of the next granted frame was last used by the frame
		// before this one.
		if err := e.pipeline.WaitSlot(next); err != nil {
			return err
		}
		tokens <- next
		next++
	}
}

func (e *Engine) logMetrics() {
	fps, ms, total := e.metrics.Frame()
	st := e.pipeline.Stats()
	core.LogInfo("frame %d: %.1f fps, %.2f ms avg, %d draws, %d pipeline binds, %d copies, %d canvases skipped",
		total, fps, ms, st.Draws, st.PipelineBinds, st.Copies, st.CanvasesSkipped)
	for name, m := range e.mailboxes.flat {
		s := m.Stats()
		core.LogDebug("mailbox %s: %d published, %d dropped, %d stale", name, s.Published, s.Dropped, s.Stale)
	}
	for name, m := range e.mailboxes.world {
		s := m.Stats()
		core.LogDebug("mailbox %s: %d published, %d dropped, %d stale", name, s.Published, s.Dropped, s.Stale)
	}
}

// Quit asks the frame loop to stop after the frame in progress.
func (e *Engine) Quit() {
	e.quitOnce.Do(func() { close(e.quit) })
}

// Shutdown releases everything Initialize created. It must not run
// concurrently with Run.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.Quit()

	if e.device != nil {
		if err := e.device.WaitIdle(); err != nil {
			core.LogWarn("wait idle before shutdown: %s", err)
		}
		e.destroyTables()
	}
	if e.pipeline != nil {
		e.pipeline.Uninit()
		e.pipeline = nil
	}
	if e.device != nil {
		e.device.Destroy()
		e.device = nil
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	// The asset watcher submits jobs, so it stops first.
	if err := e.assetManager.Shutdown(); err != nil {
		return err
	}
	if e.jobs != nil {
		if err := e.jobs.Shutdown(); err != nil {
			return err
		}
	}
	if err := e.platform.Shutdown(); err != nil {
		return err
	}
	e.currentStage = EngineStageUninitialized
	core.LogInfo("run %s shut down after %d frames", e.runID, e.frames.Load())
	return nil
}

func (e *Engine) storeSize(s gpu.Size) {
	e.size.Store(uint64(s.Width)<<32 | uint64(s.Height))
}

func (e *Engine) requestedSize() gpu.Size {
	v := e.size.Load()
	return gpu.Size{Width: uint32(v >> 32), Height: uint32(v)}
}

// RequestResize records a new framebuffer size. The render goroutine applies
// it before the next frame it records. A zero size suspends the producer.
func (e *Engine) RequestResize(width, height uint32) {
	if width == 0 || height == 0 {
		if !e.isSuspended.Swap(true) {
			core.LogInfo("Window minimized, suspending application.")
		}
		return
	}
	if e.isSuspended.Swap(false) {
		core.LogInfo("Window restored, resuming application.")
	}
	if (gpu.Size{Width: width, Height: height}) == e.requestedSize() {
		return
	}
	core.LogDebug("Window resize: %d, %d", width, height)
	e.storeSize(gpu.Size{Width: width, Height: height})
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Quit()
		return true
	case core.EVENT_CODE_CONFIG_RELOADED:
		core.LogDebug("configuration reloaded from %s", context.Data.S)
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	e.RequestResize(context.Data.U32[0], context.Data.U32[1])
	return false
}

// onConfigChanged applies the settings that can change at runtime. The pass
// graph and capacities only take effect on the next start.
func (e *Engine) onConfigChanged(cfg *config.Config) {
	old := e.cfg.Swap(cfg)
	core.SetLogLevel(cfg.Application.LogLevel)
	if !e.gameInstance.ApplicationConfig.Window && cfg.Size() != old.Size() {
		e.RequestResize(cfg.Application.Width, cfg.Application.Height)
	}
	if !reflect.DeepEqual(old.Passes, cfg.Passes) || old.Renderer != cfg.Renderer || !reflect.DeepEqual(old.Mailboxes, cfg.Mailboxes) {
		core.LogWarn("renderer configuration changed, restart to apply it")
	}
	ctx := core.EventContext{}
	ctx.Data.S = e.gameInstance.ApplicationConfig.ConfigPath
	e.events.Fire(core.EVENT_CODE_CONFIG_RELOADED, e, ctx)
}

// onAssetChanged checks a changed shader on the job system so a broken
// build is reported right away.
func (e *Engine) onAssetChanged(info assets.AssetInfo) {
	if info.Type != assets.ResourceTypeShader || e.jobs == nil {
		return
	}
	name := filepath.Base(info.Path)
	e.jobs.Submit(systems.JobTask{
		Name: "check " + info.Path,
		OnStart: func() error {
			res, err := e.assetManager.LoadAsset(name, assets.ResourceTypeShader, name)
			if err != nil {
				return err
			}
			return e.assetManager.UnloadAsset(assets.ResourceTypeShader, res)
		},
		OnComplete: func() {
			core.LogInfo("shader %s changed, restart to rebuild its pipelines", info.Path)
		},
		OnFailure: func(err error) {
			core.LogWarn("shader %s changed but does not load: %s", info.Path, err)
		},
	})
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Pipeline() *orchestrator.Pipeline {
	return e.pipeline
}

func (e *Engine) Device() gpu.Device {
	return e.device
}

func (e *Engine) Camera() *components.Camera {
	return e.camera
}

func (e *Engine) Assets() *assets.AssetManager {
	return e.assetManager
}

func (e *Engine) Font() *overlay.Font {
	return e.font
}

func (e *Engine) Config() *config.Config {
	return e.cfg.Load()
}

func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

// Frames is the number of frames submitted so far.
func (e *Engine) Frames() uint64 {
	return e.frames.Load()
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

// GetFramebufferSize returns the width and height (in this order) of the
// current framebuffer request.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	s := e.requestedSize()
	return s.Width, s.Height
}
