package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/framecore/engine/config"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/headless"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headlessConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Application.MaxFrames = 6
	cfg.Application.TargetFPS = 0
	cfg.Application.MetricsEvery = 2
	cfg.Application.LogLevel = "error"
	cfg.Renderer.AssetPath = t.TempDir()
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, g *Game) *Engine {
	t.Helper()
	g.ApplicationConfig = NewApplicationConfig(cfg, "")
	if g.Collectors == nil {
		g.Collectors = map[string]pass.Collector{"scene": func(*pass.CollectContext) {}}
	}
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	return e
}

func runWithTimeout(t *testing.T, e *Engine) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.Run(ctx)
	require.NoError(t, ctx.Err(), "frame loop did not stop on its own")
	return err
}

func TestRunHeadlessStopsAtMaxFrames(t *testing.T) {
	var collected, rendered atomic.Uint64
	var lastSize gpu.Size
	g := &Game{
		Collectors: map[string]pass.Collector{
			"scene": func(ctx *pass.CollectContext) { collected.Add(1) },
		},
		FnRender: func(frame *FrameContext, deltaTime float64) error {
			rendered.Add(1)
			lastSize = frame.Size
			if frame.Canvas("ui") == nil || frame.Debug("debug") == nil || frame.Canvas("debug") != nil {
				return errors.New("unexpected overlay producers")
			}
			frame.Canvas("ui").Rect(mailbox.Rect{X: 10, Y: 10, Width: 100, Height: 20}, math.NewVec4(1, 1, 1, 1))
			frame.Canvas("ui").Text(math.NewVec2(12, 12), "framecore", math.NewVec4(0, 0, 0, 1))
			frame.Debug("debug").Line(math.NewVec3Zero(), math.NewVec3(1, 0, 0), math.NewVec4(1, 0, 0, 1))
			return nil
		},
	}
	e := newTestEngine(t, headlessConfig(t), g)

	require.NoError(t, runWithTimeout(t, e))

	assert.Equal(t, uint64(6), e.Frames())
	assert.Equal(t, uint64(6), rendered.Load())
	assert.Equal(t, uint64(6), collected.Load())
	assert.Equal(t, gpu.Size{Width: 1280, Height: 720}, lastSize)

	st := e.Pipeline().Stats()
	assert.Equal(t, uint64(5), st.Frame)
	assert.Equal(t, 4, st.Passes)
	assert.Zero(t, st.Resizes)

	dev, ok := e.Device().(*headless.Device)
	require.True(t, ok)
	assert.Equal(t, uint64(6*4), dev.Stats().Submissions)

	fps, _, total := e.Metrics().Frame()
	assert.Equal(t, uint64(6), total)
	assert.GreaterOrEqual(t, fps, 0.0)

	require.NoError(t, e.Shutdown())
}

func TestResizeEventReachesPipeline(t *testing.T) {
	var e *Engine
	var resized atomic.Value
	g := &Game{
		FnRender: func(frame *FrameContext, deltaTime float64) error {
			if frame.FrameIndex == 1 {
				ctx := core.EventContext{}
				ctx.Data.U32[0] = 640
				ctx.Data.U32[1] = 360
				e.Events().Fire(core.EVENT_CODE_RESIZED, nil, ctx)
			}
			return nil
		},
		FnOnResize: func(width, height uint32) error {
			resized.Store(gpu.Size{Width: width, Height: height})
			return nil
		},
	}
	e = newTestEngine(t, headlessConfig(t), g)

	require.NoError(t, runWithTimeout(t, e))

	assert.Equal(t, gpu.Size{Width: 640, Height: 360}, e.Pipeline().Size())
	assert.Equal(t, uint64(1), e.Pipeline().Stats().Resizes)
	assert.Equal(t, gpu.Size{Width: 640, Height: 360}, resized.Load())
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(640), w)
	assert.Equal(t, uint32(360), h)
	require.NoError(t, e.Shutdown())
}

func TestZeroSizeSuspendsUntilQuit(t *testing.T) {
	var rendered atomic.Uint64
	g := &Game{
		FnRender: func(frame *FrameContext, deltaTime float64) error {
			rendered.Add(1)
			return nil
		},
	}
	e := newTestEngine(t, headlessConfig(t), g)
	e.RequestResize(0, 0)

	go func() {
		time.Sleep(100 * time.Millisecond)
		e.Quit()
	}()
	require.NoError(t, runWithTimeout(t, e))

	assert.Zero(t, rendered.Load())
	assert.Zero(t, e.Frames())
	assert.Equal(t, gpu.Size{Width: 1280, Height: 720}, e.Pipeline().Size())
	require.NoError(t, e.Shutdown())
}

func TestQuitEventStopsRun(t *testing.T) {
	cfg := headlessConfig(t)
	cfg.Application.MaxFrames = 0

	var e *Engine
	g := &Game{
		FnRender: func(frame *FrameContext, deltaTime float64) error {
			if frame.FrameIndex == 3 {
				e.Events().Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
			}
			return nil
		},
	}
	e = newTestEngine(t, cfg, g)

	require.NoError(t, runWithTimeout(t, e))
	assert.GreaterOrEqual(t, e.Frames(), uint64(4))
	require.NoError(t, e.Shutdown())
}

func TestRenderErrorStopsRun(t *testing.T) {
	errBroken := errors.New("broken scene")
	g := &Game{
		FnRender: func(frame *FrameContext, deltaTime float64) error {
			if frame.FrameIndex == 2 {
				return errBroken
			}
			return nil
		},
	}
	e := newTestEngine(t, headlessConfig(t), g)

	err := runWithTimeout(t, e)
	assert.ErrorIs(t, err, errBroken)
	assert.LessOrEqual(t, e.Frames(), uint64(2))
	require.NoError(t, e.Shutdown())
}

func TestRunBeforeInitialize(t *testing.T) {
	cfg := headlessConfig(t)
	e, err := New(&Game{ApplicationConfig: NewApplicationConfig(cfg, "")})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(context.Background()), core.ErrInvalidTransition)
	require.NoError(t, e.Shutdown())
}

func TestInitializeRejectsUnknownCollector(t *testing.T) {
	cfg := headlessConfig(t)
	e, err := New(&Game{
		ApplicationConfig: NewApplicationConfig(cfg, ""),
		Collectors:        map[string]pass.Collector{"other": func(*pass.CollectContext) {}},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Initialize(), ErrUnknownCollector)
	require.NoError(t, e.Shutdown())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := headlessConfig(t)
	cfg.Renderer.FramesInFlight = 0
	_, err := New(&Game{ApplicationConfig: NewApplicationConfig(cfg, "")})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestSharedBuffersGetOneTablePerSlot(t *testing.T) {
	var e *Engine
	g := &Game{
		FnInitialize: func(en *Engine) error {
			bs, err := en.Pipeline().Resources().CreateBuffer(gpu.BufferDesc{
				Name:  "materials",
				Usage: gpu.BufferUsageStorage,
				Size:  1024,
			})
			if err != nil {
				return err
			}
			return en.SetSharedBuffers(bs)
		},
	}
	e = newTestEngine(t, headlessConfig(t), g)
	require.Len(t, e.tables, e.Pipeline().FramesInFlight())
	assert.NotEqual(t, e.tables[0], e.tables[1])
	assert.Equal(t, e.tables[1], e.shared(4).Table)

	require.NoError(t, runWithTimeout(t, e))
	require.NoError(t, e.Shutdown())
	assert.Empty(t, e.tables)
}

func TestConfigReloadAppliesSizeAndFiresEvent(t *testing.T) {
	e := newTestEngine(t, headlessConfig(t), &Game{})
	e.gameInstance.ApplicationConfig.ConfigPath = "framecore.toml"

	var reloaded atomic.Value
	e.Events().Register(core.EVENT_CODE_CONFIG_RELOADED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		reloaded.Store(data.Data.S)
		return false
	})

	next := headlessConfig(t)
	next.Application.Width = 320
	next.Application.Height = 200
	e.onConfigChanged(next)

	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(320), w)
	assert.Equal(t, uint32(200), h)
	assert.Same(t, next, e.Config())
	assert.Equal(t, "framecore.toml", reloaded.Load())
	require.NoError(t, e.Shutdown())
}
