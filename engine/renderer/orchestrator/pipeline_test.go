package orchestrator

import (
	"errors"
	"io"
	"testing"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/components"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/headless"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
	"github.com/spaghettifunk/framecore/engine/renderer/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	core.SetLogOutput(io.Discard)
}

var screen = gpu.Size{Width: 320, Height: 240}

type trackingDevice struct {
	*headless.Device
	destroyed []gpu.TargetHandle
}

func (d *trackingDevice) DestroyTarget(h gpu.TargetHandle) {
	d.destroyed = append(d.destroyed, h)
	d.Device.DestroyTarget(h)
}

func rgba(name string) []pass.TargetConfig {
	return []pass.TargetConfig{{Name: name, Format: gpu.FormatRGBA8}}
}

func passes(t *testing.T) ([]pass.Config, *mailbox.Mailbox[math.Vertex2D]) {
	t.Helper()
	mb, err := mailbox.New[math.Vertex2D](mailbox.Config{Name: "ui", MaxVertices: 16, MaxIndices: 16, MaxDrawCalls: 2})
	require.NoError(t, err)
	return []pass.Config{
		{
			Name:      "scene",
			Kind:      pass.KindGeometry,
			Colour:    rgba("scene.colour"),
			Depth:     &pass.TargetConfig{Name: "scene.depth", Format: gpu.FormatD32},
			View:      views.Main,
			Collector: func(*pass.CollectContext) {},
		},
		{
			Name:        "ui",
			Kind:        pass.KindCanvas,
			Colour:      rgba("ui.colour"),
			Source:      pass.MailboxSource(mb),
			MaxVertices: 16,
			MaxIndices:  16,
			Pipeline:    gpu.PipelineDesc{Name: "ui"},
		},
		{
			Name:     "composite",
			Kind:     pass.KindFullscreen,
			Colour:   rgba("composite.colour"),
			Inputs:   []string{"scene", "ui"},
			Pipeline: gpu.PipelineDesc{Name: "composite"},
		},
	}, mb
}

func newPipeline(t *testing.T) (*trackingDevice, *Pipeline, *mailbox.Mailbox[math.Vertex2D]) {
	t.Helper()
	dev := &trackingDevice{Device: headless.New(headless.Options{FramesInFlight: 2, Record: true})}
	cfgs, mb := passes(t)
	pl, err := New(dev, Config{FramesInFlight: 2, Size: screen, Passes: cfgs})
	require.NoError(t, err)
	return dev, pl, mb
}

func renderFrame(t *testing.T, pl *Pipeline, frameIndex uint64, size gpu.Size) {
	t.Helper()
	require.NoError(t, pl.WaitSlot(frameIndex))
	pl.Views().Reset()
	pl.Views().GenerateView(views.Main, components.NewCamera().State(), pl.Size(), 1)
	pl.Prepare(frameIndex)
	require.NoError(t, pl.Render(frameIndex, size, &pass.SharedBindings{}))
}

func TestNewRejectsBadGraphs(t *testing.T) {
	cases := map[string]func(cfgs []pass.Config) []pass.Config{
		"duplicate name": func(c []pass.Config) []pass.Config {
			c[1].Name = "scene"
			return c
		},
		"forward input": func(c []pass.Config) []pass.Config {
			c[0].Inputs = []string{"composite"}
			return c
		},
		"self input": func(c []pass.Config) []pass.Config {
			c[2].Inputs = []string{"composite"}
			return c
		},
		"unknown input": func(c []pass.Config) []pass.Config {
			c[2].Inputs = []string{"bloom"}
			return c
		},
		"no passes": func([]pass.Config) []pass.Config {
			return nil
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			dev := headless.New(headless.Options{FramesInFlight: 2})
			cfgs, _ := passes(t)
			_, err := New(dev, Config{FramesInFlight: 2, Size: screen, Passes: mutate(cfgs)})
			assert.True(t, errors.Is(err, core.ErrInvalidConfig))
			assert.Zero(t, dev.LiveTargets())
			assert.Zero(t, dev.LiveSemaphores())
		})
	}
}

func TestRenderSubmitsPassesInOrderWithSemaphoreWaits(t *testing.T) {
	dev, pl, _ := newPipeline(t)
	scene, _ := pl.Semaphore("scene")
	ui, _ := pl.Semaphore("ui")
	composite, _ := pl.Semaphore("composite")

	for frameIndex := uint64(0); frameIndex < 3; frameIndex++ {
		dev.ClearRecording()
		renderFrame(t, pl, frameIndex, screen)

		subs := dev.Submissions()
		require.Len(t, subs, 3)
		value := frameIndex + 1
		assert.Equal(t, "scene", subs[0].Label)
		assert.Equal(t, "ui", subs[1].Label)
		assert.Equal(t, "composite", subs[2].Label)

		assert.Empty(t, subs[0].Waits)
		assert.Empty(t, subs[1].Waits)
		assert.Equal(t, []gpu.SemaphoreValue{{Semaphore: scene, Value: value}, {Semaphore: ui, Value: value}}, subs[2].Waits)

		for i, sem := range []gpu.SemaphoreHandle{scene, ui, composite} {
			assert.Equal(t, gpu.SemaphoreValue{Semaphore: sem, Value: value}, subs[i].Signal)
			assert.Equal(t, i == 2, subs[i].Last)
			assert.Equal(t, int(frameIndex%2), subs[i].Slot)
			assert.Equal(t, value, dev.SemaphoreValue(sem))
		}
	}

	st := pl.Stats()
	assert.Equal(t, uint64(2), st.Frame)
	assert.Equal(t, 3, st.Passes)
	assert.Equal(t, uint32(1), st.Draws)
	assert.Equal(t, uint32(1), st.CanvasesSkipped)
	assert.Equal(t, uint64(3), dev.Stats().FrameWaits)
}

func TestCanvasIsDrawnOncePublished(t *testing.T) {
	_, pl, mb := newPipeline(t)
	mb.BeginFrame()
	base := mb.AddVertices(math.Vertex2D{}, math.Vertex2D{}, math.Vertex2D{})
	first := mb.AddIndices(0, 1, 2)
	mb.AddDrawCall(mailbox.DrawCall{FirstIndex: first, IndexCount: 3, BaseVertex: int32(base)})
	mb.EndFrame()

	renderFrame(t, pl, 0, screen)
	st := pl.Stats()
	assert.Zero(t, st.CanvasesSkipped)
	assert.Equal(t, uint32(2), st.Draws)
	assert.Equal(t, uint32(3), st.Copies)

	renderFrame(t, pl, 1, screen)
	assert.Equal(t, uint32(1), pl.Stats().CanvasesStale)
}

func TestResizeIsIdempotentAndLeakFree(t *testing.T) {
	dev, pl, _ := newPipeline(t)
	renderFrame(t, pl, 0, screen)
	live := dev.LiveTargets()
	sceneColour := pl.passes[0].ColourTargets()[0]

	bigger := gpu.Size{Width: 800, Height: 600}
	require.NoError(t, pl.Resize(bigger))
	first := sceneColour.Handle(0)
	require.NoError(t, pl.Resize(bigger))
	assert.Equal(t, first, sceneColour.Handle(0))
	assert.Equal(t, live, dev.LiveTargets())
	assert.Equal(t, uint64(1), pl.Stats().Resizes)
	assert.Equal(t, bigger, pl.Resources().Size())

	desc, ok := dev.TargetDesc(sceneColour.Handle(1))
	require.True(t, ok)
	assert.Equal(t, bigger, desc.Size)

	// a render at a new size resizes first, then runs from fresh targets
	renderFrame(t, pl, 1, screen)
	assert.Equal(t, screen, pl.Size())
	assert.Equal(t, uint64(2), pl.Stats().Resizes)
	assert.Equal(t, live, dev.LiveTargets())
	renderFrame(t, pl, 2, screen)

	// an empty size, as reported by a minimized window, changes nothing
	renderFrame(t, pl, 3, gpu.Size{})
	assert.Equal(t, screen, pl.Size())
}

func TestUninitTearsDownInReverseOrder(t *testing.T) {
	dev, pl, _ := newPipeline(t)
	renderFrame(t, pl, 0, screen)

	var order []gpu.TargetHandle
	for i := len(pl.passes) - 1; i >= 0; i-- {
		p := pl.passes[i]
		var own []gpu.TargetHandle
		if d := p.DepthTarget(); d != nil {
			own = append(own, d.Handle(0), d.Handle(1))
		}
		for j := len(p.ColourTargets()) - 1; j >= 0; j-- {
			own = append(own, p.ColourTargets()[j].Handle(0), p.ColourTargets()[j].Handle(1))
		}
		order = append(order, own...)
	}

	pl.Uninit()
	assert.Equal(t, order, dev.destroyed)
	assert.Zero(t, dev.LiveTargets())
	assert.Zero(t, dev.LiveBuffers())
	assert.Zero(t, dev.LiveSemaphores())
	assert.Zero(t, dev.LivePipelines())
	assert.Zero(t, pl.Resources().BindlessLive())
}
