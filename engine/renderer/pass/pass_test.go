package pass

import (
	"errors"
	"io"
	"testing"
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/components"
	"github.com/spaghettifunk/framecore/engine/renderer/drawstream"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/headless"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
	"github.com/spaghettifunk/framecore/engine/renderer/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	core.SetLogOutput(io.Discard)
}

var screen = gpu.Size{Width: 320, Height: 240}

type fixture struct {
	dev   *headless.Device
	rs    *frame.ResourceSet
	views *views.Set
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := headless.New(headless.Options{FramesInFlight: 2, Record: true})
	rs, err := frame.NewResourceSet(dev, frame.Config{FramesInFlight: 2, Size: screen})
	require.NoError(t, err)
	return &fixture{dev: dev, rs: rs, views: views.NewSet()}
}

func (f *fixture) init(t *testing.T, p *Pass, inputs ...*Pass) {
	t.Helper()
	require.NoError(t, p.Init(InitContext{Device: f.dev, Resources: f.rs, Inputs: inputs}))
}

func (f *fixture) prepare(frameIndex uint64, passes ...*Pass) {
	f.rs.Reset(frameIndex)
	f.views.Reset()
	f.views.GenerateView(views.Main, components.NewCamera().State(), screen, 1)
	for _, p := range passes {
		p.Prepare(frameIndex, PrepareContext{Views: f.views, Resources: f.rs})
	}
}

func (f *fixture) render(t *testing.T, frameIndex uint64, p *Pass) (*headless.Encoder, Stats) {
	t.Helper()
	slot := f.rs.Slot(frameIndex)
	enc, err := f.dev.BeginCommands(slot, p.Name())
	require.NoError(t, err)
	st := p.Render(frameIndex, enc, screen, &SharedBindings{})
	require.NoError(t, f.dev.Submit(gpu.Submission{Encoder: enc, Slot: slot}))
	return enc.(*headless.Encoder), st
}

func ops(enc *headless.Encoder) []headless.Op {
	var out []headless.Op
	for _, c := range enc.Commands() {
		out = append(out, c.Op)
	}
	return out
}

func colourTarget(name string) []TargetConfig {
	return []TargetConfig{{Name: name, Format: gpu.FormatRGBA8}}
}

func TestGeometryPassDrawsSortedStream(t *testing.T) {
	f := newFixture(t)
	p1, err := f.dev.CreatePipeline(gpu.PipelineDesc{Name: "opaque"})
	require.NoError(t, err)
	p2, err := f.dev.CreatePipeline(gpu.PipelineDesc{Name: "masked"})
	require.NoError(t, err)
	vbs, err := f.rs.CreateBuffer(gpu.BufferDesc{Name: "mesh.vertices", Usage: gpu.BufferUsageVertex, Size: 64})
	require.NoError(t, err)
	ibs, err := f.rs.CreateBuffer(gpu.BufferDesc{Name: "mesh.indices", Usage: gpu.BufferUsageIndex, Size: 64})
	require.NoError(t, err)

	var seen views.View
	collect := func(ctx *CollectContext) {
		seen = ctx.View
		vb := vbs.Slot(ctx.FrameIndex)
		ib := ibs.Slot(ctx.FrameIndex)
		frame.WriteValues(vb, 0, []float32{1, 2, 3})
		ctx.Upload(vb)
		base := drawstream.Command{IndexCount: 3, VertexBuffer: vb.Device(), IndexBuffer: ib.Device(), VertexStride: 12}
		for _, pl := range []gpu.PipelineHandle{p2, p1, p1} {
			c := base
			c.Pipeline = pl
			ctx.Stream.Add(c)
		}
	}

	p := New(Config{
		Name:      "scene",
		Kind:      KindGeometry,
		Colour:    colourTarget("scene.colour"),
		Depth:     &TargetConfig{Name: "scene.depth", Format: gpu.FormatD32},
		View:      views.Main,
		Collector: collect,
	})
	f.init(t, p)

	f.prepare(0, p)
	assert.Equal(t, views.Main, seen.ID)
	require.Equal(t, 3, p.Stream(0).Len())
	assert.True(t, p.Stream(0).Built())

	enc, st := f.render(t, 0, p)
	assert.Equal(t, []headless.Op{
		headless.OpBarrier, headless.OpBarrier,
		headless.OpCopyBuffer, headless.OpCopyBuffer,
		headless.OpBeginRendering,
		headless.OpBindPipeline, headless.OpBindIndexBuffer, headless.OpBindVertexBuffer,
		headless.OpSetDrawIndices, headless.OpDrawIndexed,
		headless.OpSetDrawIndices, headless.OpDrawIndexed,
		headless.OpBindPipeline,
		headless.OpSetDrawIndices, headless.OpDrawIndexed,
		headless.OpEndRendering,
	}, ops(enc))
	assert.Equal(t, Stats{Draws: 3, PipelineBinds: 2, IndexBufferBinds: 1, VertexBufferBinds: 1, Copies: 2}, st)
	assert.Equal(t, uint32(3), f.rs.Counters(0).DrawCalls)

	// the view block reached the device copy
	ub := p.geometry.uniforms.Slot(0).Device()
	got := f.dev.BufferContents(ub)
	require.Len(t, got, int(unsafe.Sizeof(ViewUniforms{})))
	uniforms := *(*ViewUniforms)(unsafe.Pointer(&got[0]))
	assert.True(t, uniforms.ViewProjection.Compare(seen.ViewProjection, 1e-6))

	colour := p.ColourTargets()[0]
	assert.Equal(t, gpu.TargetRenderTarget, f.dev.TargetState(colour.Handle(0)))
	assert.Equal(t, gpu.TargetUninitialized, f.dev.TargetState(colour.Handle(1)))
}

func TestEmptyPassStillClears(t *testing.T) {
	f := newFixture(t)
	p := New(Config{
		Name:      "empty",
		Kind:      KindGeometry,
		Colour:    colourTarget("empty.colour"),
		View:      views.DirectionalLight,
		Collector: func(*CollectContext) { t.Fatal("collector called without a view") },
		Clear:     gpu.ClearValues{Colour: [4]float32{0.1, 0.2, 0.3, 1}},
	})
	f.init(t, p)
	f.prepare(0, p)

	enc, st := f.render(t, 0, p)
	// no view this frame, so no uniform upload either
	assert.Equal(t, []headless.Op{headless.OpBarrier, headless.OpBeginRendering, headless.OpEndRendering}, ops(enc))
	assert.Zero(t, st.Draws)

	begin := enc.Commands()[len(enc.Commands())-2]
	require.Equal(t, headless.OpBeginRendering, begin.Op)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, begin.Attachments.Clear.Colour)
	assert.Equal(t, screen, begin.Attachments.Size)
}

func TestInputsAreSampledAsShaderResources(t *testing.T) {
	f := newFixture(t)
	scene := New(Config{
		Name:      "scene",
		Kind:      KindGeometry,
		Colour:    colourTarget("scene.colour"),
		View:      views.Main,
		Collector: func(*CollectContext) {},
	})
	post := New(Config{
		Name:     "post",
		Kind:     KindFullscreen,
		Colour:   colourTarget("post.colour"),
		Inputs:   []string{"scene"},
		Pipeline: gpu.PipelineDesc{Name: "tonemap"},
	})
	f.init(t, scene)
	f.init(t, post, scene)

	sceneColour := scene.ColourTargets()[0]
	for frameIndex := uint64(0); frameIndex < 4; frameIndex++ {
		f.prepare(frameIndex, scene, post)
		f.render(t, frameIndex, scene)
		assert.Equal(t, gpu.TargetRenderTarget, f.dev.TargetState(sceneColour.Handle(frameIndex)))

		enc, st := f.render(t, frameIndex, post)
		assert.Equal(t, gpu.TargetShaderResource, f.dev.TargetState(sceneColour.Handle(frameIndex)))
		assert.Equal(t, uint32(1), st.Draws)

		last := enc.Commands()[len(enc.Commands())-2]
		assert.Equal(t, headless.OpDraw, last.Op)
		assert.Equal(t, uint32(3), last.Count)
	}
}

func publish(mb *mailbox.Mailbox[math.Vertex2D], lines bool) {
	mb.BeginFrame()
	base := mb.AddVertices(
		math.Vertex2D{Position: math.NewVec2(0, 0)},
		math.Vertex2D{Position: math.NewVec2(10, 0)},
		math.Vertex2D{Position: math.NewVec2(0, 10)},
	)
	first := mb.AddIndices(0, 1, 2)
	mb.AddDrawCall(mailbox.DrawCall{FirstIndex: first, IndexCount: 3, BaseVertex: int32(base), Texture: 4, Clip: mailbox.Rect{X: -5, Y: 5, Width: 1000, Height: 10}})
	if lines {
		first = mb.AddIndices(0, 1)
		mb.AddDrawCall(mailbox.DrawCall{FirstIndex: first, IndexCount: 2, BaseVertex: int32(base), Lines: true})
	}
	mb.EndFrame()
}

func TestCanvasPassConsumesMailbox(t *testing.T) {
	f := newFixture(t)
	mb, err := mailbox.New[math.Vertex2D](mailbox.Config{Name: "ui", MaxVertices: 16, MaxIndices: 16, MaxDrawCalls: 4})
	require.NoError(t, err)

	p := New(Config{
		Name:        "ui",
		Kind:        KindCanvas,
		Colour:      colourTarget("ui.colour"),
		Source:      MailboxSource(mb),
		MaxVertices: 16,
		MaxIndices:  16,
		Pipeline:    gpu.PipelineDesc{Name: "ui", VertexStride: uint32(unsafe.Sizeof(math.Vertex2D{}))},
	})
	f.init(t, p)
	assert.Equal(t, 2, f.dev.LivePipelines())

	// nothing published yet: clear only
	f.prepare(0, p)
	enc, st := f.render(t, 0, p)
	assert.True(t, st.CanvasSkipped)
	assert.Equal(t, []headless.Op{headless.OpBarrier, headless.OpBeginRendering, headless.OpEndRendering}, ops(enc))

	publish(mb, true)
	f.prepare(1, p)
	enc, st = f.render(t, 1, p)
	assert.False(t, st.CanvasSkipped)
	assert.False(t, st.CanvasStale)
	assert.Equal(t, uint32(2), st.Draws)
	assert.Equal(t, uint32(2), st.PipelineBinds)
	assert.Equal(t, uint32(2), st.Copies)

	var scissors []headless.Command
	var draws []headless.Command
	for _, c := range enc.Commands() {
		switch c.Op {
		case headless.OpSetScissor:
			scissors = append(scissors, c)
		case headless.OpDrawIndexed:
			draws = append(draws, c)
		}
	}
	require.Len(t, scissors, 2)
	assert.Equal(t, int32(0), scissors[0].ScissorX)
	assert.Equal(t, int32(5), scissors[0].ScissorY)
	assert.Equal(t, screen.Width, scissors[0].ScissorWidth)
	assert.Equal(t, uint32(10), scissors[0].ScissorHeight)
	assert.Equal(t, screen.Width, scissors[1].ScissorWidth)
	require.Len(t, draws, 2)
	assert.Equal(t, uint32(3), draws[0].Count)
	assert.Equal(t, uint32(3), draws[1].First)

	vb := f.dev.BufferContents(p.canvas.vertices.Slot(1).Device())
	second := (*math.Vertex2D)(unsafe.Pointer(&vb[unsafe.Sizeof(math.Vertex2D{})]))
	assert.Equal(t, math.NewVec2(10, 0), second.Position)

	// nothing new: the stale snapshot is drawn again
	f.prepare(2, p)
	_, st = f.render(t, 2, p)
	assert.True(t, st.CanvasStale)
	assert.Equal(t, uint32(2), st.Draws)
	assert.Equal(t, uint64(1), mb.Stats().Acquired)
	assert.Equal(t, uint64(1), mb.Stats().Stale)
}

func TestResizeRecreatesOnlyFramebufferSizedTargets(t *testing.T) {
	f := newFixture(t)
	p := New(Config{
		Name:      "shadowed",
		Kind:      KindGeometry,
		Colour:    colourTarget("shadowed.colour"),
		Depth:     &TargetConfig{Name: "shadow", Format: gpu.FormatD32, Size: gpu.Size{Width: 1024, Height: 1024}},
		View:      views.Main,
		Collector: func(*CollectContext) {},
	})
	f.init(t, p)
	live := f.dev.LiveTargets()
	colour := p.ColourTargets()[0]
	oldColour := colour.Handle(0)
	oldDepth := p.DepthTarget().Handle(0)

	bigger := gpu.Size{Width: 640, Height: 480}
	require.NoError(t, p.Resize(bigger))
	require.NoError(t, p.Resize(bigger))

	assert.Equal(t, live, f.dev.LiveTargets())
	assert.NotEqual(t, oldColour, colour.Handle(0))
	assert.Equal(t, oldDepth, p.DepthTarget().Handle(0))
	desc, ok := f.dev.TargetDesc(colour.Handle(1))
	require.True(t, ok)
	assert.Equal(t, bigger, desc.Size)
	assert.Equal(t, gpu.Size{Width: 1024, Height: 1024}, p.DepthTarget().Size())
}

func TestUninitReleasesEverything(t *testing.T) {
	f := newFixture(t)
	mb, err := mailbox.New[math.Vertex2D](mailbox.Config{Name: "ui", MaxVertices: 4, MaxIndices: 4, MaxDrawCalls: 1})
	require.NoError(t, err)
	passes := []*Pass{
		New(Config{Name: "scene", Kind: KindGeometry, Colour: colourTarget(""), Depth: &TargetConfig{Format: gpu.FormatD32}, Collector: func(*CollectContext) {}}),
		New(Config{Name: "ui", Kind: KindCanvas, Colour: colourTarget(""), Source: MailboxSource(mb), MaxVertices: 4, MaxIndices: 4, Pipeline: gpu.PipelineDesc{Name: "ui"}}),
		New(Config{Name: "post", Kind: KindFullscreen, Colour: colourTarget(""), Pipeline: gpu.PipelineDesc{Name: "post"}}),
	}
	for _, p := range passes {
		f.init(t, p)
	}
	assert.Greater(t, f.dev.LiveTargets(), 0)
	assert.Greater(t, f.rs.BindlessLive(), 0)

	for i := len(passes) - 1; i >= 0; i-- {
		passes[i].Uninit()
	}
	assert.Zero(t, f.dev.LiveTargets())
	assert.Zero(t, f.dev.LiveBuffers())
	assert.Zero(t, f.dev.LivePipelines())
	assert.Zero(t, f.rs.BindlessLive())
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"no name":        {Kind: KindFullscreen, Colour: colourTarget("c"), Pipeline: gpu.PipelineDesc{Name: "p"}},
		"no targets":     {Name: "x", Kind: KindFullscreen, Pipeline: gpu.PipelineDesc{Name: "p"}},
		"five colours":   {Name: "x", Kind: KindFullscreen, Colour: make([]TargetConfig, 5), Pipeline: gpu.PipelineDesc{Name: "p"}},
		"depth colour":   {Name: "x", Kind: KindFullscreen, Colour: []TargetConfig{{Format: gpu.FormatD32}}, Pipeline: gpu.PipelineDesc{Name: "p"}},
		"no collector":   {Name: "x", Kind: KindGeometry, Colour: colourTarget("c")},
		"no source":      {Name: "x", Kind: KindCanvas, Colour: colourTarget("c"), MaxVertices: 1, MaxIndices: 1},
		"no pipeline":    {Name: "x", Kind: KindFullscreen, Colour: colourTarget("c")},
		"unknown kind":   {Name: "x", Kind: Kind(7), Colour: colourTarget("c")},
		"view too large": {Name: "x", Kind: KindGeometry, Colour: colourTarget("c"), Collector: func(*CollectContext) {}, View: views.MaxViews},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, New(cfg).Validate())
		})
	}

	err := New(Config{Name: "x", Kind: Kind(7), Colour: colourTarget("c")}).Validate()
	assert.True(t, errors.Is(err, ErrUnknownKind))
	k, err := ParseKind("canvas")
	require.NoError(t, err)
	assert.Equal(t, KindCanvas, k)
}

func TestPrepareBeforeInitIsFatal(t *testing.T) {
	p := New(Config{Name: "x", Kind: KindFullscreen})
	assert.Panics(t, func() { p.Prepare(0, PrepareContext{}) })
}
