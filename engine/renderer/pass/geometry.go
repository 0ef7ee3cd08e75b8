package pass

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/drawstream"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

// ViewUniforms is the per-view block a geometry pass uploads every frame.
type ViewUniforms struct {
	View           math.Mat4
	Projection     math.Mat4
	ViewProjection math.Mat4
	Position       math.Vec4
}

type geometryState struct {
	streams  [frame.MaxFramesInFlight]drawstream.Stream
	hasView  [frame.MaxFramesInFlight]bool
	uploads  [frame.MaxFramesInFlight][]*frame.Buffer
	uniforms *frame.BufferSet
}

func (p *Pass) initGeometry() error {
	if p.cfg.MaxCommands <= 0 {
		p.cfg.MaxCommands = DefaultMaxCommands
	}
	bs, err := p.rs.CreateBuffer(gpu.BufferDesc{
		Name:  p.cfg.Name + ".view",
		Usage: gpu.BufferUsageUniform,
		Size:  uint64(unsafe.Sizeof(ViewUniforms{})),
	})
	if err != nil {
		return fmt.Errorf("pass %s: %w", p.cfg.Name, err)
	}
	p.geometry.uniforms = bs
	return nil
}

func (p *Pass) uninitGeometry() {
	if p.geometry.uniforms != nil {
		p.rs.DestroyBuffer(p.geometry.uniforms)
		p.geometry.uniforms = nil
	}
	for i := range p.geometry.streams {
		p.geometry.streams[i].Reset()
		p.geometry.uploads[i] = nil
	}
}

// Stream returns the draw stream prepared for frameIndex.
func (p *Pass) Stream(frameIndex uint64) *drawstream.Stream {
	return &p.geometry.streams[p.rs.Slot(frameIndex)]
}

func (p *Pass) prepareGeometry(frameIndex uint64, ctx PrepareContext) {
	slot := p.rs.Slot(frameIndex)
	s := &p.geometry.streams[slot]
	s.Prepare(p.rs.Allocator(frameIndex), p.cfg.MaxCommands)
	p.geometry.uploads[slot] = p.geometry.uploads[slot][:0]

	view, ok := ctx.Views.Get(p.cfg.View)
	p.geometry.hasView[slot] = ok
	if !ok {
		core.LogDebug("pass %s: view %s not generated for frame %d", p.cfg.Name, p.cfg.View, frameIndex)
		return
	}

	ub := p.geometry.uniforms.Slot(frameIndex)
	u := [1]ViewUniforms{{
		View:           view.View,
		Projection:     view.Projection,
		ViewProjection: view.ViewProjection,
		Position:       view.Position.ToVec4(1),
	}}
	frame.WriteValues(ub, 0, u[:])

	p.cfg.Collector(&CollectContext{
		FrameIndex:   frameIndex,
		View:         view,
		Views:        ctx.Views,
		Stream:       s,
		Resources:    ctx.Resources,
		ViewUniforms: ub.BindlessIndex(),
		uploads:      &p.geometry.uploads[slot],
	})

	if p.cfg.SortByDistance {
		s.BuildByDistance()
	} else {
		s.Build()
	}
	p.rs.Counters(frameIndex).DrawCalls += uint32(s.Len())
}

func (p *Pass) uploadGeometry(frameIndex uint64, enc gpu.Encoder) {
	slot := p.rs.Slot(frameIndex)
	if p.geometry.uniforms.Slot(frameIndex).IssueCopy(enc) {
		p.stats.Copies++
	}
	for _, b := range p.geometry.uploads[slot] {
		if b.IssueCopy(enc) {
			p.stats.Copies++
		}
	}
}

func (p *Pass) renderGeometry(frameIndex uint64, enc gpu.Encoder) {
	slot := p.rs.Slot(frameIndex)
	if !p.geometry.hasView[slot] {
		return
	}
	st := p.geometry.streams[slot].Draw(enc)
	p.stats.Draws = st.Draws
	p.stats.PipelineBinds = st.PipelineBinds
	p.stats.IndexBufferBinds = st.IndexBufferBinds
	p.stats.VertexBufferBinds = st.VertexBufferBinds
}
