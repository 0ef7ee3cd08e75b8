package pass

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
)

// CanvasFrame is the render thread's view of one published snapshot.
type CanvasFrame struct {
	Vertices  []byte
	Indices   []uint32
	DrawCalls []mailbox.DrawCall
	Sequence  uint64
	Stale     bool
}

// CanvasSource is the consumer end of a snapshot mailbox. Acquire never
// blocks and reports false until something was published.
type CanvasSource interface {
	Acquire() (CanvasFrame, bool)
	Release()
	VertexStride() uint32
}

type mailboxSource[V any] struct {
	mb   *mailbox.Mailbox[V]
	view mailbox.View[V]
}

// MailboxSource adapts a mailbox of any vertex type to a canvas pass.
func MailboxSource[V any](mb *mailbox.Mailbox[V]) CanvasSource {
	return &mailboxSource[V]{mb: mb}
}

func (s *mailboxSource[V]) Acquire() (CanvasFrame, bool) {
	v, ok := s.mb.TryAcquireLatest()
	if !ok {
		return CanvasFrame{}, false
	}
	s.view = v
	verts := v.Vertices()
	var raw []byte
	if len(verts) > 0 {
		raw = unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(verts))), len(verts)*int(s.VertexStride()))
	}
	return CanvasFrame{
		Vertices:  raw,
		Indices:   v.Indices(),
		DrawCalls: v.DrawCalls(),
		Sequence:  v.Sequence(),
		Stale:     v.Stale,
	}, true
}

func (s *mailboxSource[V]) Release() {
	s.mb.Release(s.view)
	s.view = mailbox.View[V]{}
}

func (s *mailboxSource[V]) VertexStride() uint32 {
	var zero V
	return uint32(unsafe.Sizeof(zero))
}

type canvasState struct {
	vertices *frame.BufferSet
	indices  *frame.BufferSet
	lines    gpu.PipelineHandle
	current  CanvasFrame
	acquired bool
}

func (p *Pass) initCanvas() error {
	stride := uint64(p.cfg.Source.VertexStride())
	vb, err := p.rs.CreateBuffer(gpu.BufferDesc{
		Name:  p.cfg.Name + ".vertices",
		Usage: gpu.BufferUsageVertex,
		Size:  uint64(p.cfg.MaxVertices) * stride,
	})
	if err != nil {
		return fmt.Errorf("pass %s: %w", p.cfg.Name, err)
	}
	p.canvas.vertices = vb
	ib, err := p.rs.CreateBuffer(gpu.BufferDesc{
		Name:  p.cfg.Name + ".indices",
		Usage: gpu.BufferUsageIndex,
		Size:  uint64(p.cfg.MaxIndices) * uint64(unsafe.Sizeof(uint32(0))),
	})
	if err != nil {
		return fmt.Errorf("pass %s: %w", p.cfg.Name, err)
	}
	p.canvas.indices = ib

	if p.cfg.Pipeline.Name != "" {
		desc := p.pipelineDesc(p.cfg.Pipeline)
		desc.Name += ".lines"
		desc.Topology = gpu.TopologyLineList
		h, err := p.device.CreatePipeline(desc)
		if err != nil {
			return fmt.Errorf("pass %s line pipeline: %w", p.cfg.Name, err)
		}
		p.canvas.lines = h
	}
	return nil
}

func (p *Pass) uninitCanvas() {
	if p.canvas.acquired {
		p.releaseCanvas()
	}
	if p.canvas.lines != 0 {
		p.device.DestroyPipeline(p.canvas.lines)
		p.canvas.lines = 0
	}
	if p.canvas.indices != nil {
		p.rs.DestroyBuffer(p.canvas.indices)
		p.canvas.indices = nil
	}
	if p.canvas.vertices != nil {
		p.rs.DestroyBuffer(p.canvas.vertices)
		p.canvas.vertices = nil
	}
}

// uploadCanvas takes the newest snapshot and copies it into this slot's
// buffers. A stale snapshot is drawn again.
func (p *Pass) uploadCanvas(frameIndex uint64, enc gpu.Encoder) {
	f, ok := p.cfg.Source.Acquire()
	if !ok {
		p.stats.CanvasSkipped = true
		return
	}
	p.canvas.current = f
	p.canvas.acquired = true
	p.stats.CanvasStale = f.Stale
	if len(f.DrawCalls) == 0 {
		return
	}

	vb := p.canvas.vertices.Slot(frameIndex)
	ib := p.canvas.indices.Slot(frameIndex)
	vb.Write(0, f.Vertices)
	frame.WriteValues(ib, 0, f.Indices)
	if vb.IssueCopy(enc) {
		p.stats.Copies++
	}
	if ib.IssueCopy(enc) {
		p.stats.Copies++
	}
	c := p.rs.Counters(frameIndex)
	c.Vertices += uint32(len(f.Vertices)) / p.cfg.Source.VertexStride()
	c.Indices += uint32(len(f.Indices))
}

func (p *Pass) releaseCanvas() {
	p.cfg.Source.Release()
	p.canvas.current = CanvasFrame{}
	p.canvas.acquired = false
}

// renderCanvas draws the snapshot's calls in submission order.
func (p *Pass) renderCanvas(frameIndex uint64, enc gpu.Encoder, size gpu.Size) {
	if !p.canvas.acquired {
		return
	}
	defer p.releaseCanvas()

	f := p.canvas.current
	if len(f.DrawCalls) == 0 {
		return
	}
	enc.BindVertexBuffer(p.canvas.vertices.Slot(frameIndex).Device(), 0, p.cfg.Source.VertexStride())
	enc.BindIndexBuffer(p.canvas.indices.Slot(frameIndex).Device(), 0)
	p.stats.VertexBufferBinds++
	p.stats.IndexBufferBinds++

	bound := gpu.PipelineHandle(0)
	for _, dc := range f.DrawCalls {
		pl := p.pipeline
		if dc.Lines {
			pl = p.canvas.lines
		}
		if pl != 0 && pl != bound {
			enc.BindPipeline(pl)
			p.stats.PipelineBinds++
			bound = pl
		}
		x, y, w, h := scissor(dc.Clip, size)
		enc.SetScissor(x, y, w, h)
		enc.SetDrawIndices(0, dc.Texture, 0)
		enc.DrawIndexed(dc.IndexCount, 1, dc.FirstIndex, dc.BaseVertex, 0)
		p.stats.Draws++
	}
}

// scissor clamps a clip rectangle to the render area. An empty clip covers
// the whole area.
func scissor(r mailbox.Rect, size gpu.Size) (int32, int32, uint32, uint32) {
	if r.Width <= 0 || r.Height <= 0 {
		return 0, 0, size.Width, size.Height
	}
	w, h := float32(size.Width), float32(size.Height)
	x0 := math.Clamp(r.X, 0, w)
	y0 := math.Clamp(r.Y, 0, h)
	x1 := math.Clamp(r.X+r.Width, 0, w)
	y1 := math.Clamp(r.Y+r.Height, 0, h)
	return int32(x0), int32(y0), uint32(x1 - x0), uint32(y1 - y0)
}
