package pass

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/drawstream"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/views"
)

const (
	MaxColourTargets   = 4
	DefaultMaxCommands = 1024
)

var (
	ErrNoTargets      = errors.New("pass has no colour or depth target")
	ErrUnknownKind    = errors.New("unknown pass kind")
	ErrNotInitialized = errors.New("pass used before Init")
)

// Kind selects the behaviour of a pass. The set is closed.
type Kind int

const (
	KindGeometry Kind = iota
	KindCanvas
	KindFullscreen
)

func (k Kind) String() string {
	switch k {
	case KindGeometry:
		return "geometry"
	case KindCanvas:
		return "canvas"
	case KindFullscreen:
		return "fullscreen"
	}
	return "unknown"
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := KindGeometry; k <= KindFullscreen; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownKind)
}

type TargetConfig struct {
	Name   string
	Format gpu.Format
	// Size pins the target to a fixed size, e.g. a shadow map. A zero size
	// follows the framebuffer.
	Size gpu.Size
}

// CollectContext is handed to a geometry pass's Collector once per frame.
type CollectContext struct {
	FrameIndex uint64
	View       views.View
	Views      *views.Set
	Stream     *drawstream.Stream
	Resources  *frame.ResourceSet
	// ViewUniforms is the bindless index of the view uniform block of this
	// frame slot.
	ViewUniforms uint32

	uploads *[]*frame.Buffer
}

// Upload schedules the staging to device copy of b when the pass renders.
// b must belong to the slot of FrameIndex.
func (c *CollectContext) Upload(b *frame.Buffer) {
	*c.uploads = append(*c.uploads, b)
}

// Collector fills a geometry pass's draw stream. It runs on the producer
// goroutine.
type Collector func(ctx *CollectContext)

type Config struct {
	Name   string
	Kind   Kind
	Colour []TargetConfig
	Depth  *TargetConfig
	// Inputs names earlier passes whose targets this pass samples.
	Inputs []string
	Clear  gpu.ClearValues
	// Pipeline is created at Init with the pass's target formats filled in.
	// Canvas passes also get a line-list variant of it.
	Pipeline gpu.PipelineDesc

	// Geometry
	View           views.ID
	Collector      Collector
	MaxCommands    int
	SortByDistance bool

	// Canvas
	Source      CanvasSource
	MaxVertices int
	MaxIndices  int
}

// InitContext carries what a pass needs to create its resources.
type InitContext struct {
	Device    gpu.Device
	Resources *frame.ResourceSet
	// Inputs are the passes named in Config.Inputs, in the same order.
	Inputs []*Pass
}

type PrepareContext struct {
	Views     *views.Set
	Resources *frame.ResourceSet
}

// SharedBindings are bound by every pass of a frame.
type SharedBindings struct {
	Table gpu.TableHandle
}

// Stats describes the last Render of a pass.
type Stats struct {
	Draws             uint32
	PipelineBinds     uint32
	IndexBufferBinds  uint32
	VertexBufferBinds uint32
	Copies            uint32
	// CanvasSkipped is set when a canvas had nothing published yet.
	CanvasSkipped bool
	CanvasStale   bool
}

// Pass is one node of the frame pipeline. Every kind shares the same
// surface; kind specific state lives in the geometry and canvas fields and
// is dispatched by switch.
type Pass struct {
	cfg    Config
	device gpu.Device
	rs     *frame.ResourceSet
	inputs []*Pass

	colour      []*frame.TargetSet
	depth       *frame.TargetSet
	pipeline    gpu.PipelineHandle
	initialized bool
	stats       Stats

	geometry geometryState
	canvas   canvasState
}

func New(cfg Config) *Pass {
	return &Pass{cfg: cfg}
}

func (p *Pass) Name() string {
	return p.cfg.Name
}

func (p *Pass) Kind() Kind {
	return p.cfg.Kind
}

func (p *Pass) Config() Config {
	return p.cfg
}

func (p *Pass) Inputs() []string {
	return p.cfg.Inputs
}

func (p *Pass) ColourTargets() []*frame.TargetSet {
	return p.colour
}

func (p *Pass) DepthTarget() *frame.TargetSet {
	return p.depth
}

func (p *Pass) Pipeline() gpu.PipelineHandle {
	return p.pipeline
}

func (p *Pass) Stats() Stats {
	return p.stats
}

// Validate checks the parts of the configuration that do not depend on
// other passes.
func (p *Pass) Validate() error {
	if p.cfg.Name == "" {
		return fmt.Errorf("pass without a name: %w", core.ErrInvalidConfig)
	}
	if len(p.cfg.Colour) > MaxColourTargets {
		return fmt.Errorf("pass %s has %d colour targets, max %d: %w", p.cfg.Name, len(p.cfg.Colour), MaxColourTargets, core.ErrInvalidConfig)
	}
	if len(p.cfg.Colour) == 0 && p.cfg.Depth == nil {
		return fmt.Errorf("pass %s: %w", p.cfg.Name, ErrNoTargets)
	}
	for _, t := range p.cfg.Colour {
		if t.Format.IsDepth() || t.Format == gpu.FormatUndefined {
			return fmt.Errorf("pass %s: colour target %s has format %s: %w", p.cfg.Name, t.Name, t.Format, core.ErrInvalidConfig)
		}
	}
	if p.cfg.Depth != nil && !p.cfg.Depth.Format.IsDepth() {
		return fmt.Errorf("pass %s: depth target %s has format %s: %w", p.cfg.Name, p.cfg.Depth.Name, p.cfg.Depth.Format, core.ErrInvalidConfig)
	}
	switch p.cfg.Kind {
	case KindGeometry:
		if p.cfg.Collector == nil {
			return fmt.Errorf("geometry pass %s has no collector: %w", p.cfg.Name, core.ErrInvalidConfig)
		}
		if p.cfg.View < 0 || p.cfg.View >= views.MaxViews {
			return fmt.Errorf("geometry pass %s uses view %d: %w", p.cfg.Name, p.cfg.View, core.ErrInvalidConfig)
		}
	case KindCanvas:
		if p.cfg.Source == nil {
			return fmt.Errorf("canvas pass %s has no source: %w", p.cfg.Name, core.ErrInvalidConfig)
		}
		if p.cfg.MaxVertices <= 0 || p.cfg.MaxIndices <= 0 {
			return fmt.Errorf("canvas pass %s needs vertex and index capacities: %w", p.cfg.Name, core.ErrInvalidConfig)
		}
	case KindFullscreen:
		if p.cfg.Pipeline.Name == "" {
			return fmt.Errorf("fullscreen pass %s has no pipeline: %w", p.cfg.Name, core.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("pass %s kind %d: %w", p.cfg.Name, p.cfg.Kind, ErrUnknownKind)
	}
	return nil
}

// Init creates the pass's targets, pipelines and buffers for every frame
// slot.
func (p *Pass) Init(ctx InitContext) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.device = ctx.Device
	p.rs = ctx.Resources
	p.inputs = ctx.Inputs

	for _, tc := range p.cfg.Colour {
		ts, err := p.createTarget(tc)
		if err != nil {
			p.Uninit()
			return err
		}
		p.colour = append(p.colour, ts)
	}
	if p.cfg.Depth != nil {
		ts, err := p.createTarget(*p.cfg.Depth)
		if err != nil {
			p.Uninit()
			return err
		}
		p.depth = ts
	}

	if p.cfg.Pipeline.Name != "" {
		h, err := p.device.CreatePipeline(p.pipelineDesc(p.cfg.Pipeline))
		if err != nil {
			p.Uninit()
			return fmt.Errorf("pass %s pipeline: %w", p.cfg.Name, err)
		}
		p.pipeline = h
	}

	var err error
	switch p.cfg.Kind {
	case KindGeometry:
		err = p.initGeometry()
	case KindCanvas:
		err = p.initCanvas()
	}
	if err != nil {
		p.Uninit()
		return err
	}
	p.initialized = true
	core.LogDebug("pass %s (%s) initialized with %d colour targets", p.cfg.Name, p.cfg.Kind, len(p.colour))
	return nil
}

func (p *Pass) createTarget(tc TargetConfig) (*frame.TargetSet, error) {
	name := tc.Name
	if name == "" {
		name = fmt.Sprintf("%s.%s", p.cfg.Name, tc.Format)
	}
	desc := gpu.TargetDesc{Name: name, Format: tc.Format, Size: tc.Size}
	ts, err := p.rs.CreateTarget(desc, tc.Size.Empty())
	if err != nil {
		return nil, fmt.Errorf("pass %s: %w", p.cfg.Name, err)
	}
	return ts, nil
}

// pipelineDesc fills in the formats of the pass's own targets.
func (p *Pass) pipelineDesc(desc gpu.PipelineDesc) gpu.PipelineDesc {
	desc.ColourFormats = make([]gpu.Format, len(p.cfg.Colour))
	for i, tc := range p.cfg.Colour {
		desc.ColourFormats[i] = tc.Format
	}
	desc.DepthFormat = gpu.FormatUndefined
	if p.cfg.Depth != nil {
		desc.DepthFormat = p.cfg.Depth.Format
	}
	return desc
}

// Uninit releases everything Init created. It is safe on a partially
// initialized pass.
func (p *Pass) Uninit() {
	if p.rs == nil {
		return
	}
	switch p.cfg.Kind {
	case KindGeometry:
		p.uninitGeometry()
	case KindCanvas:
		p.uninitCanvas()
	}
	if p.pipeline != 0 {
		p.device.DestroyPipeline(p.pipeline)
		p.pipeline = 0
	}
	if p.depth != nil {
		p.rs.DestroyTarget(p.depth)
		p.depth = nil
	}
	for i := len(p.colour) - 1; i >= 0; i-- {
		p.rs.DestroyTarget(p.colour[i])
	}
	p.colour = nil
	p.initialized = false
}

// Prepare runs on the producer goroutine and fills the CPU side of the
// slot of frameIndex.
func (p *Pass) Prepare(frameIndex uint64, ctx PrepareContext) {
	core.Assertf(p.initialized, ErrNotInitialized, "pass %s", p.cfg.Name)
	switch p.cfg.Kind {
	case KindGeometry:
		p.prepareGeometry(frameIndex, ctx)
	case KindCanvas, KindFullscreen:
	}
}

// Render records the pass into enc. A pass with nothing to draw still
// transitions and clears its targets.
func (p *Pass) Render(frameIndex uint64, enc gpu.Encoder, targetSize gpu.Size, shared *SharedBindings) Stats {
	core.Assertf(p.initialized, ErrNotInitialized, "pass %s", p.cfg.Name)
	p.stats = Stats{}

	for _, in := range p.inputs {
		in.transitionTargets(enc, frameIndex, gpu.TargetShaderResource)
	}
	p.transitionTargets(enc, frameIndex, gpu.TargetRenderTarget)

	// uploads are recorded outside the render area
	switch p.cfg.Kind {
	case KindGeometry:
		p.uploadGeometry(frameIndex, enc)
	case KindCanvas:
		p.uploadCanvas(frameIndex, enc)
	}

	att := p.attachments(frameIndex, targetSize)
	enc.BeginRendering(att)
	if shared != nil && shared.Table != 0 {
		enc.BindTable(shared.Table)
	}
	switch p.cfg.Kind {
	case KindGeometry:
		p.renderGeometry(frameIndex, enc)
	case KindCanvas:
		p.renderCanvas(frameIndex, enc, att.Size)
	case KindFullscreen:
		p.renderFullscreen(enc)
	}
	enc.EndRendering()
	return p.stats
}

func (p *Pass) transitionTargets(enc gpu.Encoder, frameIndex uint64, to gpu.TargetState) {
	for _, ts := range p.colour {
		ts.Transition(enc, frameIndex, to)
	}
	if p.depth != nil {
		p.depth.Transition(enc, frameIndex, to)
	}
}

// renderSize is the size of the pass's own targets, which differs from the
// framebuffer for fixed-size targets.
func (p *Pass) renderSize(targetSize gpu.Size) gpu.Size {
	if len(p.colour) > 0 {
		return p.colour[0].Size()
	}
	if p.depth != nil {
		return p.depth.Size()
	}
	return targetSize
}

func (p *Pass) attachments(frameIndex uint64, targetSize gpu.Size) gpu.Attachments {
	att := gpu.Attachments{
		Colour: make([]gpu.TargetHandle, len(p.colour)),
		Size:   p.renderSize(targetSize),
		Clear:  p.cfg.Clear,
	}
	for i, ts := range p.colour {
		att.Colour[i] = ts.Handle(frameIndex)
	}
	if p.depth != nil {
		att.Depth = p.depth.Handle(frameIndex)
	}
	return att
}

// Resize recreates the pass's framebuffer-sized targets. The caller makes
// sure the GPU no longer uses them.
func (p *Pass) Resize(size gpu.Size) error {
	for _, ts := range p.colour {
		if err := ts.Resize(size); err != nil {
			return fmt.Errorf("pass %s: %w", p.cfg.Name, err)
		}
	}
	if p.depth != nil {
		if err := p.depth.Resize(size); err != nil {
			return fmt.Errorf("pass %s: %w", p.cfg.Name, err)
		}
	}
	return nil
}
