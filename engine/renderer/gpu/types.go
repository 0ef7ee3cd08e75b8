package gpu

import "fmt"

// Handles are opaque backend ids. Zero is never a valid handle.
type (
	BufferHandle    uint32
	TargetHandle    uint32
	PipelineHandle  uint32
	SemaphoreHandle uint32
	TableHandle     uint32
)

type Size struct {
	Width  uint32
	Height uint32
}

func (s Size) Empty() bool {
	return s.Width == 0 || s.Height == 0
}

func (s Size) Aspect() float32 {
	if s.Height == 0 {
		return 1
	}
	return float32(s.Width) / float32(s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8
	FormatRGBA16F
	FormatR8
	FormatD32
)

func (f Format) IsDepth() bool {
	return f == FormatD32
}

func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatRGBA16F:
		return "rgba16f"
	case FormatR8:
		return "r8"
	case FormatD32:
		return "d32"
	}
	return "undefined"
}

// ParseFormat accepts the names produced by Format.String.
func ParseFormat(s string) (Format, error) {
	for f := FormatRGBA8; f <= FormatD32; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return FormatUndefined, fmt.Errorf("unknown format %q", s)
}

type BufferUsage int

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
)

type BufferDesc struct {
	Name  string
	Usage BufferUsage
	Size  uint64
}

type TargetDesc struct {
	Name   string
	Format Format
	Size   Size
}

type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyLineList
)

type PipelineDesc struct {
	Name         string
	VertexStride uint32
	// Attribute byte offsets inside one vertex; each is read as a vec of
	// the matching size in AttributeComponents.
	AttributeOffsets    []uint32
	AttributeComponents []uint32
	Topology            Topology
	Blend               bool
	DepthTest           bool
	ColourFormats       []Format
	DepthFormat         Format
	// SPIR-V modules. Backends that do not execute shaders ignore them.
	VertexShader   []byte
	FragmentShader []byte
}

// TableDesc describes a bindless table of storage buffers, addressed in
// shaders by binding index.
type TableDesc struct {
	Name    string
	Buffers []BufferHandle
}

type ClearValues struct {
	Colour [4]float32
	Depth  float32
}

// Attachments is the set of targets a pass renders into.
type Attachments struct {
	Colour []TargetHandle
	Depth  TargetHandle
	Size   Size
	Clear  ClearValues
}

type SemaphoreValue struct {
	Semaphore SemaphoreHandle
	Value     uint64
}

// Submission hands one recorded encoder to the queue. Waits must all be
// satisfied before the work starts; Signal, when set, is raised on completion.
// The last submission of a frame slot carries the slot fence.
type Submission struct {
	Encoder Encoder
	Slot    int
	Waits   []SemaphoreValue
	Signal  SemaphoreValue
	Last    bool
}
