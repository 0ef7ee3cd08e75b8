package testbed

import (
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/drawstream"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
)

const (
	gridSize     = 5
	gridSpacing  = 3.0
	cubeHalfSize = 0.5
)

// material is one entry of the shared material table.
type material struct {
	Colour math.Vec4
}

// entity is the per-object data the geometry shader reads by EntityIndex.
type entity struct {
	Model math.Mat4
}

var materials = []material{
	{Colour: math.NewVec4(0.90, 0.30, 0.25, 1)},
	{Colour: math.NewVec4(0.25, 0.75, 0.40, 1)},
	{Colour: math.NewVec4(0.30, 0.45, 0.90, 1)},
	{Colour: math.NewVec4(0.95, 0.85, 0.30, 1)},
}

type sceneObject struct {
	transform *math.Transform
	material  uint32
	spin      float32
}

// sceneStats is what the last collection saw.
type sceneStats struct {
	Visible uint32
	Culled  uint32
}

// scene owns the static cube mesh and a grid of spinning instances. All of
// its methods run on the producer goroutine.
type scene struct {
	vertices *frame.BufferSet
	indices  *frame.BufferSet
	// objects holds the material table followed by one entity per object.
	objects *frame.BufferSet

	pipeline    gpu.PipelineHandle
	bounds      math.Extents3D
	indexCount  uint32
	entityStart uint64

	items    []sceneObject
	entities []entity
	stats    sceneStats
}

func newScene() *scene {
	s := &scene{
		bounds: math.NewExtents3D(math.NewVec3Zero(), math.NewVec3(cubeHalfSize, cubeHalfSize, cubeHalfSize)),
	}
	offset := float32(gridSize-1) * gridSpacing / 2
	for x := 0; x < gridSize; x++ {
		for z := 0; z < gridSize; z++ {
			i := x*gridSize + z
			pos := math.NewVec3(float32(x)*gridSpacing-offset, 0, float32(z)*gridSpacing-offset)
			s.items = append(s.items, sceneObject{
				transform: math.NewTransformFromPositionRotationScale(pos, math.NewQuatIdentity(), math.NewVec3One()),
				material:  uint32(i % len(materials)),
				spin:      0.5 + float32(i%3)*0.25,
			})
		}
	}
	s.entities = make([]entity, len(s.items))
	return s
}

// upload creates the per-slot buffers and writes the static data into each
// slot. The copies are issued the first time a frame of that slot collects.
func (s *scene) upload(rs *frame.ResourceSet, pipeline gpu.PipelineHandle) error {
	s.pipeline = pipeline
	vertices, indices := cubeGeometry(cubeHalfSize)
	s.indexCount = uint32(len(indices))

	var err error
	if s.vertices, err = rs.CreateBuffer(gpu.BufferDesc{
		Name:  "scene.vertices",
		Usage: gpu.BufferUsageVertex,
		Size:  uint64(len(vertices)) * uint64(unsafe.Sizeof(math.Vertex3D{})),
	}); err != nil {
		return err
	}
	if s.indices, err = rs.CreateBuffer(gpu.BufferDesc{
		Name:  "scene.indices",
		Usage: gpu.BufferUsageIndex,
		Size:  uint64(len(indices)) * 4,
	}); err != nil {
		return err
	}
	s.entityStart = uint64(len(materials)) * uint64(unsafe.Sizeof(material{}))
	if s.objects, err = rs.CreateBuffer(gpu.BufferDesc{
		Name:  "scene.objects",
		Usage: gpu.BufferUsageStorage,
		Size:  s.entityStart + uint64(len(s.items))*uint64(unsafe.Sizeof(entity{})),
	}); err != nil {
		return err
	}

	for i := 0; i < rs.FramesInFlight(); i++ {
		frame.WriteValues(s.vertices.Slot(uint64(i)), 0, vertices)
		frame.WriteValues(s.indices.Slot(uint64(i)), 0, indices)
		frame.WriteValues(s.objects.Slot(uint64(i)), 0, materials)
	}
	return nil
}

// update spins every object around its local up axis.
func (s *scene) update(deltaTime float32) {
	up := math.NewVec3(0, 1, 0)
	for _, obj := range s.items {
		obj.transform.Rotate(math.NewQuatFromAxisAngle(up, obj.spin*deltaTime, true))
	}
}

// collect is the geometry pass collector: it culls against the pass's view
// and adds one draw per visible cube.
func (s *scene) collect(ctx *pass.CollectContext) {
	vertices := s.vertices.Slot(ctx.FrameIndex)
	indices := s.indices.Slot(ctx.FrameIndex)
	objects := s.objects.Slot(ctx.FrameIndex)

	stats := sceneStats{}
	for i, obj := range s.items {
		world := obj.transform.GetWorld()
		s.entities[i].Model = world

		box := s.bounds.Transform(world)
		if !ctx.Views.VisibilityTestView(box, ctx.View.ID) {
			stats.Culled++
			continue
		}
		stats.Visible++
		ctx.Stream.Add(drawstream.Command{
			IndexCount:    s.indexCount,
			InstanceCount: 1,
			MaterialIndex: obj.material,
			EntityIndex:   uint32(i),
			VertexBuffer:  vertices.Device(),
			IndexBuffer:   indices.Device(),
			Pipeline:      s.pipeline,
			VertexStride:  uint16(unsafe.Sizeof(math.Vertex3D{})),
			Distance:      ctx.View.Position.Distance(box.Center()),
		})
	}
	frame.WriteValues(objects, s.entityStart, s.entities)

	ctx.Upload(vertices)
	ctx.Upload(indices)
	ctx.Upload(objects)
	s.stats = stats
}

// cubeGeometry builds an axis aligned cube with one quad per face so every
// face gets its own normal.
func cubeGeometry(halfSize float32) ([]math.Vertex3D, []uint32) {
	faces := []struct {
		normal, u, v math.Vec3
	}{
		{math.NewVec3(0, 0, 1), math.NewVec3(1, 0, 0), math.NewVec3(0, 1, 0)},
		{math.NewVec3(0, 0, -1), math.NewVec3(-1, 0, 0), math.NewVec3(0, 1, 0)},
		{math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1), math.NewVec3(0, 1, 0)},
		{math.NewVec3(-1, 0, 0), math.NewVec3(0, 0, 1), math.NewVec3(0, 1, 0)},
		{math.NewVec3(0, 1, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1)},
		{math.NewVec3(0, -1, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 0, 1)},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	vertices := make([]math.Vertex3D, 0, len(faces)*4)
	indices := make([]uint32, 0, len(faces)*6)
	white := math.NewVec4(1, 1, 1, 1)
	for _, f := range faces {
		base := uint32(len(vertices))
		for _, c := range corners {
			pos := f.normal.Add(f.u.MulScalar(c[0])).Add(f.v.MulScalar(c[1])).MulScalar(halfSize)
			vertices = append(vertices, math.Vertex3D{
				Position: pos,
				Normal:   f.normal,
				Texcoord: math.NewVec2((c[0]+1)/2, (c[1]+1)/2),
				Colour:   white,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}
