package views

import (
	"fmt"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/components"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

// ID addresses a view slot. The first slots have fixed meanings, the rest
// are free for passes that need extra views.
type ID int

const (
	Main ID = iota
	DirectionalLight
	Light0
	Light1
	Light2
	Light3
	Light4
	Light5
	Light6
	Light7
	FirstFree

	MaxLights = int(Light7-Light0) + 1
	MaxViews  = 24
)

// LightID returns the view of the i-th point or spot light.
func LightID(i int) ID {
	core.Assertf(i >= 0 && i < MaxLights, core.ErrCapacityExceeded, "light view %d of %d", i, MaxLights)
	return Light0 + ID(i)
}

func (id ID) String() string {
	switch {
	case id == Main:
		return "main"
	case id == DirectionalLight:
		return "directional-light"
	case id >= Light0 && id <= Light7:
		return fmt.Sprintf("light-%d", id-Light0)
	}
	return fmt.Sprintf("view-%d", int(id))
}

// View is immutable once generated for a frame.
type View struct {
	ID             ID
	Position       math.Vec3
	Orientation    math.Quaternion
	Resolution     gpu.Size
	View           math.Mat4
	Projection     math.Mat4
	ViewProjection math.Mat4
	Frustum        Frustum
}

// Set holds the views of one frame. It is owned by the producer goroutine.
type Set struct {
	views   [MaxViews]View
	present [MaxViews]bool
	count   int
}

func NewSet() *Set {
	return &Set{}
}

func (s *Set) Reset() {
	s.present = [MaxViews]bool{}
	s.count = 0
}

// GenerateView builds and stores the view id for the camera interpolated
// by alpha between its previous and current tick.
func (s *Set) GenerateView(id ID, camera components.CameraState, resolution gpu.Size, alpha float32) View {
	core.Assertf(id >= 0 && int(id) < MaxViews, core.ErrCapacityExceeded, "view id %d of %d", id, MaxViews)

	pose := camera.Interpolate(alpha)
	v := View{
		ID:          id,
		Position:    pose.Position,
		Orientation: pose.Orientation,
		Resolution:  resolution,
		View:        pose.World().Inverse(),
		Projection:  projection(camera, resolution),
	}
	v.ViewProjection = v.View.Mul(v.Projection)
	v.Frustum = ExtractFrustum(v.ViewProjection)

	if !s.present[id] {
		s.present[id] = true
		s.count++
	}
	s.views[id] = v
	return v
}

func projection(camera components.CameraState, resolution gpu.Size) math.Mat4 {
	aspect := resolution.Aspect()
	if camera.Projection == components.ProjectionOrthographic {
		h := camera.OrthoHalfHeight
		return math.NewMat4Orthographic(-h*aspect, h*aspect, -h, h, camera.Near, camera.Far)
	}
	return math.NewMat4Perspective(camera.FOV, aspect, camera.Near, camera.Far)
}

func (s *Set) Get(id ID) (View, bool) {
	if id < 0 || int(id) >= MaxViews || !s.present[id] {
		return View{}, false
	}
	return s.views[id], true
}

func (s *Set) Count() int {
	return s.count
}

// VisibilityTestAnyView is false only when box is outside every view. Shared
// shadow casters therefore survive as long as one view can see them.
func (s *Set) VisibilityTestAnyView(box math.Extents3D) bool {
	for i := range s.views {
		if s.present[i] && !s.views[i].Frustum.Outside(box) {
			return true
		}
	}
	return false
}

// VisibilityTestView tests one view. Views not generated this frame see
// nothing.
func (s *Set) VisibilityTestView(box math.Extents3D, id ID) bool {
	if id < 0 || int(id) >= MaxViews || !s.present[id] {
		return false
	}
	return !s.views[id].Frustum.Outside(box)
}

// VisibilityMask returns one bit per view that can see box.
func (s *Set) VisibilityMask(box math.Extents3D) uint32 {
	var mask uint32
	for i := range s.views {
		if s.present[i] && !s.views[i].Frustum.Outside(box) {
			mask |= 1 << uint(i)
		}
	}
	return mask
}
