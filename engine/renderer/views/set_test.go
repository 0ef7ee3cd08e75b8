package views

import (
	"errors"
	"io"
	"testing"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/components"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resolution = gpu.Size{Width: 800, Height: 800}

func cameraAt(x float32) components.CameraState {
	pose := components.Pose{Position: math.Vec3{X: x}, Orientation: math.NewQuatIdentity()}
	return components.CameraState{
		Previous:   pose,
		Current:    pose,
		Projection: components.ProjectionPerspective,
		FOV:        math.DegToRad(90),
		Near:       0.1,
		Far:        100,
	}
}

func box(center math.Vec3, half float32) math.Extents3D {
	return math.NewExtents3D(center, math.Vec3{X: half, Y: half, Z: half})
}

func TestGenerateViewInterpolatesPose(t *testing.T) {
	cam := cameraAt(0)
	cam.Current = components.Pose{
		Position:    math.Vec3{X: 10, Y: 2},
		Orientation: math.NewQuatFromAxisAngle(math.NewVec3Up(), math.DegToRad(90), true),
	}

	s := NewSet()
	v0 := s.GenerateView(Main, cam, resolution, 0)
	assert.True(t, v0.Position.Compare(cam.Previous.Position, 1e-6))
	assert.InDelta(t, 1.0, float64(v0.Orientation.Dot(cam.Previous.Orientation)), 1e-5)
	assert.True(t, v0.View.Compare(math.NewMat4Identity(), 1e-5))

	v1 := s.GenerateView(Main, cam, resolution, 1)
	assert.True(t, v1.Position.Compare(cam.Current.Position, 1e-5))
	assert.InDelta(t, 1.0, float64(v1.Orientation.Dot(cam.Current.Orientation)), 1e-5)
	assert.True(t, v1.View.Compare(cam.Current.World().Inverse(), 1e-5))

	half := s.GenerateView(Main, cam, resolution, 0.5)
	assert.True(t, half.Position.Compare(math.Vec3{X: 5, Y: 1}, 1e-5))

	// regenerating an id replaces it
	assert.Equal(t, 1, s.Count())
	got, ok := s.Get(Main)
	require.True(t, ok)
	assert.Equal(t, half, got)
}

func TestFrustumClassification(t *testing.T) {
	s := NewSet()
	s.GenerateView(Main, cameraAt(0), resolution, 1)

	assert.True(t, s.VisibilityTestView(box(math.Vec3{Z: -10}, 1), Main))
	assert.False(t, s.VisibilityTestView(box(math.Vec3{Z: 10}, 1), Main), "behind the camera")
	assert.False(t, s.VisibilityTestView(box(math.Vec3{X: -50, Z: -10}, 1), Main))
	assert.False(t, s.VisibilityTestView(box(math.Vec3{Z: -200}, 1), Main), "past the far plane")
	// straddling the left plane is not outside
	assert.True(t, s.VisibilityTestView(box(math.Vec3{X: -10.5, Z: -10}, 1), Main))
	assert.False(t, s.VisibilityTestView(box(math.Vec3{Z: -10}, 1), DirectionalLight), "view not generated")
}

func TestVisibilityAcrossTwentyFourViews(t *testing.T) {
	s := NewSet()
	for id := ID(0); id < MaxViews; id++ {
		s.GenerateView(id, cameraAt(float32(id)*1000), resolution, 1)
	}
	require.Equal(t, MaxViews, s.Count())

	nearSeventeen := box(math.Vec3{X: 17000, Z: -10}, 1)
	assert.True(t, s.VisibilityTestAnyView(nearSeventeen))
	assert.Equal(t, uint32(1)<<17, s.VisibilityMask(nearSeventeen))
	assert.True(t, s.VisibilityTestView(nearSeventeen, 17))
	assert.False(t, s.VisibilityTestView(nearSeventeen, 16))

	assert.False(t, s.VisibilityTestAnyView(box(math.Vec3{X: 500, Z: -10}, 1)))
	assert.False(t, s.VisibilityTestAnyView(box(math.Vec3{X: 3000, Z: 50}, 1)))
	assert.Zero(t, s.VisibilityMask(box(math.Vec3{X: 3000, Z: 50}, 1)))

	s.Reset()
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.VisibilityTestAnyView(nearSeventeen))
}

func TestOrthographicLightView(t *testing.T) {
	light := cameraAt(0)
	light.Projection = components.ProjectionOrthographic
	light.OrthoHalfHeight = 20
	light.Near = 0
	light.Far = 100

	s := NewSet()
	s.GenerateView(DirectionalLight, light, gpu.Size{Width: 1024, Height: 1024}, 1)
	assert.True(t, s.VisibilityTestView(box(math.Vec3{X: 15, Z: -50}, 1), DirectionalLight))
	assert.False(t, s.VisibilityTestView(box(math.Vec3{X: 25, Z: -50}, 1), DirectionalLight))
}

func TestViewIDBounds(t *testing.T) {
	core.SetLogOutput(io.Discard)
	assert.Equal(t, Light0+3, LightID(3))
	assert.Equal(t, "light-3", LightID(3).String())

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.True(t, errors.Is(r.(error), core.ErrCapacityExceeded))
	}()
	NewSet().GenerateView(MaxViews, cameraAt(0), resolution, 1)
}
