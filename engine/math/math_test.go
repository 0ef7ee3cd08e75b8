package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMat4InverseRoundTrip(t *testing.T) {
	tr := NewTransformFromPositionRotationScale(
		Vec3{3, -2, 7},
		NewQuatFromAxisAngle(Vec3{0.3, 1, 0.2}.Normalized(), 0.8, true),
		Vec3{2, 0.5, 1.5})
	m := tr.GetLocal()

	inv := m.Inverse()
	assert.True(t, m.Mul(inv).Compare(NewMat4Identity(), 1e-4))
	assert.True(t, inv.Inverse().Compare(m, 1e-3))
}

func TestMat4InverseSingularIsIdentity(t *testing.T) {
	singular := NewMat4Scale(Vec3{1, 0, 1})
	assert.Equal(t, NewMat4Identity(), singular.Inverse())
	assert.Equal(t, NewMat4Identity(), Mat4{}.Inverse())
}

func TestRotationsAgree(t *testing.T) {
	angle := DegToRad(90)
	q := NewQuatFromAxisAngle(NewVec3Up(), angle, true)

	p := Vec3{1, 0, 0}
	assert.True(t, p.Transform(q.ToMat4()).Compare(Vec3{0, 0, -1}, 1e-5))
	assert.True(t, p.Transform(NewMat4EulerY(angle)).Compare(Vec3{0, 0, -1}, 1e-5))
	assert.True(t, Vec3{0, 1, 0}.Transform(NewMat4EulerX(angle)).Compare(Vec3{0, 0, 1}, 1e-5))
	assert.True(t, p.Transform(NewMat4EulerZ(angle)).Compare(Vec3{0, 1, 0}, 1e-5))
}

func TestLookAtMovesTargetOntoNegativeZ(t *testing.T) {
	eye := Vec3{4, 2, 1}
	target := Vec3{4, 2, -9}
	view := NewMat4LookAt(eye, target, NewVec3Up())
	assert.True(t, target.Transform(view).Compare(Vec3{0, 0, -10}, 1e-4))
	assert.True(t, eye.Transform(view).Compare(Vec3{}, 1e-5))
}

func TestSlerpEndpoints(t *testing.T) {
	a := NewQuatIdentity()
	b := NewQuatFromAxisAngle(NewVec3Up(), DegToRad(120), true)

	s0 := a.Slerp(b, 0)
	s1 := a.Slerp(b, 1)
	assert.InDelta(t, 1.0, float64(s0.Dot(a)), 1e-5)
	assert.InDelta(t, 1.0, float64(s1.Dot(b)), 1e-5)

	mid := a.Slerp(b, 0.5)
	half := NewQuatFromAxisAngle(NewVec3Up(), DegToRad(60), true)
	assert.InDelta(t, 1.0, float64(mid.Dot(half)), 1e-5)
}

func TestDegenerateInputsStayFinite(t *testing.T) {
	assert.Equal(t, Vec3{}, Vec3{}.Normalized())
	assert.Equal(t, NewQuatIdentity(), Quaternion{}.Normalize())

	p := NewMat4Perspective(DegToRad(60), 0, 0.1, 100)
	assert.Equal(t, NewMat4Perspective(DegToRad(60), 1, 0.1, 100), p)
}

func TestExtentsTransform(t *testing.T) {
	box := NewExtents3D(Vec3{}, Vec3{1, 1, 1})
	moved := box.Transform(NewMat4Translation(Vec3{10, 0, 0}))
	assert.True(t, moved.Min.Compare(Vec3{9, -1, -1}, 1e-6))
	assert.True(t, moved.Max.Compare(Vec3{11, 1, 1}, 1e-6))
	assert.True(t, moved.Center().Compare(Vec3{10, 0, 0}, 1e-6))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 0, 3))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
}

func TestQuatMat4RoundTrip(t *testing.T) {
	for _, q := range []Quaternion{
		NewQuatIdentity(),
		NewQuatFromAxisAngle(NewVec3Up(), DegToRad(170), true),
		NewQuatFromAxisAngle(Vec3{1, 0, 0}, DegToRad(-100), true),
		NewQuatFromAxisAngle(Vec3{0.2, 0.3, 0.9}.Normalized(), 2.5, true),
	} {
		back := NewQuatFromMat4(q.ToMat4())
		// q and -q are the same rotation
		assert.InDelta(t, 1.0, float64(math32Abs(back.Dot(q))), 1e-4)
	}
}

func math32Abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func TestTransformWorldChainsParent(t *testing.T) {
	parent := NewTransform()
	parent.SetPosition(Vec3{0, 5, 0})
	child := NewTransform()
	child.SetPosition(Vec3{1, 0, 0})
	child.Parent = parent

	world := child.GetWorld()
	assert.True(t, Vec3{}.Transform(world).Compare(Vec3{1, 5, 0}, 1e-6))
	assert.False(t, child.IsDirty)

	parent.Translate(Vec3{0, 1, 0})
	assert.True(t, Vec3{}.Transform(child.GetWorld()).Compare(Vec3{1, 6, 0}, 1e-6))

	var none *Transform
	assert.Equal(t, NewMat4Identity(), none.GetWorld())
}
