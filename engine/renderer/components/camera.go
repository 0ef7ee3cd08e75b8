package components

import (
	"github.com/spaghettifunk/framecore/engine/math"
)

type Projection int

const (
	ProjectionPerspective Projection = iota
	ProjectionOrthographic
)

/** @brief Position and orientation of a camera at one simulation tick. */
type Pose struct {
	Position    math.Vec3
	Orientation math.Quaternion
}

/** @brief Forward direction of the pose; cameras look down local -Z. */
func (p Pose) Forward() math.Vec3 {
	return math.NewVec3Forward().Transform(p.Orientation.ToMat4())
}

/** @brief Camera-to-world matrix of the pose. */
func (p Pose) World() math.Mat4 {
	return p.Orientation.ToMat4().Mul(math.NewMat4Translation(p.Position))
}

/**
 * @brief Everything a view needs from a camera: the pose at the previous
 * and the current simulation tick plus the projection parameters. It is a
 * plain value so the producer can hand it around without sharing the camera.
 */
type CameraState struct {
	Previous   Pose
	Current    Pose
	Projection Projection
	/** @brief Vertical field of view in radians, perspective only. */
	FOV  float32
	Near float32
	Far  float32
	/** @brief Half height of the view volume, orthographic only. */
	OrthoHalfHeight float32
}

/** @brief Lerps position and slerps orientation between the two ticks. */
func (s CameraState) Interpolate(alpha float32) Pose {
	alpha = math.Clamp(alpha, 0, 1)
	return Pose{
		Position:    s.Previous.Position.Lerp(s.Current.Position, alpha),
		Orientation: s.Previous.Orientation.Slerp(s.Current.Orientation, alpha),
	}
}

/**
 * @brief Represents a camera driven by the simulation. Tick must be called
 * once per simulation step before moving the camera so the previous pose
 * is kept for interpolation.
 */
type Camera struct {
	pose     Pose
	previous Pose

	Projection      Projection
	FOV             float32
	Near            float32
	Far             float32
	OrthoHalfHeight float32
}

/** @brief The name of the default camera. */
const DEFAULT_CAMERA_NAME string = "default"

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func NewOrthographicCamera(halfHeight, near, far float32) *Camera {
	camera := NewCamera()
	camera.Projection = ProjectionOrthographic
	camera.OrthoHalfHeight = halfHeight
	camera.Near = near
	camera.Far = far
	return camera
}

func (c *Camera) Reset() {
	c.pose = Pose{Orientation: math.NewQuatIdentity()}
	c.previous = c.pose
	c.Projection = ProjectionPerspective
	c.FOV = math.DegToRad(45)
	c.Near = 0.1
	c.Far = 1000
}

// Tick starts a new simulation step.
func (c *Camera) Tick() {
	c.previous = c.pose
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.pose.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.pose.Position = position
}

func (c *Camera) GetOrientation() math.Quaternion {
	return c.pose.Orientation
}

func (c *Camera) SetOrientation(orientation math.Quaternion) {
	c.pose.Orientation = orientation.Normalize()
}

// LookAt orients the camera towards target.
func (c *Camera) LookAt(target math.Vec3) {
	view := math.NewMat4LookAt(c.pose.Position, target, math.NewVec3Up())
	// The rotation part of the world matrix is the transpose of the view's.
	rot := math.NewMat4Transposed(view)
	c.pose.Orientation = math.NewQuatFromMat4(rot)
}

func (c *Camera) Yaw(amount float32) {
	c.Rotate(math.NewQuatFromAxisAngle(math.NewVec3Up(), amount, true))
}

func (c *Camera) Rotate(rotation math.Quaternion) {
	c.pose.Orientation = c.pose.Orientation.Mul(rotation).Normalize()
}

func (c *Camera) Forward() math.Vec3 {
	return c.pose.Forward()
}

func (c *Camera) MoveForward(amount float32) {
	c.pose.Position = c.pose.Position.Add(c.Forward().MulScalar(amount))
}

func (c *Camera) MoveUp(amount float32) {
	c.pose.Position = c.pose.Position.Add(math.NewVec3Up().MulScalar(amount))
}

func (c *Camera) GetView() math.Mat4 {
	return c.pose.World().Inverse()
}

func (c *Camera) State() CameraState {
	return CameraState{
		Previous:        c.previous,
		Current:         c.pose,
		Projection:      c.Projection,
		FOV:             c.FOV,
		Near:            c.Near,
		Far:             c.Far,
		OrthoHalfHeight: c.OrthoHalfHeight,
	}
}
