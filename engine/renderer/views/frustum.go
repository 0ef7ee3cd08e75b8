package views

import (
	"github.com/spaghettifunk/framecore/engine/math"
)

// Plane is a*x + b*y + c*z + d = 0 with the positive half-space inside.
type Plane struct {
	Normal   math.Vec3
	Distance float32
}

// SignedDistance is positive on the inner side of the plane.
func (p Plane) SignedDistance(point math.Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

type Frustum struct {
	Planes [6]Plane
}

// ExtractFrustum pulls the six planes out of a view-projection matrix using
// the Gribb/Hartmann method. Columns of m are the clip space axes.
func ExtractFrustum(m math.Mat4) Frustum {
	d := &m.Data
	col := func(c int) math.Vec4 {
		return math.Vec4{X: d[c], Y: d[4+c], Z: d[8+c], W: d[12+c]}
	}
	x, y, z, w := col(0), col(1), col(2), col(3)

	var f Frustum
	f.Planes[FrustumLeft] = plane(w.X+x.X, w.Y+x.Y, w.Z+x.Z, w.W+x.W)
	f.Planes[FrustumRight] = plane(w.X-x.X, w.Y-x.Y, w.Z-x.Z, w.W-x.W)
	f.Planes[FrustumBottom] = plane(w.X+y.X, w.Y+y.Y, w.Z+y.Z, w.W+y.W)
	f.Planes[FrustumTop] = plane(w.X-y.X, w.Y-y.Y, w.Z-y.Z, w.W-y.W)
	f.Planes[FrustumNear] = plane(w.X+z.X, w.Y+z.Y, w.Z+z.Z, w.W+z.W)
	f.Planes[FrustumFar] = plane(w.X-z.X, w.Y-z.Y, w.Z-z.Z, w.W-z.W)
	return f
}

// plane builds a normalized plane; a degenerate normal is kept as is.
func plane(a, b, c, d float32) Plane {
	p := Plane{Normal: math.Vec3{X: a, Y: b, Z: c}, Distance: d}
	if length := p.Normal.Length(); length > 0 {
		p.Normal = p.Normal.MulScalar(1 / length)
		p.Distance /= length
	}
	return p
}

// Outside reports whether box lies strictly on the negative side of at
// least one plane. Boxes touching a plane are not outside.
func (f *Frustum) Outside(box math.Extents3D) bool {
	for i := range f.Planes {
		p := &f.Planes[i]
		// the box corner furthest along the plane normal
		positive := box.Min
		if p.Normal.X >= 0 {
			positive.X = box.Max.X
		}
		if p.Normal.Y >= 0 {
			positive.Y = box.Max.Y
		}
		if p.Normal.Z >= 0 {
			positive.Z = box.Max.Z
		}
		if p.SignedDistance(positive) < 0 {
			return true
		}
	}
	return false
}

func (f *Frustum) ContainsPoint(point math.Vec3) bool {
	for i := range f.Planes {
		if f.Planes[i].SignedDistance(point) < 0 {
			return false
		}
	}
	return true
}
