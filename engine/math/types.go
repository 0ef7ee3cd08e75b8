package math

type Vec2 struct {
	X, Y float32
}

type Vec3 struct {
	X, Y, Z float32
}

// Vec4 doubles as an RGBA colour.
type Vec4 struct {
	X, Y, Z, W float32
}

type Quaternion Vec4

/**
 * @brief Row-major 4x4 matrix for row vectors: p' = p * M, with the
 * translation in Data[12..14].
 */
type Mat4 struct {
	Data [16]float32
}

// Extents3D is an axis-aligned box, used as the culling volume.
type Extents3D struct {
	Min, Max Vec3
}

/** @brief Mesh vertex layout shared by the geometry passes. */
type Vertex3D struct {
	Position Vec3
	Normal   Vec3
	Texcoord Vec2
	Colour   Vec4
}

// Vertex2D is what the overlay canvas emits.
type Vertex2D struct {
	Position Vec2
	Texcoord Vec2
	Colour   Vec4
}

/**
 * @brief Position, rotation and scale with a cached local matrix. Go
 * through the setters in transform.go so Local is rebuilt. Parent may be
 * nil; GetWorld chains through it.
 */
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
	IsDirty  bool
	Local    Mat4
	Parent   *Transform
}
