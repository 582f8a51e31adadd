// Package kernel holds the types shared by every stage of the B-rep
// intersection and tessellation core: the mesh output model, the error
// taxonomy, and the package-level logger.
package kernel

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Bounded is anything with an axis-aligned bounding box. Faces, solids
// and meshes implement it so they can be placed in spatial indexes.
type Bounded interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Point3 is a shared 3D sample point. Tessellation stages pass *Point3
// around so that two faces sampling the same edge hold the same pointer.
type Point3 struct {
	v3.Vec
}

// NewPoint3 allocates a shared point at p.
func NewPoint3(p v3.Vec) *Point3 {
	return &Point3{Vec: p}
}

// Epsilon is the zero tolerance used for "meaningfully larger" comparisons.
const Epsilon = 1e-12

// Arr converts a vector to the array form used by Bounded.
func Arr(v v3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
