// Package sdfx connects tessellated meshes to the github.com/deadsy/sdfx
// CAD library: STL export through its renderer, and signed distance
// reference shapes used to cross-check that a tessellation lies on the
// surface it approximates.
package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// defaultMeshCells controls marching cubes resolution of reference meshes.
const defaultMeshCells = 64

// Triangles converts a mesh into sdfx triangles.
func Triangles(m *kernel.Mesh) []*sdf.Triangle3 {
	out := make([]*sdf.Triangle3, 0, m.TriangleCount())
	for i := 0; i+2 < len(m.Indices); i += 3 {
		var t sdf.Triangle3
		for j := 0; j < 3; j++ {
			p := m.Vertex(m.Indices[i+j])
			t[j] = v3.Vec{X: p[0], Y: p[1], Z: p[2]}
		}
		out = append(out, &t)
	}
	return out
}

// FromTriangles builds an unshared mesh from sdfx triangles, with the
// face normal at each corner.
func FromTriangles(tris []*sdf.Triangle3) *kernel.Mesh {
	numVerts := len(tris) * 3
	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)
	for i, tri := range tris {
		n := tri.Normal()
		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, float32(n.X), float32(n.Y), float32(n.Z))
			indices = append(indices, uint32(i*3+j))
		}
	}
	return &kernel.Mesh{Vertices: vertices, Normals: normals, Indices: indices}
}

// SaveSTL writes the meshes to one binary STL file.
func SaveSTL(path string, meshes ...*kernel.Mesh) error {
	var tris []*sdf.Triangle3
	for _, m := range meshes {
		tris = append(tris, Triangles(m)...)
	}
	if len(tris) == 0 {
		return fmt.Errorf("sdfx: %s: no triangles", path)
	}
	if err := render.SaveSTL(path, tris); err != nil {
		return fmt.Errorf("sdfx: %w", err)
	}
	kernel.Logger().Info("stl written", "path", path, "triangles", len(tris))
	return nil
}

// Box returns the signed distance box spanning min to max. sdf.Box3D is
// centred on the origin, so it is translated to the box centre.
func Box(min, max v3.Vec) (sdf.SDF3, error) {
	size := max.Sub(min)
	s, err := sdf.Box3D(size, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: box: %w", err)
	}
	return sdf.Transform3D(s, sdf.Translate3d(min.Add(size.MulScalar(0.5)))), nil
}

// Cylinder returns the signed distance cylinder standing on center.
func Cylinder(center v3.Vec, radius, height float64) (sdf.SDF3, error) {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: cylinder: %w", err)
	}
	return sdf.Transform3D(s, sdf.Translate3d(center.Add(v3.Vec{Z: height / 2}))), nil
}

// Reference renders s with marching cubes. cells <= 0 takes the default
// resolution.
func Reference(s sdf.SDF3, cells int) *kernel.Mesh {
	if cells <= 0 {
		cells = defaultMeshCells
	}
	return FromTriangles(render.ToTriangles(s, render.NewMarchingCubesUniform(cells)))
}

// Deviation returns the largest distance of a mesh vertex from the
// surface of s.
func Deviation(m *kernel.Mesh, s sdf.SDF3) float64 {
	d := 0.0
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		p := v3.Vec{X: float64(m.Vertices[i]), Y: float64(m.Vertices[i+1]), Z: float64(m.Vertices[i+2])}
		d = math.Max(d, math.Abs(s.Evaluate(p)))
	}
	return d
}
