package sdfx_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/kernel/sdfx"
	"github.com/chazu/brepkit/pkg/tessellate"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func boxMesh(t *testing.T, min, max v3.Vec) *kernel.Mesh {
	t.Helper()
	r, err := tessellate.Solid(context.Background(), brep.NewBox(min, max), tessellate.Options{})
	if err != nil {
		t.Fatalf("tessellate.Solid() error = %v", err)
	}
	return r.Mesh()
}

func TestTrianglesRoundTrip(t *testing.T) {
	m := boxMesh(t, v3.Vec{}, v3.Vec{X: 2, Y: 1, Z: 1})
	tris := sdfx.Triangles(m)
	if len(tris) != m.TriangleCount() {
		t.Fatalf("len(Triangles()) = %d, want %d", len(tris), m.TriangleCount())
	}
	back := sdfx.FromTriangles(tris)
	if back.TriangleCount() != m.TriangleCount() {
		t.Errorf("FromTriangles() has %d triangles, want %d", back.TriangleCount(), m.TriangleCount())
	}
	if len(back.Vertices) != len(back.Normals) {
		t.Errorf("vertices length %d != normals length %d", len(back.Vertices), len(back.Normals))
	}
}

func TestBoxTessellationOnSurface(t *testing.T) {
	min, max := v3.Vec{X: 1, Y: 2, Z: 3}, v3.Vec{X: 4, Y: 4, Z: 5}
	s, err := sdfx.Box(min, max)
	if err != nil {
		t.Fatalf("Box() error = %v", err)
	}
	if d := sdfx.Deviation(boxMesh(t, min, max), s); d > 1e-5 {
		t.Errorf("Deviation() = %g, want ~0", d)
	}
}

func TestCylinderTessellationNearSurface(t *testing.T) {
	c, err := brep.NewCylinder(v3.Vec{}, 1, 2)
	if err != nil {
		t.Fatalf("NewCylinder() error = %v", err)
	}
	r, err := tessellate.Solid(context.Background(), c, tessellate.Options{})
	if err != nil {
		t.Fatalf("tessellate.Solid() error = %v", err)
	}
	s, err := sdfx.Cylinder(v3.Vec{}, 1, 2)
	if err != nil {
		t.Fatalf("Cylinder() error = %v", err)
	}
	if d := sdfx.Deviation(r.Mesh(), s); d > 1e-4 {
		t.Errorf("Deviation() = %g, want below 1e-4", d)
	}
}

func TestReferenceBounds(t *testing.T) {
	s, err := sdfx.Box(v3.Vec{}, v3.Vec{X: 10, Y: 5, Z: 2})
	if err != nil {
		t.Fatalf("Box() error = %v", err)
	}
	m := sdfx.Reference(s, 0)
	if m.IsEmpty() {
		t.Fatal("reference mesh is empty")
	}
	min, max := m.BoundingBox()
	want := [2][3]float64{{0, 0, 0}, {10, 5, 2}}
	const tol = 0.5
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-want[0][i]) > tol || math.Abs(max[i]-want[1][i]) > tol {
			t.Errorf("axis %d: bounds [%g, %g], want ~[%g, %g]", i, min[i], max[i], want[0][i], want[1][i])
		}
	}
}

func TestSaveSTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.stl")
	m := boxMesh(t, v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	if err := sdfx.SaveSTL(path, m); err != nil {
		t.Fatalf("SaveSTL() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	// Binary STL: 80 byte header, count, 50 bytes per triangle.
	if want := int64(84 + 50*m.TriangleCount()); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}
}

func TestSaveSTLEmpty(t *testing.T) {
	if err := sdfx.SaveSTL(filepath.Join(t.TempDir(), "x.stl"), &kernel.Mesh{}); err == nil {
		t.Error("SaveSTL() of an empty mesh succeeded")
	}
}
