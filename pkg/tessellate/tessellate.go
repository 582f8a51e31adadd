// Package tessellate turns the faces of a B-rep solid into a shared,
// watertight triangle mesh. Edges are sampled once through the domain
// manager so neighbouring faces meet on identical points; each face is
// then triangulated independently with a constrained Delaunay sweep.
package tessellate

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/domain"
	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/tolerance"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"
)

// Options selects tolerances and the faces to tessellate. A zero Base
// takes the default base tolerance; a nil Faces means every face.
type Options struct {
	Tessellation tolerance.Tessellation
	Base         tolerance.Base
	Faces        []int
	Workers      int
}

func (o Options) withDefaults() Options {
	if o.Base.Dist <= 0 {
		_, o.Base = tolerance.Defaults()
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// FaceFailure records a face that could not be tessellated.
type FaceFailure struct {
	Face int
	Err  error
}

func (f FaceFailure) String() string { return fmt.Sprintf("face %d: %v", f.Face, f.Err) }

// Status summarizes a Result.
type Status int

const (
	Untessellated Status = iota // no face produced triangles
	Partial                     // some faces failed or were not requested
	Complete                    // every face tessellated
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	default:
		return "untessellated"
	}
}

// Result is the tessellation of a solid. Points is shared by all faces;
// Triangles index into it and TriFaces names the face of each triangle.
type Result struct {
	Points     []*kernel.Point3
	Triangles  [][3]int
	TriFaces   []int
	Faces      []*FaceMesh
	Failures   []FaceFailure
	Watertight bool

	requested int
	total     int
	normals   []v3.Vec
	ids       map[*kernel.Point3]int
	m         *domain.Manager
}

// Solid tessellates s. Every edge is sampled before any face so that the
// faces only read shared point maps. Face failures are collected in the
// result; the returned error is reserved for invalid input.
func Solid(ctx context.Context, s *brep.Solid, opt Options) (*Result, error) {
	opt = opt.withDefaults()
	faces := opt.Faces
	if faces == nil {
		faces = lo.Range(len(s.Faces))
	}
	for _, f := range faces {
		if f < 0 || f >= len(s.Faces) {
			return nil, fmt.Errorf("tessellate: %w", kernel.IndexError("face", f, len(s.Faces)))
		}
	}
	faces = lo.Uniq(faces)

	m, err := domain.New(s, opt.Tessellation, opt.Base)
	if err != nil {
		return nil, fmt.Errorf("tessellate: %w", err)
	}
	if failed := m.Prime(); len(failed) > 0 {
		kernel.Logger().Warn("edges failed to sample", "solid", s.Name, "edges", len(failed))
	}

	meshes := make([]*FaceMesh, len(faces))
	errs := make([]error, len(faces))
	var wg sync.WaitGroup
	sem := make(chan struct{}, opt.Workers)
	for i, f := range faces {
		wg.Add(1)
		go func(i, f int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs[i] = kernel.Tessellation("face", f, "stopped: %v", err)
				return
			}
			meshes[i], errs[i] = Face(m, f, nil)
		}(i, f)
	}
	wg.Wait()

	r := &Result{requested: len(faces), total: len(s.Faces), ids: make(map[*kernel.Point3]int), m: m}
	for i, f := range faces {
		if errs[i] != nil {
			kernel.Logger().Warn("face failed", "face", f, "err", errs[i])
			r.Failures = append(r.Failures, FaceFailure{Face: f, Err: errs[i]})
			continue
		}
		r.add(meshes[i])
	}
	if r.Status() == Complete {
		r.Watertight = r.Mesh().IsWatertight()
	}
	kernel.Logger().Info("solid tessellated", "solid", s.Name, "status", r.Status(),
		"faces", len(r.Faces), "failed", len(r.Failures), "triangles", len(r.Triangles), "watertight", r.Watertight)
	return r, nil
}

// add merges a face mesh into the shared point array. Boundary points
// are shared by pointer, so an edge point used by two faces is stored
// once.
func (r *Result) add(fm *FaceMesh) {
	ids := r.ids
	local := make([]int, len(fm.Points))
	for i, p := range fm.Points {
		id, ok := ids[p]
		if !ok {
			id = len(r.Points)
			ids[p] = id
			r.Points = append(r.Points, p)
			r.normals = append(r.normals, v3.Vec{})
		}
		r.normals[id] = r.normals[id].Add(fm.Normals[i])
		local[i] = id
	}
	for _, t := range fm.Triangles {
		r.Triangles = append(r.Triangles, [3]int{local[t[0]], local[t[1]], local[t[2]]})
		r.TriFaces = append(r.TriFaces, fm.Face)
	}
	r.Faces = append(r.Faces, fm)
}

// Partial reports whether some requested face failed or only a subset of
// faces was requested.
func (r *Result) Partial() bool {
	return len(r.Failures) > 0 || r.requested < r.total
}

// Status returns the overall outcome.
func (r *Result) Status() Status {
	switch {
	case len(r.Triangles) == 0:
		return Untessellated
	case r.Partial():
		return Partial
	default:
		return Complete
	}
}

// Report lists the outcome, one line per failure or audit finding.
func (r *Result) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d faces, %d points, %d triangles", r.Status(), len(r.Faces), r.total, len(r.Points), len(r.Triangles))
	if r.Status() == Complete {
		fmt.Fprintf(&b, ", watertight=%t", r.Watertight)
	}
	b.WriteString("\n")
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	if r.Status() == Complete && !r.Watertight {
		mesh := r.Mesh()
		fmt.Fprintf(&b, "  %d boundary edges, %d non-manifold edges\n", len(mesh.BoundaryEdges()), len(mesh.NonManifoldEdges()))
		for _, t := range mesh.DegenerateTriangles() {
			fmt.Fprintf(&b, "  degenerate triangle %d (face %d)\n", t, r.TriFaces[t])
		}
	}
	return b.String()
}

// Mesh flattens the result. Normals of vertex points are the vertex
// normals of the solid; other points average the normals of the faces
// that use them.
func (r *Result) Mesh() *kernel.Mesh {
	mesh := &kernel.Mesh{
		Vertices:  make([]float32, 0, 3*len(r.Points)),
		Normals:   make([]float32, 0, 3*len(r.Points)),
		Indices:   make([]uint32, 0, 3*len(r.Triangles)),
		FaceIndex: make([]int32, 0, len(r.Triangles)),
	}
	if r.m != nil {
		mesh.PartName = r.m.Solid().Name
	}
	for i, p := range r.Points {
		n := r.normals[i]
		if r.m != nil {
			if v := r.m.VertexOf(p); v >= 0 {
				if vn, ok := r.m.VertexNormal(v); ok {
					n = vn
				}
			}
		}
		if l := n.Length(); l > kernel.Epsilon {
			n = n.DivScalar(l)
		}
		mesh.Vertices = append(mesh.Vertices, float32(p.X), float32(p.Y), float32(p.Z))
		mesh.Normals = append(mesh.Normals, float32(n.X), float32(n.Y), float32(n.Z))
	}
	for i, t := range r.Triangles {
		mesh.Indices = append(mesh.Indices, uint32(t[0]), uint32(t[1]), uint32(t[2]))
		mesh.FaceIndex = append(mesh.FaceIndex, int32(r.TriFaces[i]))
	}
	return mesh
}
