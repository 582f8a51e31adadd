// Package domain owns the per-edge point maps and per-trim parameter
// space points of a solid being tessellated.
//
// Edge point maps are computed once and shared: both trims bordering an
// edge reference the same *kernel.Point3 values, which is what makes the
// resulting mesh watertight.
package domain

import (
	"fmt"
	"math"
	"sync"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/sample"
	"github.com/chazu/brepkit/pkg/tolerance"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// SingularPoints is the number of points a singular trim contributes.
const SingularPoints = 10

// PointMap is the sampled form of one edge. Params strictly increase
// over [0, ControlPolygonLength] and the first and last points are the
// edge's vertex points.
type PointMap struct {
	Edge   int
	Params []float64
	Points []*kernel.Point3
}

// Len returns the number of points.
func (m *PointMap) Len() int { return len(m.Points) }

// TrimPoint pairs a parameter space point with its shared 3D point.
type TrimPoint struct {
	UV v2.Vec
	P  *kernel.Point3
}

type edgeEntry struct {
	once sync.Once
	pm   *PointMap
	err  error
}

type vertexUse struct {
	face int
	uv   v2.Vec
}

// Manager holds the rescaled face domains and lazily computed edge maps of
// one solid. It is safe for concurrent use once constructed.
type Manager struct {
	solid *brep.Solid
	tess  tolerance.Tessellation
	base  tolerance.Base

	surfaces []*nurbs.Surface // reparameterized, by surface index
	sizes    []tolerance.Size // by surface index
	trims    []*nurbs.Curve   // rescaled into the face domain, by trim index
	edges    map[int]*edgeEntry
	uses     map[int][]vertexUse

	vertexIndex map[*kernel.Point3]int
}

// New validates the solid and rescales every surface domain to its
// physical size. Trim curves follow their surface. A dangling reference
// is returned as InvalidIndex and other structural errors as
// DegenerateGeometry.
func New(s *brep.Solid, t tolerance.Tessellation, b tolerance.Base) (*Manager, error) {
	for _, v := range brep.Validate(s) {
		if v.Severity == brep.SeverityError {
			return nil, v.Err()
		}
	}
	m := &Manager{
		solid:    s,
		tess:     t,
		base:     b,
		surfaces: make([]*nurbs.Surface, len(s.Surfaces)),
		sizes:    make([]tolerance.Size, len(s.Surfaces)),
		trims:    make([]*nurbs.Curve, len(s.Trims)),
		edges:    make(map[int]*edgeEntry, len(s.Edges)),
		uses:     make(map[int][]vertexUse),

		vertexIndex: make(map[*kernel.Point3]int, len(s.Vertices)),
	}

	type affine struct{ u0, su, v0, sv float64 }
	maps := make([]affine, len(s.Surfaces))
	for i, sf := range s.Surfaces {
		w, h := sf.Size()
		m.sizes[i] = tolerance.Size{Width: w, Height: h}
		// A collapsed direction keeps a unit span so the rescale stays
		// invertible.
		if w < kernel.Epsilon {
			w = 1
		}
		if h < kernel.Epsilon {
			h = 1
		}
		u0, u1 := sf.DomainU()
		v0, v1 := sf.DomainV()
		maps[i] = affine{u0: u0, su: w / (u1 - u0), v0: v0, sv: h / (v1 - v0)}
		m.surfaces[i] = sf.Reparameterized(0, w, 0, h)
	}
	for i := range s.Trims {
		a := maps[s.Faces[s.FaceOf(i)].Surface]
		m.trims[i] = s.TrimCurve(i).Mapped(func(p v3.Vec) v3.Vec {
			return v3.Vec{X: (p.X - a.u0) * a.su, Y: (p.Y - a.v0) * a.sv}
		})
	}
	for i := range s.Edges {
		m.edges[i] = &edgeEntry{}
	}
	for i := range s.Trims {
		f := s.FaceOf(i)
		c := m.trims[i]
		lo, hi := c.Domain()
		start, end := trimVertices(s, i)
		m.uses[start] = append(m.uses[start], vertexUse{face: f, uv: uv2(c.Point(lo))})
		m.uses[end] = append(m.uses[end], vertexUse{face: f, uv: uv2(c.Point(hi))})
	}
	for i, v := range s.Vertices {
		m.vertexIndex[v.Point] = i
	}
	return m, nil
}

func uv2(p v3.Vec) v2.Vec { return v2.Vec{X: p.X, Y: p.Y} }

// trimVertices returns the vertices a trim starts and ends at in loop
// direction.
func trimVertices(s *brep.Solid, t int) (int, int) {
	tr := s.Trims[t]
	if tr.Kind == brep.TrimSingular {
		return tr.Vertex, tr.Vertex
	}
	v := s.Edges[tr.Edge].Vertices
	if tr.Reversed {
		return v[1], v[0]
	}
	return v[0], v[1]
}

// Solid returns the solid being managed.
func (m *Manager) Solid() *brep.Solid { return m.solid }

// Tolerances returns the tessellation and base tolerances.
func (m *Manager) Tolerances() (tolerance.Tessellation, tolerance.Base) { return m.tess, m.base }

// Surface returns the rescaled surface of face f.
func (m *Manager) Surface(f int) *nurbs.Surface {
	return m.surfaces[m.solid.Faces[f].Surface]
}

// SurfaceDomain returns the rescaled domain [0,w] x [0,h] of face f.
func (m *Manager) SurfaceDomain(f int) (w, h float64) {
	sf := m.Surface(f)
	_, w = sf.DomainU()
	_, h = sf.DomainV()
	return w, h
}

// SurfaceSize returns the estimated physical size of face f's surface.
func (m *Manager) SurfaceSize(f int) tolerance.Size {
	return m.sizes[m.solid.Faces[f].Surface]
}

// TrimCurve returns trim t's curve in its face's rescaled domain.
func (m *Manager) TrimCurve(t int) *nurbs.Curve { return m.trims[t] }

// FaceNormal returns the oriented normal of face f at uv in the rescaled
// domain.
func (m *Manager) FaceNormal(f int, uv v2.Vec) (v3.Vec, bool) {
	n, ok := m.Surface(f).Normal(uv.X, uv.Y)
	if ok && m.solid.Faces[f].Reversed {
		n = n.MulScalar(-1)
	}
	return n, ok
}

// EdgePoints returns the point map of edge e, computing it on first use.
// Every call for the same edge returns the same map.
func (m *Manager) EdgePoints(e int) (*PointMap, error) {
	entry, ok := m.edges[e]
	if !ok {
		return nil, kernel.IndexError("edge", e, len(m.solid.Edges))
	}
	entry.once.Do(func() {
		entry.pm, entry.err = m.sampleEdge(e)
		if entry.err != nil {
			kernel.Logger().Warn("edge sampling failed", "edge", e, "err", entry.err)
		}
	})
	return entry.pm, entry.err
}

// Prime computes every edge map and returns the failures by edge.
func (m *Manager) Prime() map[int]error {
	failed := make(map[int]error)
	for e := range m.solid.Edges {
		if _, err := m.EdgePoints(e); err != nil {
			failed[e] = err
		}
	}
	return failed
}

func (m *Manager) sampleEdge(e int) (*PointMap, error) {
	s := m.solid
	edge := s.Edges[e]
	curve := s.EdgeCurve(e)
	cplen := curve.ControlPolygonLength()
	if cplen < kernel.Epsilon {
		return nil, kernel.Degenerate("edge", e, "zero length curve")
	}
	c := curve.Reparameterized(0, cplen)

	var sizes []tolerance.Size
	var normals []sample.NormalFunc
	for _, t := range edge.Trims {
		size := m.SurfaceSize(s.FaceOf(t))
		if size.TooSmall(m.base) {
			return nil, kernel.Degenerate("edge", e, "adjacent surface %.3g x %.3g is below the base distance", size.Width, size.Height)
		}
		sizes = append(sizes, size)
		normals = append(normals, m.trimNormal(t, cplen))
	}
	// Only an edge between two faces takes a chord cap from their sizes.
	hint := 0.0
	if len(sizes) > 1 {
		hint = tolerance.EdgeHint(sizes...)
	}
	rec := tolerance.Resolve(cplen, hint, m.tess, m.base)
	sp := &sample.Sampler{Tol: rec, Normals: normals}

	v0, v1 := s.Vertices[edge.Vertices[0]].Point, s.Vertices[edge.Vertices[1]].Point
	samples := sp.Points(c, 0, cplen, v0.Vec, v1.Vec)
	pm := &PointMap{Edge: e, Params: make([]float64, len(samples)), Points: make([]*kernel.Point3, len(samples))}
	for i, smp := range samples {
		pm.Params[i] = smp.T
		pm.Points[i] = kernel.NewPoint3(smp.P)
	}
	pm.Points[0], pm.Points[len(samples)-1] = v0, v1
	kernel.Logger().Debug("edge sampled", "edge", e, "points", pm.Len(), "within", rec.WithinDist)
	return pm, nil
}

// trimNormal maps an edge parameter in [0, cplen] onto trim t and returns
// the oriented face normal there.
func (m *Manager) trimNormal(t int, cplen float64) sample.NormalFunc {
	c := m.trims[t]
	f := m.solid.FaceOf(t)
	lo, hi := c.Domain()
	rev := m.solid.Trims[t].Reversed
	return func(e float64) (v3.Vec, bool) {
		k := e / cplen
		if rev {
			k = 1 - k
		}
		uv := c.Point(lo + (hi-lo)*k)
		return m.FaceNormal(f, uv2(uv))
	}
}

// TrimPoints returns the points of trim t in loop direction. The trim
// domain is divided evenly into as many points as its edge map holds;
// singular trims give SingularPoints copies of their vertex.
func (m *Manager) TrimPoints(t int) ([]TrimPoint, error) {
	s := m.solid
	if t < 0 || t >= len(s.Trims) {
		return nil, kernel.IndexError("trim", t, len(s.Trims))
	}
	tr := s.Trims[t]
	c := m.trims[t]
	lo, hi := c.Domain()
	at := func(i, n int) v2.Vec {
		return uv2(c.Point(lo + (hi-lo)*float64(i)/float64(n-1)))
	}

	if tr.Kind == brep.TrimSingular {
		p := s.Vertices[tr.Vertex].Point
		out := make([]TrimPoint, SingularPoints)
		for i := range out {
			out[i] = TrimPoint{UV: at(i, SingularPoints), P: p}
		}
		return out, nil
	}
	if tr.Edge < 0 || tr.Edge >= len(s.Edges) {
		return nil, kernel.IndexError("edge", tr.Edge, len(s.Edges))
	}
	pm, err := m.EdgePoints(tr.Edge)
	if err != nil {
		return nil, fmt.Errorf("trim %d: %w", t, err)
	}
	n := pm.Len()
	out := make([]TrimPoint, n)
	for i := 0; i < n; i++ {
		k := i
		if tr.Reversed {
			k = n - 1 - i
		}
		out[i] = TrimPoint{UV: at(i, n), P: pm.Points[k]}
	}
	return out, nil
}

// LoopPoints concatenates the trim points of loop l. Each trim's last point
// is dropped except the final trim's, so the result closes on its first
// point.
func (m *Manager) LoopPoints(l int) ([]TrimPoint, error) {
	s := m.solid
	if l < 0 || l >= len(s.Loops) {
		return nil, kernel.IndexError("loop", l, len(s.Loops))
	}
	trims := s.Loops[l].Trims
	var out []TrimPoint
	for k, t := range trims {
		pts, err := m.TrimPoints(t)
		if err != nil {
			return nil, err
		}
		if k < len(trims)-1 {
			pts = pts[:len(pts)-1]
		}
		out = append(out, pts...)
	}
	return out, nil
}

// VertexNormal averages the oriented normals of the faces meeting at
// vertex v. Each face counts once.
func (m *Manager) VertexNormal(v int) (v3.Vec, bool) {
	seen := make(map[int]bool)
	var sum v3.Vec
	for _, u := range m.uses[v] {
		if seen[u.face] {
			continue
		}
		seen[u.face] = true
		if n, ok := m.FaceNormal(u.face, u.uv); ok {
			sum = sum.Add(n)
		}
	}
	l := sum.Length()
	if l < kernel.Epsilon || math.IsNaN(l) {
		return v3.Vec{}, false
	}
	return sum.DivScalar(l), true
}

// VertexOf returns the vertex index whose point is p, or -1.
func (m *Manager) VertexOf(p *kernel.Point3) int {
	if i, ok := m.vertexIndex[p]; ok {
		return i
	}
	return -1
}
