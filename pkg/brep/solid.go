package brep

import (
	"math"

	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/nurbs"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// TrimKind classifies how a trim relates to its edge.
type TrimKind int

const (
	TrimMated    TrimKind = iota // edge shared with another face
	TrimBoundary                 // edge used by this trim only (open shell)
	TrimSeam                     // edge used twice by the same face
	TrimSingular                 // collapsed to a vertex, no edge
)

func (k TrimKind) String() string {
	switch k {
	case TrimMated:
		return "mated"
	case TrimBoundary:
		return "boundary"
	case TrimSeam:
		return "seam"
	case TrimSingular:
		return "singular"
	default:
		return "unknown"
	}
}

// LoopKind distinguishes a face's outer boundary from its holes.
type LoopKind int

const (
	LoopOuter LoopKind = iota
	LoopInner
)

func (k LoopKind) String() string {
	if k == LoopOuter {
		return "outer"
	}
	return "inner"
}

// Vertex is a topological point. Point is shared by every edge point map
// that starts or ends here.
type Vertex struct {
	Point *kernel.Point3
}

// Edge is a 3D curve between two vertices.
type Edge struct {
	Curve    int    // index into Solid.Curves3D
	Vertices [2]int // start and end vertex
	Trims    []int  // trims that use this edge
}

// Trim is one use of an edge by a loop, with its parameter space curve.
// Reversed is set when the trim runs against the edge's direction.
type Trim struct {
	Edge     int // -1 for singular trims
	Curve    int // index into Solid.Curves2D
	Loop     int
	Reversed bool
	Kind     TrimKind
	Vertex   int // singular vertex, -1 otherwise
}

// Loop is a closed chain of trims bounding a face.
type Loop struct {
	Face  int
	Trims []int
	Kind  LoopKind
}

// Face is a trimmed surface. Reversed flips the surface normal.
type Face struct {
	Surface  int
	Loops    []int
	Reversed bool
}

// Solid is the entity graph of one B-rep model.
type Solid struct {
	Name     string
	Curves3D []*nurbs.Curve
	Curves2D []*nurbs.Curve
	Surfaces []*nurbs.Surface
	Vertices []Vertex
	Edges    []Edge
	Trims    []Trim
	Loops    []Loop
	Faces    []Face
}

// New creates an empty solid.
func New(name string) *Solid {
	return &Solid{Name: name}
}

// AddVertex appends a vertex and returns its index.
func (s *Solid) AddVertex(p v3.Vec) int {
	s.Vertices = append(s.Vertices, Vertex{Point: kernel.NewPoint3(p)})
	return len(s.Vertices) - 1
}

// AddEdge appends an edge along c from vertex v0 to v1.
func (s *Solid) AddEdge(c *nurbs.Curve, v0, v1 int) int {
	s.Curves3D = append(s.Curves3D, c)
	s.Edges = append(s.Edges, Edge{Curve: len(s.Curves3D) - 1, Vertices: [2]int{v0, v1}})
	return len(s.Edges) - 1
}

// AddFace appends a face on surface sf.
func (s *Solid) AddFace(sf *nurbs.Surface, reversed bool) int {
	s.Surfaces = append(s.Surfaces, sf)
	s.Faces = append(s.Faces, Face{Surface: len(s.Surfaces) - 1, Reversed: reversed})
	return len(s.Faces) - 1
}

// AddLoop appends an empty loop to face f.
func (s *Solid) AddLoop(f int, kind LoopKind) int {
	s.Loops = append(s.Loops, Loop{Face: f, Kind: kind})
	l := len(s.Loops) - 1
	s.Faces[f].Loops = append(s.Faces[f].Loops, l)
	return l
}

// AddTrim appends a trim using edge e to loop l. The kind is settled by
// Finish once every trim exists.
func (s *Solid) AddTrim(l, e int, uv *nurbs.Curve, reversed bool) int {
	s.Curves2D = append(s.Curves2D, uv)
	s.Trims = append(s.Trims, Trim{
		Edge: e, Curve: len(s.Curves2D) - 1, Loop: l, Reversed: reversed, Kind: TrimMated, Vertex: -1,
	})
	t := len(s.Trims) - 1
	s.Loops[l].Trims = append(s.Loops[l].Trims, t)
	s.Edges[e].Trims = append(s.Edges[e].Trims, t)
	return t
}

// AddSingularTrim appends a trim that collapses to vertex v.
func (s *Solid) AddSingularTrim(l, v int, uv *nurbs.Curve) int {
	s.Curves2D = append(s.Curves2D, uv)
	s.Trims = append(s.Trims, Trim{
		Edge: -1, Curve: len(s.Curves2D) - 1, Loop: l, Kind: TrimSingular, Vertex: v,
	})
	t := len(s.Trims) - 1
	s.Loops[l].Trims = append(s.Loops[l].Trims, t)
	return t
}

// Finish assigns trim kinds from edge usage.
func (s *Solid) Finish() {
	for _, e := range s.Edges {
		switch len(e.Trims) {
		case 1:
			s.Trims[e.Trims[0]].Kind = TrimBoundary
		case 2:
			a, b := e.Trims[0], e.Trims[1]
			kind := TrimMated
			if s.Loops[s.Trims[a].Loop].Face == s.Loops[s.Trims[b].Loop].Face {
				kind = TrimSeam
			}
			s.Trims[a].Kind, s.Trims[b].Kind = kind, kind
		}
	}
}

// FaceOf returns the face that owns trim t.
func (s *Solid) FaceOf(t int) int {
	return s.Loops[s.Trims[t].Loop].Face
}

// SurfaceOf returns the surface of face f.
func (s *Solid) SurfaceOf(f int) *nurbs.Surface {
	return s.Surfaces[s.Faces[f].Surface]
}

// EdgeCurve returns the 3D curve of edge e.
func (s *Solid) EdgeCurve(e int) *nurbs.Curve {
	return s.Curves3D[s.Edges[e].Curve]
}

// TrimCurve returns the parameter space curve of trim t.
func (s *Solid) TrimCurve(t int) *nurbs.Curve {
	return s.Curves2D[s.Trims[t].Curve]
}

// IsClosed reports whether every edge is used by exactly two trims.
func (s *Solid) IsClosed() bool {
	if len(s.Edges) == 0 {
		return false
	}
	for _, e := range s.Edges {
		if len(e.Trims) != 2 {
			return false
		}
	}
	return true
}

// BoundingBox returns the union of the surface control hulls.
func (s *Solid) BoundingBox() (min, max [3]float64) {
	lo := v3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := v3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, sf := range s.Surfaces {
		a, b := sf.Bounds()
		lo, hi = lo.Min(a), hi.Max(b)
	}
	for _, c := range s.Curves3D {
		a, b := c.Bounds()
		lo, hi = lo.Min(a), hi.Max(b)
	}
	if len(s.Surfaces) == 0 && len(s.Curves3D) == 0 {
		return min, max
	}
	return kernel.Arr(lo), kernel.Arr(hi)
}

// Diagonal returns the length of the bounding box diagonal.
func (s *Solid) Diagonal() float64 {
	min, max := s.BoundingBox()
	d := v3.Vec{X: max[0] - min[0], Y: max[1] - min[1], Z: max[2] - min[2]}
	return d.Length()
}

// FaceBounds returns the bounding box of face f's surface.
func (s *Solid) FaceBounds(f int) (min, max [3]float64) {
	return s.SurfaceOf(f).BoundingBox()
}

// Translated returns a deep copy of the solid moved by d.
func (s *Solid) Translated(d v3.Vec) *Solid {
	out := &Solid{
		Name:     s.Name,
		Curves2D: append([]*nurbs.Curve(nil), s.Curves2D...),
		Trims:    append([]Trim(nil), s.Trims...),
	}
	for _, c := range s.Curves3D {
		out.Curves3D = append(out.Curves3D, c.Translated(d))
	}
	for _, sf := range s.Surfaces {
		out.Surfaces = append(out.Surfaces, sf.Translated(d))
	}
	for _, v := range s.Vertices {
		out.Vertices = append(out.Vertices, Vertex{Point: kernel.NewPoint3(v.Point.Add(d))})
	}
	for _, e := range s.Edges {
		e.Trims = append([]int(nil), e.Trims...)
		out.Edges = append(out.Edges, e)
	}
	for _, l := range s.Loops {
		l.Trims = append([]int(nil), l.Trims...)
		out.Loops = append(out.Loops, l)
	}
	for _, f := range s.Faces {
		f.Loops = append([]int(nil), f.Loops...)
		out.Faces = append(out.Faces, f)
	}
	return out
}
