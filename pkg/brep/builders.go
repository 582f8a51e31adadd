package brep

import (
	"math"

	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/nurbs"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// builder shares straight edges between faces by their vertex pair.
type builder struct {
	s     *Solid
	edges map[[2]int]int
}

func newBuilder(name string) *builder {
	return &builder{s: New(name), edges: make(map[[2]int]int)}
}

// line returns the straight edge between vertices a and b, creating it on
// first use. reversed is true if the edge runs b to a.
func (b *builder) line(a, c int) (int, bool) {
	if e, ok := b.edges[[2]int{a, c}]; ok {
		return e, false
	}
	if e, ok := b.edges[[2]int{c, a}]; ok {
		return e, true
	}
	pa, pc := b.s.Vertices[a].Point.Vec, b.s.Vertices[c].Point.Vec
	e := b.s.AddEdge(nurbs.Line(pa, pc), a, c)
	b.edges[[2]int{a, c}] = e
	return e, false
}

// polygonFace adds a face on sf bounded by straight-edged loops. loops[0]
// is the outer loop; uvs holds the matching parameter space corners.
func (b *builder) polygonFace(sf *nurbs.Surface, reversed bool, loops [][]int, uvs [][]v2.Vec) int {
	f := b.s.AddFace(sf, reversed)
	for k, verts := range loops {
		kind := LoopOuter
		if k > 0 {
			kind = LoopInner
		}
		l := b.s.AddLoop(f, kind)
		n := len(verts)
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			e, rev := b.line(verts[i], verts[j])
			uv := nurbs.Line(uv3(uvs[k][i]), uv3(uvs[k][j]))
			b.s.AddTrim(l, e, uv, rev)
		}
	}
	return f
}

func (b *builder) quad(c0, c1, c2, c3 int) int {
	p := func(i int) v3.Vec { return b.s.Vertices[i].Point.Vec }
	sf := nurbs.Bilinear(p(c0), p(c1), p(c2), p(c3))
	square := []v2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	return b.polygonFace(sf, false, [][]int{{c0, c1, c2, c3}}, [][]v2.Vec{square})
}

func (b *builder) finish() *Solid {
	b.s.Finish()
	return b.s
}

func uv3(p v2.Vec) v3.Vec { return v3.Vec{X: p.X, Y: p.Y} }

// NewBox returns an axis-aligned box with outward facing bilinear faces.
func NewBox(min, max v3.Vec) *Solid {
	b := newBuilder("box")
	for i := 0; i < 8; i++ {
		p := min
		if i&1 != 0 {
			p.X = max.X
		}
		if i&2 != 0 {
			p.Y = max.Y
		}
		if i&4 != 0 {
			p.Z = max.Z
		}
		b.s.AddVertex(p)
	}
	// Corner index is x + 2y + 4z; each quad is counter-clockwise seen
	// from outside.
	b.quad(0, 2, 3, 1) // z min
	b.quad(4, 5, 7, 6) // z max
	b.quad(0, 1, 5, 4) // y min
	b.quad(2, 6, 7, 3) // y max
	b.quad(0, 4, 6, 2) // x min
	b.quad(1, 3, 7, 5) // x max
	return b.finish()
}

// NewPrism extrudes a counter-clockwise outline with optional clockwise
// holes from z = 0 to z = height. The caps are planar surfaces over the
// outline's bounding rectangle, trimmed by the outline and holes.
func NewPrism(outline []v2.Vec, holes [][]v2.Vec, height float64) (*Solid, error) {
	if len(outline) < 3 {
		return nil, kernel.Degenerate("prism", -1, "outline needs 3 points, got %d", len(outline))
	}
	if height <= 0 {
		return nil, kernel.Degenerate("prism", -1, "height %g must be positive", height)
	}
	if signedArea(outline) <= 0 {
		return nil, kernel.Degenerate("prism", -1, "outline must be counter-clockwise")
	}
	for i, h := range holes {
		if len(h) < 3 || signedArea(h) >= 0 {
			return nil, kernel.Degenerate("prism", i, "hole must be clockwise with 3 or more points")
		}
	}

	b := newBuilder("prism")
	rings := append([][]v2.Vec{outline}, holes...)
	bottom := make([][]int, len(rings))
	top := make([][]int, len(rings))
	for k, ring := range rings {
		for _, p := range ring {
			bottom[k] = append(bottom[k], b.s.AddVertex(v3.Vec{X: p.X, Y: p.Y}))
		}
		for _, p := range ring {
			top[k] = append(top[k], b.s.AddVertex(v3.Vec{X: p.X, Y: p.Y, Z: height}))
		}
	}

	for k := range rings {
		n := len(rings[k])
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			b.quad(bottom[k][i], bottom[k][j], top[k][j], top[k][i])
		}
	}

	lo, hi := bounds2(outline)
	w, h := hi.X-lo.X, hi.Y-lo.Y
	uvs := make([][]v2.Vec, len(rings))
	for k, ring := range rings {
		for _, p := range ring {
			uvs[k] = append(uvs[k], v2.Vec{X: (p.X - lo.X) / w, Y: (p.Y - lo.Y) / h})
		}
	}
	capAt := func(z float64) *nurbs.Surface {
		return nurbs.Bilinear(
			v3.Vec{X: lo.X, Y: lo.Y, Z: z}, v3.Vec{X: hi.X, Y: lo.Y, Z: z},
			v3.Vec{X: hi.X, Y: hi.Y, Z: z}, v3.Vec{X: lo.X, Y: hi.Y, Z: z})
	}
	b.polygonFace(capAt(height), false, top, uvs)
	b.polygonFace(capAt(0), true, bottom, uvs)
	return b.finish(), nil
}

// NewCylinder returns a closed cylinder around the z axis through center.
// The side face is closed in u with a seam edge; the caps are square
// planes trimmed by circles.
func NewCylinder(center v3.Vec, radius, height float64) (*Solid, error) {
	if radius <= 0 || height <= 0 {
		return nil, kernel.Degenerate("cylinder", -1, "radius %g and height %g must be positive", radius, height)
	}
	s := New("cylinder")
	x, y, up := v3.Vec{X: 1}, v3.Vec{Y: 1}, v3.Vec{Z: height}
	topCenter := center.Add(up)

	vb := s.AddVertex(center.Add(x.MulScalar(radius)))
	vt := s.AddVertex(topCenter.Add(x.MulScalar(radius)))
	circB := nurbs.Circle(center, x, y, radius)
	circT := nurbs.Circle(topCenter, x, y, radius)
	eB := s.AddEdge(circB, vb, vb)
	eT := s.AddEdge(circT, vt, vt)
	eS := s.AddEdge(nurbs.Line(s.Vertices[vb].Point.Vec, s.Vertices[vt].Point.Vec), vb, vt)

	side := s.AddFace(nurbs.Extrusion(circB, up), false)
	l := s.AddLoop(side, LoopOuter)
	s.AddTrim(l, eB, nurbs.Line(v3.Vec{}, v3.Vec{X: 1}), false)
	s.AddTrim(l, eS, nurbs.Line(v3.Vec{X: 1}, v3.Vec{X: 1, Y: 1}), false)
	s.AddTrim(l, eT, nurbs.Line(v3.Vec{X: 1, Y: 1}, v3.Vec{Y: 1}), true)
	s.AddTrim(l, eS, nurbs.Line(v3.Vec{Y: 1}, v3.Vec{}), true)

	disk := func(c v3.Vec, e int, reversed bool) {
		sf := nurbs.Bilinear(
			c.Add(v3.Vec{X: -radius, Y: -radius}), c.Add(v3.Vec{X: radius, Y: -radius}),
			c.Add(v3.Vec{X: radius, Y: radius}), c.Add(v3.Vec{X: -radius, Y: radius}))
		f := s.AddFace(sf, reversed)
		l := s.AddLoop(f, LoopOuter)
		s.AddTrim(l, e, nurbs.Circle(v3.Vec{X: 0.5, Y: 0.5}, x, y, 0.5), false)
	}
	disk(topCenter, eT, false)
	disk(center, eB, true)
	s.Finish()
	return s, nil
}

// NewPatch returns an open single-face solid bounded by the four boundary
// isocurves of sf. A boundary that collapses to a point becomes a singular
// trim.
func NewPatch(sf *nurbs.Surface) *Solid {
	s := New("patch")
	u0, u1 := sf.DomainU()
	v0, v1 := sf.DomainV()
	corners := [4]v2.Vec{{X: u0, Y: v0}, {X: u1, Y: v0}, {X: u1, Y: v1}, {X: u0, Y: v1}}
	a, b := sf.Bounds()
	tol := 1e-9 * math.Max(1, b.Sub(a).Length())

	var verts [4]int
	for i, c := range corners {
		p := sf.Point(c.X, c.Y)
		verts[i] = -1
		for j := 0; j < i; j++ {
			if s.Vertices[verts[j]].Point.Sub(p).Length() <= tol {
				verts[i] = verts[j]
				break
			}
		}
		if verts[i] < 0 {
			verts[i] = s.AddVertex(p)
		}
	}

	// Boundaries come as v0, u1, v1, u0, each in increasing parameter;
	// the last two run against the counter-clockwise loop.
	bounds := sf.Boundaries()
	f := s.AddFace(sf, false)
	l := s.AddLoop(f, LoopOuter)
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		uv := nurbs.Line(uv3(corners[i]), uv3(corners[j]))
		rev := i >= 2
		if bounds[i].ControlPolygonLength() <= tol {
			s.AddSingularTrim(l, verts[i], uv)
			continue
		}
		start, end := verts[i], verts[j]
		if rev {
			start, end = end, start
		}
		e := s.AddEdge(bounds[i], start, end)
		s.AddTrim(l, e, uv, rev)
	}
	s.Finish()
	return s
}

func signedArea(pts []v2.Vec) float64 {
	a := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a / 2
}

func bounds2(pts []v2.Vec) (lo, hi v2.Vec) {
	lo, hi = pts[0], pts[0]
	for _, p := range pts[1:] {
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	return lo, hi
}
