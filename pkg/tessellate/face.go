package tessellate

import (
	"fmt"
	"math"
	"sort"

	"github.com/ByteArena/poly2tri-go"
	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/bvh"
	"github.com/chazu/brepkit/pkg/domain"
	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/tolerance"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"
)

// FaceMesh is the triangulation of one face. The first Boundary points
// come from the face's trim loops and are shared with neighbouring faces;
// the rest are interior samples owned by this face.
type FaceMesh struct {
	Face      int
	Points    []*kernel.Point3
	UV        []v2.Vec
	Normals   []v3.Vec // oriented face normal at each point
	Triangles [][3]int // into Points, wound with the oriented normal
	Boundary  int
}

// Tree builds the trim classification tree of face f over its rescaled
// domain.
func Tree(m *domain.Manager, f int) *bvh.SurfaceTree {
	s := m.Solid()
	var trims []*nurbs.Curve
	for _, l := range s.Faces[f].Loops {
		for _, t := range s.Loops[l].Trims {
			trims = append(trims, m.TrimCurve(t))
		}
	}
	w, h := m.SurfaceDomain(f)
	return bvh.Build(v2.Vec{}, v2.Vec{X: w, Y: h}, bvh.BuildCurveTree(trims), bvh.Options{})
}

// Face triangulates face f. The outer loop is the constraint contour and
// the other loops are holes; interior samples the tree classifies as
// untrimmed are added as Steiner points. A nil tree is built on demand.
func Face(m *domain.Manager, f int, tree *bvh.SurfaceTree) (*FaceMesh, error) {
	s := m.Solid()
	if f < 0 || f >= len(s.Faces) {
		return nil, kernel.IndexError("face", f, len(s.Faces))
	}
	loops, err := faceLoops(m, f)
	if err != nil {
		return nil, err
	}
	if len(loops) == 0 {
		return nil, kernel.Degenerate("face", f, "cannot evaluate its outer loop")
	}
	if tree == nil {
		tree = Tree(m, f)
	}

	fm := &FaceMesh{Face: f}
	seen := make(map[v2.Vec]bool)
	polys := make([][]*poly2tri.Point, len(loops))
	index := make(map[*poly2tri.Point]int)
	var segs [][]v2.Vec
	for li, loop := range loops {
		uvs := make([]v2.Vec, len(loop))
		for i, tp := range loop {
			if seen[tp.UV] {
				return nil, kernel.Tessellation("face", f, "loop %d repeats parameter point %v", li, tp.UV)
			}
			seen[tp.UV] = true
			p := poly2tri.NewPoint(tp.UV.X, tp.UV.Y)
			index[p] = len(fm.Points)
			polys[li] = append(polys[li], p)
			fm.addPoint(m, tp.P, tp.UV)
			uvs[i] = tp.UV
		}
		segs = append(segs, uvs)
	}
	fm.Boundary = len(fm.Points)

	steiner := interiorPoints(m, f, tree, bvh.NewSegmentIndex(segs, kernel.Epsilon), seen)
	var extra []*poly2tri.Point
	sf := m.Surface(f)
	for _, uv := range steiner {
		p := poly2tri.NewPoint(uv.X, uv.Y)
		index[p] = len(fm.Points)
		extra = append(extra, p)
		fm.addPoint(m, kernel.NewPoint3(sf.Point(uv.X, uv.Y)), uv)
	}

	tris, err := triangulate(polys, extra)
	if err != nil {
		return nil, kernel.Tessellation("face", f, "%v", err)
	}
	reversed := s.Faces[f].Reversed
	for _, tr := range tris {
		var idx [3]int
		ok := true
		for k := 0; k < 3; k++ {
			i, found := index[tr.Points[k]]
			if !found {
				ok = false
				break
			}
			idx[k] = i
		}
		if !ok {
			return nil, kernel.Tessellation("face", f, "triangle references an unknown point")
		}
		a, b, c := idx[0], idx[1], idx[2]
		// Collapsed by a singular trim.
		if fm.Points[a] == fm.Points[b] || fm.Points[b] == fm.Points[c] || fm.Points[a] == fm.Points[c] {
			continue
		}
		// Counter-clockwise in (u, v) follows Su x Sv.
		if cross2(fm.UV[a], fm.UV[b], fm.UV[c]) < 0 {
			b, c = c, b
		}
		if reversed {
			b, c = c, b
		}
		fm.Triangles = append(fm.Triangles, [3]int{a, b, c})
	}
	if len(fm.Triangles) == 0 {
		return nil, kernel.Tessellation("face", f, "no triangles")
	}
	kernel.Logger().Debug("face tessellated", "face", f, "points", len(fm.Points), "boundary", fm.Boundary, "triangles", len(fm.Triangles))
	return fm, nil
}

func (fm *FaceMesh) addPoint(m *domain.Manager, p *kernel.Point3, uv v2.Vec) {
	n, _ := m.FaceNormal(fm.Face, uv)
	fm.Points = append(fm.Points, p)
	fm.UV = append(fm.UV, uv)
	fm.Normals = append(fm.Normals, n)
}

// faceLoops returns the open polygons of face f, outer loop first. Loops
// with fewer than three distinct points are dropped.
func faceLoops(m *domain.Manager, f int) ([][]domain.TrimPoint, error) {
	s := m.Solid()
	loops := append([]int(nil), s.Faces[f].Loops...)
	sort.SliceStable(loops, func(a, b int) bool {
		return s.Loops[loops[a]].Kind == brep.LoopOuter && s.Loops[loops[b]].Kind != brep.LoopOuter
	})
	var out [][]domain.TrimPoint
	for _, l := range loops {
		pts, err := m.LoopPoints(l)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", f, err)
		}
		pts = pts[:len(pts)-1]
		// Consecutive repeats appear where trims meet.
		var open []domain.TrimPoint
		for i, p := range pts {
			if i > 0 && p.UV == open[len(open)-1].UV {
				continue
			}
			open = append(open, p)
		}
		if len(open) > 1 && open[0].UV == open[len(open)-1].UV {
			open = open[:len(open)-1]
		}
		if len(open) < 3 {
			kernel.Logger().Debug("loop skipped", "face", f, "loop", l, "points", len(open))
			continue
		}
		out = append(out, open)
	}
	return out, nil
}

// interiorPoints samples the face interior and keeps the samples that lie
// inside the trimmed region and off its boundary.
func interiorPoints(m *domain.Manager, f int, tree *bvh.SurfaceTree, segs *bvh.SegmentIndex, seen map[v2.Vec]bool) []v2.Vec {
	s := m.Solid()
	tess, base := m.Tolerances()
	if m.SurfaceSize(f).TooSmall(base) {
		return nil
	}
	min := v2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	max := v2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, l := range s.Faces[f].Loops {
		for _, t := range s.Loops[l].Trims {
			lo3, hi3 := m.TrimCurve(t).Bounds()
			min = v2.Vec{X: math.Min(min.X, lo3.X), Y: math.Min(min.Y, lo3.Y)}
			max = v2.Vec{X: math.Max(max.X, hi3.X), Y: math.Max(max.Y, hi3.Y)}
		}
	}
	if min.X > max.X || min.Y > max.Y {
		return nil
	}
	sf := m.Surface(f)
	rec := tolerance.ForSurface(s.Diagonal(), tess, base)
	pts := surfacePoints(sf, min, max, rec, sf.IsClosed(false, base.Dist), sf.IsClosed(true, base.Dist))
	pts = append(pts, checkTrimPoints(sf, tree, rec, segs)...)
	return lo.Filter(lo.Uniq(pts), func(uv v2.Vec, _ int) bool {
		return !seen[uv] && tree.Classify(uv) == bvh.Untrimmed && !segs.Near(uv, base.Dist)
	})
}

// checkTrimPoints samples the leaves that straddle a trim one level finer
// than the tree resolves them. Samples closer to a trim segment than an
// eighth of their leaf are dropped.
func checkTrimPoints(sf *nurbs.Surface, tree *bvh.SurfaceTree, rec tolerance.Record, segs *bvh.SegmentIndex) []v2.Vec {
	var out []v2.Vec
	for _, i := range tree.Leaves() {
		n := &tree.Nodes[i]
		if !n.CheckTrim {
			continue
		}
		s := &interior{sf: sf, tol: rec}
		s.refine(n.Min, n.Max)
		d := math.Min(n.Max.X-n.Min.X, n.Max.Y-n.Min.Y) / 8
		out = append(out, lo.Reject(s.pts, func(uv v2.Vec, _ int) bool { return segs.Near(uv, d) })...)
	}
	return out
}

// triangulate runs the constrained sweep. poly2tri panics on input it
// cannot handle, so the panic is returned as an error.
func triangulate(loops [][]*poly2tri.Point, steiner []*poly2tri.Point) (tris []*poly2tri.Triangle, err error) {
	defer func() {
		if r := recover(); r != nil {
			tris, err = nil, fmt.Errorf("triangulation panicked: %v", r)
		}
	}()
	ctx := poly2tri.NewSweepContext(loops[0], false)
	for _, hole := range loops[1:] {
		ctx.AddHole(hole)
	}
	for _, p := range steiner {
		ctx.AddPoint(p)
	}
	ctx.Triangulate()
	return ctx.GetTriangles(), nil
}

func cross2(a, b, c v2.Vec) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}
