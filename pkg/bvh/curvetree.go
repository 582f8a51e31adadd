// Package bvh partitions a face's parameter domain for fast
// trimmed / untrimmed point classification.
//
// A CurveTree splits the face's trim curves into monotone pieces (BRNode)
// that answer ray crossing queries. A SurfaceTree bisects the UV rectangle
// into cells (BBNode) flagged trimmed, untrimmed or check-trim. Both are
// flat arenas with children referenced by index.
package bvh

import (
	"math"
	"sort"

	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/sample"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"
)

// MaxLineDepth bounds the subdivision of a monotone trim piece.
const MaxLineDepth = 3

// BRNode is a piece of one trim curve over [T0, T1].
type BRNode struct {
	Trim        int
	T0, T1      float64
	Start, End  v2.Vec
	Min, Max    v2.Vec
	XIncreasing bool
	Horizontal  bool
	Vertical    bool
	Children    [2]int // -1 on leaves
}

// Leaf reports whether n has no children.
func (n *BRNode) Leaf() bool { return n.Children[0] < 0 }

// CurveTree is the BRNode arena for one face.
type CurveTree struct {
	Nodes  []BRNode
	Roots  []int
	leaves []int
	byU    []int // leaves sorted by Min.X
	byV    []int // leaves sorted by Min.Y
	curves []*nurbs.Curve
}

// BuildCurveTree splits each trim curve at its horizontal and vertical
// tangents and subdivides the monotone pieces until they are nearly
// straight. trims holds the curve of each entry in the face's loops.
func BuildCurveTree(trims []*nurbs.Curve) *CurveTree {
	ct := &CurveTree{curves: trims}
	for i, c := range trims {
		breaks := monotoneBreaks(c)
		for k := 1; k < len(breaks); k++ {
			if breaks[k]-breaks[k-1] < nurbs.Epsilon {
				continue
			}
			ct.Roots = append(ct.Roots, ct.subdivide(i, breaks[k-1], breaks[k], 0))
		}
	}
	for i := range ct.Nodes {
		if ct.Nodes[i].Leaf() {
			ct.leaves = append(ct.leaves, i)
		}
	}
	ct.byU = append([]int(nil), ct.leaves...)
	ct.byV = append([]int(nil), ct.leaves...)
	sort.SliceStable(ct.byU, func(a, b int) bool { return ct.Nodes[ct.byU[a]].Min.X < ct.Nodes[ct.byU[b]].Min.X })
	sort.SliceStable(ct.byV, func(a, b int) bool { return ct.Nodes[ct.byV[a]].Min.Y < ct.Nodes[ct.byV[b]].Min.Y })
	return ct
}

func (ct *CurveTree) subdivide(trim int, t0, t1 float64, depth int) int {
	c := ct.curves[trim]
	a, b := uv(c.Point(t0)), uv(c.Point(t1))
	n := BRNode{
		Trim: trim, T0: t0, T1: t1, Start: a, End: b,
		Min:         v2.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max:         v2.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
		XIncreasing: b.X > a.X,
		Horizontal:  math.Abs(b.Y-a.Y) < nurbs.Epsilon,
		Vertical:    math.Abs(b.X-a.X) < nurbs.Epsilon,
		Children:    [2]int{-1, -1},
	}
	idx := len(ct.Nodes)
	ct.Nodes = append(ct.Nodes, n)
	if depth >= MaxLineDepth || isLinear(c, t0, t1) {
		return idx
	}
	tm := (t0 + t1) / 2
	left := ct.subdivide(trim, t0, tm, depth+1)
	right := ct.subdivide(trim, tm, t1, depth+1)
	ct.Nodes[idx].Children = [2]int{left, right}
	return idx
}

func uv(p v3.Vec) v2.Vec { return v2.Vec{X: p.X, Y: p.Y} }

func isLinear(c *nurbs.Curve, t0, t1 float64) bool {
	a, b := c.Point(t0), c.Point(t1)
	chord := b.Sub(a).Length()
	for _, f := range []float64{0.25, 0.5, 0.75} {
		if sample.SegmentDistance(c.Point(t0+(t1-t0)*f), a, b) > 1e-3*chord+nurbs.Epsilon {
			return false
		}
	}
	return true
}

// monotoneBreaks returns the sorted parameters, ends included, where the
// curve's u or v derivative changes sign.
func monotoneBreaks(c *nurbs.Curve) []float64 {
	t0, t1 := c.Domain()
	breaks := []float64{t0, t1}
	knots := c.SpanKnots()
	const steps = 16
	comps := []func(v3.Vec) float64{
		func(v v3.Vec) float64 { return v.X },
		func(v v3.Vec) float64 { return v.Y },
	}
	for k := 1; k < len(knots); k++ {
		a, b := knots[k-1], knots[k]
		for _, comp := range comps {
			// Track the last sample with a nonzero derivative so a sample
			// landing exactly on the root still brackets it.
			lastT, lastV := a, 0.0
			for i := 0; i <= steps; i++ {
				t := a + (b-a)*float64(i)/steps
				switch i {
				case 0:
					t = a + (b-a)*1e-9
				case steps:
					t = b - (b-a)*1e-9
				}
				v := comp(c.Derivatives(t, 1)[1])
				if math.Abs(v) < nurbs.Epsilon {
					continue
				}
				if signChange(lastV, v) {
					breaks = append(breaks, bisectRoot(c, lastT, t, comp))
				}
				lastT, lastV = t, v
			}
		}
		// Tangent direction may jump at a knot.
		if k < len(knots)-1 {
			breaks = append(breaks, b)
		}
	}
	sort.Float64s(breaks)
	return lo.Uniq(breaks)
}

func signChange(a, b float64) bool {
	return (a > 0 && b < 0) || (a < 0 && b > 0)
}

func bisectRoot(c *nurbs.Curve, a, b float64, comp func(v3.Vec) float64) float64 {
	fa := comp(c.Derivatives(a, 1)[1])
	for i := 0; i < 50; i++ {
		m := (a + b) / 2
		fm := comp(c.Derivatives(m, 1)[1])
		if signChange(fa, fm) {
			b = m
		} else {
			a, fa = m, fm
		}
	}
	return (a + b) / 2
}

// Leaves returns the leaf node indices.
func (ct *CurveTree) Leaves() []int { return ct.leaves }

// Empty reports whether the tree has no leaves.
func (ct *CurveTree) Empty() bool { return len(ct.leaves) == 0 }

// QueryAbove returns the leaves whose u range spans pt within tol and that
// reach above pt, sorted by their lowest v.
func (ct *CurveTree) QueryAbove(pt v2.Vec, tol float64) []int {
	end := sort.Search(len(ct.byU), func(i int) bool { return ct.Nodes[ct.byU[i]].Min.X > pt.X+tol })
	hits := lo.Filter(ct.byU[:end], func(i int, _ int) bool {
		n := &ct.Nodes[i]
		return n.Max.X >= pt.X-tol && n.Max.Y >= pt.Y-tol
	})
	sort.SliceStable(hits, func(a, b int) bool { return ct.Nodes[hits[a]].Min.Y < ct.Nodes[hits[b]].Min.Y })
	return hits
}

// QueryRight returns the leaves whose v range spans pt within tol and that
// reach right of pt, sorted by their lowest u.
func (ct *CurveTree) QueryRight(pt v2.Vec, tol float64) []int {
	end := sort.Search(len(ct.byV), func(i int) bool { return ct.Nodes[ct.byV[i]].Min.Y > pt.Y+tol })
	hits := lo.Filter(ct.byV[:end], func(i int, _ int) bool {
		n := &ct.Nodes[i]
		return n.Max.Y >= pt.Y-tol && n.Max.X >= pt.X-tol
	})
	sort.SliceStable(hits, func(a, b int) bool { return ct.Nodes[hits[a]].Min.X < ct.Nodes[hits[b]].Min.X })
	return hits
}

// Direction selects the ray used by Crossings.
type Direction int

const (
	Up    Direction = iota // +v
	Right                  // +u
)

// Crossings counts how many times the ray from pt in direction dir
// crosses the trim curves. Each leaf spans a half-open interval so shared
// end points count once.
func (ct *CurveTree) Crossings(pt v2.Vec, dir Direction) int {
	var cands []int
	if dir == Up {
		cands = ct.QueryAbove(pt, 0)
	} else {
		cands = ct.QueryRight(pt, 0)
	}
	n := 0
	for _, i := range cands {
		if ct.crosses(&ct.Nodes[i], pt, dir) {
			n++
		}
	}
	return n
}

func (ct *CurveTree) crosses(n *BRNode, pt v2.Vec, dir Direction) bool {
	// along is the coordinate the ray runs in, across the one it holds.
	along := func(p v2.Vec) float64 { return p.Y }
	across := func(p v2.Vec) float64 { return p.X }
	if dir == Right {
		along, across = across, along
	}
	a0, a1 := across(n.Start), across(n.End)
	amin, amax := math.Min(a0, a1), math.Max(a0, a1)
	x := across(pt)
	if amax-amin < nurbs.Epsilon || x < amin || x >= amax {
		return false
	}
	if along(pt) >= math.Max(along(n.Start), along(n.End)) {
		return false
	}
	if along(pt) < math.Min(along(n.Start), along(n.End)) {
		return true
	}
	// Monotone piece: bisect for the parameter where across equals x.
	c := ct.curves[n.Trim]
	t0, t1 := n.T0, n.T1
	inc := a1 > a0
	for i := 0; i < 60; i++ {
		tm := (t0 + t1) / 2
		v := across(uv(c.Point(tm)))
		if (v < x) == inc {
			t0 = tm
		} else {
			t1 = tm
		}
	}
	return along(uv(c.Point((t0+t1)/2))) > along(pt)
}

// Near reports whether pt lies within tol of a trim curve.
func (ct *CurveTree) Near(pt v2.Vec, tol float64) bool {
	p := v3.Vec{X: pt.X, Y: pt.Y}
	for _, i := range ct.leaves {
		n := &ct.Nodes[i]
		if pt.X < n.Min.X-tol || pt.X > n.Max.X+tol || pt.Y < n.Min.Y-tol || pt.Y > n.Max.Y+tol {
			continue
		}
		c := ct.curves[n.Trim]
		const segs = 8
		prev := c.Point(n.T0)
		for k := 1; k <= segs; k++ {
			next := c.Point(n.T0 + (n.T1-n.T0)*float64(k)/segs)
			if sample.SegmentDistance(p, prev, next) <= tol {
				return true
			}
			prev = next
		}
	}
	return false
}

// Inside reports whether pt is inside the trimmed region by the parity of
// its crossings in both ray directions. ok is false when the two
// directions disagree.
func (ct *CurveTree) Inside(pt v2.Vec) (inside, ok bool) {
	up := ct.Crossings(pt, Up)%2 == 1
	right := ct.Crossings(pt, Right)%2 == 1
	return up, up == right
}
