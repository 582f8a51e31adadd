package bvh

import (
	"math"

	"github.com/chazu/brepkit/pkg/sample"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
)

// segment is one edge of a sampled trim polygon.
type segment struct {
	a, b v2.Vec
	rect rtreego.Rect
}

func (s *segment) Bounds() rtreego.Rect { return s.rect }

// SegmentIndex is an R-tree over the segments of sampled trim loops,
// used to keep interior samples off the boundary.
type SegmentIndex struct {
	tree *rtreego.Rtree
	n    int
}

// NewSegmentIndex indexes the closed polygons in loops. Boxes are padded by
// eps so axis aligned segments still have volume.
func NewSegmentIndex(loops [][]v2.Vec, eps float64) *SegmentIndex {
	if eps <= 0 {
		eps = 1e-12
	}
	var objs []rtreego.Spatial
	for _, loop := range loops {
		for i := range loop {
			a, b := loop[i], loop[(i+1)%len(loop)]
			if a == b {
				continue
			}
			r, err := rtreego.NewRect(
				rtreego.Point{math.Min(a.X, b.X) - eps, math.Min(a.Y, b.Y) - eps},
				[]float64{math.Abs(b.X-a.X) + 2*eps, math.Abs(b.Y-a.Y) + 2*eps},
			)
			if err != nil {
				continue
			}
			objs = append(objs, &segment{a: a, b: b, rect: r})
		}
	}
	return &SegmentIndex{tree: rtreego.NewTree(2, 4, 16, objs...), n: len(objs)}
}

// Len returns the number of indexed segments.
func (ix *SegmentIndex) Len() int { return ix.n }

// Near reports whether p lies within d of an indexed segment.
func (ix *SegmentIndex) Near(p v2.Vec, d float64) bool {
	if ix.n == 0 {
		return false
	}
	if d <= 0 {
		d = 1e-12
	}
	q, err := rtreego.NewRect(rtreego.Point{p.X - d, p.Y - d}, []float64{2 * d, 2 * d})
	if err != nil {
		return false
	}
	pp := v3.Vec{X: p.X, Y: p.Y}
	for _, obj := range ix.tree.SearchIntersect(q) {
		s := obj.(*segment)
		if sample.SegmentDistance(pp, v3.Vec{X: s.a.X, Y: s.a.Y}, v3.Vec{X: s.b.X, Y: s.b.Y}) <= d {
			return true
		}
	}
	return false
}
