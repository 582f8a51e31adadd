// Package sample adaptively subdivides parametric curves until every chord
// meets a tolerance record.
package sample

import (
	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/tolerance"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MaxDepth bounds the recursion for any tolerance record.
const MaxDepth = 32

// Evaluator is a parametric curve the sampler can query.
type Evaluator interface {
	Point(t float64) v3.Vec
	Tangent(t float64) (v3.Vec, bool)
}

var _ Evaluator = (*nurbs.Curve)(nil)

// NormalFunc returns a surface normal along the curve at t. The sampler
// only consults it to decide splits.
type NormalFunc func(t float64) (v3.Vec, bool)

// Sample is one accepted curve point. Tangent is zero where evaluation
// failed.
type Sample struct {
	T       float64
	P       v3.Vec
	Tangent v3.Vec
}

// Sampler holds the thresholds for one curve.
type Sampler struct {
	Tol tolerance.Record
	// Normals adds the surface normal angle test of each adjacent face.
	Normals  []NormalFunc
	MaxDepth int
}

func (s *Sampler) maxDepth() int {
	if s.MaxDepth <= 0 || s.MaxDepth > MaxDepth {
		return MaxDepth
	}
	return s.MaxDepth
}

// At evaluates a sample at t.
func At(c Evaluator, t float64) Sample {
	tan, _ := c.Tangent(t)
	return Sample{T: t, P: c.Point(t), Tangent: tan}
}

// Curve emits, in parameter order, the interior points needed between a
// and b. The end points themselves are not emitted.
func (s *Sampler) Curve(c Evaluator, a, b Sample, sink func(Sample)) {
	s.split(c, a, b, 0, sink)
}

func (s *Sampler) split(c Evaluator, a, b Sample, depth int, sink func(Sample)) {
	if depth >= s.maxDepth() {
		return
	}
	tm := (a.T + b.T) / 2
	tan, ok := c.Tangent(tm)
	if !ok {
		return
	}
	pm := c.Point(tm)
	if !s.needsSplit(a, b, pm) {
		return
	}
	m := Sample{T: tm, P: pm, Tangent: tan}
	s.split(c, a, m, depth+1, sink)
	sink(m)
	s.split(c, m, b, depth+1, sink)
}

func (s *Sampler) needsSplit(a, b Sample, mid v3.Vec) bool {
	tol := s.Tol
	chord := b.P.Sub(a.P).Length()
	if chord < tolerance.Zero {
		// Coincident ends only split when the curve bulges away.
		return mid.Sub(a.P).Length() > tol.WithinDist+tolerance.Zero
	}
	dev := SegmentDistance(mid, a.P, b.P)
	if chord > tol.MaxDist || dev > tol.WithinDist+tolerance.Zero {
		return true
	}
	if dev <= tol.MinDist+tolerance.Zero {
		return false
	}
	if a.Tangent.Dot(b.Tangent) < tol.CosWithinAngle-tolerance.Zero {
		return true
	}
	for _, nf := range s.Normals {
		n1, ok1 := nf(a.T)
		n2, ok2 := nf(b.T)
		if ok1 && ok2 && n1.Dot(n2) < tol.CosWithinAngle-tolerance.Zero {
			return true
		}
	}
	return false
}

// Points samples c over [t0, t1] with fixed end points p0 and p1 and
// returns every accepted sample in parameter order, ends included. A
// curve whose end points coincide is split at its midpoint first.
func (s *Sampler) Points(c Evaluator, t0, t1 float64, p0, p1 v3.Vec) []Sample {
	start, end := At(c, t0), At(c, t1)
	start.P, end.P = p0, p1
	out := []Sample{start}
	sink := func(x Sample) { out = append(out, x) }
	if p0.Sub(p1).Length() < tolerance.Zero {
		mid := At(c, (t0+t1)/2)
		s.Curve(c, start, mid, sink)
		out = append(out, mid)
		s.Curve(c, mid, end, sink)
	} else {
		s.Curve(c, start, end, sink)
	}
	out = append(out, end)
	return out
}

// Closed samples a closed curve by splitting it at the midpoint of its
// domain. p is the shared end point.
func (s *Sampler) Closed(c Evaluator, t0, t1 float64, p v3.Vec) []Sample {
	return s.Points(c, t0, t1, p, p)
}

// SegmentDistance returns the distance from p to the segment ab.
func SegmentDistance(p, a, b v3.Vec) float64 {
	ab := b.Sub(a)
	l2 := ab.Length2()
	if l2 == 0 {
		return p.Sub(a).Length()
	}
	t := p.Sub(a).Dot(ab) / l2
	switch {
	case t < 0:
		t = 0
	case t > 1:
		t = 1
	}
	return p.Sub(a.Add(ab.MulScalar(t))).Length()
}

// Sorted reports whether samples are in strictly increasing parameter
// order.
func Sorted(samples []Sample) bool {
	for i := 1; i < len(samples); i++ {
		if samples[i].T <= samples[i-1].T {
			return false
		}
	}
	return true
}
