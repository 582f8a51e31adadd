// Package nurbs evaluates rational B-spline curves and surfaces.
//
// Control points are stored in homogeneous form. Curves are 3D; trimming
// curves in a face's parameter space use the same type with z = 0.
package nurbs

import (
	"fmt"
	"math"

	"github.com/chazu/brepkit/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Curve is a NURBS curve.
type Curve struct {
	degree int
	points []hpoint
	knots  knotVec
}

// NewCurve validates and builds a curve. A nil weights slice means a
// non-rational curve.
func NewCurve(degree int, points []v3.Vec, weights []float64, knots []float64) (*Curve, error) {
	if weights == nil {
		weights = make([]float64, len(points))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(points) {
		return nil, kernel.Degenerate("curve", -1, "%d weights for %d control points", len(weights), len(points))
	}
	kv := knotVec(append([]float64(nil), knots...))
	if !kv.valid(degree, len(points)) {
		return nil, kernel.Degenerate("curve", -1,
			"invalid degree %d / %d knots / %d control points", degree, len(knots), len(points))
	}
	c := &Curve{degree: degree, knots: kv, points: make([]hpoint, len(points))}
	for i, p := range points {
		if !(weights[i] > 0) {
			return nil, kernel.Degenerate("curve", -1, "weight %d is %g", i, weights[i])
		}
		c.points[i] = homogenize(p, weights[i])
	}
	return c, nil
}

// MustCurve is NewCurve for literal geometry known to be valid.
func MustCurve(degree int, points []v3.Vec, weights []float64, knots []float64) *Curve {
	c, err := NewCurve(degree, points, weights, knots)
	if err != nil {
		panic(fmt.Sprintf("nurbs.MustCurve: %v", err))
	}
	return c
}

// Degree returns the polynomial degree.
func (c *Curve) Degree() int { return c.degree }

// Knots returns a copy of the knot vector.
func (c *Curve) Knots() []float64 { return c.knots.clone() }

// ControlPoints returns the Euclidean control points.
func (c *Curve) ControlPoints() []v3.Vec {
	out := make([]v3.Vec, len(c.points))
	for i, h := range c.points {
		out[i] = h.point()
	}
	return out
}

// Weights returns the control point weights.
func (c *Curve) Weights() []float64 {
	out := make([]float64, len(c.points))
	for i, h := range c.points {
		out[i] = h.W
	}
	return out
}

// Domain returns the parameter interval.
func (c *Curve) Domain() (min, max float64) {
	return c.knots[0], c.knots[len(c.knots)-1]
}

func (c *Curve) clamp(t float64) float64 {
	lo, hi := c.Domain()
	return math.Max(lo, math.Min(hi, t))
}

func (c *Curve) n() int { return len(c.points) - 1 }

// homogeneousDerivatives evaluates the homogeneous curve and its first d
// derivatives (algorithm A3.2).
func (c *Curve) homogeneousDerivatives(t float64, d int) []hpoint {
	t = c.clamp(t)
	p := c.degree
	span := c.knots.span(c.n(), p, t)
	nders := dersBasisFuns(span, t, p, d, c.knots)
	out := make([]hpoint, d+1)
	for k := 0; k <= d && k <= p; k++ {
		for j := 0; j <= p; j++ {
			out[k] = out[k].add(c.points[span-p+j].scale(nders[k][j]))
		}
	}
	return out
}

// Point evaluates the curve at t.
func (c *Curve) Point(t float64) v3.Vec {
	t = c.clamp(t)
	p := c.degree
	span := c.knots.span(c.n(), p, t)
	basis := basisFuns(span, t, p, c.knots)
	var h hpoint
	for j := 0; j <= p; j++ {
		h = h.add(c.points[span-p+j].scale(basis[j]))
	}
	return h.point()
}

// Derivatives returns the point and its first d derivatives at t
// (algorithm A4.2).
func (c *Curve) Derivatives(t float64, d int) []v3.Vec {
	hd := c.homogeneousDerivatives(t, d)
	ck := make([]v3.Vec, d+1)
	for k := 0; k <= d; k++ {
		v := hd[k].weighted()
		for i := 1; i <= k; i++ {
			v = v.Sub(ck[k-i].MulScalar(binomial(k, i) * hd[i].W))
		}
		ck[k] = v.DivScalar(hd[0].W)
	}
	return ck
}

// Tangent returns the unit tangent at t. It reports false where the
// first derivative vanishes.
func (c *Curve) Tangent(t float64) (v3.Vec, bool) {
	d := c.Derivatives(t, 1)[1]
	l := d.Length()
	if l < 1e-14 {
		return v3.Vec{}, false
	}
	return d.DivScalar(l), true
}

// ControlPolygonLength sums the distances between consecutive control
// points.
func (c *Curve) ControlPolygonLength() float64 {
	total := 0.0
	for i := 1; i < len(c.points); i++ {
		total += c.points[i].point().Sub(c.points[i-1].point()).Length()
	}
	return total
}

// IsClosed reports whether the end points coincide within tol.
func (c *Curve) IsClosed(tol float64) bool {
	lo, hi := c.Domain()
	return c.Point(lo).Sub(c.Point(hi)).Length() <= tol
}

// Bounds returns the control hull box, which contains the curve.
func (c *Curve) Bounds() (min, max v3.Vec) {
	min = c.points[0].point()
	max = min
	for _, h := range c.points[1:] {
		p := h.point()
		min = min.Min(p)
		max = max.Max(p)
	}
	return min, max
}

// SpanKnots returns the distinct knot values, ends included.
func (c *Curve) SpanKnots() []float64 {
	return c.knots.distinct()
}

// Refined returns the curve with the knots x inserted.
func (c *Curve) Refined(x []float64) *Curve {
	kv, pts := refine(c.degree, c.knots, c.points, x)
	return &Curve{degree: c.degree, points: pts, knots: kv}
}

// Split cuts the curve at t. It returns false if t is not strictly inside
// the domain.
func (c *Curve) Split(t float64) (*Curve, *Curve, bool) {
	lo, hi := c.Domain()
	if t <= lo+Epsilon || t >= hi-Epsilon {
		return nil, nil, false
	}
	r := c.Refined(splitKnots(c.knots, c.degree, t))
	k := splitIndex(r.knots, t)
	p := c.degree
	left := &Curve{
		degree: p,
		points: append([]hpoint(nil), r.points[:k]...),
		knots:  append(knotVec(nil), r.knots[:k+p+1]...),
	}
	right := &Curve{
		degree: p,
		points: append([]hpoint(nil), r.points[k:]...),
		knots:  append(knotVec(nil), r.knots[k:]...),
	}
	return left, right, true
}

// Segment returns the portion of the curve over [a, b].
func (c *Curve) Segment(a, b float64) *Curve {
	lo, hi := c.Domain()
	out := c
	if a > lo+Epsilon {
		if _, r, ok := out.Split(a); ok {
			out = r
		}
	}
	if b < hi-Epsilon {
		if l, _, ok := out.Split(b); ok {
			out = l
		}
	}
	return out
}

// Reparameterized returns the same curve with its domain mapped onto
// [a, b].
func (c *Curve) Reparameterized(a, b float64) *Curve {
	return &Curve{degree: c.degree, points: append([]hpoint(nil), c.points...), knots: c.knots.remap(a, b)}
}

// Reversed returns the curve traversed in the opposite direction over the
// same domain.
func (c *Curve) Reversed() *Curve {
	pts := make([]hpoint, len(c.points))
	for i := range pts {
		pts[i] = c.points[len(pts)-1-i]
	}
	return &Curve{degree: c.degree, points: pts, knots: c.knots.reversed()}
}

// Translated returns the curve moved by d.
func (c *Curve) Translated(d v3.Vec) *Curve {
	pts := make([]hpoint, len(c.points))
	for i, h := range c.points {
		pts[i] = h.translated(d)
	}
	return &Curve{degree: c.degree, points: pts, knots: c.knots.clone()}
}

// Mapped returns the curve with f applied to its control points. The
// result traces f of the curve only when f is affine.
func (c *Curve) Mapped(f func(v3.Vec) v3.Vec) *Curve {
	pts := make([]hpoint, len(c.points))
	for i, h := range c.points {
		pts[i] = homogenize(f(h.point()), h.W)
	}
	return &Curve{degree: c.degree, points: pts, knots: c.knots.clone()}
}

// ClosestParam returns the parameter of the point on the curve nearest p,
// found by sampling and a bounded Newton refinement.
func (c *Curve) ClosestParam(p v3.Vec) float64 {
	lo, hi := c.Domain()
	const samples = 64
	best, bestDist := lo, math.Inf(1)
	for i := 0; i <= samples; i++ {
		t := lo + (hi-lo)*float64(i)/samples
		if d := c.Point(t).Sub(p).Length2(); d < bestDist {
			best, bestDist = t, d
		}
	}
	t := best
	for iter := 0; iter < 20; iter++ {
		d := c.Derivatives(t, 2)
		diff := d[0].Sub(p)
		f := d[1].Dot(diff)
		df := d[2].Dot(diff) + d[1].Dot(d[1])
		if math.Abs(df) < 1e-14 {
			break
		}
		next := c.clamp(t - f/df)
		if math.Abs(next-t) < 1e-12 {
			t = next
			break
		}
		t = next
	}
	return t
}

// Line returns the degree 1 curve from a to b over [0, 1].
func Line(a, b v3.Vec) *Curve {
	return &Curve{
		degree: 1,
		points: []hpoint{homogenize(a, 1), homogenize(b, 1)},
		knots:  knotVec{0, 0, 1, 1},
	}
}

// Polyline returns a degree 1 curve through pts parameterized by
// cumulative chord length. It needs at least two distinct points.
func Polyline(pts []v3.Vec) (*Curve, error) {
	if len(pts) < 2 {
		return nil, kernel.Degenerate("curve", -1, "polyline needs 2 points, got %d", len(pts))
	}
	kv := make(knotVec, 0, len(pts)+2)
	kv = append(kv, 0, 0)
	acc := 0.0
	for i := 1; i < len(pts); i++ {
		step := pts[i].Sub(pts[i-1]).Length()
		if step < Epsilon {
			return nil, kernel.Degenerate("curve", -1, "polyline repeats point %d", i)
		}
		acc += step
		kv = append(kv, acc)
	}
	kv = append(kv, acc)
	hp := make([]hpoint, len(pts))
	for i, p := range pts {
		hp[i] = homogenize(p, 1)
	}
	return &Curve{degree: 1, points: hp, knots: kv}, nil
}

// Arc returns a rational quadratic circular arc of the given radius about
// center, in the plane spanned by the orthonormal axes x and y, sweeping
// from angle a0 to a1 in radians (algorithm A7.1). The domain is [0, 1].
func Arc(center, x, y v3.Vec, radius, a0, a1 float64) *Curve {
	if a1 < a0 {
		a1 += 2 * math.Pi
	}
	theta := a1 - a0
	narcs := 4
	switch {
	case theta <= math.Pi/2:
		narcs = 1
	case theta <= math.Pi:
		narcs = 2
	case theta <= 3*math.Pi/2:
		narcs = 3
	}
	dtheta := theta / float64(narcs)
	w1 := math.Cos(dtheta / 2)

	at := func(a float64) v3.Vec {
		return center.Add(x.MulScalar(radius * math.Cos(a))).Add(y.MulScalar(radius * math.Sin(a)))
	}
	tangent := func(a float64) v3.Vec {
		return x.MulScalar(-math.Sin(a)).Add(y.MulScalar(math.Cos(a)))
	}

	pts := []hpoint{homogenize(at(a0), 1)}
	p0, t0 := at(a0), tangent(a0)
	angle := a0
	for i := 1; i <= narcs; i++ {
		angle += dtheta
		p2, t2 := at(angle), tangent(angle)
		// The middle control point is the tangent intersection.
		mid := p0.Add(t0.MulScalar(radius * math.Tan(dtheta/2)))
		pts = append(pts, homogenize(mid, w1), homogenize(p2, 1))
		p0, t0 = p2, t2
	}

	kv := make(knotVec, 0, 2*narcs+4)
	kv = append(kv, 0, 0, 0)
	for i := 1; i < narcs; i++ {
		u := float64(i) / float64(narcs)
		kv = append(kv, u, u)
	}
	kv = append(kv, 1, 1, 1)
	return &Curve{degree: 2, points: pts, knots: kv}
}

// Circle returns a full circle as an Arc.
func Circle(center, x, y v3.Vec, radius float64) *Curve {
	return Arc(center, x, y, radius, 0, 2*math.Pi)
}
