package nurbs

import (
	"fmt"
	"math"

	"github.com/chazu/brepkit/pkg/kernel"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Surface is a tensor-product NURBS surface. Control points are indexed
// [i][j] with i running along u and j along v.
type Surface struct {
	degreeU, degreeV int
	points           [][]hpoint
	knotsU, knotsV   knotVec
}

// NewSurface validates and builds a surface. A nil weights slice means a
// non-rational surface.
func NewSurface(degreeU, degreeV int, points [][]v3.Vec, weights [][]float64, knotsU, knotsV []float64) (*Surface, error) {
	if len(points) == 0 || len(points[0]) == 0 {
		return nil, kernel.Degenerate("surface", -1, "empty control net")
	}
	rows, cols := len(points), len(points[0])
	ku := knotVec(append([]float64(nil), knotsU...))
	kv := knotVec(append([]float64(nil), knotsV...))
	if !ku.valid(degreeU, rows) {
		return nil, kernel.Degenerate("surface", -1, "invalid u knots for degree %d and %d rows", degreeU, rows)
	}
	if !kv.valid(degreeV, cols) {
		return nil, kernel.Degenerate("surface", -1, "invalid v knots for degree %d and %d columns", degreeV, cols)
	}
	s := &Surface{degreeU: degreeU, degreeV: degreeV, knotsU: ku, knotsV: kv, points: make([][]hpoint, rows)}
	for i, row := range points {
		if len(row) != cols {
			return nil, kernel.Degenerate("surface", -1, "row %d has %d points, want %d", i, len(row), cols)
		}
		s.points[i] = make([]hpoint, cols)
		for j, p := range row {
			w := 1.0
			if weights != nil {
				w = weights[i][j]
			}
			if !(w > 0) {
				return nil, kernel.Degenerate("surface", -1, "weight [%d][%d] is %g", i, j, w)
			}
			s.points[i][j] = homogenize(p, w)
		}
	}
	return s, nil
}

// MustSurface is NewSurface for literal geometry known to be valid.
func MustSurface(degreeU, degreeV int, points [][]v3.Vec, weights [][]float64, knotsU, knotsV []float64) *Surface {
	s, err := NewSurface(degreeU, degreeV, points, weights, knotsU, knotsV)
	if err != nil {
		panic(fmt.Sprintf("nurbs.MustSurface: %v", err))
	}
	return s
}

// Degrees returns the u and v degrees.
func (s *Surface) Degrees() (u, v int) { return s.degreeU, s.degreeV }

// KnotsU returns a copy of the u knot vector.
func (s *Surface) KnotsU() []float64 { return s.knotsU.clone() }

// KnotsV returns a copy of the v knot vector.
func (s *Surface) KnotsV() []float64 { return s.knotsV.clone() }

// ControlPoints returns the Euclidean control net.
func (s *Surface) ControlPoints() [][]v3.Vec {
	out := make([][]v3.Vec, len(s.points))
	for i, row := range s.points {
		out[i] = make([]v3.Vec, len(row))
		for j, h := range row {
			out[i][j] = h.point()
		}
	}
	return out
}

// DomainU returns the u parameter interval.
func (s *Surface) DomainU() (min, max float64) {
	return s.knotsU[0], s.knotsU[len(s.knotsU)-1]
}

// DomainV returns the v parameter interval.
func (s *Surface) DomainV() (min, max float64) {
	return s.knotsV[0], s.knotsV[len(s.knotsV)-1]
}

// Clamp moves uv into the parameter domain.
func (s *Surface) Clamp(uv v2.Vec) v2.Vec {
	u0, u1 := s.DomainU()
	v0, v1 := s.DomainV()
	return v2.Vec{X: math.Max(u0, math.Min(u1, uv.X)), Y: math.Max(v0, math.Min(v1, uv.Y))}
}

// Contains reports whether uv lies in the domain within tol.
func (s *Surface) Contains(uv v2.Vec, tol float64) bool {
	u0, u1 := s.DomainU()
	v0, v1 := s.DomainV()
	return uv.X >= u0-tol && uv.X <= u1+tol && uv.Y >= v0-tol && uv.Y <= v1+tol
}

// Point evaluates the surface (algorithm A4.3).
func (s *Surface) Point(u, v float64) v3.Vec {
	uv := s.Clamp(v2.Vec{X: u, Y: v})
	p, q := s.degreeU, s.degreeV
	su := s.knotsU.span(len(s.points)-1, p, uv.X)
	sv := s.knotsV.span(len(s.points[0])-1, q, uv.Y)
	nu := basisFuns(su, uv.X, p, s.knotsU)
	nv := basisFuns(sv, uv.Y, q, s.knotsV)
	var h hpoint
	for l := 0; l <= q; l++ {
		var temp hpoint
		for k := 0; k <= p; k++ {
			temp = temp.add(s.points[su-p+k][sv-q+l].scale(nu[k]))
		}
		h = h.add(temp.scale(nv[l]))
	}
	return h.point()
}

// homogeneousDerivatives computes SKLw[k][l] for k+l <= d (algorithm A3.6).
func (s *Surface) homogeneousDerivatives(u, v float64, d int) [][]hpoint {
	p, q := s.degreeU, s.degreeV
	su := s.knotsU.span(len(s.points)-1, p, u)
	sv := s.knotsV.span(len(s.points[0])-1, q, v)
	nu := dersBasisFuns(su, u, p, d, s.knotsU)
	nv := dersBasisFuns(sv, v, q, d, s.knotsV)

	skl := make([][]hpoint, d+1)
	for k := range skl {
		skl[k] = make([]hpoint, d+1)
	}
	temp := make([]hpoint, q+1)
	for k := 0; k <= d && k <= p; k++ {
		for j := 0; j <= q; j++ {
			temp[j] = hpoint{}
			for r := 0; r <= p; r++ {
				temp[j] = temp[j].add(s.points[su-p+r][sv-q+j].scale(nu[k][r]))
			}
		}
		for l := 0; l <= d-k && l <= q; l++ {
			for j := 0; j <= q; j++ {
				skl[k][l] = skl[k][l].add(temp[j].scale(nv[l][j]))
			}
		}
	}
	return skl
}

// Derivatives returns SKL[k][l], the k-th u and l-th v partial derivative
// for k+l <= d (algorithm A4.4). SKL[0][0] is the point.
func (s *Surface) Derivatives(u, v float64, d int) [][]v3.Vec {
	uv := s.Clamp(v2.Vec{X: u, Y: v})
	aw := s.homogeneousDerivatives(uv.X, uv.Y, d)
	skl := make([][]v3.Vec, d+1)
	for k := range skl {
		skl[k] = make([]v3.Vec, d+1)
	}
	w00 := aw[0][0].W
	for k := 0; k <= d; k++ {
		for l := 0; l <= d-k; l++ {
			val := aw[k][l].weighted()
			for j := 1; j <= l; j++ {
				val = val.Sub(skl[k][l-j].MulScalar(binomial(l, j) * aw[0][j].W))
			}
			for i := 1; i <= k; i++ {
				val = val.Sub(skl[k-i][l].MulScalar(binomial(k, i) * aw[i][0].W))
				var v2sum v3.Vec
				for j := 1; j <= l; j++ {
					v2sum = v2sum.Add(skl[k-i][l-j].MulScalar(binomial(l, j) * aw[i][j].W))
				}
				val = val.Sub(v2sum.MulScalar(binomial(k, i)))
			}
			skl[k][l] = val.DivScalar(w00)
		}
	}
	return skl
}

// Normal returns the unit normal Su x Sv. It reports false where the
// partials are parallel or vanish.
func (s *Surface) Normal(u, v float64) (v3.Vec, bool) {
	d := s.Derivatives(u, v, 1)
	n := d[1][0].Cross(d[0][1])
	l := n.Length()
	if l < 1e-14 {
		return v3.Vec{}, false
	}
	return n.DivScalar(l), true
}

// PointNormal returns both the point and unit normal at (u, v).
func (s *Surface) PointNormal(u, v float64) (v3.Vec, v3.Vec, bool) {
	d := s.Derivatives(u, v, 1)
	n := d[1][0].Cross(d[0][1])
	l := n.Length()
	if l < 1e-14 {
		return d[0][0], v3.Vec{}, false
	}
	return d[0][0], n.DivScalar(l), true
}

// IsoU returns the isocurve at constant u, parameterized by v.
func (s *Surface) IsoU(u float64) *Curve {
	lo, hi := s.DomainU()
	u = math.Max(lo, math.Min(hi, u))
	p := s.degreeU
	span := s.knotsU.span(len(s.points)-1, p, u)
	basis := basisFuns(span, u, p, s.knotsU)
	pts := make([]hpoint, len(s.points[0]))
	for j := range pts {
		for k := 0; k <= p; k++ {
			pts[j] = pts[j].add(s.points[span-p+k][j].scale(basis[k]))
		}
	}
	return &Curve{degree: s.degreeV, points: pts, knots: s.knotsV.clone()}
}

// IsoV returns the isocurve at constant v, parameterized by u.
func (s *Surface) IsoV(v float64) *Curve {
	lo, hi := s.DomainV()
	v = math.Max(lo, math.Min(hi, v))
	q := s.degreeV
	span := s.knotsV.span(len(s.points[0])-1, q, v)
	basis := basisFuns(span, v, q, s.knotsV)
	pts := make([]hpoint, len(s.points))
	for i := range pts {
		for k := 0; k <= q; k++ {
			pts[i] = pts[i].add(s.points[i][span-q+k].scale(basis[k]))
		}
	}
	return &Curve{degree: s.degreeU, points: pts, knots: s.knotsU.clone()}
}

// Boundaries returns the four boundary isocurves in the order
// v = v0, u = u1, v = v1, u = u0.
func (s *Surface) Boundaries() [4]*Curve {
	u0, u1 := s.DomainU()
	v0, v1 := s.DomainV()
	return [4]*Curve{s.IsoV(v0), s.IsoU(u1), s.IsoV(v1), s.IsoU(u0)}
}

// column returns the control points with fixed v index j.
func (s *Surface) column(j int) []hpoint {
	out := make([]hpoint, len(s.points))
	for i := range s.points {
		out[i] = s.points[i][j]
	}
	return out
}

// Split cuts the surface at t along u, or along v when alongV is set. It
// returns false if t is not strictly inside that domain.
func (s *Surface) Split(t float64, alongV bool) (*Surface, *Surface, bool) {
	if !alongV {
		lo, hi := s.DomainU()
		if t <= lo+Epsilon || t >= hi-Epsilon {
			return nil, nil, false
		}
		x := splitKnots(s.knotsU, s.degreeU, t)
		cols := len(s.points[0])
		var nk knotVec
		refined := make([][]hpoint, cols)
		for j := 0; j < cols; j++ {
			nk, refined[j] = refine(s.degreeU, s.knotsU, s.column(j), x)
		}
		k := splitIndex(nk, t)
		left := &Surface{degreeU: s.degreeU, degreeV: s.degreeV, knotsU: append(knotVec(nil), nk[:k+s.degreeU+1]...), knotsV: s.knotsV.clone()}
		right := &Surface{degreeU: s.degreeU, degreeV: s.degreeV, knotsU: append(knotVec(nil), nk[k:]...), knotsV: s.knotsV.clone()}
		rows := len(refined[0])
		for i := 0; i < rows; i++ {
			row := make([]hpoint, cols)
			for j := 0; j < cols; j++ {
				row[j] = refined[j][i]
			}
			if i < k {
				left.points = append(left.points, row)
			} else {
				right.points = append(right.points, row)
			}
		}
		return left, right, true
	}

	lo, hi := s.DomainV()
	if t <= lo+Epsilon || t >= hi-Epsilon {
		return nil, nil, false
	}
	x := splitKnots(s.knotsV, s.degreeV, t)
	var nk knotVec
	refined := make([][]hpoint, len(s.points))
	for i, row := range s.points {
		nk, refined[i] = refine(s.degreeV, s.knotsV, row, x)
	}
	k := splitIndex(nk, t)
	left := &Surface{degreeU: s.degreeU, degreeV: s.degreeV, knotsU: s.knotsU.clone(), knotsV: append(knotVec(nil), nk[:k+s.degreeV+1]...)}
	right := &Surface{degreeU: s.degreeU, degreeV: s.degreeV, knotsU: s.knotsU.clone(), knotsV: append(knotVec(nil), nk[k:]...)}
	for _, row := range refined {
		left.points = append(left.points, append([]hpoint(nil), row[:k]...))
		right.points = append(right.points, append([]hpoint(nil), row[k:]...))
	}
	return left, right, true
}

// Bounds returns the control hull box, which contains the surface.
func (s *Surface) Bounds() (min, max v3.Vec) {
	min = s.points[0][0].point()
	max = min
	for _, row := range s.points {
		for _, h := range row {
			p := h.point()
			min = min.Min(p)
			max = max.Max(p)
		}
	}
	return min, max
}

// BoundingBox implements kernel.Bounded.
func (s *Surface) BoundingBox() (min, max [3]float64) {
	lo, hi := s.Bounds()
	return kernel.Arr(lo), kernel.Arr(hi)
}

// Size estimates the physical width and height of the surface as the
// longest sampled isocurve polyline in each direction.
func (s *Surface) Size() (width, height float64) {
	const lines, steps = 3, 16
	u0, u1 := s.DomainU()
	v0, v1 := s.DomainV()
	for i := 0; i < lines; i++ {
		f := float64(i) / float64(lines-1)
		v := v0 + (v1-v0)*f
		u := u0 + (u1-u0)*f
		var lw, lh float64
		pw, ph := s.Point(u0, v), s.Point(u, v0)
		for k := 1; k <= steps; k++ {
			g := float64(k) / steps
			nw := s.Point(u0+(u1-u0)*g, v)
			nh := s.Point(u, v0+(v1-v0)*g)
			lw += nw.Sub(pw).Length()
			lh += nh.Sub(ph).Length()
			pw, ph = nw, nh
		}
		width = math.Max(width, lw)
		height = math.Max(height, lh)
	}
	return width, height
}

// Reparameterized maps the domain onto [u0,u1] x [v0,v1].
func (s *Surface) Reparameterized(u0, u1, v0, v1 float64) *Surface {
	pts := make([][]hpoint, len(s.points))
	for i, row := range s.points {
		pts[i] = append([]hpoint(nil), row...)
	}
	return &Surface{
		degreeU: s.degreeU, degreeV: s.degreeV, points: pts,
		knotsU: s.knotsU.remap(u0, u1), knotsV: s.knotsV.remap(v0, v1),
	}
}

// Translated returns the surface moved by d.
func (s *Surface) Translated(d v3.Vec) *Surface {
	pts := make([][]hpoint, len(s.points))
	for i, row := range s.points {
		pts[i] = make([]hpoint, len(row))
		for j, h := range row {
			pts[i][j] = h.translated(d)
		}
	}
	return &Surface{degreeU: s.degreeU, degreeV: s.degreeV, points: pts, knotsU: s.knotsU.clone(), knotsV: s.knotsV.clone()}
}

// IsClosed reports whether the surface closes on itself in u (the
// boundaries u0 and u1 coincide), or in v when alongV is set.
func (s *Surface) IsClosed(alongV bool, tol float64) bool {
	var a, b *Curve
	if alongV {
		v0, v1 := s.DomainV()
		a, b = s.IsoV(v0), s.IsoV(v1)
	} else {
		u0, u1 := s.DomainU()
		a, b = s.IsoU(u0), s.IsoU(u1)
	}
	lo, hi := a.Domain()
	for i := 0; i <= 8; i++ {
		t := lo + (hi-lo)*float64(i)/8
		if a.Point(t).Sub(b.Point(t)).Length() > tol {
			return false
		}
	}
	return true
}

// ClosestParam returns the parameters of the surface point nearest p,
// seeded from a coarse grid and refined by a bounded Newton iteration.
func (s *Surface) ClosestParam(p v3.Vec) v2.Vec {
	u0, u1 := s.DomainU()
	v0, v1 := s.DomainV()
	const grid = 12
	best, bestDist := v2.Vec{X: u0, Y: v0}, math.Inf(1)
	for i := 0; i <= grid; i++ {
		for j := 0; j <= grid; j++ {
			uv := v2.Vec{X: u0 + (u1-u0)*float64(i)/grid, Y: v0 + (v1-v0)*float64(j)/grid}
			if d := s.Point(uv.X, uv.Y).Sub(p).Length2(); d < bestDist {
				best, bestDist = uv, d
			}
		}
	}
	return s.ClosestParamFrom(p, best)
}

// ClosestParamFrom refines a closest point search from seed.
func (s *Surface) ClosestParamFrom(p v3.Vec, seed v2.Vec) v2.Vec {
	uv := s.Clamp(seed)
	for iter := 0; iter < 20; iter++ {
		d := s.Derivatives(uv.X, uv.Y, 2)
		r := d[0][0].Sub(p)
		su, sv := d[1][0], d[0][1]
		f := r.Dot(su)
		g := r.Dot(sv)
		a := su.Dot(su) + r.Dot(d[2][0])
		b := su.Dot(sv) + r.Dot(d[1][1])
		c := sv.Dot(sv) + r.Dot(d[0][2])
		det := a*c - b*b
		if math.Abs(det) < 1e-18 {
			break
		}
		du := (c*f - b*g) / det
		dv := (a*g - b*f) / det
		next := s.Clamp(v2.Vec{X: uv.X - du, Y: uv.Y - dv})
		moved := next.Sub(uv).Length()
		uv = next
		if moved < 1e-12 {
			break
		}
	}
	return uv
}

// Bilinear returns the degree 1x1 patch with corners p00 at (0,0), p10 at
// (1,0), p11 at (1,1) and p01 at (0,1).
func Bilinear(p00, p10, p11, p01 v3.Vec) *Surface {
	return &Surface{
		degreeU: 1, degreeV: 1,
		points: [][]hpoint{
			{homogenize(p00, 1), homogenize(p01, 1)},
			{homogenize(p10, 1), homogenize(p11, 1)},
		},
		knotsU: knotVec{0, 0, 1, 1},
		knotsV: knotVec{0, 0, 1, 1},
	}
}

// Extrusion sweeps c along dir. u follows the curve and v the sweep over
// [0, 1].
func Extrusion(c *Curve, dir v3.Vec) *Surface {
	pts := make([][]hpoint, len(c.points))
	for i, h := range c.points {
		pts[i] = []hpoint{h, h.translated(dir)}
	}
	return &Surface{
		degreeU: c.degree, degreeV: 1, points: pts,
		knotsU: c.knots.clone(), knotsV: knotVec{0, 0, 1, 1},
	}
}

// Ruled joins two curves with matching degree and knots by straight
// lines in v.
func Ruled(c0, c1 *Curve) (*Surface, error) {
	if c0.degree != c1.degree || len(c0.knots) != len(c1.knots) {
		return nil, kernel.Degenerate("surface", -1, "ruled surface needs compatible curves")
	}
	for i := range c0.knots {
		if math.Abs(c0.knots[i]-c1.knots[i]) > Epsilon {
			return nil, kernel.Degenerate("surface", -1, "ruled surface knot %d differs", i)
		}
	}
	pts := make([][]hpoint, len(c0.points))
	for i := range c0.points {
		pts[i] = []hpoint{c0.points[i], c1.points[i]}
	}
	return &Surface{
		degreeU: c0.degree, degreeV: 1, points: pts,
		knotsU: c0.knots.clone(), knotsV: knotVec{0, 0, 1, 1},
	}, nil
}
