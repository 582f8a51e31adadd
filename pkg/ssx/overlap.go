package ssx

import (
	"github.com/chazu/brepkit/pkg/nurbs"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// boundarySamples is the number of samples per boundary side when
// looking for the parts of one surface's boundary that lie on the other.
const boundarySamples = 64

// overlaps returns one closed overlap curve per coincident region. The
// region boundary is made of the pieces of A's boundary lying on B and
// of B's boundary lying on A, joined end to end.
func (x *solver) overlaps() []curve {
	link := 10 * x.opt.Tol
	pieces := x.boundaryPieces(x.sa, x.sb, false)
	for _, p := range x.boundaryPieces(x.sb, x.sa, true) {
		if !coveredBy(p, pieces, link) {
			pieces = append(pieces, p)
		}
	}
	return chain(pieces, link)
}

// boundaryPieces walks the four sides of s and returns the runs that lie
// on other. Run ends are refined by bisection. With swap set the parameter
// data of s is stored as B.
func (x *solver) boundaryPieces(s, other *nurbs.Surface, swap bool) []curve {
	u0, u1 := s.DomainU()
	v0, v1 := s.DomainV()
	sides := []struct {
		lo, hi float64
		at     func(t float64) v2.Vec
	}{
		{u0, u1, func(t float64) v2.Vec { return v2.Vec{X: t, Y: v0} }},
		{v0, v1, func(t float64) v2.Vec { return v2.Vec{X: u1, Y: t} }},
		{u0, u1, func(t float64) v2.Vec { return v2.Vec{X: t, Y: v1} }},
		{v0, v1, func(t float64) v2.Vec { return v2.Vec{X: u0, Y: t} }},
	}
	on := func(uv v2.Vec) (v3.Vec, v2.Vec, bool) {
		p := s.Point(uv.X, uv.Y)
		q := other.ClosestParam(p)
		return p, q, other.Point(q.X, q.Y).Sub(p).Length() <= x.opt.Tol
	}
	edge := func(at func(float64) v2.Vec, in, out float64) float64 {
		for k := 0; k < 40; k++ {
			mid := (in + out) / 2
			if _, _, ok := on(at(mid)); ok {
				in = mid
			} else {
				out = mid
			}
		}
		return in
	}

	var out []curve
	for _, side := range sides {
		var cur *curve
		add := func(t float64) {
			uv := side.at(t)
			p, q, _ := on(uv)
			if n := len(cur.pts); n > 0 && cur.pts[n-1].Sub(p).Length() < nurbs.Epsilon {
				return
			}
			if swap {
				cur.push(p, q, uv)
			} else {
				cur.push(p, uv, q)
			}
		}
		flush := func() {
			if cur != nil && len(cur.pts) > 1 && cur.pts[0].Sub(cur.pts[len(cur.pts)-1]).Length() > 10*x.opt.Tol {
				out = append(out, *cur)
			}
			cur = nil
		}
		prev := side.lo
		prevOn := false
		for i := 0; i <= boundarySamples; i++ {
			t := side.lo + (side.hi-side.lo)*float64(i)/boundarySamples
			_, _, ok := on(side.at(t))
			switch {
			case ok && !prevOn:
				cur = &curve{kind: OverlapCurve}
				if i > 0 {
					add(edge(side.at, t, prev))
				}
				add(t)
			case ok:
				add(t)
			case prevOn:
				add(edge(side.at, prev, t))
				flush()
			}
			prev, prevOn = t, ok
		}
		flush()
	}
	return out
}

// coveredBy reports whether both ends and the middle of p lie on one of
// the pieces.
func coveredBy(p curve, pieces []curve, tol float64) bool {
	checks := []v3.Vec{p.pts[0], p.pts[len(p.pts)/2], p.pts[len(p.pts)-1]}
	for i := range pieces {
		all := true
		for _, q := range checks {
			if pieces[i].distance(q) > tol {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// chain joins pieces whose ends meet within tol into loops. Each loop
// closes exactly on its first point.
func chain(pieces []curve, tol float64) []curve {
	used := make([]bool, len(pieces))
	var out []curve
	for i := range pieces {
		if used[i] {
			continue
		}
		used[i] = true
		c := curve{kind: OverlapCurve}
		c.extend(pieces[i], false)
		for {
			end := c.pts[len(c.pts)-1]
			if len(c.pts) > 2 && end.Sub(c.pts[0]).Length() <= tol {
				c.pts[len(c.pts)-1] = c.pts[0]
				c.uva[len(c.uva)-1] = c.uva[0]
				c.uvb[len(c.uvb)-1] = c.uvb[0]
				break
			}
			next := -1
			reverse := false
			for j := range pieces {
				if used[j] {
					continue
				}
				if pieces[j].pts[0].Sub(end).Length() <= tol {
					next = j
					break
				}
				if pieces[j].pts[len(pieces[j].pts)-1].Sub(end).Length() <= tol {
					next, reverse = j, true
					break
				}
			}
			if next < 0 {
				break
			}
			used[next] = true
			c.extend(pieces[next], reverse)
		}
		out = append(out, c)
	}
	return out
}

// extend appends p to c, dropping the first point of p when c already
// ends there.
func (c *curve) extend(p curve, reverse bool) {
	n := len(p.pts)
	for k := 0; k < n; k++ {
		i := k
		if reverse {
			i = n - 1 - k
		}
		if k == 0 && len(c.pts) > 0 {
			continue
		}
		c.push(p.pts[i], p.uva[i], p.uvb[i])
	}
}
