package ssx

import (
	"math"
	"sort"

	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/nurbs"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// isoSamples is the number of intervals an isocurve is sampled in.
const isoSamples = 128

// Isocurve names a constant parameter curve of a surface. With AlongV set
// the curve runs along v at u = Value; otherwise along u at v = Value.
type Isocurve struct {
	AlongV bool
	Value  float64
}

// Curve returns the isocurve of s.
func (iso Isocurve) Curve(s *nurbs.Surface) *nurbs.Curve {
	if iso.AlongV {
		return s.IsoU(iso.Value)
	}
	return s.IsoV(iso.Value)
}

// UV maps a curve parameter to the parameters of the surface it lies on.
func (iso Isocurve) UV(t float64) v2.Vec {
	if iso.AlongV {
		return v2.Vec{X: iso.Value, Y: t}
	}
	return v2.Vec{X: t, Y: iso.Value}
}

// IsoEvent is one intersection of an isocurve with a surface. Point kinds
// fill T; OverlapCurve covers [T, T1] and End is the point at T1.
type IsoEvent struct {
	Kind    Kind
	T, T1   float64
	Point   v3.Vec
	End     v3.Vec
	UV      v2.Vec // on the isocurve's surface
	UVOther v2.Vec
}

// IntersectIsocurve intersects the isocurve iso of s with other. Crossings
// are TransversePoint events, touching points TangentPoint and runs on
// the surface OverlapCurve. Events are ordered by curve parameter.
func IntersectIsocurve(s, other *nurbs.Surface, iso Isocurve, opt Options) ([]IsoEvent, error) {
	if s == nil || other == nil {
		return nil, kernel.Degenerate("surface", -1, "nil surface")
	}
	opt = opt.withDefaults()
	lo, hi := s.DomainU()
	if iso.AlongV {
		lo, hi = s.DomainV()
		if u0, u1 := s.DomainU(); iso.Value < u0-opt.Tol || iso.Value > u1+opt.Tol {
			return nil, kernel.Degenerate("isocurve", -1, "u = %g outside [%g, %g]", iso.Value, u0, u1)
		}
	} else if v0, v1 := s.DomainV(); iso.Value < v0-opt.Tol || iso.Value > v1+opt.Tol {
		return nil, kernel.Degenerate("isocurve", -1, "v = %g outside [%g, %g]", iso.Value, v0, v1)
	}
	c := iso.Curve(s)
	cmin, cmax := c.Bounds()
	omin, omax := other.Bounds()
	if cmin.X > omax.X+opt.Tol || omin.X > cmax.X+opt.Tol ||
		cmin.Y > omax.Y+opt.Tol || omin.Y > cmax.Y+opt.Tol ||
		cmin.Z > omax.Z+opt.Tol || omin.Z > cmax.Z+opt.Tol {
		return nil, nil
	}
	x := &isoSolver{c: c, other: other, tol: opt.Tol}

	n := isoSamples
	ts := make([]float64, n+1)
	ss := make([]reading, n+1)
	for i := range ts {
		ts[i] = lo + (hi-lo)*float64(i)/float64(n)
		ss[i] = x.read(ts[i])
	}

	var out []IsoEvent
	covered := func(t float64) bool {
		for _, e := range out {
			if e.Kind == OverlapCurve && t >= e.T-1e-9 && t <= e.T1+1e-9 {
				return true
			}
		}
		return false
	}

	// Runs of samples on the surface.
	for i := 0; i <= n; {
		if !ss[i].on {
			i++
			continue
		}
		j := i
		for j < n && ss[j+1].on {
			j++
		}
		if j > i {
			t0, t1 := ts[i], ts[j]
			if i > 0 {
				t0 = x.edge(ts[i], ts[i-1])
			}
			if j < n {
				t1 = x.edge(ts[j], ts[j+1])
			}
			a, b := x.read(t0), x.read(t1)
			out = append(out, IsoEvent{Kind: OverlapCurve, T: t0, T1: t1, Point: a.p, End: b.p, UV: iso.UV(t0), UVOther: a.q})
		}
		i = j + 1
	}

	// Exact hits, sign changes of the signed distance, then touching
	// minima.
	for i := 0; i <= n; i++ {
		if ss[i].on && ss[i].side == 0 && !covered(ts[i]) && !x.seen(out, ts[i], lo, hi) {
			out = append(out, x.point(iso, ts[i]))
		}
	}
	for i := 0; i < n; i++ {
		if ss[i].side*ss[i+1].side >= 0 {
			continue
		}
		t, ok := x.root(ts[i], ts[i+1], ss[i].side)
		if !ok || covered(t) || x.seen(out, t, lo, hi) {
			continue
		}
		out = append(out, x.point(iso, t))
	}
	for i := 1; i < n; i++ {
		if ss[i].dist >= ss[i-1].dist || ss[i].dist > ss[i+1].dist ||
			ss[i].dist > ss[i+1].p.Sub(ss[i-1].p).Length()/2 {
			continue
		}
		t := x.minimum(ts[i-1], ts[i+1])
		pr := x.read(t)
		if !pr.on || covered(t) || x.seen(out, t, lo, hi) {
			continue
		}
		ev := x.point(iso, t)
		ev.Kind = TangentPoint
		out = append(out, ev)
	}
	sortIso(out)
	return out, nil
}

type isoSolver struct {
	c     *nurbs.Curve
	other *nurbs.Surface
	tol   float64
}

type reading struct {
	p    v3.Vec
	q    v2.Vec
	dist float64
	side float64 // signed distance along the surface normal
	on   bool
}

func (x *isoSolver) read(t float64) reading {
	p := x.c.Point(t)
	q := x.other.ClosestParam(p)
	sp, n, ok := x.other.PointNormal(q.X, q.Y)
	d := p.Sub(sp)
	pr := reading{p: p, q: q, dist: d.Length(), on: d.Length() <= x.tol}
	if ok {
		pr.side = d.Dot(n)
	}
	return pr
}

// edge bisects for the end of a run between an on sample and an off one.
func (x *isoSolver) edge(in, out float64) float64 {
	for k := 0; k < 40; k++ {
		mid := (in + out) / 2
		if x.read(mid).on {
			in = mid
		} else {
			out = mid
		}
	}
	return in
}

// root bisects the signed distance on [a, b] and accepts the root if it
// lies on the surface.
func (x *isoSolver) root(a, b, sideA float64) (float64, bool) {
	for k := 0; k < 60; k++ {
		mid := (a + b) / 2
		s := x.read(mid).side
		if s == 0 {
			a, b = mid, mid
			break
		}
		if (s > 0) == (sideA > 0) {
			a = mid
		} else {
			b = mid
		}
	}
	t := (a + b) / 2
	return t, x.read(t).on
}

// minimum is a golden section search for the closest approach on [a, b].
func (x *isoSolver) minimum(a, b float64) float64 {
	g := (math.Sqrt(5) - 1) / 2
	c, d := b-g*(b-a), a+g*(b-a)
	fc, fd := x.read(c).dist, x.read(d).dist
	for k := 0; k < 60; k++ {
		if fc < fd {
			b, d, fd = d, c, fc
			c = b - g*(b-a)
			fc = x.read(c).dist
		} else {
			a, c, fc = c, d, fd
			d = a + g*(b-a)
			fd = x.read(d).dist
		}
	}
	return (a + b) / 2
}

// seen reports whether a point event already sits at t.
func (x *isoSolver) seen(out []IsoEvent, t, lo, hi float64) bool {
	eps := (hi - lo) / isoSamples / 4
	for _, e := range out {
		if e.Kind != OverlapCurve && math.Abs(e.T-t) < eps {
			return true
		}
	}
	return false
}

// point classifies a crossing by the angle between the curve tangent and
// the surface.
func (x *isoSolver) point(iso Isocurve, t float64) IsoEvent {
	pr := x.read(t)
	ev := IsoEvent{Kind: TransversePoint, T: t, T1: t, Point: pr.p, End: pr.p, UV: iso.UV(t), UVOther: pr.q}
	tan, okT := x.c.Tangent(t)
	n, okN := x.other.Normal(pr.q.X, pr.q.Y)
	if okT && okN && math.Abs(tan.Dot(n)) < tangentSine {
		ev.Kind = TangentPoint
	}
	return ev
}

func sortIso(ev []IsoEvent) {
	sort.SliceStable(ev, func(i, j int) bool { return ev[i].T < ev[j].T })
}
