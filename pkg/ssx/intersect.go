package ssx

import (
	"math"
	"sort"

	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/sample"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// tangentSine is the sine of the angle between the surface normals below
// which a contact is tangent rather than transverse.
const tangentSine = 1e-3

// nearTangent is the normal sine below which a converged seed is refined
// to the nearby point where the normals are parallel, if there is one.
const nearTangent = 0.1

// patch is a node of a lazily split surface tree. Its box is the control
// hull box, which contains the surface piece.
type patch struct {
	sf       *nurbs.Surface
	min, max v3.Vec
	depth    int
	split    bool
	kids     []*patch
}

func newPatch(sf *nurbs.Surface, depth int) *patch {
	lo, hi := sf.Bounds()
	return &patch{sf: sf, min: lo, max: hi, depth: depth}
}

// children splits the patch at its domain midpoint, along u on even
// depths and along v on odd ones.
func (p *patch) children() []*patch {
	if p.split {
		return p.kids
	}
	p.split = true
	alongV := p.depth%2 == 1
	for _, dir := range []bool{alongV, !alongV} {
		lo, hi := p.sf.DomainU()
		if dir {
			lo, hi = p.sf.DomainV()
		}
		if l, r, ok := p.sf.Split((lo+hi)/2, dir); ok {
			p.kids = []*patch{newPatch(l, p.depth+1), newPatch(r, p.depth+1)}
			break
		}
	}
	return p.kids
}

func (p *patch) center() v2.Vec {
	u0, u1 := p.sf.DomainU()
	v0, v1 := p.sf.DomainV()
	return v2.Vec{X: (u0 + u1) / 2, Y: (v0 + v1) / 2}
}

func (p *patch) diagonal() float64 { return p.max.Sub(p.min).Length() }

func (p *patch) overlaps(q *patch, tol float64) bool {
	return p.min.X <= q.max.X+tol && q.min.X <= p.max.X+tol &&
		p.min.Y <= q.max.Y+tol && q.min.Y <= p.max.Y+tol &&
		p.min.Z <= q.max.Z+tol && q.min.Z <= p.max.Z+tol
}

// seed is a converged point common to both surfaces.
type seed struct {
	a, b v2.Vec
	p    v3.Vec
	sine float64 // |nA x nB|
}

// curve is an event under construction. Point events have one sample.
type curve struct {
	kind Kind
	pts  []v3.Vec
	uva  []v2.Vec
	uvb  []v2.Vec
}

func (c *curve) closed(tol float64) bool {
	return len(c.pts) > 2 && c.pts[0].Sub(c.pts[len(c.pts)-1]).Length() <= tol
}

func (c *curve) event() Event {
	if !c.kind.IsCurve() {
		return Event{Kind: c.kind, Point: c.pts[0], UVA: c.uva[0], UVB: c.uvb[0],
			Samples: []Sample{{P: c.pts[0], A: c.uva[0], B: c.uvb[0]}}}
	}
	return curveEvent(c.kind, c.pts, c.uva, c.uvb)
}

// distance returns the distance from p to the polyline of c.
func (c *curve) distance(p v3.Vec) float64 {
	if len(c.pts) == 1 {
		return p.Sub(c.pts[0]).Length()
	}
	d := math.Inf(1)
	for i := 1; i < len(c.pts); i++ {
		d = math.Min(d, sample.SegmentDistance(p, c.pts[i-1], c.pts[i]))
	}
	return d
}

type solver struct {
	sa, sb *nurbs.Surface
	opt    Options
	step   float64 // marching step
	link   float64 // tangent cluster radius
}

// Intersect computes the intersection events of surfaces a and b.
// The result does not depend on argument order: Intersect(b, a) returns
// the same events with the A and B parameter data exchanged.
func Intersect(a, b *nurbs.Surface, opt Options) ([]Event, error) {
	if a == nil || b == nil {
		return nil, kernel.Degenerate("surface", -1, "nil surface")
	}
	opt = opt.withDefaults()
	if compareSurfaces(a, b) > 0 {
		ev, err := intersect(b, a, opt)
		for i := range ev {
			ev[i] = ev[i].swapped()
		}
		return ev, err
	}
	return intersect(a, b, opt)
}

func intersect(a, b *nurbs.Surface, opt Options) ([]Event, error) {
	ra, rb := newPatch(a, 0), newPatch(b, 0)
	if !ra.overlaps(rb, opt.Tol) {
		return nil, nil
	}
	x := &solver{sa: a, sb: b, opt: opt}
	x.step = math.Max(math.Min(ra.diagonal(), rb.diagonal())/64, 10*opt.Tol)

	pairs := x.pairs(ra, rb, nil)
	var transverse, tangent, coincident []seed
	for _, pr := range pairs {
		x.link = math.Max(x.link, 1.5*math.Max(pr[0].diagonal(), pr[1].diagonal()))
		sd, ok := x.converge(pr[0].center(), pr[1].center())
		if !ok {
			continue
		}
		if sd.sine < nearTangent {
			if t, ok := x.touch(sd.a, sd.b); ok && t.sine < tangentSine && t.p.Sub(sd.p).Length() <= x.link {
				sd = t
			}
		}
		if x.duplicate(sd, transverse, tangent, coincident) {
			continue
		}
		switch {
		case sd.sine >= tangentSine:
			transverse = append(transverse, sd)
		case x.coincident(sd):
			coincident = append(coincident, sd)
		default:
			tangent = append(tangent, sd)
		}
	}
	kernel.Logger().Debug("ssx seeds", "pairs", len(pairs), "transverse", len(transverse),
		"tangent", len(tangent), "coincident", len(coincident))

	var out []curve
	if len(coincident) > 0 {
		regions := x.overlaps()
		if len(regions) == 0 {
			tangent = append(tangent, coincident...)
		}
		out = append(out, regions...)
		transverse = x.outside(transverse, regions)
		tangent = x.outside(tangent, regions)
	}

	for _, sd := range transverse {
		if x.covered(sd.p, out) {
			continue
		}
		c, err := x.trace(sd)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	out = append(out, x.tangents(tangent)...)

	for i := range out {
		if out[i].kind.IsCurve() {
			canonicalize(&out[i], opt.Tol)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].kind != out[j].kind {
			return out[i].kind < out[j].kind
		}
		return lexLess(out[i].pts[0], out[j].pts[0])
	})
	if len(out) > opt.MaxEvents {
		kernel.Logger().Warn("ssx events truncated", "events", len(out), "max", opt.MaxEvents)
		out = out[:opt.MaxEvents]
	}
	ev := make([]Event, len(out))
	for i := range out {
		ev[i] = out[i].event()
	}
	return ev, nil
}

// pairs collects the leaf pairs whose boxes overlap, splitting the
// shallower patch first.
func (x *solver) pairs(a, b *patch, out [][2]*patch) [][2]*patch {
	if !a.overlaps(b, x.opt.Tol) {
		return out
	}
	limit := x.opt.MaxDepth
	if a.depth < limit && (a.depth <= b.depth || b.depth >= limit) {
		if kids := a.children(); len(kids) > 0 {
			for _, k := range kids {
				out = x.pairs(k, b, out)
			}
			return out
		}
	}
	if b.depth < limit {
		if kids := b.children(); len(kids) > 0 {
			for _, k := range kids {
				out = x.pairs(a, k, out)
			}
			return out
		}
	}
	return append(out, [2]*patch{a, b})
}

// converge runs a damped Gauss-Newton iteration on SA(a) - SB(b) from the
// given parameters, taking the least norm step of the 3x4 system.
func (x *solver) converge(a, b v2.Vec) (seed, bool) {
	for i := 0; i < 32; i++ {
		da := x.sa.Derivatives(a.X, a.Y, 1)
		db := x.sb.Derivatives(b.X, b.Y, 1)
		r := da[0][0].Sub(db[0][0])
		if r.Length() < x.opt.Tol*1e-3 {
			break
		}
		d, ok := minNorm(jacobian(da, db), []float64{-r.X, -r.Y, -r.Z})
		if !ok {
			return seed{}, false
		}
		a = x.sa.Clamp(v2.Vec{X: a.X + d[0], Y: a.Y + d[1]})
		b = x.sb.Clamp(v2.Vec{X: b.X + d[2], Y: b.Y + d[3]})
	}
	pa, na, okA := x.sa.PointNormal(a.X, a.Y)
	pb, nb, okB := x.sb.PointNormal(b.X, b.Y)
	if !okA || !okB || pa.Sub(pb).Length() > x.opt.Tol {
		return seed{}, false
	}
	return seed{a: a, b: b, p: pa.Add(pb).MulScalar(0.5), sine: na.Cross(nb).Length()}, true
}

// jacobian returns the rows of d(SA - SB)/d(ua, va, ub, vb).
func jacobian(da, db [][]v3.Vec) [][]float64 {
	au, av, bu, bv := da[1][0], da[0][1], db[1][0], db[0][1]
	return [][]float64{
		{au.X, av.X, -bu.X, -bv.X},
		{au.Y, av.Y, -bu.Y, -bv.Y},
		{au.Z, av.Z, -bu.Z, -bv.Z},
	}
}

// touch looks for a contact near (a, b) where the normals are parallel:
// a stationary point of the height of one surface over the other, tried
// with A over B and then B over A. It reports false if neither converges
// or the point found is not common to both surfaces.
func (x *solver) touch(a, b v2.Vec) (seed, bool) {
	ta, tb, ok := stationary(x.sa, x.sb, a, b)
	if !ok {
		tb, ta, ok = stationary(x.sb, x.sa, b, a)
	}
	if !ok {
		return seed{}, false
	}
	pa, na, okA := x.sa.PointNormal(ta.X, ta.Y)
	pb, nb, okB := x.sb.PointNormal(tb.X, tb.Y)
	if !okA || !okB || pa.Sub(pb).Length() > x.opt.Tol {
		return seed{}, false
	}
	return seed{a: ta, b: tb, p: pa.Add(pb).MulScalar(0.5), sine: na.Cross(nb).Length()}, true
}

// stationary runs Newton on the gradient (Su.n, Sv.n) of the height of s
// above o, with n the normal of o at the closest point. Directions in
// which the height does not curve are left alone.
func stationary(s, o *nurbs.Surface, uv, uvo v2.Vec) (v2.Vec, v2.Vec, bool) {
	uv = s.Clamp(uv)
	for i := 0; i < 32; i++ {
		d := s.Derivatives(uv.X, uv.Y, 2)
		uvo = o.ClosestParamFrom(d[0][0], uvo)
		n, ok := o.Normal(uvo.X, uvo.Y)
		su, sv := d[1][0], d[0][1]
		lu, lv := su.Length(), sv.Length()
		if !ok || lu < nurbs.Epsilon || lv < nurbs.Epsilon {
			return uv, uvo, false
		}
		gu, gv := su.Dot(n), sv.Dot(n)
		if math.Abs(gu)/lu < tangentSine/10 && math.Abs(gv)/lv < tangentSine/10 {
			return uv, uvo, true
		}
		h := [][]float64{
			{d[2][0].Dot(n), d[1][1].Dot(n)},
			{d[1][1].Dot(n), d[0][2].Dot(n)},
		}
		step, ok := minNorm(h, []float64{-gu, -gv})
		if !ok {
			return uv, uvo, false
		}
		uv = s.Clamp(v2.Vec{X: uv.X + step[0], Y: uv.Y + step[1]})
	}
	return uv, uvo, false
}

func (x *solver) duplicate(sd seed, sets ...[]seed) bool {
	for _, set := range sets {
		for _, o := range set {
			if o.p.Sub(sd.p).Length() < 10*x.opt.Tol {
				return true
			}
		}
	}
	return false
}

// coincident reports whether the surfaces agree around a tangent seed.
func (x *solver) coincident(sd seed) bool {
	u0, u1 := x.sa.DomainU()
	v0, v1 := x.sa.DomainV()
	du, dv := (u1-u0)*0.05, (v1-v0)*0.05
	for _, o := range []v2.Vec{{X: du}, {X: -du}, {Y: dv}, {Y: -dv}} {
		uv := x.sa.Clamp(sd.a.Add(o))
		p := x.sa.Point(uv.X, uv.Y)
		q := x.sb.ClosestParamFrom(p, sd.b)
		if x.sb.Point(q.X, q.Y).Sub(p).Length() > x.opt.Tol {
			return false
		}
	}
	return true
}

// outside drops the seeds that lie inside or on an overlap region.
func (x *solver) outside(seeds []seed, regions []curve) []seed {
	var out []seed
	for _, sd := range seeds {
		in := false
		for i := range regions {
			if regions[i].distance(sd.p) < 10*x.opt.Tol || (regions[i].closed(x.opt.Tol) && inPolygon(sd.a, regions[i].uva)) {
				in = true
				break
			}
		}
		if !in {
			out = append(out, sd)
		}
	}
	return out
}

func (x *solver) covered(p v3.Vec, found []curve) bool {
	for i := range found {
		if found[i].distance(p) < 2*x.step {
			return true
		}
	}
	return false
}

// trace marches a transverse seed in both directions.
func (x *solver) trace(sd seed) (curve, error) {
	fwd, err := x.march(sd, 1)
	if err != nil {
		return curve{}, err
	}
	if fwd.closed(x.opt.Tol) {
		fwd.kind = TransverseCurve
		return fwd, nil
	}
	back, err := x.march(sd, -1)
	if err != nil {
		return curve{}, err
	}
	c := curve{kind: TransverseCurve}
	for i := len(back.pts) - 1; i > 0; i-- {
		c.pts = append(c.pts, back.pts[i])
		c.uva = append(c.uva, back.uva[i])
		c.uvb = append(c.uvb, back.uvb[i])
	}
	c.pts = append(c.pts, fwd.pts...)
	c.uva = append(c.uva, fwd.uva...)
	c.uvb = append(c.uvb, fwd.uvb...)
	switch {
	case len(c.pts) == 1:
		c.kind = TransversePoint
	case c.extent() < 10*x.opt.Tol:
		// Too short to be a curve: a touch the seed test missed.
		m := len(c.pts) / 2
		c = curve{kind: TangentPoint, pts: []v3.Vec{c.pts[m]}, uva: []v2.Vec{c.uva[m]}, uvb: []v2.Vec{c.uvb[m]}}
	}
	return c, nil
}

// extent is the diagonal of the bounding box of the curve points.
func (c *curve) extent() float64 {
	lo, hi := c.pts[0], c.pts[0]
	for _, p := range c.pts[1:] {
		lo, hi = lo.Min(p), hi.Max(p)
	}
	return hi.Sub(lo).Length()
}

// march follows the intersection from sd along dir * (nA x nB). It stops
// when the curve leaves either domain, closes on its start, turns tangent
// or steps over a singular point, where nA x nB reverses.
func (x *solver) march(sd seed, dir float64) (curve, error) {
	c := curve{pts: []v3.Vec{sd.p}, uva: []v2.Vec{sd.a}, uvb: []v2.Vec{sd.b}}
	a, b, p := sd.a, sd.b, sd.p
	travelled := 0.0
	for i := 0; ; i++ {
		if i >= x.opt.MaxIterations {
			return c, kernel.Failed("intersection curve", -1, "marching did not finish in %d steps", x.opt.MaxIterations)
		}
		t, ok := x.direction(a, b)
		if !ok {
			return c, nil
		}
		t = t.MulScalar(dir)
		h := x.step
		na, nb, np, ok := x.advance(a, b, p, t, h)
		for k := 0; !ok && k < 5 && !x.leaving(a, b, p, t, h); k++ {
			h /= 2
			na, nb, np, ok = x.advance(a, b, p, t, h)
		}
		if !ok {
			ba, bb, bp, found := x.boundary(a, b, p, t, h)
			switch {
			case !found:
			case bp.Sub(p).Length() > x.opt.Tol:
				c.push(bp, ba, bb)
			case len(c.pts) > 1:
				n := len(c.pts) - 1
				c.pts[n], c.uva[n], c.uvb[n] = bp, ba, bb
			}
			return c, nil
		}
		if nt, ok := x.direction(na, nb); ok && nt.MulScalar(dir).Dot(t) < 0 {
			return c, nil
		}
		travelled += np.Sub(p).Length()
		if i > 1 && travelled > 2*x.step && sample.SegmentDistance(sd.p, p, np) < x.step/2 {
			c.push(sd.p, sd.a, sd.b)
			return c, nil
		}
		c.push(np, na, nb)
		a, b, p = na, nb, np
	}
}

func (c *curve) push(p v3.Vec, a, b v2.Vec) {
	c.pts = append(c.pts, p)
	c.uva = append(c.uva, a)
	c.uvb = append(c.uvb, b)
}

// advance takes one corrected step of length h and reports false if it
// fails or leaves either domain.
func (x *solver) advance(a, b v2.Vec, p, t v3.Vec, h float64) (v2.Vec, v2.Vec, v3.Vec, bool) {
	na, nb, np, ok := x.correct(a, b, p, t, h)
	if !ok || !x.sa.Contains(na, 0) || !x.sb.Contains(nb, 0) {
		return na, nb, np, false
	}
	return na, nb, np, true
}

// leaving reports whether the linear predictor of a step of length h
// falls outside either domain.
func (x *solver) leaving(a, b v2.Vec, p, t v3.Vec, h float64) bool {
	pred := p.Add(t.MulScalar(h))
	return !x.sa.Contains(towards(x.sa, a, pred), 0) || !x.sb.Contains(towards(x.sb, b, pred), 0)
}

// boundary bisects the step length for the last point inside both
// domains.
func (x *solver) boundary(a, b v2.Vec, p, t v3.Vec, h float64) (v2.Vec, v2.Vec, v3.Vec, bool) {
	lo, hi := 0.0, 1.0
	var ba, bb v2.Vec
	var bp v3.Vec
	found := false
	for k := 0; k < 30; k++ {
		mid := (lo + hi) / 2
		if ca, cb, cp, ok := x.advance(a, b, p, t, h*mid); ok {
			lo = mid
			ba, bb, bp, found = ca, cb, cp, true
		} else {
			hi = mid
		}
	}
	return ba, bb, bp, found
}

// direction returns the unit tangent nA x nB of the intersection curve.
func (x *solver) direction(a, b v2.Vec) (v3.Vec, bool) {
	na, okA := x.sa.Normal(a.X, a.Y)
	nb, okB := x.sb.Normal(b.X, b.Y)
	if !okA || !okB {
		return v3.Vec{}, false
	}
	t := na.Cross(nb)
	l := t.Length()
	if l < tangentSine/10 {
		return v3.Vec{}, false
	}
	return t.DivScalar(l), true
}

// correct projects the predictor p + h t onto both surfaces: Newton on
// SA = SB with the point held on the plane through the predictor normal
// to t.
func (x *solver) correct(a, b v2.Vec, p, t v3.Vec, h float64) (v2.Vec, v2.Vec, v3.Vec, bool) {
	pred := p.Add(t.MulScalar(h))
	a = towards(x.sa, a, pred)
	b = towards(x.sb, b, pred)
	for i := 0; i < 24; i++ {
		da := x.sa.Derivatives(a.X, a.Y, 1)
		db := x.sb.Derivatives(b.X, b.Y, 1)
		r := da[0][0].Sub(db[0][0])
		g := da[0][0].Sub(pred).Dot(t)
		if r.Length() < x.opt.Tol*1e-3 && math.Abs(g) < x.opt.Tol*1e-3 {
			q := da[0][0].Add(db[0][0]).MulScalar(0.5)
			if q.Sub(p).Dot(t) <= 0 {
				return a, b, q, false
			}
			return a, b, q, true
		}
		m := jacobian(da, db)
		m = append(m, []float64{da[1][0].Dot(t), da[0][1].Dot(t), 0, 0})
		d, ok := solve(m, []float64{-r.X, -r.Y, -r.Z, -g})
		if !ok {
			return a, b, p, false
		}
		a = v2.Vec{X: a.X + d[0], Y: a.Y + d[1]}
		b = v2.Vec{X: b.X + d[2], Y: b.Y + d[3]}
		if !nearDomain(x.sa, a) || !nearDomain(x.sb, b) {
			return a, b, p, false
		}
	}
	return a, b, p, false
}

// towards takes one linear step from uv so that s moves to target.
func towards(s *nurbs.Surface, uv v2.Vec, target v3.Vec) v2.Vec {
	d := s.Derivatives(uv.X, uv.Y, 1)
	su, sv := d[1][0], d[0][1]
	r := target.Sub(d[0][0])
	a, bb, c := su.Dot(su), su.Dot(sv), sv.Dot(sv)
	det := a*c - bb*bb
	if math.Abs(det) < 1e-20 {
		return uv
	}
	f, g := r.Dot(su), r.Dot(sv)
	return v2.Vec{X: uv.X + (c*f-bb*g)/det, Y: uv.Y + (a*g-bb*f)/det}
}

// nearDomain reports whether uv is within one domain span of s.
func nearDomain(s *nurbs.Surface, uv v2.Vec) bool {
	u0, u1 := s.DomainU()
	v0, v1 := s.DomainV()
	return uv.X >= 2*u0-u1 && uv.X <= 2*u1-u0 && uv.Y >= 2*v0-v1 && uv.Y <= 2*v1-v0
}

// tangents clusters tangent seeds. A cluster smaller than ten times the
// tolerance is a tangent point; a longer one is a tangent curve ordered
// along its longest extent.
func (x *solver) tangents(seeds []seed) []curve {
	parent := make([]int, len(seeds))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range seeds {
		for j := i + 1; j < len(seeds); j++ {
			if seeds[i].p.Sub(seeds[j].p).Length() <= x.link {
				parent[find(i)] = find(j)
			}
		}
	}
	groups := make(map[int][]seed)
	var roots []int
	for i, sd := range seeds {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], sd)
	}
	var out []curve
	for _, r := range roots {
		g := groups[r]
		lo, hi := g[0].p, g[0].p
		sum := v3.Vec{}
		for _, sd := range g {
			lo, hi = lo.Min(sd.p), hi.Max(sd.p)
			sum = sum.Add(sd.p)
		}
		ext := hi.Sub(lo)
		if ext.Length() < 10*x.opt.Tol || len(g) == 1 {
			mean := sum.DivScalar(float64(len(g)))
			best := g[0]
			for _, sd := range g[1:] {
				if sd.p.Sub(mean).Length() < best.p.Sub(mean).Length() {
					best = sd
				}
			}
			out = append(out, curve{kind: TangentPoint, pts: []v3.Vec{best.p}, uva: []v2.Vec{best.a}, uvb: []v2.Vec{best.b}})
			continue
		}
		axis := func(p v3.Vec) float64 { return p.X }
		switch {
		case ext.Y >= ext.X && ext.Y >= ext.Z:
			axis = func(p v3.Vec) float64 { return p.Y }
		case ext.Z >= ext.X && ext.Z >= ext.Y:
			axis = func(p v3.Vec) float64 { return p.Z }
		}
		sort.SliceStable(g, func(i, j int) bool { return axis(g[i].p) < axis(g[j].p) })
		c := curve{kind: TangentCurve}
		for _, sd := range g {
			c.push(sd.p, sd.a, sd.b)
		}
		x.extend(&c)
		c.reverse()
		x.extend(&c)
		c.reverse()
		out = append(out, c)
	}
	return out
}

// extend walks the end of a tangent curve onward along its last chord,
// refining every step back onto the contact, until the contact ends or a
// domain boundary stops it.
func (x *solver) extend(c *curve) {
	for n := 0; n < x.opt.MaxIterations; n++ {
		k := len(c.pts) - 1
		if k < 1 {
			return
		}
		dir := c.pts[k].Sub(c.pts[k-1])
		l := dir.Length()
		if l < nurbs.Epsilon {
			return
		}
		dir = dir.DivScalar(l)
		moved := false
		for h := x.step; h >= x.opt.Tol; h /= 2 {
			pred := c.pts[k].Add(dir.MulScalar(h))
			a := x.sa.Clamp(towards(x.sa, c.uva[k], pred))
			b := x.sb.Clamp(towards(x.sb, c.uvb[k], pred))
			sd, ok := x.touch(a, b)
			if !ok || sd.sine >= tangentSine {
				continue
			}
			d := sd.p.Sub(c.pts[k])
			if d.Dot(dir) > x.opt.Tol/10 && d.Length() <= 2*h {
				c.push(sd.p, sd.a, sd.b)
				moved = true
				break
			}
		}
		if !moved {
			return
		}
	}
}

func (c *curve) reverse() {
	for i, j := 0, len(c.pts)-1; i < j; i, j = i+1, j-1 {
		c.pts[i], c.pts[j] = c.pts[j], c.pts[i]
		c.uva[i], c.uva[j] = c.uva[j], c.uva[i]
		c.uvb[i], c.uvb[j] = c.uvb[j], c.uvb[i]
	}
}

// canonicalize orients a curve so that equal curves found from either
// argument order compare equal: open curves start at their
// lexicographically smaller end, closed curves at their smallest point
// and run towards the smaller neighbour.
func canonicalize(c *curve, tol float64) {
	n := len(c.pts)
	idx := make([]int, 0, n)
	if c.closed(tol) {
		m := n - 1
		k := 0
		for i := 1; i < m; i++ {
			if lexLess(c.pts[i], c.pts[k]) {
				k = i
			}
		}
		step := 1
		if lexLess(c.pts[(k+m-1)%m], c.pts[(k+1)%m]) {
			step = m - 1
		}
		for i := 0; i < m; i++ {
			idx = append(idx, (k+i*step)%m)
		}
		idx = append(idx, k)
	} else {
		for i := 0; i < n; i++ {
			idx = append(idx, i)
		}
		if lexLess(c.pts[n-1], c.pts[0]) {
			for i := range idx {
				idx[i] = n - 1 - i
			}
		}
	}
	pts := make([]v3.Vec, n)
	uva := make([]v2.Vec, n)
	uvb := make([]v2.Vec, n)
	for i, j := range idx {
		pts[i], uva[i], uvb[i] = c.pts[j], c.uva[j], c.uvb[j]
	}
	c.pts, c.uva, c.uvb = pts, uva, uvb
}

func lexLess(a, b v3.Vec) bool {
	const eps = 1e-9
	switch {
	case math.Abs(a.X-b.X) > eps:
		return a.X < b.X
	case math.Abs(a.Y-b.Y) > eps:
		return a.Y < b.Y
	default:
		return a.Z < b.Z-eps
	}
}

// compareSurfaces orders surfaces by degree, knots and control points.
func compareSurfaces(a, b *nurbs.Surface) int {
	ka, kb := surfaceKey(a), surfaceKey(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		switch {
		case ka[i] < kb[i]:
			return -1
		case ka[i] > kb[i]:
			return 1
		}
	}
	switch {
	case len(ka) < len(kb):
		return -1
	case len(ka) > len(kb):
		return 1
	}
	return 0
}

func surfaceKey(s *nurbs.Surface) []float64 {
	du, dv := s.Degrees()
	key := []float64{float64(du), float64(dv)}
	key = append(key, s.KnotsU()...)
	key = append(key, s.KnotsV()...)
	for _, row := range s.ControlPoints() {
		for _, p := range row {
			key = append(key, p.X, p.Y, p.Z)
		}
	}
	return key
}

// inPolygon is the even-odd test of p against the closed polygon pts.
func inPolygon(p v2.Vec, pts []v2.Vec) bool {
	in := false
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Y > p.Y) != (b.Y > p.Y) && p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}
