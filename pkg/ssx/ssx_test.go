package ssx_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/ssx"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// flat returns the patch [x0,x1] x [y0,y1] at height z.
func flat(x0, y0, x1, y1, z float64) *nurbs.Surface {
	return nurbs.Bilinear(
		v3.Vec{X: x0, Y: y0, Z: z}, v3.Vec{X: x1, Y: y0, Z: z},
		v3.Vec{X: x1, Y: y1, Z: z}, v3.Vec{X: x0, Y: y1, Z: z},
	)
}

// wall returns the plane x = x0 over y in [y0,y1] and z in [z0,z1]; u runs
// along y and v along z.
func wall(x0, y0, y1, z0, z1 float64) *nurbs.Surface {
	return nurbs.Bilinear(
		v3.Vec{X: x0, Y: y0, Z: z0}, v3.Vec{X: x0, Y: y1, Z: z0},
		v3.Vec{X: x0, Y: y1, Z: z1}, v3.Vec{X: x0, Y: y0, Z: z1},
	)
}

func intersect(t *testing.T, a, b *nurbs.Surface) []ssx.Event {
	t.Helper()
	ev, err := ssx.Intersect(a, b, ssx.Options{})
	if err != nil {
		t.Fatalf("Intersect() error = %v", err)
	}
	return ev
}

func near(a, b v3.Vec, tol float64) bool { return a.Sub(b).Length() <= tol }

// --- surface pairs ---

func TestCoplanarOverlapIsOneRegion(t *testing.T) {
	a := flat(0, 0, 1, 1, 0)
	b := flat(0.5, 0, 1.5, 1, 0)
	ev := intersect(t, a, b)
	if len(ev) != 1 {
		t.Fatalf("Intersect() returned %d events, want 1: %+v", len(ev), ev)
	}
	e := ev[0]
	if e.Kind != ssx.OverlapCurve {
		t.Fatalf("Kind = %v, want %v", e.Kind, ssx.OverlapCurve)
	}
	pts := e.Points()
	if !near(pts[0], pts[len(pts)-1], 1e-9) {
		t.Errorf("overlap loop not closed: %v ... %v", pts[0], pts[len(pts)-1])
	}
	for _, p := range pts {
		if p.X < 0.5-1e-3 || p.X > 1+1e-3 || math.Abs(p.Z) > 1e-9 {
			t.Errorf("loop point %v outside overlap region", p)
		}
	}
	// The loop passes all four corners of [0.5,1] x [0,1].
	corners := []v3.Vec{{X: 0.5}, {X: 1}, {X: 1, Y: 1}, {X: 0.5, Y: 1}}
	for _, c := range corners {
		found := false
		for _, p := range pts {
			if near(p, c, 2e-3) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("loop misses corner %v", c)
		}
	}
}

func TestTransverseLine(t *testing.T) {
	a := flat(0, 0, 1, 1, 0)
	b := wall(0.5, -0.5, 1.5, -0.5, 0.5)
	ev := intersect(t, a, b)
	if len(ev) != 1 || ev[0].Kind != ssx.TransverseCurve {
		t.Fatalf("Intersect() = %d events, want one transverse curve: %+v", len(ev), ev)
	}
	pts := ev[0].Points()
	for _, p := range pts {
		if math.Abs(p.X-0.5) > 1e-6 || math.Abs(p.Z) > 1e-6 {
			t.Errorf("curve point %v off the line x=0.5, z=0", p)
		}
	}
	first, last := pts[0], pts[len(pts)-1]
	if !near(first, v3.Vec{X: 0.5}, 1e-4) || !near(last, v3.Vec{X: 0.5, Y: 1}, 1e-4) {
		t.Errorf("curve runs %v -> %v, want (0.5,0,0) -> (0.5,1,0)", first, last)
	}
	for _, s := range ev[0].Samples {
		pa := a.Point(s.A.X, s.A.Y)
		pb := b.Point(s.B.X, s.B.Y)
		if !near(pa, s.P, 1e-6) || !near(pb, s.P, 1e-6) {
			t.Errorf("sample %v: A(uv)=%v B(uv)=%v", s.P, pa, pb)
		}
	}
}

func TestParallelPlanesDoNotIntersect(t *testing.T) {
	if ev := intersect(t, flat(0, 0, 1, 1, 0), flat(0, 0, 1, 1, 1)); len(ev) != 0 {
		t.Errorf("Intersect() = %d events, want 0", len(ev))
	}
}

func TestCylinderPlaneIsClosedCircle(t *testing.T) {
	const r = 0.75
	side := nurbs.Extrusion(nurbs.Circle(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, r), v3.Vec{Z: 1})
	cut := flat(-2, -2, 2, 2, 0.5)
	ev := intersect(t, side, cut)
	if len(ev) != 1 || ev[0].Kind != ssx.TransverseCurve {
		t.Fatalf("Intersect() = %d events, want one transverse curve: %+v", len(ev), ev)
	}
	pts := ev[0].Points()
	if !near(pts[0], pts[len(pts)-1], 1e-6) {
		t.Errorf("circle not closed: %v ... %v", pts[0], pts[len(pts)-1])
	}
	if len(pts) < 16 {
		t.Errorf("circle has %d points, want at least 16", len(pts))
	}
	for _, p := range pts {
		if d := math.Hypot(p.X, p.Y); math.Abs(d-r) > 1e-4 || math.Abs(p.Z-0.5) > 1e-6 {
			t.Errorf("point %v: radius %g, want %g at z=0.5", p, d, r)
		}
	}
}

func TestArgumentOrderOnlySwapsRoles(t *testing.T) {
	a := flat(0, 0, 1, 1, 0)
	b := nurbs.Bilinear(
		v3.Vec{X: 0.2, Y: -0.5, Z: -0.5}, v3.Vec{X: 0.2, Y: 1.5, Z: -0.5},
		v3.Vec{X: 0.8, Y: 1.5, Z: 0.5}, v3.Vec{X: 0.8, Y: -0.5, Z: 0.5},
	)
	ab := intersect(t, a, b)
	ba := intersect(t, b, a)
	if len(ab) != len(ba) || len(ab) == 0 {
		t.Fatalf("len(Intersect(a,b)) = %d, len(Intersect(b,a)) = %d", len(ab), len(ba))
	}
	for i := range ab {
		if ab[i].Kind != ba[i].Kind {
			t.Errorf("event %d: kind %v vs %v", i, ab[i].Kind, ba[i].Kind)
			continue
		}
		if len(ab[i].Samples) != len(ba[i].Samples) {
			t.Errorf("event %d: %d vs %d samples", i, len(ab[i].Samples), len(ba[i].Samples))
			continue
		}
		for k, s := range ab[i].Samples {
			o := ba[i].Samples[k]
			if s.P != o.P || s.A != o.B || s.B != o.A {
				t.Errorf("event %d sample %d: %+v vs swapped %+v", i, k, s, o)
				break
			}
		}
	}
}

// paraboloid returns z = x^2 + y^2 over [-1,1] x [-1,1] as a biquadratic
// patch.
func paraboloid(t *testing.T) *nurbs.Surface {
	t.Helper()
	xs := []float64{-1, 0, 1}
	c := []float64{1, -1, 1} // Bezier controls of x^2 over [-1,1]
	pts := make([][]v3.Vec, 3)
	for i := range pts {
		pts[i] = make([]v3.Vec, 3)
		for j := range pts[i] {
			pts[i][j] = v3.Vec{X: xs[i], Y: xs[j], Z: c[i] + c[j]}
		}
	}
	knots := []float64{0, 0, 0, 1, 1, 1}
	s, err := nurbs.NewSurface(2, 2, pts, nil, knots, knots)
	if err != nil {
		t.Fatalf("NewSurface() error = %v", err)
	}
	return s
}

func TestParaboloidTouchesPlaneAtPoint(t *testing.T) {
	bowl := paraboloid(t)
	if p := bowl.Point(0.75, 0.5); !near(p, v3.Vec{X: 0.5, Z: 0.25}, 1e-9) {
		t.Fatalf("Point(0.75, 0.5) = %v, want (0.5, 0, 0.25)", p)
	}
	plane := flat(-2, -2, 2, 2, 0)
	tests := []struct {
		name string
		a, b *nurbs.Surface
	}{
		{"bowl first", bowl, plane},
		{"plane first", plane, bowl},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := intersect(t, tt.a, tt.b)
			if len(ev) != 1 {
				t.Fatalf("Intersect() = %d events, want 1: %+v", len(ev), ev)
			}
			if ev[0].Kind != ssx.TangentPoint {
				t.Errorf("Kind = %v, want %v", ev[0].Kind, ssx.TangentPoint)
			}
			if !near(ev[0].Point, v3.Vec{}, 1e-4) {
				t.Errorf("Point = %v, want the origin", ev[0].Point)
			}
		})
	}
}

func TestCylinderAlongPlaneIsTangentCurve(t *testing.T) {
	arc := nurbs.Arc(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 1, -math.Pi/4, math.Pi/4)
	side := nurbs.Extrusion(arc, v3.Vec{Z: 2})
	plane := wall(1, -1, 1, 0, 2)
	ev := intersect(t, side, plane)
	if len(ev) != 1 || ev[0].Kind != ssx.TangentCurve {
		t.Fatalf("Intersect() = %+v, want one tangent curve", ev)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range ev[0].Points() {
		if math.Abs(p.X-1) > 1e-3 || math.Abs(p.Y) > 2e-3 {
			t.Errorf("curve point %v off the line x=1, y=0", p)
		}
		lo, hi = math.Min(lo, p.Z), math.Max(hi, p.Z)
	}
	if lo > 1e-2 || hi < 2-1e-2 {
		t.Errorf("curve spans z = %g..%g, want 0..2", lo, hi)
	}
}

func TestSaddleCrossingLines(t *testing.T) {
	// z = xy meets z = 0 in the axes, which cross at a singular point.
	saddle := nurbs.Bilinear(
		v3.Vec{X: -1, Y: -1, Z: 1}, v3.Vec{X: 1, Y: -1, Z: -1},
		v3.Vec{X: 1, Y: 1, Z: 1}, v3.Vec{X: -1, Y: 1, Z: -1},
	)
	ev := intersect(t, saddle, flat(-2, -2, 2, 2, 0))
	curves := 0
	for _, e := range ev {
		if e.Kind.IsCurve() {
			curves++
		}
		for _, p := range e.Points() {
			if math.Min(math.Abs(p.X), math.Abs(p.Y)) > 1e-3 || math.Abs(p.Z) > 1e-3 {
				t.Errorf("%v point %v off the axes", e.Kind, p)
			}
		}
	}
	if curves < 2 {
		t.Fatalf("Intersect() = %d curves, want the axis lines: %+v", curves, ev)
	}
	for _, end := range []v3.Vec{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}} {
		found := false
		for _, e := range ev {
			for _, p := range e.Points() {
				if near(p, end, 5e-3) {
					found = true
				}
			}
		}
		if !found {
			t.Errorf("no curve reaches %v", end)
		}
	}
}

func TestIntersectNilSurface(t *testing.T) {
	_, err := ssx.Intersect(nil, flat(0, 0, 1, 1, 0), ssx.Options{})
	if !errors.Is(err, kernel.ErrDegenerateGeometry) {
		t.Errorf("Intersect(nil, b) error = %v, want DegenerateGeometry", err)
	}
}

// --- isocurves ---

func TestIsocurve(t *testing.T) {
	tests := []struct {
		name  string
		s     *nurbs.Surface
		other *nurbs.Surface
		iso   ssx.Isocurve
		want  []ssx.Kind
		point v3.Vec
	}{
		{
			name:  "piercing",
			s:     wall(0.5, -0.5, 1.5, -0.5, 0.5),
			other: flat(0, 0, 1, 1, 0),
			iso:   ssx.Isocurve{AlongV: true, Value: 0.5},
			want:  []ssx.Kind{ssx.TransversePoint},
			point: v3.Vec{X: 0.5, Y: 0.5},
		},
		{
			name:  "lying on",
			s:     flat(0, 0, 1, 1, 0),
			other: flat(-1, -1, 2, 2, 0),
			iso:   ssx.Isocurve{Value: 0.5},
			want:  []ssx.Kind{ssx.OverlapCurve},
			point: v3.Vec{X: 0, Y: 0.5},
		},
		{
			name:  "miss",
			s:     flat(0, 0, 1, 1, 1),
			other: flat(0, 0, 1, 1, 0),
			iso:   ssx.Isocurve{Value: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ssx.IntersectIsocurve(tt.s, tt.other, tt.iso, ssx.Options{})
			if err != nil {
				t.Fatalf("IntersectIsocurve() error = %v", err)
			}
			if len(ev) != len(tt.want) {
				t.Fatalf("IntersectIsocurve() = %d events, want %d: %+v", len(ev), len(tt.want), ev)
			}
			for i, e := range ev {
				if e.Kind != tt.want[i] {
					t.Errorf("event %d kind = %v, want %v", i, e.Kind, tt.want[i])
				}
			}
			if len(ev) > 0 && !near(ev[0].Point, tt.point, 1e-6) {
				t.Errorf("event point = %v, want %v", ev[0].Point, tt.point)
			}
		})
	}
}

func TestIsocurveOverlapSpansCurve(t *testing.T) {
	ev, err := ssx.IntersectIsocurve(flat(0, 0, 1, 1, 0), flat(-1, -1, 2, 2, 0), ssx.Isocurve{Value: 0.5}, ssx.Options{})
	if err != nil || len(ev) != 1 {
		t.Fatalf("IntersectIsocurve() = %v, %v", ev, err)
	}
	if ev[0].T != 0 || ev[0].T1 != 1 {
		t.Errorf("overlap = [%g, %g], want [0, 1]", ev[0].T, ev[0].T1)
	}
}

func TestIsocurveOutsideDomain(t *testing.T) {
	_, err := ssx.IntersectIsocurve(flat(0, 0, 1, 1, 0), flat(0, 0, 1, 1, 0), ssx.Isocurve{Value: 5}, ssx.Options{})
	if !errors.Is(err, kernel.ErrDegenerateGeometry) {
		t.Errorf("IntersectIsocurve() error = %v, want DegenerateGeometry", err)
	}
}

// --- batch ---

// boxes returns the unit box and a bar pushed through its x = 1 face.
func boxes() (*brep.Solid, *brep.Solid) {
	a := brep.NewBox(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	b := brep.NewBox(v3.Vec{X: 0.5, Y: 0.2, Z: 0.2}, v3.Vec{X: 1.5, Y: 0.8, Z: 0.8})
	return a, b
}

func newBatch(t *testing.T) *ssx.Batch {
	t.Helper()
	a, b := boxes()
	bt, err := ssx.NewBatch(a, b, ssx.Options{})
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	return bt
}

func TestBatchPairs(t *testing.T) {
	bt := newBatch(t)
	if len(bt.Pairs) != 4 {
		t.Fatalf("len(Pairs) = %d, want 4: %v", len(bt.Pairs), bt.Pairs)
	}
	for p := range bt.Pairs {
		ev, err := bt.SSX(p)
		if err != nil {
			t.Fatalf("SSX(%d) error = %v", p, err)
		}
		if len(ev) != 1 || ev[0].Kind != ssx.TransverseCurve {
			t.Errorf("SSX(%d) = %d events, want one transverse curve", p, len(ev))
		}
	}
	if f := bt.Failures(); len(f) != 0 {
		t.Errorf("Failures() = %v, want none", f)
	}
}

func TestBatchLinksClosedLoop(t *testing.T) {
	bt := newBatch(t)
	linked := bt.LinkedCurves()
	if len(linked) != 1 {
		t.Fatalf("LinkedCurves() = %d chains, want 1", len(linked))
	}
	if !linked[0].Closed || len(linked[0].Pieces) != 4 {
		t.Errorf("chain closed=%t pieces=%d, want closed with 4", linked[0].Closed, len(linked[0].Pieces))
	}
	for _, p := range linked[0].Points {
		if math.Abs(p.X-1) > 1e-6 {
			t.Errorf("chain point %v not on x = 1", p)
		}
	}
	cuts := bt.SplitFaces()
	if len(cuts) != 5 {
		t.Errorf("SplitFaces() = %d faces, want 5", len(cuts))
	}
}

func TestBatchOrderIndependent(t *testing.T) {
	first := newBatch(t)
	linked := first.LinkedCurves()
	second := newBatch(t)
	for p := range second.Pairs {
		if _, err := second.SSX(p); err != nil {
			t.Fatal(err)
		}
		for sub := 0; sub < ssx.IsoSubs; sub++ {
			if _, err := second.IsoCSX(p, sub); err != nil {
				t.Fatal(err)
			}
		}
	}
	again := second.LinkedCurves()
	if len(again) != len(linked) {
		t.Fatalf("LinkedCurves() = %d vs %d", len(again), len(linked))
	}
	for i := range linked {
		if len(linked[i].Points) != len(again[i].Points) {
			t.Errorf("chain %d: %d vs %d points", i, len(linked[i].Points), len(again[i].Points))
		}
	}
}

func TestBatchGetRejectsBadIndices(t *testing.T) {
	bt := newBatch(t)
	tests := []struct {
		name string
		req  ssx.Request
	}{
		{"pair", ssx.Request{Stage: ssx.SSXEventsComputed, Pair: len(bt.Pairs), Sub: -1}},
		{"negative pair", ssx.Request{Stage: ssx.SSXPairSelected, Pair: -1, Sub: -1}},
		{"sub", ssx.Request{Stage: ssx.IsoCSXEventsComputed, Pair: 0, Sub: ssx.IsoSubs}},
		{"event", ssx.Request{Stage: ssx.SSXEventsComputed, Pair: 0, Sub: -1, Event: 5}},
		{"stage", ssx.Request{Stage: ssx.Done + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := bt.Get(tt.req); !errors.Is(err, kernel.ErrInvalidIndex) {
				t.Errorf("Get(%+v) error = %v, want InvalidIndex", tt.req, err)
			}
		})
	}
}

func TestBatchReportsFailedPair(t *testing.T) {
	a, b := boxes()
	bt, err := ssx.NewBatch(a, b, ssx.Options{MaxIterations: 1})
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	if _, err := bt.SSX(0); !errors.Is(err, kernel.ErrIntersectionFailed) {
		t.Fatalf("SSX(0) error = %v, want IntersectionFailed", err)
	}
	tests := []struct {
		name string
		req  ssx.Request
	}{
		{"events", ssx.Request{Stage: ssx.SSXEventsComputed, Pair: 0, Sub: -1}},
		{"clipped", ssx.Request{Stage: ssx.FaceCurvesClipped, Pair: 0, Sub: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := bt.Get(tt.req); !errors.Is(err, kernel.ErrIntersectionFailed) {
				t.Errorf("Get(%+v) error = %v, want IntersectionFailed", tt.req, err)
			}
		})
	}
	if got := len(bt.Failures()); got != 1 {
		t.Errorf("len(Failures()) = %d, want 1", got)
	}
}

func TestBatchNextWalksAllStages(t *testing.T) {
	bt := newBatch(t)
	c := ssx.Cursor{Stage: ssx.Initial, Sub: -1}
	seen := map[ssx.Stage]int{}
	for steps := 0; ; steps++ {
		if steps > 10000 {
			t.Fatal("Next() did not reach Done")
		}
		art, more, err := bt.Get(c)
		if err != nil {
			t.Fatalf("Get(%+v) error = %v", c, err)
		}
		if want := c.Event+1 < art.Count; more != want {
			t.Errorf("Get(%+v) more = %t, want %t", c, more, want)
		}
		seen[c.Stage]++
		next, ok := bt.Next(c)
		if !ok {
			break
		}
		c = next
	}
	if c.Stage != ssx.Done {
		t.Errorf("walk ended at %v, want %v", c.Stage, ssx.Done)
	}
	if seen[ssx.SSXEventsComputed] != 4 {
		t.Errorf("visited %d ssx events, want 4", seen[ssx.SSXEventsComputed])
	}
	if seen[ssx.IsoCSXPairSelected] != 4*ssx.IsoSubs {
		t.Errorf("visited %d iso subproblems, want %d", seen[ssx.IsoCSXPairSelected], 4*ssx.IsoSubs)
	}
	for _, st := range []ssx.Stage{ssx.FaceCurvesClipped, ssx.LinkedCurvesBuilt, ssx.FacesSplit} {
		if seen[st] == 0 {
			t.Errorf("stage %v never visited", st)
		}
	}
}

func TestBatchRunCancelled(t *testing.T) {
	bt := newBatch(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bt.Run(ctx, 2)
	if !errors.Is(err, kernel.ErrIntersectionFailed) {
		t.Errorf("Run() error = %v, want IntersectionFailed", err)
	}
	if got := len(bt.Failures()); got != len(bt.Pairs) {
		t.Errorf("len(Failures()) = %d, want %d", got, len(bt.Pairs))
	}
}

func TestBatchRun(t *testing.T) {
	bt := newBatch(t)
	if err := bt.Run(context.Background(), 4); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(bt.LinkedCurves()) != 1 {
		t.Errorf("LinkedCurves() = %d, want 1", len(bt.LinkedCurves()))
	}
}
