package nurbs

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/brepkit/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func near(a, b v3.Vec, tol float64) bool {
	return a.Sub(b).Length() <= tol
}

func TestNewCurveValidation(t *testing.T) {
	pts := []v3.Vec{{X: 0}, {X: 1}, {X: 2}}
	tests := []struct {
		name    string
		degree  int
		weights []float64
		knots   []float64
		wantErr bool
	}{
		{"valid quadratic", 2, nil, []float64{0, 0, 0, 1, 1, 1}, false},
		{"valid linear", 1, nil, []float64{0, 0, 0.5, 1, 1}, false},
		{"wrong knot count", 2, nil, []float64{0, 0, 1, 1}, true},
		{"unclamped", 1, nil, []float64{0, 0.2, 0.5, 1, 1}, true},
		{"decreasing", 1, nil, []float64{0, 0, 0.7, 0.5, 1}, true},
		{"zero weight", 2, []float64{1, 0, 1}, []float64{0, 0, 0, 1, 1, 1}, true},
		{"zero domain", 1, nil, []float64{0, 0, 0, 0, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCurve(tt.degree, pts, tt.weights, tt.knots)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCurve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, kernel.ErrDegenerateGeometry) {
				t.Errorf("NewCurve() error kind = %v, want DegenerateGeometry", err)
			}
		})
	}
}

func TestCurvePointAndTangent(t *testing.T) {
	c := Line(v3.Vec{X: 1, Y: 1}, v3.Vec{X: 3, Y: 1})
	if p := c.Point(0.5); !near(p, v3.Vec{X: 2, Y: 1}, 1e-12) {
		t.Errorf("Point(0.5) = %v, want (2,1,0)", p)
	}
	tan, ok := c.Tangent(0.25)
	if !ok || !near(tan, v3.Vec{X: 1}, 1e-12) {
		t.Errorf("Tangent(0.25) = %v, %v, want (1,0,0), true", tan, ok)
	}
	if got := c.ControlPolygonLength(); math.Abs(got-2) > 1e-12 {
		t.Errorf("ControlPolygonLength() = %g, want 2", got)
	}
}

func TestArcIsCircular(t *testing.T) {
	center := v3.Vec{X: 1, Y: 2, Z: 3}
	c := Arc(center, v3.Vec{X: 1}, v3.Vec{Y: 1}, 2, 0, 3*math.Pi/2)
	for i := 0; i <= 20; i++ {
		p := c.Point(float64(i) / 20)
		if r := p.Sub(center).Length(); math.Abs(r-2) > 1e-9 {
			t.Fatalf("Point(%g) radius = %g, want 2", float64(i)/20, r)
		}
	}
	end := c.Point(1)
	if !near(end, v3.Vec{X: 1, Y: 0, Z: 3}, 1e-9) {
		t.Errorf("arc end = %v, want (1,0,3)", end)
	}
}

func TestCurveDerivativesMatchFiniteDifference(t *testing.T) {
	c := Circle(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 1.5)
	const h = 1e-6
	for _, u := range []float64{0.1, 0.33, 0.6, 0.9} {
		d := c.Derivatives(u, 1)[1]
		fd := c.Point(u + h).Sub(c.Point(u - h)).DivScalar(2 * h)
		if !near(d, fd, 1e-4) {
			t.Errorf("Derivatives(%g) = %v, finite difference %v", u, d, fd)
		}
	}
}

func TestCurveSplitPreservesShape(t *testing.T) {
	c := Arc(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 1, 0, math.Pi)
	left, right, ok := c.Split(0.3)
	if !ok {
		t.Fatal("Split(0.3) = false")
	}
	if lo, hi := left.Domain(); lo != 0 || math.Abs(hi-0.3) > 1e-12 {
		t.Errorf("left domain = [%g,%g], want [0,0.3]", lo, hi)
	}
	for _, u := range []float64{0, 0.1, 0.2, 0.3} {
		if !near(left.Point(u), c.Point(u), 1e-9) {
			t.Errorf("left.Point(%g) = %v, want %v", u, left.Point(u), c.Point(u))
		}
	}
	for _, u := range []float64{0.3, 0.5, 0.75, 1} {
		if !near(right.Point(u), c.Point(u), 1e-9) {
			t.Errorf("right.Point(%g) = %v, want %v", u, right.Point(u), c.Point(u))
		}
	}
	if _, _, ok := c.Split(0); ok {
		t.Error("Split(0) = true, want false at domain end")
	}
}

func TestCurveReversedAndReparameterized(t *testing.T) {
	c := Arc(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 1, 0, math.Pi/2)
	r := c.Reversed()
	if !near(r.Point(0), c.Point(1), 1e-12) || !near(r.Point(1), c.Point(0), 1e-12) {
		t.Error("Reversed() should swap end points")
	}
	rp := c.Reparameterized(0, 10)
	if !near(rp.Point(5), c.Point(0.5), 1e-12) {
		t.Errorf("Reparameterized Point(5) = %v, want %v", rp.Point(5), c.Point(0.5))
	}
}

func TestCurveClosestParam(t *testing.T) {
	c := Line(v3.Vec{}, v3.Vec{X: 4})
	if got := c.ClosestParam(v3.Vec{X: 1, Y: 3}); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("ClosestParam() = %g, want 0.25", got)
	}
}

func TestPolyline(t *testing.T) {
	pl, err := Polyline([]v3.Vec{{}, {X: 1}, {X: 1, Y: 2}})
	if err != nil {
		t.Fatalf("Polyline() error = %v", err)
	}
	if _, hi := pl.Domain(); math.Abs(hi-3) > 1e-12 {
		t.Errorf("Polyline domain end = %g, want 3", hi)
	}
	if p := pl.Point(2); !near(p, v3.Vec{X: 1, Y: 1}, 1e-12) {
		t.Errorf("Point(2) = %v, want (1,1,0)", p)
	}
	if _, err := Polyline([]v3.Vec{{}, {}}); err == nil {
		t.Error("Polyline() with repeated point should fail")
	}
}

func TestSurfaceBilinear(t *testing.T) {
	s := Bilinear(v3.Vec{}, v3.Vec{X: 2}, v3.Vec{X: 2, Y: 3}, v3.Vec{Y: 3})
	if p := s.Point(0.5, 0.5); !near(p, v3.Vec{X: 1, Y: 1.5}, 1e-12) {
		t.Errorf("Point(0.5,0.5) = %v, want (1,1.5,0)", p)
	}
	n, ok := s.Normal(0.2, 0.7)
	if !ok || !near(n, v3.Vec{Z: 1}, 1e-12) {
		t.Errorf("Normal() = %v, %v, want (0,0,1), true", n, ok)
	}
	w, h := s.Size()
	if math.Abs(w-2) > 1e-9 || math.Abs(h-3) > 1e-9 {
		t.Errorf("Size() = %g x %g, want 2 x 3", w, h)
	}
	if s.IsClosed(false, 1e-6) || s.IsClosed(true, 1e-6) {
		t.Error("flat patch should not be closed")
	}
}

func TestSurfaceIsocurvesMatchSurface(t *testing.T) {
	line := Arc(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 1, 0, math.Pi)
	s := Extrusion(line, v3.Vec{Z: 2})
	iu := s.IsoU(0.4)
	iv := s.IsoV(0.25)
	for _, t0 := range []float64{0, 0.3, 0.8, 1} {
		if !near(iu.Point(t0), s.Point(0.4, t0), 1e-9) {
			t.Errorf("IsoU(0.4).Point(%g) = %v, want %v", t0, iu.Point(t0), s.Point(0.4, t0))
		}
		if !near(iv.Point(t0), s.Point(t0, 0.25), 1e-9) {
			t.Errorf("IsoV(0.25).Point(%g) = %v, want %v", t0, iv.Point(t0), s.Point(t0, 0.25))
		}
	}
}

func TestSurfaceSplit(t *testing.T) {
	arc := Arc(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 1, 0, math.Pi)
	s := Extrusion(arc, v3.Vec{Z: 1})
	for _, alongV := range []bool{false, true} {
		a, b, ok := s.Split(0.4, alongV)
		if !ok {
			t.Fatalf("Split(0.4, %v) = false", alongV)
		}
		for _, f := range []float64{0, 0.2, 0.4} {
			u, v := f, 0.5
			if alongV {
				u, v = 0.5, f
			}
			if !near(a.Point(u, v), s.Point(u, v), 1e-9) {
				t.Errorf("alongV=%v: left.Point(%g,%g) = %v, want %v", alongV, u, v, a.Point(u, v), s.Point(u, v))
			}
		}
		for _, f := range []float64{0.4, 0.7, 1} {
			u, v := f, 0.5
			if alongV {
				u, v = 0.5, f
			}
			if !near(b.Point(u, v), s.Point(u, v), 1e-9) {
				t.Errorf("alongV=%v: right.Point(%g,%g) = %v, want %v", alongV, u, v, b.Point(u, v), s.Point(u, v))
			}
		}
	}
}

func TestSurfaceDerivativesMatchFiniteDifference(t *testing.T) {
	arc := Arc(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 2, 0, math.Pi/2)
	s := Extrusion(arc, v3.Vec{X: 0.5, Z: 1})
	const h = 1e-6
	u, v := 0.37, 0.61
	d := s.Derivatives(u, v, 1)
	fu := s.Point(u+h, v).Sub(s.Point(u-h, v)).DivScalar(2 * h)
	fv := s.Point(u, v+h).Sub(s.Point(u, v-h)).DivScalar(2 * h)
	if !near(d[1][0], fu, 1e-4) {
		t.Errorf("Su = %v, finite difference %v", d[1][0], fu)
	}
	if !near(d[0][1], fv, 1e-4) {
		t.Errorf("Sv = %v, finite difference %v", d[0][1], fv)
	}
}

func TestSurfaceClosestParam(t *testing.T) {
	s := Bilinear(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{X: 1, Y: 1}, v3.Vec{Y: 1})
	uv := s.ClosestParam(v3.Vec{X: 0.3, Y: 0.8, Z: 5})
	if math.Abs(uv.X-0.3) > 1e-9 || math.Abs(uv.Y-0.8) > 1e-9 {
		t.Errorf("ClosestParam() = %v, want (0.3,0.8)", uv)
	}
}

func TestSurfaceReparameterized(t *testing.T) {
	s := Bilinear(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{X: 1, Y: 1}, v3.Vec{Y: 1})
	r := s.Reparameterized(0, 4, 0, 2)
	if !near(r.Point(2, 1), s.Point(0.5, 0.5), 1e-12) {
		t.Errorf("Reparameterized Point(2,1) = %v, want %v", r.Point(2, 1), s.Point(0.5, 0.5))
	}
}

func TestBinomial(t *testing.T) {
	tests := []struct {
		n, k int
		want float64
	}{
		{0, 0, 1}, {4, 2, 6}, {5, 0, 1}, {5, 5, 1}, {6, 3, 20}, {3, 4, 0},
	}
	for _, tt := range tests {
		if got := binomial(tt.n, tt.k); got != tt.want {
			t.Errorf("binomial(%d, %d) = %g, want %g", tt.n, tt.k, got, tt.want)
		}
	}
}
