package sample

import (
	"github.com/chazu/brepkit/pkg/nurbs"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// SurfaceCurve is a parameter space curve pushed through its surface.
type SurfaceCurve struct {
	Surface *nurbs.Surface
	UV      *nurbs.Curve
}

var _ Evaluator = SurfaceCurve{}

// Point returns the surface point under the trim curve at t.
func (c SurfaceCurve) Point(t float64) v3.Vec {
	uv := c.UV.Point(t)
	return c.Surface.Point(uv.X, uv.Y)
}

// Tangent returns the unit 3D tangent by the chain rule.
func (c SurfaceCurve) Tangent(t float64) (v3.Vec, bool) {
	d := c.UV.Derivatives(t, 1)
	sd := c.Surface.Derivatives(d[0].X, d[0].Y, 1)
	tan := sd[1][0].MulScalar(d[1].X).Add(sd[0][1].MulScalar(d[1].Y))
	l := tan.Length()
	if l < 1e-14 {
		return v3.Vec{}, false
	}
	return tan.DivScalar(l), true
}

// Normal returns the surface normal under the trim curve at t.
func (c SurfaceCurve) Normal(t float64) (v3.Vec, bool) {
	uv := c.UV.Point(t)
	return c.Surface.Normal(uv.X, uv.Y)
}
