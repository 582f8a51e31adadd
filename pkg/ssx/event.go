// Package ssx intersects NURBS surfaces with each other and with the
// boundary isocurves of their neighbours, and stages the face-pair work of
// two solids so that every intermediate result can be inspected.
package ssx

import (
	"fmt"
	"math"

	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/tolerance"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Kind tags an intersection event.
type Kind int

const (
	TransverseCurve Kind = iota
	TangentCurve
	OverlapCurve
	TransversePoint
	TangentPoint
)

func (k Kind) String() string {
	switch k {
	case TransverseCurve:
		return "transverse curve"
	case TangentCurve:
		return "tangent curve"
	case OverlapCurve:
		return "overlap curve"
	case TransversePoint:
		return "transverse point"
	case TangentPoint:
		return "tangent point"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsCurve reports whether events of this kind carry curves.
func (k Kind) IsCurve() bool { return k <= OverlapCurve }

// Rect is an axis aligned parameter space rectangle.
type Rect struct {
	Min, Max v2.Vec
}

// Sample is one point of an intersection with its parameters on both
// surfaces.
type Sample struct {
	P    v3.Vec
	A, B v2.Vec
}

// Event is one intersection between surfaces A and B. Curve kinds fill
// Curve3D, CurveA, CurveB and the domains; point kinds fill Point, UVA and
// UVB. UV curves are degree one curves in the xy plane. Samples holds the
// polyline the curves were built from.
type Event struct {
	Kind Kind

	Curve3D *nurbs.Curve
	CurveA  *nurbs.Curve
	CurveB  *nurbs.Curve
	DomainA Rect
	DomainB Rect

	Point v3.Vec
	UVA   v2.Vec
	UVB   v2.Vec

	Samples []Sample
}

// Points returns the 3D polyline of a curve event or the single point of
// a point event.
func (e *Event) Points() []v3.Vec {
	if !e.Kind.IsCurve() {
		return []v3.Vec{e.Point}
	}
	pts := make([]v3.Vec, len(e.Samples))
	for i, s := range e.Samples {
		pts[i] = s.P
	}
	return pts
}

// swapped returns the event with the roles of A and B exchanged.
func (e Event) swapped() Event {
	e.CurveA, e.CurveB = e.CurveB, e.CurveA
	e.DomainA, e.DomainB = e.DomainB, e.DomainA
	e.UVA, e.UVB = e.UVB, e.UVA
	samples := make([]Sample, len(e.Samples))
	for i, s := range e.Samples {
		samples[i] = Sample{P: s.P, A: s.B, B: s.A}
	}
	e.Samples = samples
	return e
}

// Options bounds the intersection work. Zero fields take defaults.
type Options struct {
	Tol           float64 // 3D coincidence distance; default base distance
	MaxDepth      int     // surface subdivision levels; default 6
	MaxIterations int     // marching steps per curve; default 4096
	MaxEvents     int     // default 256
}

func (o Options) withDefaults() Options {
	if o.Tol <= 0 {
		_, b := tolerance.Defaults()
		o.Tol = b.Dist
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 6
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 4096
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = 256
	}
	return o
}

// polyline builds a degree one curve through pts. Consecutive duplicates
// are removed.
func polyline(pts []v3.Vec) *nurbs.Curve {
	var clean []v3.Vec
	for _, p := range pts {
		if len(clean) > 0 && clean[len(clean)-1].Sub(p).Length() < nurbs.Epsilon {
			continue
		}
		clean = append(clean, p)
	}
	if len(clean) == 1 {
		clean = append(clean, clean[0])
	}
	c, err := nurbs.Polyline(clean)
	if err != nil {
		return nurbs.Line(clean[0], clean[len(clean)-1])
	}
	return c
}

func uvCurve(uvs []v2.Vec) *nurbs.Curve {
	pts := make([]v3.Vec, len(uvs))
	for i, p := range uvs {
		pts[i] = v3.Vec{X: p.X, Y: p.Y}
	}
	return polyline(pts)
}

func rectOf(uvs []v2.Vec) Rect {
	r := Rect{
		Min: v2.Vec{X: math.Inf(1), Y: math.Inf(1)},
		Max: v2.Vec{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range uvs {
		r.Min = v2.Vec{X: math.Min(r.Min.X, p.X), Y: math.Min(r.Min.Y, p.Y)}
		r.Max = v2.Vec{X: math.Max(r.Max.X, p.X), Y: math.Max(r.Max.Y, p.Y)}
	}
	return r
}

// curveEvent builds a curve event from matching 3D and UV samples.
func curveEvent(k Kind, pts []v3.Vec, uva, uvb []v2.Vec) Event {
	samples := make([]Sample, len(pts))
	for i := range pts {
		samples[i] = Sample{P: pts[i], A: uva[i], B: uvb[i]}
	}
	return Event{
		Kind:    k,
		Curve3D: polyline(pts),
		CurveA:  uvCurve(uva),
		CurveB:  uvCurve(uvb),
		DomainA: rectOf(uva),
		DomainB: rectOf(uvb),
		Point:   pts[0],
		UVA:     uva[0],
		UVB:     uvb[0],
		Samples: samples,
	}
}
