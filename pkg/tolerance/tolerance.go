// Package tolerance turns user tessellation tolerances into the concrete
// distance and angle thresholds used by the samplers, scaled to the size
// of the entity being processed.
package tolerance

import "math"

// Zero is the threshold below which a tolerance input counts as unset.
const Zero = 1e-12

// Tessellation holds the user-facing tolerances. Abs is an absolute
// distance, Rel a fraction of the entity size and Norm an angle in
// radians. Zero means unset.
type Tessellation struct {
	Abs  float64
	Rel  float64
	Norm float64
}

// Base is the model's base tolerance.
type Base struct {
	Dist float64 // distance below which points coincide
	Perp float64 // perpendicularity, as a cosine
}

// Record is the resolved set of thresholds for one curve or surface.
// MinDist <= WithinDist always holds.
type Record struct {
	MinDist        float64
	MaxDist        float64
	WithinDist     float64
	CosWithinAngle float64
}

// Defaults returns the tolerances used when none are given: 1% relative
// and a base distance of 0.0005.
func Defaults() (Tessellation, Base) {
	return Tessellation{Rel: 0.01}, Base{Dist: 0.0005, Perp: 1e-6}
}

func sane(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	return x
}

func (t Tessellation) sanitized() Tessellation {
	return Tessellation{Abs: sane(t.Abs), Rel: sane(t.Rel), Norm: sane(t.Norm)}
}

func minDist(t Tessellation, b Base) float64 {
	if t.Abs < b.Dist+Zero {
		return b.Dist
	}
	return t.Abs
}

func cosWithin(norm float64) float64 {
	if norm > Zero {
		return math.Max(0, math.Cos(norm))
	}
	return 0
}

// Resolve derives the thresholds for an entity of the given
// characteristic length. maxDistHint caps chord length; a hint of zero
// falls back to length. Inputs are clamped, so the result never holds a
// negative or NaN value.
func Resolve(length, maxDistHint float64, t Tessellation, b Base) Record {
	if math.IsNaN(length) || length <= 0 {
		length = 1
	}
	t = t.sanitized()
	b.Dist = sane(b.Dist)
	maxDist := sane(maxDistHint)
	if maxDist <= 0 {
		maxDist = length
	}

	r := Record{MinDist: minDist(t, b), CosWithinAngle: cosWithin(t.Norm)}
	switch {
	case t.Rel > Zero:
		rel := t.Rel * length
		if maxDist < rel*10 {
			maxDist = rel * 10
		}
		r.WithinDist = math.Max(rel, r.MinDist)
	case t.Abs > Zero:
		r.WithinDist = r.MinDist
	default:
		r.WithinDist = 0.01 * length
	}
	r.MaxDist = maxDist
	if r.WithinDist < r.MinDist {
		r.WithinDist = r.MinDist
	}
	return r
}

// ForSurface derives the thresholds for sampling a surface interior with
// bounding box diagonal diag. An absolute or angular tolerance without a
// relative one leaves the interior unconstrained by distance.
func ForSurface(diag float64, t Tessellation, b Base) Record {
	if math.IsNaN(diag) || diag <= 0 {
		diag = 1
	}
	t = t.sanitized()
	b.Dist = sane(b.Dist)

	r := Record{MinDist: minDist(t, b), MaxDist: diag, CosWithinAngle: cosWithin(t.Norm)}
	switch {
	case t.Rel > Zero:
		r.WithinDist = math.Max(t.Rel*diag, r.MinDist)
	case t.Abs > Zero && t.Norm < Zero:
		r.WithinDist = r.MinDist
	case t.Abs > Zero || t.Norm > Zero:
		r.WithinDist = diag
	default:
		r.WithinDist = 0.01 * diag
	}
	if r.WithinDist < r.MinDist {
		r.WithinDist = r.MinDist
	}
	return r
}

// Size is a surface's estimated physical width and height.
type Size struct {
	Width, Height float64
}

// EdgeHint returns the chord length cap for an edge: the smaller of
// sqrt(2wh)/10 over its adjacent surfaces. It returns 0 when no sizes
// are given.
func EdgeHint(sizes ...Size) float64 {
	hint := 0.0
	for i, s := range sizes {
		md := math.Sqrt(2*s.Width*s.Height) / 10
		if i == 0 || md < hint {
			hint = md
		}
	}
	return hint
}

// TooSmall reports whether a surface of this size falls under the base
// distance.
func (s Size) TooSmall(b Base) bool {
	return s.Width < b.Dist || s.Height < b.Dist
}
