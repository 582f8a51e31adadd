package nurbs

import v3 "github.com/deadsy/sdfx/vec/v3"

// hpoint is a control point in homogeneous form (w*x, w*y, w*z, w).
type hpoint struct {
	X, Y, Z, W float64
}

func homogenize(p v3.Vec, w float64) hpoint {
	return hpoint{p.X * w, p.Y * w, p.Z * w, w}
}

func (h hpoint) add(o hpoint) hpoint {
	return hpoint{h.X + o.X, h.Y + o.Y, h.Z + o.Z, h.W + o.W}
}

func (h hpoint) scale(s float64) hpoint {
	return hpoint{h.X * s, h.Y * s, h.Z * s, h.W * s}
}

// weighted returns the weighted xyz part without dividing by w.
func (h hpoint) weighted() v3.Vec {
	return v3.Vec{X: h.X, Y: h.Y, Z: h.Z}
}

// point returns the Euclidean point.
func (h hpoint) point() v3.Vec {
	if h.W == 0 {
		return h.weighted()
	}
	return v3.Vec{X: h.X / h.W, Y: h.Y / h.W, Z: h.Z / h.W}
}

// translated moves the Euclidean point by d keeping the weight.
func (h hpoint) translated(d v3.Vec) hpoint {
	return homogenize(h.point().Add(d), h.W)
}
