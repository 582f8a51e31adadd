package tessellate

import (
	"math"

	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/tolerance"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// aspect is the width to height ratio above which a cell is cut into
// strips before it is subdivided.
const aspect = 2.0

// maxCellDepth bounds the interior recursion when the tolerances are
// zero.
const maxCellDepth = 24

// interior collects candidate parameter space points for the inside of a
// face. Points are emitted on cell corners and edge midpoints; left and
// below mark the cells whose left and bottom sides nobody emitted yet.
type interior struct {
	sf  *nurbs.Surface
	tol tolerance.Record
	pts []v2.Vec
}

func (s *interior) add(u, v float64) { s.pts = append(s.pts, v2.Vec{X: u, Y: v}) }

// surfacePoints samples the rectangle [min, max] of sf. Closed directions
// are seeded with a split at their midpoint so that both halves see the
// seam.
func surfacePoints(sf *nurbs.Surface, min, max v2.Vec, tol tolerance.Record, closedU, closedV bool) []v2.Vec {
	s := &interior{sf: sf, tol: tol}
	mx, my := (min.X+max.X)/2, (min.Y+max.Y)/2
	switch {
	case closedU && closedV:
		s.add(min.X, min.Y)
		s.add(min.X, my)
		s.cell(min.X, mx, min.Y, my, true, true, 0)
		s.add(mx, min.Y)
		s.add(mx, my)
		s.cell(mx, max.X, min.Y, my, false, true, 0)
		s.add(max.X, min.Y)
		s.add(max.X, my)
		s.add(min.X, max.Y)
		s.cell(min.X, mx, my, max.Y, true, false, 0)
		s.add(mx, max.Y)
		s.cell(mx, max.X, my, max.Y, false, false, 0)
		s.add(max.X, max.Y)
	case closedU:
		s.add(min.X, min.Y)
		s.add(min.X, max.Y)
		s.cell(min.X, mx, min.Y, max.Y, true, true, 0)
		s.add(mx, min.Y)
		s.add(mx, max.Y)
		s.cell(mx, max.X, min.Y, max.Y, false, true, 0)
		s.add(max.X, min.Y)
		s.add(max.X, max.Y)
	case closedV:
		s.add(min.X, min.Y)
		s.add(min.X, my)
		s.cell(min.X, max.X, min.Y, my, true, true, 0)
		s.add(max.X, min.Y)
		s.add(max.X, my)
		s.cell(min.X, max.X, my, max.Y, true, false, 0)
		s.add(min.X, max.Y)
		s.add(max.X, max.Y)
	default:
		s.add(min.X, min.Y)
		s.add(min.X, max.Y)
		s.cell(min.X, max.X, min.Y, max.Y, true, true, 0)
		s.add(max.X, min.Y)
		s.add(max.X, max.Y)
	}
	return s.pts
}

func (s *interior) cell(u1, u2, v1, v2 float64, left, below bool, depth int) {
	ud, vd := u2-u1, v2-v1
	if ud < s.tol.MinDist+tolerance.Zero || vd < s.tol.MinDist+tolerance.Zero || depth >= maxCellDepth {
		return
	}
	switch {
	case ud > aspect*vd:
		s.stripsU(u1, u2, v1, v2, left, below, depth)
		return
	case vd > aspect*ud:
		s.stripsV(u1, u2, v1, v2, left, below, depth)
		return
	}

	u, v := (u1+u2)/2, (v1+v2)/2
	var p [4]v3.Vec
	var n [4]v3.Vec
	corners := [4][2]float64{{u1, v1}, {u2, v1}, {u2, v2}, {u1, v2}}
	for i, c := range corners {
		var ok bool
		if p[i], n[i], ok = s.sf.PointNormal(c[0], c[1]); !ok {
			return
		}
	}
	mid, _, ok := s.sf.PointNormal(u, v)
	if !ok {
		return
	}
	dist := math.Max(lineDistance(mid, p[0], p[2]), lineDistance(mid, p[1], p[3]))
	if dist < s.tol.MinDist+tolerance.Zero {
		return
	}
	udot, vdot := 1.0, 1.0
	if n[0].Sub(n[1]).Length() > tolerance.Zero {
		udot = n[0].Dot(n[1])
	}
	if n[0].Sub(n[3]).Length() > tolerance.Zero {
		vdot = n[0].Dot(n[3])
	}
	cos := s.tol.CosWithinAngle - tolerance.Zero
	d := depth + 1

	switch {
	case udot < cos && vdot < cos:
		s.cross(u1, u2, v1, v2, left, below)
		s.quarters(u1, u2, v1, v2, left, below, d)
	case udot < cos:
		if below {
			s.add(u, v1)
		}
		s.add(u, v2)
		s.cell(u1, u, v1, v2, left, below, d)
		s.cell(u, u2, v1, v2, false, below, d)
	case vdot < cos:
		if left {
			s.add(u1, v)
		}
		s.add(u2, v)
		s.cell(u1, u2, v1, v, left, below, d)
		s.cell(u1, u2, v, v2, left, false, d)
	default:
		s.cross(u1, u2, v1, v2, left, below)
		if dist > s.tol.WithinDist+tolerance.Zero {
			s.quarters(u1, u2, v1, v2, left, below, d)
		}
	}
}

// refine emits the quadrant centres of the cell [min, max] when the
// surface bends across it by more than the tolerances allow.
func (s *interior) refine(min, max v2.Vec) {
	u, v := (min.X+max.X)/2, (min.Y+max.Y)/2
	var p [4]v3.Vec
	var n [4]v3.Vec
	corners := [4][2]float64{{min.X, min.Y}, {max.X, min.Y}, {max.X, max.Y}, {min.X, max.Y}}
	for i, c := range corners {
		var ok bool
		if p[i], n[i], ok = s.sf.PointNormal(c[0], c[1]); !ok {
			return
		}
	}
	mid, _, ok := s.sf.PointNormal(u, v)
	if !ok {
		return
	}
	bent := math.Max(lineDistance(mid, p[0], p[2]), lineDistance(mid, p[1], p[3])) > s.tol.WithinDist+tolerance.Zero
	cos := s.tol.CosWithinAngle - tolerance.Zero
	for i := range n {
		if n[i].Dot(n[(i+1)%4]) < cos {
			bent = true
		}
	}
	if !bent {
		return
	}
	qu, qv := (max.X-min.X)/4, (max.Y-min.Y)/4
	s.add(u-qu, v-qv)
	s.add(u+qu, v-qv)
	s.add(u-qu, v+qv)
	s.add(u+qu, v+qv)
}

// cross emits the centre and edge midpoints of a cell.
func (s *interior) cross(u1, u2, v1, v2 float64, left, below bool) {
	u, v := (u1+u2)/2, (v1+v2)/2
	if left {
		s.add(u1, v)
	}
	if below {
		s.add(u, v1)
	}
	s.add(u, v)
	s.add(u2, v)
	s.add(u, v2)
}

func (s *interior) quarters(u1, u2, v1, v2 float64, left, below bool, depth int) {
	u, v := (u1+u2)/2, (v1+v2)/2
	s.cell(u1, u, v1, v, left, below, depth)
	s.cell(u1, u, v, v2, left, false, depth)
	s.cell(u, u2, v1, v, false, below, depth)
	s.cell(u, u2, v, v2, false, false, depth)
}

func (s *interior) stripsU(u1, u2, v1, v2 float64, left, below bool, depth int) {
	n := int((u2 - u1) / (v2 - v1) / aspect * 2)
	step := (u2 - u1) / float64(n)
	for i := 1; i <= n; i++ {
		su := u1 + float64(i)*step
		if below && i < n {
			s.add(su, v1)
		}
		a, b := su-step, su
		if i == n {
			a, b = u2-step, u2
		}
		s.cell(a, b, v1, v2, left, below, depth+1)
		left = false
		if i < n {
			s.add(su, v2)
		}
	}
}

func (s *interior) stripsV(u1, u2, v1, v2 float64, left, below bool, depth int) {
	n := int((v2 - v1) / (u2 - u1) / aspect * 2)
	step := (v2 - v1) / float64(n)
	for i := 1; i <= n; i++ {
		sv := v1 + float64(i)*step
		if left && i < n {
			s.add(u1, sv)
		}
		a, b := sv-step, sv
		if i == n {
			a, b = v2-step, v2
		}
		s.cell(u1, u2, a, b, left, below, depth+1)
		below = false
		if i < n {
			s.add(u2, sv)
		}
	}
}

// lineDistance is the distance from p to the infinite line through a and b.
func lineDistance(p, a, b v3.Vec) float64 {
	ab := b.Sub(a)
	l2 := ab.Length2()
	if l2 == 0 {
		return p.Sub(a).Length()
	}
	t := p.Sub(a).Dot(ab) / l2
	return p.Sub(a.Add(ab.MulScalar(t))).Length()
}
