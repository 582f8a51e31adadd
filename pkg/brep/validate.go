package brep

import (
	"fmt"

	"github.com/chazu/brepkit/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ValidationSeverity indicates whether a finding blocks tessellation or is
// merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks tessellation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Entity   string // "edge", "trim", "loop", ...; empty if solid-level
	Index    int
	Message  string
	Severity ValidationSeverity
	Dangling bool // an index that does not resolve
}

func (e ValidationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s %d: %s", e.Severity, e.Entity, e.Index, e.Message)
}

// Err returns the finding as a kernel error: InvalidIndex for a dangling
// reference and DegenerateGeometry for any other structural problem.
func (e ValidationError) Err() error {
	kind := kernel.DegenerateGeometry
	if e.Dangling {
		kind = kernel.InvalidIndex
	}
	return &kernel.Error{Kind: kind, Entity: e.Entity, Index: e.Index, Reason: e.Message}
}

// HasErrors reports whether any finding has SeverityError.
func HasErrors(findings []ValidationError) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks index references, edge usage and geometric continuity.
// Structural problems are errors; gaps and open edges are warnings. The
// solid is not modified.
func Validate(s *Solid) []ValidationError {
	errs := validateReferences(s)
	if HasErrors(errs) {
		// Geometric checks dereference indices.
		return errs
	}
	errs = append(errs, validateUsage(s)...)
	errs = append(errs, validateGeometry(s)...)
	return errs
}

func errorf(entity string, i int, format string, args ...any) ValidationError {
	return ValidationError{Entity: entity, Index: i, Message: fmt.Sprintf(format, args...), Severity: SeverityError}
}

// danglingf records an index that is out of range or points back at the
// wrong entity.
func danglingf(entity string, i int, format string, args ...any) ValidationError {
	e := errorf(entity, i, format, args...)
	e.Dangling = true
	return e
}

func warnf(entity string, i int, format string, args ...any) ValidationError {
	return ValidationError{Entity: entity, Index: i, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning}
}

func inRange(i, n int) bool { return i >= 0 && i < n }

func validateReferences(s *Solid) []ValidationError {
	var errs []ValidationError
	for i, v := range s.Vertices {
		if v.Point == nil {
			errs = append(errs, errorf("vertex", i, "has no point"))
		}
	}
	for i, e := range s.Edges {
		if !inRange(e.Curve, len(s.Curves3D)) {
			errs = append(errs, danglingf("edge", i, "curve %d out of range", e.Curve))
		}
		for _, v := range e.Vertices {
			if !inRange(v, len(s.Vertices)) {
				errs = append(errs, danglingf("edge", i, "vertex %d out of range", v))
			}
		}
		for _, t := range e.Trims {
			if !inRange(t, len(s.Trims)) {
				errs = append(errs, danglingf("edge", i, "trim %d out of range", t))
			} else if s.Trims[t].Edge != i {
				errs = append(errs, danglingf("edge", i, "trim %d refers to edge %d", t, s.Trims[t].Edge))
			}
		}
	}
	for i, t := range s.Trims {
		if !inRange(t.Curve, len(s.Curves2D)) {
			errs = append(errs, danglingf("trim", i, "curve %d out of range", t.Curve))
		}
		if !inRange(t.Loop, len(s.Loops)) {
			errs = append(errs, danglingf("trim", i, "loop %d out of range", t.Loop))
		}
		if t.Kind == TrimSingular {
			if !inRange(t.Vertex, len(s.Vertices)) {
				errs = append(errs, danglingf("trim", i, "singular vertex %d out of range", t.Vertex))
			}
		} else if !inRange(t.Edge, len(s.Edges)) {
			errs = append(errs, danglingf("trim", i, "edge %d out of range", t.Edge))
		}
	}
	for i, l := range s.Loops {
		if !inRange(l.Face, len(s.Faces)) {
			errs = append(errs, danglingf("loop", i, "face %d out of range", l.Face))
		}
		if len(l.Trims) == 0 {
			errs = append(errs, errorf("loop", i, "has no trims"))
		}
		for _, t := range l.Trims {
			if !inRange(t, len(s.Trims)) {
				errs = append(errs, danglingf("loop", i, "trim %d out of range", t))
			} else if s.Trims[t].Loop != i {
				errs = append(errs, danglingf("loop", i, "trim %d refers to loop %d", t, s.Trims[t].Loop))
			}
		}
	}
	for i, f := range s.Faces {
		if !inRange(f.Surface, len(s.Surfaces)) {
			errs = append(errs, danglingf("face", i, "surface %d out of range", f.Surface))
		}
		outer := 0
		for _, l := range f.Loops {
			if !inRange(l, len(s.Loops)) {
				errs = append(errs, danglingf("face", i, "loop %d out of range", l))
				continue
			}
			if s.Loops[l].Kind == LoopOuter {
				outer++
			}
		}
		if outer != 1 {
			errs = append(errs, errorf("face", i, "has %d outer loops, want 1", outer))
		}
	}
	return errs
}

func validateUsage(s *Solid) []ValidationError {
	var errs []ValidationError
	for i, e := range s.Edges {
		switch n := len(e.Trims); {
		case n == 0:
			errs = append(errs, warnf("edge", i, "is not used by any trim"))
		case n == 1:
			errs = append(errs, warnf("edge", i, "is used by one trim (open shell)"))
		case n > 2:
			errs = append(errs, errorf("edge", i, "is used by %d trims (non-manifold)", n))
		}
	}
	return errs
}

func validateGeometry(s *Solid) []ValidationError {
	var errs []ValidationError
	tol := 1e-6 * s.Diagonal()
	if tol == 0 {
		tol = 1e-9
	}

	for i, e := range s.Edges {
		c := s.EdgeCurve(i)
		lo, hi := c.Domain()
		if d := c.Point(lo).Sub(s.Vertices[e.Vertices[0]].Point.Vec).Length(); d > tol {
			errs = append(errs, warnf("edge", i, "start is %.3g from vertex %d", d, e.Vertices[0]))
		}
		if d := c.Point(hi).Sub(s.Vertices[e.Vertices[1]].Point.Vec).Length(); d > tol {
			errs = append(errs, warnf("edge", i, "end is %.3g from vertex %d", d, e.Vertices[1]))
		}
	}

	for li, l := range s.Loops {
		sf := s.SurfaceOf(l.Face)
		uw, vw := spanOf(sf.DomainU()), spanOf(sf.DomainV())
		uvTol := 1e-6 * (uw + vw)
		for k, t := range l.Trims {
			next := l.Trims[(k+1)%len(l.Trims)]
			if gap := trimEnd(s, t).Sub(trimStart(s, next)).Length(); gap > uvTol {
				errs = append(errs, warnf("loop", li, "gap %.3g between trims %d and %d", gap, t, next))
			}
		}
		for _, t := range l.Trims {
			tr := s.Trims[t]
			if tr.Kind == TrimSingular {
				continue
			}
			uv := trimStart(s, t)
			start := s.Vertices[trimStartVertex(s, t)].Point.Vec
			if d := sf.Point(uv.X, uv.Y).Sub(start).Length(); d > 1e3*tol {
				errs = append(errs, warnf("trim", t, "start maps %.3g from its vertex", d))
			}
		}
	}
	return errs
}

func spanOf(lo, hi float64) float64 { return hi - lo }

func trimStart(s *Solid, t int) v3.Vec {
	c := s.TrimCurve(t)
	lo, _ := c.Domain()
	return c.Point(lo)
}

func trimEnd(s *Solid, t int) v3.Vec {
	c := s.TrimCurve(t)
	_, hi := c.Domain()
	return c.Point(hi)
}

// trimStartVertex returns the vertex a trim starts at, accounting for its
// direction relative to the edge.
func trimStartVertex(s *Solid, t int) int {
	tr := s.Trims[t]
	if tr.Kind == TrimSingular {
		return tr.Vertex
	}
	e := s.Edges[tr.Edge]
	if tr.Reversed {
		return e.Vertices[1]
	}
	return e.Vertices[0]
}
