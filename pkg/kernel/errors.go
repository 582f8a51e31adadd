package kernel

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure reported by the intersection and
// tessellation core.
type ErrorKind int

const (
	InvalidIndex        ErrorKind = iota // caller referenced an entity that does not exist
	DegenerateGeometry                   // loop, curve or surface fails a validity precondition
	IntersectionFailed                   // iteration budget exhausted without a conclusive answer
	TessellationFailure                  // triangulation could not produce a valid triangle set
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidIndex:
		return "invalid index"
	case DegenerateGeometry:
		return "degenerate geometry"
	case IntersectionFailed:
		return "intersection failed"
	case TessellationFailure:
		return "tessellation failure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a value-level failure. Entity names the kind of thing that
// failed ("face", "edge", "pair") and Index its position, or -1 when the
// failure is not tied to one entity.
type Error struct {
	Kind   ErrorKind
	Entity string
	Index  int
	Reason string
}

func (e *Error) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s: %s %d: %s", e.Kind, e.Entity, e.Index, e.Reason)
}

// Is reports kind equality so that errors.Is(err, kernel.ErrInvalidIndex)
// matches any InvalidIndex error regardless of entity or reason.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Entity == "" && t.Reason == ""
}

// Sentinels for errors.Is.
var (
	ErrInvalidIndex        = &Error{Kind: InvalidIndex, Index: -1}
	ErrDegenerateGeometry  = &Error{Kind: DegenerateGeometry, Index: -1}
	ErrIntersectionFailed  = &Error{Kind: IntersectionFailed, Index: -1}
	ErrTessellationFailure = &Error{Kind: TessellationFailure, Index: -1}
)

// IndexError reports an out-of-range reference to entity i of n.
func IndexError(entity string, i, n int) *Error {
	return &Error{
		Kind:   InvalidIndex,
		Entity: entity,
		Index:  i,
		Reason: fmt.Sprintf("index out of range [0,%d)", n),
	}
}

// Degenerate reports a validity precondition failure.
func Degenerate(entity string, i int, format string, args ...any) *Error {
	return &Error{Kind: DegenerateGeometry, Entity: entity, Index: i, Reason: fmt.Sprintf(format, args...)}
}

// Failed reports an inconclusive intersection.
func Failed(entity string, i int, format string, args ...any) *Error {
	return &Error{Kind: IntersectionFailed, Entity: entity, Index: i, Reason: fmt.Sprintf(format, args...)}
}

// Tessellation reports a triangulation failure.
func Tessellation(entity string, i int, format string, args ...any) *Error {
	return &Error{Kind: TessellationFailure, Entity: entity, Index: i, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
