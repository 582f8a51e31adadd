package bvh

import (
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// Class is the trim classification of a parameter space point.
type Class int

const (
	Untrimmed Class = iota // inside the face
	Trimmed                // cut away by a trim loop
	Ambiguous              // on or too near a trim to say
)

func (c Class) String() string {
	switch c {
	case Untrimmed:
		return "untrimmed"
	case Trimmed:
		return "trimmed"
	default:
		return "ambiguous"
	}
}

// BBNode is a cell of the face's UV rectangle.
type BBNode struct {
	Min, Max  v2.Vec
	Trimmed   bool
	CheckTrim bool
	Depth     int
	Children  [2]int // -1 on leaves
}

// Leaf reports whether n has no children.
func (n *BBNode) Leaf() bool { return n.Children[0] < 0 }

// Contains reports whether uv lies in the cell.
func (n *BBNode) Contains(uv v2.Vec) bool {
	return uv.X >= n.Min.X && uv.X <= n.Max.X && uv.Y >= n.Min.Y && uv.Y <= n.Max.Y
}

// Center returns the cell centre.
func (n *BBNode) Center() v2.Vec {
	return v2.Vec{X: (n.Min.X + n.Max.X) / 2, Y: (n.Min.Y + n.Max.Y) / 2}
}

// Options bounds the cell subdivision. Zero fields take defaults.
type Options struct {
	MaxDepth int     // default 8
	MinCell  float64 // smallest cell edge; default 1/256 of the domain diagonal
	Tol      float64 // near-trim distance; default 1e-9 of the domain diagonal
}

func (o Options) withDefaults(diag float64) Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 8
	}
	if o.MinCell <= 0 {
		o.MinCell = diag / 256
	}
	if o.Tol <= 0 {
		o.Tol = 1e-9 * math.Max(diag, 1)
	}
	return o
}

// SurfaceTree is the BBNode arena for one face.
type SurfaceTree struct {
	Nodes  []BBNode
	Curves *CurveTree
	opt    Options
}

// Build bisects the rectangle [min, max] against the curve tree. Cells
// meeting a trim leaf box are check-trim; the others are trimmed or
// untrimmed by the parity of their centre.
func Build(min, max v2.Vec, ct *CurveTree, opt Options) *SurfaceTree {
	diag := max.Sub(min).Length()
	t := &SurfaceTree{Curves: ct, opt: opt.withDefaults(diag)}
	t.build(min, max, 0)
	return t
}

func (t *SurfaceTree) build(min, max v2.Vec, depth int) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, BBNode{Min: min, Max: max, Depth: depth, Children: [2]int{-1, -1}})
	if t.Curves == nil || t.Curves.Empty() {
		return idx
	}
	if !t.touchesTrim(min, max) {
		n := &t.Nodes[idx]
		inside, _ := t.Curves.Inside(n.Center())
		n.Trimmed = !inside
		return idx
	}
	w, h := max.X-min.X, max.Y-min.Y
	if depth >= t.opt.MaxDepth || math.Max(w, h) <= t.opt.MinCell {
		t.Nodes[idx].CheckTrim = true
		return idx
	}
	// Split the long axis.
	lmax, rmin := max, min
	if w >= h {
		mid := min.X + w/2
		lmax.X, rmin.X = mid, mid
	} else {
		mid := min.Y + h/2
		lmax.Y, rmin.Y = mid, mid
	}
	left := t.build(min, lmax, depth+1)
	right := t.build(rmin, max, depth+1)
	t.Nodes[idx].Children = [2]int{left, right}
	return idx
}

func (t *SurfaceTree) touchesTrim(min, max v2.Vec) bool {
	tol := t.opt.Tol
	for _, i := range t.Curves.leaves {
		n := &t.Curves.Nodes[i]
		if n.Max.X+tol >= min.X && n.Min.X-tol <= max.X && n.Max.Y+tol >= min.Y && n.Min.Y-tol <= max.Y {
			return true
		}
	}
	return false
}

// Leaf returns the leaf cell containing uv, or -1 outside the domain.
func (t *SurfaceTree) Leaf(uv v2.Vec) int {
	i := 0
	if !t.Nodes[0].Contains(uv) {
		return -1
	}
	for !t.Nodes[i].Leaf() {
		l, r := t.Nodes[i].Children[0], t.Nodes[i].Children[1]
		if t.Nodes[l].Contains(uv) {
			i = l
		} else {
			i = r
		}
	}
	return i
}

// Classify returns the trim class of uv. Points outside the domain are
// trimmed; a tree built without trims calls everything untrimmed.
func (t *SurfaceTree) Classify(uv v2.Vec) Class {
	i := t.Leaf(uv)
	if i < 0 {
		return Trimmed
	}
	n := &t.Nodes[i]
	if !n.CheckTrim {
		if n.Trimmed {
			return Trimmed
		}
		return Untrimmed
	}
	if t.Curves.Near(uv, t.opt.Tol) {
		return Ambiguous
	}
	inside, ok := t.Curves.Inside(uv)
	switch {
	case !ok:
		return Ambiguous
	case inside:
		return Untrimmed
	default:
		return Trimmed
	}
}

// Leaves returns the leaf cells.
func (t *SurfaceTree) Leaves() []int {
	var out []int
	for i := range t.Nodes {
		if t.Nodes[i].Leaf() {
			out = append(out, i)
		}
	}
	return out
}

// Domain returns the root rectangle.
func (t *SurfaceTree) Domain() (min, max v2.Vec) {
	return t.Nodes[0].Min, t.Nodes[0].Max
}
