package bvh

import (
	"testing"

	"github.com/chazu/brepkit/pkg/nurbs"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// loop returns the closed polygon through pts as one line per side.
func loop(pts ...v2.Vec) []*nurbs.Curve {
	var out []*nurbs.Curve
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		out = append(out, nurbs.Line(v3.Vec{X: a.X, Y: a.Y}, v3.Vec{X: b.X, Y: b.Y}))
	}
	return out
}

// squareWithHole is the unit square with a CW hole [0.4, 0.6]^2.
func squareWithHole() []*nurbs.Curve {
	outer := loop(v2.Vec{}, v2.Vec{X: 1}, v2.Vec{X: 1, Y: 1}, v2.Vec{Y: 1})
	hole := loop(v2.Vec{X: 0.4, Y: 0.4}, v2.Vec{X: 0.4, Y: 0.6}, v2.Vec{X: 0.6, Y: 0.6}, v2.Vec{X: 0.6, Y: 0.4})
	return append(outer, hole...)
}

var unit = v2.Vec{X: 1, Y: 1}

// --- classification ---

func TestClassifySquareWithHole(t *testing.T) {
	tree := Build(v2.Vec{}, unit, BuildCurveTree(squareWithHole()), Options{})
	tests := []struct {
		name string
		uv   v2.Vec
		want Class
	}{
		{"face interior", v2.Vec{X: 0.2, Y: 0.21}, Untrimmed},
		{"near corner", v2.Vec{X: 0.9, Y: 0.93}, Untrimmed},
		{"inside hole", v2.Vec{X: 0.5, Y: 0.5}, Trimmed},
		{"outside domain", v2.Vec{X: 1.5, Y: 0.5}, Trimmed},
		{"on hole edge", v2.Vec{X: 0.4, Y: 0.5}, Ambiguous},
		{"on outer edge", v2.Vec{X: 0.3, Y: 0}, Ambiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tree.Classify(tt.uv); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.uv, got, tt.want)
			}
		})
	}
}

func TestClassifyCircleTrim(t *testing.T) {
	c := nurbs.Circle(v3.Vec{X: 0.5, Y: 0.5}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 0.3)
	tree := Build(v2.Vec{}, unit, BuildCurveTree([]*nurbs.Curve{c}), Options{})
	if got := tree.Classify(v2.Vec{X: 0.52, Y: 0.47}); got != Untrimmed {
		t.Errorf("centre = %v, want untrimmed", got)
	}
	if got := tree.Classify(v2.Vec{X: 0.05, Y: 0.05}); got != Trimmed {
		t.Errorf("corner = %v, want trimmed", got)
	}
	if got := tree.Classify(v2.Vec{X: 0.8, Y: 0.5}); got != Ambiguous {
		t.Errorf("on circle = %v, want ambiguous", got)
	}
}

func TestNoTrimsIsUntrimmed(t *testing.T) {
	tree := Build(v2.Vec{}, v2.Vec{X: 3, Y: 2}, BuildCurveTree(nil), Options{})
	if len(tree.Nodes) != 1 {
		t.Errorf("len(Nodes) = %d, want 1", len(tree.Nodes))
	}
	for _, uv := range []v2.Vec{{X: 0.1, Y: 0.1}, {X: 2.9, Y: 1.9}, {X: 0, Y: 0}} {
		if got := tree.Classify(uv); got != Untrimmed {
			t.Errorf("Classify(%v) = %v, want untrimmed", uv, got)
		}
	}
}

func TestDepthBounded(t *testing.T) {
	tree := Build(v2.Vec{}, unit, BuildCurveTree(squareWithHole()), Options{MaxDepth: 4})
	for _, i := range tree.Leaves() {
		if d := tree.Nodes[i].Depth; d > 4 {
			t.Fatalf("leaf %d depth = %d, want <= 4", i, d)
		}
	}
}

// --- curve tree ---

func TestQueriesSorted(t *testing.T) {
	ct := BuildCurveTree(squareWithHole())
	if n := len(ct.Leaves()); n != 8 {
		t.Fatalf("len(Leaves()) = %d, want 8", n)
	}
	above := ct.QueryAbove(v2.Vec{X: 0.5, Y: 0.1}, 0)
	if len(above) != 3 {
		t.Fatalf("QueryAbove() returned %d leaves, want 3", len(above))
	}
	for i := 1; i < len(above); i++ {
		if ct.Nodes[above[i]].Min.Y < ct.Nodes[above[i-1]].Min.Y {
			t.Errorf("QueryAbove() not sorted by v at %d", i)
		}
	}
	right := ct.QueryRight(v2.Vec{X: 0.1, Y: 0.5}, 0)
	if len(right) != 3 {
		t.Fatalf("QueryRight() returned %d leaves, want 3", len(right))
	}
	for i := 1; i < len(right); i++ {
		if ct.Nodes[right[i]].Min.X < ct.Nodes[right[i-1]].Min.X {
			t.Errorf("QueryRight() not sorted by u at %d", i)
		}
	}
}

func TestCrossings(t *testing.T) {
	ct := BuildCurveTree(squareWithHole())
	tests := []struct {
		pt   v2.Vec
		dir  Direction
		want int
	}{
		{v2.Vec{X: 0.2, Y: 0.5}, Up, 1},
		{v2.Vec{X: 0.5, Y: 0.2}, Up, 3},
		{v2.Vec{X: 0.5, Y: 0.5}, Up, 2},
		{v2.Vec{X: 0.2, Y: 0.5}, Right, 3},
		{v2.Vec{X: 0.7, Y: 0.5}, Right, 1},
		// Grazing the hole's left side through both of its corners.
		{v2.Vec{X: 0.4, Y: 0.1}, Up, 3},
	}
	for _, tt := range tests {
		if got := ct.Crossings(tt.pt, tt.dir); got != tt.want {
			t.Errorf("Crossings(%v, %d) = %d, want %d", tt.pt, tt.dir, got, tt.want)
		}
	}
}

func TestMonotonePieces(t *testing.T) {
	c := nurbs.Circle(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 1)
	ct := BuildCurveTree([]*nurbs.Curve{c})
	if len(ct.Roots) < 4 {
		t.Fatalf("circle split into %d monotone pieces, want at least 4", len(ct.Roots))
	}
	for _, r := range ct.Roots {
		n := &ct.Nodes[r]
		for _, f := range []float64{0.25, 0.5, 0.75} {
			p := c.Point(n.T0 + (n.T1-n.T0)*f)
			if p.X < n.Min.X-1e-9 || p.X > n.Max.X+1e-9 || p.Y < n.Min.Y-1e-9 || p.Y > n.Max.Y+1e-9 {
				t.Errorf("piece [%g, %g] leaves its end point box at %g", n.T0, n.T1, f)
			}
		}
	}
}

// --- segment index ---

func TestSegmentIndex(t *testing.T) {
	square := []v2.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}
	ix := NewSegmentIndex([][]v2.Vec{square}, 1e-9)
	if ix.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", ix.Len())
	}
	tests := []struct {
		p    v2.Vec
		d    float64
		want bool
	}{
		{v2.Vec{X: 0.5, Y: 0.001}, 0.01, true},
		{v2.Vec{X: 0.999, Y: 0.5}, 0.01, true},
		{v2.Vec{X: 0.5, Y: 0.5}, 0.01, false},
		{v2.Vec{X: 0.5, Y: 0.02}, 0.01, false},
	}
	for _, tt := range tests {
		if got := ix.Near(tt.p, tt.d); got != tt.want {
			t.Errorf("Near(%v, %g) = %v, want %v", tt.p, tt.d, got, tt.want)
		}
	}
	if NewSegmentIndex(nil, 0).Near(v2.Vec{}, 1) {
		t.Error("empty index reports a near segment")
	}
}
