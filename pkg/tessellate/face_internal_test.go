package tessellate

import (
	"testing"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/bvh"
	"github.com/chazu/brepkit/pkg/domain"
	"github.com/chazu/brepkit/pkg/tolerance"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestCheckTrimLeavesSampledFiner(t *testing.T) {
	s, err := brep.NewCylinder(v3.Vec{}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	_, base := tolerance.Defaults()
	tess := tolerance.Tessellation{Norm: 0.01}
	m, err := domain.New(s, tess, base)
	if err != nil {
		t.Fatal(err)
	}
	rec := tolerance.ForSurface(s.Diagonal(), tess, base)
	none := bvh.NewSegmentIndex(nil, 0)

	tests := []struct {
		name   string
		face   int
		sample bool
	}{
		{"curved side", 0, true},
		{"flat cap", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := Tree(m, tt.face)
			pts := checkTrimPoints(m.Surface(tt.face), tree, rec, none)
			if got := len(pts) > 0; got != tt.sample {
				t.Fatalf("checkTrimPoints() gave %d points, want samples = %t", len(pts), tt.sample)
			}
			for _, uv := range pts {
				if i := tree.Leaf(uv); i < 0 || !tree.Nodes[i].CheckTrim {
					t.Errorf("sample %v lies outside every check-trim leaf", uv)
				}
			}
		})
	}
}

func TestFlatLeafNotRefined(t *testing.T) {
	s := brep.NewBox(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	tess, base := tolerance.Defaults()
	m, err := domain.New(s, tess, base)
	if err != nil {
		t.Fatal(err)
	}
	in := &interior{sf: m.Surface(0), tol: tolerance.ForSurface(s.Diagonal(), tess, base)}
	w, h := m.SurfaceDomain(0)
	in.refine(v2.Vec{}, v2.Vec{X: w, Y: h})
	if len(in.pts) != 0 {
		t.Errorf("refine() on a plane emitted %d points", len(in.pts))
	}
}
