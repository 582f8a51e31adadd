package plot_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/bvh"
	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/plot"
	"github.com/chazu/brepkit/pkg/ssx"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// --- dxf ---

func TestLayerName(t *testing.T) {
	tests := []struct {
		kind ssx.Kind
		want string
	}{
		{ssx.TransverseCurve, "transverse-curve"},
		{ssx.OverlapCurve, "overlap-curve"},
		{ssx.TangentPoint, "tangent-point"},
	}
	for _, tt := range tests {
		if got := plot.LayerName(tt.kind); got != tt.want {
			t.Errorf("LayerName(%v) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestDrawingBatch(t *testing.T) {
	a := brep.NewBox(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	b := brep.NewBox(v3.Vec{X: 0.5, Y: 0.2, Z: 0.2}, v3.Vec{X: 1.5, Y: 0.8, Z: 0.8})
	batch, err := ssx.NewBatch(a, b, ssx.Options{})
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	d := plot.NewDrawing()
	if err := d.Batch(batch); err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if d.Entities() == 0 {
		t.Fatal("drawing has no entities")
	}
	path := filepath.Join(t.TempDir(), "ssx.dxf")
	if err := d.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"LINE", plot.LayerName(ssx.TransverseCurve), plot.LinkedLayer} {
		if !strings.Contains(string(data), want) {
			t.Errorf("dxf output missing %q", want)
		}
	}
}

func TestDrawingPointEvent(t *testing.T) {
	d := plot.NewDrawing()
	ev := []ssx.Event{{Kind: ssx.TangentPoint, Point: v3.Vec{X: 1, Y: 2, Z: 3}}}
	if err := d.Events(ev); err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if d.Entities() != 1 {
		t.Errorf("Entities() = %d, want 1", d.Entities())
	}
}

// --- svg ---

func circleDomain() plot.Domain {
	trim := nurbs.Circle(v3.Vec{X: 0.5, Y: 0.5}, v3.Vec{X: 1}, v3.Vec{Y: 1}, 0.3)
	tree := bvh.Build(v2.Vec{}, v2.Vec{X: 1, Y: 1}, bvh.BuildCurveTree([]*nurbs.Curve{trim}), bvh.Options{})
	return plot.Domain{Tree: tree, Trims: []*nurbs.Curve{trim}, Size: 256}
}

func TestDomainWriteSVG(t *testing.T) {
	p := circleDomain()
	p.Cuts = [][]v2.Vec{{{X: 0, Y: 0}, {X: 1, Y: 1}}}
	var buf bytes.Buffer
	if err := p.WriteSVG(&buf); err != nil {
		t.Fatalf("WriteSVG() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<svg", "<rect", "<polyline", `id="cuts"`, "</svg>"} {
		if !strings.Contains(out, want) {
			t.Errorf("svg output missing %q", want)
		}
	}
	if got, want := strings.Count(out, "<rect"), len(p.Tree.Leaves()); got != want {
		t.Errorf("svg has %d cells, want %d", got, want)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDomainWriteSVGErrors(t *testing.T) {
	if err := (plot.Domain{}).WriteSVG(&bytes.Buffer{}); err == nil {
		t.Error("WriteSVG() without a tree succeeded")
	}
	if err := circleDomain().WriteSVG(failWriter{}); err == nil {
		t.Error("WriteSVG() to a failing writer succeeded")
	}
}

func TestFaceDomainWithCuts(t *testing.T) {
	a := brep.NewBox(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	b := brep.NewBox(v3.Vec{X: 0.5, Y: 0.2, Z: 0.2}, v3.Vec{X: 1.5, Y: 0.8, Z: 0.8})
	batch, err := ssx.NewBatch(a, b, ssx.Options{})
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	for _, fc := range batch.SplitFaces() {
		if fc.Solid != 0 {
			continue
		}
		p := plot.FaceDomain(a, fc.Face)
		if len(p.Trims) != 4 {
			t.Errorf("face %d: %d trims, want 4", fc.Face, len(p.Trims))
		}
		p.Cuts = fc.Cuts
		var buf bytes.Buffer
		if err := p.WriteSVG(&buf); err != nil {
			t.Fatalf("WriteSVG() error = %v", err)
		}
		if !strings.Contains(buf.String(), `id="cuts"`) {
			t.Errorf("face %d: svg has no cuts", fc.Face)
		}
		return
	}
	t.Fatal("no cut face on solid A")
}
