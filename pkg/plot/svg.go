package plot

import (
	"fmt"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"
	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/bvh"
	"github.com/chazu/brepkit/pkg/nurbs"
	v2 "github.com/deadsy/sdfx/vec/v2"
)

const (
	defaultSize  = 512
	trimSegments = 64
)

// Domain is a plot of one face's parameter domain: the classification
// cells of its tree, its trim curves and optional cut polylines such as
// the split curves of an intersection batch.
type Domain struct {
	Tree  *bvh.SurfaceTree
	Trims []*nurbs.Curve
	Cuts  [][]v2.Vec
	Size  int // pixels along the longer side; default 512
}

// FaceDomain returns the plot of face f of s over its surface's own
// parameter domain, the domain intersection results are reported in.
func FaceDomain(s *brep.Solid, f int) Domain {
	var trims []*nurbs.Curve
	for _, l := range s.Faces[f].Loops {
		for _, t := range s.Loops[l].Trims {
			trims = append(trims, s.TrimCurve(t))
		}
	}
	sf := s.SurfaceOf(f)
	u0, u1 := sf.DomainU()
	v0, v1 := sf.DomainV()
	tree := bvh.Build(v2.Vec{X: u0, Y: v0}, v2.Vec{X: u1, Y: v1}, bvh.BuildCurveTree(trims), bvh.Options{})
	return Domain{Tree: tree, Trims: trims}
}

// errWriter keeps the first write error, since svgo does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

// WriteSVG renders the plot as an SVG document.
func (p Domain) WriteSVG(w io.Writer) error {
	if p.Tree == nil || len(p.Tree.Nodes) == 0 {
		return fmt.Errorf("plot: domain without a tree")
	}
	size := p.Size
	if size <= 0 {
		size = defaultSize
	}
	min, max := p.Tree.Domain()
	span := math.Max(max.X-min.X, max.Y-min.Y)
	if span <= 0 {
		return fmt.Errorf("plot: empty domain")
	}
	scale := float64(size) / span
	width := int(math.Ceil((max.X - min.X) * scale))
	height := int(math.Ceil((max.Y - min.Y) * scale))
	// v grows upwards in the plot.
	px := func(uv v2.Vec) (int, int) {
		return int(math.Round((uv.X - min.X) * scale)), int(math.Round((max.Y - uv.Y) * scale))
	}

	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Start(width, height)
	canvas.Gid("cells")
	for _, i := range p.Tree.Leaves() {
		n := &p.Tree.Nodes[i]
		x0, y1 := px(n.Min)
		x1, y0 := px(n.Max)
		canvas.Rect(x0, y0, x1-x0, y1-y0, "fill:"+cellColor(n)+";stroke:#555;stroke-width:0.5")
	}
	canvas.Gend()

	polyline := func(pts []v2.Vec, style string) {
		xs, ys := make([]int, len(pts)), make([]int, len(pts))
		for i, q := range pts {
			xs[i], ys[i] = px(q)
		}
		canvas.Polyline(xs, ys, style)
	}
	canvas.Gid("trims")
	for _, c := range p.Trims {
		t0, t1 := c.Domain()
		pts := make([]v2.Vec, trimSegments+1)
		for i := range pts {
			q := c.Point(t0 + (t1-t0)*float64(i)/trimSegments)
			pts[i] = v2.Vec{X: q.X, Y: q.Y}
		}
		polyline(pts, "fill:none;stroke:black;stroke-width:2")
	}
	canvas.Gend()
	if len(p.Cuts) > 0 {
		canvas.Gid("cuts")
		for _, c := range p.Cuts {
			polyline(c, "fill:none;stroke:red;stroke-width:2")
		}
		canvas.Gend()
	}
	canvas.End()
	if ew.err != nil {
		return fmt.Errorf("plot: %w", ew.err)
	}
	return nil
}

func cellColor(n *bvh.BBNode) string {
	switch {
	case n.Trimmed:
		return "#ddd"
	case n.CheckTrim:
		return "#f6c26b"
	default:
		return "#9fd89f"
	}
}
