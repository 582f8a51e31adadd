// Package plot renders intersection and domain results for inspection:
// intersection curves as DXF drawings and face parameter domains as SVG.
package plot

import (
	"fmt"
	"strings"

	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/ssx"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/color"
	"github.com/yofu/dxf/drawing"
)

// kindColors picks a layer colour per event kind.
var kindColors = map[ssx.Kind]color.ColorNumber{
	ssx.TransverseCurve: color.Red,
	ssx.TangentCurve:    color.Yellow,
	ssx.OverlapCurve:    color.Green,
	ssx.TransversePoint: color.Cyan,
	ssx.TangentPoint:    color.Magenta,
}

// LinkedLayer holds the curves added with Linked.
const LinkedLayer = "linked"

// LayerName returns the DXF layer events of kind k are drawn on.
func LayerName(k ssx.Kind) string {
	return strings.ReplaceAll(k.String(), " ", "-")
}

// Drawing accumulates intersection results in a DXF drawing.
type Drawing struct {
	d      *drawing.Drawing
	layers map[string]bool
	count  int
}

// NewDrawing returns an empty drawing.
func NewDrawing() *Drawing {
	return &Drawing{d: dxf.NewDrawing(), layers: make(map[string]bool)}
}

// Entities returns the number of entities added so far.
func (x *Drawing) Entities() int { return x.count }

func (x *Drawing) layer(name string, c color.ColorNumber) error {
	if !x.layers[name] {
		if _, err := x.d.AddLayer(name, c, dxf.DefaultLineType, false); err != nil {
			return fmt.Errorf("plot: layer %s: %w", name, err)
		}
		x.layers[name] = true
	}
	if err := x.d.ChangeLayer(name); err != nil {
		return fmt.Errorf("plot: layer %s: %w", name, err)
	}
	return nil
}

func (x *Drawing) polyline(pts []v3.Vec) error {
	if len(pts) == 1 {
		if _, err := x.d.Point(pts[0].X, pts[0].Y, pts[0].Z); err != nil {
			return fmt.Errorf("plot: point: %w", err)
		}
		x.count++
		return nil
	}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		if _, err := x.d.Line(a.X, a.Y, a.Z, b.X, b.Y, b.Z); err != nil {
			return fmt.Errorf("plot: line: %w", err)
		}
		x.count++
	}
	return nil
}

// Events draws each event on the layer of its kind. Curves become line
// strips through their samples and point events become points.
func (x *Drawing) Events(events []ssx.Event) error {
	for _, e := range events {
		if err := x.layer(LayerName(e.Kind), kindColors[e.Kind]); err != nil {
			return err
		}
		if err := x.polyline(e.Points()); err != nil {
			return err
		}
	}
	return nil
}

// Linked draws chained intersection curves on LinkedLayer.
func (x *Drawing) Linked(curves []ssx.Linked) error {
	if len(curves) == 0 {
		return nil
	}
	if err := x.layer(LinkedLayer, color.Blue); err != nil {
		return err
	}
	for _, c := range curves {
		if err := x.polyline(c.Points); err != nil {
			return err
		}
	}
	return nil
}

// Batch draws every pair's events and the linked curves of b.
func (x *Drawing) Batch(b *ssx.Batch) error {
	for p := range b.Pairs {
		ev, err := b.SSX(p)
		if err != nil {
			continue
		}
		if err := x.Events(ev); err != nil {
			return err
		}
	}
	return x.Linked(b.LinkedCurves())
}

// SaveAs writes the drawing to path.
func (x *Drawing) SaveAs(path string) error {
	if err := x.d.SaveAs(path); err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	kernel.Logger().Info("dxf written", "path", path, "entities", x.count)
	return nil
}
