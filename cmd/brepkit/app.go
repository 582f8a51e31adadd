package main

import (
	"embed"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/chazu/brepkit/pkg/engine"
	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/kernel/sdfx"
	"github.com/chazu/brepkit/pkg/plot"
	"github.com/chazu/brepkit/pkg/ssx"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"
)

//go:embed demos/*.brepkit
var demos embed.FS

// Demos lists the names of the built-in demo scripts.
func Demos() []string {
	entries, _ := demos.ReadDir("demos")
	names := lo.Map(entries, func(e os.DirEntry, _ int) string {
		return strings.TrimSuffix(e.Name(), ".brepkit")
	})
	slices.Sort(names)
	return names
}

// Demo returns the source of a built-in demo script.
func Demo(name string) (string, error) {
	b, err := demos.ReadFile(path.Join("demos", name+".brepkit"))
	if err != nil {
		return "", fmt.Errorf("unknown demo %q (have %s)", name, strings.Join(Demos(), ", "))
	}
	return string(b), nil
}

// colorPalette is a default palette used to assign distinct colors to solids.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// MeshData is the JSON-serializable form of a tessellated solid.
type MeshData struct {
	Vertices   []float32 `json:"vertices"`
	Normals    []float32 `json:"normals"`
	Indices    []uint32  `json:"indices"`
	PartName   string    `json:"partName"`
	Color      string    `json:"color"`
	Status     string    `json:"status"`
	Watertight bool      `json:"watertight"`
}

// CurveData is one linked intersection curve.
type CurveData struct {
	Batch  string       `json:"batch"`
	Points [][3]float64 `json:"points"`
	Closed bool         `json:"closed"`
}

// EvalErrorData is a JSON-serializable eval error or warning.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result of running a script.
type EvalResult struct {
	Meshes   []MeshData      `json:"meshes"`
	Curves   []CurveData     `json:"curves"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`

	scene *engine.Scene
}

// App runs scripts and exports what they produce.
type App struct {
	engine *engine.Engine
}

// NewApp creates a new App with a fresh engine.
func NewApp() *App {
	return &App{engine: engine.NewEngine()}
}

// Evaluate runs source and collects its meshes and intersection curves.
// Slices in the result are never nil.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Meshes:   []MeshData{},
		Curves:   []CurveData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	sc, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		kernel.Logger().Error("evaluate", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}
	result.scene = sc

	for _, w := range sc.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Message: w.Solid + ": " + w.Message})
	}
	// Defined solids in definition order, then anonymous ones by name.
	names := lo.Filter(sc.Order, func(n string, _ int) bool { return sc.Meshes[n] != nil })
	anon := lo.Filter(lo.Keys(sc.Meshes), func(n string, _ int) bool { return sc.Solids[n] == nil })
	slices.Sort(anon)
	names = append(names, anon...)
	for i, n := range names {
		res := sc.Meshes[n]
		m := res.Mesh()
		result.Meshes = append(result.Meshes, MeshData{
			Vertices:   m.Vertices,
			Normals:    m.Normals,
			Indices:    m.Indices,
			PartName:   n,
			Color:      colorPalette[i%len(colorPalette)],
			Status:     res.Status().String(),
			Watertight: res.Watertight,
		})
	}
	for _, b := range sc.Batches {
		for _, l := range b.LinkedCurves() {
			result.Curves = append(result.Curves, CurveData{
				Batch:  b.ID.String(),
				Points: lo.Map(l.Points, func(p v3.Vec, _ int) [3]float64 { return kernel.Arr(p) }),
				Closed: l.Closed,
			})
		}
	}
	return result
}

// Outputs names the files Export writes. Empty paths are skipped.
type Outputs struct {
	STL string
	DXF string
	SVG string
}

// Export writes the meshes of r to an STL file, the intersection batches
// to a DXF drawing and the most cut face of the first batch to an SVG
// domain plot.
func (a *App) Export(r EvalResult, out Outputs) error {
	sc := r.scene
	if sc == nil {
		return fmt.Errorf("nothing to export")
	}
	if out.STL != "" {
		meshes := lo.Map(r.Meshes, func(m MeshData, _ int) *kernel.Mesh { return sc.Meshes[m.PartName].Mesh() })
		if err := sdfx.SaveSTL(out.STL, meshes...); err != nil {
			return err
		}
	}
	if out.DXF != "" {
		d := plot.NewDrawing()
		for _, b := range sc.Batches {
			if err := d.Batch(b); err != nil {
				return err
			}
		}
		if err := d.SaveAs(out.DXF); err != nil {
			return err
		}
	}
	if out.SVG != "" {
		if len(sc.Batches) == 0 {
			return fmt.Errorf("svg: script ran no intersection")
		}
		b := sc.Batches[0]
		cuts := lo.Filter(b.SplitFaces(), func(fc ssx.FaceCuts, _ int) bool { return fc.Solid == 0 })
		if len(cuts) == 0 {
			return fmt.Errorf("svg: intersection cut no face")
		}
		best := lo.MaxBy(cuts, func(x, y ssx.FaceCuts) bool { return len(x.Cuts) > len(y.Cuts) })
		p := plot.FaceDomain(b.A, best.Face)
		p.Cuts = best.Cuts
		f, err := os.Create(out.SVG)
		if err != nil {
			return err
		}
		if err := p.WriteSVG(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		kernel.Logger().Info("svg written", "path", out.SVG, "face", best.Face)
	}
	return nil
}
