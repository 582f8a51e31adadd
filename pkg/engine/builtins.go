package engine

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/nurbs"
	"github.com/chazu/brepkit/pkg/ssx"
	"github.com/chazu/brepkit/pkg/tessellate"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/samber/lo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

type sexpVec2 struct{ vec v2.Vec }

func (v *sexpVec2) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec2 %g %g)", v.vec.X, v.vec.Y)
}
func (v *sexpVec2) Type() *zygo.RegisteredType { return nil }

type sexpVec3 struct{ vec v3.Vec }

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpSolid carries a solid between builtins. name is empty until the
// solid is bound with defsolid.
type sexpSolid struct {
	name  string
	solid *brep.Solid
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	if s.name != "" {
		return fmt.Sprintf("(solid %q)", s.name)
	}
	return fmt.Sprintf("(solid :faces %d)", len(s.solid.Faces))
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

type sexpBatch struct{ batch *ssx.Batch }

func (b *sexpBatch) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(ssx %s :pairs %d)", b.batch.ID, len(b.batch.Pairs))
}
func (b *sexpBatch) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string and returns the
// keyword name without its prefix.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments. A
// keyword at the end of the list is a flag with a null value.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		switch {
		case !ok:
			result.positional = append(result.positional, args[i])
		case i+1 < len(args):
			result.kw[name] = args[i+1]
			i++
		default:
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString accepts both preprocessed keywords and plain strings.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, err := toString(s)
	if err != nil {
		return "", fmt.Errorf("expected keyword or string: %w", err)
	}
	return strings.TrimPrefix(str, kwPrefix), nil
}

func toVec2(s zygo.Sexp) (v2.Vec, error) {
	if v, ok := s.(*sexpVec2); ok {
		return v.vec, nil
	}
	return v2.Vec{}, fmt.Errorf("expected vec2, got %T (%s)", s, s.SexpString(nil))
}

func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

func toSolid(s zygo.Sexp) (*sexpSolid, error) {
	if v, ok := s.(*sexpSolid); ok {
		return v, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

func toBatch(s zygo.Sexp) (*ssx.Batch, error) {
	if v, ok := s.(*sexpBatch); ok {
		return v.batch, nil
	}
	return nil, fmt.Errorf("expected ssx batch, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

func toPolygon(s zygo.Sexp) ([]v2.Vec, error) {
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	out := make([]v2.Vec, len(items))
	for i, item := range items {
		if out[i], err = toVec2(item); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}
	return out, nil
}

// floatKW reads an optional numeric keyword into dst.
func floatKW(pa kwArgs, key string, dst *float64) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func vecKW(pa kwArgs, key string, dst *v3.Vec) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = vec
	return nil
}

// stageKeywords names the batch stages for ssx-get and ssx-count.
var stageKeywords = map[string]ssx.Stage{
	"initial":    ssx.Initial,
	"ssx-pair":   ssx.SSXPairSelected,
	"ssx-events": ssx.SSXEventsComputed,
	"iso-pair":   ssx.IsoCSXPairSelected,
	"iso-events": ssx.IsoCSXEventsComputed,
	"clipped":    ssx.FaceCurvesClipped,
	"linked":     ssx.LinkedCurvesBuilt,
	"split":      ssx.FacesSplit,
	"done":       ssx.Done,
}

// toRequest reads (batch :stage kw :pair i :sub j :event k).
func toRequest(args []zygo.Sexp) (*ssx.Batch, ssx.Request, error) {
	pa := parseArgs(args)
	var req ssx.Request
	if len(pa.positional) < 1 {
		return nil, req, fmt.Errorf("requires an ssx batch")
	}
	b, err := toBatch(pa.positional[0])
	if err != nil {
		return nil, req, err
	}
	v, ok := pa.kw["stage"]
	if !ok {
		return nil, req, fmt.Errorf("requires :stage")
	}
	name, err := toKeywordString(v)
	if err != nil {
		return nil, req, fmt.Errorf("stage: %w", err)
	}
	if req.Stage, ok = stageKeywords[name]; !ok {
		return nil, req, fmt.Errorf("unknown stage %q", name)
	}
	for key, dst := range map[string]*int{"pair": &req.Pair, "sub": &req.Sub, "event": &req.Event} {
		if v, ok := pa.kw[key]; ok {
			if *dst, err = toInt(v); err != nil {
				return nil, req, fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return b, req, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the brepkit builtins into env. They add to sc
// as the script runs. Source must go through preprocessSource first so
// keywords and hyphenated names are recognized.
func registerBuiltins(env *zygo.Zlisp, sc *Scene) {
	anon := 0
	nameOf := func(s *sexpSolid) string {
		if s.name == "" {
			anon++
			s.name = fmt.Sprintf("solid-%d", anon)
		}
		return s.name
	}

	// (vec2 u v) and (vec3 x y z)
	env.AddFunction("vec2", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("vec2 requires exactly 2 arguments, got %d", len(args))
		}
		var c [2]float64
		for i := range c {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec2: %w", err)
			}
			c[i] = f
		}
		return &sexpVec2{vec: v2.Vec{X: c[0], Y: c[1]}}, nil
	})
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i := range c {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %w", err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// (box :min (vec3 0 0 0) :max (vec3 1 1 1))
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		min, max := v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1}
		if err := vecKW(pa, "min", &min); err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		if err := vecKW(pa, "max", &max); err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		if max.X <= min.X || max.Y <= min.Y || max.Z <= min.Z {
			return zygo.SexpNull, fmt.Errorf("box: max must exceed min on every axis")
		}
		return &sexpSolid{solid: brep.NewBox(min, max)}, nil
	})

	// (prism :outline (list (vec2 0 0) ...) :holes (list (list ...)) :height 1)
	env.AddFunction("prism", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		v, ok := pa.kw["outline"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("prism requires :outline")
		}
		outline, err := toPolygon(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prism: outline: %w", err)
		}
		var holes [][]v2.Vec
		if v, ok := pa.kw["holes"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("prism: holes: %w", err)
			}
			for i, item := range items {
				h, err := toPolygon(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("prism: hole %d: %w", i, err)
				}
				holes = append(holes, h)
			}
		}
		height := 1.0
		if err := floatKW(pa, "height", &height); err != nil {
			return zygo.SexpNull, fmt.Errorf("prism: %w", err)
		}
		s, err := brep.NewPrism(outline, holes, height)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prism: %w", err)
		}
		return &sexpSolid{solid: s}, nil
	})

	// (cylinder :center (vec3 0 0 0) :radius 1 :height 2)
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var center v3.Vec
		radius, height := 1.0, 1.0
		if err := vecKW(pa, "center", &center); err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		if err := floatKW(pa, "radius", &radius); err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		if err := floatKW(pa, "height", &height); err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		s, err := brep.NewCylinder(center, radius, height)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		return &sexpSolid{solid: s}, nil
	})

	// (patch p00 p10 p11 p01) is a bilinear single-face solid.
	env.AddFunction("patch", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 4 {
			return zygo.SexpNull, fmt.Errorf("patch requires 4 corners, got %d", len(args))
		}
		var c [4]v3.Vec
		for i := range c {
			p, err := toVec3(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("patch: corner %d: %w", i, err)
			}
			c[i] = p
		}
		return &sexpSolid{solid: brep.NewPatch(nurbs.Bilinear(c[0], c[1], c[2], c[3]))}, nil
	})

	// (translate solid (vec3 dx dy dz))
	env.AddFunction("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("translate requires a solid and an offset")
		}
		s, err := toSolid(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		d, err := toVec3(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: offset: %w", err)
		}
		return &sexpSolid{solid: s.solid.Translated(d)}, nil
	})

	// (defsolid "name" expr) and (solid "name")
	env.AddFunction("defsolid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("defsolid requires a name and a solid")
		}
		n, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defsolid: name: %w", err)
		}
		s, err := toSolid(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defsolid: %w", err)
		}
		s.solid.Name = n
		sc.Define(n, s.solid)
		return &sexpSolid{name: n, solid: s.solid}, nil
	})
	env.AddFunction("solid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("solid requires a name argument")
		}
		n, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("solid: name: %w", err)
		}
		s := sc.Lookup(n)
		if s == nil {
			return zygo.SexpNull, fmt.Errorf("solid: no solid named %q", n)
		}
		return &sexpSolid{name: n, solid: s}, nil
	})

	// (tolerance :abs 0 :rel 0.01 :norm 0 :dist 0.0005), :norm in radians.
	env.AddFunction("tolerance", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		t, b := sc.Tessellation, sc.Base
		for key, dst := range map[string]*float64{"abs": &t.Abs, "rel": &t.Rel, "norm": &t.Norm, "dist": &b.Dist} {
			if err := floatKW(pa, key, dst); err != nil {
				return zygo.SexpNull, fmt.Errorf("tolerance: %w", err)
			}
			if *dst < 0 {
				return zygo.SexpNull, fmt.Errorf("tolerance: %s must not be negative", key)
			}
		}
		sc.Tessellation, sc.Base = t, b
		return zygo.SexpNull, nil
	})

	// (tessellate solid) records the mesh and returns its triangle count.
	env.AddFunction("tessellate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("tessellate requires a solid")
		}
		s, err := toSolid(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("tessellate: %w", err)
		}
		res, err := tessellate.Solid(context.Background(), s.solid, tessellate.Options{
			Tessellation: sc.Tessellation,
			Base:         sc.Base,
		})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("tessellate: %w", err)
		}
		n := nameOf(s)
		for _, f := range res.Failures {
			sc.warn(n, "tessellate: %s", f)
		}
		sc.Meshes[n] = res
		return &zygo.SexpInt{Val: int64(len(res.Triangles))}, nil
	})

	// (ssx a b) intersects two solids and returns the finished batch.
	env.AddFunction("ssx", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("ssx requires two solids")
		}
		a, err := toSolid(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx: %w", err)
		}
		b, err := toSolid(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx: %w", err)
		}
		batch, err := ssx.NewBatch(a.solid, b.solid, ssx.Options{Tol: sc.Base.Dist})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx: %w", err)
		}
		if err := batch.Run(context.Background(), runtime.NumCPU()); err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx: %w", err)
		}
		for _, f := range batch.Failures() {
			sc.warn(nameOf(a)+"/"+nameOf(b), "ssx: %s", f)
		}
		sc.Batches = append(sc.Batches, batch)
		return &sexpBatch{batch: batch}, nil
	})

	// (ssx-get batch :stage :ssx-events :pair 0 :event 0) returns the
	// artifact's points; ssx-count returns the size of its level.
	env.AddFunction("ssx_get", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		b, req, err := toRequest(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx-get: %w", err)
		}
		art, _, err := b.Get(req)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx-get: %w", err)
		}
		return zygo.MakeList(lo.Map(art.Points, func(p v3.Vec, _ int) zygo.Sexp {
			return &sexpVec3{vec: p}
		})), nil
	})
	env.AddFunction("ssx_count", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		b, req, err := toRequest(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx-count: %w", err)
		}
		art, _, err := b.Get(req)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx-count: %w", err)
		}
		return &zygo.SexpInt{Val: int64(art.Count)}, nil
	})

	// (ssx-loops batch) counts the closed intersection loops.
	env.AddFunction("ssx_loops", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("ssx-loops requires an ssx batch")
		}
		b, err := toBatch(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ssx-loops: %w", err)
		}
		n := lo.CountBy(b.LinkedCurves(), func(l ssx.Linked) bool { return l.Closed })
		return &zygo.SexpInt{Val: int64(n)}, nil
	})
}
