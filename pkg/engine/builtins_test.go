package engine

import (
	"math"
	"testing"

	"github.com/chazu/brepkit/pkg/brep"
	zygo "github.com/glycerine/zygomys/zygo"
)

// run evaluates source with the builtins installed and returns the value
// of its last expression.
func run(t *testing.T, source string) (zygo.Sexp, *Scene) {
	t.Helper()
	sc := NewScene()
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, sc)
	if err := env.LoadString(preprocessSource(source)); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	v, err := env.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return v, sc
}

func intValue(t *testing.T, v zygo.Sexp) int {
	t.Helper()
	n, err := toInt(v)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	return n
}

// --- preprocessing ---

func TestPreprocessSource(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"simple keyword", `(box :min v)`, `(box "__kw_min" v)`},
		{"multiple keywords", `(cylinder :radius 1 :height 2)`, `(cylinder "__kw_radius" 1 "__kw_height" 2)`},
		{"keyword in string preserved", `"thing with :keyword inside"`, `"thing with :keyword inside"`},
		{"escaped quote in string", `"a \" :b" :c`, `"a \" :b" "__kw_c"`},
		{"backtick string preserved", "`save-stl :x`", "`save-stl :x`"},
		{"assignment operator preserved", `(def x := 10)`, `(def x := 10)`},
		{"kebab-case identifier", `(ssx-get b :stage :ssx-events)`, `(ssx_get b "__kw_stage" "__kw_ssx-events")`},
		{"minus operator preserved", `(- 10 5)`, `(- 10 5)`},
		{"minus before digit preserved", `(def y x-1)`, `(def y x-1)`},
		{"comment converted to // style", `;; comment with :keyword`, `// comment with :keyword`},
		{"single semicolon comment", "; simple comment\n(box)", "// simple comment\n(box)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preprocessSource(tt.input); got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// --- argument parsing ---

func TestParseArgs(t *testing.T) {
	args := []zygo.Sexp{
		&zygo.SexpStr{S: kwPrefix + "radius"}, &zygo.SexpInt{Val: 2},
		&zygo.SexpStr{S: "plain"},
		&zygo.SexpStr{S: kwPrefix + "flag"},
	}
	pa := parseArgs(args)
	if len(pa.positional) != 1 {
		t.Fatalf("positional = %d, want 1", len(pa.positional))
	}
	if f, err := toFloat64(pa.kw["radius"]); err != nil || f != 2 {
		t.Errorf("radius = %v, %v, want 2", f, err)
	}
	if pa.kw["flag"] != zygo.SexpNull {
		t.Errorf("trailing keyword = %v, want null", pa.kw["flag"])
	}
}

// --- solids ---

func TestDefsolidBox(t *testing.T) {
	_, sc := run(t, `(defsolid "b" (box :min (vec3 1 2 3) :max (vec3 2 4 6)))`)
	s := sc.Lookup("b")
	if s == nil {
		t.Fatal("no solid named b")
	}
	if len(s.Faces) != 6 {
		t.Errorf("faces = %d, want 6", len(s.Faces))
	}
	min, max := s.BoundingBox()
	if min != [3]float64{1, 2, 3} || max != [3]float64{2, 4, 6} {
		t.Errorf("BoundingBox() = %v, %v", min, max)
	}
	if brep.HasErrors(brep.Validate(s)) {
		t.Errorf("Validate() = %v", brep.Validate(s))
	}
}

func TestBuiltinSolids(t *testing.T) {
	tests := []struct {
		name   string
		source string
		faces  int
	}{
		{"box", `(box)`, 6},
		{"prism", `(prism :outline (list (vec2 0 0) (vec2 2 0) (vec2 2 1) (vec2 0 1)) :height 3)`, 6},
		{"prism with hole", `(prism :outline (list (vec2 0 0) (vec2 4 0) (vec2 4 4) (vec2 0 4))
			:holes (list (list (vec2 1 1) (vec2 1 3) (vec2 3 3) (vec2 3 1))) :height 1)`, 10},
		{"patch", `(patch (vec3 0 0 0) (vec3 1 0 0) (vec3 1 1 1) (vec3 0 1 0))`, 1},
		{"translated", `(translate (box) (vec3 5 0 0))`, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := run(t, tt.source)
			s, err := toSolid(v)
			if err != nil {
				t.Fatal(err)
			}
			if len(s.solid.Faces) != tt.faces {
				t.Errorf("faces = %d, want %d", len(s.solid.Faces), tt.faces)
			}
		})
	}
}

func TestCylinderBounds(t *testing.T) {
	v, _ := run(t, `(cylinder :center (vec3 1 1 0) :radius 0.5 :height 2)`)
	s, err := toSolid(v)
	if err != nil {
		t.Fatal(err)
	}
	min, max := s.solid.BoundingBox()
	if math.Abs(max[2]-min[2]-2) > 1e-9 {
		t.Errorf("height = %g, want 2", max[2]-min[2])
	}
}

// --- tolerance and tessellation ---

func TestTolerance(t *testing.T) {
	_, sc := run(t, `(tolerance :rel 0.05 :abs 0.1 :dist 0.001)`)
	if sc.Tessellation.Rel != 0.05 || sc.Tessellation.Abs != 0.1 || sc.Base.Dist != 0.001 {
		t.Errorf("tolerances = %+v %+v", sc.Tessellation, sc.Base)
	}
}

func TestTessellateRecordsMesh(t *testing.T) {
	v, sc := run(t, `(defsolid "b" (box)) (tessellate (solid "b"))`)
	n := intValue(t, v)
	res := sc.Meshes["b"]
	if res == nil {
		t.Fatal("no mesh recorded for b")
	}
	if n != len(res.Triangles) || n < 12 {
		t.Errorf("tessellate = %d, mesh has %d triangles", n, len(res.Triangles))
	}
	if !res.Watertight {
		t.Error("box mesh is not watertight")
	}
}

func TestTessellateAnonymous(t *testing.T) {
	_, sc := run(t, `(tessellate (box)) (tessellate (box :max (vec3 3 1 1)))`)
	for _, name := range []string{"solid-1", "solid-2"} {
		if sc.Meshes[name] == nil {
			t.Errorf("no mesh for %s", name)
		}
	}
}

// --- intersection ---

const boxesSource = `
(defsolid "a" (box))
(defsolid "b" (box :min (vec3 0.5 0.2 0.2) :max (vec3 1.5 0.8 0.8)))
(def x (ssx (solid "a") (solid "b")))
`

func TestSSXLoops(t *testing.T) {
	v, sc := run(t, boxesSource+`(ssx-loops x)`)
	if n := intValue(t, v); n != 1 {
		t.Errorf("ssx-loops = %d, want 1", n)
	}
	if len(sc.Batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(sc.Batches))
	}
	if got := len(sc.Batches[0].Pairs); got != 4 {
		t.Errorf("pairs = %d, want 4", got)
	}
}

func TestSSXCountAndGet(t *testing.T) {
	v, _ := run(t, boxesSource+`(ssx-count x :stage :ssx-events :pair 0)`)
	if n := intValue(t, v); n != 1 {
		t.Errorf("ssx-count = %d, want 1", n)
	}
	v, _ = run(t, boxesSource+`(ssx-get x :stage :ssx-events :pair 0 :event 0)`)
	pts, err := sexpListToSlice(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) < 2 {
		t.Fatalf("ssx-get returned %d points, want a curve", len(pts))
	}
	for i, p := range pts {
		q, err := toVec3(p)
		if err != nil {
			t.Fatalf("point %d: %v", i, err)
		}
		if math.Abs(q.X-1) > 1e-6 {
			t.Errorf("point %d = %v, want x = 1", i, q)
		}
	}
}

func TestSSXGetErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"unknown stage", `(ssx-get x :stage :bogus)`},
		{"missing stage", `(ssx-get x :pair 0)`},
		{"pair out of range", `(ssx-get x :stage :ssx-events :pair 99)`},
		{"not a batch", `(ssx-get 1 :stage :done)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, evalErrs, err := NewEngine().Evaluate(boxesSource + tt.source)
			if err != nil {
				t.Fatalf("fatal error: %v", err)
			}
			if len(evalErrs) == 0 {
				t.Error("expected an eval error")
			}
		})
	}
}
