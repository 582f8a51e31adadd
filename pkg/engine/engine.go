// Package engine runs brepkit scripts. Scripts are Lisp evaluated by
// zygomys in a sandbox; builtins construct solids, set tolerances and run
// tessellation and surface intersection, collecting everything in a Scene.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/ssx"
	"github.com/chazu/brepkit/pkg/tessellate"
	"github.com/chazu/brepkit/pkg/tolerance"
	"github.com/google/uuid"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning is a problem that did not stop evaluation, such as a face
// that failed to tessellate.
type EvalWarning struct {
	Solid   string
	Message string
}

// Scene is everything a script produced. Solids are keyed by name and
// Order lists the names in definition order.
type Scene struct {
	ID           uuid.UUID
	Solids       map[string]*brep.Solid
	Order        []string
	Tessellation tolerance.Tessellation
	Base         tolerance.Base
	Meshes       map[string]*tessellate.Result
	Batches      []*ssx.Batch
	Warnings     []EvalWarning
}

// NewScene returns an empty scene with the default tolerances.
func NewScene() *Scene {
	t, b := tolerance.Defaults()
	return &Scene{
		ID:           uuid.New(),
		Solids:       make(map[string]*brep.Solid),
		Tessellation: t,
		Base:         b,
		Meshes:       make(map[string]*tessellate.Result),
	}
}

// Define adds or replaces the solid called name.
func (s *Scene) Define(name string, solid *brep.Solid) {
	if _, ok := s.Solids[name]; !ok {
		s.Order = append(s.Order, name)
	}
	s.Solids[name] = solid
}

// Lookup returns the solid called name, or nil.
func (s *Scene) Lookup(name string) *brep.Solid {
	return s.Solids[name]
}

func (s *Scene) warn(solid, format string, args ...any) {
	w := EvalWarning{Solid: solid, Message: fmt.Sprintf(format, args...)}
	s.Warnings = append(s.Warnings, w)
	kernel.Logger().Warn("script", "scene", s.ID, "solid", solid, "msg", w.Message)
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use;
// each call to Evaluate creates a fresh sandboxed environment.
type Engine struct {
	// Timeout bounds each evaluation; zero means EvalTimeout.
	Timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs source and returns the scene it built.
//
// Return semantics:
//   - On success: returns scene + nil errors + nil error
//   - On parse/eval failure: returns nil scene + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Scene, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		sc, evalErrs, err := e.evaluate(source)
		ch <- evalResult{scene: sc, errors: evalErrs, err: err}
	}()

	limit := e.Timeout
	if limit <= 0 {
		limit = EvalTimeout
	}
	return waitWithTimeout(ch, gen, &e.mu, &e.generation, limit)
}

func (e *Engine) evaluate(source string) (*Scene, []EvalError, error) {
	sc := NewScene()
	if strings.TrimSpace(source) == "" {
		return sc, nil, nil
	}

	// Sandbox mode keeps scripts away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, sc)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	kernel.Logger().Info("script evaluated", "scene", sc.ID, "solids", len(sc.Order),
		"meshes", len(sc.Meshes), "batches", len(sc.Batches))
	return sc, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError
// values, keeping the line number when the message has one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
