package ssx

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/brepkit/pkg/brep"
	"github.com/chazu/brepkit/pkg/bvh"
	"github.com/chazu/brepkit/pkg/kernel"
	"github.com/chazu/brepkit/pkg/nurbs"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Stage is a step of the batch pipeline, in the order Next walks them.
type Stage int

const (
	Initial Stage = iota
	SSXPairSelected
	SSXEventsComputed
	IsoCSXPairSelected
	IsoCSXEventsComputed
	FaceCurvesClipped
	LinkedCurvesBuilt
	FacesSplit
	Done
)

var stageNames = [...]string{
	"initial", "ssx pair selected", "ssx events computed", "iso csx pair selected",
	"iso csx events computed", "face curves clipped", "linked curves built", "faces split", "done",
}

func (s Stage) String() string {
	if s < Initial || s > Done {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// IsoSubs is the number of isocurve subproblems per pair: the four
// boundaries of A's face against B, then B's four against A.
const IsoSubs = 8

// Pair is a candidate face pair whose boxes overlap.
type Pair struct {
	FaceA, FaceB int
}

// Request addresses one result. Sub is -1 outside the isocurve stages.
type Request struct {
	Stage Stage
	Pair  int
	Sub   int
	Event int
}

// Cursor is a position in the stage walk.
type Cursor = Request

// Piece is the part of an event inside the trim regions of both faces.
type Piece struct {
	Pair    int
	Event   int
	Kind    Kind
	Samples []Sample
}

// Points returns the 3D samples of the piece.
func (p *Piece) Points() []v3.Vec {
	return lo.Map(p.Samples, func(s Sample, _ int) v3.Vec { return s.P })
}

// PieceRef names a piece by pair and index.
type PieceRef struct {
	Pair, Index int
}

// Linked is a chain of clipped pieces from one or more pairs.
type Linked struct {
	Pieces []PieceRef
	Points []v3.Vec
	Closed bool
}

// FaceCuts lists the parameter space cutting curves of one face. Solid is
// 0 for A and 1 for B.
type FaceCuts struct {
	Solid int
	Face  int
	Cuts  [][]v2.Vec
}

// Artifact is the result addressed by a Request. Only the fields of its
// stage are set. Count is the number of results at the request's level.
type Artifact struct {
	Request  Request
	Pair     Pair
	Iso      Isocurve
	Event    *Event
	IsoEvent *IsoEvent
	Piece    *Piece
	Linked   *Linked
	Cuts     *FaceCuts
	Points   []v3.Vec
	Count    int
}

// PairFailure records a pair or isocurve subproblem that failed. Sub is -1
// for the surface pair itself.
type PairFailure struct {
	Pair int
	Sub  int
	Err  error
}

func (f PairFailure) String() string {
	if f.Sub < 0 {
		return fmt.Sprintf("pair %d: %v", f.Pair, f.Err)
	}
	return fmt.Sprintf("pair %d sub %d: %v", f.Pair, f.Sub, f.Err)
}

type ssxResult struct {
	once   sync.Once
	events []Event
	err    error
}

type isoResult struct {
	once   sync.Once
	events []IsoEvent
	err    error
}

type clipResult struct {
	once   sync.Once
	pieces []Piece
}

type faceTree struct {
	once sync.Once
	tree *bvh.SurfaceTree
}

// Batch stages the intersection of two solids face pair by face pair.
// Every stage is computed on first use and memoized, so results do not
// depend on the order they are requested in. A Batch is safe for
// concurrent use.
type Batch struct {
	ID    uuid.UUID
	A, B  *brep.Solid
	Pairs []Pair

	opt   Options
	ssx   []ssxResult
	iso   [][IsoSubs]isoResult
	clip  []clipResult
	trees [2][]faceTree

	linkOnce  sync.Once
	linked    []Linked
	splitOnce sync.Once
	split     []FaceCuts

	mu       sync.Mutex
	failures []PairFailure
}

// face is a spatial index entry for a face box.
type face struct {
	index int
	rect  rtreego.Rect
}

func (f *face) Bounds() rtreego.Rect { return f.rect }

func faceRect(s *brep.Solid, f int, pad float64) (rtreego.Rect, error) {
	lo, hi := s.FaceBounds(f)
	return rtreego.NewRect(
		rtreego.Point{lo[0] - pad, lo[1] - pad, lo[2] - pad},
		[]float64{hi[0] - lo[0] + 2*pad, hi[1] - lo[1] + 2*pad, hi[2] - lo[2] + 2*pad},
	)
}

// NewBatch prepares the intersection of a and b. Candidate pairs come
// from an R-tree over b's face boxes.
func NewBatch(a, b *brep.Solid, opt Options) (*Batch, error) {
	if a == nil || b == nil {
		return nil, kernel.Degenerate("solid", -1, "nil solid")
	}
	for i, s := range []*brep.Solid{a, b} {
		for _, v := range brep.Validate(s) {
			if v.Severity == brep.SeverityError {
				return nil, fmt.Errorf("ssx: solid %d: %w", i, v.Err())
			}
		}
	}
	opt = opt.withDefaults()
	bt := &Batch{ID: uuid.New(), A: a, B: b, opt: opt}

	var objs []rtreego.Spatial
	for f := range b.Faces {
		r, err := faceRect(b, f, opt.Tol)
		if err != nil {
			return nil, kernel.Degenerate("face", f, "box: %v", err)
		}
		objs = append(objs, &face{index: f, rect: r})
	}
	if len(objs) > 0 {
		tree := rtreego.NewTree(3, 4, 16, objs...)
		for f := range a.Faces {
			r, err := faceRect(a, f, opt.Tol)
			if err != nil {
				return nil, kernel.Degenerate("face", f, "box: %v", err)
			}
			hits := tree.SearchIntersect(r)
			idx := lo.Map(hits, func(s rtreego.Spatial, _ int) int { return s.(*face).index })
			sort.Ints(idx)
			for _, g := range idx {
				bt.Pairs = append(bt.Pairs, Pair{FaceA: f, FaceB: g})
			}
		}
	}
	bt.ssx = make([]ssxResult, len(bt.Pairs))
	bt.iso = make([][IsoSubs]isoResult, len(bt.Pairs))
	bt.clip = make([]clipResult, len(bt.Pairs))
	bt.trees[0] = make([]faceTree, len(a.Faces))
	bt.trees[1] = make([]faceTree, len(b.Faces))
	kernel.Logger().Info("ssx batch", "batch", bt.ID, "a", a.Name, "b", b.Name, "pairs", len(bt.Pairs))
	return bt, nil
}

// fail records a failed pair or subproblem and returns the error as an
// IntersectionFailed.
func (b *Batch) fail(pair, sub int, err error) error {
	if k, ok := kernel.KindOf(err); !ok || k != kernel.IntersectionFailed {
		err = kernel.Failed("face pair", pair, "%v", err)
	}
	kernel.Logger().Warn("ssx pair failed", "batch", b.ID, "pair", pair, "sub", sub, "err", err)
	b.mu.Lock()
	b.failures = append(b.failures, PairFailure{Pair: pair, Sub: sub, Err: err})
	b.mu.Unlock()
	return err
}

// Failures returns the failed pairs and subproblems, ordered by pair and
// sub.
func (b *Batch) Failures() []PairFailure {
	b.mu.Lock()
	out := append([]PairFailure(nil), b.failures...)
	b.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pair != out[j].Pair {
			return out[i].Pair < out[j].Pair
		}
		return out[i].Sub < out[j].Sub
	})
	return out
}

func (b *Batch) checkPair(p int) error {
	if p < 0 || p >= len(b.Pairs) {
		return kernel.IndexError("pair", p, len(b.Pairs))
	}
	return nil
}

func (b *Batch) surfaces(p int) (*nurbs.Surface, *nurbs.Surface) {
	pr := b.Pairs[p]
	return b.A.SurfaceOf(pr.FaceA), b.B.SurfaceOf(pr.FaceB)
}

// SSX returns the surface intersection events of pair p. A failed pair
// returns its IntersectionFailed error on every call.
func (b *Batch) SSX(p int) ([]Event, error) {
	if err := b.checkPair(p); err != nil {
		return nil, err
	}
	r := &b.ssx[p]
	r.once.Do(func() {
		sa, sb := b.surfaces(p)
		ev, err := Intersect(sa, sb, b.opt)
		if err != nil {
			r.err = b.fail(p, -1, err)
			return
		}
		r.events = ev
	})
	return r.events, r.err
}

// SubIsocurve returns the surface the isocurve of sub lies on, the
// surface it is intersected with, and the isocurve itself.
func (b *Batch) SubIsocurve(p, sub int) (on, other *nurbs.Surface, iso Isocurve) {
	sa, sb := b.surfaces(p)
	on, other = sa, sb
	if sub >= 4 {
		on, other = sb, sa
	}
	u0, u1 := on.DomainU()
	v0, v1 := on.DomainV()
	switch sub % 4 {
	case 0:
		iso = Isocurve{Value: v0}
	case 1:
		iso = Isocurve{AlongV: true, Value: u1}
	case 2:
		iso = Isocurve{Value: v1}
	default:
		iso = Isocurve{AlongV: true, Value: u0}
	}
	return on, other, iso
}

// IsoCSX returns the events of boundary isocurve sub of pair p.
func (b *Batch) IsoCSX(p, sub int) ([]IsoEvent, error) {
	if err := b.checkPair(p); err != nil {
		return nil, err
	}
	if sub < 0 || sub >= IsoSubs {
		return nil, kernel.IndexError("sub", sub, IsoSubs)
	}
	r := &b.iso[p][sub]
	r.once.Do(func() {
		on, other, iso := b.SubIsocurve(p, sub)
		ev, err := IntersectIsocurve(on, other, iso, b.opt)
		if err != nil {
			r.err = b.fail(p, sub, err)
			return
		}
		r.events = ev
	})
	return r.events, r.err
}

// tree returns the trim tree of face f of solid which (0 for A) over the
// face's own surface domain.
func (b *Batch) tree(which, f int) *bvh.SurfaceTree {
	s := b.A
	if which == 1 {
		s = b.B
	}
	ft := &b.trees[which][f]
	ft.once.Do(func() {
		var trims []*nurbs.Curve
		for _, l := range s.Faces[f].Loops {
			for _, t := range s.Loops[l].Trims {
				trims = append(trims, s.TrimCurve(t))
			}
		}
		sf := s.SurfaceOf(f)
		u0, u1 := sf.DomainU()
		v0, v1 := sf.DomainV()
		ft.tree = bvh.Build(v2.Vec{X: u0, Y: v0}, v2.Vec{X: u1, Y: v1}, bvh.BuildCurveTree(trims), bvh.Options{})
	})
	return ft.tree
}

// ClipFaceCurves clips the events of pair p to the trimmed regions of both
// faces. Points on a trim boundary count as inside.
func (b *Batch) ClipFaceCurves(p int) ([]Piece, error) {
	events, err := b.SSX(p)
	if err != nil {
		return nil, err
	}
	r := &b.clip[p]
	r.once.Do(func() {
		ta, tb := b.tree(0, b.Pairs[p].FaceA), b.tree(1, b.Pairs[p].FaceB)
		inside := func(s Sample) bool {
			return ta.Classify(s.A) != bvh.Trimmed && tb.Classify(s.B) != bvh.Trimmed
		}
		for i := range events {
			r.pieces = append(r.pieces, clip(p, i, &events[i], inside)...)
		}
	})
	return r.pieces, nil
}

// clip splits the samples of e into runs inside both faces. Run ends are
// bisected along the sample segments.
func clip(pair, idx int, e *Event, inside func(Sample) bool) []Piece {
	ss := e.Samples
	if !e.Kind.IsCurve() {
		if len(ss) > 0 && inside(ss[0]) {
			return []Piece{{Pair: pair, Event: idx, Kind: e.Kind, Samples: ss}}
		}
		return nil
	}
	lerp := func(a, b Sample, t float64) Sample {
		return Sample{
			P: a.P.Add(b.P.Sub(a.P).MulScalar(t)),
			A: a.A.Add(b.A.Sub(a.A).MulScalar(t)),
			B: a.B.Add(b.B.Sub(a.B).MulScalar(t)),
		}
	}
	edge := func(in, out Sample) Sample {
		lo, hi := 0.0, 1.0
		for k := 0; k < 30; k++ {
			mid := (lo + hi) / 2
			if inside(lerp(in, out, mid)) {
				lo = mid
			} else {
				hi = mid
			}
		}
		return lerp(in, out, lo)
	}
	var out []Piece
	var cur []Sample
	prevIn := false
	for i, s := range ss {
		in := inside(s)
		switch {
		case in && !prevIn:
			if i > 0 {
				cur = append(cur, edge(s, ss[i-1]))
			}
			cur = append(cur, s)
		case in:
			cur = append(cur, s)
		case prevIn:
			cur = append(cur, edge(ss[i-1], s))
			out = append(out, Piece{Pair: pair, Event: idx, Kind: e.Kind, Samples: cur})
			cur = nil
		}
		prevIn = in
	}
	if len(cur) > 1 {
		out = append(out, Piece{Pair: pair, Event: idx, Kind: e.Kind, Samples: cur})
	}
	return out
}

// LinkedCurves joins clipped curve pieces of all pairs whose ends meet
// within ten times the tolerance.
func (b *Batch) LinkedCurves() []Linked {
	b.linkOnce.Do(func() {
		type item struct {
			ref PieceRef
			pts []v3.Vec
		}
		var items []item
		for p := range b.Pairs {
			pieces, _ := b.ClipFaceCurves(p)
			for i := range pieces {
				if pieces[i].Kind.IsCurve() {
					items = append(items, item{PieceRef{p, i}, pieces[i].Points()})
				}
			}
		}
		tol := 10 * b.opt.Tol
		used := make([]bool, len(items))
		for i := range items {
			if used[i] {
				continue
			}
			used[i] = true
			l := Linked{Pieces: []PieceRef{items[i].ref}, Points: append([]v3.Vec(nil), items[i].pts...)}
			for {
				end := l.Points[len(l.Points)-1]
				if len(l.Points) > 2 && end.Sub(l.Points[0]).Length() <= tol {
					l.Closed = true
					break
				}
				next, reverse := -1, false
				for j := range items {
					if used[j] {
						continue
					}
					pts := items[j].pts
					if pts[0].Sub(end).Length() <= tol {
						next = j
						break
					}
					if pts[len(pts)-1].Sub(end).Length() <= tol {
						next, reverse = j, true
						break
					}
				}
				if next < 0 {
					break
				}
				used[next] = true
				pts := items[next].pts
				if reverse {
					rev := make([]v3.Vec, len(pts))
					for k, q := range pts {
						rev[len(pts)-1-k] = q
					}
					pts = rev
				}
				l.Pieces = append(l.Pieces, items[next].ref)
				l.Points = append(l.Points, pts[1:]...)
			}
			b.linked = append(b.linked, l)
		}
	})
	return b.linked
}

// SplitFaces collects, per face, the parameter space curves that cut it.
func (b *Batch) SplitFaces() []FaceCuts {
	b.splitOnce.Do(func() {
		cuts := map[[2]int][][]v2.Vec{}
		for p, pr := range b.Pairs {
			pieces, _ := b.ClipFaceCurves(p)
			for i := range pieces {
				if !pieces[i].Kind.IsCurve() {
					continue
				}
				ua := lo.Map(pieces[i].Samples, func(s Sample, _ int) v2.Vec { return s.A })
				ub := lo.Map(pieces[i].Samples, func(s Sample, _ int) v2.Vec { return s.B })
				cuts[[2]int{0, pr.FaceA}] = append(cuts[[2]int{0, pr.FaceA}], ua)
				cuts[[2]int{1, pr.FaceB}] = append(cuts[[2]int{1, pr.FaceB}], ub)
			}
		}
		keys := lo.Keys(cuts)
		sort.Slice(keys, func(i, j int) bool {
			if keys[i][0] != keys[j][0] {
				return keys[i][0] < keys[j][0]
			}
			return keys[i][1] < keys[j][1]
		})
		for _, k := range keys {
			b.split = append(b.split, FaceCuts{Solid: k[0], Face: k[1], Cuts: cuts[k]})
		}
	})
	return b.split
}

// Get returns the result addressed by req and whether more results follow
// at the same level. Pair and sub indices are checked before anything is
// computed.
func (b *Batch) Get(req Request) (Artifact, bool, error) {
	art := Artifact{Request: req}
	switch req.Stage {
	case SSXPairSelected, SSXEventsComputed, FaceCurvesClipped:
		if err := b.checkPair(req.Pair); err != nil {
			return art, false, err
		}
		art.Pair = b.Pairs[req.Pair]
	case IsoCSXPairSelected, IsoCSXEventsComputed:
		if err := b.checkPair(req.Pair); err != nil {
			return art, false, err
		}
		if req.Sub < 0 || req.Sub >= IsoSubs {
			return art, false, kernel.IndexError("sub", req.Sub, IsoSubs)
		}
		art.Pair = b.Pairs[req.Pair]
		_, _, art.Iso = b.SubIsocurve(req.Pair, req.Sub)
	case Initial, LinkedCurvesBuilt, FacesSplit, Done:
	default:
		return art, false, kernel.IndexError("stage", int(req.Stage), int(Done)+1)
	}

	event := func(n int) error {
		art.Count = n
		if req.Event < 0 || req.Event >= n {
			return kernel.IndexError("event", req.Event, n)
		}
		return nil
	}
	switch req.Stage {
	case Initial, SSXPairSelected, IsoCSXPairSelected, Done:
		if err := event(1); err != nil {
			return art, false, err
		}
	case SSXEventsComputed:
		ev, err := b.SSX(req.Pair)
		if err != nil {
			return art, false, err
		}
		if err := event(len(ev)); err != nil {
			return art, false, err
		}
		art.Event = &ev[req.Event]
		art.Points = art.Event.Points()
	case IsoCSXEventsComputed:
		ev, err := b.IsoCSX(req.Pair, req.Sub)
		if err != nil {
			return art, false, err
		}
		if err := event(len(ev)); err != nil {
			return art, false, err
		}
		art.IsoEvent = &ev[req.Event]
		art.Points = []v3.Vec{art.IsoEvent.Point}
		if art.IsoEvent.Kind == OverlapCurve {
			art.Points = append(art.Points, art.IsoEvent.End)
		}
	case FaceCurvesClipped:
		pieces, err := b.ClipFaceCurves(req.Pair)
		if err != nil {
			return art, false, err
		}
		if err := event(len(pieces)); err != nil {
			return art, false, err
		}
		art.Piece = &pieces[req.Event]
		art.Points = art.Piece.Points()
	case LinkedCurvesBuilt:
		linked := b.LinkedCurves()
		if err := event(len(linked)); err != nil {
			return art, false, err
		}
		art.Linked = &linked[req.Event]
		art.Points = art.Linked.Points
	case FacesSplit:
		split := b.SplitFaces()
		if err := event(len(split)); err != nil {
			return art, false, err
		}
		art.Cuts = &split[req.Event]
	}
	return art, req.Event+1 < art.Count, nil
}

// Next returns the cursor after c in stage order: for each pair its SSX
// events, then each isocurve subproblem and its events; then the clipped
// pieces of every pair, the linked curves, the face cuts and Done. Levels
// without results are skipped. It reports false after Done.
func (b *Batch) Next(c Cursor) (Cursor, bool) {
	switch c.Stage {
	case Initial:
		return b.pairStart(0), true
	case SSXPairSelected:
		if ev, _ := b.SSX(c.Pair); len(ev) > 0 {
			return Cursor{Stage: SSXEventsComputed, Pair: c.Pair, Sub: -1}, true
		}
		return b.isoStart(c.Pair, 0), true
	case SSXEventsComputed:
		if ev, _ := b.SSX(c.Pair); c.Event+1 < len(ev) {
			c.Event++
			return c, true
		}
		return b.isoStart(c.Pair, 0), true
	case IsoCSXPairSelected:
		if ev, _ := b.IsoCSX(c.Pair, c.Sub); len(ev) > 0 {
			return Cursor{Stage: IsoCSXEventsComputed, Pair: c.Pair, Sub: c.Sub}, true
		}
		return b.isoStart(c.Pair, c.Sub+1), true
	case IsoCSXEventsComputed:
		if ev, _ := b.IsoCSX(c.Pair, c.Sub); c.Event+1 < len(ev) {
			c.Event++
			return c, true
		}
		return b.isoStart(c.Pair, c.Sub+1), true
	case FaceCurvesClipped:
		if pieces, _ := b.ClipFaceCurves(c.Pair); c.Event+1 < len(pieces) {
			c.Event++
			return c, true
		}
		return b.clipStart(c.Pair + 1), true
	case LinkedCurvesBuilt:
		if c.Event+1 < len(b.LinkedCurves()) {
			c.Event++
			return c, true
		}
		return b.splitStart(), true
	case FacesSplit:
		if c.Event+1 < len(b.SplitFaces()) {
			c.Event++
			return c, true
		}
		return Cursor{Stage: Done, Pair: -1, Sub: -1}, true
	default:
		return c, false
	}
}

func (b *Batch) pairStart(p int) Cursor {
	if p < len(b.Pairs) {
		return Cursor{Stage: SSXPairSelected, Pair: p, Sub: -1}
	}
	return b.clipStart(0)
}

func (b *Batch) isoStart(p, sub int) Cursor {
	if sub < IsoSubs {
		return Cursor{Stage: IsoCSXPairSelected, Pair: p, Sub: sub}
	}
	return b.pairStart(p + 1)
}

func (b *Batch) clipStart(p int) Cursor {
	for ; p < len(b.Pairs); p++ {
		if pieces, _ := b.ClipFaceCurves(p); len(pieces) > 0 {
			return Cursor{Stage: FaceCurvesClipped, Pair: p, Sub: -1}
		}
	}
	if len(b.LinkedCurves()) > 0 {
		return Cursor{Stage: LinkedCurvesBuilt, Pair: -1, Sub: -1}
	}
	return b.splitStart()
}

func (b *Batch) splitStart() Cursor {
	if len(b.SplitFaces()) > 0 {
		return Cursor{Stage: FacesSplit, Pair: -1, Sub: -1}
	}
	return Cursor{Stage: Done, Pair: -1, Sub: -1}
}

// Run computes every stage, fanning pairs out to at most workers
// goroutines. Pairs not started before ctx is done are recorded as
// failures and the returned error is an IntersectionFailed.
func (b *Batch) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for p := range b.Pairs {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				b.fail(p, -1, kernel.Failed("face pair", p, "stopped: %v", err))
				return
			}
			b.ClipFaceCurves(p)
			for sub := 0; sub < IsoSubs; sub++ {
				b.IsoCSX(p, sub)
			}
		}(p)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return kernel.Failed("batch", -1, "stopped: %v", err)
	}
	b.LinkedCurves()
	b.SplitFaces()
	kernel.Logger().Info("ssx batch done", "batch", b.ID, "pairs", len(b.Pairs),
		"linked", len(b.linked), "failures", len(b.Failures()))
	return nil
}
