// Package tracker maps a live position onto the nearest instruction of the
// active route.
//
// The match is a nearest-neighbor search over instruction start points with
// a proximity cutoff, not map matching. It ignores instruction order, so a
// position between two nearby intersections can alternate between their
// steps.
//
// Tracker answers through Index. UpdateStep is the plain scan Index must
// agree with, kept for one-off lookups and as the reference in tests.
package tracker

import (
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/tidwall/rtree"
	"go.uber.org/zap"

	"github.com/nwah/tripplanner/nav"
)

// DefaultThreshold is the proximity cutoff in meters
const DefaultThreshold = 300.0

// UpdateStep scans every instruction of route and returns the one whose
// start point is closest to pos, provided it is closer than threshold
// meters. Ties go to the lower step index.
func UpdateStep(pos orb.Point, route nav.RouteResult, threshold float64) (int, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, instr := range route.Instructions {
		p, ok := route.StartPoint(instr)
		if !ok {
			continue
		}
		if d := geo.Distance(pos, p); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist >= threshold {
		return -1, false
	}
	return best, true
}

// Index answers the same query as UpdateStep from an R-tree of instruction
// start points, built once per route.
type Index struct {
	tree   rtree.RTreeG[int]
	points []orb.Point
	valid  []bool
}

// NewIndex indexes the instruction start points of route
func NewIndex(route nav.RouteResult) *Index {
	ix := &Index{
		points: make([]orb.Point, len(route.Instructions)),
		valid:  make([]bool, len(route.Instructions)),
	}
	for i, instr := range route.Instructions {
		p, ok := route.StartPoint(instr)
		if !ok {
			continue
		}
		ix.points[i] = p
		ix.valid[i] = true
		ix.tree.Insert([2]float64{p[0], p[1]}, [2]float64{p[0], p[1]}, i)
	}
	return ix
}

// Len returns the number of indexed instructions
func (ix *Index) Len() int {
	return ix.tree.Len()
}

// Nearest returns the step closest to pos within threshold meters
func (ix *Index) Nearest(pos orb.Point, threshold float64) (int, bool) {
	bound := geo.NewBoundAroundPoint(pos, threshold)

	best, bestDist := -1, math.Inf(1)
	ix.tree.Search(
		[2]float64{bound.Min[0], bound.Min[1]},
		[2]float64{bound.Max[0], bound.Max[1]},
		func(_, _ [2]float64, step int) bool {
			d := geo.Distance(pos, ix.points[step])
			if d < bestDist || (d == bestDist && step < best) {
				best, bestDist = step, d
			}
			return true
		},
	)
	if best < 0 || bestDist >= threshold {
		return -1, false
	}
	return best, true
}

// Tracker keeps the current step of the active route as positions arrive.
// Position updates never trigger a route recompute.
type Tracker struct {
	threshold float64
	logger    *zap.Logger

	mu       sync.Mutex
	index    *Index
	position *orb.Point
	step     int
}

// New creates a tracker. A non-positive threshold uses DefaultThreshold.
func New(threshold float64, logger *zap.Logger) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold, logger: logger, step: -1}
}

// SetRoute replaces the active route and re-evaluates the last position
// against it.
func (t *Tracker) SetRoute(route nav.RouteResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index = NewIndex(route)
	t.evaluate()
}

// ClearRoute drops the active route
func (t *Tracker) ClearRoute() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index = nil
	t.step = -1
}

// Update records a new position and returns the current step
func (t *Tracker) Update(pos orb.Point) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = &pos
	prev := t.step
	t.evaluate()
	if t.step != prev {
		t.logger.Debug("current step changed", zap.Int("from", prev), zap.Int("to", t.step))
	}
	return t.step, t.step >= 0
}

// Current returns the current step
func (t *Tracker) Current() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.step, t.step >= 0
}

// Position returns the last reported position
func (t *Tracker) Position() (orb.Point, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.position == nil {
		return orb.Point{}, false
	}
	return *t.position, true
}

// Reset forgets the last position
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = nil
	t.step = -1
}

// callers hold t.mu
func (t *Tracker) evaluate() {
	if t.index == nil || t.position == nil {
		t.step = -1
		return
	}
	t.step, _ = t.index.Nearest(*t.position, t.threshold)
}
