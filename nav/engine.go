package nav

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/nwah/tripplanner/waypoint"
)

// ErrNoSuchAlternative is returned when selecting an alternative that does
// not exist in the current result set
var ErrNoSuchAlternative = errors.New("no such alternative")

// Renderer is the map surface a computed route is drawn on
type Renderer interface {
	Render(routes []RouteResult, active int)
	Clear()
}

// Update is delivered to the engine listener when a computation finishes.
// Err is a *RoutingFailure when Routes is empty.
type Update struct {
	Seq    uint64
	Coords []waypoint.Coordinates
	Routes []RouteResult
	Err    error
}

// EngineState is a snapshot of the engine's current input and result
type EngineState struct {
	Seq     uint64
	Coords  []waypoint.Coordinates
	Routes  []RouteResult
	Active  int
	Pending bool
	Err     error
}

// Engine drives a Router for the current Route Intent. A single engine is
// kept for the life of a session and updated in place: identical input does
// not issue a new request, and changed input supersedes whatever was shown
// or in flight.
type Engine struct {
	router   Router
	renderer Renderer
	logger   *zap.Logger

	mu       sync.Mutex
	listener func(Update)
	seq      uint64
	coords   []waypoint.Coordinates
	routes   []RouteResult
	active   int
	err      error
	pending  bool
	cancel   context.CancelFunc
	closed   bool
	requests int
}

// NewEngine creates an engine. renderer may be nil.
func NewEngine(router Router, renderer Renderer, logger *zap.Logger) *Engine {
	return &Engine{
		router:   router,
		renderer: renderer,
		logger:   logger,
	}
}

// OnResult registers the function called after every accepted result.
// It is called without the engine lock held.
func (e *Engine) OnResult(fn func(Update)) {
	e.mu.Lock()
	e.listener = fn
	e.mu.Unlock()
}

// Compute requests routes through coords. It returns false when no request
// was issued because a result for the same coordinates is already active or
// in flight.
func (e *Engine) Compute(coords []waypoint.Coordinates) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	if (e.pending || e.routes != nil) && waypoint.SameCoordinates(coords, e.coords) {
		e.logger.Debug("compute skipped, input unchanged", zap.Uint64("seq", e.seq))
		return false
	}

	e.supersede()
	e.coords = append([]waypoint.Coordinates(nil), coords...)
	e.pending = true
	e.requests++

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	seq := e.seq
	input := append([]waypoint.Coordinates(nil), coords...)

	e.logger.Debug("compute", zap.Uint64("seq", seq), zap.Int("waypoints", len(coords)))
	go e.run(ctx, seq, input)
	return true
}

// supersede invalidates the displayed result and any in-flight request.
// Callers hold e.mu.
func (e *Engine) supersede() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.seq++
	e.coords = nil
	e.routes = nil
	e.active = 0
	e.err = nil
	e.pending = false
	if e.renderer != nil {
		e.renderer.Clear()
	}
}

func (e *Engine) run(ctx context.Context, seq uint64, coords []waypoint.Coordinates) {
	routes, err := e.router.Route(ctx, coords)
	if err == nil && len(routes) == 0 {
		err = &RoutingFailure{Kind: FailureNoRoute, Message: "no route found"}
	}
	if err != nil && !errors.Is(err, ErrRoutingFailure) {
		err = &RoutingFailure{Kind: FailureNetwork, Message: "routing request failed", Err: err}
	}

	e.mu.Lock()
	if seq != e.seq {
		e.mu.Unlock()
		e.logger.Debug("discarding superseded route result", zap.Uint64("seq", seq))
		return
	}
	e.pending = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if err != nil {
		e.err = err
		e.logger.Warn("route computation failed", zap.Uint64("seq", seq), zap.Error(err))
	} else {
		e.routes = routes
		e.active = 0
		if e.renderer != nil {
			e.renderer.Render(routes, 0)
		}
	}
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener(Update{Seq: seq, Coords: coords, Routes: routes, Err: err})
	}
}

// Reset drops the current input and result, as when the Route Intent stops
// being routable.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.supersede()
}

// Select makes routes[i] the active alternative. It never recomputes.
func (e *Engine) Select(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.routes) {
		return ErrNoSuchAlternative
	}
	e.active = i
	if e.renderer != nil {
		e.renderer.Render(e.routes, i)
	}
	return nil
}

// Seq returns the sequence number of the current input
func (e *Engine) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Requests returns how many routing requests have been issued
func (e *Engine) Requests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests
}

// State returns a snapshot of the engine
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineState{
		Seq:     e.seq,
		Coords:  append([]waypoint.Coordinates(nil), e.coords...),
		Routes:  e.routes,
		Active:  e.active,
		Pending: e.pending,
		Err:     e.err,
	}
}

// ActiveRoute returns the route currently selected for instructions
func (e *Engine) ActiveRoute() (RouteResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active >= len(e.routes) {
		return RouteResult{}, false
	}
	return e.routes[e.active], true
}

// Close cancels any in-flight request and removes everything the engine
// drew on the renderer. The engine accepts no further input.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.supersede()
	e.closed = true
	e.listener = nil
}
