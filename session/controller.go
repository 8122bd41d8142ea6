// Package session ties the waypoint store, geocoding, route computation,
// tracking and persistence together behind a single command surface.
//
// Commands are serialized by the controller lock and never block on the
// network while holding it. Results of asynchronous work (suggestions,
// nearby places, routes, positions) are applied only if the input that
// produced them is still current.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nwah/tripplanner/nav"
	"github.com/nwah/tripplanner/storage"
	"github.com/nwah/tripplanner/tracker"
	"github.com/nwah/tripplanner/waypoint"
)

// State is the orchestration state of a session
type State string

const (
	// StateEditing means the Route Intent cannot be routed yet
	StateEditing State = "editing"
	// StateRouteValid is passed through when the intent becomes routable,
	// just before a computation is issued
	StateRouteValid     State = "route_valid"
	StateRouteComputing State = "route_computing"
	StateRouteReady     State = "route_ready"
	StateRouteFailed    State = "route_failed"
)

var (
	ErrClosed             = errors.New("session closed")
	ErrNotReady           = errors.New("no computed route")
	ErrNoSuchSuggestion   = errors.New("no such suggestion")
	ErrNoSuchPlace        = errors.New("no such nearby place")
	ErrAlreadyTracking    = errors.New("already tracking")
	ErrLocationUnresolved = errors.New("failed to detect location")
)

// Config holds session behavior settings
type Config struct {
	Mode               string       `toml:"mode"`
	Debounce           nav.Duration `toml:"debounce"`
	MinQueryLength     int          `toml:"min_query_length"`
	NearbyRadius       int          `toml:"nearby_radius"`
	Denylist           []string     `toml:"denylist"`
	ProximityThreshold float64      `toml:"proximity_threshold"`
}

// Deps are the collaborators a controller drives. Renderer may be nil.
type Deps struct {
	Geocoder nav.Geocoder
	Places   nav.PlaceFinder
	Router   nav.Router
	Renderer nav.Renderer
	Storage  *storage.Manager
}

// Controller is the session state machine
type Controller struct {
	cfg       Config
	store     *waypoint.Store
	engine    *nav.Engine
	geocoder  nav.Geocoder
	places    nav.PlaceFinder
	storage   *storage.Manager
	tracker   *tracker.Tracker
	debouncer *nav.Debouncer
	logger    *zap.Logger

	// ctx bounds every lookup the session issues; cancelled on Close
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	closed  bool
	notices []Notice

	// suggestions belong to one input at a time
	querySeq     uint64
	latestQuery  map[string]uint64
	suggestions  []nav.Place
	suggestOwner string

	nearby   []nav.Place
	nearbyAt *waypoint.Coordinates

	tracking *trackingRun
}

// New creates a controller in the Editing state
func New(cfg Config, deps Deps, logger *zap.Logger) *Controller {
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = nav.DefaultMinQueryLength
	}
	if cfg.NearbyRadius <= 0 {
		cfg.NearbyRadius = nav.DefaultNearbyRadius
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:         cfg,
		store:       waypoint.NewStore(waypoint.Mode(cfg.Mode), logger.Named("waypoints")),
		engine:      nav.NewEngine(deps.Router, deps.Renderer, logger.Named("engine")),
		geocoder:    deps.Geocoder,
		places:      deps.Places,
		storage:     deps.Storage,
		tracker:     tracker.New(cfg.ProximityThreshold, logger.Named("tracker")),
		debouncer:   nav.NewDebouncer(cfg.Debounce.Duration),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateEditing,
		latestQuery: make(map[string]uint64),
	}
	c.engine.OnResult(c.onRouteResult)
	return c
}

// callers hold c.mu
func (c *Controller) transition(to State) {
	if c.state == to {
		return
	}
	c.logger.Debug("state", zap.String("from", string(c.state)), zap.String("to", string(to)))
	c.state = to
}

// refresh re-evaluates the Route Intent after a mutation that may change
// coordinates or the waypoint count. Callers hold c.mu.
func (c *Controller) refresh() {
	coords := c.store.Routable()
	if coords == nil {
		c.engine.Reset()
		c.tracker.ClearRoute()
		c.transition(StateEditing)
	} else if c.engine.Compute(coords) {
		c.transition(StateRouteValid)
		c.tracker.ClearRoute()
		c.transition(StateRouteComputing)
	}
	c.scheduleNearby()
}

func (c *Controller) onRouteResult(u nav.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a newer computation may have started after this one finished
	if c.closed || u.Seq != c.engine.Seq() {
		return
	}
	if u.Err != nil {
		c.tracker.ClearRoute()
		c.transition(StateRouteFailed)
		return
	}
	if route, ok := c.engine.ActiveRoute(); ok {
		c.tracker.SetRoute(route)
	}
	c.transition(StateRouteReady)
}

// lock acquires c.mu, failing once the session is closed
func (c *Controller) lock() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// State returns the current orchestration state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Waypoints returns a copy of the Route Intent
func (c *Controller) Waypoints() []waypoint.Waypoint {
	return c.store.Waypoints()
}

// AddStop inserts an empty stop before the destination
func (c *Controller) AddStop() (string, error) {
	if err := c.lock(); err != nil {
		return "", err
	}
	defer c.mu.Unlock()
	id := c.store.AddStop()
	c.refresh()
	return id, nil
}

// ShowDirections adds an empty origin if the intent has none
func (c *Controller) ShowDirections() error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.store.EnsureOrigin() {
		c.refresh()
	}
	return nil
}

// RemoveWaypoint removes a waypoint and cancels any lookup it owns
func (c *Controller) RemoveWaypoint(id string) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.store.RemoveWaypoint(id); err != nil {
		return err
	}
	c.dropSuggestions(id)
	c.refresh()
	return nil
}

// UpdateCoordinates places a waypoint, as a map drag does
func (c *Controller) UpdateCoordinates(id string, lat, lon float64) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.store.UpdateCoordinates(id, lat, lon); err != nil {
		return err
	}
	c.refresh()
	return nil
}

// Clear resets the Route Intent and every piece of derived state
func (c *Controller) Clear() error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	for _, wp := range c.store.Waypoints() {
		c.dropSuggestions(wp.ID)
	}
	c.debouncer.Stop()
	c.stopTracking()
	c.store.Clear()
	c.nearby = nil
	c.nearbyAt = nil
	c.refresh()
	return nil
}

// SelectAlternative makes routes[i] the active route for instructions and
// tracking. It never recomputes.
func (c *Controller) SelectAlternative(i int) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.state != StateRouteReady {
		c.logger.Warn("alternative selection ignored", zap.Int("index", i), zap.String("state", string(c.state)))
		return ErrNotReady
	}
	if err := c.engine.Select(i); err != nil {
		c.logger.Warn("alternative selection ignored", zap.Int("index", i), zap.Error(err))
		return err
	}
	if route, ok := c.engine.ActiveRoute(); ok {
		c.tracker.SetRoute(route)
	}
	return nil
}

// SaveRoute snapshots the current intent with its primary summary
func (c *Controller) SaveRoute() (storage.SavedRoute, error) {
	if err := c.lock(); err != nil {
		return storage.SavedRoute{}, err
	}
	defer c.mu.Unlock()

	st := c.engine.State()
	var summary *nav.Summary
	if c.state == StateRouteReady && len(st.Routes) > 0 {
		summary = &st.Routes[0].Summary
	}
	return c.storage.SaveRoute(c.store.Waypoints(), summary, nav.Alternatives(st.Routes))
}

// LoadRoute installs a saved route as the live Route Intent
func (c *Controller) LoadRoute(index int) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	saved, err := c.storage.LoadRoute(index)
	if err != nil {
		return err
	}
	for _, wp := range c.store.Waypoints() {
		c.dropSuggestions(wp.ID)
	}
	if err := c.store.Replace(saved.Waypoints); err != nil {
		return fmt.Errorf("load route %d: %w", index, err)
	}
	c.logger.Info("route loaded", zap.String("id", saved.ID))
	c.refresh()
	return nil
}

// DeleteRoute removes a saved route
func (c *Controller) DeleteRoute(index int) error {
	return c.storage.DeleteRoute(index)
}

// SavedRoutes lists saved routes, newest first
func (c *Controller) SavedRoutes() []storage.SavedRoute {
	return c.storage.Routes()
}

// DeleteHistory removes a history entry
func (c *Controller) DeleteHistory(index int) error {
	return c.storage.DeleteHistory(index)
}

// History lists search history, newest first
func (c *Controller) History() []storage.HistoryEntry {
	return c.storage.History()
}

// recordHistory is best effort; a failed write does not undo the resolution
func (c *Controller) recordHistory(label string) {
	if _, err := c.storage.RecordHistory(label); err != nil {
		c.logger.Warn("recording history failed", zap.String("query", label), zap.Error(err))
	}
}

// Notices drains the one-shot user notifications
func (c *Controller) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	return out
}

// callers hold c.mu
func (c *Controller) notify(kind NoticeKind, msg string, err error) {
	c.logger.Warn(msg, zap.String("kind", string(kind)), zap.Error(err))
	c.notices = append(c.notices, Notice{Kind: kind, Message: msg})
}

// Close cancels tracking, pending lookups and the route computation, and
// releases everything drawn on the renderer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTracking()
	c.debouncer.Stop()
	c.cancel()
	c.engine.Close()
	c.tracker.ClearRoute()
	c.logger.Debug("session closed")
}
