package waypoint

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Mode selects the initial waypoint configuration.
type Mode string

const (
	// ModeDestinationFirst starts with a single destination; the origin is
	// added on demand.
	ModeDestinationFirst Mode = "destination-first"
	// ModeBothEndpoints starts with an empty origin and destination.
	ModeBothEndpoints Mode = "both"
)

// DefaultMode is used when no mode is configured
const DefaultMode = ModeDestinationFirst

// IsValid checks if the mode is known
func (m Mode) IsValid() bool {
	switch m {
	case ModeDestinationFirst, ModeBothEndpoints:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound           = errors.New("waypoint not found")
	ErrInvalidCoordinates = errors.New("coordinates must be finite numbers")
	ErrEndpointRequired   = errors.New("endpoint cannot be removed")
	ErrInvalidIntent      = errors.New("invalid route intent")
)

// Store holds the ordered Route Intent. It is the single mutable source of
// truth for waypoints; every accessor returns copies.
type Store struct {
	mu        sync.RWMutex
	mode      Mode
	waypoints []Waypoint
	counter   int
	version   uint64
	logger    *zap.Logger
}

// NewStore creates a store in its initial configuration.
func NewStore(mode Mode, logger *zap.Logger) *Store {
	if !mode.IsValid() {
		mode = DefaultMode
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{mode: mode, logger: logger}
	s.waypoints = s.initial()
	return s
}

func (s *Store) initial() []Waypoint {
	if s.mode == ModeBothEndpoints {
		return []Waypoint{{ID: OriginID}, {ID: DestinationID}}
	}
	return []Waypoint{{ID: DestinationID}}
}

// Mode returns the configured mode.
func (s *Store) Mode() Mode {
	return s.mode
}

// Version increases on every successful mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Waypoints returns a copy of the Route Intent.
func (s *Store) Waypoints() []Waypoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Clone(s.waypoints)
}

// Get returns a copy of the waypoint with the given id.
func (s *Store) Get(id string) (Waypoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.waypoints[i].clone(), true
	}
	return Waypoint{}, false
}

func (s *Store) indexOf(id string) int {
	for i, wp := range s.waypoints {
		if wp.ID == id {
			return i
		}
	}
	return -1
}

// AddStop inserts an empty stop immediately before the destination and
// returns its id.
func (s *Store) AddStop() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counter < len(s.waypoints) {
		s.counter = len(s.waypoints)
	}
	id := fmt.Sprintf("wp%d", s.counter)
	for s.indexOf(id) >= 0 {
		s.counter++
		id = fmt.Sprintf("wp%d", s.counter)
	}
	s.counter++

	stop := Waypoint{ID: id}
	at := s.indexOf(DestinationID)
	if at < 0 {
		s.waypoints = append(s.waypoints, stop)
	} else {
		s.waypoints = append(s.waypoints[:at], append([]Waypoint{stop}, s.waypoints[at:]...)...)
	}
	s.version++
	return id
}

// EnsureOrigin prepends an empty origin if none exists.
func (s *Store) EnsureOrigin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(OriginID) >= 0 {
		return false
	}
	s.waypoints = append([]Waypoint{{ID: OriginID}}, s.waypoints...)
	s.version++
	return true
}

// RemoveWaypoint removes a waypoint by id. When no destination would remain,
// the store resets to its initial configuration instead of going empty.
func (s *Store) RemoveWaypoint(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.indexOf(id)
	if at < 0 {
		s.logger.Warn("remove rejected: unknown waypoint", zap.String("id", id))
		return fmt.Errorf("remove %q: %w", id, ErrNotFound)
	}
	if s.mode == ModeBothEndpoints && s.waypoints[at].IsEndpoint() {
		s.logger.Warn("remove rejected: endpoint is required", zap.String("id", id))
		return fmt.Errorf("remove %q: %w", id, ErrEndpointRequired)
	}

	remaining := make([]Waypoint, 0, len(s.waypoints)-1)
	remaining = append(remaining, s.waypoints[:at]...)
	remaining = append(remaining, s.waypoints[at+1:]...)

	hasDestination := false
	for _, wp := range remaining {
		if wp.ID == DestinationID {
			hasDestination = true
			break
		}
	}
	if !hasDestination {
		remaining = s.initial()
	}
	s.waypoints = remaining
	s.version++
	return nil
}

// UpdateCoordinates sets the coordinates of a waypoint. Unknown ids and
// non-finite values leave the store unchanged.
func (s *Store) UpdateCoordinates(id string, lat, lon float64) error {
	c := Coordinates{Lat: lat, Lon: lon}
	if !c.Valid() {
		s.logger.Warn("coordinates rejected", zap.String("id", id), zap.Float64("lat", lat), zap.Float64("lon", lon))
		return fmt.Errorf("update %q: %w", id, ErrInvalidCoordinates)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.indexOf(id)
	if at < 0 {
		s.logger.Warn("coordinates rejected: unknown waypoint", zap.String("id", id))
		return fmt.Errorf("update %q: %w", id, ErrNotFound)
	}
	s.waypoints[at].Coords = &c
	s.version++
	return nil
}

// UpdateLabel sets the free-text label of a waypoint.
func (s *Store) UpdateLabel(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.indexOf(id)
	if at < 0 {
		s.logger.Warn("label rejected: unknown waypoint", zap.String("id", id))
		return fmt.Errorf("label %q: %w", id, ErrNotFound)
	}
	s.waypoints[at].Label = text
	s.version++
	return nil
}

// Resolve sets label and coordinates together, as a geocoding result does.
func (s *Store) Resolve(id, label string, lat, lon float64) error {
	c := Coordinates{Lat: lat, Lon: lon}
	if !c.Valid() {
		s.logger.Warn("resolution rejected", zap.String("id", id), zap.Float64("lat", lat), zap.Float64("lon", lon))
		return fmt.Errorf("resolve %q: %w", id, ErrInvalidCoordinates)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.indexOf(id)
	if at < 0 {
		s.logger.Warn("resolution rejected: unknown waypoint", zap.String("id", id))
		return fmt.Errorf("resolve %q: %w", id, ErrNotFound)
	}
	s.waypoints[at].Label = label
	s.waypoints[at].Coords = &c
	s.version++
	return nil
}

// Unresolve clears the label and coordinates of a waypoint.
func (s *Store) Unresolve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.indexOf(id)
	if at < 0 {
		return fmt.Errorf("unresolve %q: %w", id, ErrNotFound)
	}
	s.waypoints[at].Label = ""
	s.waypoints[at].Coords = nil
	s.version++
	return nil
}

// Clear resets the store to its initial configuration.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waypoints = s.initial()
	s.counter = 0
	s.version++
}

// Replace installs a complete Route Intent, e.g. a loaded saved route.
func (s *Store) Replace(wps []Waypoint) error {
	if err := Validate(wps); err != nil {
		s.logger.Warn("replace rejected", zap.Error(err))
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waypoints = Clone(wps)
	s.counter = len(wps)
	s.version++
	return nil
}

// Validate checks the Route Intent invariants: unique ids, at most one
// origin, exactly one destination, finite coordinates where present.
func Validate(wps []Waypoint) error {
	seen := make(map[string]bool, len(wps))
	for _, wp := range wps {
		if wp.ID == "" {
			return fmt.Errorf("%w: empty waypoint id", ErrInvalidIntent)
		}
		if seen[wp.ID] {
			return fmt.Errorf("%w: duplicate waypoint id %q", ErrInvalidIntent, wp.ID)
		}
		seen[wp.ID] = true
		if wp.Coords != nil && !wp.Coords.Valid() {
			return fmt.Errorf("%w: waypoint %q has non-finite coordinates", ErrInvalidIntent, wp.ID)
		}
	}
	if !seen[DestinationID] {
		return fmt.Errorf("%w: missing destination", ErrInvalidIntent)
	}
	return nil
}

// IsRouteValid is true iff every origin/destination waypoint present has
// valid coordinates. Intermediate stops never affect the result.
func (s *Store) IsRouteValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return routeValid(s.waypoints)
}

func routeValid(wps []Waypoint) bool {
	endpoints := 0
	for _, wp := range wps {
		if !wp.IsEndpoint() {
			continue
		}
		endpoints++
		if !wp.Resolved() {
			return false
		}
	}
	return endpoints > 0
}

// Routable returns the ordered coordinates to route through, or nil when the
// Route Intent cannot be routed yet.
func (s *Store) Routable() []Coordinates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.waypoints) < 2 || !routeValid(s.waypoints) {
		return nil
	}
	coords := make([]Coordinates, 0, len(s.waypoints))
	for _, wp := range s.waypoints {
		if wp.Resolved() {
			coords = append(coords, *wp.Coords)
		}
	}
	if len(coords) < 2 {
		return nil
	}
	return coords
}
