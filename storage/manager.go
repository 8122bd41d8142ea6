package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nwah/tripplanner/nav"
	"github.com/nwah/tripplanner/waypoint"
)

// Keys the lists are stored under
const (
	RoutesKey  = "savedRoutes"
	HistoryKey = "savedHistory"
)

const (
	DefaultMaxRoutes  = 50
	DefaultMaxHistory = 10
)

var (
	ErrInvalidRoute    = errors.New("invalid route")
	ErrDuplicateRoute  = errors.New("duplicate route")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrEmptyQuery      = errors.New("empty history query")
)

// Config holds storage configuration
type Config struct {
	Path       string `toml:"path"`
	MaxRoutes  int    `toml:"max_routes"`
	MaxHistory int    `toml:"max_history"`
}

// SavedRoute is an immutable snapshot of a Route Intent and its summary
type SavedRoute struct {
	ID              string              `json:"id"`
	Waypoints       []waypoint.Waypoint `json:"waypoints"`
	DistanceMeters  float64             `json:"distance"`
	DurationSeconds float64             `json:"duration"`
	Alternatives    []nav.Alternative   `json:"alternatives"`
	CreatedAt       time.Time           `json:"timestamp"`
}

func (r SavedRoute) clone() SavedRoute {
	r.Waypoints = waypoint.Clone(r.Waypoints)
	r.Alternatives = append([]nav.Alternative{}, r.Alternatives...)
	return r
}

// HistoryEntry is a resolved search label
type HistoryEntry struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"timestamp"`
}

// Manager keeps saved routes and history, newest first, writing through to
// the KV store after every change.
type Manager struct {
	kv         KV
	maxRoutes  int
	maxHistory int
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	routes  []SavedRoute
	history []HistoryEntry
}

// NewManager loads both lists from kv. Absent or unreadable lists start
// empty.
func NewManager(kv KV, cfg Config, logger *zap.Logger) *Manager {
	m := &Manager{
		kv:         kv,
		maxRoutes:  cfg.MaxRoutes,
		maxHistory: cfg.MaxHistory,
		logger:     logger,
		now:        time.Now,
	}
	if m.maxRoutes <= 0 {
		m.maxRoutes = DefaultMaxRoutes
	}
	if m.maxHistory <= 0 {
		m.maxHistory = DefaultMaxHistory
	}

	m.routes = load[SavedRoute](m, RoutesKey)
	m.history = load[HistoryEntry](m, HistoryKey)
	if len(m.routes) > m.maxRoutes {
		m.routes = m.routes[:m.maxRoutes]
	}
	if len(m.history) > m.maxHistory {
		m.history = m.history[:m.maxHistory]
	}
	logger.Debug("persistence loaded", zap.Int("routes", len(m.routes)), zap.Int("history", len(m.history)))
	return m
}

func load[T any](m *Manager, key string) []T {
	raw, ok, err := m.kv.Get(key)
	if err != nil {
		m.logger.Warn("reading stored list failed, starting empty", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	if !ok || raw == "" {
		return []T{}
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		m.logger.Warn("stored list is corrupt, starting empty", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}

func (m *Manager) store(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := m.kv.Set(key, string(data)); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// validateSnapshot requires at least two waypoints, all resolved, not all at
// the same spot.
func validateSnapshot(wps []waypoint.Waypoint) error {
	if len(wps) < 2 {
		return fmt.Errorf("%w: need at least 2 waypoints, have %d", ErrInvalidRoute, len(wps))
	}
	for _, wp := range wps {
		if !wp.Resolved() {
			return fmt.Errorf("%w: waypoint %q has no coordinates", ErrInvalidRoute, wp.ID)
		}
	}
	first := *wps[0].Coords
	for _, wp := range wps[1:] {
		if *wp.Coords != first {
			return nil
		}
	}
	return fmt.Errorf("%w: all waypoints are at the same location", ErrInvalidRoute)
}

// sameIntent compares ordered labels and coordinates
func sameIntent(a, b []waypoint.Waypoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Label != b[i].Label {
			return false
		}
		if (a[i].Coords == nil) != (b[i].Coords == nil) {
			return false
		}
		if a[i].Coords != nil && *a[i].Coords != *b[i].Coords {
			return false
		}
	}
	return true
}

// SaveRoute stores a snapshot of wps with the primary summary. summary is
// nil when no route has been computed, which is rejected.
func (m *Manager) SaveRoute(wps []waypoint.Waypoint, summary *nav.Summary, alternatives []nav.Alternative) (SavedRoute, error) {
	if err := validateSnapshot(wps); err != nil {
		m.logger.Warn("not saving route", zap.Error(err))
		return SavedRoute{}, err
	}
	if summary == nil {
		err := fmt.Errorf("%w: no computed route", ErrInvalidRoute)
		m.logger.Warn("not saving route", zap.Error(err))
		return SavedRoute{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.routes {
		if sameIntent(r.Waypoints, wps) {
			m.logger.Warn("not saving duplicate route", zap.String("existing", r.ID))
			return SavedRoute{}, ErrDuplicateRoute
		}
	}

	saved := SavedRoute{
		ID:              uuid.NewString(),
		Waypoints:       waypoint.Clone(wps),
		DistanceMeters:  summary.DistanceMeters,
		DurationSeconds: summary.DurationSeconds,
		Alternatives:    append([]nav.Alternative{}, alternatives...),
		CreatedAt:       m.now().UTC(),
	}

	routes := make([]SavedRoute, 0, len(m.routes)+1)
	routes = append(routes, saved)
	routes = append(routes, m.routes...)
	if len(routes) > m.maxRoutes {
		routes = routes[:m.maxRoutes]
	}
	if err := m.store(RoutesKey, routes); err != nil {
		return SavedRoute{}, err
	}
	m.routes = routes
	m.logger.Info("route saved", zap.String("id", saved.ID), zap.Int("waypoints", len(wps)))
	return saved.clone(), nil
}

// DeleteRoute removes the route at index
func (m *Manager) DeleteRoute(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.routes) {
		m.logger.Warn("invalid route index for deletion", zap.Int("index", index), zap.Int("routes", len(m.routes)))
		return ErrIndexOutOfRange
	}
	routes := make([]SavedRoute, 0, len(m.routes)-1)
	routes = append(routes, m.routes[:index]...)
	routes = append(routes, m.routes[index+1:]...)
	if err := m.store(RoutesKey, routes); err != nil {
		return err
	}
	m.routes = routes
	return nil
}

// LoadRoute returns a copy of the route at index
func (m *Manager) LoadRoute(index int) (SavedRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.routes) {
		m.logger.Warn("invalid route index for load", zap.Int("index", index), zap.Int("routes", len(m.routes)))
		return SavedRoute{}, ErrIndexOutOfRange
	}
	return m.routes[index].clone(), nil
}

// Routes returns every saved route, newest first
func (m *Manager) Routes() []SavedRoute {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SavedRoute, len(m.routes))
	for i, r := range m.routes {
		out[i] = r.clone()
	}
	return out
}

// RecordHistory prepends label, evicting the oldest entries past the cap
func (m *Manager) RecordHistory(label string) (HistoryEntry, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return HistoryEntry{}, ErrEmptyQuery
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := HistoryEntry{
		ID:        "hist-" + uuid.NewString(),
		Query:     label,
		CreatedAt: m.now().UTC(),
	}
	history := make([]HistoryEntry, 0, len(m.history)+1)
	history = append(history, entry)
	history = append(history, m.history...)
	if len(history) > m.maxHistory {
		history = history[:m.maxHistory]
	}
	if err := m.store(HistoryKey, history); err != nil {
		return HistoryEntry{}, err
	}
	m.history = history
	return entry, nil
}

// DeleteHistory removes the entry at index
func (m *Manager) DeleteHistory(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.history) {
		m.logger.Warn("invalid history index for deletion", zap.Int("index", index), zap.Int("entries", len(m.history)))
		return ErrIndexOutOfRange
	}
	history := make([]HistoryEntry, 0, len(m.history)-1)
	history = append(history, m.history[:index]...)
	history = append(history, m.history[index+1:]...)
	if err := m.store(HistoryKey, history); err != nil {
		return err
	}
	m.history = history
	return nil
}

// HistoryItem returns the entry at index
func (m *Manager) HistoryItem(index int) (HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.history) {
		m.logger.Warn("invalid history index", zap.Int("index", index), zap.Int("entries", len(m.history)))
		return HistoryEntry{}, ErrIndexOutOfRange
	}
	return m.history[index], nil
}

// History returns every entry, newest first
func (m *Manager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry{}, m.history...)
}
