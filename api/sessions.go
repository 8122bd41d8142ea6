package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nwah/tripplanner/nav"
	"github.com/nwah/tripplanner/position"
	"github.com/nwah/tripplanner/session"
	"github.com/nwah/tripplanner/storage"
	"github.com/nwah/tripplanner/waypoint"
)

// Builder creates the controller for a new session drawing on renderer
type Builder func(renderer nav.Renderer) *session.Controller

type entry struct {
	controller *session.Controller
	renderer   *nav.GeoJSONRenderer
	feed       *position.Feed
}

// Sessions holds the live planning sessions
type Sessions struct {
	build  Builder
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewSessions creates an empty registry
func NewSessions(build Builder, logger *zap.Logger) *Sessions {
	return &Sessions{
		build:    build,
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

// CreatedResponse is returned when a session is created
type CreatedResponse struct {
	ID   string       `json:"id"`
	View session.View `json:"view"`
}

// StopResponse carries the id of a new stop
type StopResponse struct {
	ID string `json:"id"`
}

// CoordinatesRequest is the body of coordinate updates
type CoordinatesRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// LabelRequest is the body of label updates
type LabelRequest struct {
	Text string `json:"text"`
}

// RegisterRoutes adds the session endpoints to r
func (s *Sessions) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sessions", s.handleCreate).Methods(http.MethodPost)

	sr := r.PathPrefix("/sessions/{id}").Subrouter()
	sr.HandleFunc("", s.handleView).Methods(http.MethodGet)
	sr.HandleFunc("", s.handleClose).Methods(http.MethodDelete)
	sr.HandleFunc("/directions", s.withSession(s.handleDirections)).Methods(http.MethodPost)
	sr.HandleFunc("/stops", s.withSession(s.handleAddStop)).Methods(http.MethodPost)
	sr.HandleFunc("/waypoints/{wp}", s.withSession(s.handleRemove)).Methods(http.MethodDelete)
	sr.HandleFunc("/waypoints/{wp}/coordinates", s.withSession(s.handleCoordinates)).Methods(http.MethodPut)
	sr.HandleFunc("/waypoints/{wp}/label", s.withSession(s.handleLabel)).Methods(http.MethodPut)
	sr.HandleFunc("/waypoints/{wp}/suggestions/{index:[0-9]+}", s.withSession(s.handleSelectSuggestion)).Methods(http.MethodPost)
	sr.HandleFunc("/location", s.withSession(s.handleLocation)).Methods(http.MethodPost)
	sr.HandleFunc("/nearby/{index:[0-9]+}", s.withSession(s.handleSelectNearby)).Methods(http.MethodPost)
	sr.HandleFunc("/clear", s.withSession(s.handleClear)).Methods(http.MethodPost)
	sr.HandleFunc("/alternatives/{index:[0-9]+}", s.withSession(s.handleSelectAlternative)).Methods(http.MethodPost)
	sr.HandleFunc("/routes", s.withSession(s.handleSaveRoute)).Methods(http.MethodPost)
	sr.HandleFunc("/routes", s.withSession(s.handleListRoutes)).Methods(http.MethodGet)
	sr.HandleFunc("/routes/{index:[0-9]+}/load", s.withSession(s.handleLoadRoute)).Methods(http.MethodPost)
	sr.HandleFunc("/routes/{index:[0-9]+}", s.withSession(s.handleDeleteRoute)).Methods(http.MethodDelete)
	sr.HandleFunc("/history", s.withSession(s.handleListHistory)).Methods(http.MethodGet)
	sr.HandleFunc("/history/{index:[0-9]+}/load", s.withSession(s.handleLoadHistory)).Methods(http.MethodPost)
	sr.HandleFunc("/history/{index:[0-9]+}", s.withSession(s.handleDeleteHistory)).Methods(http.MethodDelete)
	sr.HandleFunc("/notices", s.withSession(s.handleNotices)).Methods(http.MethodGet)
	sr.HandleFunc("/route.geojson", s.withSession(s.handleGeoJSON)).Methods(http.MethodGet)
	sr.HandleFunc("/tracking", s.withSession(s.handleStartTracking)).Methods(http.MethodPost)
	sr.HandleFunc("/tracking", s.withSession(s.handleStopTracking)).Methods(http.MethodDelete)
	sr.HandleFunc("/position", s.withSession(s.handlePositionUpdate)).Methods(http.MethodPut)
	sr.HandleFunc("/position", s.withSession(s.handlePositionStream)).Methods(http.MethodGet)
}

// Get returns the controller for id
func (s *Sessions) Get(id string) (*session.Controller, bool) {
	e, ok := s.get(id)
	if !ok {
		return nil, false
	}
	return e.controller, true
}

func (s *Sessions) get(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

// Len returns the number of live sessions
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CloseAll closes every session
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		e.controller.Close()
		delete(s.sessions, id)
	}
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, e *entry)

func (s *Sessions) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.get(mux.Vars(r)["id"])
		if !ok {
			nav.WriteError(w, http.StatusNotFound, "session not found")
			return
		}
		h(w, r, e)
	}
}

func (s *Sessions) handleCreate(w http.ResponseWriter, r *http.Request) {
	renderer := nav.NewGeoJSONRenderer()
	e := &entry{
		controller: s.build(renderer),
		renderer:   renderer,
		feed:       position.NewFeed(s.logger.Named("position")),
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("id", id))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreatedResponse{ID: id, View: e.controller.View()})
}

func (s *Sessions) handleView(w http.ResponseWriter, r *http.Request) {
	c, ok := s.Get(mux.Vars(r)["id"])
	if !ok {
		nav.WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	nav.WriteJSON(w, c.View())
}

func (s *Sessions) handleClose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		nav.WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	e.controller.Close()
	s.logger.Info("session closed", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// respond writes the session view, or the error mapped to a status
func (s *Sessions) respond(w http.ResponseWriter, e *entry, err error) {
	if err != nil {
		writeCommandError(w, err)
		return
	}
	nav.WriteJSON(w, e.controller.View())
}

func (s *Sessions) handleDirections(w http.ResponseWriter, r *http.Request, e *entry) {
	s.respond(w, e, e.controller.ShowDirections())
}

func (s *Sessions) handleAddStop(w http.ResponseWriter, r *http.Request, e *entry) {
	id, err := e.controller.AddStop()
	if err != nil {
		writeCommandError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(StopResponse{ID: id})
}

func (s *Sessions) handleRemove(w http.ResponseWriter, r *http.Request, e *entry) {
	s.respond(w, e, e.controller.RemoveWaypoint(mux.Vars(r)["wp"]))
}

func decodeCoordinates(r *http.Request) (float64, float64, error) {
	var req CoordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, 0, errBadBody
	}
	if req.Lat == nil || req.Lon == nil {
		return 0, 0, errBadBody
	}
	return *req.Lat, *req.Lon, nil
}

func (s *Sessions) handleCoordinates(w http.ResponseWriter, r *http.Request, e *entry) {
	lat, lon, err := decodeCoordinates(r)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	s.respond(w, e, e.controller.UpdateCoordinates(mux.Vars(r)["wp"], lat, lon))
}

func (s *Sessions) handleLabel(w http.ResponseWriter, r *http.Request, e *entry) {
	var req LabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCommandError(w, errBadBody)
		return
	}
	s.respond(w, e, e.controller.UpdateLabel(mux.Vars(r)["wp"], req.Text))
}

func index(r *http.Request) (int, error) {
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return 0, errBadBody
	}
	return i, nil
}

func (s *Sessions) handleSelectSuggestion(w http.ResponseWriter, r *http.Request, e *entry) {
	i, err := index(r)
	if err == nil {
		err = e.controller.SelectSuggestion(mux.Vars(r)["wp"], i)
	}
	s.respond(w, e, err)
}

func (s *Sessions) handleLocation(w http.ResponseWriter, r *http.Request, e *entry) {
	lat, lon, err := decodeCoordinates(r)
	if err == nil {
		err = e.controller.UseMyLocation(r.Context(), lat, lon)
	}
	s.respond(w, e, err)
}

func (s *Sessions) handleSelectNearby(w http.ResponseWriter, r *http.Request, e *entry) {
	i, err := index(r)
	if err == nil {
		err = e.controller.SelectNearbyPlace(i)
	}
	s.respond(w, e, err)
}

func (s *Sessions) handleClear(w http.ResponseWriter, r *http.Request, e *entry) {
	s.respond(w, e, e.controller.Clear())
}

func (s *Sessions) handleSelectAlternative(w http.ResponseWriter, r *http.Request, e *entry) {
	i, err := index(r)
	if err == nil {
		err = e.controller.SelectAlternative(i)
	}
	s.respond(w, e, err)
}

func (s *Sessions) handleSaveRoute(w http.ResponseWriter, r *http.Request, e *entry) {
	saved, err := e.controller.SaveRoute()
	if err != nil {
		writeCommandError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(saved)
}

func (s *Sessions) handleListRoutes(w http.ResponseWriter, r *http.Request, e *entry) {
	nav.WriteJSON(w, e.controller.SavedRoutes())
}

func (s *Sessions) handleLoadRoute(w http.ResponseWriter, r *http.Request, e *entry) {
	i, err := index(r)
	if err == nil {
		err = e.controller.LoadRoute(i)
	}
	s.respond(w, e, err)
}

func (s *Sessions) handleDeleteRoute(w http.ResponseWriter, r *http.Request, e *entry) {
	i, err := index(r)
	if err == nil {
		err = e.controller.DeleteRoute(i)
	}
	if err != nil {
		writeCommandError(w, err)
		return
	}
	nav.WriteJSON(w, e.controller.SavedRoutes())
}

func (s *Sessions) handleListHistory(w http.ResponseWriter, r *http.Request, e *entry) {
	nav.WriteJSON(w, e.controller.History())
}

func (s *Sessions) handleLoadHistory(w http.ResponseWriter, r *http.Request, e *entry) {
	i, err := index(r)
	if err == nil {
		err = e.controller.LoadHistoryItem(r.Context(), i)
	}
	s.respond(w, e, err)
}

func (s *Sessions) handleDeleteHistory(w http.ResponseWriter, r *http.Request, e *entry) {
	i, err := index(r)
	if err == nil {
		err = e.controller.DeleteHistory(i)
	}
	if err != nil {
		writeCommandError(w, err)
		return
	}
	nav.WriteJSON(w, e.controller.History())
}

func (s *Sessions) handleNotices(w http.ResponseWriter, r *http.Request, e *entry) {
	notices := e.controller.Notices()
	if notices == nil {
		notices = []session.Notice{}
	}
	nav.WriteJSON(w, notices)
}

func (s *Sessions) handleGeoJSON(w http.ResponseWriter, r *http.Request, e *entry) {
	data, err := e.renderer.FeatureCollection().MarshalJSON()
	if err != nil {
		nav.WriteError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

func (s *Sessions) handleStartTracking(w http.ResponseWriter, r *http.Request, e *entry) {
	s.respond(w, e, e.controller.StartTracking(e.feed))
}

func (s *Sessions) handleStopTracking(w http.ResponseWriter, r *http.Request, e *entry) {
	e.controller.StopTracking()
	nav.WriteJSON(w, e.controller.View())
}

func (s *Sessions) handlePositionUpdate(w http.ResponseWriter, r *http.Request, e *entry) {
	lat, lon, err := decodeCoordinates(r)
	if err == nil {
		err = e.controller.UpdatePosition(lat, lon)
	}
	s.respond(w, e, err)
}

var errBadBody = errors.New("invalid request body")

// writeCommandError maps command errors to statuses. Validation
// rejections are client errors; lookup failures are upstream errors.
func writeCommandError(w http.ResponseWriter, err error) {
	var noResults *nav.ErrNoResults
	switch {
	case errors.Is(err, errBadBody),
		errors.Is(err, waypoint.ErrInvalidCoordinates),
		errors.Is(err, waypoint.ErrInvalidIntent):
		nav.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrClosed),
		errors.Is(err, waypoint.ErrNotFound),
		errors.Is(err, storage.ErrIndexOutOfRange),
		errors.Is(err, session.ErrNoSuchSuggestion),
		errors.Is(err, session.ErrNoSuchPlace),
		errors.Is(err, nav.ErrNoSuchAlternative),
		errors.As(err, &noResults):
		nav.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrDuplicateRoute),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrAlreadyTracking):
		nav.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrInvalidRoute),
		errors.Is(err, waypoint.ErrEndpointRequired):
		nav.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrLocationUnresolved),
		errors.Is(err, nav.ErrGeocodeFailure):
		nav.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		nav.WriteError(w, http.StatusInternalServerError, "internal_error")
	}
}
