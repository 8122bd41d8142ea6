package nav

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nwah/tripplanner/waypoint"
)

// FormatDuration renders seconds as "23h 20m", or "20m" under an hour
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	hours := int(seconds / 3600)
	minutes := int(math.Mod(seconds, 3600) / 60)

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatDistance renders meters as kilometers with one decimal, "1400.0 km"
func FormatDistance(meters float64) string {
	if meters <= 0 {
		return ""
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatStepDistance renders a step length, meters below one kilometer
func FormatStepDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// WriteError writes a JSON error body with the given status
func WriteError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// WriteJSON writes data as a JSON body
func WriteJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// ParseLatLng parses "lat,lng"
func ParseLatLng(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid lat,lng format")
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude: %v", err)
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude: %v", err)
	}

	if !(waypoint.Coordinates{Lat: lat, Lon: lng}).Valid() {
		return 0, 0, fmt.Errorf("coordinates must be finite")
	}
	return lat, lng, nil
}

// Handlers serves stateless lookups straight against the services, for
// clients that do not keep a planning session
type Handlers struct {
	geocoder Geocoder
	places   PlaceFinder
	router   Router
	logger   *zap.Logger
}

// NewHandlers creates the lookup handlers
func NewHandlers(geocoder Geocoder, places PlaceFinder, router Router, logger *zap.Logger) *Handlers {
	return &Handlers{geocoder: geocoder, places: places, router: router, logger: logger}
}

// HandleGeocode handles GET /geocode?q=text
func (h *Handlers) HandleGeocode(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("geocode request", zap.String("url", r.URL.String()))

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		WriteError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	results, err := h.geocoder.Search(r.Context(), query, DefaultMinQueryLength)
	if err != nil {
		var noResults *ErrNoResults
		if errors.As(err, &noResults) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	if results == nil {
		results = []Place{}
	}
	WriteJSON(w, results)
}

// HandleReverse handles GET /reverse?at=lat,lng
func (h *Handlers) HandleReverse(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := ParseLatLng(r.URL.Query().Get("at"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid 'at' parameter: %v", err))
		return
	}
	label, err := h.geocoder.Reverse(r.Context(), lat, lng)
	if err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, Place{Label: label, Lat: lat, Lon: lng})
}

// HandleNearby handles GET /nearby?at=lat,lng[&radius=m]
func (h *Handlers) HandleNearby(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := ParseLatLng(r.URL.Query().Get("at"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid 'at' parameter: %v", err))
		return
	}
	radius := DefaultNearbyRadius
	if s := r.URL.Query().Get("radius"); s != "" {
		radius, err = strconv.Atoi(s)
		if err != nil || radius <= 0 {
			WriteError(w, http.StatusBadRequest, "radius must be a positive integer")
			return
		}
	}
	WriteJSON(w, h.places.Nearby(r.Context(), lat, lng, radius))
}

// RouteResponse is the body of a stateless route request
type RouteResponse struct {
	Routes       []RouteResult `json:"routes"`
	Alternatives []Alternative `json:"alternatives"`
	Distance     string        `json:"distance"`
	Duration     string        `json:"duration"`
}

// HandleRoute handles GET /route?from=lat,lng&to=lat,lng[&via=lat,lng...]
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("route request", zap.String("url", r.URL.String()))

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		WriteError(w, http.StatusBadRequest, "both 'from' and 'to' parameters are required")
		return
	}

	points := append([]string{from}, q["via"]...)
	points = append(points, to)
	coords := make([]waypoint.Coordinates, 0, len(points))
	for _, p := range points {
		lat, lng, err := ParseLatLng(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid coordinate %q: %v", p, err))
			return
		}
		coords = append(coords, waypoint.Coordinates{Lat: lat, Lon: lng})
	}

	routes, err := h.router.Route(r.Context(), coords)
	if err != nil {
		var failure *RoutingFailure
		if errors.As(err, &failure) && failure.Kind == FailureNoRoute {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := RouteResponse{
		Routes:       routes,
		Alternatives: Alternatives(routes),
	}
	if len(routes) > 0 {
		resp.Distance = FormatDistance(routes[0].Summary.DistanceMeters)
		resp.Duration = FormatDuration(routes[0].Summary.DurationSeconds)
	}
	WriteJSON(w, resp)
}
