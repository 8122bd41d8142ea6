package nav

import (
	"github.com/paulmach/orb"
)

// NavConfig holds navigation-specific configuration
type NavConfig struct {
	NominatimURL      string   `toml:"nominatim_url"`
	OverpassURL       string   `toml:"overpass_url"`
	OSRMURL           string   `toml:"osrm_url"`
	Router            string   `toml:"router"` // osrm or google
	GoogleAPIKey      string   `toml:"google_api_key"`
	UserAgent         string   `toml:"user_agent"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           Duration `toml:"timeout"`
}

// Place is a geocoding candidate or a nearby point of interest
type Place struct {
	ID       int64   `json:"id,omitempty"`
	Label    string  `json:"label"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Category string  `json:"category"`
}

// Summary is the total length and travel time of a route
type Summary struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Instruction is a single maneuver step of a route
type Instruction struct {
	Type            string  `json:"type"`            // maneuver category, e.g. Right, SlightLeft, DestinationReached
	Text            string  `json:"text"`            // human readable description
	Road            string  `json:"road,omitempty"`  // road name the step follows
	Index           int     `json:"index"`           // index into the route geometry where the step begins
	DistanceMeters  float64 `json:"distanceMeters"`  // distance covered by the step
	DurationSeconds float64 `json:"durationSeconds"` // time spent on the step
	Exit            int     `json:"exit,omitempty"`  // roundabout exit number
}

// RouteResult is one computed path
type RouteResult struct {
	Summary      Summary        `json:"summary"`
	Geometry     orb.LineString `json:"geometry"`
	Instructions []Instruction  `json:"instructions"`
	Name         string         `json:"name,omitempty"`
}

// StartPoint returns the geometry point where the instruction begins.
func (r RouteResult) StartPoint(instr Instruction) (orb.Point, bool) {
	if instr.Index < 0 || instr.Index >= len(r.Geometry) {
		return orb.Point{}, false
	}
	return r.Geometry[instr.Index], true
}

// Alternative is a compact view of a route option for listings
type Alternative struct {
	Index           int     `json:"index"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
	Roads           string  `json:"roads"`
}

// Alternatives summarizes routes in routing service order; index 0 is primary.
func Alternatives(routes []RouteResult) []Alternative {
	out := make([]Alternative, len(routes))
	for i, r := range routes {
		out[i] = Alternative{
			Index:           i,
			DistanceMeters:  r.Summary.DistanceMeters,
			DurationSeconds: r.Summary.DurationSeconds,
			Roads:           RoadsSummary(r.Instructions),
		}
	}
	return out
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
