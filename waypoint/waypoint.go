package waypoint

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Reserved waypoint ids
const (
	OriginID      = "from"
	DestinationID = "to"
)

// Coordinates is a resolved latitude/longitude pair.
// It is stored as a [lat, lon] JSON array.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Valid reports whether both components are finite numbers.
func (c Coordinates) Valid() bool {
	return isFinite(c.Lat) && isFinite(c.Lon)
}

// Point converts to an orb point (lon, lat order).
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// FromPoint converts an orb point back to coordinates.
func FromPoint(p orb.Point) Coordinates {
	return Coordinates{Lat: p.Lat(), Lon: p.Lon()}
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

func (c Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lon})
}

func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("coordinates must be a [lat, lon] array: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("coordinates must have 2 elements, got %d", len(pair))
	}
	c.Lat, c.Lon = pair[0], pair[1]
	return nil
}

// Waypoint is a named point participating in a route: origin, destination,
// or intermediate stop.
type Waypoint struct {
	ID     string       `json:"id"`
	Label  string       `json:"label"`
	Coords *Coordinates `json:"coords"`
}

// Resolved reports whether the waypoint has valid coordinates.
func (w Waypoint) Resolved() bool {
	return w.Coords != nil && w.Coords.Valid()
}

// IsEndpoint reports whether the waypoint is the origin or destination.
func (w Waypoint) IsEndpoint() bool {
	return w.ID == OriginID || w.ID == DestinationID
}

func (w Waypoint) clone() Waypoint {
	if w.Coords != nil {
		c := *w.Coords
		w.Coords = &c
	}
	return w
}

// Equal compares ids, labels and coordinates.
func (w Waypoint) Equal(o Waypoint) bool {
	if w.ID != o.ID || w.Label != o.Label {
		return false
	}
	if w.Coords == nil || o.Coords == nil {
		return w.Coords == nil && o.Coords == nil
	}
	return *w.Coords == *o.Coords
}

// Clone returns a deep copy of a waypoint list.
func Clone(wps []Waypoint) []Waypoint {
	out := make([]Waypoint, len(wps))
	for i, wp := range wps {
		out[i] = wp.clone()
	}
	return out
}

// Equal reports whether two lists hold the same waypoints in the same order.
func Equal(a, b []Waypoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// SameCoordinates compares two ordered coordinate lists exactly.
func SameCoordinates(a, b []Coordinates) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
