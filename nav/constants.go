package nav

import (
	"fmt"
	"time"
)

// Profile represents the routing profile
type Profile string

const (
	ProfileDriving Profile = "driving"
)

// DefaultProfile is the only profile the planner routes with
const DefaultProfile = ProfileDriving

// RouterKind selects the routing backend
type RouterKind string

const (
	RouterOSRM   RouterKind = "osrm"
	RouterGoogle RouterKind = "google"
)

// IsValid checks if the router kind is valid
func (k RouterKind) IsValid() bool {
	switch k {
	case RouterOSRM, RouterGoogle:
		return true
	default:
		return false
	}
}

const (
	// DefaultMinQueryLength is the shortest free text sent to forward geocoding
	DefaultMinQueryLength = 2
	// DefaultSuggestionLimit is the number of candidates requested per query
	DefaultSuggestionLimit = 5
	// DefaultDebounce is the input inactivity interval before a lookup fires
	DefaultDebounce = 500 * time.Millisecond
	// DefaultNearbyRadius is the POI search radius in meters
	DefaultNearbyRadius = 1000
	// FallbackLocationLabel is used when reverse geocoding finds no locality
	FallbackLocationLabel = "My Location"
)

// CategoryPriority lists POI categories shown first, in this order.
// Remaining categories follow alphabetically.
var CategoryPriority = []string{
	"restaurant",
	"cafe",
	"hotel",
	"bakery",
	"pharmacy",
	"chemist",
	"jewelry",
}

// DefaultDenylist holds POI categories dropped from nearby results
var DefaultDenylist = []string{"butcher"}

// Duration is a time.Duration decoded from strings such as "500ms"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %v", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
