package waypoint

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/kr/pretty"
	"go.uber.org/zap/zaptest"
)

func ids(wps []Waypoint) []string {
	out := make([]string, len(wps))
	for i, wp := range wps {
		out[i] = wp.ID
	}
	return out
}

func sameIDs(t *testing.T, got []Waypoint, want ...string) {
	t.Helper()
	if diff := pretty.Diff(ids(got), want); len(diff) > 0 {
		t.Fatalf("ids = %v, want %v: %v", ids(got), want, diff)
	}
}

func TestNewStore_InitialConfiguration(t *testing.T) {
	s := NewStore(ModeDestinationFirst, zaptest.NewLogger(t))
	sameIDs(t, s.Waypoints(), "to")

	s = NewStore(ModeBothEndpoints, zaptest.NewLogger(t))
	sameIDs(t, s.Waypoints(), "from", "to")

	s = NewStore("bogus", nil)
	if s.Mode() != DefaultMode {
		t.Errorf("Mode = %q, want %q", s.Mode(), DefaultMode)
	}
}

func TestAddStop_InsertsBeforeDestination(t *testing.T) {
	s := NewStore(ModeBothEndpoints, zaptest.NewLogger(t))
	a := s.AddStop()
	b := s.AddStop()
	if a == b {
		t.Fatalf("stop ids not unique: %q", a)
	}
	sameIDs(t, s.Waypoints(), "from", a, b, "to")
}

func TestAddStop_UniqueAfterRemoval(t *testing.T) {
	s := NewStore(ModeBothEndpoints, zaptest.NewLogger(t))
	a := s.AddStop()
	b := s.AddStop()
	if err := s.RemoveWaypoint(a); err != nil {
		t.Fatal(err)
	}
	c := s.AddStop()
	if c == b {
		t.Fatalf("reused id %q", c)
	}
	sameIDs(t, s.Waypoints(), "from", b, c, "to")
}

func TestRemoveWaypoint_Floor(t *testing.T) {
	s := NewStore(ModeDestinationFirst, zaptest.NewLogger(t))
	s.EnsureOrigin()
	stop := s.AddStop()
	sameIDs(t, s.Waypoints(), "from", stop, "to")

	if err := s.RemoveWaypoint(stop); err != nil {
		t.Fatal(err)
	}
	sameIDs(t, s.Waypoints(), "from", "to")

	if err := s.UpdateCoordinates("from", 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveWaypoint("to"); err != nil {
		t.Fatal(err)
	}
	got := s.Waypoints()
	sameIDs(t, got, "to")
	if got[0].Coords != nil || got[0].Label != "" {
		t.Errorf("reset destination not empty: %# v", pretty.Formatter(got[0]))
	}
}

func TestRemoveWaypoint_KeepsResolvedDestination(t *testing.T) {
	s := NewStore(ModeDestinationFirst, zaptest.NewLogger(t))
	if err := s.Resolve("to", "Mumbai", 19.0760, 72.8777); err != nil {
		t.Fatal(err)
	}
	s.EnsureOrigin()
	if err := s.RemoveWaypoint("from"); err != nil {
		t.Fatal(err)
	}
	got := s.Waypoints()
	sameIDs(t, got, "to")
	if !got[0].Resolved() {
		t.Error("destination lost its coordinates")
	}
}

func TestRemoveWaypoint_Rejections(t *testing.T) {
	s := NewStore(ModeBothEndpoints, zaptest.NewLogger(t))
	before := s.Version()

	if err := s.RemoveWaypoint("to"); !errors.Is(err, ErrEndpointRequired) {
		t.Errorf("remove to: err = %v, want ErrEndpointRequired", err)
	}
	if err := s.RemoveWaypoint("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove unknown: err = %v, want ErrNotFound", err)
	}
	if s.Version() != before {
		t.Error("rejected removal mutated the store")
	}
	sameIDs(t, s.Waypoints(), "from", "to")
}

func TestUpdateCoordinates_Rejections(t *testing.T) {
	s := NewStore(ModeBothEndpoints, zaptest.NewLogger(t))
	tests := []struct {
		name     string
		id       string
		lat, lon float64
		want     error
	}{
		{"unknown id", "wp9", 1, 2, ErrNotFound},
		{"nan", "to", math.NaN(), 2, ErrInvalidCoordinates},
		{"inf", "to", 1, math.Inf(1), ErrInvalidCoordinates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.UpdateCoordinates(tt.id, tt.lat, tt.lon); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	for _, wp := range s.Waypoints() {
		if wp.Coords != nil {
			t.Errorf("waypoint %q gained coordinates", wp.ID)
		}
	}
}

func TestIsRouteValid_IgnoresStops(t *testing.T) {
	s := NewStore(ModeBothEndpoints, zaptest.NewLogger(t))
	if s.IsRouteValid() {
		t.Fatal("empty endpoints reported valid")
	}
	stop := s.AddStop()
	if s.IsRouteValid() {
		t.Fatal("adding a stop made the route valid")
	}

	s.UpdateCoordinates("from", 28.6139, 77.2090)
	if s.IsRouteValid() {
		t.Fatal("route valid with unresolved destination")
	}
	s.UpdateCoordinates("to", 19.0760, 72.8777)
	if !s.IsRouteValid() {
		t.Fatal("route invalid with both endpoints resolved")
	}

	// unresolved stop neither blocks validity nor participates
	if got := len(s.Routable()); got != 2 {
		t.Errorf("Routable len = %d, want 2", got)
	}
	s.UpdateCoordinates(stop, 23.0225, 72.5714)
	if got := len(s.Routable()); got != 3 {
		t.Errorf("Routable len = %d, want 3", got)
	}
	extra := s.AddStop()
	if !s.IsRouteValid() {
		t.Error("adding a stop invalidated the route")
	}
	s.RemoveWaypoint(extra)
	s.RemoveWaypoint(stop)
	if !s.IsRouteValid() {
		t.Error("removing stops invalidated the route")
	}
}

func TestRoutable_NeedsTwoPoints(t *testing.T) {
	s := NewStore(ModeDestinationFirst, zaptest.NewLogger(t))
	s.UpdateCoordinates("to", 19.0760, 72.8777)
	if s.Routable() != nil {
		t.Error("single destination should not be routable")
	}
	stop := s.AddStop()
	s.UpdateCoordinates(stop, 18.5204, 73.8567)
	if got := s.Routable(); len(got) != 2 || got[1].Lat != 19.0760 {
		t.Errorf("Routable = %v", got)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(ModeDestinationFirst, zaptest.NewLogger(t))
	s.EnsureOrigin()
	s.AddStop()
	s.UpdateCoordinates("to", 1, 1)
	s.Clear()
	got := s.Waypoints()
	sameIDs(t, got, "to")
	if got[0].Coords != nil {
		t.Error("clear kept coordinates")
	}
}

func TestReplace(t *testing.T) {
	s := NewStore(ModeDestinationFirst, zaptest.NewLogger(t))
	delhi := Coordinates{Lat: 28.6139, Lon: 77.2090}
	intent := []Waypoint{
		{ID: "from", Label: "Delhi", Coords: &delhi},
		{ID: "to", Label: "Mumbai", Coords: &Coordinates{Lat: 19.0760, Lon: 72.8777}},
	}
	if err := s.Replace(intent); err != nil {
		t.Fatal(err)
	}
	delhi.Lat = 0 // caller mutation must not leak in
	got := s.Waypoints()
	if got[0].Coords.Lat != 28.6139 {
		t.Errorf("store aliases caller slice: %v", got[0].Coords)
	}

	bad := [][]Waypoint{
		{{ID: "from"}},
		{{ID: "to"}, {ID: "to"}},
		{{ID: ""}, {ID: "to"}},
		{{ID: "to", Coords: &Coordinates{Lat: math.NaN()}}},
	}
	for i, wps := range bad {
		if err := s.Replace(wps); !errors.Is(err, ErrInvalidIntent) {
			t.Errorf("case %d: err = %v, want ErrInvalidIntent", i, err)
		}
	}
}

func TestCoordinatesJSON(t *testing.T) {
	wp := Waypoint{ID: "to", Label: "Mumbai", Coords: &Coordinates{Lat: 19.076, Lon: 72.8777}}
	b, err := json.Marshal(wp)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"to","label":"Mumbai","coords":[19.076,72.8777]}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
	var back Waypoint
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(wp) {
		t.Errorf("decoded %# v", pretty.Formatter(back))
	}
	if err := json.Unmarshal([]byte(`[1]`), new(Coordinates)); err == nil {
		t.Error("expected error for 1-element coordinates")
	}
}
