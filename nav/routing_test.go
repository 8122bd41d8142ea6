package nav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/paulmach/orb"
	"go.uber.org/zap/zaptest"
	"googlemaps.github.io/maps"

	"github.com/nwah/tripplanner/waypoint"
)

var (
	ptA = orb.Point{77.20, 28.60}
	ptB = orb.Point{77.21, 28.61}
	ptC = orb.Point{77.22, 28.62}
	ptD = orb.Point{77.23, 28.63}
)

var delhiMumbai = []waypoint.Coordinates{
	{Lat: 28.6139, Lon: 77.209},
	{Lat: 19.076, Lon: 72.8777},
}

type stepFixture struct {
	typ, modifier, name string
	line               orb.LineString
	distance           float64
}

func osrmSteps(steps ...stepFixture) []osrmStep {
	out := make([]osrmStep, len(steps))
	for i, s := range steps {
		out[i] = osrmStep{
			Distance: s.distance,
			Duration: s.distance / 10,
			Geometry: encodePolyline(s.line),
			Name:     s.name,
			Maneuver: osrmManeuver{Type: s.typ, Modifier: s.modifier},
		}
	}
	return out
}

func newTestOSRM(t *testing.T, handler http.HandlerFunc) *OSRM {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOSRM(NavConfig{OSRMURL: srv.URL}, zaptest.NewLogger(t))
}

func TestOSRMRoute(t *testing.T) {
	resp := osrmResponse{
		Code: "Ok",
		Routes: []osrmRoute{
			{
				Distance: 1400000,
				Duration: 84000,
				Geometry: encodePolyline(orb.LineString{ptA, ptB, ptC, ptD}),
				Legs: []osrmLeg{{
					Summary: "NH48",
					Steps: osrmSteps(
						stepFixture{"depart", "", "Janpath", orb.LineString{ptA, ptB, ptC}, 500},
						stepFixture{"turn", "right", "NH48", orb.LineString{ptC, ptD}, 1399500},
						stepFixture{"arrive", "", "", orb.LineString{ptD, ptD}, 0},
					),
				}},
			},
			{
				Distance: 1450000,
				Duration: 90000,
				Geometry: encodePolyline(orb.LineString{ptA, ptD}),
			},
		},
	}

	o := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/route/v1/driving/77.209000,28.613900;72.877700,19.076000"
		if r.URL.Path != wantPath {
			t.Errorf("path = %s, want %s", r.URL.Path, wantPath)
		}
		q := r.URL.Query()
		if q.Get("alternatives") != "true" || q.Get("steps") != "true" || q.Get("overview") != "full" {
			t.Errorf("unexpected query %v", q)
		}
		json.NewEncoder(w).Encode(resp)
	})

	routes, err := o.Route(context.Background(), delhiMumbai)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("len(routes) = %d, want 2", len(routes))
	}

	primary := routes[0]
	if primary.Summary.DistanceMeters != 1400000 || primary.Summary.DurationSeconds != 84000 {
		t.Errorf("Summary = %+v", primary.Summary)
	}
	if primary.Name != "NH48" {
		t.Errorf("Name = %q, want NH48", primary.Name)
	}
	if len(primary.Geometry) != 4 {
		t.Fatalf("len(Geometry) = %d, want 4", len(primary.Geometry))
	}

	type step struct {
		Type  string
		Text  string
		Index int
	}
	var got []step
	for _, instr := range primary.Instructions {
		got = append(got, step{instr.Type, instr.Text, instr.Index})
	}
	want := []step{
		{ManeuverHead, "Head north on Janpath", 0},
		{ManeuverRight, "Turn right onto NH48", 2},
		{ManeuverDestinationReached, "You have arrived at your destination", 3},
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("instructions mismatch:\n%s", strings.Join(diff, "\n"))
	}

	p, ok := primary.StartPoint(primary.Instructions[1])
	if !ok || !closeTo(p, ptC) {
		t.Errorf("StartPoint(step 1) = %v, %v, want %v", p, ok, ptC)
	}
}

func TestOSRMRoute_MultiLeg(t *testing.T) {
	resp := osrmResponse{
		Code: "Ok",
		Routes: []osrmRoute{{
			Distance: 3000,
			Duration: 300,
			Geometry: encodePolyline(orb.LineString{ptA, ptB, ptC}),
			Legs: []osrmLeg{
				{Summary: "Janpath", Steps: osrmSteps(
					stepFixture{"depart", "", "Janpath", orb.LineString{ptA, ptB}, 1000},
					stepFixture{"arrive", "", "Janpath", orb.LineString{ptB, ptB}, 0},
				)},
				{Summary: "Rajpath", Steps: osrmSteps(
					stepFixture{"depart", "", "Rajpath", orb.LineString{ptB, ptC}, 2000},
					stepFixture{"arrive", "", "Rajpath", orb.LineString{ptC, ptC}, 0},
				)},
			},
		}},
	}
	o := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(resp)
	})

	routes, err := o.Route(context.Background(), []waypoint.Coordinates{{Lat: 28.6, Lon: 77.2}, {Lat: 28.61, Lon: 77.21}, {Lat: 28.62, Lon: 77.22}})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	var types []string
	var indices []int
	for _, instr := range routes[0].Instructions {
		types = append(types, instr.Type)
		indices = append(indices, instr.Index)
	}
	wantTypes := []string{ManeuverHead, ManeuverWaypointReached, ManeuverContinue, ManeuverDestinationReached}
	wantIndices := []int{0, 1, 1, 2}
	if diff := pretty.Diff(types, wantTypes); len(diff) > 0 {
		t.Errorf("types mismatch:\n%s", strings.Join(diff, "\n"))
	}
	if diff := pretty.Diff(indices, wantIndices); len(diff) > 0 {
		t.Errorf("indices mismatch:\n%s", strings.Join(diff, "\n"))
	}
	if routes[0].Name != "Janpath, Rajpath" {
		t.Errorf("Name = %q", routes[0].Name)
	}
}

func TestOSRMRoute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    string
	}{
		{"no route", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code": "NoRoute", "message": "Impossible route between points"}`)
		}, FailureNoRoute},
		{"no segment", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code": "NoSegment", "message": "Could not find a matching segment"}`)
		}, FailureNoRoute},
		{"empty routes", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": "Ok", "routes": []}`)
		}, FailureNoRoute},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `<html>bad gateway</html>`)
		}, FailureNetwork},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": "Ok", "routes": [`)
		}, FailureMalformed},
		{"bad geometry", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code": "Ok", "routes": [{"distance": 1, "duration": 1, "geometry": "_p~iF~ps|U_ulLnnqC_mqN"}]}`)
		}, FailureMalformed},
		{"invalid query", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code": "InvalidQuery", "message": "Query string malformed"}`)
		}, FailureMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOSRM(t, tt.handler)
			_, err := o.Route(context.Background(), delhiMumbai)
			var failure *RoutingFailure
			if !errors.As(err, &failure) {
				t.Fatalf("err = %v, want *RoutingFailure", err)
			}
			if failure.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", failure.Kind, tt.kind)
			}
			if !errors.Is(err, ErrRoutingFailure) {
				t.Errorf("errors.Is(err, ErrRoutingFailure) = false")
			}
		})
	}
}

func TestOSRMRoute_NeedsTwoPoints(t *testing.T) {
	o := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request")
	})
	_, err := o.Route(context.Background(), delhiMumbai[:1])
	if !errors.Is(err, ErrRoutingFailure) {
		t.Errorf("err = %v, want routing failure", err)
	}
}

func newTestGoogle(t *testing.T, handler http.HandlerFunc) *Google {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewGoogle(NavConfig{GoogleAPIKey: "AIza-test"}, zaptest.NewLogger(t), maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	return g
}

func TestGoogleRoute(t *testing.T) {
	body := fmt.Sprintf(`{
  "status": "OK",
  "routes": [{
    "summary": "NH48",
    "overview_polyline": {"points": %q},
    "legs": [{
      "distance": {"text": "1,400 km", "value": 1400000},
      "duration": {"text": "23 hours 20 mins", "value": 84000},
      "steps": [
        {"html_instructions": "Head <b>north</b> on <b>Janpath</b>", "distance": {"text": "1 km", "value": 1000}, "duration": {"text": "2 mins", "value": 120}, "polyline": {"points": %q}, "travel_mode": "DRIVING"},
        {"html_instructions": "Turn <b>right</b> onto <b>NH48</b>", "maneuver": "turn-right", "distance": {"text": "1,399 km", "value": 1399000}, "duration": {"text": "23 hours", "value": 83880}, "polyline": {"points": %q}, "travel_mode": "DRIVING"}
      ]
    }]
  }]
}`,
		encodePolyline(orb.LineString{ptA, ptB, ptC, ptD}),
		encodePolyline(orb.LineString{ptA, ptB, ptC}),
		encodePolyline(orb.LineString{ptC, ptD}),
	)

	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/directions/json") {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("alternatives") != "true" || q.Get("mode") != "driving" {
			t.Errorf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	routes, err := g.Route(context.Background(), delhiMumbai)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("len(routes) = %d, want 1", len(routes))
	}
	r := routes[0]
	if r.Summary.DistanceMeters != 1400000 || r.Summary.DurationSeconds != 84000 {
		t.Errorf("Summary = %+v", r.Summary)
	}
	if len(r.Geometry) != 4 {
		t.Errorf("len(Geometry) = %d, want 4", len(r.Geometry))
	}

	var texts []string
	var indices []int
	for _, instr := range r.Instructions {
		texts = append(texts, instr.Text)
		indices = append(indices, instr.Index)
	}
	wantTexts := []string{"Head north on Janpath", "Turn right onto NH48", "You have arrived at your destination"}
	if diff := pretty.Diff(texts, wantTexts); len(diff) > 0 {
		t.Errorf("texts mismatch:\n%s", strings.Join(diff, "\n"))
	}
	if diff := pretty.Diff(indices, []int{0, 2, 3}); len(diff) > 0 {
		t.Errorf("indices mismatch:\n%s", strings.Join(diff, "\n"))
	}
}

func TestGoogleRoute_ZeroResults(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status": "ZERO_RESULTS", "routes": []}`)
	})
	_, err := g.Route(context.Background(), delhiMumbai)
	var failure *RoutingFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want *RoutingFailure", err)
	}
	if failure.Kind != FailureNoRoute {
		t.Errorf("Kind = %q, want %q", failure.Kind, FailureNoRoute)
	}
}

func TestNewGoogle_RequiresKey(t *testing.T) {
	if _, err := NewGoogle(NavConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Error("NewGoogle without key succeeded")
	}
}
