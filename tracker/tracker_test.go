package tracker

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap/zaptest"

	"github.com/nwah/tripplanner/nav"
)

// routeThrough builds a route with one instruction starting at each point.
func routeThrough(points ...orb.Point) nav.RouteResult {
	r := nav.RouteResult{Geometry: orb.LineString(points)}
	for i := range points {
		r.Instructions = append(r.Instructions, nav.Instruction{Type: nav.ManeuverContinue, Index: i})
	}
	return r
}

var origin = orb.Point{77.209, 28.6139}

func at(bearing, meters float64) orb.Point {
	return geo.PointAtBearingAndDistance(origin, bearing, meters)
}

func TestUpdateStep_ProximityCutoff(t *testing.T) {
	route := routeThrough(
		at(90, 2000),  // step 0
		at(270, 1500), // step 1
		at(180, 400),  // step 2
		at(0, 250),    // step 3
		at(0, 3000),   // step 4
	)

	step, ok := UpdateStep(origin, route, DefaultThreshold)
	if !ok || step != 3 {
		t.Errorf("UpdateStep() = %d, %v, want 3, true", step, ok)
	}

	ix := NewIndex(route)
	step, ok = ix.Nearest(origin, DefaultThreshold)
	if !ok || step != 3 {
		t.Errorf("Nearest() = %d, %v, want 3, true", step, ok)
	}
}

func TestUpdateStep_NoStepBeyondThreshold(t *testing.T) {
	route := routeThrough(at(0, 500), at(90, 500), at(180, 500), at(270, 500))

	if step, ok := UpdateStep(origin, route, DefaultThreshold); ok {
		t.Errorf("UpdateStep() = %d, want no step", step)
	}
	if step, ok := NewIndex(route).Nearest(origin, DefaultThreshold); ok {
		t.Errorf("Nearest() = %d, want no step", step)
	}
}

func TestUpdateStep_EmptyRoute(t *testing.T) {
	if _, ok := UpdateStep(origin, nav.RouteResult{}, DefaultThreshold); ok {
		t.Error("UpdateStep on empty route found a step")
	}
	if _, ok := NewIndex(nav.RouteResult{}).Nearest(origin, DefaultThreshold); ok {
		t.Error("Nearest on empty route found a step")
	}
}

func TestUpdateStep_TieGoesToLowerIndex(t *testing.T) {
	p := at(45, 100)
	route := routeThrough(at(200, 2000), p, p)

	if step, _ := UpdateStep(origin, route, DefaultThreshold); step != 1 {
		t.Errorf("UpdateStep() = %d, want 1", step)
	}
	if step, _ := NewIndex(route).Nearest(origin, DefaultThreshold); step != 1 {
		t.Errorf("Nearest() = %d, want 1", step)
	}
}

func TestIndex_MatchesLinearScan(t *testing.T) {
	var points []orb.Point
	for i := 0; i < 40; i++ {
		points = append(points, at(float64(i*37%360), float64(50+i*23)))
	}
	route := routeThrough(points...)
	ix := NewIndex(route)
	if ix.Len() != len(points) {
		t.Fatalf("Len() = %d, want %d", ix.Len(), len(points))
	}

	for i := 0; i < 60; i++ {
		pos := at(float64(i*53%360), float64(i*17))
		wantStep, wantOK := UpdateStep(pos, route, DefaultThreshold)
		gotStep, gotOK := ix.Nearest(pos, DefaultThreshold)
		if gotStep != wantStep || gotOK != wantOK {
			t.Errorf("position %d: Nearest() = %d, %v, linear scan = %d, %v", i, gotStep, gotOK, wantStep, wantOK)
		}
	}
}

func TestIndex_SkipsOutOfRangeInstructions(t *testing.T) {
	route := routeThrough(at(0, 100))
	route.Instructions = append(route.Instructions, nav.Instruction{Index: 99})

	ix := NewIndex(route)
	if ix.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ix.Len())
	}
}

func TestTracker(t *testing.T) {
	tr := New(0, zaptest.NewLogger(t))

	if _, ok := tr.Update(origin); ok {
		t.Error("step found without an active route")
	}

	// setting a route re-evaluates the last position
	tr.SetRoute(routeThrough(at(0, 1000), at(90, 120)))
	if step, ok := tr.Current(); !ok || step != 1 {
		t.Errorf("Current() = %d, %v, want 1, true", step, ok)
	}

	if step, ok := tr.Update(at(0, 1050)); !ok || step != 0 {
		t.Errorf("Update() = %d, %v, want 0, true", step, ok)
	}
	if _, ok := tr.Update(at(180, 5000)); ok {
		t.Error("step found far off route")
	}

	tr.Update(origin)
	tr.ClearRoute()
	if _, ok := tr.Current(); ok {
		t.Error("step kept after ClearRoute")
	}

	tr.Reset()
	if _, ok := tr.Position(); ok {
		t.Error("position kept after Reset")
	}
}
