package session

import (
	"github.com/nwah/tripplanner/nav"
	"github.com/nwah/tripplanner/waypoint"
)

// View is everything a client needs to draw the session
type View struct {
	State     State               `json:"state"`
	Waypoints []waypoint.Waypoint `json:"waypoints"`

	// primary route summary; absent unless the state is route_ready
	Summary      *nav.Summary      `json:"summary,omitempty"`
	Distance     string            `json:"distance"`
	Duration     string            `json:"duration"`
	Roads        string            `json:"roads,omitempty"`
	Alternatives []nav.Alternative `json:"alternatives"`
	Active       int               `json:"activeAlternative"`
	Instructions []nav.Instruction `json:"instructions"`
	CurrentStep  *int              `json:"currentStep"`
	Error        string            `json:"error,omitempty"`

	SuggestionsFor string      `json:"suggestionsFor,omitempty"`
	Suggestions    []nav.Place `json:"suggestions"`
	Nearby         []nav.Place `json:"nearby"`
	Tracking       bool        `json:"tracking"`
}

// View returns a snapshot of the session
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:          c.state,
		Waypoints:      c.store.Waypoints(),
		Alternatives:   []nav.Alternative{},
		Instructions:   []nav.Instruction{},
		SuggestionsFor: c.suggestOwner,
		Suggestions:    append([]nav.Place{}, c.suggestions...),
		Nearby:         append([]nav.Place{}, c.nearby...),
		Tracking:       c.tracking != nil,
	}

	st := c.engine.State()
	switch c.state {
	case StateRouteReady:
		if len(st.Routes) == 0 {
			break
		}
		primary := st.Routes[0].Summary
		v.Summary = &primary
		v.Distance = nav.FormatDistance(primary.DistanceMeters)
		v.Duration = nav.FormatDuration(primary.DurationSeconds)
		v.Alternatives = nav.Alternatives(st.Routes)
		v.Active = st.Active
		active := st.Routes[st.Active]
		v.Roads = nav.RoadsSummary(active.Instructions)
		v.Instructions = append(v.Instructions, active.Instructions...)
		if step, ok := c.tracker.Current(); ok {
			v.CurrentStep = &step
		}
	case StateRouteFailed:
		if st.Err != nil {
			v.Error = st.Err.Error()
		}
	}
	return v
}
