package nav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"github.com/nwah/tripplanner/waypoint"
)

// Router computes a primary route and ranked alternatives through an
// ordered list of at least two coordinates.
type Router interface {
	Route(ctx context.Context, coords []waypoint.Coordinates) ([]RouteResult, error)
}

// Kinds of routing failures
const (
	FailureNetwork   = "network"
	FailureNoRoute   = "no_route"
	FailureMalformed = "malformed"
)

// ErrRoutingFailure matches every RoutingFailure with errors.Is
var ErrRoutingFailure = errors.New("routing failure")

// RoutingFailure is returned when no route could be obtained
type RoutingFailure struct {
	Kind    string
	Message string
	Err     error
}

func (e *RoutingFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("routing %s: %s", e.Kind, e.Message)
}

func (e *RoutingFailure) Unwrap() error { return e.Err }

func (e *RoutingFailure) Is(target error) bool { return target == ErrRoutingFailure }

type osrmManeuver struct {
	Type         string     `json:"type"`
	Modifier     string     `json:"modifier"`
	BearingAfter int        `json:"bearing_after"`
	Exit         int        `json:"exit"`
	Location     [2]float64 `json:"location"`
}

type osrmStep struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Geometry string       `json:"geometry"`
	Name     string       `json:"name"`
	Ref      string       `json:"ref"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmLeg struct {
	Steps    []osrmStep `json:"steps"`
	Summary  string     `json:"summary"`
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
}

type osrmRoute struct {
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Geometry string    `json:"geometry"`
	Legs     []osrmLeg `json:"legs"`
}

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

// OSRM is a Router backed by an OSRM server
type OSRM struct {
	baseURL   string
	profile   Profile
	userAgent string
	client    *http.Client
	logger    *zap.Logger
}

// NewOSRM creates an OSRM router for the driving profile
func NewOSRM(cfg NavConfig, logger *zap.Logger) *OSRM {
	return &OSRM{
		baseURL:   strings.TrimRight(cfg.OSRMURL, "/"),
		profile:   DefaultProfile,
		userAgent: userAgent(cfg),
		client:    newHTTPClient(cfg),
		logger:    logger,
	}
}

// Route requests driving routes with alternatives and steps
func (o *OSRM) Route(ctx context.Context, coords []waypoint.Coordinates) ([]RouteResult, error) {
	if len(coords) < 2 {
		return nil, &RoutingFailure{Kind: FailureNoRoute, Message: "at least two coordinates are required"}
	}

	locs := make([]string, len(coords))
	for i, c := range coords {
		locs[i] = fmt.Sprintf("%f,%f", c.Lon, c.Lat)
	}
	params := url.Values{
		"alternatives": {"true"},
		"steps":        {"true"},
		"overview":     {"full"},
		"geometries":   {"polyline"},
	}
	apiURL := fmt.Sprintf("%s/route/v1/%s/%s?%s", o.baseURL, o.profile, strings.Join(locs, ";"), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, &RoutingFailure{Kind: FailureNetwork, Message: "building request", Err: err}
	}
	req.Header.Set("User-Agent", o.userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &RoutingFailure{Kind: FailureNetwork, Message: "error making request to OSRM", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RoutingFailure{Kind: FailureNetwork, Message: "error reading response body", Err: err}
	}

	var oResp osrmResponse
	if err := json.Unmarshal(body, &oResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &RoutingFailure{Kind: FailureNetwork, Message: fmt.Sprintf("OSRM returned status %d", resp.StatusCode)}
		}
		return nil, &RoutingFailure{Kind: FailureMalformed, Message: "error decoding response", Err: err}
	}

	// Handle specific error codes
	switch oResp.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return nil, &RoutingFailure{Kind: FailureNoRoute, Message: oResp.Message}
	default:
		return nil, &RoutingFailure{Kind: FailureMalformed, Message: fmt.Sprintf("%s: %s", oResp.Code, oResp.Message)}
	}
	if len(oResp.Routes) == 0 {
		return nil, &RoutingFailure{Kind: FailureNoRoute, Message: "no route found"}
	}

	results := make([]RouteResult, 0, len(oResp.Routes))
	for _, r := range oResp.Routes {
		result, err := convertOSRMRoute(r)
		if err != nil {
			return nil, &RoutingFailure{Kind: FailureMalformed, Message: "invalid route geometry", Err: err}
		}
		results = append(results, result)
	}

	o.logger.Debug("route", zap.Int("waypoints", len(coords)), zap.Int("routes", len(results)))
	return results, nil
}

func convertOSRMRoute(r osrmRoute) (RouteResult, error) {
	geometry, err := decodePolyline(r.Geometry)
	if err != nil {
		return RouteResult{}, err
	}

	result := RouteResult{
		Summary: Summary{
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
		},
	}

	var stepGeometry orb.LineString
	offset := 0
	var summaries []string
	for li, leg := range r.Legs {
		if leg.Summary != "" {
			summaries = append(summaries, leg.Summary)
		}
		lastLeg := li == len(r.Legs)-1
		for si, step := range leg.Steps {
			// intermediate legs end with an arrive step that repeats the
			// next leg's depart; keep only the final arrive and first depart
			if step.Maneuver.Type == "arrive" && !lastLeg {
				category := ManeuverWaypointReached
				result.Instructions = append(result.Instructions, newOSRMInstruction(category, step, offset))
				continue
			}
			if step.Maneuver.Type == "depart" && li > 0 && si == 0 {
				category := osrmCategory(osrmManeuver{Type: "continue", Modifier: step.Maneuver.Modifier}, lastLeg)
				result.Instructions = append(result.Instructions, newOSRMInstruction(category, step, offset))
			} else {
				category := osrmCategory(step.Maneuver, lastLeg)
				result.Instructions = append(result.Instructions, newOSRMInstruction(category, step, offset))
			}

			line, err := decodePolyline(step.Geometry)
			if err != nil {
				return RouteResult{}, err
			}
			if len(line) > 1 {
				offset += len(line) - 1
			}
			stepGeometry = joinLines(stepGeometry, line)
		}
	}
	result.Name = strings.Join(summaries, ", ")

	if len(geometry) == 0 {
		geometry = stepGeometry
	}
	result.Geometry = geometry
	for i := range result.Instructions {
		if last := len(geometry) - 1; result.Instructions[i].Index > last {
			result.Instructions[i].Index = max(last, 0)
		}
	}
	return result, nil
}

func newOSRMInstruction(category string, step osrmStep, index int) Instruction {
	road := step.Name
	if road == "" {
		road = step.Ref
	}
	return Instruction{
		Type:            category,
		Text:            instructionText(category, step.Maneuver, road),
		Road:            road,
		Index:           index,
		DistanceMeters:  step.Distance,
		DurationSeconds: step.Duration,
		Exit:            step.Maneuver.Exit,
	}
}

// Google is a Router backed by the Google Directions API
type Google struct {
	client *maps.Client
	logger *zap.Logger
}

// NewGoogle creates a Google Directions router. Extra client options, such
// as maps.WithBaseURL, are passed through.
func NewGoogle(cfg NavConfig, logger *zap.Logger, opts ...maps.ClientOption) (*Google, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("google router requires an API key")
	}
	opts = append([]maps.ClientOption{
		maps.WithAPIKey(cfg.GoogleAPIKey),
		maps.WithHTTPClient(newHTTPClient(cfg)),
	}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("maps.NewClient: %w", err)
	}
	return &Google{client: client, logger: logger}, nil
}

// Route requests driving directions with alternatives
func (g *Google) Route(ctx context.Context, coords []waypoint.Coordinates) ([]RouteResult, error) {
	if len(coords) < 2 {
		return nil, &RoutingFailure{Kind: FailureNoRoute, Message: "at least two coordinates are required"}
	}

	dr := &maps.DirectionsRequest{
		Origin:       coords[0].String(),
		Destination:  coords[len(coords)-1].String(),
		Mode:         maps.TravelModeDriving,
		Alternatives: true,
	}
	for _, c := range coords[1 : len(coords)-1] {
		dr.Waypoints = append(dr.Waypoints, c.String())
	}

	routesResp, _, err := g.client.Directions(ctx, dr)
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") || strings.Contains(err.Error(), "NOT_FOUND") {
			return nil, &RoutingFailure{Kind: FailureNoRoute, Message: "no route found", Err: err}
		}
		return nil, &RoutingFailure{Kind: FailureNetwork, Message: "directions error", Err: err}
	}
	if len(routesResp) == 0 {
		return nil, &RoutingFailure{Kind: FailureNoRoute, Message: "no routes"}
	}

	results := make([]RouteResult, 0, len(routesResp))
	for _, rt := range routesResp {
		result, err := convertGoogleRoute(rt)
		if err != nil {
			return nil, &RoutingFailure{Kind: FailureMalformed, Message: "invalid route geometry", Err: err}
		}
		results = append(results, result)
	}
	g.logger.Debug("route", zap.Int("waypoints", len(coords)), zap.Int("routes", len(results)))
	return results, nil
}

func convertGoogleRoute(rt maps.Route) (RouteResult, error) {
	result := RouteResult{Name: rt.Summary}
	for li, leg := range rt.Legs {
		result.Summary.DistanceMeters += float64(leg.Distance.Meters)
		result.Summary.DurationSeconds += leg.Duration.Seconds()

		for si, step := range leg.Steps {
			points, err := step.Polyline.Decode()
			if err != nil {
				return RouteResult{}, err
			}
			line := make(orb.LineString, len(points))
			for i, p := range points {
				line[i] = orb.Point{p.Lng, p.Lat}
			}

			index := len(result.Geometry)
			if index > 0 && len(line) > 0 && result.Geometry[index-1] == line[0] {
				index--
			}
			category := googleCategory(step.Maneuver, li == 0 && si == 0)
			result.Instructions = append(result.Instructions, Instruction{
				Type:            category,
				Text:            stripHTML(step.HTMLInstructions),
				Index:           index,
				DistanceMeters:  float64(step.Distance.Meters),
				DurationSeconds: step.Duration.Seconds(),
			})
			result.Geometry = joinLines(result.Geometry, line)
		}

		if li < len(rt.Legs)-1 {
			result.Instructions = append(result.Instructions, Instruction{
				Type:  ManeuverWaypointReached,
				Text:  instructionText(ManeuverWaypointReached, osrmManeuver{}, ""),
				Index: max(len(result.Geometry)-1, 0),
			})
		}
	}

	if len(rt.Legs) > 0 {
		result.Instructions = append(result.Instructions, Instruction{
			Type:  ManeuverDestinationReached,
			Text:  instructionText(ManeuverDestinationReached, osrmManeuver{}, ""),
			Index: max(len(result.Geometry)-1, 0),
		})
	}
	return result, nil
}
