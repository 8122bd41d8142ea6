package nav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Geocoder translates free text to places and coordinates to labels.
type Geocoder interface {
	Search(ctx context.Context, query string, minLength int) ([]Place, error)
	Lookup(ctx context.Context, query string) (Place, error)
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// ErrNoResults is returned when no geocoding results are found
type ErrNoResults struct {
	Query string
}

func (e *ErrNoResults) Error() string {
	return fmt.Sprintf("no results found for query: %s", e.Query)
}

// ErrGeocodeFailure matches every GeocodeFailure with errors.Is
var ErrGeocodeFailure = errors.New("geocode failure")

// GeocodeFailure is returned when a lookup service is unreachable or
// returns malformed data.
type GeocodeFailure struct {
	Op  string
	Err error
}

func (e *GeocodeFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GeocodeFailure) Unwrap() error { return e.Err }

func (e *GeocodeFailure) Is(target error) bool { return target == ErrGeocodeFailure }

type nominatimAddress struct {
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
}

type nominatimResponse struct {
	PlaceID     int64             `json:"place_id"`
	DisplayName string            `json:"display_name"`
	Class       string            `json:"class"`
	Type        string            `json:"type"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Address     *nominatimAddress `json:"address"`
	Error       string            `json:"error"`
}

// Nominatim is a Geocoder backed by a Nominatim server
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewNominatim creates a Nominatim client. Requests are throttled to
// cfg.RequestsPerSecond; zero disables throttling.
func NewNominatim(cfg NavConfig, logger *zap.Logger) *Nominatim {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(cfg.NominatimURL, "/"),
		userAgent: userAgent(cfg),
		client:    newHTTPClient(cfg),
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

func userAgent(cfg NavConfig) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}
	return "tripplanner/1.0"
}

func newHTTPClient(cfg NavConfig) *http.Client {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Search performs forward geocoding. Queries shorter than minLength yield
// an empty result without a request.
func (n *Nominatim) Search(ctx context.Context, query string, minLength int) ([]Place, error) {
	query = strings.TrimSpace(query)
	if minLength <= 0 {
		minLength = DefaultMinQueryLength
	}
	if utf8.RuneCountInString(query) < minLength {
		return nil, nil
	}
	results, err := n.search(ctx, query, DefaultSuggestionLimit)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Lookup returns the single best match for a query.
func (n *Nominatim) Lookup(ctx context.Context, query string) (Place, error) {
	results, err := n.search(ctx, strings.TrimSpace(query), 1)
	if err != nil {
		return Place{}, err
	}
	return results[0], nil
}

func (n *Nominatim) search(ctx context.Context, query string, limit int) ([]Place, error) {
	// Build query parameters
	params := url.Values{
		"q":              {query},
		"format":         {"json"},
		"limit":          {strconv.Itoa(limit)},
		"addressdetails": {"1"},
	}
	apiURL := fmt.Sprintf("%s/search?%s", n.baseURL, params.Encode())

	var nominatimResults []nominatimResponse
	if err := n.getJSON(ctx, apiURL, &nominatimResults); err != nil {
		return nil, &GeocodeFailure{Op: "search", Err: err}
	}

	if len(nominatimResults) == 0 {
		return nil, &ErrNoResults{Query: query}
	}

	// Convert nominatim results to our format
	results := make([]Place, 0, len(nominatimResults))
	for _, result := range nominatimResults {
		lat, err := parseFloat(result.Lat)
		if err != nil {
			return nil, &GeocodeFailure{Op: "search", Err: fmt.Errorf("error parsing latitude: %v", err)}
		}
		lon, err := parseFloat(result.Lon)
		if err != nil {
			return nil, &GeocodeFailure{Op: "search", Err: fmt.Errorf("error parsing longitude: %v", err)}
		}
		category := result.Type
		if category == "" {
			category = result.Class
		}
		results = append(results, Place{
			ID:       result.PlaceID,
			Label:    result.DisplayName,
			Lat:      lat,
			Lon:      lon,
			Category: category,
		})
	}

	n.logger.Debug("geocode", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

// Reverse returns the locality name for a coordinate, falling back to a
// generic label when the service names no town, village or city.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{
		"format": {"json"},
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
	apiURL := fmt.Sprintf("%s/reverse?%s", n.baseURL, params.Encode())

	var result nominatimResponse
	if err := n.getJSON(ctx, apiURL, &result); err != nil {
		return "", &GeocodeFailure{Op: "reverse", Err: err}
	}
	if result.Error != "" {
		return "", &GeocodeFailure{Op: "reverse", Err: fmt.Errorf("nominatim: %s", result.Error)}
	}
	if result.Address == nil {
		return "", &GeocodeFailure{Op: "reverse", Err: errors.New("invalid geocoding response: no address")}
	}
	return localityName(*result.Address), nil
}

func localityName(addr nominatimAddress) string {
	switch {
	case addr.Town != "":
		return addr.Town
	case addr.Village != "":
		return addr.Village
	case addr.City != "":
		return addr.City
	default:
		return FallbackLocationLabel
	}
}

func (n *Nominatim) getJSON(ctx context.Context, apiURL string, v interface{}) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error making request to Nominatim: %w", err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim API returned status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
