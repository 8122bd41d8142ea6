package nav

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/paulmach/osm"
	"go.uber.org/zap"
)

// PlaceFinder discovers points of interest around a coordinate.
type PlaceFinder interface {
	Nearby(ctx context.Context, lat, lon float64, radiusMeters int) []Place
}

// categoryTags are the tag keys a POI category is read from, in order
var categoryTags = []string{"amenity", "shop", "tourism", "leisure", "historic"}

// Overpass is a PlaceFinder backed by the Overpass API
type Overpass struct {
	apiURL    string
	userAgent string
	client    *http.Client
	denylist  map[string]bool
	logger    *zap.Logger
}

// NewOverpass creates an Overpass client. Places whose category appears in
// denylist are dropped from results.
func NewOverpass(cfg NavConfig, denylist []string, logger *zap.Logger) *Overpass {
	deny := make(map[string]bool, len(denylist))
	for _, c := range denylist {
		deny[strings.ToLower(c)] = true
	}
	return &Overpass{
		apiURL:    cfg.OverpassURL,
		userAgent: userAgent(cfg),
		client:    newHTTPClient(cfg),
		denylist:  deny,
		logger:    logger,
	}
}

func nearbyQuery(lat, lon float64, radius int) string {
	around := fmt.Sprintf("(around:%d,%f,%f)", radius, lat, lon)
	filters := []string{
		`node["amenity"="cafe"]`,
		`node["amenity"="restaurant"]`,
		`node["amenity"="bar"]`,
		`node["shop"]`,
		`node["amenity"="pharmacy"]`,
		`node["tourism"="attraction"]`,
		`node["tourism"="hotel"]`,
		`node["leisure"="park"]`,
		`node["historic"]`,
	}
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	for _, f := range filters {
		b.WriteString("  " + f + around + ";\n")
	}
	b.WriteString(");\nout body;\n")
	return b.String()
}

// Nearby returns named POIs within radius, grouped by category with the
// priority categories first. Any failure yields an empty list.
func (o *Overpass) Nearby(ctx context.Context, lat, lon float64, radiusMeters int) []Place {
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadius
	}
	data, err := o.fetch(ctx, nearbyQuery(lat, lon, radiusMeters))
	if err != nil {
		o.logger.Warn("nearby search failed", zap.Error(err), zap.Float64("lat", lat), zap.Float64("lon", lon))
		return []Place{}
	}
	places := o.placesFromNodes(data.Nodes)
	o.logger.Debug("nearby", zap.Int("nodes", len(data.Nodes)), zap.Int("places", len(places)))
	return groupByCategory(places)
}

func (o *Overpass) fetch(ctx context.Context, query string) (*osm.OSM, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", o.userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request to Overpass: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("overpass API returned status: %d", resp.StatusCode)
	}

	data := &osm.OSM{}
	if err := json.NewDecoder(resp.Body).Decode(data); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return data, nil
}

func nodeCategory(tags osm.Tags) string {
	for _, key := range categoryTags {
		if v := tags.Find(key); v != "" {
			if v == "yes" {
				return key
			}
			return v
		}
	}
	return "unknown"
}

func (o *Overpass) placesFromNodes(nodes osm.Nodes) []Place {
	type dedupKey struct {
		name, category string
		lat, lon       float64
	}
	seenID := make(map[osm.NodeID]bool, len(nodes))
	seenName := make(map[dedupKey]bool, len(nodes))

	places := make([]Place, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || seenID[n.ID] {
			continue
		}
		seenID[n.ID] = true

		name := n.Tags.Find("name")
		if name == "" {
			continue
		}
		category := nodeCategory(n.Tags)
		if o.denylist[strings.ToLower(category)] {
			continue
		}
		key := dedupKey{name: strings.ToLower(name), category: category, lat: n.Lat, lon: n.Lon}
		if seenName[key] {
			continue
		}
		seenName[key] = true

		places = append(places, Place{
			ID:       int64(n.ID),
			Label:    name,
			Lat:      n.Lat,
			Lon:      n.Lon,
			Category: category,
		})
	}
	return places
}

// groupByCategory orders places by CategoryPriority, then the remaining
// categories alphabetically. Order within a category is preserved.
func groupByCategory(places []Place) []Place {
	groups := make(map[string][]Place)
	var others []string
	for _, p := range places {
		if _, ok := groups[p.Category]; !ok && !isPriority(p.Category) {
			others = append(others, p.Category)
		}
		groups[p.Category] = append(groups[p.Category], p)
	}
	sort.Strings(others)

	out := make([]Place, 0, len(places))
	for _, c := range CategoryPriority {
		out = append(out, groups[c]...)
	}
	for _, c := range others {
		out = append(out, groups[c]...)
	}
	return out
}

func isPriority(category string) bool {
	for _, c := range CategoryPriority {
		if c == category {
			return true
		}
	}
	return false
}
