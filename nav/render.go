package nav

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSONRenderer keeps the routes last drawn as a FeatureCollection: one
// LineString per route, plus a Point for each instruction of the active one.
type GeoJSONRenderer struct {
	mu sync.RWMutex
	fc *geojson.FeatureCollection
}

// NewGeoJSONRenderer creates an empty renderer
func NewGeoJSONRenderer() *GeoJSONRenderer {
	return &GeoJSONRenderer{}
}

// Render replaces the drawn routes
func (r *GeoJSONRenderer) Render(routes []RouteResult, active int) {
	fc := geojson.NewFeatureCollection()
	var bound orb.Bound
	for i, rt := range routes {
		if len(rt.Geometry) == 0 {
			continue
		}
		f := geojson.NewFeature(rt.Geometry)
		f.Properties["kind"] = "route"
		f.Properties["index"] = i
		f.Properties["primary"] = i == 0
		f.Properties["active"] = i == active
		f.Properties["distanceMeters"] = rt.Summary.DistanceMeters
		f.Properties["durationSeconds"] = rt.Summary.DurationSeconds
		fc.Append(f)

		if i == 0 {
			bound = rt.Geometry.Bound()
		} else {
			bound = bound.Union(rt.Geometry.Bound())
		}
	}

	if active >= 0 && active < len(routes) {
		rt := routes[active]
		for step, instr := range rt.Instructions {
			p, ok := rt.StartPoint(instr)
			if !ok {
				continue
			}
			f := geojson.NewFeature(p)
			f.Properties["kind"] = "instruction"
			f.Properties["step"] = step
			f.Properties["type"] = instr.Type
			f.Properties["text"] = instr.Text
			fc.Append(f)
		}
	}
	if len(fc.Features) > 0 {
		fc.BBox = geojson.NewBBox(bound)
	}

	r.mu.Lock()
	r.fc = fc
	r.mu.Unlock()
}

// Clear removes everything drawn
func (r *GeoJSONRenderer) Clear() {
	r.mu.Lock()
	r.fc = nil
	r.mu.Unlock()
}

// FeatureCollection returns what is currently drawn. An empty collection is
// returned when nothing is.
func (r *GeoJSONRenderer) FeatureCollection() *geojson.FeatureCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fc == nil {
		return geojson.NewFeatureCollection()
	}
	return r.fc
}

// Drawn reports whether any route is on the surface
func (r *GeoJSONRenderer) Drawn() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fc != nil && len(r.fc.Features) > 0
}
