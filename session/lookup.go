package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nwah/tripplanner/nav"
	"github.com/nwah/tripplanner/waypoint"
)

const nearbyKey = "nearby"

// UpdateLabel sets the free text of a waypoint and schedules a debounced
// suggestion lookup for it. Coordinates are left as they are.
func (c *Controller) UpdateLabel(id, text string) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if err := c.store.UpdateLabel(id, text); err != nil {
		return err
	}

	c.querySeq++
	seq := c.querySeq
	c.latestQuery[id] = seq

	if utf8.RuneCountInString(strings.TrimSpace(text)) < c.cfg.MinQueryLength {
		c.debouncer.Cancel(id)
		if c.suggestOwner == id {
			c.suggestions = nil
		}
		return nil
	}
	c.debouncer.Trigger(id, func() {
		c.fetchSuggestions(id, text, seq)
	})
	return nil
}

// fetchSuggestions runs on the debounce timer
func (c *Controller) fetchSuggestions(id, query string, seq uint64) {
	places, err := c.geocoder.Search(c.ctx, query, c.cfg.MinQueryLength)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	wp, ok := c.store.Get(id)
	if !ok || c.latestQuery[id] != seq || wp.Label != query {
		c.logger.Debug("discarding stale suggestions", zap.String("id", id), zap.String("query", query))
		return
	}

	var noResults *nav.ErrNoResults
	switch {
	case errors.As(err, &noResults):
		places = []nav.Place{}
	case err != nil:
		c.logger.Warn("suggestion lookup failed", zap.String("id", id), zap.Error(err))
		places = nil
	}
	c.suggestions = places
	c.suggestOwner = id
}

// dropSuggestions cancels the pending lookup for id and rejects any in
// flight. Callers hold c.mu.
func (c *Controller) dropSuggestions(id string) {
	c.debouncer.Cancel(id)
	delete(c.latestQuery, id)
	if c.suggestOwner == id {
		c.suggestions = nil
		c.suggestOwner = ""
	}
}

// Suggestions returns the current candidates and the waypoint they belong to
func (c *Controller) Suggestions() (string, []nav.Place) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suggestOwner, append([]nav.Place(nil), c.suggestions...)
}

// SelectSuggestion resolves waypoint id to its suggestion at index
func (c *Controller) SelectSuggestion(id string, index int) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if c.suggestOwner != id || index < 0 || index >= len(c.suggestions) {
		c.logger.Warn("suggestion selection ignored", zap.String("id", id), zap.Int("index", index))
		return ErrNoSuchSuggestion
	}
	place := c.suggestions[index]
	if err := c.store.Resolve(id, place.Label, place.Lat, place.Lon); err != nil {
		return err
	}
	c.dropSuggestions(id)
	c.recordHistory(place.Label)
	c.refresh()
	return nil
}

// UseMyLocation resolves the origin to a position, labelled by reverse
// geocoding. On failure a notice is raised and the intent is unchanged.
func (c *Controller) UseMyLocation(ctx context.Context, lat, lon float64) error {
	if !(waypoint.Coordinates{Lat: lat, Lon: lon}).Valid() {
		c.mu.Lock()
		c.notify(NoticeLocation, "Failed to detect location.", waypoint.ErrInvalidCoordinates)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrLocationUnresolved, waypoint.ErrInvalidCoordinates)
	}

	label, err := c.geocoder.Reverse(ctx, lat, lon)

	if lerr := c.lock(); lerr != nil {
		return lerr
	}
	defer c.mu.Unlock()
	if err != nil {
		c.notify(NoticeLocation, "Failed to detect location.", err)
		return fmt.Errorf("%w: %v", ErrLocationUnresolved, err)
	}

	c.store.EnsureOrigin()
	if err := c.store.Resolve(waypoint.OriginID, label, lat, lon); err != nil {
		return err
	}
	c.dropSuggestions(waypoint.OriginID)
	c.recordHistory(label)
	c.refresh()
	return nil
}

// LoadHistoryItem looks the entry up again and installs the best match as
// the destination, clearing the origin.
func (c *Controller) LoadHistoryItem(ctx context.Context, index int) error {
	entry, err := c.storage.HistoryItem(index)
	if err != nil {
		return err
	}
	place, err := c.geocoder.Lookup(ctx, entry.Query)
	if err != nil {
		c.logger.Warn("loading history item failed", zap.String("query", entry.Query), zap.Error(err))
		return err
	}

	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.store.Resolve(waypoint.DestinationID, place.Label, place.Lat, place.Lon); err != nil {
		return err
	}
	if err := c.store.Unresolve(waypoint.OriginID); err != nil && !errors.Is(err, waypoint.ErrNotFound) {
		return err
	}
	c.dropSuggestions(waypoint.OriginID)
	c.dropSuggestions(waypoint.DestinationID)
	c.refresh()
	return nil
}

// Nearby returns the places around the destination
func (c *Controller) Nearby() []nav.Place {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]nav.Place(nil), c.nearby...)
}

// SelectNearbyPlace makes the nearby place at index the destination
func (c *Controller) SelectNearbyPlace(index int) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.nearby) {
		c.logger.Warn("nearby selection ignored", zap.Int("index", index), zap.Int("places", len(c.nearby)))
		return ErrNoSuchPlace
	}
	place := c.nearby[index]
	if err := c.store.Resolve(waypoint.DestinationID, place.Label, place.Lat, place.Lon); err != nil {
		return err
	}
	c.dropSuggestions(waypoint.DestinationID)
	c.recordHistory(place.Label)
	c.refresh()
	return nil
}

// nearbyCenter is the destination, or the last tracked position when the
// destination is not resolved yet. Callers hold c.mu.
func (c *Controller) nearbyCenter() *waypoint.Coordinates {
	if wp, ok := c.store.Get(waypoint.DestinationID); ok && wp.Resolved() {
		return wp.Coords
	}
	if pos, ok := c.tracker.Position(); ok {
		at := waypoint.FromPoint(pos)
		return &at
	}
	return nil
}

// scheduleNearby refreshes nearby places once the center has been still for
// the debounce interval. Callers hold c.mu.
func (c *Controller) scheduleNearby() {
	if c.places == nil {
		return
	}
	at := c.nearbyCenter()
	if at == nil {
		c.debouncer.Cancel(nearbyKey)
		c.nearby = nil
		c.nearbyAt = nil
		return
	}
	if c.nearbyAt != nil && *c.nearbyAt == *at {
		c.debouncer.Cancel(nearbyKey)
		return
	}
	center := *at
	c.debouncer.Trigger(nearbyKey, func() {
		c.fetchNearby(center)
	})
}

func (c *Controller) fetchNearby(at waypoint.Coordinates) {
	places := c.places.Nearby(c.ctx, at.Lat, at.Lon, c.cfg.NearbyRadius)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if current := c.nearbyCenter(); current == nil || *current != at {
		c.logger.Debug("discarding stale nearby places", zap.Stringer("at", at))
		return
	}
	c.nearby = places
	c.nearbyAt = &at
}
