// Package position provides live position sources for navigation tracking.
package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// ErrPermissionDenied is delivered when the device refuses to share its
// position
var ErrPermissionDenied = errors.New("position permission denied")

// ErrUnavailable is delivered when no fix can be obtained
var ErrUnavailable = errors.New("position unavailable")

// Fix is a single position report
type Fix struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the fix as an orb point
func (f Fix) Point() orb.Point {
	return orb.Point{f.Lon, f.Lat}
}

// Validate checks the fix has finite, in-range coordinates
func (f Fix) Validate() error {
	if math.IsNaN(f.Lat) || math.IsNaN(f.Lon) || math.IsInf(f.Lat, 0) || math.IsInf(f.Lon, 0) {
		return fmt.Errorf("fix coordinates must be finite")
	}
	if f.Lat < -90 || f.Lat > 90 || f.Lon < -180 || f.Lon > 180 {
		return fmt.Errorf("fix coordinates out of range: %f,%f", f.Lat, f.Lon)
	}
	if f.Accuracy < 0 {
		return fmt.Errorf("negative accuracy")
	}
	return nil
}

// Event is either a fix or an error from a source
type Event struct {
	Fix Fix
	Err error
}

// Source is a live position subscription. The returned channel is closed
// once ctx is cancelled or the source ends; no event is sent after that.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Feed is an in-process Source fed by Publish, for positions pushed by a
// client over the API.
type Feed struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewFeed creates an empty feed
func NewFeed(logger *zap.Logger) *Feed {
	return &Feed{logger: logger, subs: make(map[int]chan Event)}
}

const feedBuffer = 16

// Subscribe registers a subscriber until ctx is done
func (f *Feed) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, feedBuffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

// Publish delivers a fix to every subscriber. Subscribers that are not
// keeping up miss the fix.
func (f *Feed) Publish(fix Fix) {
	f.send(Event{Fix: fix})
}

// Fail delivers an error to every subscriber
func (f *Feed) Fail(err error) {
	f.send(Event{Err: err})
}

func (f *Feed) send(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.logger.Debug("dropping position event for slow subscriber", zap.Int("subscriber", id))
		}
	}
}

// Subscribers returns the number of active subscriptions
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
