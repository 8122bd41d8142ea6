package session

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/nwah/tripplanner/position"
	"github.com/nwah/tripplanner/waypoint"
)

// NoticeKind identifies a one-shot user notification
type NoticeKind string

const (
	NoticeLocation NoticeKind = "location"
	NoticeTracking NoticeKind = "tracking"
)

// Notice is a user-visible failure, delivered once
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

type trackingRun struct {
	cancel context.CancelFunc
}

// StartTracking subscribes to src and feeds every fix to the navigation
// tracker until StopTracking, Clear or Close. A subscription error ends
// tracking with a notice.
func (c *Controller) StartTracking(src position.Source) error {
	if err := c.lock(); err != nil {
		return err
	}
	if c.tracking != nil {
		c.mu.Unlock()
		return ErrAlreadyTracking
	}
	ctx, cancel := context.WithCancel(c.ctx)
	run := &trackingRun{cancel: cancel}
	c.tracking = run
	c.mu.Unlock()

	// subscribing may dial, so it runs unlocked
	events, err := src.Subscribe(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracking != run {
		// stopped while subscribing
		cancel()
		return err
	}
	if err != nil {
		cancel()
		c.tracking = nil
		c.notify(NoticeTracking, "Failed to track location.", err)
		return err
	}
	go c.track(ctx, run, events)
	c.logger.Debug("tracking started")
	return nil
}

func (c *Controller) track(ctx context.Context, run *trackingRun, events <-chan position.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !c.applyEvent(ctx, run, ev) {
				return
			}
		}
	}
}

// applyEvent reports whether tracking continues
func (c *Controller) applyEvent(ctx context.Context, run *trackingRun, ev position.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// no callbacks once the subscription has been cancelled
	if ctx.Err() != nil || c.tracking != run {
		return false
	}
	if ev.Err != nil {
		msg := "Failed to track location."
		if errors.Is(ev.Err, position.ErrPermissionDenied) {
			msg = "Location permission denied."
		}
		c.notify(NoticeTracking, msg, ev.Err)
		c.tracking = nil
		run.cancel()
		c.tracker.Reset()
		return false
	}
	c.updatePosition(ev.Fix.Point())
	return true
}

// StopTracking cancels the position subscription. No position is applied
// after it returns.
func (c *Controller) StopTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTracking()
}

// callers hold c.mu
func (c *Controller) stopTracking() {
	if c.tracking == nil {
		return
	}
	c.tracking.cancel()
	c.tracking = nil
	c.tracker.Reset()
	c.logger.Debug("tracking stopped")
}

// Tracking reports whether a position subscription is active
func (c *Controller) Tracking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracking != nil
}

// UpdatePosition applies a single position to the navigation tracker. It
// never recomputes the route.
func (c *Controller) UpdatePosition(lat, lon float64) error {
	if !(waypoint.Coordinates{Lat: lat, Lon: lon}).Valid() {
		return waypoint.ErrInvalidCoordinates
	}
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.updatePosition(orb.Point{lon, lat})
	return nil
}

// callers hold c.mu
func (c *Controller) updatePosition(p orb.Point) {
	step, ok := c.tracker.Update(p)
	if ok {
		c.logger.Debug("position", zap.Int("step", step))
	}
	if wp, found := c.store.Get(waypoint.DestinationID); !found || !wp.Resolved() {
		c.scheduleNearby()
	}
}
