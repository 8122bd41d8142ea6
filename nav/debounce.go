package nav

import (
	"sync"
	"time"
)

// Debouncer delays a function until its key has been quiet for the
// configured interval. Triggering a key again restarts its timer.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDebouncer creates a debouncer. A non-positive delay uses DefaultDebounce.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Trigger arms (or re-arms) the timer for key to call fn
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.timers[key] != t {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = t
}

// Cancel stops the pending timer for key. It reports whether one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(d.timers, key)
	return true
}

// Pending reports whether a timer is armed for key
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Stop cancels every pending timer
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
