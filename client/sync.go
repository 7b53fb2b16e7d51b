package client

import (
	"sync"
	"time"

	"hospital-portal/models"
)

const (
	// DefaultPollInterval is how often viewers fetch state.
	DefaultPollInterval = 2 * time.Second
	// DefaultDebounce coalesces bursts of runner actions into one push.
	DefaultDebounce = 300 * time.Millisecond
	// DefaultGrace is how long after a local write reads are treated as
	// possibly stale echoes.
	DefaultGrace = time.Second
)

// WriteGuard decides whether a polled state may overwrite local state.
//
// Within Grace of the last local write, a read is applied only when the
// server stamped it after the write's acknowledged LastUpdated. Outside the
// window every read is authoritative.
type WriteGuard struct {
	mu        sync.Mutex
	grace     time.Duration
	now       func() time.Time
	lastWrite time.Time
	acked     time.Time
}

// NewWriteGuard returns a guard with the given grace window.
func NewWriteGuard(grace time.Duration) *WriteGuard {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &WriteGuard{grace: grace, now: time.Now}
}

// MarkWrite records that a local change was just made.
func (g *WriteGuard) MarkWrite() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastWrite = g.now()
	g.acked = time.Time{}
}

// Ack records the LastUpdated the server returned for our write.
func (g *WriteGuard) Ack(lastUpdated time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.acked = lastUpdated
}

// Reset drops suppression so the next read is applied unconditionally. Used
// after a rejected write, when the server state is the truth.
func (g *WriteGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastWrite = time.Time{}
	g.acked = time.Time{}
}

// ShouldApply reports whether remote may replace local state.
func (g *WriteGuard) ShouldApply(remote models.QueueStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastWrite.IsZero() || g.now().Sub(g.lastWrite) >= g.grace {
		return true
	}
	if g.acked.IsZero() || remote.LastUpdated == nil {
		return false
	}
	return remote.LastUpdated.After(g.acked)
}

// Debouncer runs only the last function handed to Do within Delay.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending func()
}

// NewDebouncer returns a Debouncer with the given delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Do schedules fn, replacing anything still pending and restarting the delay.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Flush runs the pending function now, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Stop discards the pending function.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}
