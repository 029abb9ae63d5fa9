// Package versions records debounced history snapshots of note content
// and serves reads over them. Snapshot recording is best-effort: a
// failed write is logged and dropped, never surfaced to the editing
// path.
package versions

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid successive calls into one deferred call.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
}

// NewDebouncer creates a debouncer with the specified quiet period.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Debounce executes fn after the quiet period has elapsed without any
// new calls. Rapid successive calls reset the timer, so only the last
// fn runs.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

// Cancel cancels any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush cancels the pending timer and executes fn immediately.
func (d *Debouncer) Flush(fn func()) {
	d.Cancel()
	fn()
}
