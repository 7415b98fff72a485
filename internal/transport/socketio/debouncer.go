package socketio

import (
	"sync"
	"time"
)

// DefaultSearchDebounce is how long a client must stop typing before a search runs.
const DefaultSearchDebounce = 300 * time.Millisecond

// Debouncer collapses a burst of calls into one. Only the most recent function
// runs, once the window elapses without another Trigger.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending func()
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Trigger replaces the pending function and restarts the window.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	stopped := d.stopped
	d.mu.Unlock()

	if fn != nil && !stopped {
		fn()
	}
}

// Stop drops any pending call and prevents further ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
}
