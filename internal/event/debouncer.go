package event

import (
	"sync"
	"time"
)

// deliveryRetention is how long a delivery ID is remembered. GitHub offers
// manual redelivery of recent webhooks, which reuses the original ID.
const deliveryRetention = time.Hour

// Debouncer collapses a burst of events for one key into a single call that
// fires once the key has been quiet for the window. It also recognises
// redelivered webhooks.
type Debouncer struct {
	window     time.Duration
	mu         sync.Mutex
	pending    map[string]*pendingCall
	deliveries map[string]time.Time // delivery ID -> first seen
	now        func() time.Time
}

type pendingCall struct {
	timer *time.Timer
	fn    func()
}

// NewDebouncer creates a new debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:     window,
		pending:    make(map[string]*pendingCall),
		deliveries: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Trigger schedules fn to run after the window. A later Trigger for the same
// key before then replaces fn and restarts the window.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}
	p := &pendingCall{fn: fn}
	p.timer = time.AfterFunc(d.window, func() { d.fire(key, p) })
	d.pending[key] = p
}

func (d *Debouncer) fire(key string, p *pendingCall) {
	d.mu.Lock()
	if d.pending[key] != p {
		// Replaced by a later Trigger
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	p.fn()
}

// Flush runs every pending call now instead of waiting for its window.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	calls := make([]func(), 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		calls = append(calls, p.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, fn := range calls {
		fn()
	}
}

// Redelivered reports whether a webhook with the same delivery ID was already
// seen. Events without a delivery ID are never redeliveries.
func (d *Debouncer) Redelivered(e *Event) bool {
	if e.DeliveryID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, t := range d.deliveries {
		if now.Sub(t) >= deliveryRetention {
			delete(d.deliveries, id)
		}
	}
	if _, dup := d.deliveries[e.DeliveryID]; dup {
		return true
	}
	d.deliveries[e.DeliveryID] = now
	return false
}
