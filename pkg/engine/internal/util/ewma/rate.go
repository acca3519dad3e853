// Package ewma computes exponentially weighted moving averages.
package ewma

import (
	"math"
	"sync"
	"time"
)

// Rate is the moving average of an event rate in events per second, such as
// rows ingested by a connector. It is safe for concurrent use.
type Rate struct {
	window time.Duration

	mtx         sync.Mutex
	initialized bool
	pending     int
	value       float64
	last        time.Time
}

// NewRate returns a rate averaged over window.
func NewRate(window time.Duration) *Rate {
	return &Rate{window: window}
}

// Observe records n events that happened since the previous call. The first
// call only starts the clock.
func (r *Rate) Observe(n int, now time.Time) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if !r.initialized || now.Before(r.last) {
		// Clock drift restarts the average.
		r.initialized = true
		r.pending = n
		r.value = 0
		r.last = now
		return
	}

	delta := now.Sub(r.last)
	if delta <= 0 {
		r.pending += n
		return
	}
	sample := float64(n+r.pending) / delta.Seconds()
	r.pending = 0

	//   avg = decay * avg + (1 - decay) * sample,  decay = e^(-delta/window)
	decay := math.Exp(-delta.Seconds() / r.window.Seconds())
	r.value = decay*r.value + (1-decay)*sample
	r.last = now
}

// Value returns the current average.
func (r *Rate) Value() float64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.value
}
