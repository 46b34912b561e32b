// Package ratelimit bounds outbound message volume per recipient with a
// sliding time window.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is the trailing interval sends are counted over.
	DefaultWindow = 60 * time.Second
	// DefaultMax is how many sends a recipient may receive per window.
	DefaultMax = 30
)

// Window is a per-recipient sliding-window throttle. Entries older than the
// window width are pruned on every check, so an active recipient's history
// never grows past the cap. Idle recipients are removed by EvictIdle.
type Window struct {
	mu     sync.Mutex
	width  time.Duration
	max    int
	sends  map[string][]time.Time
	now    func() time.Time
}

// New creates a window throttle. Non-positive arguments fall back to the
// defaults (60s, 30).
func New(width time.Duration, max int) *Window {
	if width <= 0 {
		width = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &Window{
		width: width,
		max:   max,
		sends: make(map[string][]time.Time),
		now:   time.Now,
	}
}

// Allow reports whether another send to recipient is admitted right now.
// It does not record the send; call Record after a successful dispatch.
func (w *Window) Allow(recipient string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.prune(recipient)
	return len(kept) < w.max
}

// Record appends a send timestamp for recipient.
func (w *Window) Record(recipient string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sends[recipient] = append(w.prune(recipient), w.now())
}

// EvictIdle removes recipients whose newest send is older than maxIdle.
// Called from the scheduled sweep so one-off recipients do not accumulate.
func (w *Window) EvictIdle(maxIdle time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-maxIdle)
	evicted := 0
	for recipient, times := range w.sends {
		if len(times) == 0 || times[len(times)-1].Before(cutoff) {
			delete(w.sends, recipient)
			evicted++
		}
	}
	return evicted
}

// Tracked returns how many recipients currently have history entries.
func (w *Window) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sends)
}

// prune drops entries older than the window width and returns the survivors.
// Caller holds the mutex. An emptied recipient is deleted from the map.
func (w *Window) prune(recipient string) []time.Time {
	cutoff := w.now().Add(-w.width)
	times := w.sends[recipient]
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	kept := times[i:]
	if len(kept) == 0 {
		delete(w.sends, recipient)
		return nil
	}
	w.sends[recipient] = kept
	return kept
}
