// Package health tracks rolling per-provider success/failure counts so the
// fabric can classify each provider as healthy, degraded, or down and route
// around failing ones (spec §4.D failover policy).
package health

import (
	"sync"
	"time"
)

// Status is a provider's current classification.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

const windowSize = 20

// Tracker records recent call outcomes per provider ID.
type Tracker struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{windows: make(map[string]*slidingWindow)}
}

func (t *Tracker) windowFor(providerID string) *slidingWindow {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[providerID]
	if !ok {
		w = &slidingWindow{}
		t.windows[providerID] = w
	}
	return w
}

// RecordSuccess records a successful call for providerID.
func (t *Tracker) RecordSuccess(providerID string) {
	t.windowFor(providerID).record(true)
}

// RecordFailure records a failed call for providerID.
func (t *Tracker) RecordFailure(providerID string) {
	t.windowFor(providerID).record(false)
}

// Status classifies providerID based on its recent outcome window:
//   - StatusDown: 5+ consecutive failures, or the window is full and every
//     call in it failed
//   - StatusDegraded: failure rate over the window exceeds 40%
//   - StatusHealthy: otherwise, including providers with no recorded calls
func (t *Tracker) Status(providerID string) Status {
	w := t.windowFor(providerID)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.consecutiveFailures >= 5 {
		return StatusDown
	}
	if w.count == 0 {
		return StatusHealthy
	}
	failureRate := float64(w.failures) / float64(w.count)
	if w.count >= windowSize && w.failures == w.count {
		return StatusDown
	}
	if failureRate > 0.4 {
		return StatusDegraded
	}
	return StatusHealthy
}

// LastSeen reports when providerID last had an outcome recorded.
func (t *Tracker) LastSeen(providerID string) (time.Time, bool) {
	w := t.windowFor(providerID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return time.Time{}, false
	}
	return w.lastAt, true
}

// slidingWindow keeps a fixed-capacity ring of pass/fail outcomes.
type slidingWindow struct {
	mu                  sync.Mutex
	outcomes            [windowSize]bool
	count               int
	head                int
	failures            int
	consecutiveFailures int
	lastAt              time.Time
}

func (w *slidingWindow) record(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == windowSize {
		if !w.outcomes[w.head] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.outcomes[w.head] = success
	if !success {
		w.failures++
	}
	w.head = (w.head + 1) % windowSize
	w.lastAt = time.Now()

	if success {
		w.consecutiveFailures = 0
	} else {
		w.consecutiveFailures++
	}
}
