// Package ratelimit gates actions that must not repeat faster than an interval.
package ratelimit

import (
	"sync"
	"time"
)

// Gate is a time-based debouncer: an action is admitted when at least interval has passed since
// the last admitted one. It is safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewGate returns a gate. A non-positive interval admits everything.
func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// Try admits and records the action in one step.
func (g *Gate) Try(now time.Time) (ok bool, wait time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ok, wait = g.readyLocked(now)
	if ok {
		g.last = now
	}
	return ok, wait
}

func (g *Gate) readyLocked(now time.Time) (bool, time.Duration) {
	if g.interval <= 0 || g.last.IsZero() {
		return true, 0
	}
	since := now.Sub(g.last)
	if since >= g.interval {
		return true, 0
	}
	return false, g.interval - since
}
