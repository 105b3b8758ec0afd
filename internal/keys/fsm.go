// Package keys maps raw keystrokes to navigation intents with a two-key "g" chord.
package keys

import (
	"sync"
	"time"
)

// DefaultChordTimeout bounds the gap between "g" and its target key.
const DefaultChordTimeout = 500 * time.Millisecond

// State of the chord machine.
type State int

const (
	Idle State = iota
	PrefixPending
)

func (s State) String() string {
	if s == PrefixPending {
		return "PREFIX_PENDING"
	}
	return "IDLE"
}

// IntentKind of an emitted command.
type IntentKind int

const (
	ToggleHelp IntentKind = iota + 1
	Navigate
)

// Intent is what the user asked for.
type Intent struct {
	Kind  IntentKind
	Route string
}

// Key is one keystroke as delivered by the host.
type Key struct {
	Value       string // single key, e.g. "g", "?"
	Modified    bool   // ctrl/alt/meta held
	InTextInput bool   // focus is in a text-entry control
}

// Routes of the fixed navigation table.
const (
	RouteHome       = "/"
	RouteStrategies = "/strategies"
	RouteRisk       = "/risk"
	RouteBlotter    = "/blotter"
	RouteExecution  = "/execution"
	RouteLogFills   = "/ops/log-fills"
)

// NavigationTable maps the key after "g" to a route.
var NavigationTable = map[string]string{
	"h": RouteHome,
	"s": RouteStrategies,
	"r": RouteRisk,
	"b": RouteBlotter,
	"e": RouteExecution,
	"l": RouteLogFills,
}

// FSM is the chord state machine. It is safe for concurrent use.
type FSM struct {
	mu        sync.Mutex
	state     State
	expiresAt time.Time
	timeout   time.Duration
	now       func() time.Time
}

// Option configures an FSM.
type Option func(*FSM)

// WithTimeout overrides the chord timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *FSM) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(f *FSM) {
		if now != nil {
			f.now = now
		}
	}
}

// New returns an FSM in Idle.
func New(opts ...Option) *FSM {
	f := &FSM{timeout: DefaultChordTimeout, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Timeout is the configured chord timeout.
func (f *FSM) Timeout() time.Duration { return f.timeout }

// State returns the current state, applying an elapsed timeout first.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(f.now())
	return f.state
}

// ExpiresAt is the pending chord deadline, zero when Idle.
func (f *FSM) ExpiresAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expiresAt
}

// Expire is the timer callback: a pending chord whose deadline has passed returns to Idle.
// It reports whether a transition happened.
func (f *FSM) Expire(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expireLocked(now)
}

// Handle feeds one keystroke and returns the emitted intent, if any.
// Modified keys and keys typed into text inputs are ignored and leave the state untouched.
// "?" toggles help from any state and clears a pending chord.
func (f *FSM) Handle(k Key) (Intent, bool) {
	if k.Modified || k.InTextInput {
		return Intent{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	f.expireLocked(now)

	if k.Value == "?" {
		f.resetLocked()
		return Intent{Kind: ToggleHelp}, true
	}

	switch f.state {
	case PrefixPending:
		f.resetLocked()
		if route, ok := NavigationTable[k.Value]; ok {
			return Intent{Kind: Navigate, Route: route}, true
		}
		return Intent{}, false
	default:
		if k.Value == "g" {
			f.state = PrefixPending
			f.expiresAt = now.Add(f.timeout)
		}
		return Intent{}, false
	}
}

func (f *FSM) expireLocked(now time.Time) bool {
	if f.state != PrefixPending || now.Before(f.expiresAt) {
		return false
	}
	f.resetLocked()
	return true
}

func (f *FSM) resetLocked() {
	f.state = Idle
	f.expiresAt = time.Time{}
}
