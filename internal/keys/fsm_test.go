package keys

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestFSM() (*FSM, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(WithClock(clk.Now)), clk
}

func press(f *FSM, v string) (Intent, bool) { return f.Handle(Key{Value: v}) }

func TestChord_WithinTimeoutNavigates(t *testing.T) {
	f, clk := newTestFSM()
	_, emitted := press(f, "g")
	assert.False(t, emitted)
	assert.Equal(t, PrefixPending, f.State())

	clk.Advance(300 * time.Millisecond)
	in, emitted := press(f, "s")
	assert.True(t, emitted)
	assert.Equal(t, Intent{Kind: Navigate, Route: "/strategies"}, in)
	assert.Equal(t, Idle, f.State())
}

func TestChord_TimeoutDropsPrefix(t *testing.T) {
	f, clk := newTestFSM()
	press(f, "g")
	clk.Advance(600 * time.Millisecond)
	_, emitted := press(f, "s")
	assert.False(t, emitted)
	assert.Equal(t, Idle, f.State())
}

func TestChord_TimerExpiry(t *testing.T) {
	f, clk := newTestFSM()
	press(f, "g")
	deadline := f.ExpiresAt()
	assert.False(t, f.Expire(deadline.Add(-time.Millisecond)))
	assert.True(t, f.Expire(deadline))
	assert.Equal(t, Idle, f.State())
	assert.True(t, f.ExpiresAt().IsZero())

	// the next key is evaluated fresh from Idle
	clk.Advance(100 * time.Millisecond)
	_, emitted := press(f, "s")
	assert.False(t, emitted)
}

func TestChord_ExpiredPrefixThenG(t *testing.T) {
	f, clk := newTestFSM()
	press(f, "g")
	clk.Advance(time.Second)
	press(f, "g")
	assert.Equal(t, PrefixPending, f.State())
	in, emitted := press(f, "r")
	assert.True(t, emitted)
	assert.Equal(t, RouteRisk, in.Route)
}

func TestHelp_AlwaysToggles(t *testing.T) {
	f, _ := newTestFSM()
	in, emitted := press(f, "?")
	assert.True(t, emitted)
	assert.Equal(t, ToggleHelp, in.Kind)

	press(f, "g")
	in, emitted = press(f, "?")
	assert.True(t, emitted)
	assert.Equal(t, ToggleHelp, in.Kind)
	assert.Equal(t, Idle, f.State())
}

func TestChord_UnknownTargetReturnsIdle(t *testing.T) {
	f, _ := newTestFSM()
	press(f, "g")
	_, emitted := press(f, "x")
	assert.False(t, emitted)
	assert.Equal(t, Idle, f.State())

	press(f, "g")
	_, emitted = press(f, "g")
	assert.False(t, emitted)
	assert.Equal(t, Idle, f.State())
}

func TestIgnoredKeys(t *testing.T) {
	f, _ := newTestFSM()
	_, emitted := f.Handle(Key{Value: "?", Modified: true})
	assert.False(t, emitted)
	_, emitted = f.Handle(Key{Value: "g", InTextInput: true})
	assert.False(t, emitted)
	assert.Equal(t, Idle, f.State())

	press(f, "g")
	// ignored keys do not consume a pending chord
	_, emitted = f.Handle(Key{Value: "s", Modified: true})
	assert.False(t, emitted)
	assert.Equal(t, PrefixPending, f.State())
}

func TestNavigationTable(t *testing.T) {
	cases := map[string]string{
		"h": "/", "s": "/strategies", "r": "/risk", "b": "/blotter", "e": "/execution", "l": "/ops/log-fills",
	}
	for k, route := range cases {
		f, _ := newTestFSM()
		press(f, "g")
		in, emitted := press(f, k)
		assert.True(t, emitted, k)
		assert.Equal(t, route, in.Route, k)
	}
}

func TestIdleOtherKeysNoEmission(t *testing.T) {
	f, _ := newTestFSM()
	for _, k := range []string{"s", "h", "x", "1"} {
		_, emitted := press(f, k)
		assert.False(t, emitted, k)
		assert.Equal(t, Idle, f.State())
	}
}
