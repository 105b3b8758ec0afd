package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/opsboard/internal/fills"
	"github.com/betbot/opsboard/internal/fusion"
	"github.com/betbot/opsboard/internal/keys"
	"github.com/betbot/opsboard/internal/poll"
	"github.com/betbot/opsboard/pkg/opsapi"
)

type fakePages struct {
	pipeline  atomic.Int32
	backtests atomic.Int32
	slippage  atomic.Int32
	activity  atomic.Int32
	journal   atomic.Int32
	lastLimit atomic.Int32
}

func ptr[T any](v T) *T { return &v }

func (f *fakePages) PipelineSeries(context.Context) (*opsapi.Envelope[opsapi.PipelinePayload], error) {
	f.pipeline.Add(1)
	return &opsapi.Envelope[opsapi.PipelinePayload]{Data: &opsapi.PipelinePayload{Series: []opsapi.PipelinePoint{
		{StrategyID: "auto_momentum", Stage: "signals", Count: ptr(4)},
	}}}, nil
}

func (f *fakePages) Slippage(context.Context) (*opsapi.Envelope[opsapi.SlippagePayload], error) {
	f.slippage.Add(1)
	return &opsapi.Envelope[opsapi.SlippagePayload]{Data: &opsapi.SlippagePayload{Summary: []opsapi.SlippageRow{
		{StrategyID: "auto_momentum", Symbol: "SPY", Fills: ptr(3), AvgSlippageBps: ptr(1.5)},
	}}}, nil
}

func (f *fakePages) TradeActivity(context.Context) (*opsapi.Envelope[opsapi.TradeActivityPayload], error) {
	f.activity.Add(1)
	return &opsapi.Envelope[opsapi.TradeActivityPayload]{}, nil
}

func (f *fakePages) Backtests(context.Context) (*opsapi.Envelope[opsapi.BacktestsPayload], error) {
	f.backtests.Add(1)
	return &opsapi.Envelope[opsapi.BacktestsPayload]{}, nil
}

func (f *fakePages) Journal(_ context.Context, filter opsapi.JournalFilter) (*opsapi.Envelope[opsapi.JournalPayload], error) {
	f.journal.Add(1)
	f.lastLimit.Store(int32(filter.Limit))
	return &opsapi.Envelope[opsapi.JournalPayload]{}, nil
}

type fakePoster struct {
	mu   sync.Mutex
	got  []opsapi.FillEntry
	err  error
	hits int
}

func (p *fakePoster) LogFills(_ context.Context, _ string, entries []opsapi.FillEntry) (*opsapi.LogFillsResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits++
	if p.err != nil {
		return nil, p.err
	}
	p.got = append(p.got, entries...)
	return &opsapi.LogFillsResult{Inserted: len(entries)}, nil
}

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

// slow keeps page tickers out of the way; the first fetch still happens on start.
var slow = PageIntervals{Pipeline: time.Hour, Slippage: time.Hour, TradeActivity: time.Hour, Backtests: time.Hour, Journal: time.Hour}

type harness struct {
	pages  *fakePages
	poster *fakePoster
	clock  *fakeClock
	quits  int
}

func newHarness(t *testing.T) (*harness, model) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		pages:  &fakePages{},
		poster: &fakePoster{},
		clock:  &fakeClock{t: time.Date(2024, 2, 10, 9, 30, 0, 0, time.UTC)},
	}
	m := newModel(ctx, modelConfig{
		Pages:        h.pages,
		Intervals:    slow,
		Fills:        fills.NewSubmitter(h.poster),
		ChordTimeout: 500 * time.Millisecond,
		Clock:        h.clock.Now,
	})
	m.quit = func() { h.quits++ }
	t.Cleanup(cancel)
	return h, m
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

func press(t *testing.T, m model, ks ...string) model {
	t.Helper()
	for _, k := range ks {
		m, _ = update(t, m, keyMsg(k))
	}
	return m
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	for _, r := range text {
		m = press(t, m, string(r))
	}
	return m
}

func TestChord_NavigatesAndSwapsPageChannels(t *testing.T) {
	h, m := newHarness(t)

	m = press(t, m, "g", "s")
	assert.Equal(t, keys.RouteStrategies, m.route)
	require.NotNil(t, m.page)
	require.Eventually(t, func() bool {
		return h.pages.pipeline.Load() == 1 && h.pages.backtests.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	old := m.page.group
	m = press(t, m, "g", "e")
	assert.Equal(t, keys.RouteExecution, m.route)
	assert.ErrorIs(t, old.Start(context.Background()), poll.ErrStopped)
	require.Eventually(t, func() bool {
		return h.pages.slippage.Load() == 1 && h.pages.activity.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, h.pages.pipeline.Load())
}

func TestChord_HomeAndRiskHaveNoPageChannels(t *testing.T) {
	_, m := newHarness(t)
	m = press(t, m, "g", "b")
	require.NotNil(t, m.page)

	m = press(t, m, "g", "r")
	assert.Equal(t, keys.RouteRisk, m.route)
	assert.Nil(t, m.page)

	m = press(t, m, "g", "h")
	assert.Equal(t, keys.RouteHome, m.route)
	assert.Nil(t, m.page)
}

func TestBlotter_RequestsDeepJournal(t *testing.T) {
	h, m := newHarness(t)
	m = press(t, m, "g", "b")
	require.Eventually(t, func() bool { return h.pages.journal.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, blotterRows, h.pages.lastLimit.Load())
	assert.Equal(t, keys.RouteBlotter, m.route)
}

func TestChord_ExpiresAfterTimeout(t *testing.T) {
	h, m := newHarness(t)

	m, cmd := update(t, m, keyMsg("g"))
	assert.NotNil(t, cmd)
	assert.Equal(t, keys.PrefixPending, m.fsm.State())

	h.clock.Advance(600 * time.Millisecond)
	m, _ = update(t, m, chordExpiredMsg(h.clock.Now()))
	assert.True(t, m.fsm.ExpiresAt().IsZero())

	m = press(t, m, "s")
	assert.Equal(t, keys.RouteHome, m.route)
}

func TestChord_UnknownTargetResets(t *testing.T) {
	_, m := newHarness(t)
	m = press(t, m, "g", "x", "s")
	assert.Equal(t, keys.RouteHome, m.route)
	assert.Equal(t, keys.Idle, m.fsm.State())
}

func TestHelp_TogglesAndClearsChord(t *testing.T) {
	_, m := newHarness(t)

	m = press(t, m, "g", "?")
	assert.True(t, m.help)
	assert.Equal(t, keys.Idle, m.fsm.State())
	assert.Contains(t, m.View(), "toggle this help")
	assert.Contains(t, m.View(), "within 500ms")

	m = press(t, m, "?")
	assert.False(t, m.help)

	m = press(t, m, "?", "g", "s")
	assert.False(t, m.help, "navigating closes help")
	assert.Equal(t, keys.RouteStrategies, m.route)
}

func TestModifiedKeysAreIgnored(t *testing.T) {
	_, m := newHarness(t)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g"), Alt: true})
	assert.Equal(t, keys.Idle, m.fsm.State())
	m = press(t, m, "s")
	assert.Equal(t, keys.RouteHome, m.route)
}

func TestQuit(t *testing.T) {
	h, m := newHarness(t)
	m = press(t, m, "g", "s")
	require.NotNil(t, m.page)
	group := m.page.group

	m, cmd := update(t, m, keyMsg("q"))
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
	assert.Equal(t, 1, h.quits)
	assert.Nil(t, m.page)
	assert.ErrorIs(t, group.Start(context.Background()), poll.ErrStopped)
}

func TestLogFills_TypingBypassesShortcuts(t *testing.T) {
	h, m := newHarness(t)
	m = press(t, m, "g", "l", "i")
	require.True(t, m.form.editing)

	m = typeText(t, m, "g s q ?")
	assert.Equal(t, keys.RouteLogFills, m.route)
	assert.Equal(t, "g s q ?", m.form.input)
	assert.False(t, m.help)
	assert.Zero(t, h.quits)

	m = press(t, m, "backspace", "esc")
	assert.Equal(t, "g s q ", m.form.input)
	assert.False(t, m.form.editing)

	m = press(t, m, "g", "h")
	assert.Equal(t, keys.RouteHome, m.route)
}

func TestLogFills_Submit(t *testing.T) {
	h, m := newHarness(t)
	m = press(t, m, "g", "l", "i")
	m = typeText(t, m, "today auto_momentum spy buy 10 500.5 opening fill")

	m, cmd := update(t, m, keyMsg("enter"))
	require.NotNil(t, cmd)
	assert.True(t, m.form.pending)

	m, _ = update(t, m, cmd())
	assert.False(t, m.form.pending)
	assert.False(t, m.form.failed)
	assert.Contains(t, m.form.status, "logged 1 fill(s)")
	assert.Empty(t, m.form.input)

	require.Len(t, h.poster.got, 1)
	got := h.poster.got[0]
	assert.Equal(t, "2024-02-10", got.Date)
	assert.Equal(t, "SPY", got.Symbol)
	assert.Equal(t, "BUY", got.Side)
	assert.Equal(t, "500.5", got.Price.String())
	assert.Equal(t, "opening fill", got.Note)
}

func TestLogFills_EnterWhilePendingDoesNotResubmit(t *testing.T) {
	h, m := newHarness(t)
	m = press(t, m, "g", "l", "i")
	m = typeText(t, m, "today auto_momentum SPY BUY 10 500")

	m, cmd := update(t, m, keyMsg("enter"))
	require.NotNil(t, cmd)
	require.True(t, m.form.pending)

	m, again := update(t, m, keyMsg("enter"))
	assert.Nil(t, again)
	assert.True(t, m.form.pending)

	m, _ = update(t, m, cmd())
	assert.False(t, m.form.pending)
	assert.Equal(t, 1, h.poster.hits)
	assert.Len(t, h.poster.got, 1)
}

func TestLogFills_RetryableFailureKeepsInput(t *testing.T) {
	h, m := newHarness(t)
	h.poster.err = &opsapi.HTTPError{Method: "POST", Path: opsapi.PathLogFills, Status: 503}
	m = press(t, m, "g", "l", "i")
	m = typeText(t, m, "2024-02-09 auto_momentum SPY SELL 5 501")

	m, cmd := update(t, m, keyMsg("enter"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.True(t, m.form.failed)
	assert.Contains(t, m.form.status, "press enter to retry")
	assert.Equal(t, "2024-02-09 auto_momentum SPY SELL 5 501", m.form.input)

	h.poster.err = nil
	m, cmd = update(t, m, keyMsg("enter"))
	m, _ = update(t, m, cmd())
	assert.False(t, m.form.failed)
	assert.Equal(t, 2, h.poster.hits)
}

func TestLogFills_InvalidInputNeverPosts(t *testing.T) {
	h, m := newHarness(t)
	m = press(t, m, "g", "l", "i")

	m = typeText(t, m, "today auto_momentum")
	m, cmd := update(t, m, keyMsg("enter"))
	assert.Nil(t, cmd)
	assert.True(t, m.form.failed)
	assert.Contains(t, m.form.status, "want date strategy symbol side qty price")

	m.form.input = ""
	m = typeText(t, m, "today auto_momentum SPY HOLD 0 1")
	m, cmd = update(t, m, keyMsg("enter"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Contains(t, m.form.status, "invalid fills")
	assert.Zero(t, h.poster.hits)
}

func TestWaitForBoard_DeliversLatest(t *testing.T) {
	_, m := newHarness(t)
	ch := make(chan *fusion.Board, 3)
	first, second := &fusion.Board{}, &fusion.Board{}
	ch <- first
	ch <- second
	m.boards = ch

	msg := m.waitForBoard()()
	bm, ok := msg.(boardMsg)
	require.True(t, ok)
	assert.Same(t, second, bm.board)

	m, cmd := update(t, m, bm)
	assert.Same(t, second, m.board)
	assert.NotNil(t, cmd)

	close(ch)
	assert.Nil(t, m.waitForBoard()())
}

func TestPageMsg_IgnoredAfterLeavingRoute(t *testing.T) {
	_, m := newHarness(t)
	m = press(t, m, "g", "s")
	_, cmd := update(t, m, pageMsg{route: keys.RouteExecution})
	assert.Nil(t, cmd)
	_, cmd = update(t, m, pageMsg{route: keys.RouteStrategies})
	assert.NotNil(t, cmd)
}
