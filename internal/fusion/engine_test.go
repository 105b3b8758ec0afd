package fusion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/opsboard/internal/domain"
	"github.com/betbot/opsboard/pkg/opsapi"
)

type fakeSource struct {
	mu          sync.Mutex
	regime      string
	failReadies bool
	journalCall atomic.Int32
	lastFilter  opsapi.JournalFilter
}

func ptr[T any](v T) *T { return &v }

func (f *fakeSource) StrategyMatrix(context.Context) (*opsapi.Envelope[opsapi.MatrixPayload], error) {
	return &opsapi.Envelope[opsapi.MatrixPayload]{Data: &opsapi.MatrixPayload{Strategies: []opsapi.MatrixRow{
		{StrategyID: "auto_momentum"}, {StrategyID: "manual_carry"},
	}}}, nil
}

func (f *fakeSource) Readiness(context.Context) (*opsapi.Envelope[opsapi.ReadinessPayload], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReadies {
		return nil, errors.New("connection refused")
	}
	return &opsapi.Envelope[opsapi.ReadinessPayload]{Data: &opsapi.ReadinessPayload{}}, nil
}

func (f *fakeSource) Rebalances(context.Context) (*opsapi.Envelope[opsapi.RebalancesPayload], error) {
	f.mu.Lock()
	regime := f.regime
	f.mu.Unlock()
	return &opsapi.Envelope[opsapi.RebalancesPayload]{Data: &opsapi.RebalancesPayload{Events: []opsapi.RebalanceRow{
		{StrategyID: "auto_momentum", Date: &opsapi.Time{Time: day(1)}, Regime: ptr(regime), ShouldRebalance: ptr(true)},
	}}}, nil
}

func (f *fakeSource) Journal(_ context.Context, filter opsapi.JournalFilter) (*opsapi.Envelope[opsapi.JournalPayload], error) {
	f.journalCall.Add(1)
	f.mu.Lock()
	f.lastFilter = filter
	f.mu.Unlock()
	return &opsapi.Envelope[opsapi.JournalPayload]{}, nil
}

func (f *fakeSource) Exposure(context.Context) (*opsapi.Envelope[opsapi.ExposurePayload], error) {
	return &opsapi.Envelope[opsapi.ExposurePayload]{}, nil
}

func (f *fakeSource) RiskEvents(context.Context) (*opsapi.Envelope[opsapi.RiskEventsPayload], error) {
	return nil, errors.New("not deployed")
}

func (f *fakeSource) Freshness(context.Context) (*opsapi.Envelope[opsapi.FreshnessPayload], error) {
	return &opsapi.Envelope[opsapi.FreshnessPayload]{}, nil
}

type countingRecorder struct{ n atomic.Int32 }

func (r *countingRecorder) FusionCompleted(map[domain.Health]int) { r.n.Add(1) }

func slowIntervals() Intervals {
	h := time.Hour
	return Intervals{h, h, h, h, h, h, h}
}

func TestEngine_FusesAfterChannelsSettle(t *testing.T) {
	src := &fakeSource{regime: "RISK_OFF", failReadies: true}
	rec := &countingRecorder{}
	e := NewEngine(src, Config{Intervals: slowIntervals(), Options: testOptions(), Recorder: rec, Clock: func() time.Time { return now }})

	// before Start there is already an empty board
	require.NotNil(t, e.Board())
	assert.Empty(t, e.Board().Entities)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()
	<-e.Refresh()

	require.Eventually(t, func() bool {
		b := e.Board()
		ent, ok := b.Entity("auto_momentum")
		return ok && ent.Health == domain.HealthError && len(b.Channels) == 7 && channelErr(b, ChannelRiskEvents) != ""
	}, 2*time.Second, 5*time.Millisecond)

	b := e.Board()
	assert.Equal(t, "connection refused", channelErr(b, ChannelReadiness))
	// one failing channel does not stop the others from contributing
	c, ok := b.Entity("manual_carry")
	require.True(t, ok)
	assert.Equal(t, domain.HealthOK, c.Health)
	assert.Positive(t, rec.n.Load())

	src.mu.Lock()
	assert.Equal(t, 50, src.lastFilter.Limit)
	src.mu.Unlock()
}

func TestEngine_SubscribeLatestWins(t *testing.T) {
	e := NewEngine(&fakeSource{}, Config{Intervals: slowIntervals(), Options: testOptions(), Clock: func() time.Time { return now }})
	ch, cancel := e.Subscribe()
	defer cancel()

	e.Fuse()
	want := e.Fuse()

	// the buffer holds one board at most, and it is the newest
	got := <-ch
	assert.Same(t, want, got)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra board %p", extra)
	default:
	}

	e.Stop()
	_, open := <-ch
	assert.False(t, open)
}

func TestEngine_RefusesOnChange(t *testing.T) {
	src := &fakeSource{regime: "RISK_ON"}
	e := NewEngine(src, Config{Intervals: slowIntervals(), Options: testOptions(), Clock: func() time.Time { return now }})
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()
	<-e.Refresh()

	src.mu.Lock()
	src.regime = "TRANSITION"
	src.mu.Unlock()
	<-e.Refresh()

	require.Eventually(t, func() bool {
		ent, _ := e.Board().Entity("auto_momentum")
		return ent.Regime == "TRANSITION" && ent.Health == domain.HealthWarn
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_StopIsFinal(t *testing.T) {
	e := NewEngine(&fakeSource{}, Config{Intervals: slowIntervals()})
	require.NoError(t, e.Start(context.Background()))
	e.Stop()
	e.Stop()

	before := e.Board()
	e.Fuse()
	assert.Same(t, before, e.Board())
	assert.Error(t, e.Start(context.Background()))

	ch, _ := e.Subscribe()
	_, open := <-ch
	assert.False(t, open)
}

func channelErr(b *Board, name string) string {
	for _, s := range b.Channels {
		if s.Name == name {
			return s.Err
		}
	}
	return ""
}
