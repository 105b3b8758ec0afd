package fusion

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/opsboard/internal/domain"
	"github.com/betbot/opsboard/internal/poll"
	"github.com/betbot/opsboard/pkg/opsapi"
	"github.com/betbot/opsboard/pkg/sigchan"
)

var log = logrus.WithField("module", "fusion")

// Source is the subset of the backend client the engine polls.
type Source interface {
	StrategyMatrix(ctx context.Context) (*opsapi.Envelope[opsapi.MatrixPayload], error)
	Readiness(ctx context.Context) (*opsapi.Envelope[opsapi.ReadinessPayload], error)
	Rebalances(ctx context.Context) (*opsapi.Envelope[opsapi.RebalancesPayload], error)
	Journal(ctx context.Context, f opsapi.JournalFilter) (*opsapi.Envelope[opsapi.JournalPayload], error)
	Exposure(ctx context.Context) (*opsapi.Envelope[opsapi.ExposurePayload], error)
	RiskEvents(ctx context.Context) (*opsapi.Envelope[opsapi.RiskEventsPayload], error)
	Freshness(ctx context.Context) (*opsapi.Envelope[opsapi.FreshnessPayload], error)
}

// Channel names.
const (
	ChannelMatrix     = "matrix"
	ChannelReadiness  = "readiness"
	ChannelRebalances = "rebalances"
	ChannelJournal    = "journal"
	ChannelExposure   = "exposure"
	ChannelRiskEvents = "risk_events"
	ChannelFreshness  = "freshness"
)

// Intervals per channel. Zero fields fall back to DefaultIntervals.
type Intervals struct {
	Matrix     time.Duration
	Readiness  time.Duration
	Rebalances time.Duration
	Journal    time.Duration
	Exposure   time.Duration
	RiskEvents time.Duration
	Freshness  time.Duration
}

var DefaultIntervals = Intervals{
	Matrix:     60 * time.Second,
	Readiness:  30 * time.Second,
	Rebalances: 60 * time.Second,
	Journal:    15 * time.Second,
	Exposure:   30 * time.Second,
	RiskEvents: 30 * time.Second,
	Freshness:  60 * time.Second,
}

func or(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// FusionRecorder observes completed cycles.
type FusionRecorder interface {
	FusionCompleted(counts map[domain.Health]int)
}

// Config for NewEngine.
type Config struct {
	Intervals    Intervals
	FetchTimeout time.Duration
	// RefuseEvery re-derives the board without any channel change so that ages keep moving.
	RefuseEvery time.Duration
	Options     Options
	Observer    poll.Observer
	Recorder    FusionRecorder
	Clock       func() time.Time
}

// Engine owns the poll channels of the board view and re-fuses after every change.
type Engine struct {
	cfg   Config
	group *poll.Group

	matrix     *poll.Channel[[]domain.Strategy]
	readiness  *poll.Channel[[]domain.ReadinessRecord]
	rebalances *poll.Channel[[]domain.RebalanceEvent]
	journal    *poll.Channel[[]domain.JournalRow]
	exposure   *poll.Channel[[]domain.Exposure]
	riskEvents *poll.Channel[[]domain.RiskEvent]
	freshness  *poll.Channel[[]domain.FreshnessRecord]

	changed *sigchan.Chan

	mu      sync.Mutex
	board   *Board
	subs    map[int]chan *Board
	nextSub int
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine wires one channel per endpoint family. Nothing runs until Start.
func NewEngine(src Source, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RefuseEvery <= 0 {
		cfg.RefuseEvery = 30 * time.Second
	}
	cfg.Options = cfg.Options.withDefaults()

	e := &Engine{
		cfg:     cfg,
		group:   poll.NewGroup(),
		changed: sigchan.New(),
		subs:    make(map[int]chan *Board),
	}
	opts := poll.Options{
		Timeout:  cfg.FetchTimeout,
		Observer: cfg.Observer,
		OnChange: func(string) { e.changed.Emit() },
		Clock:    cfg.Clock,
	}
	iv := cfg.Intervals
	def := DefaultIntervals

	e.matrix = poll.NewChannel(ChannelMatrix, or(iv.Matrix, def.Matrix), func(ctx context.Context) ([]domain.Strategy, error) {
		env, err := src.StrategyMatrix(ctx)
		if err != nil {
			return nil, err
		}
		return env.Payload().ToDomain(), nil
	}, opts)
	e.readiness = poll.NewChannel(ChannelReadiness, or(iv.Readiness, def.Readiness), func(ctx context.Context) ([]domain.ReadinessRecord, error) {
		env, err := src.Readiness(ctx)
		if err != nil {
			return nil, err
		}
		return env.Payload().ToDomain(), nil
	}, opts)
	e.rebalances = poll.NewChannel(ChannelRebalances, or(iv.Rebalances, def.Rebalances), func(ctx context.Context) ([]domain.RebalanceEvent, error) {
		env, err := src.Rebalances(ctx)
		if err != nil {
			return nil, err
		}
		return env.Payload().ToDomain(), nil
	}, opts)
	e.journal = poll.NewChannel(ChannelJournal, or(iv.Journal, def.Journal), func(ctx context.Context) ([]domain.JournalRow, error) {
		env, err := src.Journal(ctx, opsapi.JournalFilter{Limit: cfg.Options.JournalRows})
		if err != nil {
			return nil, err
		}
		return env.Payload().ToDomain(), nil
	}, opts)
	e.exposure = poll.NewChannel(ChannelExposure, or(iv.Exposure, def.Exposure), func(ctx context.Context) ([]domain.Exposure, error) {
		env, err := src.Exposure(ctx)
		if err != nil {
			return nil, err
		}
		return env.Payload().ToDomain(), nil
	}, opts)
	e.riskEvents = poll.NewChannel(ChannelRiskEvents, or(iv.RiskEvents, def.RiskEvents), func(ctx context.Context) ([]domain.RiskEvent, error) {
		env, err := src.RiskEvents(ctx)
		if err != nil {
			return nil, err
		}
		return env.Payload().ToDomain(), nil
	}, opts)
	e.freshness = poll.NewChannel(ChannelFreshness, or(iv.Freshness, def.Freshness), func(ctx context.Context) ([]domain.FreshnessRecord, error) {
		env, err := src.Freshness(ctx)
		if err != nil {
			return nil, err
		}
		return env.Payload().ToDomain(), nil
	}, opts)

	for _, r := range []poll.Runner{e.matrix, e.readiness, e.rebalances, e.journal, e.exposure, e.riskEvents, e.freshness} {
		_ = e.group.Add(r)
	}
	e.board = Fuse(e.inputs(), cfg.Options)
	return e
}

// Start begins polling and the fusion loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return poll.ErrStopped
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.loop(loopCtx)
	if err := e.group.Start(loopCtx); err != nil {
		return err
	}
	log.Info("engine started")
	return nil
}

// Stop stops every channel and the fusion loop, then closes subscriber channels.
// The last published board stays readable.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	e.group.Stop()
	if cancel != nil {
		cancel()
		<-done
	}

	e.mu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()
	log.Info("engine stopped")
}

// Board returns the latest published board.
func (e *Engine) Board() *Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board
}

// Subscribe delivers boards latest-wins: a slow reader only ever sees the newest one.
// The channel is primed with the current board. Call cancel to unsubscribe.
func (e *Engine) Subscribe() (<-chan *Board, func()) {
	ch := make(chan *Board, 1)
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	ch <- e.board
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
			e.mu.Unlock()
		})
	}
}

// Refresh refreshes every channel; the returned channel closes when all have settled.
func (e *Engine) Refresh() <-chan struct{} {
	return e.group.RefreshAll()
}

// Statuses of the engine's channels in registration order.
func (e *Engine) Statuses() []poll.Status {
	return e.group.Statuses()
}

// Fuse runs one cycle over the current snapshots and publishes the result.
func (e *Engine) Fuse() *Board {
	b := Fuse(e.inputs(), e.cfg.Options)
	if e.cfg.Recorder != nil {
		e.cfg.Recorder.FusionCompleted(b.Counts)
	}
	e.publish(b)
	return b
}

func (e *Engine) inputs() Inputs {
	in := Inputs{Now: e.cfg.Clock(), Channels: e.group.Statuses()}
	in.Strategies = valueOf(e.matrix.Snapshot())
	in.Readiness = valueOf(e.readiness.Snapshot())
	in.Rebalances = valueOf(e.rebalances.Snapshot())
	in.Journal = valueOf(e.journal.Snapshot())
	in.Exposure = valueOf(e.exposure.Snapshot())
	in.RiskEvents = valueOf(e.riskEvents.Snapshot())
	in.Freshness = valueOf(e.freshness.Snapshot())
	return in
}

// valueOf keeps "no value yet" distinct from "empty value".
func valueOf[T any](s poll.Snapshot[[]T]) []T {
	if !s.HasValue {
		return nil
	}
	if s.Value == nil {
		return []T{}
	}
	return s.Value
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.RefuseEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.changed.C():
			e.Fuse()
		case <-ticker.C:
			e.Fuse()
		}
	}
}

func (e *Engine) publish(b *Board) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.board = b
	for _, ch := range e.subs {
		// drop the unread board, keep the newest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- b:
		default:
		}
	}
}
