package dashboard

import (
	"context"
	"time"

	"github.com/betbot/opsboard/internal/keys"
	"github.com/betbot/opsboard/internal/poll"
	"github.com/betbot/opsboard/pkg/opsapi"
	"github.com/betbot/opsboard/pkg/sigchan"
)

// PageSource serves the endpoints only some pages need.
type PageSource interface {
	PipelineSeries(ctx context.Context) (*opsapi.Envelope[opsapi.PipelinePayload], error)
	Slippage(ctx context.Context) (*opsapi.Envelope[opsapi.SlippagePayload], error)
	TradeActivity(ctx context.Context) (*opsapi.Envelope[opsapi.TradeActivityPayload], error)
	Backtests(ctx context.Context) (*opsapi.Envelope[opsapi.BacktestsPayload], error)
	Journal(ctx context.Context, f opsapi.JournalFilter) (*opsapi.Envelope[opsapi.JournalPayload], error)
}

// PageIntervals per page channel. Zero fields fall back to defaultPageIntervals.
type PageIntervals struct {
	Pipeline      time.Duration
	Slippage      time.Duration
	TradeActivity time.Duration
	Backtests     time.Duration
	Journal       time.Duration
}

var defaultPageIntervals = PageIntervals{
	Pipeline:      2 * time.Minute,
	Slippage:      time.Minute,
	TradeActivity: time.Minute,
	Backtests:     5 * time.Minute,
	Journal:       15 * time.Second,
}

// blotterRows is the journal depth of the blotter page.
const blotterRows = 200

// page owns the channels of one route. They start when the route is entered and stop when it is left.
type page struct {
	route   string
	group   *poll.Group
	changed *sigchan.Chan
	done    chan struct{}

	pipeline  *poll.Channel[opsapi.PipelinePayload]
	backtests *poll.Channel[opsapi.BacktestsPayload]
	slippage  *poll.Channel[opsapi.SlippagePayload]
	activity  *poll.Channel[opsapi.TradeActivityPayload]
	journal   *poll.Channel[opsapi.JournalPayload]
}

func payload[T any](f func(context.Context) (*opsapi.Envelope[T], error)) poll.FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		env, err := f(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		return env.Payload(), nil
	}
}

func pick(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// openPage builds and starts the channels of route. Routes without page data return nil.
func openPage(ctx context.Context, route string, src PageSource, iv PageIntervals, obs poll.Observer) *page {
	if src == nil {
		return nil
	}
	p := &page{route: route, group: poll.NewGroup(), changed: sigchan.New(), done: make(chan struct{})}
	opts := poll.Options{Observer: obs, OnChange: func(string) { p.changed.Emit() }}
	def := defaultPageIntervals

	switch route {
	case keys.RouteStrategies:
		p.pipeline = poll.NewChannel("pipeline", pick(iv.Pipeline, def.Pipeline), payload(src.PipelineSeries), opts)
		p.backtests = poll.NewChannel("backtests", pick(iv.Backtests, def.Backtests), payload(src.Backtests), opts)
		_ = p.group.Add(p.pipeline)
		_ = p.group.Add(p.backtests)
	case keys.RouteExecution:
		p.slippage = poll.NewChannel("slippage", pick(iv.Slippage, def.Slippage), payload(src.Slippage), opts)
		p.activity = poll.NewChannel("trade_activity", pick(iv.TradeActivity, def.TradeActivity), payload(src.TradeActivity), opts)
		_ = p.group.Add(p.slippage)
		_ = p.group.Add(p.activity)
	case keys.RouteBlotter:
		p.journal = poll.NewChannel("blotter", pick(iv.Journal, def.Journal), func(ctx context.Context) (opsapi.JournalPayload, error) {
			env, err := src.Journal(ctx, opsapi.JournalFilter{Limit: blotterRows})
			if err != nil {
				return opsapi.JournalPayload{}, err
			}
			return env.Payload(), nil
		}, opts)
		_ = p.group.Add(p.journal)
	default:
		return nil
	}

	if err := p.group.Start(ctx); err != nil {
		log.WithField("route", route).Warnf("page channels: %v", err)
	}
	log.WithField("route", route).Debug("page opened")
	return p
}

// close stops every channel; pending results are dropped.
func (p *page) close() {
	if p == nil {
		return
	}
	p.group.Stop()
	close(p.done)
	log.WithField("route", p.route).Debug("page closed")
}

func (p *page) statuses() []poll.Status {
	if p == nil {
		return nil
	}
	return p.group.Statuses()
}
