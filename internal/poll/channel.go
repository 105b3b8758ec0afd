// Package poll runs independent, differently-cadenced fetch loops and keeps each loop's latest result.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "poll")

// ErrStopped is returned when starting a channel that was already stopped.
var ErrStopped = errors.New("poll: channel stopped")

// FetchFunc performs one fetch. It should honour ctx but is not required to.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Observer receives channel lifecycle events, e.g. for metrics.
type Observer interface {
	FetchStarted(channel string)
	FetchFinished(channel string, took time.Duration, err error)
	ResponseDiscarded(channel string)
}

// Snapshot is an immutable copy of a channel's state.
type Snapshot[T any] struct {
	Name        string
	Value       T
	HasValue    bool
	Err         string
	RefreshedAt time.Time // time of the last successful result, zero if none
	Loading     bool      // true until the first result, success or error
	Seq         uint64    // request sequence of the applied result
}

// Status is the type-erased part of a Snapshot.
type Status struct {
	Name        string    `json:"name"`
	HasValue    bool      `json:"has_value"`
	Err         string    `json:"error,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Loading     bool      `json:"loading"`
	Seq         uint64    `json:"seq"`
}

// Status drops the value.
func (s Snapshot[T]) Status() Status {
	return Status{Name: s.Name, HasValue: s.HasValue, Err: s.Err, RefreshedAt: s.RefreshedAt, Loading: s.Loading, Seq: s.Seq}
}

// Options for a channel.
type Options struct {
	// Timeout abandons a fetch that outlives it; 0 disables. A late response from an abandoned
	// fetch is discarded by sequence number.
	Timeout  time.Duration
	Observer Observer
	OnChange func(name string)
	Clock    func() time.Time
}

// Channel is a timer-driven fetch loop with last-known-good retention.
//
// At most one fetch from the loop is in flight. Ticks that land while a fetch is in flight are
// skipped and manual refreshes are coalesced with it. After Stop returns the snapshot never changes.
type Channel[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	opts     Options

	mu       sync.Mutex
	snap     Snapshot[T]
	issued   uint64
	applied  uint64
	inflight bool
	waiters  []chan struct{}
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}

	refreshCh chan struct{}
}

// NewChannel creates a stopped channel; call Start to begin polling.
func NewChannel[T any](name string, interval time.Duration, fetch FetchFunc[T], opts Options) *Channel[T] {
	if interval <= 0 {
		panic(fmt.Sprintf("poll: channel %q needs a positive interval", name))
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Channel[T]{
		name:      name,
		interval:  interval,
		fetch:     fetch,
		opts:      opts,
		snap:      Snapshot[T]{Name: name, Loading: true},
		refreshCh: make(chan struct{}, 1),
	}
}

// Name of the channel.
func (c *Channel[T]) Name() string { return c.name }

// Start fetches immediately and then every interval until ctx is done or Stop is called.
// Starting twice is a no-op.
func (c *Channel[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return nil
	}
	c.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(loopCtx)
	return nil
}

// Stop cancels the timer and any in-flight fetch context. Results that arrive afterwards are dropped.
func (c *Channel[T]) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel, done := c.cancel, c.done
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, w := range waiters {
		close(w)
	}
	log.WithField("channel", c.name).Debug("channel stopped")
}

// Refresh asks for a fetch now. If one is already in flight the request joins it.
// The returned channel closes when that fetch settles or the channel stops.
func (c *Channel[T]) Refresh() <-chan struct{} {
	w := make(chan struct{})
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		close(w)
		return w
	}
	c.waiters = append(c.waiters, w)
	if !c.inflight {
		select {
		case c.refreshCh <- struct{}{}:
		default:
		}
	}
	c.mu.Unlock()
	return w
}

// Snapshot returns a copy of the current state.
func (c *Channel[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Status returns the type-erased state.
func (c *Channel[T]) Status() Status {
	return c.Snapshot().Status()
}

func (c *Channel[T]) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.issue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.issue(ctx)
		case <-c.refreshCh:
			c.issue(ctx)
		}
	}
}

type result[T any] struct {
	value T
	err   error
}

func (c *Channel[T]) issue(ctx context.Context) {
	c.mu.Lock()
	if c.stopped || c.inflight {
		c.mu.Unlock()
		return
	}
	c.inflight = true
	c.issued++
	seq := c.issued
	// this request serves any refresh queued so far
	select {
	case <-c.refreshCh:
	default:
	}
	c.mu.Unlock()

	if c.opts.Observer != nil {
		c.opts.Observer.FetchStarted(c.name)
	}
	go c.do(ctx, seq)
}

func (c *Channel[T]) do(ctx context.Context, seq uint64) {
	fctx, cancel := ctx, context.CancelFunc(func() {})
	if c.opts.Timeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
	}
	defer cancel()

	started := c.opts.Clock()
	resCh := make(chan result[T], 1)
	go func() {
		v, err := c.fetch(fctx)
		resCh <- result[T]{v, err}
	}()

	select {
	case r := <-resCh:
		c.finish(seq, started, r)
	case <-fctx.Done():
		var zero T
		settled := c.finish(seq, started, result[T]{zero, fctx.Err()})
		// the fetch ignored its context; its answer is stale and the fetch is already reported
		if !c.apply(seq, <-resCh) && settled && c.opts.Observer != nil {
			c.opts.Observer.ResponseDiscarded(c.name)
		}
	}
}

// finish reports one issued fetch exactly once and applies its result.
// It returns false when the result was discarded.
func (c *Channel[T]) finish(seq uint64, started time.Time, r result[T]) bool {
	if c.opts.Observer != nil {
		c.opts.Observer.FetchFinished(c.name, c.opts.Clock().Sub(started), r.err)
	}
	if !c.apply(seq, r) {
		if c.opts.Observer != nil {
			c.opts.Observer.ResponseDiscarded(c.name)
		}
		return false
	}
	if c.opts.OnChange != nil {
		c.opts.OnChange(c.name)
	}
	return true
}

// apply installs a result if it is newer than the last applied one and the channel is live.
func (c *Channel[T]) apply(seq uint64, r result[T]) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	// waiters belong to the newest request only
	var waiters []chan struct{}
	if seq == c.issued {
		c.inflight = false
		waiters = c.waiters
		c.waiters = nil
	}
	if seq <= c.applied {
		c.mu.Unlock()
		closeAll(waiters)
		return false
	}
	c.applied = seq
	c.snap.Seq = seq
	c.snap.Loading = false
	if r.err != nil {
		msg := describe(r.err)
		if msg != c.snap.Err {
			log.WithField("channel", c.name).Warnf("fetch failed: %s", msg)
		}
		c.snap.Err = msg
	} else {
		if c.snap.Err != "" {
			log.WithField("channel", c.name).Info("fetch recovered")
		}
		c.snap.Value = r.value
		c.snap.HasValue = true
		c.snap.Err = ""
		c.snap.RefreshedAt = c.opts.Clock()
	}
	c.mu.Unlock()
	closeAll(waiters)
	return true
}

func closeAll(ws []chan struct{}) {
	for _, w := range ws {
		close(w)
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	default:
		return err.Error()
	}
}
