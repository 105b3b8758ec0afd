package poll

import (
	"context"
	"sync"
)

// Runner is the type-erased view of a Channel.
type Runner interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	Refresh() <-chan struct{}
	Status() Status
}

// Group owns the channels of one view. Start on mount, Stop on unmount.
// A stopped group cannot be restarted; build a new one.
type Group struct {
	mu       sync.Mutex
	runners  []Runner
	started  bool
	stopped  bool
	startCtx context.Context
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{}
}

// Add registers a runner. Adding to a started group starts the runner right away.
func (g *Group) Add(r Runner) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return ErrStopped
	}
	g.runners = append(g.runners, r)
	if g.started {
		return r.Start(g.startCtx)
	}
	return nil
}

// Start starts every runner. A runner failing to start does not affect the others.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return ErrStopped
	}
	if g.started {
		return nil
	}
	g.started = true
	g.startCtx = ctx
	var firstErr error
	for _, r := range g.runners {
		if err := r.Start(ctx); err != nil {
			log.WithField("channel", r.Name()).Errorf("start failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Stop stops every runner concurrently and returns once all of them are inert.
func (g *Group) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	runners := append([]Runner(nil), g.runners...)
	g.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(runners))
	for _, r := range runners {
		go func(r Runner) {
			defer wg.Done()
			r.Stop()
		}(r)
	}
	wg.Wait()
}

// RefreshAll refreshes every runner; the returned channel closes when all have settled.
func (g *Group) RefreshAll() <-chan struct{} {
	g.mu.Lock()
	runners := append([]Runner(nil), g.runners...)
	g.mu.Unlock()

	waits := make([]<-chan struct{}, 0, len(runners))
	for _, r := range runners {
		waits = append(waits, r.Refresh())
	}
	done := make(chan struct{})
	go func() {
		for _, w := range waits {
			<-w
		}
		close(done)
	}()
	return done
}

// Statuses in registration order.
func (g *Group) Statuses() []Status {
	g.mu.Lock()
	runners := append([]Runner(nil), g.runners...)
	g.mu.Unlock()

	out := make([]Status, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.Status())
	}
	return out
}
