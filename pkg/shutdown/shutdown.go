// Package shutdown runs registered teardown handlers under one deadline.
package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "shutdown")

// Handler releases one resource. It should return once done or when ctx expires.
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	handler Handler
}

// Manager collects handlers and runs them concurrently on Shutdown.
type Manager struct {
	mu       sync.Mutex
	handlers []entry
	done     bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers handler under name. Registration after Shutdown is ignored.
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done || handler == nil {
		return
	}
	m.handlers = append(m.handlers, entry{name: name, handler: handler})
}

// Shutdown runs every handler once and blocks until all finish or ctx expires.
// It reports whether every handler finished in time without error.
func (m *Manager) Shutdown(ctx context.Context) bool {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return true
	}
	m.done = true
	handlers := m.handlers
	m.handlers = nil
	m.mu.Unlock()

	if len(handlers) == 0 {
		return true
	}
	log.Infof("shutting down %d component(s)", len(handlers))

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed bool
	)
	wg.Add(len(handlers))
	for _, h := range handlers {
		go func(h entry) {
			defer wg.Done()
			if err := h.handler(ctx); err != nil {
				log.WithField("component", h.name).Errorf("shutdown failed: %v", err)
				failMu.Lock()
				failed = true
				failMu.Unlock()
				return
			}
			log.WithField("component", h.name).Debug("stopped")
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		failMu.Lock()
		defer failMu.Unlock()
		return !failed
	case <-ctx.Done():
		log.Warnf("shutdown timed out: %v", ctx.Err())
		return false
	}
}
