// Package dashboard is the terminal front end: it renders fused boards and routes keystrokes
// through the chord state machine.
package dashboard

import (
	"context"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/betbot/opsboard/internal/fusion"
	"github.com/betbot/opsboard/internal/poll"
)

var log = logrus.WithField("module", "dashboard")

// BoardFeed publishes boards latest-wins.
type BoardFeed interface {
	Subscribe() (<-chan *fusion.Board, func())
}

// Options for Run.
type Options struct {
	Pages        PageSource
	Intervals    PageIntervals
	Observer     poll.Observer
	Fills        FillSubmitter
	ChordTimeout time.Duration
}

// Run blocks until the user quits or ctx is done. It is a no-op when stdout is not a terminal.
func Run(ctx context.Context, feed BoardFeed, opts Options) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Warn("stdout is not a terminal, dashboard disabled")
		<-ctx.Done()
		return nil
	}

	boards, unsubscribe := feed.Subscribe()
	defer unsubscribe()

	m := newModel(ctx, modelConfig{
		Boards:       boards,
		Pages:        opts.Pages,
		Intervals:    opts.Intervals,
		Observer:     opts.Observer,
		Fills:        opts.Fills,
		ChordTimeout: opts.ChordTimeout,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(model); ok {
		fm.page.close()
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("dashboard closed")
	return nil
}
