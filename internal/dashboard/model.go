package dashboard

import (
	"context"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sys/unix"

	"github.com/betbot/opsboard/internal/fills"
	"github.com/betbot/opsboard/internal/fusion"
	"github.com/betbot/opsboard/internal/keys"
	"github.com/betbot/opsboard/internal/poll"
	"github.com/betbot/opsboard/pkg/opsapi"
)

// FillSubmitter posts a batch of manual fills.
type FillSubmitter interface {
	Submit(ctx context.Context, fills []opsapi.FillEntry) (*fills.Result, error)
}

type boardMsg struct {
	board *fusion.Board
}

type pageMsg struct {
	route string
}

type chordExpiredMsg time.Time

type tickMsg time.Time

type fillResultMsg struct {
	result *fills.Result
	err    error
}

type model struct {
	ctx       context.Context
	board     *fusion.Board
	boards    <-chan *fusion.Board
	fsm       *keys.FSM
	route     string
	help      bool
	page      *page
	pages     PageSource
	intervals PageIntervals
	observer  poll.Observer
	form      *fillForm
	submitter FillSubmitter
	now       func() time.Time
	quit      func()
	width     int
	height    int
}

type modelConfig struct {
	Boards       <-chan *fusion.Board
	Pages        PageSource
	Intervals    PageIntervals
	Observer     poll.Observer
	Fills        FillSubmitter
	ChordTimeout time.Duration
	Clock        func() time.Time
}

func newModel(ctx context.Context, cfg modelConfig) model {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return model{
		ctx:       ctx,
		boards:    cfg.Boards,
		fsm:       keys.New(keys.WithTimeout(cfg.ChordTimeout), keys.WithClock(cfg.Clock)),
		route:     keys.RouteHome,
		pages:     cfg.Pages,
		intervals: cfg.Intervals,
		observer:  cfg.Observer,
		form:      newFillForm(cfg.Clock),
		submitter: cfg.Fills,
		now:       cfg.Clock,
		quit: func() {
			// bubbletea swallows ctrl+c; re-raise it so main runs its shutdown path
			_ = unix.Kill(os.Getpid(), unix.SIGINT)
		},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitForBoard(), m.tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case boardMsg:
		m.board = msg.board
		return m, m.waitForBoard()
	case pageMsg:
		if m.page == nil || m.page.route != msg.route {
			return m, nil
		}
		return m, m.waitForPage()
	case chordExpiredMsg:
		m.fsm.Expire(time.Time(msg))
		return m, nil
	case fillResultMsg:
		m.form.finish(msg.result, msg.err)
		return m, nil
	case tickMsg:
		return m, m.tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := msg.String()
	if s == "ctrl+c" {
		return m.exit()
	}
	editing := m.route == keys.RouteLogFills && m.form.editing
	chord := m.fsm.State() == keys.PrefixPending

	intent, ok := m.fsm.Handle(keys.Key{
		Value:       s,
		Modified:    msg.Alt || strings.HasPrefix(s, "ctrl+"),
		InTextInput: editing,
	})
	if editing {
		return m.handleFormKey(msg)
	}
	if ok {
		switch intent.Kind {
		case keys.ToggleHelp:
			m.help = !m.help
			return m, nil
		case keys.Navigate:
			return m.navigate(intent.Route)
		}
	}
	if m.fsm.State() == keys.PrefixPending {
		return m, m.expireChord()
	}
	if chord {
		return m, nil
	}
	switch s {
	case "q":
		return m.exit()
	case "esc":
		m.help = false
	case "i", "enter":
		if m.route == keys.RouteLogFills {
			m.form.editing = true
		}
	}
	return m, nil
}

func (m model) exit() (tea.Model, tea.Cmd) {
	m.page.close()
	m.page = nil
	if m.quit != nil {
		m.quit()
	}
	return m, tea.Quit
}

// navigate swaps page channels: the old route's stop before the new route's start.
func (m model) navigate(route string) (tea.Model, tea.Cmd) {
	m.help = false
	if route == m.route {
		return m, nil
	}
	log.WithField("route", route).Debug("navigate")
	m.page.close()
	m.route = route
	m.page = openPage(m.ctx, route, m.pages, m.intervals, m.observer)
	if m.page == nil {
		return m, nil
	}
	return m, m.waitForPage()
}

func (m model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.form.editing = false
	case tea.KeyBackspace:
		m.form.backspace()
	case tea.KeySpace:
		m.form.insert(" ")
	case tea.KeyRunes:
		m.form.insert(string(msg.Runes))
	case tea.KeyEnter:
		return m, m.submit()
	}
	return m, nil
}

func (m model) submit() tea.Cmd {
	if m.form.pending {
		return nil
	}
	entries, err := m.form.parse()
	if err != nil {
		m.form.finish(nil, err)
		return nil
	}
	if m.submitter == nil {
		m.form.finish(nil, errNoSubmitter)
		return nil
	}
	m.form.pending = true
	ctx, sub := m.ctx, m.submitter
	return func() tea.Msg {
		res, err := sub.Submit(ctx, entries)
		return fillResultMsg{result: res, err: err}
	}
}

func (m model) waitForBoard() tea.Cmd {
	ch := m.boards
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		b, ok := <-ch
		if !ok {
			return nil
		}
		for {
			select {
			case latest, ok := <-ch:
				if !ok {
					return boardMsg{board: b}
				}
				b = latest
			default:
				return boardMsg{board: b}
			}
		}
	}
}

func (m model) waitForPage() tea.Cmd {
	p := m.page
	return func() tea.Msg {
		select {
		case <-p.changed.C():
			return pageMsg{route: p.route}
		case <-p.done:
			return nil
		}
	}
}

func (m model) expireChord() tea.Cmd {
	at := m.fsm.ExpiresAt()
	wait := at.Sub(m.now())
	if wait < 0 {
		wait = 0
	}
	return tea.Tick(wait, func(t time.Time) tea.Msg {
		if t.Before(at) {
			t = at
		}
		return chordExpiredMsg(t)
	})
}

func (m model) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
