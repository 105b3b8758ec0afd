package fusion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/opsboard/internal/catalog"
	"github.com/betbot/opsboard/internal/domain"
	"github.com/betbot/opsboard/internal/feed"
	"github.com/betbot/opsboard/internal/health"
	"github.com/betbot/opsboard/internal/poll"
	"github.com/betbot/opsboard/internal/trend"
)

// Inputs are the latest values of every channel. A nil slice means the channel has no value yet.
type Inputs struct {
	Now        time.Time
	Strategies []domain.Strategy
	Readiness  []domain.ReadinessRecord
	Rebalances []domain.RebalanceEvent
	Journal    []domain.JournalRow
	Exposure   []domain.Exposure
	RiskEvents []domain.RiskEvent
	Freshness  []domain.FreshnessRecord
	Channels   []poll.Status
}

// Options tune a fusion cycle. Zero values fall back to defaults.
type Options struct {
	Catalog         *catalog.Catalog
	Freshness       health.FreshnessPolicy
	System          health.FreshnessPolicy
	SparklineWindow int
	FeedLimit       int
	JournalRows     int
	BookLabels      map[domain.BookID]string
}

func (o Options) withDefaults() Options {
	if o.Catalog == nil {
		o.Catalog = catalog.New(nil, nil)
	}
	if o.Freshness == (health.FreshnessPolicy{}) {
		o.Freshness = health.DefaultFreshnessPolicy
	}
	if o.System == (health.FreshnessPolicy{}) {
		o.System = health.SystemFreshnessPolicy
	}
	if o.SparklineWindow <= 0 {
		o.SparklineWindow = trend.DefaultWindow
	}
	if o.FeedLimit <= 0 {
		o.FeedLimit = feed.DefaultLimit
	}
	if o.JournalRows <= 0 {
		o.JournalRows = 50
	}
	return o
}

// Fuse derives a Board from in. It is pure and total: any combination of absent inputs yields a
// Board, and nothing computed here survives into the next cycle.
func Fuse(in Inputs, opts Options) *Board {
	opts = opts.withDefaults()
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	board := &Board{
		GeneratedAt: now,
		Channels:    append([]poll.Status(nil), in.Channels...),
		Counts:      newCounts(),
	}

	readiness := make(map[string]*domain.ReadinessRecord, len(in.Readiness))
	for i := range in.Readiness {
		readiness[in.Readiness[i].StrategyID] = &in.Readiness[i]
	}
	exposure := make(map[string]domain.Exposure, len(in.Exposure))
	for _, e := range in.Exposure {
		exposure[e.StrategyID] = e
	}
	events := make(map[string][]domain.RebalanceEvent)
	for _, ev := range in.Rebalances {
		events[ev.StrategyID] = append(events[ev.StrategyID], ev)
	}
	journal := make(map[string][]domain.JournalRow)
	for _, r := range in.Journal {
		journal[r.StrategyID] = append(journal[r.StrategyID], r)
	}

	for _, s := range entities(in) {
		view := fuseEntity(s, opts, now, readiness[s.ID], events[s.ID], journal[s.ID], in.Freshness)
		if e, ok := exposure[s.ID]; ok {
			view.Exposure = &ExposureView{GrossPct: e.GrossPct, NetPct: e.NetPct, Capital: e.Capital, Positions: e.Positions}
			if view.Exposure.Capital.IsZero() {
				view.Exposure.Capital = s.Capital
			}
		}
		board.Entities = append(board.Entities, view)
		board.Counts[view.Health]++
	}

	board.Books = books(board.Entities, opts.BookLabels)

	status, sources := health.SystemStatus(opts.System, in.Freshness, now)
	board.System = SystemView{Status: status, Sources: sources}

	board.Alerts = alerts(board)

	label := opts.Catalog.Label
	board.Feed = feed.Merge(opts.FeedLimit,
		feed.FromRebalances(in.Rebalances, label),
		feed.FromJournal(in.Journal, opts.JournalRows, label),
		feed.FromRiskEvents(in.RiskEvents, label),
	)
	return board
}

// entities is the roster when it has arrived, otherwise every id any other channel mentions.
func entities(in Inputs) []domain.Strategy {
	if in.Strategies != nil {
		seen := make(map[string]bool, len(in.Strategies))
		out := make([]domain.Strategy, 0, len(in.Strategies))
		for _, s := range in.Strategies {
			if s.ID == "" || seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			out = append(out, s)
		}
		return out
	}

	seen := map[string]bool{}
	add := func(id string) {
		if id != "" {
			seen[id] = true
		}
	}
	for _, r := range in.Readiness {
		add(r.StrategyID)
	}
	for _, ev := range in.Rebalances {
		add(ev.StrategyID)
	}
	for _, e := range in.Exposure {
		add(e.StrategyID)
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Strategy, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Strategy{ID: id})
	}
	return out
}

func fuseEntity(
	s domain.Strategy,
	opts Options,
	now time.Time,
	rd *domain.ReadinessRecord,
	events []domain.RebalanceEvent,
	rows []domain.JournalRow,
	freshness []domain.FreshnessRecord,
) EntityView {
	meta, known := opts.Catalog.Lookup(s.ID)
	if meta.Name == "" {
		meta.Name = catalog.DeriveLabel(s.ID)
	}
	view := EntityView{
		ID:       s.ID,
		Book:     opts.Catalog.BookOf(s.ID),
		Name:     meta.Name,
		Subtitle: meta.Subtitle,
		Known:    known,
	}

	var latest *domain.RebalanceEvent
	points := make([]trend.Point, 0, len(events))
	rebalances := 0
	for i := range events {
		ev := &events[i]
		if latest == nil || !ev.Date.Before(latest.Date) {
			latest = ev
		}
		if !ev.ShouldRebalance {
			continue
		}
		rebalances++
		view.Metrics.Intents += ev.IntentCount
		points = append(points, trend.Point{Date: ev.Date, Count: 1})
		if view.Metrics.LastRebalance == nil || ev.Date.After(*view.Metrics.LastRebalance) {
			d := ev.Date
			view.Metrics.LastRebalance = &d
		}
	}
	if latest != nil {
		view.Regime = latest.Regime
	}
	view.Metrics.Rebalances = s.RebalanceCount
	if view.Metrics.Rebalances == 0 {
		view.Metrics.Rebalances = rebalances
	}
	view.Sparkline = trend.Build(points, view.Metrics.Rebalances, opts.SparklineWindow)

	view.Metrics.Fills = len(rows)
	for _, r := range rows {
		if r.Posted != nil && !*r.Posted {
			view.Metrics.Unposted++
		}
	}

	verdicts := opts.Freshness.EvaluateAll(sourcesOf(s, freshness), now)
	for _, v := range verdicts {
		if v != domain.HealthOK {
			view.Metrics.StaleSources++
		}
	}

	if rd != nil {
		view.Readiness = &ReadinessView{
			StateFileExists: rd.StateFileExists,
			LastEvalDate:    rd.LastEvalDate,
			Warnings:        append([]string{}, rd.Warnings...),
		}
	}

	verdict := health.Classify(view.Regime, rd, verdicts)
	view.Health = verdict.Status
	view.Reason = verdict.Reason
	return view
}

// sourcesOf narrows freshness to the sources a strategy declares; no declaration means all.
func sourcesOf(s domain.Strategy, recs []domain.FreshnessRecord) []domain.FreshnessRecord {
	if len(s.Sources) == 0 {
		return recs
	}
	want := make(map[string]bool, len(s.Sources))
	for _, name := range s.Sources {
		want[strings.ToLower(strings.TrimSpace(name))] = true
	}
	out := make([]domain.FreshnessRecord, 0, len(s.Sources))
	for _, r := range recs {
		if want[strings.ToLower(r.SourceName)] {
			out = append(out, r)
		}
	}
	return out
}

var bookOrder = []domain.BookID{domain.BookAutomated, domain.BookManual}

func books(entities []EntityView, labels map[domain.BookID]string) []BookView {
	out := make([]BookView, 0, len(bookOrder))
	for _, id := range bookOrder {
		bv := BookView{
			ID:         id,
			Label:      labels[id],
			Strategies: []string{},
			Health:     domain.HealthOK,
			Counts:     newCounts(),
			GrossPct:   decimal.Zero,
			NetPct:     decimal.Zero,
			Capital:    decimal.Zero,
		}
		if bv.Label == "" {
			bv.Label = catalog.DeriveLabel(string(id))
		}
		for _, e := range entities {
			if e.Book != id {
				continue
			}
			bv.Strategies = append(bv.Strategies, e.ID)
			bv.Counts[e.Health]++
			bv.Health = health.Worst(bv.Health, e.Health)
			bv.Rebalances += e.Metrics.Rebalances
			bv.Intents += e.Metrics.Intents
			if e.Exposure != nil {
				bv.GrossPct = bv.GrossPct.Add(e.Exposure.GrossPct)
				bv.NetPct = bv.NetPct.Add(e.Exposure.NetPct)
				bv.Capital = bv.Capital.Add(e.Exposure.Capital)
				bv.Positions += e.Exposure.Positions
			}
		}
		out = append(out, bv)
	}
	return out
}

// alerts rolls channel failures, source freshness and entity health into one list, errors first.
func alerts(b *Board) []domain.Alert {
	out := []domain.Alert{}

	for _, ch := range b.Channels {
		if ch.Err == "" {
			continue
		}
		sev := domain.SeverityError
		text := fmt.Sprintf("%s: %s", ch.Name, ch.Err)
		if ch.HasValue {
			sev = domain.SeverityWarn
			text += " (showing last known data)"
		}
		out = append(out, domain.Alert{Severity: sev, Text: text})
	}

	for _, src := range b.System.Sources {
		switch {
		case src.Status == domain.HealthOK:
		case src.LastError != "":
			out = append(out, domain.Alert{Severity: severity(src.Status), Text: fmt.Sprintf("source %s: %s", src.Source, src.LastError)})
		case !src.HasAge:
			out = append(out, domain.Alert{Severity: severity(src.Status), Text: fmt.Sprintf("source %s has never been updated", src.Source)})
		default:
			out = append(out, domain.Alert{Severity: severity(src.Status), Text: fmt.Sprintf("source %s is %s old", src.Source, src.Age.Round(time.Minute))})
		}
	}

	for _, e := range b.Entities {
		if e.Health == domain.HealthOK {
			continue
		}
		id := e.ID
		out = append(out, domain.Alert{Severity: severity(e.Health), Text: e.Name + ": " + describe(e), StrategyID: &id})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity == domain.SeverityError && out[j].Severity != domain.SeverityError
	})
	return out
}

func describe(e EntityView) string {
	switch e.Reason {
	case health.ReasonRiskOff, health.ReasonTransition:
		return "regime " + e.Regime
	case health.ReasonStateMissing:
		return "state file missing"
	case health.ReasonParseFailure:
		return "upstream source failed to parse"
	case health.ReasonReadinessWarn:
		if e.Readiness != nil && len(e.Readiness.Warnings) > 0 {
			return strings.Join(e.Readiness.Warnings, "; ")
		}
		return "readiness warnings"
	case health.ReasonStaleSource:
		return fmt.Sprintf("%d stale source(s)", e.Metrics.StaleSources)
	default:
		return string(e.Health)
	}
}

func severity(h domain.Health) domain.AlertSeverity {
	if h == domain.HealthError {
		return domain.SeverityError
	}
	return domain.SeverityWarn
}

func newCounts() map[domain.Health]int {
	return map[domain.Health]int{domain.HealthOK: 0, domain.HealthWarn: 0, domain.HealthError: 0}
}
