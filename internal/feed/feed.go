// Package feed merges heterogeneous event streams into one bounded, time-ordered activity feed.
package feed

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/betbot/opsboard/internal/domain"
)

const (
	// DefaultLimit bounds the merged feed.
	DefaultLimit = 30
	// TimeLayout is zero-padded so lexicographic order equals chronological order.
	TimeLayout = "2006-01-02T15:04:05"
	dateLayout = "2006-01-02"
)

// Labeler turns a strategy id into its display label.
type Labeler func(strategyID string) string

// FromRebalances maps rebalance events that actually rebalanced.
func FromRebalances(events []domain.RebalanceEvent, label Labeler) []domain.FeedEvent {
	out := make([]domain.FeedEvent, 0, len(events))
	for _, ev := range events {
		if !ev.ShouldRebalance {
			continue
		}
		text := fmt.Sprintf("rebalance, %d intents", ev.IntentCount)
		if ev.Regime != "" {
			text = fmt.Sprintf("rebalance in %s, %d intents", ev.Regime, ev.IntentCount)
		}
		out = append(out, domain.FeedEvent{
			Time:          ev.Date.UTC().Format(dateLayout),
			Kind:          domain.FeedRebalance,
			StrategyLabel: labelOf(label, ev.StrategyID),
			Text:          text,
		})
	}
	return out
}

// FromJournal maps the n most recent journal rows. n <= 0 keeps every row.
func FromJournal(rows []domain.JournalRow, n int, label Labeler) []domain.FeedEvent {
	recent := make([]domain.JournalRow, len(rows))
	copy(recent, rows)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Timestamp.After(recent[j].Timestamp) })
	if n > 0 && len(recent) > n {
		recent = recent[:n]
	}

	out := make([]domain.FeedEvent, 0, len(recent))
	for _, r := range recent {
		text := fmt.Sprintf("%s %s %+.2f%%", r.Side, r.Symbol, r.DeltaPct)
		if r.Posted != nil && !*r.Posted {
			text += " (unposted)"
		}
		out = append(out, domain.FeedEvent{
			Time:          formatTime(r.Timestamp),
			Kind:          domain.FeedFill,
			StrategyLabel: labelOf(label, r.StrategyID),
			Text:          text,
		})
	}
	return out
}

// FromRiskEvents maps risk-control log entries as info events.
func FromRiskEvents(events []domain.RiskEvent, label Labeler) []domain.FeedEvent {
	out := make([]domain.FeedEvent, 0, len(events))
	for _, ev := range events {
		parts := make([]string, 0, 3)
		if ev.Kind != "" {
			parts = append(parts, ev.Kind)
		}
		if ev.Regime != "" {
			parts = append(parts, ev.Regime)
		}
		if ev.Text != "" {
			parts = append(parts, ev.Text)
		}
		lbl := "portfolio"
		if ev.StrategyID != "" {
			lbl = labelOf(label, ev.StrategyID)
		}
		out = append(out, domain.FeedEvent{
			Time:          formatTime(ev.Time),
			Kind:          domain.FeedInfo,
			StrategyLabel: lbl,
			Text:          strings.Join(parts, ": "),
		})
	}
	return out
}

// Merge concatenates the streams, sorts descending by Time (stable, so ties keep input order)
// and keeps the first limit entries.
func Merge(limit int, streams ...[]domain.FeedEvent) []domain.FeedEvent {
	if limit <= 0 {
		limit = DefaultLimit
	}
	total := 0
	for _, s := range streams {
		total += len(s)
	}
	all := make([]domain.FeedEvent, 0, total)
	for _, s := range streams {
		all = append(all, s...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time > all[j].Time })
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func labelOf(label Labeler, id string) string {
	if label == nil {
		return id
	}
	return label(id)
}
