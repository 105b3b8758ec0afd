// Package fusion joins the latest channel snapshots into per-strategy and per-book views.
package fusion

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/opsboard/internal/domain"
	"github.com/betbot/opsboard/internal/health"
	"github.com/betbot/opsboard/internal/poll"
)

// Board is the view-model of one fusion cycle. It is never mutated after Fuse returns.
type Board struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Entities    []EntityView          `json:"entities"`
	Books       []BookView            `json:"books"`
	Alerts      []domain.Alert        `json:"alerts"`
	Feed        []domain.FeedEvent    `json:"feed"`
	System      SystemView            `json:"system"`
	Channels    []poll.Status         `json:"channels"`
	Counts      map[domain.Health]int `json:"counts"`
}

// EntityView is the derived state of one strategy.
type EntityView struct {
	ID        string         `json:"id"`
	Book      domain.BookID  `json:"book"`
	Name      string         `json:"name"`
	Subtitle  string         `json:"subtitle,omitempty"`
	Known     bool           `json:"known"` // metadata came from the table, not derived from the id
	Health    domain.Health  `json:"health"`
	Reason    health.Reason  `json:"reason"`
	Regime    string         `json:"regime,omitempty"`
	Sparkline []int          `json:"sparkline"`
	Metrics   Metrics        `json:"metrics"`
	Exposure  *ExposureView  `json:"exposure,omitempty"`
	Readiness *ReadinessView `json:"readiness,omitempty"`
}

// Metrics are plain counts for one strategy.
type Metrics struct {
	Rebalances    int        `json:"rebalances"`
	Intents       int        `json:"intents"`
	LastRebalance *time.Time `json:"last_rebalance,omitempty"`
	Fills         int        `json:"fills"`
	Unposted      int        `json:"unposted"`
	StaleSources  int        `json:"stale_sources"`
}

// ExposureView is the latest exposure of one strategy.
type ExposureView struct {
	GrossPct  decimal.Decimal `json:"gross_pct"`
	NetPct    decimal.Decimal `json:"net_pct"`
	Capital   decimal.Decimal `json:"capital"`
	Positions int             `json:"positions"`
}

// ReadinessView mirrors the readiness record when one was reported.
type ReadinessView struct {
	StateFileExists bool       `json:"state_file_exists"`
	LastEvalDate    *time.Time `json:"last_eval_date,omitempty"`
	Warnings        []string   `json:"warnings"`
}

// BookView is a pure reduction over the entities of one book.
type BookView struct {
	ID         domain.BookID         `json:"id"`
	Label      string                `json:"label"`
	Strategies []string              `json:"strategies"`
	Health     domain.Health         `json:"health"`
	Counts     map[domain.Health]int `json:"counts"`
	Rebalances int                   `json:"rebalances"`
	Intents    int                   `json:"intents"`
	GrossPct   decimal.Decimal       `json:"gross_pct"`
	NetPct     decimal.Decimal       `json:"net_pct"`
	Capital    decimal.Decimal       `json:"capital"`
	Positions  int                   `json:"positions"`
}

// SystemView is the aggregate freshness display.
type SystemView struct {
	Status  domain.Health         `json:"status"`
	Sources []health.SourceStatus `json:"sources"`
}

// Entity returns the view for id.
func (b *Board) Entity(id string) (EntityView, bool) {
	if b == nil {
		return EntityView{}, false
	}
	for _, e := range b.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return EntityView{}, false
}

// Book returns the view for id.
func (b *Board) Book(id domain.BookID) (BookView, bool) {
	if b == nil {
		return BookView{}, false
	}
	for _, bk := range b.Books {
		if bk.ID == id {
			return bk, true
		}
	}
	return BookView{}, false
}

// AlertsFor returns the alerts attached to one strategy.
func (b *Board) AlertsFor(id string) []domain.Alert {
	if b == nil {
		return nil
	}
	var out []domain.Alert
	for _, a := range b.Alerts {
		if a.StrategyID != nil && *a.StrategyID == id {
			out = append(out, a)
		}
	}
	return out
}
