package domain

import "github.com/shopspring/decimal"

// BookID groups strategies by execution mode.
type BookID string

const (
	BookAutomated BookID = "automated"
	BookManual    BookID = "manual"
)

// Strategy is one roster row.
type Strategy struct {
	ID             string
	RebalanceCount int      // total rebalances reported by the roster, 0 if absent
	Sources        []string // upstream data sources the strategy depends on, empty = all
	Capital        decimal.Decimal
}

// Exposure is the latest portfolio exposure for one strategy.
type Exposure struct {
	StrategyID string
	GrossPct   decimal.Decimal
	NetPct     decimal.Decimal
	Capital    decimal.Decimal
	Positions  int
}

// Meta is the display metadata for a strategy id.
type Meta struct {
	Name     string
	Subtitle string
}
