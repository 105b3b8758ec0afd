package domain

import "time"

// ParseStatus of an upstream data source.
type ParseStatus string

const (
	ParseOK    ParseStatus = "ok"
	ParseError ParseStatus = "error"
)

// FreshnessRecord describes one upstream data source. Re-fetched wholesale on every poll.
type FreshnessRecord struct {
	SourceName     string
	LastModifiedAt *time.Time
	ParseStatus    ParseStatus
	LastError      string
}

// ReadinessRecord describes the persisted state of one strategy.
type ReadinessRecord struct {
	StrategyID      string
	StateFileExists bool
	LastEvalDate    *time.Time
	Warnings        []string
}

// RebalanceEvent is an append-only record of one periodic re-evaluation.
type RebalanceEvent struct {
	StrategyID      string
	Date            time.Time
	Regime          string
	ShouldRebalance bool
	IntentCount     int
}

// Side of a journal row.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// JournalRow is one fill or intent from the unified trade journal.
type JournalRow struct {
	Timestamp  time.Time
	StrategyID string
	Symbol     string
	Side       Side
	DeltaPct   float64
	Posted     *bool
}

// RiskEvent is one entry of the risk-control / regime event log.
type RiskEvent struct {
	Time       time.Time
	StrategyID string // empty for portfolio-wide events
	Kind       string
	Regime     string
	Text       string
}
