package domain

// AlertSeverity of a rolled-up alert.
type AlertSeverity string

const (
	SeverityWarn  AlertSeverity = "warn"
	SeverityError AlertSeverity = "error"
)

// Alert is recomputed every fusion cycle and never persisted.
type Alert struct {
	Severity   AlertSeverity `json:"severity"`
	Text       string        `json:"text"`
	StrategyID *string       `json:"strategy_id"`
}

// FeedKind classifies activity feed entries.
type FeedKind string

const (
	FeedRebalance FeedKind = "rebalance"
	FeedFill      FeedKind = "fill"
	FeedInfo      FeedKind = "info"
)

// FeedEvent is one merged activity entry. Time must be a zero-padded sortable string.
type FeedEvent struct {
	Time          string   `json:"time"`
	Kind          FeedKind `json:"kind"`
	StrategyLabel string   `json:"strategy_label"`
	Text          string   `json:"text"`
}
