package opsapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Envelope is the uniform wrapper of every read endpoint. Every field may be absent.
type Envelope[T any] struct {
	AsOfUTC      *Time         `json:"as_of_utc"`
	SourceWindow *SourceWindow `json:"source_window"`
	DataVersion  string        `json:"data_version"`
	Warnings     []string      `json:"warnings"`
	Data         *T            `json:"data"`
}

// Payload returns the data or its zero value when absent.
func (e *Envelope[T]) Payload() T {
	if e == nil || e.Data == nil {
		var zero T
		return zero
	}
	return *e.Data
}

// SourceWindow bounds the rows the backend considered.
type SourceWindow struct {
	DateMin *Time `json:"date_min"`
	DateMax *Time `json:"date_max"`
	Rows    *int  `json:"rows"`
}

// Time accepts RFC3339, naive ISO timestamps, plain dates and unix seconds.
// Unparseable input decodes to the zero value rather than failing the payload.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] != '"' {
		if secs, err := strconv.ParseFloat(string(b), 64); err == nil {
			t.Time = time.Unix(int64(secs), 0).UTC()
		}
		return nil
	}
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	t.Time = ParseTime(s)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// ParseTime tries every accepted layout; naive values are read as UTC.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// Ptr returns the time, or nil when t is nil or zero.
func (t *Time) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// Value returns the time or zero.
func (t *Time) Value() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}

// MatrixPayload is the strategy roster/matrix.
type MatrixPayload struct {
	Strategies []MatrixRow `json:"strategies"`
}

type MatrixRow struct {
	StrategyID     string              `json:"strategy_id"`
	RebalanceCount *int                `json:"rebalance_count"`
	Sources        []string            `json:"sources"`
	Capital        decimal.NullDecimal `json:"capital"`
	Enabled        *bool               `json:"enabled"`
}

// ReadinessPayload is readiness-by-strategy.
type ReadinessPayload struct {
	Strategies []ReadinessRow `json:"strategies"`
}

type ReadinessRow struct {
	StrategyID      string   `json:"strategy_id"`
	StateFileExists *bool    `json:"state_file_exists"`
	LastEvalDate    *Time    `json:"last_eval_date"`
	Warnings        []string `json:"warnings"`
}

// RebalancesPayload is the rebalance-event history.
type RebalancesPayload struct {
	Events []RebalanceRow `json:"events"`
}

type RebalanceRow struct {
	StrategyID      string             `json:"strategy_id"`
	Date            *Time              `json:"date"`
	Regime          *string            `json:"regime"`
	ShouldRebalance *bool              `json:"should_rebalance"`
	IntentCount     *int               `json:"intent_count"`
	Allocations     map[string]float64 `json:"allocations"`
}

// JournalPayload is the unified trade journal.
type JournalPayload struct {
	Rows []JournalRowWire `json:"rows"`
}

type JournalRowWire struct {
	Timestamp  *Time    `json:"timestamp"`
	StrategyID string   `json:"strategy_id"`
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	DeltaPct   *float64 `json:"delta_pct"`
	Posted     *bool    `json:"posted"`
}

// JournalFilter narrows the journal query. Zero fields are not sent.
type JournalFilter struct {
	StrategyID string
	Symbol     string
	Side       string
	From       time.Time
	To         time.Time
	Limit      int
}

// ExposurePayload is the portfolio exposure overview.
type ExposurePayload struct {
	Strategies   []ExposureRow       `json:"strategies"`
	TotalCapital decimal.NullDecimal `json:"total_capital"`
}

type ExposureRow struct {
	StrategyID string              `json:"strategy_id"`
	GrossPct   decimal.NullDecimal `json:"gross_pct"`
	NetPct     decimal.NullDecimal `json:"net_pct"`
	Capital    decimal.NullDecimal `json:"capital"`
	Positions  *int                `json:"positions"`
}

// RiskEventsPayload is the risk-control / regime event log.
type RiskEventsPayload struct {
	Events []RiskEventRow `json:"events"`
}

type RiskEventRow struct {
	Time       *Time  `json:"time"`
	StrategyID string `json:"strategy_id"`
	Kind       string `json:"kind"`
	Regime     string `json:"regime"`
	Text       string `json:"text"`
}

// FreshnessPayload lists upstream data sources.
type FreshnessPayload struct {
	Sources []FreshnessRow `json:"sources"`
}

type FreshnessRow struct {
	SourceName     string  `json:"source_name"`
	LastModifiedAt *Time   `json:"last_modified_at"`
	ParseStatus    string  `json:"parse_status"`
	LastError      *string `json:"last_error"`
}

// PipelinePayload is the decision-pipeline time series.
type PipelinePayload struct {
	Series []PipelinePoint `json:"series"`
}

type PipelinePoint struct {
	Date       *Time  `json:"date"`
	StrategyID string `json:"strategy_id"`
	Stage      string `json:"stage"`
	Count      *int   `json:"count"`
}

// SlippagePayload summarises execution quality.
type SlippagePayload struct {
	Summary []SlippageRow `json:"summary"`
}

type SlippageRow struct {
	StrategyID     string   `json:"strategy_id"`
	Symbol         string   `json:"symbol"`
	Fills          *int     `json:"fills"`
	AvgSlippageBps *float64 `json:"avg_slippage_bps"`
	P95SlippageBps *float64 `json:"p95_slippage_bps"`
}

// TradeActivityPayload aggregates trades per day.
type TradeActivityPayload struct {
	Daily []ActivityRow `json:"daily"`
}

type ActivityRow struct {
	Date       *Time  `json:"date"`
	StrategyID string `json:"strategy_id"`
	Trades     *int   `json:"trades"`
}

// BacktestsPayload lists backtest runs.
type BacktestsPayload struct {
	Runs []BacktestRun `json:"runs"`
}

type BacktestRun struct {
	RunID       string   `json:"run_id"`
	StrategyID  string   `json:"strategy_id"`
	StartedAt   *Time    `json:"started_at"`
	Status      string   `json:"status"`
	CAGR        *float64 `json:"cagr"`
	Sharpe      *float64 `json:"sharpe"`
	MaxDrawdown *float64 `json:"max_drawdown"`
}

// FillEntry is one manually logged fill. The backend dedupes on date+strategy+symbol+side+qty+price.
type FillEntry struct {
	Date       string          `json:"date" validate:"required,datetime=2006-01-02"`
	StrategyID string          `json:"strategy_id" validate:"required"`
	Symbol     string          `json:"symbol" validate:"required"`
	Side       string          `json:"side" validate:"required,oneof=BUY SELL"`
	Qty        decimal.Decimal `json:"qty" validate:"gt=0"`
	Price      decimal.Decimal `json:"price" validate:"gt=0"`
	Note       string          `json:"note,omitempty"`
}

// LogFillsResult reports what the backend stored.
type LogFillsResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}
