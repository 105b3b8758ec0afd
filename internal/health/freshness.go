package health

import (
	"time"

	"github.com/betbot/opsboard/internal/domain"
)

// FreshnessPolicy turns a source's age into a verdict.
// ErrorAfter <= 0 disables the age-based error band.
type FreshnessPolicy struct {
	WarnAfter  time.Duration
	ErrorAfter time.Duration
}

// DefaultFreshnessPolicy is the per-entity policy: stale after 4h, never an age-based error.
var DefaultFreshnessPolicy = FreshnessPolicy{WarnAfter: 4 * time.Hour}

// SystemFreshnessPolicy is the stricter aggregate "system" view.
var SystemFreshnessPolicy = FreshnessPolicy{WarnAfter: 6 * time.Hour, ErrorAfter: 24 * time.Hour}

// Evaluate applies the policy to one record.
//
// Order: parse error, missing timestamp, error band, warn band.
func (p FreshnessPolicy) Evaluate(rec domain.FreshnessRecord, now time.Time) domain.Health {
	if rec.ParseStatus == domain.ParseError {
		return domain.HealthError
	}
	if rec.LastModifiedAt == nil {
		return domain.HealthWarn
	}
	age := now.Sub(*rec.LastModifiedAt)
	if p.ErrorAfter > 0 && age > p.ErrorAfter {
		return domain.HealthError
	}
	if p.WarnAfter > 0 && age > p.WarnAfter {
		return domain.HealthWarn
	}
	return domain.HealthOK
}

// EvaluateAll returns one verdict per record, in input order.
func (p FreshnessPolicy) EvaluateAll(recs []domain.FreshnessRecord, now time.Time) []domain.Health {
	out := make([]domain.Health, 0, len(recs))
	for _, r := range recs {
		out = append(out, p.Evaluate(r, now))
	}
	return out
}

// SourceStatus is the verdict for one source, kept with its name for display.
type SourceStatus struct {
	Source    string        `json:"source"`
	Status    domain.Health `json:"status"`
	Age       time.Duration `json:"age_ns"`
	HasAge    bool          `json:"has_age"`
	LastError string        `json:"last_error,omitempty"`
}

// SystemStatus rolls every source into the aggregate display. Overall is the worst verdict.
func SystemStatus(p FreshnessPolicy, recs []domain.FreshnessRecord, now time.Time) (domain.Health, []SourceStatus) {
	overall := domain.HealthOK
	sources := make([]SourceStatus, 0, len(recs))
	for _, r := range recs {
		st := SourceStatus{Source: r.SourceName, Status: p.Evaluate(r, now), LastError: r.LastError}
		if r.LastModifiedAt != nil {
			st.Age = now.Sub(*r.LastModifiedAt)
			st.HasAge = true
		}
		if st.Status.Worse(overall) {
			overall = st.Status
		}
		sources = append(sources, st)
	}
	return overall, sources
}
