package health

import (
	"strings"

	"github.com/betbot/opsboard/internal/domain"
)

// Reason names the rule that decided a verdict.
type Reason string

const (
	ReasonRiskOff       Reason = "regime_risk_off"
	ReasonStateMissing  Reason = "state_file_missing"
	ReasonParseFailure  Reason = "source_parse_failure"
	ReasonReadinessWarn Reason = "readiness_warnings"
	ReasonStaleSource   Reason = "source_stale"
	ReasonTransition    Reason = "regime_transition"
	ReasonClean         Reason = "clean"
)

// Verdict is a health status plus the first rule that matched.
type Verdict struct {
	Status domain.Health `json:"status"`
	Reason Reason        `json:"reason"`
}

// Classify combines regime, readiness and freshness in strict precedence order; first match wins.
// An empty regime means unknown, a nil readiness means absent. Both only disable their rules.
func Classify(regime string, readiness *domain.ReadinessRecord, verdicts []domain.Health) Verdict {
	upper := strings.ToUpper(regime)

	if strings.Contains(upper, "RISK_OFF") {
		return Verdict{domain.HealthError, ReasonRiskOff}
	}
	if readiness != nil && !readiness.StateFileExists {
		return Verdict{domain.HealthError, ReasonStateMissing}
	}
	if contains(verdicts, domain.HealthError) {
		return Verdict{domain.HealthError, ReasonParseFailure}
	}
	if readiness != nil && len(readiness.Warnings) > 0 {
		return Verdict{domain.HealthWarn, ReasonReadinessWarn}
	}
	if contains(verdicts, domain.HealthWarn) {
		return Verdict{domain.HealthWarn, ReasonStaleSource}
	}
	if strings.Contains(upper, "TRANSITION") {
		return Verdict{domain.HealthWarn, ReasonTransition}
	}
	return Verdict{domain.HealthOK, ReasonClean}
}

// Worst returns the most severe status, ok for an empty list.
func Worst(statuses ...domain.Health) domain.Health {
	out := domain.HealthOK
	for _, s := range statuses {
		if s.Worse(out) {
			out = s
		}
	}
	return out
}

func contains(vs []domain.Health, want domain.Health) bool {
	for _, v := range vs {
		if v == want {
			return true
		}
	}
	return false
}
