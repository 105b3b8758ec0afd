package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/opsboard/internal/domain"
)

func cleanReadiness() *domain.ReadinessRecord {
	return &domain.ReadinessRecord{StrategyID: "s1", StateFileExists: true}
}

func TestClassify_RiskOffAlwaysError(t *testing.T) {
	for _, regime := range []string{"RISK_OFF", "risk_off", "Risk_Off_Hard", "pre-risk_off"} {
		v := Classify(regime, cleanReadiness(), []domain.Health{domain.HealthOK, domain.HealthOK})
		assert.Equal(t, domain.HealthError, v.Status, regime)
		assert.Equal(t, ReasonRiskOff, v.Reason, regime)
	}
}

func TestClassify_MissingStateDominatesCleanRegime(t *testing.T) {
	r := &domain.ReadinessRecord{StrategyID: "s1", StateFileExists: false}
	v := Classify("RISK_ON", r, nil)
	assert.Equal(t, Verdict{domain.HealthError, ReasonStateMissing}, v)
}

func TestClassify_Precedence(t *testing.T) {
	warned := &domain.ReadinessRecord{StrategyID: "s1", StateFileExists: true, Warnings: []string{"late eval"}}

	cases := []struct {
		name      string
		regime    string
		readiness *domain.ReadinessRecord
		verdicts  []domain.Health
		want      Verdict
	}{
		{"stale only", "", nil, []domain.Health{domain.HealthWarn}, Verdict{domain.HealthWarn, ReasonStaleSource}},
		{"all clean", "", cleanReadiness(), []domain.Health{domain.HealthOK}, Verdict{domain.HealthOK, ReasonClean}},
		{"nothing known", "", nil, nil, Verdict{domain.HealthOK, ReasonClean}},
		{"parse failure beats readiness warnings", "", warned, []domain.Health{domain.HealthError}, Verdict{domain.HealthError, ReasonParseFailure}},
		{"readiness warnings beat staleness", "", warned, []domain.Health{domain.HealthWarn}, Verdict{domain.HealthWarn, ReasonReadinessWarn}},
		{"transition", "Transition", cleanReadiness(), nil, Verdict{domain.HealthWarn, ReasonTransition}},
		{"stale beats transition", "TRANSITION", nil, []domain.Health{domain.HealthWarn}, Verdict{domain.HealthWarn, ReasonStaleSource}},
		{"risk off beats missing state", "RISK_OFF", &domain.ReadinessRecord{}, nil, Verdict{domain.HealthError, ReasonRiskOff}},
		{"risk on clean", "RISK_ON", cleanReadiness(), []domain.Health{domain.HealthOK}, Verdict{domain.HealthOK, ReasonClean}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.regime, tc.readiness, tc.verdicts))
		})
	}
}

func TestWorst(t *testing.T) {
	assert.Equal(t, domain.HealthOK, Worst())
	assert.Equal(t, domain.HealthWarn, Worst(domain.HealthOK, domain.HealthWarn, domain.HealthOK))
	assert.Equal(t, domain.HealthError, Worst(domain.HealthError, domain.HealthWarn))
}
