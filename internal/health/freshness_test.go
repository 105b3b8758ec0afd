package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/opsboard/internal/domain"
)

func ts(t time.Time) *time.Time { return &t }

func TestFreshness_ParseErrorWinsRegardlessOfAge(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{0, time.Minute, 5 * time.Hour, 72 * time.Hour} {
		rec := domain.FreshnessRecord{
			SourceName:     "prices",
			LastModifiedAt: ts(now.Add(-age)),
			ParseStatus:    domain.ParseError,
		}
		assert.Equal(t, domain.HealthError, DefaultFreshnessPolicy.Evaluate(rec, now), "age=%s", age)
	}
	// no timestamp at all is still an error when the parse failed
	assert.Equal(t, domain.HealthError, DefaultFreshnessPolicy.Evaluate(domain.FreshnessRecord{ParseStatus: domain.ParseError}, now))
}

func TestFreshness_DefaultPolicy(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		rec  domain.FreshnessRecord
		want domain.Health
	}{
		{"missing timestamp", domain.FreshnessRecord{ParseStatus: domain.ParseOK}, domain.HealthWarn},
		{"fresh", domain.FreshnessRecord{LastModifiedAt: ts(now.Add(-time.Hour)), ParseStatus: domain.ParseOK}, domain.HealthOK},
		{"exactly 4h", domain.FreshnessRecord{LastModifiedAt: ts(now.Add(-4 * time.Hour)), ParseStatus: domain.ParseOK}, domain.HealthOK},
		{"5h stale", domain.FreshnessRecord{LastModifiedAt: ts(now.Add(-5 * time.Hour)), ParseStatus: domain.ParseOK}, domain.HealthWarn},
		{"3 days stale stays warn", domain.FreshnessRecord{LastModifiedAt: ts(now.Add(-72 * time.Hour)), ParseStatus: domain.ParseOK}, domain.HealthWarn},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultFreshnessPolicy.Evaluate(tc.rec, now))
		})
	}
}

func TestFreshness_SystemPolicy(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []domain.FreshnessRecord{
		{SourceName: "a", LastModifiedAt: ts(now.Add(-5 * time.Hour)), ParseStatus: domain.ParseOK},
		{SourceName: "b", LastModifiedAt: ts(now.Add(-7 * time.Hour)), ParseStatus: domain.ParseOK},
		{SourceName: "c", LastModifiedAt: ts(now.Add(-25 * time.Hour)), ParseStatus: domain.ParseOK},
	}
	got := SystemFreshnessPolicy.EvaluateAll(recs, now)
	assert.Equal(t, []domain.Health{domain.HealthOK, domain.HealthWarn, domain.HealthError}, got)

	overall, sources := SystemStatus(SystemFreshnessPolicy, recs, now)
	assert.Equal(t, domain.HealthError, overall)
	assert.Len(t, sources, 3)
	assert.True(t, sources[0].HasAge)
	assert.Equal(t, 5*time.Hour, sources[0].Age)

	overall, sources = SystemStatus(SystemFreshnessPolicy, nil, now)
	assert.Equal(t, domain.HealthOK, overall)
	assert.Empty(t, sources)
}
