package opsapi

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/opsboard/internal/domain"
)

// Conversions from wire payloads to domain values. Rows without an identifier are dropped,
// absent fields become zero values. None of them fail.

func (p MatrixPayload) ToDomain() []domain.Strategy {
	out := make([]domain.Strategy, 0, len(p.Strategies))
	for _, r := range p.Strategies {
		id := strings.TrimSpace(r.StrategyID)
		if id == "" {
			continue
		}
		if r.Enabled != nil && !*r.Enabled {
			continue
		}
		s := domain.Strategy{ID: id, Sources: r.Sources, Capital: nullDec(r.Capital)}
		if r.RebalanceCount != nil {
			s.RebalanceCount = *r.RebalanceCount
		}
		out = append(out, s)
	}
	return out
}

func (p ReadinessPayload) ToDomain() []domain.ReadinessRecord {
	out := make([]domain.ReadinessRecord, 0, len(p.Strategies))
	for _, r := range p.Strategies {
		id := strings.TrimSpace(r.StrategyID)
		if id == "" {
			continue
		}
		rec := domain.ReadinessRecord{
			StrategyID:   id,
			LastEvalDate: r.LastEvalDate.Ptr(),
			Warnings:     nonEmpty(r.Warnings),
		}
		// an unreported flag is not evidence of a missing state file
		rec.StateFileExists = r.StateFileExists == nil || *r.StateFileExists
		out = append(out, rec)
	}
	return out
}

func (p RebalancesPayload) ToDomain() []domain.RebalanceEvent {
	out := make([]domain.RebalanceEvent, 0, len(p.Events))
	for _, r := range p.Events {
		id := strings.TrimSpace(r.StrategyID)
		if id == "" || r.Date.Ptr() == nil {
			continue
		}
		ev := domain.RebalanceEvent{StrategyID: id, Date: r.Date.Value()}
		if r.Regime != nil {
			ev.Regime = *r.Regime
		}
		if r.ShouldRebalance != nil {
			ev.ShouldRebalance = *r.ShouldRebalance
		}
		if r.IntentCount != nil {
			ev.IntentCount = *r.IntentCount
		}
		out = append(out, ev)
	}
	return out
}

func (p JournalPayload) ToDomain() []domain.JournalRow {
	out := make([]domain.JournalRow, 0, len(p.Rows))
	for _, r := range p.Rows {
		if r.Timestamp.Ptr() == nil {
			continue
		}
		row := domain.JournalRow{
			Timestamp:  r.Timestamp.Value(),
			StrategyID: strings.TrimSpace(r.StrategyID),
			Symbol:     r.Symbol,
			Side:       domain.Side(strings.ToUpper(strings.TrimSpace(r.Side))),
			Posted:     r.Posted,
		}
		if r.DeltaPct != nil {
			row.DeltaPct = *r.DeltaPct
		}
		out = append(out, row)
	}
	return out
}

func (p ExposurePayload) ToDomain() []domain.Exposure {
	out := make([]domain.Exposure, 0, len(p.Strategies))
	for _, r := range p.Strategies {
		id := strings.TrimSpace(r.StrategyID)
		if id == "" {
			continue
		}
		e := domain.Exposure{
			StrategyID: id,
			GrossPct:   nullDec(r.GrossPct),
			NetPct:     nullDec(r.NetPct),
			Capital:    nullDec(r.Capital),
		}
		if r.Positions != nil {
			e.Positions = *r.Positions
		}
		out = append(out, e)
	}
	return out
}

func (p RiskEventsPayload) ToDomain() []domain.RiskEvent {
	out := make([]domain.RiskEvent, 0, len(p.Events))
	for _, r := range p.Events {
		if r.Time.Ptr() == nil {
			continue
		}
		out = append(out, domain.RiskEvent{
			Time:       r.Time.Value(),
			StrategyID: strings.TrimSpace(r.StrategyID),
			Kind:       r.Kind,
			Regime:     r.Regime,
			Text:       r.Text,
		})
	}
	return out
}

func (p FreshnessPayload) ToDomain() []domain.FreshnessRecord {
	out := make([]domain.FreshnessRecord, 0, len(p.Sources))
	for _, r := range p.Sources {
		name := strings.TrimSpace(r.SourceName)
		if name == "" {
			continue
		}
		rec := domain.FreshnessRecord{
			SourceName:     name,
			LastModifiedAt: r.LastModifiedAt.Ptr(),
			ParseStatus:    domain.ParseOK,
		}
		if strings.EqualFold(strings.TrimSpace(r.ParseStatus), string(domain.ParseError)) {
			rec.ParseStatus = domain.ParseError
		}
		if r.LastError != nil {
			rec.LastError = *r.LastError
		}
		out = append(out, rec)
	}
	return out
}

func nullDec(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

func nonEmpty(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
