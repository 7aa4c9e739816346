package detector

import (
	"github.com/shopspring/decimal"

	"lp-pool-watcher/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Thresholds holds the alert threshold and the severity tier multipliers.
type Thresholds struct {
	ThresholdPct       decimal.Decimal
	WarningMultiplier  decimal.Decimal
	CriticalMultiplier decimal.Decimal
}

// NewThresholds builds Thresholds from configuration floats.
func NewThresholds(thresholdPct, warningMul, criticalMul float64) Thresholds {
	return Thresholds{
		ThresholdPct:       decimal.NewFromFloat(thresholdPct),
		WarningMultiplier:  decimal.NewFromFloat(warningMul),
		CriticalMultiplier: decimal.NewFromFloat(criticalMul),
	}
}

// tiers returns the severity ladder ordered highest multiplier first, so
// the first qualifying tier wins ties.
func (t Thresholds) tiers() []struct {
	multiplier decimal.Decimal
	severity   model.Severity
} {
	return []struct {
		multiplier decimal.Decimal
		severity   model.Severity
	}{
		{t.CriticalMultiplier, model.SeverityCritical},
		{t.WarningMultiplier, model.SeverityWarning},
		{decimal.NewFromInt(1), model.SeverityNotice},
	}
}

// Detect compares a pool's current snapshot against the previous one and
// returns zero, one, or two change events. A nil previous snapshot (first
// observation) yields no events. Pure: identical inputs give identical
// output.
func Detect(previous *model.PoolSnapshot, current model.PoolSnapshot, thresholds Thresholds) []model.ChangeEvent {
	if previous == nil {
		return nil
	}

	var events []model.ChangeEvent

	if event, ok := check(model.ChangeTVL, "", previous.TVLUSD, current.TVLUSD, current, thresholds); ok {
		events = append(events, event)
	}

	prevTarget := previous.TargetPosition()
	curTarget := current.TargetPosition()
	if event, ok := check(model.ChangeTokenAmount, curTarget.Symbol, prevTarget.Amount, curTarget.Amount, current, thresholds); ok {
		events = append(events, event)
	}

	return events
}

// check evaluates one metric. The delta is undefined when the previous
// value is zero; the metric is skipped for that cycle.
func check(kind model.ChangeKind, symbol string, previous, current decimal.Decimal, snapshot model.PoolSnapshot, thresholds Thresholds) (model.ChangeEvent, bool) {
	if previous.IsZero() {
		return model.ChangeEvent{}, false
	}

	deltaPct := current.Sub(previous).Div(previous).Mul(hundred)
	severity, ok := classify(deltaPct.Abs(), thresholds)
	if !ok {
		return model.ChangeEvent{}, false
	}

	return model.ChangeEvent{
		PoolAddress: snapshot.PoolAddress,
		PoolName:    snapshot.PoolName,
		Kind:        kind,
		Symbol:      symbol,
		Previous:    previous,
		Current:     current,
		DeltaPct:    deltaPct,
		Severity:    severity,
		At:          snapshot.SampledAt,
	}, true
}

func classify(absDeltaPct decimal.Decimal, thresholds Thresholds) (model.Severity, bool) {
	if thresholds.ThresholdPct.IsZero() {
		return "", false
	}
	for _, tier := range thresholds.tiers() {
		if absDeltaPct.GreaterThanOrEqual(thresholds.ThresholdPct.Mul(tier.multiplier)) {
			return tier.severity, true
		}
	}
	return "", false
}
