package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lp-pool-watcher/internal/detector"
	"lp-pool-watcher/internal/model"
)

// SimulateAlert runs a synthetic change through detection and delivery so
// the alert pipeline can be verified without touching the chain.
func (a *App) SimulateAlert(ctx context.Context, deltaPct float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	dispatcher := a.newDispatcher()
	if dispatcher == nil {
		return errors.New("no alert channel configured")
	}

	previous := syntheticSnapshot(decimal.NewFromInt(1))
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(deltaPct).Div(decimal.NewFromInt(100)))
	current := syntheticSnapshot(factor)
	current.SampledAt = previous.SampledAt.Add(a.Config.Monitoring.Interval)

	thresholds := detector.NewThresholds(
		a.Config.Monitoring.ThresholdPct,
		a.Config.Monitoring.WarningMultiplier,
		a.Config.Monitoring.CriticalMultiplier,
	)

	events := detector.Detect(&previous, current, thresholds)
	if len(events) == 0 {
		return fmt.Errorf("delta %.2f%% is below the %.2f%% threshold; nothing to send", deltaPct, a.Config.Monitoring.ThresholdPct)
	}

	a.Logger.Info().Int("events", len(events)).Msg("dispatching simulated alert")
	dispatcher.Dispatch(ctx, events, current)
	return nil
}

// syntheticSnapshot builds a plausible snapshot with both sides scaled by
// the given factor.
func syntheticSnapshot(factor decimal.Decimal) model.PoolSnapshot {
	amount0 := decimal.NewFromInt(25_000_000).Mul(factor)
	price0 := decimal.NewFromFloat(0.02)
	amount1 := decimal.NewFromInt(1_000).Mul(factor)
	price1 := decimal.NewFromInt(500)

	token0 := model.TokenPosition{
		Symbol:   "TOKEN",
		Amount:   amount0,
		PriceUSD: price0,
		ValueUSD: amount0.Mul(price0),
	}
	token1 := model.TokenPosition{
		Symbol:   "WBNB",
		Amount:   amount1,
		PriceUSD: price1,
		ValueUSD: amount1.Mul(price1),
	}
	tvl := token0.ValueUSD.Add(token1.ValueUSD)
	if !tvl.IsZero() {
		token0.Share = token0.ValueUSD.Div(tvl)
		token1.Share = token1.ValueUSD.Div(tvl)
	}

	return model.PoolSnapshot{
		PoolAddress: "0x0000000000000000000000000000000000000000",
		PoolName:    "simulated",
		Token0:      token0,
		Token1:      token1,
		TVLUSD:      tvl,
		TargetToken: "TOKEN",
		SampledAt:   time.Now().UTC(),
	}
}
