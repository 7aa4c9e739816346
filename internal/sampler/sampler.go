package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lp-pool-watcher/internal/chain"
	"lp-pool-watcher/internal/config"
	"lp-pool-watcher/internal/model"
	"lp-pool-watcher/internal/pricing"
)

// PriceResolver is the slice of the resolver the sampler needs.
type PriceResolver interface {
	Resolve(ctx context.Context, symbol string) (pricing.TokenPrice, error)
}

// Sampler turns raw pool reserves and resolved prices into snapshots.
type Sampler struct {
	reader   chain.ReserveReader
	resolver PriceResolver
	logger   zerolog.Logger
}

// New constructs a Sampler.
func New(reader chain.ReserveReader, resolver PriceResolver, logger zerolog.Logger) *Sampler {
	return &Sampler{
		reader:   reader,
		resolver: resolver,
		logger:   logger.With().Str("component", "sampler").Logger(),
	}
}

// Sample reads the pool's reserves and produces a normalized snapshot.
// Errors are either a *chain.ReadError or a *pricing.PriceUnavailableError,
// both of which skip the pool for the cycle.
func (s *Sampler) Sample(ctx context.Context, pool config.Pool) (model.PoolSnapshot, error) {
	reserves, err := s.reader.ReadReserves(ctx, pool)
	if err != nil {
		return model.PoolSnapshot{}, err
	}

	price0, err := s.resolver.Resolve(ctx, reserves.Token0.Symbol)
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("pool %s: %w", pool.Address, err)
	}
	price1, err := s.resolver.Resolve(ctx, reserves.Token1.Symbol)
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("pool %s: %w", pool.Address, err)
	}

	if price0.Stale || price1.Stale {
		s.logger.Warn().
			Str("pool", pool.Name).
			Bool("token0_stale", price0.Stale).
			Bool("token1_stale", price1.Stale).
			Msg("snapshot built from stale prices")
	}

	token0 := position(reserves.Token0, price0)
	token1 := position(reserves.Token1, price1)
	tvl := token0.ValueUSD.Add(token1.ValueUSD)

	if !tvl.IsZero() {
		token0.Share = token0.ValueUSD.Div(tvl)
		token1.Share = token1.ValueUSD.Div(tvl)
	}

	return model.PoolSnapshot{
		PoolAddress: pool.Address,
		PoolName:    pool.Name,
		Token0:      token0,
		Token1:      token1,
		TVLUSD:      tvl,
		TargetToken: pool.TargetToken,
		SampledAt:   time.Now().UTC(),
	}, nil
}

func position(reserve chain.TokenReserve, price pricing.TokenPrice) model.TokenPosition {
	return model.TokenPosition{
		Symbol:   reserve.Symbol,
		Amount:   reserve.Amount,
		PriceUSD: price.USD,
		ValueUSD: reserve.Amount.Mul(price.USD),
		Share:    decimal.Zero,
	}
}
