package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePrimary struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakePrimary) PriceBySymbol(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, ErrNotFound
	}
	return price, nil
}

func (f *fakePrimary) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSecondary struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakeSecondary) PricesByID(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal)
	for _, id := range ids {
		if price, ok := f.prices[id]; ok {
			out[id] = price
		}
	}
	return out, nil
}

func (f *fakeSecondary) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func idMap(pairs map[string]string) func(string) string {
	return func(symbol string) string {
		return pairs[symbol]
	}
}

func newTestResolver(primary PrimarySource, secondary SecondarySource, ttl time.Duration, ids map[string]string) *Resolver {
	return NewResolver(primary, secondary, ResolverOptions{
		TTL:         ttl,
		IDForSymbol: idMap(ids),
	}, zerolog.Nop())
}

func TestResolvePrimaryHit(t *testing.T) {
	primary := &fakePrimary{prices: map[string]decimal.Decimal{"CAKE": decimal.NewFromFloat(2.5)}}
	resolver := newTestResolver(primary, nil, time.Minute, nil)

	price, err := resolver.Resolve(context.Background(), "cake")
	require.NoError(t, err)
	require.Equal(t, "CAKE", price.Symbol)
	require.True(t, price.USD.Equal(decimal.NewFromFloat(2.5)))
	require.Equal(t, "dexscreener", price.Source)
	require.False(t, price.Stale)
}

func TestResolveFreshCacheSkipsNetwork(t *testing.T) {
	primary := &fakePrimary{prices: map[string]decimal.Decimal{"CAKE": decimal.NewFromFloat(2.5)}}
	resolver := newTestResolver(primary, nil, time.Minute, nil)

	_, err := resolver.Resolve(context.Background(), "CAKE")
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), "CAKE")
	require.NoError(t, err)

	require.Equal(t, 1, primary.callCount())
}

func TestResolveExpiredEntryRefetches(t *testing.T) {
	primary := &fakePrimary{prices: map[string]decimal.Decimal{"CAKE": decimal.NewFromFloat(2.5)}}
	resolver := newTestResolver(primary, nil, time.Minute, nil)

	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	resolver.now = func() time.Time { return current }

	_, err := resolver.Resolve(context.Background(), "CAKE")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = resolver.Resolve(context.Background(), "CAKE")
	require.NoError(t, err)

	require.Equal(t, 2, primary.callCount())
}

func TestResolveSecondaryFallback(t *testing.T) {
	primary := &fakePrimary{}
	secondary := &fakeSecondary{prices: map[string]decimal.Decimal{"pancakeswap-token": decimal.NewFromFloat(2.4)}}
	resolver := newTestResolver(primary, secondary, time.Minute, map[string]string{"CAKE": "pancakeswap-token"})

	price, err := resolver.Resolve(context.Background(), "CAKE")
	require.NoError(t, err)
	require.Equal(t, "coingecko", price.Source)
	require.True(t, price.USD.Equal(decimal.NewFromFloat(2.4)))
}

func TestResolveStaleFallbackKeepsTimestamp(t *testing.T) {
	primary := &fakePrimary{prices: map[string]decimal.Decimal{"CAKE": decimal.NewFromFloat(2.5)}}
	resolver := newTestResolver(primary, nil, time.Minute, nil)

	fetchedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	current := fetchedAt
	resolver.now = func() time.Time { return current }

	_, err := resolver.Resolve(context.Background(), "CAKE")
	require.NoError(t, err)

	primary.mu.Lock()
	primary.err = errors.New("upstream down")
	primary.mu.Unlock()

	current = current.Add(10 * time.Minute)
	price, err := resolver.Resolve(context.Background(), "CAKE")
	require.NoError(t, err)
	require.True(t, price.Stale)
	require.Equal(t, fetchedAt, price.FetchedAt)
	require.True(t, price.USD.Equal(decimal.NewFromFloat(2.5)))
}

func TestResolveUnavailableWithoutCache(t *testing.T) {
	primary := &fakePrimary{err: errors.New("upstream down")}
	resolver := newTestResolver(primary, nil, time.Minute, nil)

	_, err := resolver.Resolve(context.Background(), "CAKE")
	require.Error(t, err)

	var unavailable *PriceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, "CAKE", unavailable.Symbol)
}

func TestResolveAllBatchesSecondary(t *testing.T) {
	primary := &fakePrimary{prices: map[string]decimal.Decimal{"CAKE": decimal.NewFromFloat(2.5)}}
	secondary := &fakeSecondary{prices: map[string]decimal.Decimal{
		"wbnb":        decimal.NewFromInt(500),
		"binance-usd": decimal.NewFromInt(1),
	}}
	resolver := newTestResolver(primary, secondary, time.Minute, map[string]string{
		"WBNB": "wbnb",
		"BUSD": "binance-usd",
	})

	prices := resolver.ResolveAll(context.Background(), []string{"CAKE", "WBNB", "BUSD", "wbnb"})
	require.Len(t, prices, 3)
	require.Equal(t, "dexscreener", prices["CAKE"].Source)
	require.Equal(t, "coingecko", prices["WBNB"].Source)
	require.Equal(t, "coingecko", prices["BUSD"].Source)

	// Both secondary symbols resolve through a single batched request.
	require.Equal(t, 1, secondary.callCount())
}

func TestResolveAllFailedSymbolDoesNotAbortOthers(t *testing.T) {
	primary := &fakePrimary{prices: map[string]decimal.Decimal{"CAKE": decimal.NewFromFloat(2.5)}}
	resolver := newTestResolver(primary, nil, time.Minute, nil)

	prices := resolver.ResolveAll(context.Background(), []string{"CAKE", "UNKNOWN"})
	require.Len(t, prices, 1)
	require.Contains(t, prices, "CAKE")
	require.NotContains(t, prices, "UNKNOWN")
}
