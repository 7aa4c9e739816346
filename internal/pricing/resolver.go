package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ResolverOptions tune cache behaviour and secondary-source mapping.
type ResolverOptions struct {
	TTL time.Duration
	// IDForSymbol maps a token symbol to the secondary source's canonical
	// identifier. Empty means the secondary lookup is skipped.
	IDForSymbol func(symbol string) string
}

type cacheEntry struct {
	price     decimal.Decimal
	source    string
	fetchedAt time.Time
}

// Resolver resolves token symbols to USD prices through a primary source
// with secondary fallback, honoring a TTL-bounded cache. Safe for
// concurrent use; entries for different symbols refresh independently.
type Resolver struct {
	primary   PrimarySource
	secondary SecondarySource
	opts      ResolverOptions
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewResolver constructs a Resolver.
func NewResolver(primary PrimarySource, secondary SecondarySource, opts ResolverOptions, logger zerolog.Logger) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.IDForSymbol == nil {
		opts.IDForSymbol = func(string) string { return "" }
	}
	return &Resolver{
		primary:   primary,
		secondary: secondary,
		opts:      opts,
		logger:    logger.With().Str("component", "price_resolver").Logger(),
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

// Resolve returns a USD price for the symbol. A fresh cache entry is
// returned without any network call. When every source fails, an expired
// entry is returned flagged stale; without one the error is a
// *PriceUnavailableError.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (TokenPrice, error) {
	key := strings.ToUpper(symbol)

	if entry, ok := r.lookup(key, true); ok {
		return tokenPrice(key, entry, false), nil
	}

	price, source, err := r.fetchOne(ctx, key)
	if err == nil {
		entry := r.store(key, price, source)
		return tokenPrice(key, entry, false), nil
	}

	if entry, ok := r.lookup(key, false); ok {
		r.logger.Warn().Str("symbol", key).Err(err).
			Time("fetched_at", entry.fetchedAt).
			Msg("price refresh failed, serving stale value")
		return tokenPrice(key, entry, true), nil
	}

	return TokenPrice{}, &PriceUnavailableError{Symbol: key, Err: err}
}

// ResolveAll resolves a set of symbols, fetching cache misses as
// concurrently as the sources allow. Fallback order stays per-symbol:
// primary first, then one batched secondary call for the leftovers. A
// failed symbol never aborts the others; it is simply absent from the
// result map (after a logged warning) unless a stale entry can stand in.
func (r *Resolver) ResolveAll(ctx context.Context, symbols []string) map[string]TokenPrice {
	resolved := make(map[string]TokenPrice)
	var misses []string

	seen := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		key := strings.ToUpper(symbol)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if entry, ok := r.lookup(key, true); ok {
			resolved[key] = tokenPrice(key, entry, false)
		} else {
			misses = append(misses, key)
		}
	}
	if len(misses) == 0 {
		return resolved
	}

	var mu sync.Mutex
	primaryErrs := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range misses {
		g.Go(func() error {
			price, err := r.primary.PriceBySymbol(gctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				primaryErrs[key] = err
				return nil
			}
			entry := r.store(key, price, "dexscreener")
			resolved[key] = tokenPrice(key, entry, false)
			return nil
		})
	}
	_ = g.Wait()

	r.fillFromSecondary(ctx, primaryErrs, resolved)

	for key, err := range primaryErrs {
		if _, ok := resolved[key]; ok {
			continue
		}
		if entry, ok := r.lookup(key, false); ok {
			resolved[key] = tokenPrice(key, entry, true)
			continue
		}
		r.logger.Warn().Str("symbol", key).Err(err).Msg("symbol left unresolved")
	}

	return resolved
}

// fillFromSecondary batches the secondary lookup for every failed symbol
// that has a configured identifier.
func (r *Resolver) fillFromSecondary(ctx context.Context, failed map[string]error, resolved map[string]TokenPrice) {
	if r.secondary == nil || len(failed) == 0 {
		return
	}

	symbolByID := make(map[string]string, len(failed))
	ids := make([]string, 0, len(failed))
	for key := range failed {
		id := r.opts.IDForSymbol(key)
		if id == "" {
			continue
		}
		symbolByID[id] = key
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}

	prices, err := r.secondary.PricesByID(ctx, ids)
	if err != nil {
		r.logger.Warn().Err(err).Int("ids", len(ids)).Msg("secondary batch lookup failed")
		return
	}

	for id, price := range prices {
		key, ok := symbolByID[id]
		if !ok {
			continue
		}
		entry := r.store(key, price, "coingecko")
		resolved[key] = tokenPrice(key, entry, false)
	}
}

// fetchOne runs the per-symbol fallback chain: primary, then secondary if
// an identifier is configured.
func (r *Resolver) fetchOne(ctx context.Context, key string) (decimal.Decimal, string, error) {
	price, primaryErr := r.primary.PriceBySymbol(ctx, key)
	if primaryErr == nil {
		return price, "dexscreener", nil
	}
	if !errors.Is(primaryErr, ErrNotFound) {
		r.logger.Debug().Str("symbol", key).Err(primaryErr).Msg("primary source failed")
	}

	id := r.opts.IDForSymbol(key)
	if id == "" || r.secondary == nil {
		return decimal.Decimal{}, "", fmt.Errorf("primary failed and no secondary id configured: %w", primaryErr)
	}

	prices, secondaryErr := r.secondary.PricesByID(ctx, []string{id})
	if secondaryErr != nil {
		return decimal.Decimal{}, "", fmt.Errorf("primary: %v; secondary: %w", primaryErr, secondaryErr)
	}
	quote, ok := prices[id]
	if !ok {
		return decimal.Decimal{}, "", fmt.Errorf("primary: %v; secondary: %w", primaryErr, ErrNotFound)
	}
	return quote, "coingecko", nil
}

// lookup returns the cached entry for key. With freshOnly it reports
// false for entries older than the TTL.
func (r *Resolver) lookup(key string, freshOnly bool) (cacheEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[key]
	if !ok {
		return cacheEntry{}, false
	}
	if freshOnly && r.now().Sub(entry.fetchedAt) >= r.opts.TTL {
		return cacheEntry{}, false
	}
	return entry, true
}

// store replaces the cache entry for key atomically.
func (r *Resolver) store(key string, price decimal.Decimal, source string) cacheEntry {
	entry := cacheEntry{price: price, source: source, fetchedAt: r.now()}
	r.mu.Lock()
	r.cache[key] = entry
	r.mu.Unlock()
	return entry
}

func tokenPrice(key string, entry cacheEntry, stale bool) TokenPrice {
	return TokenPrice{
		Symbol:    key,
		USD:       entry.price,
		Source:    entry.source,
		FetchedAt: entry.fetchedAt,
		Stale:     stale,
	}
}
