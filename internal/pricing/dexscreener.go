package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const dexScreenerSearchPath = "/latest/dex/search"

// DexScreenerOptions parameterise the DexScreener source.
type DexScreenerOptions struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint
	UserAgent  string
}

// DexScreener resolves token symbols to USD prices by searching trading
// pairs and taking the most liquid one as authoritative.
type DexScreener struct {
	opts    DexScreenerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDexScreener constructs a DexScreener source.
func NewDexScreener(opts DexScreenerOptions, logger zerolog.Logger) *DexScreener {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}

	return &DexScreener{
		opts:    opts,
		logger:  logger.With().Str("component", "dexscreener").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type dexPair struct {
	DexID     string `json:"dexId"`
	PairAddr  string `json:"pairAddress"`
	BaseToken struct {
		Symbol string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Symbol string `json:"symbol"`
	} `json:"quoteToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
}

type dexSearchResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// PriceBySymbol searches pairs for the symbol and returns the USD price of
// the pair with the highest reported liquidity, volume as tie-break.
func (d *DexScreener) PriceBySymbol(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s%s?q=%s", d.baseURL, dexScreenerSearchPath, url.QueryEscape(symbol))

	payload, err := d.fetch(ctx, endpoint)
	if err != nil {
		return decimal.Decimal{}, err
	}

	var res dexSearchResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode search response: %w", err)
	}

	best, ok := bestPair(res.Pairs, symbol)
	if !ok {
		return decimal.Decimal{}, ErrNotFound
	}

	price, err := decimal.NewFromString(best.PriceUSD)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", best.PriceUSD, err)
	}
	if price.IsZero() {
		return decimal.Decimal{}, ErrNotFound
	}

	d.logger.Debug().
		Str("symbol", symbol).
		Str("pair", best.PairAddr).
		Str("dex", best.DexID).
		Float64("liquidity_usd", best.Liquidity.USD).
		Msg("resolved price from best pair")

	return price, nil
}

func (d *DexScreener) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	operation := func() ([]byte, error) {
		return d.doRequest(ctx, endpoint)
	}

	tries := d.opts.MaxRetries
	if tries == 0 {
		tries = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(tries),
	)
}

func (d *DexScreener) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(d.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("dexscreener status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return payload, nil
}

// bestPair picks the pair whose base token matches the symbol with the
// highest liquidity; 24h volume breaks ties.
func bestPair(pairs []dexPair, symbol string) (dexPair, bool) {
	var best dexPair
	found := false
	for _, pair := range pairs {
		if !strings.EqualFold(pair.BaseToken.Symbol, symbol) {
			continue
		}
		if pair.PriceUSD == "" {
			continue
		}
		if !found ||
			pair.Liquidity.USD > best.Liquidity.USD ||
			(pair.Liquidity.USD == best.Liquidity.USD && pair.Volume.H24 > best.Volume.H24) {
			best = pair
			found = true
		}
	}
	return best, found
}

var _ PrimarySource = (*DexScreener)(nil)
