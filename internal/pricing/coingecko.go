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

const coinGeckoSimplePricePath = "/api/v3/simple/price"

// CoinGeckoOptions parameterise the CoinGecko source.
type CoinGeckoOptions struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint
	UserAgent  string
}

// CoinGecko resolves prices through the simple-price endpoint, keyed by
// CoinGecko's own coin identifiers. Several ids batch into one request.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs a CoinGecko source.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// PricesByID fetches USD prices for the given coin ids in one call. Ids
// missing from the response are simply absent from the result map.
func (c *CoinGecko) PricesByID(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	endpoint := c.baseURL + coinGeckoSimplePricePath + "?" + query.Encode()

	payload, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var res map[string]map[string]json.Number
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode simple price response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(res))
	for id, quote := range res {
		usd, ok := quote["usd"]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(usd.String())
		if err != nil {
			c.logger.Warn().Str("id", id).Str("usd", usd.String()).Msg("unparseable price skipped")
			continue
		}
		prices[id] = price
	}

	c.logger.Debug().Int("requested", len(ids)).Int("resolved", len(prices)).Msg("simple price batch complete")
	return prices, nil
}

func (c *CoinGecko) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	operation := func() ([]byte, error) {
		return c.doRequest(ctx, endpoint)
	}

	tries := c.opts.MaxRetries
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

func (c *CoinGecko) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return payload, nil
}

var _ SecondarySource = (*CoinGecko)(nil)
