package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates a source answered but had no quote for the query.
var ErrNotFound = errors.New("pricing: no quote found")

// PriceUnavailableError indicates every source failed and no cached value
// exists for the symbol.
type PriceUnavailableError struct {
	Symbol string
	Err    error
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("price unavailable for %s: %v", e.Symbol, e.Err)
}

func (e *PriceUnavailableError) Unwrap() error {
	return e.Err
}

// TokenPrice is a resolved USD quote for a token symbol.
type TokenPrice struct {
	Symbol    string
	USD       decimal.Decimal
	Source    string
	FetchedAt time.Time
	Stale     bool
}

// PrimarySource answers quotes keyed by token symbol.
type PrimarySource interface {
	PriceBySymbol(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SecondarySource answers quotes keyed by its own canonical identifiers,
// several per request.
type SecondarySource interface {
	PricesByID(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}
