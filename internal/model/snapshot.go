package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenPosition is one side of a pool at sampling time.
type TokenPosition struct {
	Symbol   string          `json:"symbol"`
	Amount   decimal.Decimal `json:"amount"`
	PriceUSD decimal.Decimal `json:"price_usd"`
	ValueUSD decimal.Decimal `json:"value_usd"`
	Share    decimal.Decimal `json:"share"`
}

// PoolSnapshot is a normalized observation of a pool's reserves.
// Immutable once constructed.
type PoolSnapshot struct {
	PoolAddress string          `json:"pool_address"`
	PoolName    string          `json:"pool_name"`
	Token0      TokenPosition   `json:"token0"`
	Token1      TokenPosition   `json:"token1"`
	TVLUSD      decimal.Decimal `json:"tvl_usd"`
	TargetToken string          `json:"target_token"`
	SampledAt   time.Time       `json:"sampled_at"`
}

// TargetPosition returns the position for the snapshot's target token.
// Falls back to token0 when the configured target matches neither side.
func (s PoolSnapshot) TargetPosition() TokenPosition {
	if s.Token1.Symbol == s.TargetToken {
		return s.Token1
	}
	return s.Token0
}

// Positions returns both token positions in pool order.
func (s PoolSnapshot) Positions() []TokenPosition {
	return []TokenPosition{s.Token0, s.Token1}
}
