package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChangeKind identifies which metric moved.
type ChangeKind string

const (
	ChangeTVL         ChangeKind = "TVL"
	ChangeTokenAmount ChangeKind = "TOKEN_AMOUNT"
)

// Severity classifies how far past the alert threshold a change landed.
type Severity string

const (
	SeverityNotice   Severity = "NOTICE"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ChangeEvent records one economically significant change between two
// consecutive snapshots of the same pool. Transient: produced and consumed
// within a single monitoring cycle.
type ChangeEvent struct {
	PoolAddress string          `json:"pool_address"`
	PoolName    string          `json:"pool_name"`
	Kind        ChangeKind      `json:"kind"`
	Symbol      string          `json:"symbol,omitempty"`
	Previous    decimal.Decimal `json:"previous"`
	Current     decimal.Decimal `json:"current"`
	DeltaPct    decimal.Decimal `json:"delta_pct"`
	Severity    Severity        `json:"severity"`
	At          time.Time       `json:"at"`
}
