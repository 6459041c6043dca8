package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// PriceSource
// ──────────────────────────────────────────────────────────────────────────────

// PriceSource holds a single exchange price reading used for weighted averaging
// of the oracle index price.
type PriceSource struct {
	Exchange  string          `json:"exchange"`
	Price     decimal.Decimal `json:"price"`
	Weight    decimal.Decimal `json:"weight"` // 0–100 integer stored as decimal
	FetchedAt time.Time       `json:"fetched_at"`
}

// IndexPrice is the oracle view of one asset's USD reference price, exposed on
// monitoring surfaces only.  Position amounts entering the health-factor path
// are already oracle-normalized USD values.
type IndexPrice struct {
	Asset     string          `json:"asset"`
	PriceUsd  decimal.Decimal `json:"price_usd"`
	Sources   []PriceSource   `json:"sources"`
	FetchedAt time.Time       `json:"fetched_at"`
}
