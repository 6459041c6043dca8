// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeHealthFactor MsgType = "health_factor"
	MsgTypeLiquidation  MsgType = "liquidation_executed"
	MsgTypeIndexPrices  MsgType = "index_prices"
	MsgTypePlatformRisk MsgType = "platform_risk"
	MsgTypeError        MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// HealthFactorMessage — sent whenever an account's risk snapshot is refreshed.
// ──────────────────────────────────────────────────────────────────────────────

// HealthFactorMessage carries an account's recomputed borrowing risk.
type HealthFactorMessage struct {
	Type               MsgType         `json:"type"`
	UserID             uuid.UUID       `json:"user_id"`
	Chain              string          `json:"chain"`
	HealthFactor       decimal.Decimal `json:"health_factor"`
	TotalCollateralUsd decimal.Decimal `json:"total_collateral_usd"`
	TotalDebtUsd       decimal.Decimal `json:"total_debt_usd"`
	AvailableBorrowUsd decimal.Decimal `json:"available_borrow_usd"`
	Liquidatable       bool            `json:"liquidatable"`
	Timestamp          time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LiquidationMessage — broadcast after a liquidation call completes.
// ──────────────────────────────────────────────────────────────────────────────

// LiquidationMessage notifies clients that a position was liquidated.
type LiquidationMessage struct {
	Type               MsgType         `json:"type"`
	LiquidationID      uuid.UUID       `json:"liquidation_id"`
	TargetUserID       uuid.UUID       `json:"target_user_id"`
	Chain              string          `json:"chain"`
	DebtAsset          string          `json:"debt_asset"`
	CollateralAsset    string          `json:"collateral_asset"`
	DebtCovered        decimal.Decimal `json:"debt_covered"`
	CollateralReceived decimal.Decimal `json:"collateral_received"`
	Timestamp          time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// IndexPricesMessage — periodic oracle snapshot for dashboards.
// ──────────────────────────────────────────────────────────────────────────────

// IndexPriceEntry is one asset's USD reference price.
type IndexPriceEntry struct {
	Asset    string          `json:"asset"`
	PriceUsd decimal.Decimal `json:"price_usd"`
}

// IndexPricesMessage carries the latest index prices for all tracked assets.
type IndexPricesMessage struct {
	Type      MsgType           `json:"type"`
	Prices    []IndexPriceEntry `json:"prices"`
	Timestamp time.Time         `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// PlatformRiskMessage — aggregate exposure, broadcast alongside index prices.
// ──────────────────────────────────────────────────────────────────────────────

// PlatformRiskMessage carries platform-wide collateral/debt totals and the
// current number of at-risk accounts.
type PlatformRiskMessage struct {
	Type               MsgType   `json:"type"`
	TotalCollateralUsd string    `json:"total_collateral_usd"`
	TotalDebtUsd       string    `json:"total_debt_usd"`
	AtRiskAccounts     int       `json:"at_risk_accounts"`
	Timestamp          time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
