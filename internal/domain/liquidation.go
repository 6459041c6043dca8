package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// LiquidationStatus tracks the lifecycle of one liquidation call.
type LiquidationStatus string

const (
	LiquidationPending   LiquidationStatus = "pending"
	LiquidationCompleted LiquidationStatus = "completed"
	LiquidationFailed    LiquidationStatus = "failed"
)

// DefaultCloseFactor caps the share of an account's debt that a single
// liquidation call may cover.  Overridable via RISK_CLOSE_FACTOR.
var DefaultCloseFactor = decimal.NewFromFloat(0.5)

// ──────────────────────────────────────────────────────────────────────────────
// LiquidationCall
// ──────────────────────────────────────────────────────────────────────────────

// LiquidationCall is the audit record for one liquidation execution.  Inserted
// as pending inside the execution transaction and flipped to completed before
// commit; a failed row is written for reconciliation when execution aborts.
type LiquidationCall struct {
	ID                 uuid.UUID         `json:"id"                  db:"id"`
	LiquidatorID       uuid.UUID         `json:"liquidator_id"       db:"liquidator_id"`
	TargetUserID       uuid.UUID         `json:"target_user_id"      db:"target_user_id"`
	Chain              string            `json:"chain"               db:"chain"`
	CollateralAsset    string            `json:"collateral_asset"    db:"collateral_asset"`
	DebtAsset          string            `json:"debt_asset"          db:"debt_asset"`
	DebtCovered        decimal.Decimal   `json:"debt_covered"        db:"debt_covered"`
	CollateralReceived decimal.Decimal   `json:"collateral_received" db:"collateral_received"`
	LiquidationBonus   decimal.Decimal   `json:"liquidation_bonus"   db:"liquidation_bonus"`
	Status             LiquidationStatus `json:"status"              db:"status"`
	FailReason         *string           `json:"fail_reason"         db:"fail_reason"`
	CreatedAt          time.Time         `json:"created_at"          db:"created_at"`
	CompletedAt        *time.Time        `json:"completed_at"        db:"completed_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LiquidationOpportunity
// ──────────────────────────────────────────────────────────────────────────────

// LiquidationOpportunity is one confirmed-eligible target as seen by the
// scanner, ranked by PotentialProfit.
type LiquidationOpportunity struct {
	TargetUserID       uuid.UUID       `json:"target_user_id"`
	Chain              string          `json:"chain"`
	HealthFactor       decimal.Decimal `json:"health_factor"`
	TotalCollateralUsd decimal.Decimal `json:"total_collateral_usd"`
	TotalDebtUsd       decimal.Decimal `json:"total_debt_usd"`
	MaxLiquidationUsd  decimal.Decimal `json:"max_liquidation_usd"`
	LiquidationBonus   decimal.Decimal `json:"liquidation_bonus"`
	PotentialProfit    decimal.Decimal `json:"potential_profit"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Liquidation arithmetic
// ──────────────────────────────────────────────────────────────────────────────

// MaxLiquidationAmount returns the largest debt amount a single call may
// cover: totalDebt × closeFactor.
func MaxLiquidationAmount(totalDebtUsd, closeFactor decimal.Decimal) decimal.Decimal {
	if !totalDebtUsd.IsPositive() {
		return decimal.Zero
	}
	return totalDebtUsd.Mul(closeFactor)
}

// ClampDebtToCover caps the requested debt amount at the eligible maximum.
func ClampDebtToCover(requested, maxAmount decimal.Decimal) decimal.Decimal {
	if requested.GreaterThan(maxAmount) {
		return maxAmount
	}
	return requested
}

// CollateralSeized returns the collateral paid out for covering debtToCover:
// debtToCover × (1 + bonus).
func CollateralSeized(debtToCover, bonus decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return debtToCover.Mul(one.Add(bonus))
}

// ExecuteLiquidationRequest carries the validated inputs for one execution.
type ExecuteLiquidationRequest struct {
	LiquidatorID    uuid.UUID
	TargetUserID    uuid.UUID
	Chain           string
	CollateralAsset string
	DebtAsset       string
	DebtRateMode    RateMode
	DebtToCover     decimal.Decimal
}
