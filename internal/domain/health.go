package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Constants
// ──────────────────────────────────────────────────────────────────────────────

// HealthFactorSentinel is reported when an account carries no debt or no
// collateral: there is nothing to liquidate, so the account is "infinitely"
// safe.  Stored as-is in the snapshot row.
var HealthFactorSentinel = decimal.NewFromInt(999)

// LiquidationCutoff is the health factor below which an account becomes
// eligible for liquidation.  The comparison is strict: HF == 1.0 is safe.
var LiquidationCutoff = decimal.NewFromInt(1)

// ──────────────────────────────────────────────────────────────────────────────
// HealthFactorSnapshot
// ──────────────────────────────────────────────────────────────────────────────

// HealthFactorSnapshot is the derived risk cache for one (user, chain) pair.
// It is fully recomputed and upserted after every balance-changing operation;
// the position tables remain the source of truth.
type HealthFactorSnapshot struct {
	ID                   uuid.UUID       `json:"id"                    db:"id"`
	UserID               uuid.UUID       `json:"user_id"               db:"user_id"`
	Chain                string          `json:"chain"                 db:"chain"`
	HealthFactor         decimal.Decimal `json:"health_factor"         db:"health_factor"`
	TotalCollateralUsd   decimal.Decimal `json:"total_collateral_usd"  db:"total_collateral_usd"`
	TotalDebtUsd         decimal.Decimal `json:"total_debt_usd"        db:"total_debt_usd"`
	AvailableBorrowUsd   decimal.Decimal `json:"available_borrow_usd"  db:"available_borrow_usd"`
	LTV                  decimal.Decimal `json:"ltv"                   db:"ltv"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold" db:"liquidation_threshold"`
	LastCalculatedAt     time.Time       `json:"last_calculated_at"    db:"last_calculated_at"`
}

// IsLiquidatable reports whether this snapshot makes the account eligible for
// liquidation: health factor strictly below 1 with outstanding debt.
func (s *HealthFactorSnapshot) IsLiquidatable() bool {
	return s.HealthFactor.LessThan(LiquidationCutoff) && s.TotalDebtUsd.IsPositive()
}

// IsStale reports whether the snapshot is older than maxAge.  Consumers use
// this to distinguish a fresh risk figure from one left behind by a failed
// recompute.
func (s *HealthFactorSnapshot) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastCalculatedAt) > maxAge
}

// ──────────────────────────────────────────────────────────────────────────────
// ComputeHealthFactor — the core risk arithmetic
// ──────────────────────────────────────────────────────────────────────────────

// CollateralInput is one qualifying supply position joined with its reserve's
// risk parameters.  Amounts are oracle-normalized USD values.
type CollateralInput struct {
	AmountUsd            decimal.Decimal
	LTV                  decimal.Decimal
	LiquidationThreshold decimal.Decimal
}

// DebtInput is one borrow position's outstanding USD amount.
type DebtInput struct {
	AmountUsd decimal.Decimal
}

// ComputeHealthFactor aggregates collateral and debt into the account risk
// figures.  Pure arithmetic, deterministic for a given input set.
//
//	totalCollateral = Σ amount
//	weightedLtv     = Σ amount × ltv
//	weightedLT      = Σ amount × liquidationThreshold
//	healthFactor    = totalCollateral × (weightedLT / totalCollateral) / totalDebt
//	availableBorrow = max(0, totalCollateral × avgLtv − totalDebt)
//
// When debt or collateral is zero the health factor is the 999 sentinel.
// Timestamps are not set here; the caller stamps LastCalculatedAt on persist.
func ComputeHealthFactor(userID uuid.UUID, chain string, collateral []CollateralInput, debt []DebtInput) HealthFactorSnapshot {
	var (
		totalCollateral decimal.Decimal
		weightedLtv     decimal.Decimal
		weightedLT      decimal.Decimal
		totalDebt       decimal.Decimal
	)

	for _, c := range collateral {
		if !c.AmountUsd.IsPositive() {
			continue
		}
		totalCollateral = totalCollateral.Add(c.AmountUsd)
		weightedLtv = weightedLtv.Add(c.AmountUsd.Mul(c.LTV))
		weightedLT = weightedLT.Add(c.AmountUsd.Mul(c.LiquidationThreshold))
	}
	for _, d := range debt {
		if !d.AmountUsd.IsPositive() {
			continue
		}
		totalDebt = totalDebt.Add(d.AmountUsd)
	}

	snap := HealthFactorSnapshot{
		UserID:             userID,
		Chain:              chain,
		TotalCollateralUsd: totalCollateral,
		TotalDebtUsd:       totalDebt,
		HealthFactor:       HealthFactorSentinel,
	}

	if totalCollateral.IsPositive() {
		snap.LTV = weightedLtv.Div(totalCollateral)
		snap.LiquidationThreshold = weightedLT.Div(totalCollateral)
	}

	if totalDebt.IsPositive() && totalCollateral.IsPositive() {
		snap.HealthFactor = totalCollateral.Mul(snap.LiquidationThreshold).Div(totalDebt)
	}

	available := totalCollateral.Mul(snap.LTV).Sub(totalDebt)
	if available.IsNegative() {
		available = decimal.Zero
	}
	snap.AvailableBorrowUsd = available

	return snap
}
