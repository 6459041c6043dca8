package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// AssetReserve
// ──────────────────────────────────────────────────────────────────────────────

// AssetReserve holds the externally configured risk parameters for one asset
// on one chain.  Read-only to the health-factor engine; managed through the
// back-office.
//
//	LTV                  — max fraction of collateral value borrowable, e.g. 0.80
//	LiquidationThreshold — fraction at which the position becomes liquidatable, e.g. 0.85
//	LiquidationBonus     — extra collateral fraction awarded to liquidators, e.g. 0.05
type AssetReserve struct {
	ID                   uuid.UUID       `json:"id"                    db:"id"`
	Asset                string          `json:"asset"                 db:"asset"`
	Chain                string          `json:"chain"                 db:"chain"`
	LTV                  decimal.Decimal `json:"ltv"                   db:"ltv"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold" db:"liquidation_threshold"`
	LiquidationBonus     decimal.Decimal `json:"liquidation_bonus"     db:"liquidation_bonus"`
	IsActive             bool            `json:"is_active"             db:"is_active"`
	IsFrozen             bool            `json:"is_frozen"             db:"is_frozen"` // frozen: no new supply/borrow, withdraw/repay allowed
	BorrowEnabled        bool            `json:"borrow_enabled"        db:"borrow_enabled"`
	CreatedAt            time.Time       `json:"created_at"            db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"            db:"updated_at"`
}

// CanSupply reports whether new supply is accepted into this reserve.
func (r *AssetReserve) CanSupply() bool {
	return r.IsActive && !r.IsFrozen
}

// CanBorrow reports whether new debt may be drawn against this reserve.
func (r *AssetReserve) CanBorrow() bool {
	return r.IsActive && !r.IsFrozen && r.BorrowEnabled
}

// Validate checks the risk parameters for internal consistency.  The
// liquidation threshold must sit at or above the LTV, otherwise a freshly
// maxed-out borrow would be instantly liquidatable.
func (r *AssetReserve) Validate() error {
	one := decimal.NewFromInt(1)
	if r.LTV.IsNegative() || r.LTV.GreaterThan(one) {
		return ErrInvalidRiskParams
	}
	if r.LiquidationThreshold.IsNegative() || r.LiquidationThreshold.GreaterThan(one) {
		return ErrInvalidRiskParams
	}
	if r.LiquidationThreshold.LessThan(r.LTV) {
		return ErrInvalidRiskParams
	}
	if r.LiquidationBonus.IsNegative() || r.LiquidationBonus.GreaterThanOrEqual(one) {
		return ErrInvalidRiskParams
	}
	return nil
}
