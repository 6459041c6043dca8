package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// LendingAction identifies a balance-changing lending operation.
type LendingAction string

const (
	ActionSupply   LendingAction = "supply"
	ActionWithdraw LendingAction = "withdraw"
	ActionBorrow   LendingAction = "borrow"
	ActionRepay    LendingAction = "repay"
)

// IsValid reports whether the action is one of the four lending operations.
func (a LendingAction) IsValid() bool {
	switch a {
	case ActionSupply, ActionWithdraw, ActionBorrow, ActionRepay:
		return true
	}
	return false
}

// RateMode distinguishes variable- and stable-rate borrow positions.
// Borrow positions are keyed by (user, asset, chain, rate_mode).
type RateMode string

const (
	RateModeVariable RateMode = "variable"
	RateModeStable   RateMode = "stable"
)

// IsValid reports whether the rate mode is known.
func (m RateMode) IsValid() bool {
	return m == RateModeVariable || m == RateModeStable
}

// DefaultChain is used when a request omits the chain field.
const DefaultChain = "ethereum"

// ──────────────────────────────────────────────────────────────────────────────
// SupplyPosition
// ──────────────────────────────────────────────────────────────────────────────

// SupplyPosition is one user's supplied balance of a single asset on a single
// chain.  Created on first supply, incremented/decremented by later operations,
// and deleted when the amount reaches zero.  Amounts are oracle-normalized USD
// values (DECIMAL(28,10) in the DB).
type SupplyPosition struct {
	ID               uuid.UUID       `json:"id"                 db:"id"`
	UserID           uuid.UUID       `json:"user_id"            db:"user_id"`
	Asset            string          `json:"asset"              db:"asset"`
	Chain            string          `json:"chain"              db:"chain"`
	SuppliedAmount   decimal.Decimal `json:"supplied_amount"    db:"supplied_amount"`
	UsedAsCollateral bool            `json:"used_as_collateral" db:"used_as_collateral"`
	CreatedAt        time.Time       `json:"created_at"         db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"         db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// BorrowPosition
// ──────────────────────────────────────────────────────────────────────────────

// BorrowPosition is one user's outstanding debt in a single asset on a single
// chain, under one rate mode.  Same lifecycle shape as SupplyPosition.
type BorrowPosition struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	UserID         uuid.UUID       `json:"user_id"         db:"user_id"`
	Asset          string          `json:"asset"           db:"asset"`
	Chain          string          `json:"chain"           db:"chain"`
	BorrowedAmount decimal.Decimal `json:"borrowed_amount" db:"borrowed_amount"`
	RateMode       RateMode        `json:"rate_mode"       db:"rate_mode"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"      db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LendingRequest — value object used by LendingService
// ──────────────────────────────────────────────────────────────────────────────

// LendingRequest carries the validated inputs for one lending operation.
type LendingRequest struct {
	UserID   uuid.UUID
	Action   LendingAction
	Asset    string
	Chain    string
	Amount   decimal.Decimal
	RateMode RateMode // borrow/repay only; defaults to variable
}

// LendingResult is returned by LendingService after a successful operation.
// RiskCacheStale is true when the balance mutation committed but the
// health-factor snapshot could not be refreshed afterwards.
type LendingResult struct {
	Action         LendingAction         `json:"action"`
	Asset          string                `json:"asset"`
	Chain          string                `json:"chain"`
	Amount         decimal.Decimal       `json:"amount"`
	Message        string                `json:"message"`
	HealthFactor   *HealthFactorSnapshot `json:"health_factor,omitempty"`
	RiskCacheStale bool                  `json:"risk_cache_stale"`
}
