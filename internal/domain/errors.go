package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Reserve errors
var (
	// ErrReserveNotFound is returned when no reserve exists for (asset, chain).
	ErrReserveNotFound = errors.New("asset reserve not found")

	// ErrReserveInactive is returned when an operation targets a deactivated pool.
	ErrReserveInactive = errors.New("asset reserve is not active")

	// ErrReserveFrozen is returned when new supply or borrow hits a frozen reserve.
	ErrReserveFrozen = errors.New("asset reserve is frozen")

	// ErrBorrowDisabled is returned when borrowing is switched off for a reserve.
	ErrBorrowDisabled = errors.New("borrowing is disabled for this asset")

	// ErrReserveExists is returned when creating a reserve that already exists.
	ErrReserveExists = errors.New("asset reserve already exists")

	// ErrInvalidRiskParams is returned when LTV/threshold/bonus fail validation.
	ErrInvalidRiskParams = errors.New("invalid reserve risk parameters")
)

// Position errors
var (
	// ErrPositionNotFound is returned when no supply/borrow row matches.
	ErrPositionNotFound = errors.New("position not found")

	// ErrInsufficientSupply is returned when a withdraw exceeds the supplied amount.
	ErrInsufficientSupply = errors.New("withdraw amount exceeds supplied balance")

	// ErrInsufficientDebt is returned when a repay exceeds the borrowed amount.
	ErrInsufficientDebt = errors.New("repay amount exceeds outstanding debt")

	// ErrInvalidAmount is returned when the amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidAction is returned for an unknown lending action.
	ErrInvalidAction = errors.New("invalid lending action")

	// ErrInvalidRateMode is returned for an unknown borrow rate mode.
	ErrInvalidRateMode = errors.New("invalid rate mode: must be variable or stable")

	// ErrBorrowExceedsLimit is returned when a borrow would exceed the
	// account's available-borrow headroom.
	ErrBorrowExceedsLimit = errors.New("borrow amount exceeds available borrow limit")

	// ErrWithdrawUnhealthy is returned when a withdraw would drop the health
	// factor below 1 while debt is outstanding.
	ErrWithdrawUnhealthy = errors.New("withdrawal would make the position liquidatable")
)

// Liquidation errors
var (
	// ErrNotLiquidatable is returned when the target's health factor is >= 1.
	ErrNotLiquidatable = errors.New("target position is not liquidatable")

	// ErrLiquidationTooSmall is returned when the clamped debt to cover is zero.
	ErrLiquidationTooSmall = errors.New("liquidation amount is zero after clamping")

	// ErrInsufficientCollateral is returned when the target's supply row does
	// not hold enough collateral for the seized amount.
	ErrInsufficientCollateral = errors.New("target collateral insufficient for liquidation")

	// ErrSelfLiquidation is returned when a user tries to liquidate themselves.
	ErrSelfLiquidation = errors.New("cannot liquidate own position")
)

// User errors
var (
	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned on registration when the email already exists.
	ErrEmailTaken = errors.New("email address is already registered")

	// ErrUsernameTaken is returned on registration when the username already exists.
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrInvalidCredentials is returned when login credentials are wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUserInactive is returned when a suspended user attempts an action.
	ErrUserInactive = errors.New("user account is inactive")
)

// Risk cache errors
var (
	// ErrSnapshotNotFound is returned when no health-factor row exists yet
	// for the requested (user, chain) pair.
	ErrSnapshotNotFound = errors.New("health factor snapshot not found")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated user lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT or refresh token has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrReserveNotFound,
	ErrPositionNotFound,
	ErrUserNotFound,
	ErrSnapshotNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values directly
// when you need to translate domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation returns true for request-shape and state-precondition errors
// that map to HTTP 400.
func IsValidation(err error) bool {
	validationErrors := []error{
		ErrInvalidAmount,
		ErrInvalidAction,
		ErrInvalidRateMode,
		ErrInvalidRiskParams,
		ErrReserveInactive,
		ErrReserveFrozen,
		ErrBorrowDisabled,
		ErrInsufficientSupply,
		ErrInsufficientDebt,
		ErrBorrowExceedsLimit,
		ErrWithdrawUnhealthy,
		ErrNotLiquidatable,
		ErrLiquidationTooSmall,
		ErrInsufficientCollateral,
		ErrSelfLiquidation,
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (e.g.
// duplicate registration or duplicate reserve creation).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrEmailTaken,
		ErrUsernameTaken,
		ErrReserveExists,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrInvalidCredentials,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
