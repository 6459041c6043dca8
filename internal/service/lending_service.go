package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// LendingService
// ──────────────────────────────────────────────────────────────────────────────

// LendingService orchestrates the four balance-changing operations: supply,
// withdraw, borrow, repay.  Every operation runs inside a single PostgreSQL
// transaction with FOR UPDATE row locks, so two concurrent calls for the same
// position serialize instead of losing an increment.
//
// Risk-increasing operations (withdraw, borrow) recompute the health factor
// inside the same transaction and abort when the result would be unhealthy.
// Risk-decreasing operations (supply, repay) commit first and refresh the
// snapshot afterwards; a failed refresh never rolls back the mutation — the
// caller is told via RiskCacheStale instead.
type LendingService struct {
	db           *sqlx.DB
	positionRepo *repository.PositionRepository
	reserveRepo  *repository.ReserveRepository
	healthSvc    *HealthService
	cfg          *config.Config
}

// NewLendingService creates a LendingService.
func NewLendingService(
	db *sqlx.DB,
	positionRepo *repository.PositionRepository,
	reserveRepo *repository.ReserveRepository,
	healthSvc *HealthService,
	cfg *config.Config,
) *LendingService {
	return &LendingService{
		db:           db,
		positionRepo: positionRepo,
		reserveRepo:  reserveRepo,
		healthSvc:    healthSvc,
		cfg:          cfg,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Execute — entry point for all four actions
// ──────────────────────────────────────────────────────────────────────────────

// Execute validates the request and dispatches to the action-specific handler.
func (s *LendingService) Execute(ctx context.Context, req domain.LendingRequest) (*domain.LendingResult, error) {
	if !req.Action.IsValid() {
		return nil, domain.ErrInvalidAction
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if req.Chain == "" {
		req.Chain = domain.DefaultChain
	}
	if req.RateMode == "" {
		req.RateMode = domain.RateModeVariable
	}
	if !req.RateMode.IsValid() {
		return nil, domain.ErrInvalidRateMode
	}

	switch req.Action {
	case domain.ActionSupply:
		return s.supply(ctx, req)
	case domain.ActionWithdraw:
		return s.withdraw(ctx, req)
	case domain.ActionBorrow:
		return s.borrow(ctx, req)
	case domain.ActionRepay:
		return s.repay(ctx, req)
	}
	return nil, domain.ErrInvalidAction
}

// ──────────────────────────────────────────────────────────────────────────────
// Supply
// ──────────────────────────────────────────────────────────────────────────────

// supply credits the user's supply position.  The reserve must accept new
// deposits.  Snapshot refresh happens post-commit (risk only decreases).
func (s *LendingService) supply(ctx context.Context, req domain.LendingRequest) (*domain.LendingResult, error) {
	reserve, err := s.reserveRepo.Get(ctx, req.Asset, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("lending_service.supply: get reserve: %w", err)
	}
	if !reserve.IsActive {
		return nil, domain.ErrReserveInactive
	}
	if reserve.IsFrozen {
		return nil, domain.ErrReserveFrozen
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lending_service.supply: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.positionRepo.AddSupply(ctx, tx, req.UserID, req.Asset, req.Chain, req.Amount); err != nil {
		return nil, fmt.Errorf("lending_service.supply: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("lending_service.supply: commit: %w", err)
	}

	return s.resultWithRefresh(ctx, req, "supply accepted"), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Withdraw
// ──────────────────────────────────────────────────────────────────────────────

// withdraw debits the user's supply position.  The deduction and the health
// check run in one transaction: if the post-withdraw health factor would fall
// below 1 while debt is outstanding, the whole operation rolls back.
func (s *LendingService) withdraw(ctx context.Context, req domain.LendingRequest) (*domain.LendingResult, error) {
	reserve, err := s.reserveRepo.Get(ctx, req.Asset, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("lending_service.withdraw: get reserve: %w", err)
	}
	if !reserve.IsActive {
		return nil, domain.ErrReserveInactive
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lending_service.withdraw: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.positionRepo.DeductSupply(ctx, tx, req.UserID, req.Asset, req.Chain, req.Amount); err != nil {
		return nil, fmt.Errorf("lending_service.withdraw: %w", err)
	}

	snap, err := s.healthSvc.RecomputeTx(ctx, tx, req.UserID, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("lending_service.withdraw: recompute: %w", err)
	}
	if snap.TotalDebtUsd.IsPositive() && snap.HealthFactor.LessThan(domain.LiquidationCutoff) {
		err = domain.ErrWithdrawUnhealthy
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("lending_service.withdraw: commit: %w", err)
	}

	return &domain.LendingResult{
		Action:       req.Action,
		Asset:        req.Asset,
		Chain:        req.Chain,
		Amount:       req.Amount,
		Message:      "withdrawal completed",
		HealthFactor: snap,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Borrow
// ──────────────────────────────────────────────────────────────────────────────

// borrow draws new debt against the user's collateral.  The headroom check and
// the debt increment run in one transaction so a concurrent borrow cannot
// sneak past the limit between check and write.
func (s *LendingService) borrow(ctx context.Context, req domain.LendingRequest) (*domain.LendingResult, error) {
	reserve, err := s.reserveRepo.Get(ctx, req.Asset, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("lending_service.borrow: get reserve: %w", err)
	}
	if !reserve.IsActive {
		return nil, domain.ErrReserveInactive
	}
	if reserve.IsFrozen {
		return nil, domain.ErrReserveFrozen
	}
	if !reserve.BorrowEnabled {
		return nil, domain.ErrBorrowDisabled
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lending_service.borrow: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Headroom check against the pre-borrow state, inside the transaction.
	var pre *domain.HealthFactorSnapshot
	pre, err = s.healthSvc.RecomputeTx(ctx, tx, req.UserID, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("lending_service.borrow: precheck: %w", err)
	}
	if req.Amount.GreaterThan(pre.AvailableBorrowUsd) {
		err = domain.ErrBorrowExceedsLimit
		return nil, err
	}

	if err = s.positionRepo.AddBorrow(ctx, tx, req.UserID, req.Asset, req.Chain, req.RateMode, req.Amount); err != nil {
		return nil, fmt.Errorf("lending_service.borrow: %w", err)
	}

	snap, err := s.healthSvc.RecomputeTx(ctx, tx, req.UserID, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("lending_service.borrow: recompute: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("lending_service.borrow: commit: %w", err)
	}

	return &domain.LendingResult{
		Action:       req.Action,
		Asset:        req.Asset,
		Chain:        req.Chain,
		Amount:       req.Amount,
		Message:      "borrow executed",
		HealthFactor: snap,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Repay
// ──────────────────────────────────────────────────────────────────────────────

// repay reduces the user's debt.  Allowed even on inactive/frozen reserves —
// winding down risk is never blocked.  Snapshot refresh happens post-commit.
func (s *LendingService) repay(ctx context.Context, req domain.LendingRequest) (*domain.LendingResult, error) {
	// Reserve existence check only; no flag gating on repay.
	if _, err := s.reserveRepo.Get(ctx, req.Asset, req.Chain); err != nil {
		return nil, fmt.Errorf("lending_service.repay: get reserve: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lending_service.repay: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.positionRepo.DeductBorrow(ctx, tx, req.UserID, req.Asset, req.Chain, req.RateMode, req.Amount); err != nil {
		return nil, fmt.Errorf("lending_service.repay: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("lending_service.repay: commit: %w", err)
	}

	return s.resultWithRefresh(ctx, req, "repayment accepted"), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Post-commit snapshot refresh
// ──────────────────────────────────────────────────────────────────────────────

// resultWithRefresh refreshes the snapshot after a committed risk-decreasing
// mutation.  On refresh failure the mutation stands; the result carries
// RiskCacheStale so callers can tell "funds moved, risk display is stale"
// apart from full success.
func (s *LendingService) resultWithRefresh(ctx context.Context, req domain.LendingRequest, msg string) *domain.LendingResult {
	res := &domain.LendingResult{
		Action:  req.Action,
		Asset:   req.Asset,
		Chain:   req.Chain,
		Amount:  req.Amount,
		Message: msg,
	}

	snap, err := s.healthSvc.Recompute(ctx, req.UserID, req.Chain)
	if err != nil {
		slog.Error("health factor refresh failed after committed mutation",
			"user_id", req.UserID, "chain", req.Chain, "action", req.Action, "err", err)
		res.RiskCacheStale = true
		return res
	}
	res.HealthFactor = snap
	return res
}
