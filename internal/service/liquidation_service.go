package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into LiquidationService to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// LiquidationBroadcaster is the minimal interface LiquidationService needs
// from the WS hub.  Implemented by ws.Hub.
type LiquidationBroadcaster interface {
	BroadcastLiquidation(call *domain.LiquidationCall)
}

// ──────────────────────────────────────────────────────────────────────────────
// LiquidationService
// ──────────────────────────────────────────────────────────────────────────────

// LiquidationService finds accounts whose health factor is below 1 and
// executes liquidation calls against them.  Execution is a single PostgreSQL
// transaction: audit insert, collateral seizure, and debt reduction either all
// commit or none do.
type LiquidationService struct {
	db              *sqlx.DB
	positionRepo    *repository.PositionRepository
	reserveRepo     *repository.ReserveRepository
	riskRepo        *repository.RiskRepository
	liquidationRepo *repository.LiquidationRepository
	healthSvc       *HealthService
	cfg             *config.Config
	broadcaster     LiquidationBroadcaster // injected after WS Hub is built; may stay nil
}

// NewLiquidationService creates a LiquidationService.
func NewLiquidationService(
	db *sqlx.DB,
	positionRepo *repository.PositionRepository,
	reserveRepo *repository.ReserveRepository,
	riskRepo *repository.RiskRepository,
	liquidationRepo *repository.LiquidationRepository,
	healthSvc *HealthService,
	cfg *config.Config,
) *LiquidationService {
	return &LiquidationService{
		db:              db,
		positionRepo:    positionRepo,
		reserveRepo:     reserveRepo,
		riskRepo:        riskRepo,
		liquidationRepo: liquidationRepo,
		healthSvc:       healthSvc,
		cfg:             cfg,
	}
}

// SetBroadcaster injects the WS Hub dependency post-construction.
func (s *LiquidationService) SetBroadcaster(b LiquidationBroadcaster) { s.broadcaster = b }

// closeFactor returns the configured close factor as a decimal.
func (s *LiquidationService) closeFactor() decimal.Decimal {
	return decimal.NewFromFloat(s.cfg.Risk.CloseFactor)
}

// ──────────────────────────────────────────────────────────────────────────────
// Eligibility
// ──────────────────────────────────────────────────────────────────────────────

// CheckEligibility recomputes the target's snapshot from live position rows
// and returns the liquidation terms.  A cached at-risk snapshot is only a
// candidate; eligibility is always confirmed against fresh data.
func (s *LiquidationService) CheckEligibility(ctx context.Context, targetID uuid.UUID, chain string) (*domain.LiquidationOpportunity, error) {
	snap, err := s.healthSvc.Recompute(ctx, targetID, chain)
	if err != nil {
		return nil, fmt.Errorf("liquidation_service.CheckEligibility: %w", err)
	}
	if !snap.IsLiquidatable() {
		return nil, domain.ErrNotLiquidatable
	}

	bonus, err := s.bestBonus(ctx, targetID, chain)
	if err != nil {
		return nil, fmt.Errorf("liquidation_service.CheckEligibility: bonus: %w", err)
	}

	maxAmount := domain.MaxLiquidationAmount(snap.TotalDebtUsd, s.closeFactor())
	return &domain.LiquidationOpportunity{
		TargetUserID:       targetID,
		Chain:              chain,
		HealthFactor:       snap.HealthFactor,
		TotalCollateralUsd: snap.TotalCollateralUsd,
		TotalDebtUsd:       snap.TotalDebtUsd,
		MaxLiquidationUsd:  maxAmount,
		LiquidationBonus:   bonus,
		PotentialProfit:    maxAmount.Mul(bonus),
	}, nil
}

// bestBonus returns the highest liquidation bonus among the target's
// collateral assets — the terms a profit-maximising liquidator would pick.
func (s *LiquidationService) bestBonus(ctx context.Context, targetID uuid.UUID, chain string) (decimal.Decimal, error) {
	supplies, err := s.positionRepo.ListSupplies(ctx, targetID, chain)
	if err != nil {
		return decimal.Zero, err
	}

	var best decimal.Decimal
	for _, sp := range supplies {
		if !sp.UsedAsCollateral {
			continue
		}
		reserve, err := s.reserveRepo.Get(ctx, sp.Asset, chain)
		if err != nil {
			if errors.Is(err, domain.ErrReserveNotFound) {
				continue
			}
			return decimal.Zero, err
		}
		if reserve.LiquidationBonus.GreaterThan(best) {
			best = reserve.LiquidationBonus
		}
	}
	return best, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Scanning
// ──────────────────────────────────────────────────────────────────────────────

// ListOpportunities enumerates cached at-risk snapshots, confirms each
// candidate against fresh position data, and returns the confirmed set ranked
// by potential profit (descending).  Candidates whose fresh recompute clears
// the cutoff are dropped silently; per-candidate errors are logged and
// skipped so one broken row cannot starve the scan.
func (s *LiquidationService) ListOpportunities(ctx context.Context, limit int) ([]*domain.LiquidationOpportunity, error) {
	candidates, err := s.riskRepo.ListAtRisk(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("liquidation_service.ListOpportunities: %w", err)
	}

	minProfit := decimal.NewFromFloat(s.cfg.Risk.MinLiquidationUsd)
	opportunities := make([]*domain.LiquidationOpportunity, 0, len(candidates))
	for _, c := range candidates {
		opp, err := s.CheckEligibility(ctx, c.UserID, c.Chain)
		if err != nil {
			if errors.Is(err, domain.ErrNotLiquidatable) {
				continue // cleared the cutoff since the snapshot was cached
			}
			slog.Error("eligibility check failed during scan",
				"user_id", c.UserID, "chain", c.Chain, "err", err)
			continue
		}
		if opp.MaxLiquidationUsd.LessThan(minProfit) {
			continue
		}
		opportunities = append(opportunities, opp)
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].PotentialProfit.GreaterThan(opportunities[j].PotentialProfit)
	})
	return opportunities, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────────────────────────────────

// Execute performs one liquidation call atomically:
//
//  1. clamp debtToCover to totalDebt × closeFactor
//  2. collateralReceived = debtToCover × (1 + bonus)
//  3. validate the target's rows hold enough collateral and debt
//  4. insert a pending audit row
//  5. seize collateral from the target, credit it to the liquidator,
//     and reduce the target's debt
//  6. flip the audit row to completed and upsert the target's snapshot
//
// All inside one transaction — a crash between any two steps rolls back the
// lot.  A failed attempt leaves balances untouched plus a `failed` audit row
// for reconciliation.
func (s *LiquidationService) Execute(ctx context.Context, req domain.ExecuteLiquidationRequest) (*domain.LiquidationCall, error) {
	if req.LiquidatorID == req.TargetUserID {
		return nil, domain.ErrSelfLiquidation
	}
	if !req.DebtToCover.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if req.Chain == "" {
		req.Chain = domain.DefaultChain
	}
	if req.DebtRateMode == "" {
		req.DebtRateMode = domain.RateModeVariable
	}

	collateralReserve, err := s.reserveRepo.Get(ctx, req.CollateralAsset, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("liquidation_service.Execute: collateral reserve: %w", err)
	}

	call, err := s.executeTx(ctx, req, collateralReserve.LiquidationBonus)
	if err != nil {
		s.recordFailure(req, collateralReserve.LiquidationBonus, err)
		return nil, err
	}

	// Post-commit: refresh both parties' risk caches and notify watchers.
	// The target's snapshot was already upserted inside the transaction; the
	// liquidator gained collateral so their figure moves too.
	if _, rerr := s.healthSvc.Recompute(ctx, req.LiquidatorID, req.Chain); rerr != nil {
		slog.Error("liquidator health factor refresh failed",
			"liquidator_id", req.LiquidatorID, "chain", req.Chain, "err", rerr)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastLiquidation(call)
	}
	return call, nil
}

// executeTx runs the transactional portion of Execute.
func (s *LiquidationService) executeTx(ctx context.Context, req domain.ExecuteLiquidationRequest, bonus decimal.Decimal) (*domain.LiquidationCall, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("liquidation_service.Execute: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Confirm eligibility against rows visible to this transaction ──────
	var snap *domain.HealthFactorSnapshot
	snap, err = s.healthSvc.RecomputeTx(ctx, tx, req.TargetUserID, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("liquidation_service.Execute: eligibility: %w", err)
	}
	if !snap.IsLiquidatable() {
		err = domain.ErrNotLiquidatable
		return nil, err
	}

	// ── 2. Clamp and derive amounts ──────────────────────────────────────────
	maxAmount := domain.MaxLiquidationAmount(snap.TotalDebtUsd, s.closeFactor())
	debtToCover := domain.ClampDebtToCover(req.DebtToCover, maxAmount)
	if !debtToCover.IsPositive() {
		err = domain.ErrLiquidationTooSmall
		return nil, err
	}
	collateralReceived := domain.CollateralSeized(debtToCover, bonus)

	// ── 3. Audit row first, status pending ───────────────────────────────────
	now := time.Now().UTC()
	call := &domain.LiquidationCall{
		ID:                 uuid.New(),
		LiquidatorID:       req.LiquidatorID,
		TargetUserID:       req.TargetUserID,
		Chain:              req.Chain,
		CollateralAsset:    req.CollateralAsset,
		DebtAsset:          req.DebtAsset,
		DebtCovered:        debtToCover,
		CollateralReceived: collateralReceived,
		LiquidationBonus:   bonus,
		Status:             domain.LiquidationPending,
		CreatedAt:          now,
	}
	if err = s.liquidationRepo.Insert(ctx, tx, call); err != nil {
		return nil, err
	}

	// ── 4. Move balances ─────────────────────────────────────────────────────
	if err = s.positionRepo.DeductSupply(ctx, tx, req.TargetUserID, req.CollateralAsset, req.Chain, collateralReceived); err != nil {
		if errors.Is(err, domain.ErrInsufficientSupply) || errors.Is(err, domain.ErrPositionNotFound) {
			err = domain.ErrInsufficientCollateral
		}
		return nil, err
	}
	if err = s.positionRepo.AddSupply(ctx, tx, req.LiquidatorID, req.CollateralAsset, req.Chain, collateralReceived); err != nil {
		return nil, err
	}
	if err = s.positionRepo.DeductBorrow(ctx, tx, req.TargetUserID, req.DebtAsset, req.Chain, req.DebtRateMode, debtToCover); err != nil {
		return nil, err
	}

	// ── 5. Complete the audit row and refresh the target's snapshot ──────────
	if err = s.liquidationRepo.MarkCompleted(ctx, tx, call.ID); err != nil {
		return nil, err
	}
	if _, err = s.healthSvc.RecomputeTx(ctx, tx, req.TargetUserID, req.Chain); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("liquidation_service.Execute: commit: %w", err)
	}

	call.Status = domain.LiquidationCompleted
	call.CompletedAt = &now
	return call, nil
}

// recordFailure writes a failed audit row for reconciliation.  Best effort:
// the original error is what the caller sees either way.
func (s *LiquidationService) recordFailure(req domain.ExecuteLiquidationRequest, bonus decimal.Decimal, cause error) {
	reason := cause.Error()
	now := time.Now().UTC()
	call := &domain.LiquidationCall{
		ID:               uuid.New(),
		LiquidatorID:     req.LiquidatorID,
		TargetUserID:     req.TargetUserID,
		Chain:            req.Chain,
		CollateralAsset:  req.CollateralAsset,
		DebtAsset:        req.DebtAsset,
		DebtCovered:      req.DebtToCover,
		LiquidationBonus: bonus,
		Status:           domain.LiquidationFailed,
		FailReason:       &reason,
		CreatedAt:        now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.liquidationRepo.InsertFailed(ctx, call); err != nil {
		slog.Error("could not record failed liquidation", "target_user_id", req.TargetUserID, "err", err)
	}
}
