package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into HealthService to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// RiskBroadcaster is the minimal interface HealthService needs from the WS hub.
// Implemented by ws.Hub.
type RiskBroadcaster interface {
	BroadcastHealthFactor(snap *domain.HealthFactorSnapshot)
}

// ──────────────────────────────────────────────────────────────────────────────
// HealthService
// ──────────────────────────────────────────────────────────────────────────────

// HealthService recomputes a user's aggregate borrowing risk from the current
// collateral/debt rows and persists it as the health_factors cache.  The
// result is fully deterministic for the position rows visible at call time;
// persistence is a single upsert so there are no partial snapshot writes.
type HealthService struct {
	db           *sqlx.DB
	positionRepo *repository.PositionRepository
	riskRepo     *repository.RiskRepository
	cfg          *config.Config
	broadcaster  RiskBroadcaster // injected after WS Hub is built; may stay nil
}

// NewHealthService creates a HealthService.
func NewHealthService(
	db *sqlx.DB,
	positionRepo *repository.PositionRepository,
	riskRepo *repository.RiskRepository,
	cfg *config.Config,
) *HealthService {
	return &HealthService{
		db:           db,
		positionRepo: positionRepo,
		riskRepo:     riskRepo,
		cfg:          cfg,
	}
}

// SetBroadcaster injects the WS Hub dependency post-construction.
func (s *HealthService) SetBroadcaster(b RiskBroadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// Recompute
// ──────────────────────────────────────────────────────────────────────────────

// RecomputeTx recalculates the snapshot for (user, chain) inside the given
// transaction and upserts it through the same transaction.  Position reads see
// the transaction's own uncommitted balance changes, so the snapshot that
// commits is always consistent with the mutation that triggered it.
func (s *HealthService) RecomputeTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, chain string) (*domain.HealthFactorSnapshot, error) {
	snap, err := s.compute(ctx, tx, userID, chain)
	if err != nil {
		return nil, err
	}
	if err = s.riskRepo.UpsertSnapshot(ctx, tx, snap); err != nil {
		return nil, fmt.Errorf("health_service.RecomputeTx: %w", err)
	}
	return snap, nil
}

// Recompute recalculates and upserts the snapshot outside any caller
// transaction.  Used by the scanner, the stale-refresh loop, and the
// post-commit path of risk-decreasing operations.  Broadcasts the fresh
// snapshot to WS clients on success.
func (s *HealthService) Recompute(ctx context.Context, userID uuid.UUID, chain string) (*domain.HealthFactorSnapshot, error) {
	snap, err := s.compute(ctx, s.db, userID, chain)
	if err != nil {
		return nil, err
	}
	if err = s.riskRepo.UpsertSnapshot(ctx, s.db, snap); err != nil {
		return nil, fmt.Errorf("health_service.Recompute: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastHealthFactor(snap)
	}
	return snap, nil
}

// compute loads the position inputs through q and derives the snapshot.
func (s *HealthService) compute(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID, chain string) (*domain.HealthFactorSnapshot, error) {
	collateral, err := s.positionRepo.ListCollateralInputs(ctx, q, userID, chain)
	if err != nil {
		return nil, fmt.Errorf("health_service.compute: collateral: %w", err)
	}
	debt, err := s.positionRepo.ListDebtInputs(ctx, q, userID, chain)
	if err != nil {
		return nil, fmt.Errorf("health_service.compute: debt: %w", err)
	}

	snap := domain.ComputeHealthFactor(userID, chain, collateral, debt)
	snap.LastCalculatedAt = time.Now().UTC()
	return &snap, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// AccountRisk is the API view of a snapshot with its staleness made explicit,
// so consumers can tell a fresh figure from one left behind by a failed
// recompute.
type AccountRisk struct {
	Snapshot *domain.HealthFactorSnapshot `json:"snapshot"`
	Stale    bool                         `json:"stale"`
	StaleAge string                       `json:"stale_age,omitempty"`
}

// GetAccountRisk returns the cached snapshot for (user, chain) with a
// staleness flag derived from RISK_SNAPSHOT_STALE_AGE.
func (s *HealthService) GetAccountRisk(ctx context.Context, userID uuid.UUID, chain string) (*AccountRisk, error) {
	snap, err := s.riskRepo.GetSnapshot(ctx, userID, chain)
	if err != nil {
		return nil, err
	}

	risk := &AccountRisk{Snapshot: snap}
	if snap.IsStale(s.cfg.Risk.SnapshotStaleAge) {
		risk.Stale = true
		risk.StaleAge = time.Since(snap.LastCalculatedAt).Round(time.Second).String()
		slog.Warn("serving stale health factor snapshot",
			"user_id", userID, "chain", chain, "age", risk.StaleAge)
	}
	return risk, nil
}
