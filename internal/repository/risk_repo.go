package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lumenfi/lending/internal/domain"
)

// RiskRepository handles the derived health-factor snapshot cache.  Snapshots
// are last-writer-wins upserts keyed by (user, chain); the position tables
// remain the source of truth.
type RiskRepository struct {
	db *sqlx.DB
}

// NewRiskRepository creates a new RiskRepository.
func NewRiskRepository(db *sqlx.DB) *RiskRepository {
	return &RiskRepository{db: db}
}

// UpsertSnapshot overwrites the snapshot row for (user, chain).  Accepts any
// sqlx execer so it can run inside the same transaction as the balance change
// that triggered the recompute.
func (r *RiskRepository) UpsertSnapshot(ctx context.Context, e sqlx.ExtContext, snap *domain.HealthFactorSnapshot) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO health_factors
			(id, user_id, chain, health_factor, total_collateral_usd, total_debt_usd,
			 available_borrow_usd, ltv, liquidation_threshold, last_calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, chain)
		DO UPDATE SET
			health_factor         = EXCLUDED.health_factor,
			total_collateral_usd  = EXCLUDED.total_collateral_usd,
			total_debt_usd        = EXCLUDED.total_debt_usd,
			available_borrow_usd  = EXCLUDED.available_borrow_usd,
			ltv                   = EXCLUDED.ltv,
			liquidation_threshold = EXCLUDED.liquidation_threshold,
			last_calculated_at    = EXCLUDED.last_calculated_at`,
		uuid.New(), snap.UserID, snap.Chain, snap.HealthFactor,
		snap.TotalCollateralUsd, snap.TotalDebtUsd, snap.AvailableBorrowUsd,
		snap.LTV, snap.LiquidationThreshold, snap.LastCalculatedAt)
	if err != nil {
		return fmt.Errorf("risk_repo.UpsertSnapshot: %w", err)
	}
	return nil
}

// GetSnapshot fetches the cached snapshot for (user, chain).
func (r *RiskRepository) GetSnapshot(ctx context.Context, userID uuid.UUID, chain string) (*domain.HealthFactorSnapshot, error) {
	var snap domain.HealthFactorSnapshot
	err := r.db.GetContext(ctx, &snap,
		`SELECT * FROM health_factors WHERE user_id = $1 AND chain = $2`, userID, chain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("risk_repo.GetSnapshot: %w", err)
	}
	return &snap, nil
}

// ListAtRisk returns snapshots with health factor strictly below 1 and
// outstanding debt, most at-risk first.  This is the scanner's candidate set.
func (r *RiskRepository) ListAtRisk(ctx context.Context, limit int) ([]*domain.HealthFactorSnapshot, error) {
	var snaps []*domain.HealthFactorSnapshot
	err := r.db.SelectContext(ctx, &snaps, `
		SELECT * FROM health_factors
		WHERE health_factor < 1 AND total_debt_usd > 0
		ORDER BY health_factor ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("risk_repo.ListAtRisk: %w", err)
	}
	return snaps, nil
}

// ListStale returns snapshots not recalculated since the cutoff.  Used by the
// scheduler's refresh loop to repair caches left behind by failed recomputes.
func (r *RiskRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.HealthFactorSnapshot, error) {
	var snaps []*domain.HealthFactorSnapshot
	err := r.db.SelectContext(ctx, &snaps, `
		SELECT * FROM health_factors
		WHERE last_calculated_at < $1
		ORDER BY last_calculated_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("risk_repo.ListStale: %w", err)
	}
	return snaps, nil
}

// CountAtRisk returns the number of liquidatable snapshots (dashboard metric).
func (r *RiskRepository) CountAtRisk(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM health_factors WHERE health_factor < 1 AND total_debt_usd > 0`)
	if err != nil {
		return 0, fmt.Errorf("risk_repo.CountAtRisk: %w", err)
	}
	return n, nil
}

// PlatformTotals sums collateral and debt across all snapshots (dashboard metric).
func (r *RiskRepository) PlatformTotals(ctx context.Context) (collateral, debt string, err error) {
	row := struct {
		Collateral string `db:"collateral"`
		Debt       string `db:"debt"`
	}{}
	err = r.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(total_collateral_usd), 0)::text AS collateral,
		       COALESCE(SUM(total_debt_usd), 0)::text       AS debt
		FROM health_factors`)
	if err != nil {
		return "", "", fmt.Errorf("risk_repo.PlatformTotals: %w", err)
	}
	return row.Collateral, row.Debt, nil
}
