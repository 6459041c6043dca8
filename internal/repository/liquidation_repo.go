package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lumenfi/lending/internal/domain"
)

// LiquidationRepository handles the liquidation_calls audit table.
type LiquidationRepository struct {
	db *sqlx.DB
}

// NewLiquidationRepository creates a new LiquidationRepository.
func NewLiquidationRepository(db *sqlx.DB) *LiquidationRepository {
	return &LiquidationRepository{db: db}
}

// Insert writes a new audit row inside a transaction.  Called with status
// pending before the balance mutations of the same transaction.
func (r *LiquidationRepository) Insert(ctx context.Context, tx *sqlx.Tx, call *domain.LiquidationCall) error {
	query := `
		INSERT INTO liquidation_calls
			(id, liquidator_id, target_user_id, chain, collateral_asset, debt_asset,
			 debt_covered, collateral_received, liquidation_bonus, status, fail_reason,
			 created_at, completed_at)
		VALUES
			(:id, :liquidator_id, :target_user_id, :chain, :collateral_asset, :debt_asset,
			 :debt_covered, :collateral_received, :liquidation_bonus, :status, :fail_reason,
			 :created_at, :completed_at)`
	if _, err := tx.NamedExecContext(ctx, query, call); err != nil {
		return fmt.Errorf("liquidation_repo.Insert: %w", err)
	}
	return nil
}

// MarkCompleted flips a pending audit row to completed inside the same
// transaction as the balance changes, so either both commit or neither does.
func (r *LiquidationRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE liquidation_calls SET status = 'completed', completed_at = now()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("liquidation_repo.MarkCompleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("liquidation_repo.MarkCompleted: no pending row %s", id)
	}
	return nil
}

// InsertFailed records a failed attempt outside any transaction, for
// reconciliation.  The rolled-back execution leaves no balance changes, so a
// failed row plus untouched positions is the expected post-crash state.
func (r *LiquidationRepository) InsertFailed(ctx context.Context, call *domain.LiquidationCall) error {
	query := `
		INSERT INTO liquidation_calls
			(id, liquidator_id, target_user_id, chain, collateral_asset, debt_asset,
			 debt_covered, collateral_received, liquidation_bonus, status, fail_reason,
			 created_at, completed_at)
		VALUES
			(:id, :liquidator_id, :target_user_id, :chain, :collateral_asset, :debt_asset,
			 :debt_covered, :collateral_received, :liquidation_bonus, :status, :fail_reason,
			 :created_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, call); err != nil {
		return fmt.Errorf("liquidation_repo.InsertFailed: %w", err)
	}
	return nil
}

// List returns paginated audit rows filtered by status ("" = all).
func (r *LiquidationRepository) List(ctx context.Context, status domain.LiquidationStatus, limit, offset int) ([]*domain.LiquidationCall, error) {
	var calls []*domain.LiquidationCall
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &calls, `
			SELECT * FROM liquidation_calls WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(status), limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &calls, `
			SELECT * FROM liquidation_calls
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("liquidation_repo.List: %w", err)
	}
	return calls, nil
}

// ListByTarget returns the liquidation history of one user.
func (r *LiquidationRepository) ListByTarget(ctx context.Context, targetID uuid.UUID, limit, offset int) ([]*domain.LiquidationCall, error) {
	var calls []*domain.LiquidationCall
	err := r.db.SelectContext(ctx, &calls, `
		SELECT * FROM liquidation_calls WHERE target_user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		targetID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("liquidation_repo.ListByTarget: %w", err)
	}
	return calls, nil
}
