package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lumenfi/lending/internal/domain"
)

// ReserveRepository handles all database operations for asset reserves
// (per-asset risk parameters).  Read-heavy: the engine only ever reads these
// rows, writes come from the back-office.
type ReserveRepository struct {
	db *sqlx.DB
}

// NewReserveRepository creates a new ReserveRepository.
func NewReserveRepository(db *sqlx.DB) *ReserveRepository {
	return &ReserveRepository{db: db}
}

// Get fetches the reserve for (asset, chain).
func (r *ReserveRepository) Get(ctx context.Context, asset, chain string) (*domain.AssetReserve, error) {
	var res domain.AssetReserve
	err := r.db.GetContext(ctx, &res,
		`SELECT * FROM asset_reserves WHERE asset = $1 AND chain = $2`, asset, chain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReserveNotFound
		}
		return nil, fmt.Errorf("reserve_repo.Get: %w", err)
	}
	return &res, nil
}

// List returns all reserves, optionally filtered by chain ("" = all chains).
func (r *ReserveRepository) List(ctx context.Context, chain string) ([]*domain.AssetReserve, error) {
	var reserves []*domain.AssetReserve
	var err error
	if chain != "" {
		err = r.db.SelectContext(ctx, &reserves,
			`SELECT * FROM asset_reserves WHERE chain = $1 ORDER BY asset`, chain)
	} else {
		err = r.db.SelectContext(ctx, &reserves,
			`SELECT * FROM asset_reserves ORDER BY chain, asset`)
	}
	if err != nil {
		return nil, fmt.Errorf("reserve_repo.List: %w", err)
	}
	return reserves, nil
}

// Create inserts a new reserve row.
func (r *ReserveRepository) Create(ctx context.Context, res *domain.AssetReserve) error {
	query := `
		INSERT INTO asset_reserves
			(id, asset, chain, ltv, liquidation_threshold, liquidation_bonus,
			 is_active, is_frozen, borrow_enabled, created_at, updated_at)
		VALUES
			(:id, :asset, :chain, :ltv, :liquidation_threshold, :liquidation_bonus,
			 :is_active, :is_frozen, :borrow_enabled, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, res); err != nil {
		if isPgUniqueViolation(err, "asset_reserves_asset_chain_key") {
			return domain.ErrReserveExists
		}
		return fmt.Errorf("reserve_repo.Create: %w", err)
	}
	return nil
}

// UpdateRiskParams changes LTV, liquidation threshold, and liquidation bonus
// for an existing reserve (back-office operation).
func (r *ReserveRepository) UpdateRiskParams(ctx context.Context, res *domain.AssetReserve) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE asset_reserves
		SET ltv = $1, liquidation_threshold = $2, liquidation_bonus = $3, updated_at = now()
		WHERE asset = $4 AND chain = $5`,
		res.LTV, res.LiquidationThreshold, res.LiquidationBonus, res.Asset, res.Chain)
	if err != nil {
		return fmt.Errorf("reserve_repo.UpdateRiskParams: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrReserveNotFound
	}
	return nil
}

// SetFlags toggles the operational flags of a reserve.
func (r *ReserveRepository) SetFlags(ctx context.Context, id uuid.UUID, active, frozen, borrowEnabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE asset_reserves
		SET is_active = $1, is_frozen = $2, borrow_enabled = $3, updated_at = now()
		WHERE id = $4`,
		active, frozen, borrowEnabled, id)
	if err != nil {
		return fmt.Errorf("reserve_repo.SetFlags: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrReserveNotFound
	}
	return nil
}
