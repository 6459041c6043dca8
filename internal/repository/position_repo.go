package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/shopspring/decimal"
)

// PositionRepository handles all database operations for supply and borrow
// positions.  Every balance change is a DB-side increment guarded by a
// FOR UPDATE row lock so concurrent operations on the same position serialize
// instead of racing on a read-then-write.
type PositionRepository struct {
	db *sqlx.DB
}

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// ──────────────────────────────────────────────────────────────────────────────
// Supply positions
// ──────────────────────────────────────────────────────────────────────────────

// GetSupply fetches one supply position.
func (r *PositionRepository) GetSupply(ctx context.Context, userID uuid.UUID, asset, chain string) (*domain.SupplyPosition, error) {
	var p domain.SupplyPosition
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM supply_positions WHERE user_id = $1 AND asset = $2 AND chain = $3`,
		userID, asset, chain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("position_repo.GetSupply: %w", err)
	}
	return &p, nil
}

// ListSupplies returns all of a user's supply positions on a chain.
func (r *PositionRepository) ListSupplies(ctx context.Context, userID uuid.UUID, chain string) ([]*domain.SupplyPosition, error) {
	var ps []*domain.SupplyPosition
	err := r.db.SelectContext(ctx, &ps,
		`SELECT * FROM supply_positions WHERE user_id = $1 AND chain = $2 ORDER BY asset`,
		userID, chain)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListSupplies: %w", err)
	}
	return ps, nil
}

// AddSupply credits amount to a supply position inside a transaction, creating
// the row on first supply.  The increment happens in the database so two
// concurrent supplies never lose an update.
func (r *PositionRepository) AddSupply(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, asset, chain string, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO supply_positions (id, user_id, asset, chain, supplied_amount, used_as_collateral, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, now(), now())
		ON CONFLICT (user_id, asset, chain)
		DO UPDATE SET supplied_amount = supply_positions.supplied_amount + EXCLUDED.supplied_amount,
		              updated_at      = now()`,
		uuid.New(), userID, asset, chain, amount)
	if err != nil {
		return fmt.Errorf("position_repo.AddSupply: %w", err)
	}
	return nil
}

// DeductSupply subtracts amount from a supply position inside a transaction.
// Locks the row with FOR UPDATE, returns ErrInsufficientSupply when the
// balance would go negative, and deletes the row when it reaches zero.
func (r *PositionRepository) DeductSupply(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, asset, chain string, amount decimal.Decimal) error {
	var current decimal.Decimal
	err := tx.GetContext(ctx, &current, `
		SELECT supplied_amount FROM supply_positions
		WHERE user_id = $1 AND asset = $2 AND chain = $3 FOR UPDATE`,
		userID, asset, chain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPositionNotFound
		}
		return fmt.Errorf("position_repo.DeductSupply lock: %w", err)
	}

	if current.LessThan(amount) {
		return domain.ErrInsufficientSupply
	}

	if current.Equal(amount) {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM supply_positions WHERE user_id = $1 AND asset = $2 AND chain = $3`,
			userID, asset, chain)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE supply_positions
			SET supplied_amount = supplied_amount - $1, updated_at = now()
			WHERE user_id = $2 AND asset = $3 AND chain = $4`,
			amount, userID, asset, chain)
	}
	if err != nil {
		return fmt.Errorf("position_repo.DeductSupply update: %w", err)
	}
	return nil
}

// SetCollateralFlag toggles whether a supply position counts as collateral.
func (r *PositionRepository) SetCollateralFlag(ctx context.Context, userID uuid.UUID, asset, chain string, used bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE supply_positions SET used_as_collateral = $1, updated_at = now()
		WHERE user_id = $2 AND asset = $3 AND chain = $4`,
		used, userID, asset, chain)
	if err != nil {
		return fmt.Errorf("position_repo.SetCollateralFlag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Borrow positions
// ──────────────────────────────────────────────────────────────────────────────

// GetBorrow fetches one borrow position.
func (r *PositionRepository) GetBorrow(ctx context.Context, userID uuid.UUID, asset, chain string, mode domain.RateMode) (*domain.BorrowPosition, error) {
	var p domain.BorrowPosition
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM borrow_positions
		WHERE user_id = $1 AND asset = $2 AND chain = $3 AND rate_mode = $4`,
		userID, asset, chain, string(mode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("position_repo.GetBorrow: %w", err)
	}
	return &p, nil
}

// ListBorrows returns all of a user's borrow positions on a chain.
func (r *PositionRepository) ListBorrows(ctx context.Context, userID uuid.UUID, chain string) ([]*domain.BorrowPosition, error) {
	var ps []*domain.BorrowPosition
	err := r.db.SelectContext(ctx, &ps,
		`SELECT * FROM borrow_positions WHERE user_id = $1 AND chain = $2 ORDER BY asset, rate_mode`,
		userID, chain)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListBorrows: %w", err)
	}
	return ps, nil
}

// AddBorrow increases a borrow position inside a transaction, creating the row
// on first borrow.  Same atomic-increment shape as AddSupply.
func (r *PositionRepository) AddBorrow(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, asset, chain string, mode domain.RateMode, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO borrow_positions (id, user_id, asset, chain, borrowed_amount, rate_mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (user_id, asset, chain, rate_mode)
		DO UPDATE SET borrowed_amount = borrow_positions.borrowed_amount + EXCLUDED.borrowed_amount,
		              updated_at      = now()`,
		uuid.New(), userID, asset, chain, amount, string(mode))
	if err != nil {
		return fmt.Errorf("position_repo.AddBorrow: %w", err)
	}
	return nil
}

// DeductBorrow reduces a borrow position inside a transaction.  Locks the row
// with FOR UPDATE, returns ErrInsufficientDebt when the repayment exceeds the
// outstanding amount, and deletes the row at zero.
func (r *PositionRepository) DeductBorrow(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, asset, chain string, mode domain.RateMode, amount decimal.Decimal) error {
	var current decimal.Decimal
	err := tx.GetContext(ctx, &current, `
		SELECT borrowed_amount FROM borrow_positions
		WHERE user_id = $1 AND asset = $2 AND chain = $3 AND rate_mode = $4 FOR UPDATE`,
		userID, asset, chain, string(mode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPositionNotFound
		}
		return fmt.Errorf("position_repo.DeductBorrow lock: %w", err)
	}

	if current.LessThan(amount) {
		return domain.ErrInsufficientDebt
	}

	if current.Equal(amount) {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM borrow_positions
			WHERE user_id = $1 AND asset = $2 AND chain = $3 AND rate_mode = $4`,
			userID, asset, chain, string(mode))
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE borrow_positions
			SET borrowed_amount = borrowed_amount - $1, updated_at = now()
			WHERE user_id = $2 AND asset = $3 AND chain = $4 AND rate_mode = $5`,
			amount, userID, asset, chain, string(mode))
	}
	if err != nil {
		return fmt.Errorf("position_repo.DeductBorrow update: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Health-factor input queries
// ──────────────────────────────────────────────────────────────────────────────

// collateralRow is the join of a qualifying supply position with its reserve's
// risk parameters.
type collateralRow struct {
	SuppliedAmount       decimal.Decimal `db:"supplied_amount"`
	LTV                  decimal.Decimal `db:"ltv"`
	LiquidationThreshold decimal.Decimal `db:"liquidation_threshold"`
}

// ListCollateralInputs returns every collateral-flagged supply position for
// (user, chain) joined with its reserve's LTV and liquidation threshold.
// Positions without a configured reserve are excluded — no risk parameters,
// no borrowing power.
func (r *PositionRepository) ListCollateralInputs(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID, chain string) ([]domain.CollateralInput, error) {
	var rows []collateralRow
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT sp.supplied_amount, ar.ltv, ar.liquidation_threshold
		FROM supply_positions sp
		JOIN asset_reserves ar ON ar.asset = sp.asset AND ar.chain = sp.chain
		WHERE sp.user_id = $1 AND sp.chain = $2 AND sp.used_as_collateral = true`,
		userID, chain)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListCollateralInputs: %w", err)
	}

	inputs := make([]domain.CollateralInput, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, domain.CollateralInput{
			AmountUsd:            row.SuppliedAmount,
			LTV:                  row.LTV,
			LiquidationThreshold: row.LiquidationThreshold,
		})
	}
	return inputs, nil
}

// ListDebtInputs returns every borrow position's outstanding amount for
// (user, chain).
func (r *PositionRepository) ListDebtInputs(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID, chain string) ([]domain.DebtInput, error) {
	var amounts []decimal.Decimal
	err := sqlx.SelectContext(ctx, q, &amounts,
		`SELECT borrowed_amount FROM borrow_positions WHERE user_id = $1 AND chain = $2`,
		userID, chain)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListDebtInputs: %w", err)
	}

	inputs := make([]domain.DebtInput, 0, len(amounts))
	for _, a := range amounts {
		inputs = append(inputs, domain.DebtInput{AmountUsd: a})
	}
	return inputs, nil
}
