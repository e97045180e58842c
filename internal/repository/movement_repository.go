package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	"github.com/fairyhunter13/promo-stock-ledger/pkg/database"
)

const movementColumns = `id, inventory_id, product_id, sku, quantity, status, created_at, updated_at`

// MovementRepository stores the quantity ledger.
type MovementRepository struct {
	pool database.TxQuerier
}

// NewMovementRepository creates a new MovementRepository with the given pool.
func NewMovementRepository(pool *pgxpool.Pool) *MovementRepository {
	return &MovementRepository{pool: pool}
}

// NewMovementRepositoryWithPool creates a new MovementRepository with a custom pool interface.
// This is primarily used for testing.
func NewMovementRepositoryWithPool(pool database.TxQuerier) *MovementRepository {
	return &MovementRepository{pool: pool}
}

// Create appends a ledger entry within a transaction.
func (r *MovementRepository) Create(ctx context.Context, tx database.TxQuerier, m *model.Movement) error {
	query := `INSERT INTO inventory_movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		m.ID,
		m.InventoryID,
		m.ProductID,
		m.SKU,
		m.Quantity,
		string(m.Status),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s movement for %s: %w", m.Status, m.SKU, err)
	}
	return nil
}

// FindLatestRemovedBySKU returns the newest REMOVED movement of sku, or nil, nil.
func (r *MovementRepository) FindLatestRemovedBySKU(ctx context.Context, tx database.TxQuerier, sku string) (*model.Movement, error) {
	query := `SELECT ` + movementColumns + `
		FROM inventory_movements
		WHERE sku = $1 AND status = 'REMOVED'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	m, err := scanMovement(tx.QueryRow(ctx, query, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find removed movement for %s: %w", sku, err)
	}
	return m, nil
}

// DeleteByID deletes one movement and returns the number of rows deleted.
// Zero means a concurrent transaction already deleted it.
func (r *MovementRepository) DeleteByID(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM inventory_movements WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete movement %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// ListBySKU returns up to limit movements of sku, newest first.
// Returns an empty slice, not nil, when there are none.
func (r *MovementRepository) ListBySKU(ctx context.Context, sku string, limit int) ([]*model.Movement, error) {
	query := `SELECT ` + movementColumns + `
		FROM inventory_movements
		WHERE sku = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, sku, limit)
	if err != nil {
		return nil, fmt.Errorf("list movements for %s: %w", sku, err)
	}
	defer rows.Close()

	movements := []*model.Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movement rows: %w", err)
	}
	return movements, nil
}

func scanMovement(row pgx.Row) (*model.Movement, error) {
	var (
		m      model.Movement
		status string
	)
	err := row.Scan(
		&m.ID,
		&m.InventoryID,
		&m.ProductID,
		&m.SKU,
		&m.Quantity,
		&status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = model.MovementStatus(status)
	return &m, nil
}
