package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	"github.com/fairyhunter13/promo-stock-ledger/internal/service"
	"github.com/fairyhunter13/promo-stock-ledger/pkg/database"
)

// InventoryRepository provides data access for inventories using pgx.
type InventoryRepository struct {
	pool database.TxQuerier
}

// NewInventoryRepository creates a new InventoryRepository with the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// NewInventoryRepositoryWithPool creates a new InventoryRepository with a custom pool interface.
// This is primarily used for testing.
func NewInventoryRepositoryWithPool(pool database.TxQuerier) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// FindBySKU retrieves an inventory by SKU.
// Returns nil, nil if none exists.
func (r *InventoryRepository) FindBySKU(ctx context.Context, sku string) (*model.Inventory, error) {
	query := `SELECT id, product_id, sku, quantity, version, created_at, updated_at
		FROM inventories WHERE sku = $1`

	var inv model.Inventory
	err := r.pool.QueryRow(ctx, query, sku).Scan(
		&inv.ID,
		&inv.ProductID,
		&inv.SKU,
		&inv.Quantity,
		&inv.Version,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find inventory by sku %s: %w", sku, err)
	}
	return &inv, nil
}

// Create inserts a single inventory within a transaction.
// Returns service.ErrSKUExists if the SKU is already taken.
func (r *InventoryRepository) Create(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error {
	query := `INSERT INTO inventories (id, product_id, sku, quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		inv.ID, inv.ProductID, inv.SKU, inv.Quantity, inv.Version, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return service.ErrSKUExists
		}
		return fmt.Errorf("insert inventory %s: %w", inv.SKU, err)
	}
	return nil
}

// CreateBatch inserts all inventories in a single statement.
// Returns service.ErrSKUExists if any SKU is already taken.
func (r *InventoryRepository) CreateBatch(ctx context.Context, tx database.TxQuerier, invs []*model.Inventory) error {
	if len(invs) == 0 {
		return nil
	}

	var (
		ids        = make([]uuid.UUID, len(invs))
		productIDs = make([]uuid.UUID, len(invs))
		skus       = make([]string, len(invs))
		quantities = make([]int64, len(invs))
		createdAts = make([]time.Time, len(invs))
	)
	for i, inv := range invs {
		ids[i] = inv.ID
		productIDs[i] = inv.ProductID
		skus[i] = inv.SKU
		quantities[i] = inv.Quantity
		createdAts[i] = inv.CreatedAt
	}

	query := `INSERT INTO inventories (id, product_id, sku, quantity, version, created_at, updated_at)
		SELECT u.id, u.product_id, u.sku, u.quantity, 0, u.created_at, u.created_at
		FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::bigint[], $5::timestamptz[])
			AS u(id, product_id, sku, quantity, created_at)`

	tag, err := tx.Exec(ctx, query, ids, productIDs, skus, quantities, createdAts)
	if err != nil {
		if isUniqueViolation(err, "") {
			return service.ErrSKUExists
		}
		return fmt.Errorf("insert %d inventories: %w", len(invs), err)
	}
	if tag.RowsAffected() != int64(len(invs)) {
		return fmt.Errorf("insert inventories: inserted %d of %d", tag.RowsAffected(), len(invs))
	}
	return nil
}

// Update writes quantity and updated_at if the stored version still equals
// inv.Version, then bumps inv.Version.
// Returns service.ErrVersionConflict when another writer got there first.
func (r *InventoryRepository) Update(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error {
	query := `UPDATE inventories
		SET quantity = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`

	tag, err := tx.Exec(ctx, query, inv.Quantity, inv.UpdatedAt, inv.ID, inv.Version)
	if err != nil {
		return fmt.Errorf("update inventory %s: %w", inv.SKU, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update inventory %s at version %d: %w", inv.SKU, inv.Version, service.ErrVersionConflict)
	}

	inv.Version++
	return nil
}

// Delete removes inv if the stored version still equals inv.Version.
// Returns service.ErrVersionConflict when the row changed or is already gone.
func (r *InventoryRepository) Delete(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error {
	tag, err := tx.Exec(ctx, `DELETE FROM inventories WHERE id = $1 AND version = $2`, inv.ID, inv.Version)
	if err != nil {
		return fmt.Errorf("delete inventory %s: %w", inv.SKU, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("delete inventory %s at version %d: %w", inv.SKU, inv.Version, service.ErrVersionConflict)
	}
	return nil
}
