package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	"github.com/fairyhunter13/promo-stock-ledger/pkg/database"
)

// SlotRepository stores the slot pool of LIMITED coupons, one row per remaining use.
type SlotRepository struct {
	pool database.TxQuerier
	now  func() time.Time
}

// NewSlotRepository creates a new SlotRepository with the given pool.
func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool, now: time.Now}
}

// NewSlotRepositoryWithPool creates a new SlotRepository with a custom pool interface.
// This is primarily used for testing.
func NewSlotRepositoryWithPool(pool database.TxQuerier) *SlotRepository {
	return &SlotRepository{pool: pool, now: time.Now}
}

// CreateBatch inserts count slots for couponID in a single statement.
func (r *SlotRepository) CreateBatch(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID, count int) ([]model.Slot, error) {
	if count <= 0 {
		return nil, fmt.Errorf("create slots for coupon %s: count must be positive, got %d", couponID, count)
	}

	createdAt := r.now()
	slots := make([]model.Slot, count)
	ids := make([]uuid.UUID, count)
	for i := range slots {
		slots[i] = model.Slot{ID: uuid.New(), CouponID: couponID, CreatedAt: createdAt}
		ids[i] = slots[i].ID
	}

	query := `INSERT INTO coupon_slots (id, coupon_id, created_at)
		SELECT id, $2::uuid, $3::timestamptz FROM unnest($1::uuid[]) AS id`

	tag, err := tx.Exec(ctx, query, ids, couponID, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert slots for coupon %s: %w", couponID, err)
	}
	if tag.RowsAffected() != int64(count) {
		return nil, fmt.Errorf("insert slots for coupon %s: inserted %d of %d", couponID, tag.RowsAffected(), count)
	}
	return slots, nil
}

// DeleteOneByCouponID deletes one arbitrary slot of couponID and returns the
// number of rows deleted: 1 when a slot was consumed, 0 when the pool is empty.
//
// Slots locked by concurrent deleters are skipped rather than waited on, so
// a caller only sees 0 when every remaining slot is already being consumed.
func (r *SlotRepository) DeleteOneByCouponID(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID) (int64, error) {
	query := `DELETE FROM coupon_slots
		WHERE id = (
			SELECT id FROM coupon_slots
			WHERE coupon_id = $1
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)`

	tag, err := tx.Exec(ctx, query, couponID)
	if err != nil {
		return 0, fmt.Errorf("consume slot for coupon %s: %w", couponID, err)
	}
	return tag.RowsAffected(), nil
}

// ExistsAnyByCouponID reports whether couponID has at least one slot left.
// It never locks or deletes.
func (r *SlotRepository) ExistsAnyByCouponID(ctx context.Context, couponID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM coupon_slots WHERE coupon_id = $1)`,
		couponID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slots for coupon %s: %w", couponID, err)
	}
	return exists, nil
}

// CountByCouponID returns the number of slots left for couponID.
func (r *SlotRepository) CountByCouponID(ctx context.Context, couponID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_slots WHERE coupon_id = $1`,
		couponID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count slots for coupon %s: %w", couponID, err)
	}
	return count, nil
}
