package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	"github.com/fairyhunter13/promo-stock-ledger/internal/service"
	"github.com/fairyhunter13/promo-stock-ledger/pkg/database"
)

const couponColumns = `id, code, percentage, min_purchase, expiration, active, type, version, created_at, updated_at`

// CouponRepository provides data access for coupons using pgx.
type CouponRepository struct {
	pool database.TxQuerier
}

// NewCouponRepository creates a new CouponRepository with the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// NewCouponRepositoryWithPool creates a new CouponRepository with a custom pool interface.
// This is primarily used for testing.
func NewCouponRepositoryWithPool(pool database.TxQuerier) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode retrieves a coupon by its code.
// Returns nil, nil if the coupon is not found (service layer handles this).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	coupon, err := scanCoupon(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find coupon by code %s: %w", code, err)
	}
	return coupon, nil
}

// ExistsByCode reports whether a coupon with code exists.
func (r *CouponRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check coupon code %s: %w", code, err)
	}
	return exists, nil
}

// Create inserts a new coupon within a transaction.
// Returns service.ErrCouponExists if the code is already taken.
func (r *CouponRepository) Create(ctx context.Context, tx database.TxQuerier, coupon *model.Coupon) error {
	query := `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		coupon.ID,
		coupon.Code,
		coupon.Percentage,
		coupon.MinPurchase,
		coupon.ExpiresAt,
		coupon.Active,
		string(coupon.Type),
		coupon.Version,
		coupon.CreatedAt,
		coupon.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return service.ErrCouponExists
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// Update writes the mutable coupon fields if the stored version still equals
// coupon.Version, then bumps coupon.Version.
// Returns service.ErrVersionConflict when another writer got there first.
func (r *CouponRepository) Update(ctx context.Context, tx database.TxQuerier, coupon *model.Coupon) error {
	query := `UPDATE coupons
		SET percentage = $1, min_purchase = $2, expiration = $3, active = $4,
			version = version + 1, updated_at = $5
		WHERE id = $6 AND version = $7`

	tag, err := tx.Exec(ctx, query,
		coupon.Percentage,
		coupon.MinPurchase,
		coupon.ExpiresAt,
		coupon.Active,
		coupon.UpdatedAt,
		coupon.ID,
		coupon.Version,
	)
	if err != nil {
		return fmt.Errorf("update coupon %s: %w", coupon.Code, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update coupon %s at version %d: %w", coupon.Code, coupon.Version, service.ErrVersionConflict)
	}

	coupon.Version++
	return nil
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var (
		coupon     model.Coupon
		couponType string
	)
	err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.Percentage,
		&coupon.MinPurchase,
		&coupon.ExpiresAt,
		&coupon.Active,
		&couponType,
		&coupon.Version,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	coupon.Type = model.CouponType(couponType)
	return &coupon, nil
}
