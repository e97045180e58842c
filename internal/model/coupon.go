package model

import (
	"time"

	"github.com/google/uuid"
)

// CouponType tells whether redemptions are bounded by a slot pool.
type CouponType string

const (
	CouponTypeLimited   CouponType = "LIMITED"
	CouponTypeUnlimited CouponType = "UNLIMITED"
)

// Valid reports whether t is a known coupon type.
func (t CouponType) Valid() bool {
	return t == CouponTypeLimited || t == CouponTypeUnlimited
}

// Coupon is a promotional discount. LIMITED coupons are backed by a pool of
// slots held in storage; the coupon itself never tracks remaining uses.
type Coupon struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	Percentage  int        `json:"percentage"`
	MinPurchase int64      `json:"min_purchase"`
	ExpiresAt   time.Time  `json:"expiration"`
	Active      bool       `json:"active"`
	Type        CouponType `json:"type"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsExpired reports whether the coupon can no longer be used at now.
// A coupon expires at its expiration instant, not after it.
func (c *Coupon) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Usable reports whether the coupon is active and not expired at now.
// It says nothing about remaining slots.
func (c *Coupon) Usable(now time.Time) bool {
	return c.Active && !c.IsExpired(now)
}

// Limited reports whether redemptions consume slots.
func (c *Coupon) Limited() bool {
	return c.Type == CouponTypeLimited
}

// Discount returns the discount granted on purchaseAmount, rounded down.
// The amount is split around 100 so the product never overflows int64.
func (c *Coupon) Discount(purchaseAmount int64) int64 {
	pct := int64(c.Percentage)
	return purchaseAmount/100*pct + purchaseAmount%100*pct/100
}

// Slot is a single-use token backing one redemption of a LIMITED coupon.
type Slot struct {
	ID        uuid.UUID
	CouponID  uuid.UUID
	CreatedAt time.Time
}

// CouponResponse is the API response DTO for GET /api/coupons/:code.
type CouponResponse struct {
	Coupon
	RemainingSlots *int64 `json:"remaining_slots,omitempty"`
}

// CouponValidation is the outcome of a non-destructive availability check.
type CouponValidation struct {
	CouponID uuid.UUID  `json:"coupon_id"`
	Code     string     `json:"code"`
	Type     CouponType `json:"type"`
	Valid    bool       `json:"valid"`
}

// CouponAllocation is the outcome of a successful coupon application.
type CouponAllocation struct {
	CouponID   uuid.UUID `json:"coupon_id"`
	Code       string    `json:"code"`
	Percentage int       `json:"percentage"`
	Discount   *int64    `json:"discount,omitempty"`
}

// CreateCouponRequest is the DTO for creating a coupon.
// MaxUses is required for LIMITED coupons and forbidden for UNLIMITED ones.
type CreateCouponRequest struct {
	Code        string     `json:"code" validate:"required,notblank,max=64"`
	Percentage  *int       `json:"percentage" validate:"required,gte=0,lte=100"`
	MinPurchase int64      `json:"min_purchase" validate:"gte=0"`
	ExpiresAt   time.Time  `json:"expiration" validate:"required,futuretime"`
	Active      *bool      `json:"active"`
	Type        CouponType `json:"type" validate:"required,oneof=LIMITED UNLIMITED"`
	MaxUses     int        `json:"max_uses" validate:"required_if=Type LIMITED,gte=0,max=100000"`
}

// UpdateCouponRequest is the DTO for a partial coupon update.
// Version must match the stored version for the update to apply.
type UpdateCouponRequest struct {
	Percentage  *int       `json:"percentage" validate:"omitempty,gte=0,lte=100"`
	MinPurchase *int64     `json:"min_purchase" validate:"omitempty,gte=0"`
	ExpiresAt   *time.Time `json:"expiration"`
	Active      *bool      `json:"active"`
	Version     *int64     `json:"version" validate:"required,gte=0"`
}

// ApplyCouponRequest is the DTO for applying a coupon.
type ApplyCouponRequest struct {
	Code           string `json:"code" validate:"required,notblank,max=64"`
	PurchaseAmount *int64 `json:"purchase_amount" validate:"omitempty,gte=0"`
}
