package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
)

// CouponApplied is published after a coupon application commits.
type CouponApplied struct {
	CouponID  uuid.UUID        `json:"coupon_id"`
	Code      string           `json:"code"`
	Type      model.CouponType `json:"type"`
	Discount  *int64           `json:"discount,omitempty"`
	AppliedAt time.Time        `json:"applied_at"`
}

func (CouponApplied) EventType() string { return TypeCouponApplied }

// MovementRecorded is published after a ledger entry commits.
// Quantity is the inventory quantity after the change; zero for REMOVED.
type MovementRecorded struct {
	MovementID  uuid.UUID            `json:"movement_id"`
	InventoryID uuid.UUID            `json:"inventory_id"`
	SKU         string               `json:"sku"`
	Delta       int64                `json:"delta"`
	Status      model.MovementStatus `json:"status"`
	Quantity    int64                `json:"quantity"`
	RecordedAt  time.Time            `json:"recorded_at"`
}

func (MovementRecorded) EventType() string { return TypeMovementRecorded }

// NewMovementRecorded builds the event for m applied to inv.
func NewMovementRecorded(m *model.Movement, quantityAfter int64) MovementRecorded {
	return MovementRecorded{
		MovementID:  m.ID,
		InventoryID: m.InventoryID,
		SKU:         m.SKU,
		Delta:       m.Quantity,
		Status:      m.Status,
		Quantity:    quantityAfter,
		RecordedAt:  m.CreatedAt,
	}
}
