package model

import (
	"time"

	"github.com/google/uuid"
)

// MovementStatus describes the direction and compensability of a quantity change.
type MovementStatus string

const (
	// MovementIn records quantity added to an inventory.
	MovementIn MovementStatus = "IN"
	// MovementOut records quantity taken from an inventory.
	MovementOut MovementStatus = "OUT"
	// MovementRemoved records a removal that can still be rolled back.
	MovementRemoved MovementStatus = "REMOVED"
)

// Inventory is the stock level of one SKU.
// Movements are kept in storage; the aggregate only knows its summary quantity.
type Inventory struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
	Quantity  int64     `json:"quantity"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanDecrease reports whether removing delta keeps the quantity non-negative.
func (i *Inventory) CanDecrease(delta int64) bool {
	return delta <= i.Quantity
}

// Touch returns a timestamp strictly after UpdatedAt, preferring now.
// PostgreSQL keeps microseconds, so the bump is one microsecond.
func (i *Inventory) Touch(now time.Time) time.Time {
	now = now.Truncate(time.Microsecond)
	if !now.After(i.UpdatedAt) {
		now = i.UpdatedAt.Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}

// Movement is a ledger entry for one quantity change of an inventory.
type Movement struct {
	ID          uuid.UUID      `json:"id"`
	InventoryID uuid.UUID      `json:"inventory_id"`
	ProductID   uuid.UUID      `json:"product_id"`
	SKU         string         `json:"sku"`
	Quantity    int64          `json:"quantity"`
	Status      MovementStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewMovement builds a ledger entry for inv stamped at at.
func NewMovement(inv *Inventory, quantity int64, status MovementStatus, at time.Time) *Movement {
	return &Movement{
		ID:          uuid.New(),
		InventoryID: inv.ID,
		ProductID:   inv.ProductID,
		SKU:         inv.SKU,
		Quantity:    quantity,
		Status:      status,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// InventoryMutation is the result of an increase or decrease.
type InventoryMutation struct {
	Inventory *Inventory `json:"inventory"`
	Movement  *Movement  `json:"movement"`
}

// RollbackResult is the result of a rollback-by-SKU. Restored is false when
// there was no pending REMOVED movement to compensate.
type RollbackResult struct {
	Restored  bool       `json:"restored"`
	Inventory *Inventory `json:"inventory,omitempty"`
	Movement  *Movement  `json:"movement,omitempty"`
}

// CreateInventoryRequest is the DTO for one item of a batch inventory creation.
type CreateInventoryRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	SKU       string    `json:"sku" validate:"required,notblank,max=64"`
	Quantity  int64     `json:"quantity" validate:"gte=0"`
}

// CreateInventoriesRequest wraps a batch of inventories to create.
type CreateInventoriesRequest struct {
	Items []CreateInventoryRequest `json:"items" validate:"required,min=1,max=500,dive"`
}

// InventoryResponse is the API response DTO for GET /api/inventories/:sku.
type InventoryResponse struct {
	Inventory
	Movements []*Movement `json:"movements"`
}

// QuantityRequest is the DTO for increase and decrease operations.
type QuantityRequest struct {
	Quantity int64 `json:"quantity"`
}
