package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
)

// InventoryServiceInterface defines the interface for inventory business logic.
type InventoryServiceInterface interface {
	CreateBatch(ctx context.Context, req *model.CreateInventoriesRequest) ([]*model.Inventory, error)
	GetBySKU(ctx context.Context, sku string) (*model.InventoryResponse, error)
	Increase(ctx context.Context, sku string, quantity int64) (*model.InventoryMutation, error)
	Decrease(ctx context.Context, sku string, quantity int64) (*model.InventoryMutation, error)
	Remove(ctx context.Context, sku string) (*model.InventoryMutation, error)
	Rollback(ctx context.Context, sku string) (*model.RollbackResult, error)
}

// InventoryHandler handles HTTP requests for inventories and their ledger.
type InventoryHandler struct {
	service InventoryServiceInterface
}

// NewInventoryHandler creates a new InventoryHandler with the given service.
func NewInventoryHandler(svc InventoryServiceInterface) *InventoryHandler {
	return &InventoryHandler{service: svc}
}

// Register mounts the inventory routes on r.
func (h *InventoryHandler) Register(r fiber.Router) {
	r.Post("/inventories", h.CreateInventories)
	r.Get("/inventories/:sku", h.GetInventory)
	r.Delete("/inventories/:sku", h.RemoveInventory)
	r.Post("/inventories/:sku/increase", h.IncreaseInventory)
	r.Post("/inventories/:sku/decrease", h.DecreaseInventory)
	r.Post("/inventories/:sku/rollback", h.RollbackInventory)
}

// CreateInventories handles POST /api/inventories.
func (h *InventoryHandler) CreateInventories(c *fiber.Ctx) error {
	var req model.CreateInventoriesRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	created, err := h.service.CreateBatch(c.Context(), &req)
	if err != nil {
		return writeError(c, err, "failed to create inventories")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"items": created})
}

// GetInventory handles GET /api/inventories/:sku.
func (h *InventoryHandler) GetInventory(c *fiber.Ctx) error {
	inv, err := h.service.GetBySKU(c.Context(), c.Params("sku"))
	if err != nil {
		return writeError(c, err, "failed to get inventory")
	}
	return c.JSON(inv)
}

// IncreaseInventory handles POST /api/inventories/:sku/increase.
func (h *InventoryHandler) IncreaseInventory(c *fiber.Ctx) error {
	var req model.QuantityRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.service.Increase(c.Context(), c.Params("sku"), req.Quantity)
	if err != nil {
		return writeError(c, err, "failed to increase inventory")
	}
	return c.JSON(res)
}

// DecreaseInventory handles POST /api/inventories/:sku/decrease.
func (h *InventoryHandler) DecreaseInventory(c *fiber.Ctx) error {
	var req model.QuantityRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.service.Decrease(c.Context(), c.Params("sku"), req.Quantity)
	if err != nil {
		return writeError(c, err, "failed to decrease inventory")
	}
	return c.JSON(res)
}

// RemoveInventory handles DELETE /api/inventories/:sku.
func (h *InventoryHandler) RemoveInventory(c *fiber.Ctx) error {
	res, err := h.service.Remove(c.Context(), c.Params("sku"))
	if err != nil {
		return writeError(c, err, "failed to remove inventory")
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("sku", res.Inventory.SKU).
		Int64("quantity", res.Inventory.Quantity).
		Msg("inventory removed")

	return c.JSON(res)
}

// RollbackInventory handles POST /api/inventories/:sku/rollback. Having
// nothing to restore is a 200 with "restored": false.
func (h *InventoryHandler) RollbackInventory(c *fiber.Ctx) error {
	res, err := h.service.Rollback(c.Context(), c.Params("sku"))
	if err != nil {
		return writeError(c, err, "failed to roll back inventory")
	}
	return c.JSON(res)
}
