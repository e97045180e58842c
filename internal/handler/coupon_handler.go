package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
)

// CouponServiceInterface defines the interface for coupon business logic.
type CouponServiceInterface interface {
	Create(ctx context.Context, req *model.CreateCouponRequest) (*model.Coupon, error)
	GetByCode(ctx context.Context, code string) (*model.CouponResponse, error)
	Update(ctx context.Context, code string, req *model.UpdateCouponRequest) (*model.Coupon, error)
	Validate(ctx context.Context, code string) (*model.CouponValidation, error)
	Apply(ctx context.Context, req *model.ApplyCouponRequest) (*model.CouponAllocation, error)
}

// CouponHandler handles HTTP requests for coupon operations.
type CouponHandler struct {
	service CouponServiceInterface
}

// NewCouponHandler creates a new CouponHandler with the given service.
func NewCouponHandler(svc CouponServiceInterface) *CouponHandler {
	return &CouponHandler{service: svc}
}

// Register mounts the coupon routes on r.
func (h *CouponHandler) Register(r fiber.Router) {
	r.Post("/coupons", h.CreateCoupon)
	r.Post("/coupons/apply", h.ApplyCoupon)
	r.Get("/coupons/:code", h.GetCoupon)
	r.Patch("/coupons/:code", h.UpdateCoupon)
	r.Get("/coupons/:code/validate", h.ValidateCoupon)
}

// CreateCoupon handles POST /api/coupons.
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var req model.CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	coupon, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return writeError(c, err, "failed to create coupon")
	}

	return c.Status(fiber.StatusCreated).JSON(coupon)
}

// GetCoupon handles GET /api/coupons/:code.
func (h *CouponHandler) GetCoupon(c *fiber.Ctx) error {
	coupon, err := h.service.GetByCode(c.Context(), c.Params("code"))
	if err != nil {
		return writeError(c, err, "failed to get coupon")
	}
	return c.JSON(coupon)
}

// UpdateCoupon handles PATCH /api/coupons/:code. The body must carry the
// version the client last read.
func (h *CouponHandler) UpdateCoupon(c *fiber.Ctx) error {
	var req model.UpdateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	coupon, err := h.service.Update(c.Context(), c.Params("code"), &req)
	if err != nil {
		return writeError(c, err, "failed to update coupon")
	}
	return c.JSON(coupon)
}

// ValidateCoupon handles GET /api/coupons/:code/validate. It never consumes a slot.
func (h *CouponHandler) ValidateCoupon(c *fiber.Ctx) error {
	res, err := h.service.Validate(c.Context(), c.Params("code"))
	if err != nil {
		return writeError(c, err, "failed to validate coupon")
	}
	return c.JSON(res)
}

// ApplyCoupon handles POST /api/coupons/apply.
func (h *CouponHandler) ApplyCoupon(c *fiber.Ctx) error {
	var req model.ApplyCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	alloc, err := h.service.Apply(c.Context(), &req)
	if err != nil {
		return writeError(c, err, "failed to apply coupon")
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("coupon_code", alloc.Code).
		Msg("coupon applied")

	return c.JSON(alloc)
}
