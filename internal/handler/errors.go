package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/promo-stock-ledger/internal/service"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error      string              `json:"error"`
	Violations []service.Violation `json:"violations,omitempty"`
}

// writeError maps service errors to HTTP responses. Anything unrecognised is
// logged with its cause and answered with an opaque 500.
func writeError(c *fiber.Ctx, err error, msg string) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Error:      service.ErrValidation.Error(),
			Violations: ve.Violations,
		})
	case errors.Is(err, service.ErrCouponNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "coupon not found"})
	case errors.Is(err, service.ErrInventoryNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "inventory not found"})
	case errors.Is(err, service.ErrCouponExists):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "coupon already exists"})
	case errors.Is(err, service.ErrSKUExists):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "sku already exists"})
	case errors.Is(err, service.ErrVersionConflict):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "resource was modified concurrently"})
	case errors.Is(err, service.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request"})
	}

	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal server error"})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
}
