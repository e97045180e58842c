package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/promo-stock-ledger/internal/events"
	"github.com/fairyhunter13/promo-stock-ledger/internal/metrics"
	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	"github.com/fairyhunter13/promo-stock-ledger/pkg/database"
)

// CouponRepositoryInterface defines the interface for coupon data access.
type CouponRepositoryInterface interface {
	FindByCode(ctx context.Context, code string) (*model.Coupon, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, tx database.TxQuerier, coupon *model.Coupon) error
	Update(ctx context.Context, tx database.TxQuerier, coupon *model.Coupon) error
}

// SlotRepositoryInterface defines the interface for the coupon slot pool.
type SlotRepositoryInterface interface {
	CreateBatch(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID, count int) ([]model.Slot, error)
	DeleteOneByCouponID(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID) (int64, error)
	ExistsAnyByCouponID(ctx context.Context, couponID uuid.UUID) (bool, error)
	CountByCouponID(ctx context.Context, couponID uuid.UUID) (int64, error)
}

// CouponService provides business logic for coupon operations.
type CouponService struct {
	tx      *database.TxManager
	coupons CouponRepositoryInterface
	slots   SlotRepositoryInterface
	options
}

// NewCouponService creates a new CouponService.
func NewCouponService(tx *database.TxManager, coupons CouponRepositoryInterface, slots SlotRepositoryInterface, opts ...Option) *CouponService {
	return &CouponService{
		tx:      tx,
		coupons: coupons,
		slots:   slots,
		options: newOptions(opts),
	}
}

// Create creates a coupon and, for LIMITED coupons, its slot pool of MaxUses
// slots, in one transaction.
// Returns ErrCouponExists if the code is taken and a *ValidationError for bad input.
func (s *CouponService) Create(ctx context.Context, req *model.CreateCouponRequest) (*model.Coupon, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	ctx, span := s.tracer.Start(ctx, "CouponService.Create", trace.WithAttributes(
		attribute.String("coupon.code", req.Code),
		attribute.String("coupon.type", string(req.Type)),
	))
	defer span.End()

	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	exists, err := s.coupons.ExistsByCode(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("check coupon code: %w", err)
	}
	if exists {
		return nil, ErrCouponExists
	}

	now := s.now()
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	coupon := &model.Coupon{
		ID:          uuid.New(),
		Code:        req.Code,
		Percentage:  *req.Percentage,
		MinPurchase: req.MinPurchase,
		ExpiresAt:   req.ExpiresAt,
		Active:      active,
		Type:        req.Type,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	start := time.Now()
	res := database.Execute(ctx, s.tx, func(ctx context.Context, tx database.TxQuerier) (*model.Coupon, error) {
		if err := s.coupons.Create(ctx, tx, coupon); err != nil {
			return nil, err
		}
		if coupon.Limited() {
			if _, err := s.slots.CreateBatch(ctx, tx, coupon.ID, req.MaxUses); err != nil {
				return nil, fmt.Errorf("create slot pool: %w", err)
			}
		}
		return coupon, nil
	})
	s.metrics.ObserveTx("create_coupon", start, res.IsSuccess())

	created, err := res.Get()
	if err != nil {
		if errors.Is(err, ErrCouponExists) {
			return nil, ErrCouponExists
		}
		recordSpanError(span, err)
		return nil, txFailure("create coupon", err)
	}

	log.Info().
		Str("coupon_id", created.ID.String()).
		Str("code", created.Code).
		Str("type", string(created.Type)).
		Int("max_uses", req.MaxUses).
		Msg("coupon created")

	return created, nil
}

func (s *CouponService) validateCreate(req *model.CreateCouponRequest) error {
	var vs violations
	if err := s.validate.Struct(req); err != nil {
		converted, convErr := fromValidator(err, "")
		if convErr != nil {
			return convErr
		}
		vs = converted
	}
	if req.Type == model.CouponTypeUnlimited && req.MaxUses != 0 {
		vs.add("max_uses", CodeInvalidArgument, "must be empty for UNLIMITED coupons")
	}
	return vs.err()
}

// GetByCode retrieves a coupon and, for LIMITED coupons, its remaining slot count.
// Returns ErrCouponNotFound if the coupon doesn't exist.
func (s *CouponService) GetByCode(ctx context.Context, code string) (*model.CouponResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CouponService.GetByCode", trace.WithAttributes(attribute.String("coupon.code", code)))
	defer span.End()

	coupon, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	resp := &model.CouponResponse{Coupon: *coupon}
	if coupon.Limited() {
		remaining, err := s.slots.CountByCouponID(ctx, coupon.ID)
		if err != nil {
			return nil, fmt.Errorf("count slots: %w", err)
		}
		resp.RemainingSlots = &remaining
	}
	return resp, nil
}

// Validate reports whether the coupon could be applied right now without
// consuming anything. A later Apply can still fail once the last slot is taken.
// Returns ErrCouponNotFound if the coupon doesn't exist.
func (s *CouponService) Validate(ctx context.Context, code string) (*model.CouponValidation, error) {
	ctx, span := s.tracer.Start(ctx, "CouponService.Validate", trace.WithAttributes(attribute.String("coupon.code", code)))
	defer span.End()

	coupon, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	valid := coupon.Usable(s.now())
	if valid && coupon.Limited() {
		valid, err = s.slots.ExistsAnyByCouponID(ctx, coupon.ID)
		if err != nil {
			return nil, fmt.Errorf("check slot pool: %w", err)
		}
	}
	s.metrics.CouponValidated(valid)
	span.SetAttributes(attribute.Bool("coupon.valid", valid))

	return &model.CouponValidation{
		CouponID: coupon.ID,
		Code:     coupon.Code,
		Type:     coupon.Type,
		Valid:    valid,
	}, nil
}

// Apply redeems a coupon. For LIMITED coupons exactly one slot is deleted by a
// single statement whose affected-row count decides the outcome; the coupon
// row itself is never written.
// Returns:
//   - ErrCouponNotFound if the coupon doesn't exist
//   - a *ValidationError matching ErrCouponNoMoreAvailable if the coupon is
//     inactive, expired or has no slots left
//   - a *TransactionError if the store failed
func (s *CouponService) Apply(ctx context.Context, req *model.ApplyCouponRequest) (*model.CouponAllocation, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	ctx, span := s.tracer.Start(ctx, "CouponService.Apply", trace.WithAttributes(attribute.String("coupon.code", req.Code)))
	defer span.End()

	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	coupon, err := s.coupons.FindByCode(ctx, req.Code)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	if coupon == nil {
		s.metrics.CouponApplied("", metrics.ResultNotFound)
		return nil, ErrCouponNotFound
	}
	couponType := string(coupon.Type)

	// 1. Reject on coupon rules before touching the pool
	var vs violations
	if !coupon.Usable(s.now()) {
		vs.add("code", CodeCouponNoMoreAvailable, "coupon is inactive or expired")
	} else if req.PurchaseAmount != nil && *req.PurchaseAmount < coupon.MinPurchase {
		vs.add("purchase_amount", CodeMinimumPurchaseNotReached,
			fmt.Sprintf("must be at least %d", coupon.MinPurchase))
	}
	if err := vs.err(); err != nil {
		s.metrics.CouponApplied(couponType, metrics.ResultRejected)
		return nil, err
	}

	// 2. LIMITED coupons consume one slot; the coupon row stays untouched
	if coupon.Limited() {
		start := time.Now()
		res := database.Execute(ctx, s.tx, func(ctx context.Context, tx database.TxQuerier) (bool, error) {
			// Rows affected is the decision: 1 won a slot, 0 means none left
			n, err := s.slots.DeleteOneByCouponID(ctx, tx, coupon.ID)
			if err != nil {
				return false, err
			}
			if n > 1 {
				return false, fmt.Errorf("consumed %d slots for coupon %s, expected at most 1", n, coupon.ID)
			}
			return n == 1, nil
		})
		s.metrics.ObserveTx("apply_coupon", start, res.IsSuccess())

		allocated, err := res.Get()
		if err != nil {
			s.metrics.CouponApplied(couponType, metrics.ResultFailure)
			recordSpanError(span, err)
			return nil, txFailure("apply coupon", err)
		}
		if !allocated {
			s.metrics.CouponApplied(couponType, metrics.ResultRejected)
			return nil, &ValidationError{Violations: []Violation{{
				Field:   "code",
				Code:    CodeCouponNoMoreAvailable,
				Message: "coupon has no remaining uses",
			}}}
		}
	}

	// 3. Build the allocation and announce it
	alloc := &model.CouponAllocation{
		CouponID:   coupon.ID,
		Code:       coupon.Code,
		Percentage: coupon.Percentage,
	}
	if req.PurchaseAmount != nil {
		discount := coupon.Discount(*req.PurchaseAmount)
		alloc.Discount = &discount
	}

	s.metrics.CouponApplied(couponType, metrics.ResultSuccess)
	s.publish(ctx, coupon.Code, events.CouponApplied{
		CouponID:  coupon.ID,
		Code:      coupon.Code,
		Type:      coupon.Type,
		Discount:  alloc.Discount,
		AppliedAt: s.now(),
	})

	return alloc, nil
}

// Update applies a partial update guarded by the coupon version.
// A stale version surfaces as a *TransactionError wrapping ErrVersionConflict.
func (s *CouponService) Update(ctx context.Context, code string, req *model.UpdateCouponRequest) (*model.Coupon, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	ctx, span := s.tracer.Start(ctx, "CouponService.Update", trace.WithAttributes(attribute.String("coupon.code", code)))
	defer span.End()

	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, violations{{Field: "expiration", Code: CodeInvalidArgument, Message: "must be in the future"}}.err()
	}

	next := *coupon
	next.Version = *req.Version
	if req.Percentage != nil {
		next.Percentage = *req.Percentage
	}
	if req.MinPurchase != nil {
		next.MinPurchase = *req.MinPurchase
	}
	if req.ExpiresAt != nil {
		next.ExpiresAt = *req.ExpiresAt
	}
	if req.Active != nil {
		next.Active = *req.Active
	}
	next.UpdatedAt = now

	// Evict before and after the commit; a lookup racing the update can
	// refill the cache with the old row in between.
	s.evict(ctx, code)

	start := time.Now()
	res := database.Execute(ctx, s.tx, func(ctx context.Context, tx database.TxQuerier) (*model.Coupon, error) {
		if err := s.coupons.Update(ctx, tx, &next); err != nil {
			return nil, err
		}
		return &next, nil
	})
	s.metrics.ObserveTx("update_coupon", start, res.IsSuccess())

	updated, err := res.Get()
	if err != nil {
		recordSpanError(span, err)
		return nil, txFailure("update coupon", err)
	}

	s.evict(ctx, code)
	return updated, nil
}

// lookup reads a coupon through the cache when one is configured.
// Cache errors degrade to a store read.
func (s *CouponService) lookup(ctx context.Context, code string) (*model.Coupon, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, code)
		if err != nil {
			log.Warn().Err(err).Str("code", code).Msg("coupon cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, coupon); err != nil {
			log.Warn().Err(err).Str("code", code).Msg("coupon cache write failed")
		}
	}
	return coupon, nil
}

func (s *CouponService) evict(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, code); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("coupon cache eviction failed")
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
