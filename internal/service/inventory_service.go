package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/promo-stock-ledger/internal/events"
	"github.com/fairyhunter13/promo-stock-ledger/internal/metrics"
	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	"github.com/fairyhunter13/promo-stock-ledger/pkg/database"
)

// movementHistoryLimit caps the ledger entries returned with an inventory.
const movementHistoryLimit = 20

// InventoryRepositoryInterface defines the interface for inventory data access.
type InventoryRepositoryInterface interface {
	FindBySKU(ctx context.Context, sku string) (*model.Inventory, error)
	Create(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error
	CreateBatch(ctx context.Context, tx database.TxQuerier, invs []*model.Inventory) error
	Update(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error
	Delete(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error
}

// MovementRepositoryInterface defines the interface for the quantity ledger.
type MovementRepositoryInterface interface {
	Create(ctx context.Context, tx database.TxQuerier, m *model.Movement) error
	FindLatestRemovedBySKU(ctx context.Context, tx database.TxQuerier, sku string) (*model.Movement, error)
	DeleteByID(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (int64, error)
	ListBySKU(ctx context.Context, sku string, limit int) ([]*model.Movement, error)
}

type mutation string

const (
	opIncrease mutation = "increase"
	opDecrease mutation = "decrease"
	opRemove   mutation = "remove"
)

// InventoryService provides business logic for inventory quantities and their ledger.
type InventoryService struct {
	tx          *database.TxManager
	inventories InventoryRepositoryInterface
	movements   MovementRepositoryInterface
	options
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(tx *database.TxManager, inventories InventoryRepositoryInterface, movements MovementRepositoryInterface, opts ...Option) *InventoryService {
	return &InventoryService{
		tx:          tx,
		inventories: inventories,
		movements:   movements,
		options:     newOptions(opts),
	}
}

// CreateBatch creates inventories and an IN movement for every non-zero
// initial quantity, all in one transaction.
// Returns ErrSKUExists if any SKU is already taken.
func (s *InventoryService) CreateBatch(ctx context.Context, req *model.CreateInventoriesRequest) ([]*model.Inventory, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	ctx, span := s.tracer.Start(ctx, "InventoryService.CreateBatch", trace.WithAttributes(attribute.Int("inventory.count", len(req.Items))))
	defer span.End()

	if err := s.validateBatch(req); err != nil {
		return nil, err
	}

	now := s.now()
	invs := make([]*model.Inventory, 0, len(req.Items))
	var ledger []*model.Movement
	for _, item := range req.Items {
		inv := &model.Inventory{
			ID:        uuid.New(),
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		invs = append(invs, inv)
		if inv.Quantity > 0 {
			ledger = append(ledger, model.NewMovement(inv, inv.Quantity, model.MovementIn, now))
		}
	}

	start := time.Now()
	res := database.Execute(ctx, s.tx, func(ctx context.Context, tx database.TxQuerier) ([]*model.Inventory, error) {
		if err := s.inventories.CreateBatch(ctx, tx, invs); err != nil {
			return nil, err
		}
		for _, m := range ledger {
			if err := s.movements.Create(ctx, tx, m); err != nil {
				return nil, fmt.Errorf("append movement for %s: %w", m.SKU, err)
			}
		}
		return invs, nil
	})
	s.metrics.ObserveTx("create_inventories", start, res.IsSuccess())

	created, err := res.Get()
	if err != nil {
		if errors.Is(err, ErrSKUExists) {
			return nil, ErrSKUExists
		}
		recordSpanError(span, err)
		return nil, txFailure("create inventories", err)
	}

	for _, m := range ledger {
		s.publish(ctx, m.SKU, events.NewMovementRecorded(m, m.Quantity))
	}
	return created, nil
}

func (s *InventoryService) validateBatch(req *model.CreateInventoriesRequest) error {
	var vs violations
	if err := s.validate.Struct(req); err != nil {
		converted, convErr := fromValidator(err, "")
		if convErr != nil {
			return convErr
		}
		vs = converted
	}

	seen := make(map[string]int, len(req.Items))
	for i, item := range req.Items {
		if first, ok := seen[item.SKU]; ok {
			vs.add(fmt.Sprintf("items[%d].sku", i), CodeInvalidArgument,
				fmt.Sprintf("duplicates items[%d].sku", first))
			continue
		}
		seen[item.SKU] = i
	}
	return vs.err()
}

// GetBySKU returns an inventory with its most recent ledger entries.
// Returns ErrInventoryNotFound if no inventory exists for sku.
func (s *InventoryService) GetBySKU(ctx context.Context, sku string) (*model.InventoryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.GetBySKU", trace.WithAttributes(attribute.String("inventory.sku", sku)))
	defer span.End()

	inv, err := s.inventories.FindBySKU(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("find inventory: %w", err)
	}
	if inv == nil {
		return nil, ErrInventoryNotFound
	}

	movements, err := s.movements.ListBySKU(ctx, sku, movementHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return &model.InventoryResponse{Inventory: *inv, Movements: movements}, nil
}

// Increase adds quantity to the inventory of sku and records an IN movement.
func (s *InventoryService) Increase(ctx context.Context, sku string, quantity int64) (*model.InventoryMutation, error) {
	return s.mutate(ctx, opIncrease, sku, quantity)
}

// Decrease removes quantity from the inventory of sku and records an OUT movement.
// A decrease below zero is rejected with a *ValidationError before anything is written.
func (s *InventoryService) Decrease(ctx context.Context, sku string, quantity int64) (*model.InventoryMutation, error) {
	return s.mutate(ctx, opDecrease, sku, quantity)
}

func (s *InventoryService) mutate(ctx context.Context, op mutation, sku string, quantity int64) (*model.InventoryMutation, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService."+string(op), trace.WithAttributes(
		attribute.String("inventory.sku", sku),
		attribute.Int64("inventory.delta", quantity),
	))
	defer span.End()

	if quantity <= 0 {
		s.metrics.InventoryMutated(string(op), metrics.ResultRejected)
		return nil, violations{{Field: "quantity", Code: CodeInvalidArgument, Message: "must be greater than 0"}}.err()
	}

	inv, err := s.inventories.FindBySKU(ctx, sku)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("find inventory: %w", err)
	}
	if inv == nil {
		s.metrics.InventoryMutated(string(op), metrics.ResultNotFound)
		return nil, ErrInventoryNotFound
	}

	next := *inv
	var status model.MovementStatus
	switch op {
	case opIncrease:
		if quantity > math.MaxInt64-inv.Quantity {
			s.metrics.InventoryMutated(string(op), metrics.ResultRejected)
			return nil, violations{{Field: "quantity", Code: CodeInvalidArgument, Message: "would overflow the stored quantity"}}.err()
		}
		next.Quantity += quantity
		status = model.MovementIn
	case opDecrease:
		if !inv.CanDecrease(quantity) {
			s.metrics.InventoryMutated(string(op), metrics.ResultRejected)
			return nil, violations{{
				Field:   "quantity",
				Code:    CodeInsufficientQuantity,
				Message: fmt.Sprintf("cannot remove %d, only %d available", quantity, inv.Quantity),
			}}.err()
		}
		next.Quantity -= quantity
		status = model.MovementOut
	}

	at := inv.Touch(s.now())
	next.UpdatedAt = at
	movement := model.NewMovement(&next, quantity, status, at)

	start := time.Now()
	res := database.Execute(ctx, s.tx, func(ctx context.Context, tx database.TxQuerier) (*model.InventoryMutation, error) {
		// 1. CAS the quantity against the version we read
		if err := s.inventories.Update(ctx, tx, &next); err != nil {
			return nil, fmt.Errorf("update inventory: %w", err)
		}
		// 2. Ledger entry commits or rolls back with the quantity
		if err := s.movements.Create(ctx, tx, movement); err != nil {
			return nil, fmt.Errorf("append movement: %w", err)
		}
		return &model.InventoryMutation{Inventory: &next, Movement: movement}, nil
	})
	s.metrics.ObserveTx(string(op)+"_inventory", start, res.IsSuccess())

	result, err := res.Get()
	if err != nil {
		s.metrics.InventoryMutated(string(op), metrics.ResultFailure)
		recordSpanError(span, err)
		return nil, txFailure(string(op)+" inventory", err)
	}

	s.metrics.InventoryMutated(string(op), metrics.ResultSuccess)
	s.publish(ctx, sku, events.NewMovementRecorded(movement, next.Quantity))
	return result, nil
}

// Remove deletes the inventory of sku and records a REMOVED movement carrying
// the removed quantity, which Rollback can later restore. An inventory that is
// already empty is deleted without a ledger entry.
func (s *InventoryService) Remove(ctx context.Context, sku string) (*model.InventoryMutation, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.remove", trace.WithAttributes(attribute.String("inventory.sku", sku)))
	defer span.End()

	inv, err := s.inventories.FindBySKU(ctx, sku)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("find inventory: %w", err)
	}
	if inv == nil {
		s.metrics.InventoryMutated(string(opRemove), metrics.ResultNotFound)
		return nil, ErrInventoryNotFound
	}

	var movement *model.Movement
	if inv.Quantity > 0 {
		movement = model.NewMovement(inv, inv.Quantity, model.MovementRemoved, inv.Touch(s.now()))
	}

	start := time.Now()
	res := database.Execute(ctx, s.tx, func(ctx context.Context, tx database.TxQuerier) (*model.InventoryMutation, error) {
		if err := s.inventories.Delete(ctx, tx, inv); err != nil {
			return nil, fmt.Errorf("delete inventory: %w", err)
		}
		// REMOVED marker for a later rollback; empty inventories leave none
		if movement != nil {
			if err := s.movements.Create(ctx, tx, movement); err != nil {
				return nil, fmt.Errorf("append movement: %w", err)
			}
		}
		return &model.InventoryMutation{Inventory: inv, Movement: movement}, nil
	})
	s.metrics.ObserveTx("remove_inventory", start, res.IsSuccess())

	result, err := res.Get()
	if err != nil {
		s.metrics.InventoryMutated(string(opRemove), metrics.ResultFailure)
		recordSpanError(span, err)
		return nil, txFailure("remove inventory", err)
	}

	s.metrics.InventoryMutated(string(opRemove), metrics.ResultSuccess)
	if movement != nil {
		s.publish(ctx, sku, events.NewMovementRecorded(movement, 0))
	}
	return result, nil
}

// Rollback restores the most recent REMOVED movement of sku: the movement is
// deleted, a new inventory row holding its quantity is created, and an IN
// movement is recorded, all in one transaction.
//
// The REMOVED entry is deleted first and the affected-row count decides whether
// this call owns the compensation, so concurrent rollbacks restore it once.
// Having nothing to roll back is not an error: the result has Restored false.
func (s *InventoryService) Rollback(ctx context.Context, sku string) (*model.RollbackResult, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Rollback", trace.WithAttributes(attribute.String("inventory.sku", sku)))
	defer span.End()

	if strings.TrimSpace(sku) == "" {
		return nil, violations{{Field: "sku", Code: CodeRequired, Message: "is required"}}.err()
	}

	noop := &model.RollbackResult{}
	start := time.Now()
	res := database.Execute(ctx, s.tx, func(ctx context.Context, tx database.TxQuerier) (*model.RollbackResult, error) {
		// 1. Find the newest REMOVED entry
		removed, err := s.movements.FindLatestRemovedBySKU(ctx, tx, sku)
		if err != nil {
			return nil, fmt.Errorf("find removed movement: %w", err)
		}
		if removed == nil {
			return noop, nil
		}

		// 2. Claim it by deleting; a concurrent rollback that got there first
		// leaves 0 rows and this call becomes a noop
		n, err := s.movements.DeleteByID(ctx, tx, removed.ID)
		if err != nil {
			return nil, fmt.Errorf("delete removed movement: %w", err)
		}
		if n == 0 {
			return noop, nil
		}

		at := s.now().Truncate(time.Microsecond)
		if !at.After(removed.CreatedAt) {
			at = removed.CreatedAt.Add(time.Microsecond)
		}
		// 3. Recreate the inventory as a fresh row
		inv := &model.Inventory{
			ID:        uuid.New(),
			ProductID: removed.ProductID,
			SKU:       removed.SKU,
			Quantity:  removed.Quantity,
			CreatedAt: at,
			UpdatedAt: at,
		}
		if err := s.inventories.Create(ctx, tx, inv); err != nil {
			return nil, fmt.Errorf("recreate inventory: %w", err)
		}

		// 4. Record the restored quantity
		restored := model.NewMovement(inv, removed.Quantity, model.MovementIn, at)
		if err := s.movements.Create(ctx, tx, restored); err != nil {
			return nil, fmt.Errorf("append movement: %w", err)
		}
		return &model.RollbackResult{Restored: true, Inventory: inv, Movement: restored}, nil
	})
	s.metrics.ObserveTx("rollback_inventory", start, res.IsSuccess())

	result, err := res.Get()
	if err != nil {
		s.metrics.RolledBack(metrics.ResultFailure)
		recordSpanError(span, err)
		return nil, txFailure("rollback inventory", err)
	}

	if !result.Restored {
		s.metrics.RolledBack(metrics.ResultNoop)
		log.Debug().Str("sku", sku).Msg("nothing to roll back")
		return result, nil
	}

	s.metrics.RolledBack(metrics.ResultSuccess)
	span.SetAttributes(attribute.Int64("inventory.restored", result.Inventory.Quantity))
	log.Info().
		Str("sku", sku).
		Str("inventory_id", result.Inventory.ID.String()).
		Int64("quantity", result.Inventory.Quantity).
		Msg("inventory rolled back")
	s.publish(ctx, sku, events.NewMovementRecorded(result.Movement, result.Inventory.Quantity))
	return result, nil
}
