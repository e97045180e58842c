package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every not-found error below.
	ErrNotFound = errors.New("not found")
	// ErrCouponNotFound is returned when a coupon cannot be found
	ErrCouponNotFound = fmt.Errorf("coupon %w", ErrNotFound)
	// ErrInventoryNotFound is returned when no inventory exists for a SKU
	ErrInventoryNotFound = fmt.Errorf("inventory %w", ErrNotFound)
	// ErrCouponExists is returned when attempting to create a coupon whose code is taken
	ErrCouponExists = errors.New("coupon already exists")
	// ErrSKUExists is returned when attempting to create an inventory whose SKU is taken
	ErrSKUExists = errors.New("sku already exists")
	// ErrVersionConflict is returned when an optimistic update lost against a concurrent writer
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidRequest is returned when request data is nil or incomplete
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTransactionFailed is matched by every TransactionError
	ErrTransactionFailed = errors.New("transaction failed")
)

// TransactionError reports an infrastructure failure inside a transaction.
// Its message never includes the cause; use Unwrap or errors.As for logging.
type TransactionError struct {
	Op    string
	Cause error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, ErrTransactionFailed)
}

func (e *TransactionError) Unwrap() error { return e.Cause }

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailed
}

func txFailure(op string, cause error) error {
	return &TransactionError{Op: op, Cause: cause}
}
