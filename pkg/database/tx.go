package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ErrNoValue is the cause recorded when a Failure is built from a nil error.
var ErrNoValue = errors.New("transaction failed without a cause")

// TxBeginner is implemented by pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Result is the outcome of a unit of work run by Execute.
// It is either Success(value) or Failure(cause), never both.
type Result[T any] struct {
	value T
	err   error
}

// Success wraps the value produced by a committed unit of work.
func Success[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Failure wraps the cause of an aborted unit of work.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = ErrNoValue
	}
	return Result[T]{err: err}
}

// IsSuccess reports whether the unit of work was committed.
func (r Result[T]) IsSuccess() bool { return r.err == nil }

// Value returns the committed value, or the zero value on Failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure cause, or nil on Success.
func (r Result[T]) Err() error { return r.err }

// Get returns the value and the failure cause.
func (r Result[T]) Get() (T, error) { return r.value, r.err }

// TxManager runs units of work inside a single database transaction.
type TxManager struct {
	pool    TxBeginner
	timeout time.Duration
}

// NewTxManager creates a TxManager. A positive timeout bounds every transaction
// it runs; a deadline hit is reported as a Failure.
func NewTxManager(pool TxBeginner, timeout time.Duration) *TxManager {
	return &TxManager{pool: pool, timeout: timeout}
}

// Execute runs work inside one transaction and commits it when work returns nil.
// Any error from begin, work or commit rolls the transaction back and is returned
// as a Failure. Execute never retries.
//
// A panic inside work rolls the transaction back and is re-raised.
func Execute[T any](ctx context.Context, m *TxManager, work func(ctx context.Context, tx TxQuerier) (T, error)) Result[T] {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return Failure[T](fmt.Errorf("begin tx: %w", err))
	}

	// Rollback must still reach the server after the request context is gone.
	rollbackCtx := context.WithoutCancel(ctx)
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(rollbackCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Warn().Err(rbErr).Msg("transaction rollback failed")
		}
	}()

	value, err := work(ctx, tx)
	if err != nil {
		return Failure[T](err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Failure[T](fmt.Errorf("commit tx: %w", err))
	}
	committed = true

	return Success(value)
}
