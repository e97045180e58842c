package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
)

// mockRow implements pgx.Row.
type mockRow struct {
	scanFn func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.scanFn != nil {
		return m.scanFn(dest...)
	}
	return nil
}

// mockRows implements pgx.Rows over a list of scan functions, one per row.
type mockRows struct {
	rows   []func(dest ...any) error
	pos    int
	err    error
	closed bool
}

func (m *mockRows) Close()                                       { m.closed = true }
func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

func (m *mockRows) Next() bool {
	if m.pos >= len(m.rows) {
		return false
	}
	m.pos++
	return true
}

func (m *mockRows) Scan(dest ...any) error {
	return m.rows[m.pos-1](dest...)
}

// mockPool implements database.TxQuerier for both pools and transactions.
type mockPool struct {
	execFn     func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (m *mockPool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if m.execFn != nil {
		return m.execFn(ctx, sql, arguments...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFn != nil {
		return m.queryRowFn(ctx, sql, args...)
	}
	return &mockRow{}
}

func (m *mockPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func rowErr(err error) pgx.Row {
	return &mockRow{scanFn: func(dest ...any) error { return err }}
}

func scanCouponInto(c model.Coupon) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*uuid.UUID) = c.ID
		*dest[1].(*string) = c.Code
		*dest[2].(*int) = c.Percentage
		*dest[3].(*int64) = c.MinPurchase
		*dest[4].(*time.Time) = c.ExpiresAt
		*dest[5].(*bool) = c.Active
		*dest[6].(*string) = string(c.Type)
		*dest[7].(*int64) = c.Version
		*dest[8].(*time.Time) = c.CreatedAt
		*dest[9].(*time.Time) = c.UpdatedAt
		return nil
	}
}

func scanInventoryInto(inv model.Inventory) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*uuid.UUID) = inv.ID
		*dest[1].(*uuid.UUID) = inv.ProductID
		*dest[2].(*string) = inv.SKU
		*dest[3].(*int64) = inv.Quantity
		*dest[4].(*int64) = inv.Version
		*dest[5].(*time.Time) = inv.CreatedAt
		*dest[6].(*time.Time) = inv.UpdatedAt
		return nil
	}
}

func scanMovementInto(m model.Movement) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*uuid.UUID) = m.ID
		*dest[1].(*uuid.UUID) = m.InventoryID
		*dest[2].(*uuid.UUID) = m.ProductID
		*dest[3].(*string) = m.SKU
		*dest[4].(*int64) = m.Quantity
		*dest[5].(*string) = string(m.Status)
		*dest[6].(*time.Time) = m.CreatedAt
		*dest[7].(*time.Time) = m.UpdatedAt
		return nil
	}
}
