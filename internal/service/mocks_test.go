package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/promo-stock-ledger/internal/events"
	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	"github.com/fairyhunter13/promo-stock-ledger/pkg/database"
)

// mockTx is a pgx.Tx that records how the transaction ended.
type mockTx struct {
	commitErr  error
	committed  atomic.Bool
	rolledBack atomic.Bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed.Store(true)
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	m.rolledBack.Store(true)
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (m *mockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (m *mockTx) Conn() *pgx.Conn { return nil }

// mockBeginner hands out a fresh mockTx per Begin and keeps them for inspection.
type mockBeginner struct {
	mu        sync.Mutex
	beginErr  error
	commitErr error
	txs       []*mockTx
}

func (m *mockBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	tx := &mockTx{commitErr: m.commitErr}
	m.mu.Lock()
	m.txs = append(m.txs, tx)
	m.mu.Unlock()
	return tx, nil
}

func (m *mockBeginner) begun() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

func (m *mockBeginner) last() *mockTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) == 0 {
		return nil
	}
	return m.txs[len(m.txs)-1]
}

func newTxManager() (*database.TxManager, *mockBeginner) {
	b := &mockBeginner{}
	return database.NewTxManager(b, time.Second), b
}

// mockCouponRepository is a mock implementation of CouponRepositoryInterface.
type mockCouponRepository struct {
	findByCodeFn   func(ctx context.Context, code string) (*model.Coupon, error)
	existsByCodeFn func(ctx context.Context, code string) (bool, error)
	createFn       func(ctx context.Context, tx database.TxQuerier, coupon *model.Coupon) error
	updateFn       func(ctx context.Context, tx database.TxQuerier, coupon *model.Coupon) error
}

func (m *mockCouponRepository) FindByCode(ctx context.Context, code string) (*model.Coupon, error) {
	if m.findByCodeFn != nil {
		return m.findByCodeFn(ctx, code)
	}
	return nil, nil
}

func (m *mockCouponRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	if m.existsByCodeFn != nil {
		return m.existsByCodeFn(ctx, code)
	}
	return false, nil
}

func (m *mockCouponRepository) Create(ctx context.Context, tx database.TxQuerier, coupon *model.Coupon) error {
	if m.createFn != nil {
		return m.createFn(ctx, tx, coupon)
	}
	return nil
}

func (m *mockCouponRepository) Update(ctx context.Context, tx database.TxQuerier, coupon *model.Coupon) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, tx, coupon)
	}
	coupon.Version++
	return nil
}

// fakeSlotRepository keeps slot pools in memory. Deletion is atomic under mu,
// the way a single DELETE statement is in the database.
type fakeSlotRepository struct {
	mu        sync.Mutex
	pools     map[uuid.UUID]int64
	deleteErr error
	createErr error
	deletes   atomic.Int64
}

func newFakeSlotRepository() *fakeSlotRepository {
	return &fakeSlotRepository{pools: make(map[uuid.UUID]int64)}
}

func (f *fakeSlotRepository) seed(couponID uuid.UUID, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[couponID] = n
}

func (f *fakeSlotRepository) remaining(couponID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pools[couponID]
}

func (f *fakeSlotRepository) CreateBatch(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID, count int) ([]model.Slot, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	slots := make([]model.Slot, count)
	for i := range slots {
		slots[i] = model.Slot{ID: uuid.New(), CouponID: couponID}
	}
	f.mu.Lock()
	f.pools[couponID] += int64(count)
	f.mu.Unlock()
	return slots, nil
}

func (f *fakeSlotRepository) DeleteOneByCouponID(ctx context.Context, tx database.TxQuerier, couponID uuid.UUID) (int64, error) {
	f.deletes.Add(1)
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pools[couponID] == 0 {
		return 0, nil
	}
	f.pools[couponID]--
	return 1, nil
}

func (f *fakeSlotRepository) ExistsAnyByCouponID(ctx context.Context, couponID uuid.UUID) (bool, error) {
	return f.remaining(couponID) > 0, nil
}

func (f *fakeSlotRepository) CountByCouponID(ctx context.Context, couponID uuid.UUID) (int64, error) {
	return f.remaining(couponID), nil
}

// mockInventoryRepository is a mock implementation of InventoryRepositoryInterface.
type mockInventoryRepository struct {
	findBySKUFn   func(ctx context.Context, sku string) (*model.Inventory, error)
	createFn      func(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error
	createBatchFn func(ctx context.Context, tx database.TxQuerier, invs []*model.Inventory) error
	updateFn      func(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error
	deleteFn      func(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error
}

func (m *mockInventoryRepository) FindBySKU(ctx context.Context, sku string) (*model.Inventory, error) {
	if m.findBySKUFn != nil {
		return m.findBySKUFn(ctx, sku)
	}
	return nil, nil
}

func (m *mockInventoryRepository) Create(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error {
	if m.createFn != nil {
		return m.createFn(ctx, tx, inv)
	}
	return nil
}

func (m *mockInventoryRepository) CreateBatch(ctx context.Context, tx database.TxQuerier, invs []*model.Inventory) error {
	if m.createBatchFn != nil {
		return m.createBatchFn(ctx, tx, invs)
	}
	return nil
}

func (m *mockInventoryRepository) Update(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, tx, inv)
	}
	inv.Version++
	return nil
}

func (m *mockInventoryRepository) Delete(ctx context.Context, tx database.TxQuerier, inv *model.Inventory) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tx, inv)
	}
	return nil
}

// mockMovementRepository is a mock implementation of MovementRepositoryInterface.
type mockMovementRepository struct {
	createFn                 func(ctx context.Context, tx database.TxQuerier, m *model.Movement) error
	findLatestRemovedBySKUFn func(ctx context.Context, tx database.TxQuerier, sku string) (*model.Movement, error)
	deleteByIDFn             func(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (int64, error)
	listBySKUFn              func(ctx context.Context, sku string, limit int) ([]*model.Movement, error)
}

func (m *mockMovementRepository) Create(ctx context.Context, tx database.TxQuerier, mv *model.Movement) error {
	if m.createFn != nil {
		return m.createFn(ctx, tx, mv)
	}
	return nil
}

func (m *mockMovementRepository) FindLatestRemovedBySKU(ctx context.Context, tx database.TxQuerier, sku string) (*model.Movement, error) {
	if m.findLatestRemovedBySKUFn != nil {
		return m.findLatestRemovedBySKUFn(ctx, tx, sku)
	}
	return nil, nil
}

func (m *mockMovementRepository) DeleteByID(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (int64, error) {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, tx, id)
	}
	return 1, nil
}

func (m *mockMovementRepository) ListBySKU(ctx context.Context, sku string, limit int) ([]*model.Movement, error) {
	if m.listBySKUFn != nil {
		return m.listBySKUFn(ctx, sku, limit)
	}
	return []*model.Movement{}, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// memoryCouponCache is a CouponCache backed by a map.
type memoryCouponCache struct {
	mu      sync.Mutex
	entries map[string]model.Coupon
	getErr  error
	deletes []string
}

func newMemoryCouponCache() *memoryCouponCache {
	return &memoryCouponCache{entries: make(map[string]model.Coupon)}
}

func (c *memoryCouponCache) Get(ctx context.Context, code string) (*model.Coupon, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	entry, ok := c.entries[code]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *memoryCouponCache) Set(ctx context.Context, coupon *model.Coupon) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[coupon.Code] = *coupon
	return nil
}

func (c *memoryCouponCache) Delete(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
	c.deletes = append(c.deletes, code)
	return nil
}

func intPtr(i int) *int       { return &i }
func int64Ptr(i int64) *int64 { return &i }
func boolPtr(b bool) *bool    { return &b }

// counterValue returns the value of the counter series name{labels} in reg, or 0.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue series
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
