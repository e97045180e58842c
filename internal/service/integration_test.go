//go:build integration

package service_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
	"github.com/fairyhunter13/promo-stock-ledger/internal/repository"
	"github.com/fairyhunter13/promo-stock-ledger/internal/service"
	"github.com/fairyhunter13/promo-stock-ledger/pkg/database"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_USER=testuser",
			"POSTGRES_DB=ledger_db",
			"listen_addresses='*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start resource: %s", err)
	}

	databaseURL := fmt.Sprintf("postgres://testuser:testpass@%s/ledger_db?sslmode=disable&pool_max_conns=20",
		resource.GetHostPort("5432/tcp"))

	_ = resource.Expire(180)

	pool.MaxWait = 120 * time.Second
	if err = pool.Retry(func() error {
		var err error
		testPool, err = pgxpool.New(context.Background(), databaseURL)
		if err != nil {
			return err
		}
		return testPool.Ping(context.Background())
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	if err := database.Migrate(context.Background(), testPool); err != nil {
		log.Fatalf("Could not apply schema: %s", err)
	}
	// A second run must be a no-op.
	if err := database.Migrate(context.Background(), testPool); err != nil {
		log.Fatalf("Schema is not idempotent: %s", err)
	}

	code := m.Run()

	testPool.Close()
	if err := pool.Purge(resource); err != nil {
		log.Fatalf("Could not purge resource: %s", err)
	}

	os.Exit(code)
}

func cleanupTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		"TRUNCATE TABLE coupon_slots, coupons, inventory_movements, inventories CASCADE")
	require.NoError(t, err)
}

func txManager() *database.TxManager {
	return database.NewTxManager(testPool, 10*time.Second)
}

func newCouponService(opts ...service.Option) *service.CouponService {
	return service.NewCouponService(txManager(),
		repository.NewCouponRepository(testPool),
		repository.NewSlotRepository(testPool),
		opts...)
}

func newInventoryService(movements service.MovementRepositoryInterface) *service.InventoryService {
	if movements == nil {
		movements = repository.NewMovementRepository(testPool)
	}
	return service.NewInventoryService(txManager(), repository.NewInventoryRepository(testPool), movements)
}

func createCoupon(t *testing.T, svc *service.CouponService, code string, typ model.CouponType, maxUses int) *model.Coupon {
	t.Helper()
	pct := 20
	c, err := svc.Create(context.Background(), &model.CreateCouponRequest{
		Code:       code,
		Percentage: &pct,
		ExpiresAt:  time.Now().Add(time.Hour),
		Type:       typ,
		MaxUses:    maxUses,
	})
	require.NoError(t, err)
	return c
}

func countSlots(t *testing.T, couponID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, testPool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM coupon_slots WHERE coupon_id = $1", couponID).Scan(&n))
	return n
}

func TestCouponApply_ConcurrentCallersNeverOverAllocate(t *testing.T) {
	cleanupTables(t)
	const (
		slots   = 5
		callers = 40
	)
	svc := newCouponService()
	coupon := createCoupon(t, svc, "FLASH", model.CouponTypeLimited, slots)
	require.Equal(t, int64(slots), countSlots(t, coupon.ID))

	var succeeded, exhausted, other atomic.Int64
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := svc.Apply(context.Background(), &model.ApplyCouponRequest{Code: "FLASH"})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, service.ErrCouponNoMoreAvailable):
				exhausted.Add(1)
			default:
				other.Add(1)
				t.Logf("unexpected error: %v", err)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(slots), succeeded.Load())
	assert.Equal(t, int64(callers-slots), exhausted.Load())
	assert.Zero(t, other.Load())
	assert.Zero(t, countSlots(t, coupon.ID))

	var version int64
	require.NoError(t, testPool.QueryRow(context.Background(),
		"SELECT version FROM coupons WHERE id = $1", coupon.ID).Scan(&version))
	assert.Zero(t, version, "applying never writes the coupon row")
}

func TestCouponApply_UnlimitedAndValidate(t *testing.T) {
	cleanupTables(t)
	svc := newCouponService()
	createCoupon(t, svc, "FOREVER", model.CouponTypeUnlimited, 0)
	limited := createCoupon(t, svc, "ONCE", model.CouponTypeLimited, 1)

	for i := 0; i < 20; i++ {
		_, err := svc.Apply(context.Background(), &model.ApplyCouponRequest{Code: "FOREVER"})
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		res, err := svc.Validate(context.Background(), "ONCE")
		require.NoError(t, err)
		assert.True(t, res.Valid)
	}
	assert.Equal(t, int64(1), countSlots(t, limited.ID), "validate never consumes")

	_, err := svc.Apply(context.Background(), &model.ApplyCouponRequest{Code: "ONCE"})
	require.NoError(t, err)

	res, err := svc.Validate(context.Background(), "ONCE")
	require.NoError(t, err)
	assert.False(t, res.Valid)

	got, err := svc.GetByCode(context.Background(), "ONCE")
	require.NoError(t, err)
	require.NotNil(t, got.RemainingSlots)
	assert.Zero(t, *got.RemainingSlots)
}

func TestCouponCreate_ConcurrentDuplicateCode(t *testing.T) {
	cleanupTables(t)
	svc := newCouponService()

	var created, duplicate atomic.Int64
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			pct := 5
			_, err := svc.Create(context.Background(), &model.CreateCouponRequest{
				Code:       "RACE",
				Percentage: &pct,
				ExpiresAt:  time.Now().Add(time.Hour),
				Type:       model.CouponTypeLimited,
				MaxUses:    3,
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, service.ErrCouponExists):
				duplicate.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), created.Load())
	assert.Equal(t, int64(7), duplicate.Load())

	var slots int64
	require.NoError(t, testPool.QueryRow(context.Background(), "SELECT COUNT(*) FROM coupon_slots").Scan(&slots))
	assert.Equal(t, int64(3), slots, "losing creators must leave no slots behind")
}

func TestCouponUpdate_StaleVersion(t *testing.T) {
	cleanupTables(t)
	svc := newCouponService()
	coupon := createCoupon(t, svc, "EDIT", model.CouponTypeUnlimited, 0)

	pct := 50
	updated, err := svc.Update(context.Background(), "EDIT", &model.UpdateCouponRequest{Percentage: &pct, Version: &coupon.Version})
	require.NoError(t, err)
	assert.Equal(t, coupon.Version+1, updated.Version)

	_, err = svc.Update(context.Background(), "EDIT", &model.UpdateCouponRequest{Percentage: &pct, Version: &coupon.Version})
	assert.ErrorIs(t, err, service.ErrVersionConflict)
}

func seedInventory(t *testing.T, svc *service.InventoryService, sku string, qty int64) *model.Inventory {
	t.Helper()
	created, err := svc.CreateBatch(context.Background(), &model.CreateInventoriesRequest{Items: []model.CreateInventoryRequest{
		{ProductID: uuid.New(), SKU: sku, Quantity: qty},
	}})
	require.NoError(t, err)
	return created[0]
}

func ledgerSum(t *testing.T, sku string) (in, out int64) {
	t.Helper()
	require.NoError(t, testPool.QueryRow(context.Background(), `
		SELECT
			COALESCE(SUM(quantity) FILTER (WHERE status = 'IN'), 0),
			COALESCE(SUM(quantity) FILTER (WHERE status = 'OUT'), 0)
		FROM inventory_movements WHERE sku = $1`, sku).Scan(&in, &out))
	return in, out
}

func TestInventory_ConcurrentDecreasesKeepLedgerConsistent(t *testing.T) {
	cleanupTables(t)
	svc := newInventoryService(nil)
	seedInventory(t, svc, "SKU-RACE", 10)

	var applied, conflicted, rejected atomic.Int64
	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, err := svc.Decrease(context.Background(), "SKU-RACE", 1)
			switch {
			case err == nil:
				applied.Add(1)
			case errors.Is(err, service.ErrVersionConflict):
				conflicted.Add(1)
			case errors.Is(err, service.ErrInsufficientQuantity):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	got, err := svc.GetBySKU(context.Background(), "SKU-RACE")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.Quantity, int64(0))
	assert.Equal(t, 10-applied.Load(), got.Quantity)

	in, out := ledgerSum(t, "SKU-RACE")
	assert.Equal(t, got.Quantity, in-out, "stored quantity must equal the ledger balance")
	assert.Equal(t, applied.Load(), out)
	assert.Equal(t, int64(25), applied.Load()+conflicted.Load()+rejected.Load())
}

// failingMovements fails every append so the surrounding transaction must roll back.
type failingMovements struct {
	*repository.MovementRepository
}

func (failingMovements) Create(ctx context.Context, tx database.TxQuerier, m *model.Movement) error {
	return errors.New("ledger unavailable")
}

func TestInventory_LedgerFailureLeavesQuantityUntouched(t *testing.T) {
	cleanupTables(t)
	seeded := seedInventory(t, newInventoryService(nil), "SKU-ATOMIC", 7)

	svc := newInventoryService(failingMovements{repository.NewMovementRepository(testPool)})
	_, err := svc.Increase(context.Background(), "SKU-ATOMIC", 5)
	require.ErrorIs(t, err, service.ErrTransactionFailed)

	var qty, version int64
	require.NoError(t, testPool.QueryRow(context.Background(),
		"SELECT quantity, version FROM inventories WHERE sku = $1", "SKU-ATOMIC").Scan(&qty, &version))
	assert.Equal(t, int64(7), qty)
	assert.Equal(t, seeded.Version, version)
}

func TestInventory_RemoveThenConcurrentRollbacksRestoreOnce(t *testing.T) {
	cleanupTables(t)
	svc := newInventoryService(nil)
	original := seedInventory(t, svc, "SKU-UNDO", 9)

	_, err := svc.Remove(context.Background(), "SKU-UNDO")
	require.NoError(t, err)
	_, err = svc.GetBySKU(context.Background(), "SKU-UNDO")
	require.ErrorIs(t, err, service.ErrInventoryNotFound)

	var restored, noop atomic.Int64
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			res, err := svc.Rollback(context.Background(), "SKU-UNDO")
			if err != nil {
				return err
			}
			if res.Restored {
				restored.Add(1)
			} else {
				noop.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), restored.Load())
	assert.Equal(t, int64(5), noop.Load())

	got, err := svc.GetBySKU(context.Background(), "SKU-UNDO")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Quantity)
	assert.Equal(t, original.ProductID, got.ProductID)
	assert.NotEqual(t, original.ID, got.ID)

	var removedLeft int64
	require.NoError(t, testPool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM inventory_movements WHERE sku = $1 AND status = 'REMOVED'", "SKU-UNDO").Scan(&removedLeft))
	assert.Zero(t, removedLeft)

	res, err := svc.Rollback(context.Background(), "SKU-UNDO")
	require.NoError(t, err)
	assert.False(t, res.Restored, "a second rollback has nothing to restore")
}
