package stock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-stock/internal/apperr"
	"github.com/ariefcatur/go-cart-stock/internal/catalog"
	"github.com/ariefcatur/go-cart-stock/internal/obs"
	"github.com/ariefcatur/go-cart-stock/internal/redisx"
	"github.com/ariefcatur/go-cart-stock/internal/retry"
)

type fixture struct {
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	ledger  *Ledger
	catalog *catalog.MemStore
	coord   *Coordinator
}

func newFixture(t *testing.T, products ...catalog.Product) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ledger := NewLedger(rdb, zap.NewNop())
	cat := catalog.NewMemStore(products...)
	return &fixture{
		mr:      mr,
		rdb:     rdb,
		ledger:  ledger,
		catalog: cat,
		coord: &Coordinator{
			Ledger:  ledger,
			Catalog: cat,
			LockTTL: redisx.TTLLock,
			Log:     zap.NewNop(),
			Metrics: obs.NewMetrics(prometheus.NewRegistry()),
		},
	}
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	n, err := f.catalog.FindStockByID(context.Background(), productID)
	if err != nil {
		t.Fatalf("find stock %s: %v", productID, err)
	}
	return n
}

func (f *fixture) mirror(t *testing.T, productID string) int {
	t.Helper()
	c, found, err := f.ledger.Mirror(context.Background(), productID)
	if err != nil || !found {
		t.Fatalf("mirror %s: found=%v err=%v", productID, found, err)
	}
	return c.Count
}

func TestAcquireLockIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.ledger.AcquireLock(ctx, "p1", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = f.ledger.AcquireLock(ctx, "p1", 5*time.Second)
	if err != nil || ok {
		t.Fatalf("second acquire must fail fast: ok=%v err=%v", ok, err)
	}
	if got, _ := f.rdb.Get(ctx, redisx.LockKey("p1")).Result(); got != redisx.LockValue {
		t.Fatalf("lock value = %q", got)
	}

	if err := f.ledger.ReleaseLock(ctx, "p1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = f.ledger.AcquireLock(ctx, "p1", 5*time.Second)
	if !ok {
		t.Fatalf("acquire after release failed")
	}
}

func TestLockExpiresAfterTTL(t *testing.T) {
	f := newFixture(t, catalog.Product{ID: "p1", Stock: 3})
	ctx := context.Background()

	// a crashed holder never releases
	if ok, _ := f.ledger.AcquireLock(ctx, "p1", 5*time.Second); !ok {
		t.Fatalf("acquire failed")
	}
	if ok, _ := f.coord.CheckAndUpdateStock(ctx, "p1", 1); ok {
		t.Fatalf("reservation must fail while the lock is held")
	}

	f.mr.FastForward(6 * time.Second)

	if f.mr.Exists(redisx.LockKey("p1")) {
		t.Fatalf("lock should have expired")
	}
	ok, err := f.coord.CheckAndUpdateStock(ctx, "p1", 1)
	if err != nil || !ok {
		t.Fatalf("reservation after expiry: ok=%v err=%v", ok, err)
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")

	locked, err := f.ledger.WithLock(context.Background(), "p1", time.Second, func(ctx context.Context) error {
		return boom
	})
	if !locked || !errors.Is(err, boom) {
		t.Fatalf("locked=%v err=%v", locked, err)
	}
	if f.mr.Exists(redisx.LockKey("p1")) {
		t.Fatalf("lock not released after error")
	}
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	f := newFixture(t)

	func() {
		defer func() { _ = recover() }()
		_, _ = f.ledger.WithLock(context.Background(), "p1", time.Second, func(ctx context.Context) error {
			panic("boom")
		})
	}()

	if f.mr.Exists(redisx.LockKey("p1")) {
		t.Fatalf("lock not released after panic")
	}
}

func TestAddCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.AddCount(ctx, "p1", 5); err != nil {
		t.Fatalf("add count: %v", err)
	}
	if got := f.mirror(t, "p1"); got != 5 {
		t.Fatalf("mirror = %d, want 5", got)
	}
	if _, err := f.ledger.AddCount(ctx, "p1", 2); err != nil {
		t.Fatalf("add count: %v", err)
	}
	if got := f.mirror(t, "p1"); got != 2 {
		t.Fatalf("mirror = %d, want 2", got)
	}
}

func TestAddCountConflictFailsLoudly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	calls := 0
	f.ledger.onCheck = func(productID string) {
		calls++
		_ = f.rdb.Set(ctx, redisx.StockKey(productID), `{"count":9}`, 0).Err()
	}

	_, err := f.ledger.AddCount(ctx, "p1", 1)
	if !errors.Is(err, retry.ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("mirror write must not be retried, got %d attempts", calls)
	}
}

func TestEnsureInStock(t *testing.T) {
	f := newFixture(t, catalog.Product{ID: "p1", Stock: 3})
	ctx := context.Background()

	if err := f.coord.EnsureInStock(ctx, "p1", 3); err != nil {
		t.Fatalf("expected in stock: %v", err)
	}

	err := f.coord.EnsureInStock(ctx, "p1", 4)
	var ise *apperr.InsufficientStockError
	if !errors.As(err, &ise) || len(ise.ProductIDs) != 1 || ise.ProductIDs[0] != "p1" {
		t.Fatalf("expected insufficient stock for p1, got %v", err)
	}
	if f.stock(t, "p1") != 3 {
		t.Fatalf("advisory check must not change stock")
	}
	if f.mr.Exists(redisx.LockKey("p1")) {
		t.Fatalf("lock not released")
	}
}

func TestEnsureInStockBusy(t *testing.T) {
	f := newFixture(t, catalog.Product{ID: "p1", Stock: 3})
	ctx := context.Background()

	_, _ = f.ledger.AcquireLock(ctx, "p1", 5*time.Second)

	if err := f.coord.EnsureInStock(ctx, "p1", 1); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestEnsureInStockUnknownProduct(t *testing.T) {
	f := newFixture(t)

	if err := f.coord.EnsureInStock(context.Background(), "nope", 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.mr.Exists(redisx.LockKey("nope")) {
		t.Fatalf("lock not released")
	}
}

func TestCheckAndUpdateStock(t *testing.T) {
	f := newFixture(t, catalog.Product{ID: "p1", Stock: 5})
	ctx := context.Background()

	ok, err := f.coord.CheckAndUpdateStock(ctx, "p1", 3)
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	if got := f.stock(t, "p1"); got != 2 {
		t.Fatalf("stock = %d, want 2", got)
	}
	if got := f.mirror(t, "p1"); got != 2 {
		t.Fatalf("mirror = %d, want 2", got)
	}

	ok, err = f.coord.CheckAndUpdateStock(ctx, "p1", 3)
	if err != nil || ok {
		t.Fatalf("over-reserve: ok=%v err=%v", ok, err)
	}
	if got := f.stock(t, "p1"); got != 2 {
		t.Fatalf("stock = %d, want 2", got)
	}
	if f.mr.Exists(redisx.LockKey("p1")) {
		t.Fatalf("lock not released")
	}
}

func TestCheckAndUpdateStockConcurrentExactStock(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, catalog.Product{ID: "p1", Stock: 4})
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := f.coord.CheckAndUpdateStock(ctx, "p1", 4)
				if err != nil {
					t.Errorf("reserve: %v", err)
					return
				}
				if ok {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if winners != 1 {
			t.Fatalf("run %d: %d callers reserved, want exactly 1", i, winners)
		}
		if got := f.stock(t, "p1"); got != 0 {
			t.Fatalf("run %d: stock = %d, want 0", i, got)
		}
	}
}

func TestCheckAndUpdateStockBusy(t *testing.T) {
	f := newFixture(t, catalog.Product{ID: "p1", Stock: 5})
	ctx := context.Background()

	_, _ = f.ledger.AcquireLock(ctx, "p1", 5*time.Second)

	ok, err := f.coord.CheckAndUpdateStock(ctx, "p1", 1)
	if err != nil || ok {
		t.Fatalf("expected not reserved without error: ok=%v err=%v", ok, err)
	}
	if got := f.stock(t, "p1"); got != 5 {
		t.Fatalf("stock = %d, want 5", got)
	}
}

func TestCheckAndUpdateStockMirrorFailureRevertsCatalog(t *testing.T) {
	f := newFixture(t, catalog.Product{ID: "p1", Stock: 5})
	ctx := context.Background()

	f.ledger.onCheck = func(productID string) {
		_ = f.rdb.Set(ctx, redisx.StockKey(productID), `{"count":5}`, 0).Err()
	}

	ok, err := f.coord.CheckAndUpdateStock(ctx, "p1", 2)
	if ok || !errors.Is(err, retry.ErrRetryExhausted) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got := f.stock(t, "p1"); got != 5 {
		t.Fatalf("catalog not reverted: stock = %d, want 5", got)
	}
}

func TestAddStock(t *testing.T) {
	f := newFixture(t, catalog.Product{ID: "p1", Stock: 2})
	ctx := context.Background()

	ok, err := f.coord.AddStock(ctx, "p1", 3)
	if err != nil || !ok {
		t.Fatalf("add stock: ok=%v err=%v", ok, err)
	}
	if got := f.stock(t, "p1"); got != 5 {
		t.Fatalf("stock = %d, want 5", got)
	}
	if got := f.mirror(t, "p1"); got != 5 {
		t.Fatalf("mirror = %d, want 5", got)
	}
}
