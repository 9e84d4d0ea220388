package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-stock/internal/apperr"
	"github.com/ariefcatur/go-cart-stock/internal/obs"
	"github.com/ariefcatur/go-cart-stock/internal/redisx"
	"github.com/ariefcatur/go-cart-stock/internal/retry"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, zap.NewNop(), obs.NewMetrics(prometheus.NewRegistry())), rdb
}

func price(v float64) *float64 { return &v }

func TestSetGetDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	want := Cart{
		UserID:      "u1",
		Items:       []Item{{ProductID: "p1", Name: "Keyboard", Quantity: 2, Price: price(49.9)}},
		TotalAmount: 99.8,
	}
	if err := s.Set(ctx, "u1", want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found, err := s.Get(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cart mismatch (-want +got):\n%s", diff)
	}

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, "u1"); found {
		t.Fatalf("expected cart to be gone")
	}
}

func TestSetRejectsDuplicateProduct(t *testing.T) {
	s, rdb := newTestStore(t)
	ctx := context.Background()

	err := s.Set(ctx, "u1", Cart{Items: []Item{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p1", Quantity: 2},
	}})
	if !errors.Is(err, apperr.ErrDuplicateProduct) {
		t.Fatalf("expected ErrDuplicateProduct, got %v", err)
	}
	if ok, _ := redisx.Exists(ctx, rdb, redisx.CartKey("u1")); ok {
		t.Fatalf("duplicate cart must not be persisted")
	}
}

func TestAddItemCreatesCart(t *testing.T) {
	s, _ := newTestStore(t)

	c, err := s.AddItem(context.Background(), "u1", Item{ProductID: "p1", Name: "Mouse", Quantity: 1})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	want := Cart{UserID: "u1", Items: []Item{{ProductID: "p1", Name: "Mouse", Quantity: 1}}}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("cart mismatch (-want +got):\n%s", diff)
	}
}

func TestAddItemReplacesSameProduct(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, it := range []Item{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 4},
		{ProductID: "p1", Quantity: 7},
	} {
		if _, err := s.AddItem(ctx, "u1", it); err != nil {
			t.Fatalf("add item: %v", err)
		}
	}

	got, _, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []Item{{ProductID: "p1", Quantity: 7}, {ProductID: "p2", Quantity: 4}}
	if diff := cmp.Diff(want, got.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestAddItemConcurrentDistinctProducts(t *testing.T) {
	s, _ := newTestStore(t)
	s.Retry = retry.Options{MaxTries: 200, Interval: time.Millisecond}
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddItem(ctx, "u1", Item{ProductID: fmt.Sprintf("p%d", i), Quantity: i + 1})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("add item: %v", err)
		}
	}

	got, _, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ids := make([]string, 0, len(got.Items))
	for _, it := range got.Items {
		ids = append(ids, it.ProductID)
	}
	sort.Strings(ids)
	want := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("product ids mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAndSetLostRace(t *testing.T) {
	s, rdb := newTestStore(t)
	ctx := context.Background()

	got, err := s.CheckAndSet(ctx, "u1", func(cur *Cart) *Cart {
		// another device writes the cart between WATCH and EXEC
		_ = rdb.Set(ctx, redisx.CartKey("u1"), `{"userId":"u1","items":[]}`, 0).Err()
		return &Cart{UserID: "u1", Items: []Item{{ProductID: "p1", Quantity: 1}}}
	})
	if err != nil {
		t.Fatalf("check and set: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil result for lost race, got %+v", got)
	}

	c, _, _ := s.Get(ctx, "u1")
	if len(c.Items) != 0 {
		t.Fatalf("losing write must not be applied: %+v", c)
	}
}

func TestCheckAndSetAbort(t *testing.T) {
	s, rdb := newTestStore(t)
	ctx := context.Background()

	got, err := s.CheckAndSet(ctx, "u1", func(cur *Cart) *Cart { return nil })
	if err != nil || got != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if ok, _ := redisx.Exists(ctx, rdb, redisx.CartKey("u1")); ok {
		t.Fatalf("aborted transform must not write")
	}
}

func TestAddItemRetryExhausted(t *testing.T) {
	s, rdb := newTestStore(t)
	ctx := context.Background()

	calls := 0
	s.onCheck = func(userID string) {
		calls++
		_ = rdb.Set(ctx, redisx.CartKey(userID), fmt.Sprintf(`{"userId":"%s","items":[]}`, userID), 0).Err()
	}

	_, err := s.AddItem(ctx, "u1", Item{ProductID: "p1", Quantity: 1})
	if !errors.Is(err, retry.ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if calls != DefaultRetry.MaxTries {
		t.Fatalf("expected %d attempts, got %d", DefaultRetry.MaxTries, calls)
	}
}

func TestTotal(t *testing.T) {
	items := []Item{
		{ProductID: "p1", Quantity: 2, Price: price(1.5)},
		{ProductID: "p2", Quantity: 3},
		{ProductID: "p3", Quantity: 1, Price: price(4)},
	}
	if got := Total(items); got != 7 {
		t.Fatalf("total = %v, want 7", got)
	}
}
