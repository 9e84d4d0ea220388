package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-stock/internal/redisx"
	"github.com/ariefcatur/go-cart-stock/internal/retry"
)

// mirrorRetry is a single attempt: writers hold the product lock, so a lost
// race on the mirror means someone bypassed the lock.
var mirrorRetry = retry.Options{MaxTries: 1, Interval: 10 * time.Millisecond}

// Count is the Redis mirror of a product's stock.
type Count struct {
	Count int `json:"count"`
}

// Ledger owns the stock mirror keys and the per-product lock keys.
type Ledger struct {
	Redis *redis.Client
	Log   *zap.Logger

	onCheck func(productID string)
}

func NewLedger(rdb *redis.Client, log *zap.Logger) *Ledger {
	return &Ledger{Redis: rdb, Log: log}
}

// AcquireLock never waits: false means somebody else holds the lock.
func (l *Ledger) AcquireLock(ctx context.Context, productID string, ttl time.Duration) (bool, error) {
	ok, err := l.Redis.SetNX(ctx, redisx.LockKey(productID), redisx.LockValue, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", productID, err)
	}
	return ok, nil
}

func (l *Ledger) ReleaseLock(ctx context.Context, productID string) error {
	if err := l.Redis.Del(ctx, redisx.LockKey(productID)).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", productID, err)
	}
	return nil
}

// WithLock runs fn while holding the product lock and releases it on every
// exit path, panics included. locked is false when the lock was busy, in
// which case fn is not called.
func (l *Ledger) WithLock(ctx context.Context, productID string, ttl time.Duration, fn func(ctx context.Context) error) (locked bool, err error) {
	ok, err := l.AcquireLock(ctx, productID, ttl)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		// release even if the request context is already cancelled
		if rerr := l.ReleaseLock(context.WithoutCancel(ctx), productID); rerr != nil {
			l.Log.Warn("lock left to expire", zap.String("product_id", productID), zap.Error(rerr))
		}
	}()
	return true, fn(ctx)
}

// AddCount writes count into the product's mirror, creating it if absent.
func (l *Ledger) AddCount(ctx context.Context, productID string, count int) (Count, error) {
	key := redisx.StockKey(productID)
	task := retry.Task[*Count]{
		Description: fmt.Sprintf("update the stock count for '%s'", key),
		Run: func(ctx context.Context) (bool, *Count, error) {
			c, err := redisx.CheckAndSet(ctx, l.Redis, key, func(cur *Count) *Count {
				if l.onCheck != nil {
					l.onCheck(productID)
				}
				return &Count{Count: count}
			})
			if err != nil {
				return false, nil, err
			}
			return c != nil, c, nil
		},
	}

	c, err := retry.Do(ctx, task, mirrorRetry)
	if err != nil {
		return Count{}, err
	}
	return *c, nil
}

// Mirror reads the mirrored count; found is false when it was never written.
func (l *Ledger) Mirror(ctx context.Context, productID string) (Count, bool, error) {
	var c Count
	found, err := redisx.GetJSON(ctx, l.Redis, redisx.StockKey(productID), &c)
	if err != nil {
		return Count{}, false, fmt.Errorf("get stock mirror %s: %w", productID, err)
	}
	return c, found, nil
}
