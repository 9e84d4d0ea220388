package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-stock/internal/obs"
	"github.com/ariefcatur/go-cart-stock/internal/redisx"
	"github.com/ariefcatur/go-cart-stock/internal/retry"
)

// DefaultRetry bounds the optimistic add-item loop to roughly 100ms.
var DefaultRetry = retry.Options{MaxTries: 10, Interval: 10 * time.Millisecond}

// Store keeps one cart per user in Redis. Concurrent writers from several
// devices are serialized with WATCH/MULTI/EXEC; a losing writer retries.
type Store struct {
	Redis   *redis.Client
	Log     *zap.Logger
	Metrics *obs.Metrics
	Retry   retry.Options

	// onCheck runs inside the optimistic transform, between WATCH and EXEC.
	onCheck func(userID string)
}

func NewStore(rdb *redis.Client, log *zap.Logger, m *obs.Metrics) *Store {
	return &Store{Redis: rdb, Log: log, Metrics: m, Retry: DefaultRetry}
}

func (s *Store) Get(ctx context.Context, userID string) (Cart, bool, error) {
	var c Cart
	found, err := redisx.GetJSON(ctx, s.Redis, redisx.CartKey(userID), &c)
	if err != nil {
		return Cart{}, false, fmt.Errorf("get cart %s: %w", userID, err)
	}
	return c, found, nil
}

// Set overwrites the cart unconditionally.
func (s *Store) Set(ctx context.Context, userID string, c Cart) error {
	if err := EnsureNoDuplicateProduct(c.Items); err != nil {
		return err
	}
	c.UserID = userID
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.Redis.Set(ctx, redisx.CartKey(userID), b, 0).Err(); err != nil {
		return fmt.Errorf("set cart %s: %w", userID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.Redis.Del(ctx, redisx.CartKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete cart %s: %w", userID, err)
	}
	return nil
}

// CheckAndSet applies check to the current cart and commits the result only
// if nobody else wrote the cart in between. It returns nil, nil when check
// aborted (returned nil) or the race was lost.
func (s *Store) CheckAndSet(ctx context.Context, userID string, check func(cur *Cart) *Cart) (*Cart, error) {
	c, err := redisx.CheckAndSet(ctx, s.Redis, redisx.CartKey(userID), check)
	if err != nil {
		return nil, fmt.Errorf("check and set cart %s: %w", userID, err)
	}
	return c, nil
}

// AddItem inserts item into the user's cart, replacing an existing entry
// for the same product. A cart is created when the user has none.
func (s *Store) AddItem(ctx context.Context, userID string, item Item) (Cart, error) {
	task := retry.Task[*Cart]{
		Description: fmt.Sprintf("update the shopping cart for '%s'", userID),
		Run: func(ctx context.Context) (bool, *Cart, error) {
			c, err := s.CheckAndSet(ctx, userID, func(cur *Cart) *Cart {
				if s.onCheck != nil {
					s.onCheck(userID)
				}
				next := Cart{UserID: userID}
				if cur != nil {
					next = *cur
				}
				next.Items = merge(next.Items, item)
				return &next
			})
			if err != nil {
				return false, nil, err
			}
			if c == nil {
				s.Metrics.CartRetries.Inc()
				s.Log.Debug("cart commit conflict", zap.String("user_id", userID))
				return false, nil, nil
			}
			return true, c, nil
		},
	}

	c, err := retry.Do(ctx, task, s.Retry)
	if err != nil {
		s.Log.Warn("add cart item failed",
			zap.String("user_id", userID),
			zap.String("product_id", item.ProductID),
			zap.Error(err),
		)
		return Cart{}, err
	}
	return *c, nil
}
