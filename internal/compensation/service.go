// Package compensation re-applies stock releases that failed during an order
// rollback. Events arrive from the order.compensation.failed topic.
package compensation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-cart-stock/internal/kafka"
	"github.com/ariefcatur/go-cart-stock/internal/orders"
	"github.com/ariefcatur/go-cart-stock/internal/redisx"
	"github.com/ariefcatur/go-cart-stock/internal/retry"
)

// DefaultRetry spreads attempts over a few lock TTLs.
var DefaultRetry = retry.Options{MaxTries: 20, Interval: 500 * time.Millisecond}

type StockReleaser interface {
	AddStock(ctx context.Context, productID string, qty int) (bool, error)
}

type Service struct {
	Stock       StockReleaser
	Redis       *redis.Client
	Retry       retry.Options
	Log         *zap.Logger
	ServiceName string
}

// HandleCompensationFailed is installed as the consumer handler. A returned
// error leaves the offset uncommitted so the event is delivered again.
func (s *Service) HandleCompensationFailed(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("drop undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventCompensationFailed {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if done, _ := redisx.Exists(ctx, s.Redis, dkey); done {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.CompensationFailedPayload](env.Payload)
	if err != nil {
		s.Log.Warn("drop event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	task := retry.Task[bool]{
		Description: fmt.Sprintf("put back %d of '%s'", p.Qty, p.ProductID),
		Run: func(ctx context.Context) (bool, bool, error) {
			ok, err := s.Stock.AddStock(ctx, p.ProductID, p.Qty)
			return ok, ok, err
		},
	}
	if _, err := retry.Do(ctx, task, s.Retry); err != nil {
		return fmt.Errorf("compensate %s: %w", p.ProductID, err)
	}

	// mark only after the stock went back, so a failure is redelivered
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	s.Log.Info("compensation applied",
		zap.String("event_id", env.EventID),
		zap.String("user_id", p.UserID),
		zap.String("product_id", p.ProductID),
		zap.Int("qty", p.Qty),
	)
	return nil
}
