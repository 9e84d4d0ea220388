package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-stock/internal/apperr"
	"github.com/ariefcatur/go-cart-stock/internal/catalog"
	"github.com/ariefcatur/go-cart-stock/internal/obs"
)

const (
	outcomeReserved     = "reserved"
	outcomeInsufficient = "insufficient"
	outcomeBusy         = "busy"
	outcomeError        = "error"
)

// Coordinator is the only writer of product stock. Every write updates the
// catalog and the Redis mirror while the product lock is held.
type Coordinator struct {
	Ledger  *Ledger
	Catalog catalog.Catalog
	LockTTL time.Duration
	Log     *zap.Logger
	Metrics *obs.Metrics
}

// EnsureInStock is an advisory check; it reserves nothing. A later
// CheckAndUpdateStock may still fail.
func (c *Coordinator) EnsureInStock(ctx context.Context, productID string, qty int) error {
	var stock int
	locked, err := c.Ledger.WithLock(ctx, productID, c.LockTTL, func(ctx context.Context) error {
		s, err := c.Catalog.FindStockByID(ctx, productID)
		stock = s
		return err
	})
	if err != nil {
		return err
	}
	if !locked {
		c.Metrics.LockContention.WithLabelValues("ensure").Inc()
		return fmt.Errorf("product %s: %w", productID, apperr.ErrBusy)
	}
	if stock < qty {
		return &apperr.InsufficientStockError{ProductIDs: []string{productID}}
	}
	return nil
}

// CheckAndUpdateStock reserves qty units. It reports false, nil when the
// lock is busy or the stock is short, so batch callers can treat both the
// same way when deciding to roll back.
func (c *Coordinator) CheckAndUpdateStock(ctx context.Context, productID string, qty int) (bool, error) {
	reserved := false
	locked, err := c.Ledger.WithLock(ctx, productID, c.LockTTL, func(ctx context.Context) error {
		stock, err := c.Catalog.FindStockByID(ctx, productID)
		if err != nil {
			return err
		}
		if stock < qty {
			return nil
		}
		if err := c.apply(ctx, productID, -qty, stock-qty); err != nil {
			return err
		}
		reserved = true
		return nil
	})

	switch {
	case err != nil:
		c.Metrics.Reservations.WithLabelValues(outcomeError).Inc()
		return false, err
	case !locked:
		c.Metrics.LockContention.WithLabelValues("reserve").Inc()
		c.Metrics.Reservations.WithLabelValues(outcomeBusy).Inc()
		c.Log.Debug("product locked", zap.String("product_id", productID))
		return false, nil
	case !reserved:
		c.Metrics.Reservations.WithLabelValues(outcomeInsufficient).Inc()
		return false, nil
	}
	c.Metrics.Reservations.WithLabelValues(outcomeReserved).Inc()
	return true, nil
}

// AddStock puts qty units back. Only used to compensate a reservation.
func (c *Coordinator) AddStock(ctx context.Context, productID string, qty int) (bool, error) {
	locked, err := c.Ledger.WithLock(ctx, productID, c.LockTTL, func(ctx context.Context) error {
		stock, err := c.Catalog.FindStockByID(ctx, productID)
		if err != nil {
			return err
		}
		return c.apply(ctx, productID, qty, stock+qty)
	})
	if err != nil {
		return false, err
	}
	if !locked {
		c.Metrics.LockContention.WithLabelValues("release").Inc()
		return false, nil
	}
	return true, nil
}

// apply must run under the product lock. The catalog is written first; if
// the mirror write fails the catalog change is reverted so both agree again.
func (c *Coordinator) apply(ctx context.Context, productID string, delta, count int) error {
	if err := c.Catalog.IncrementStock(ctx, productID, delta); err != nil {
		return fmt.Errorf("increment stock %s by %d: %w", productID, delta, err)
	}
	if _, err := c.Ledger.AddCount(ctx, productID, count); err != nil {
		if rerr := c.Catalog.IncrementStock(ctx, productID, -delta); rerr != nil {
			c.Log.Error("stock mirror and catalog diverged",
				zap.String("product_id", productID),
				zap.Int("delta", delta),
				zap.Error(rerr),
			)
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}
