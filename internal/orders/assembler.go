package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-cart-stock/internal/apperr"
	"github.com/ariefcatur/go-cart-stock/internal/cart"
	kafkax "github.com/ariefcatur/go-cart-stock/internal/kafka"
	"github.com/ariefcatur/go-cart-stock/internal/obs"
)

type CartStore interface {
	Get(ctx context.Context, userID string) (cart.Cart, bool, error)
	Delete(ctx context.Context, userID string) error
}

type StockReserver interface {
	CheckAndUpdateStock(ctx context.Context, productID string, qty int) (bool, error)
	AddStock(ctx context.Context, productID string, qty int) (bool, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Assembler turns carts and item lists into orders. Stock for every item is
// reserved first; if any item cannot be reserved the others are put back
// and no order is written.
type Assembler struct {
	Carts   CartStore
	Stock   StockReserver
	Orders  Repository
	Log     *zap.Logger
	Metrics *obs.Metrics
	Service string

	// optional event sinks
	Created            Publisher
	CompensationFailed Publisher

	Now func() time.Time
}

// Checkout places an order for the user's cart and removes the cart once
// the order exists.
func (a *Assembler) Checkout(ctx context.Context, userID string) (Order, error) {
	c, found, err := a.Carts.Get(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	if !found {
		return Order{}, fmt.Errorf("shopping cart not found for user %s: %w", userID, apperr.ErrNotFound)
	}

	o, err := a.CreateOrder(ctx, userID, Order{Products: c.Items})
	if err != nil {
		return Order{}, err
	}

	if err := a.Carts.Delete(ctx, userID); err != nil {
		// the order is durable; a stale cart is the lesser evil
		a.Log.Error("delete cart after checkout",
			zap.String("user_id", userID),
			zap.String("order_id", o.OrderID),
			zap.Error(err),
		)
	}
	return o, nil
}

// CreateOrder reserves stock for every product of draft concurrently and
// persists the order when all reservations succeeded.
func (a *Assembler) CreateOrder(ctx context.Context, userID string, draft Order) (Order, error) {
	if len(draft.Products) == 0 {
		return Order{}, fmt.Errorf("order has no products: %w", apperr.ErrInvalidInput)
	}
	if err := cart.EnsureNoDuplicateProduct(draft.Products); err != nil {
		return Order{}, err
	}

	results := a.reserveAll(ctx, draft.Products)

	var (
		reserved []reservation
		missing  []string
		errs     []error
	)
	for _, r := range results {
		switch {
		case r.Reserved:
			reserved = append(reserved, r)
		case r.Err != nil:
			missing = append(missing, r.ProductID)
			errs = append(errs, fmt.Errorf("reserve %s: %w", r.ProductID, r.Err))
		default:
			missing = append(missing, r.ProductID)
		}
	}

	if len(missing) > 0 {
		ise := &apperr.InsufficientStockError{
			ProductIDs:   missing,
			Compensation: a.compensate(ctx, userID, reserved),
		}
		a.Log.Info("order rejected",
			zap.String("user_id", userID),
			zap.Strings("product_ids", missing),
			zap.Int("rolled_back", len(reserved)),
		)
		if len(errs) > 0 {
			return Order{}, errors.Join(append([]error{ise}, errs...)...)
		}
		return Order{}, ise
	}

	o := draft
	o.OrderID = uuid.NewString()
	o.UserID = userID
	o.Date = a.now()
	o.Total = cart.Total(o.Products)

	created, err := a.Orders.CreateForUser(ctx, userID, o)
	if err != nil {
		// nothing was persisted, so the stock goes back
		cerr := a.compensate(ctx, userID, reserved)
		return Order{}, errors.Join(fmt.Errorf("create order for user %s: %w", userID, err), cerr)
	}

	a.Log.Info("order created",
		zap.String("user_id", userID),
		zap.String("order_id", created.OrderID),
		zap.Int("items", len(created.Products)),
	)
	a.publishCreated(created)
	return created, nil
}

func (a *Assembler) reserveAll(ctx context.Context, items []cart.Item) []reservation {
	results := make([]reservation, len(items))
	var g errgroup.Group
	for i, it := range items {
		g.Go(func() error {
			ok, err := a.Stock.CheckAndUpdateStock(ctx, it.ProductID, it.Quantity)
			results[i] = reservation{ProductID: it.ProductID, Quantity: it.Quantity, Reserved: ok, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// compensate puts back every reservation. It is best effort: failures are
// logged, counted, published for the compensator and returned joined, but
// never retried here.
func (a *Assembler) compensate(ctx context.Context, userID string, reserved []reservation) error {
	if len(reserved) == 0 {
		return nil
	}
	// rollback must outlive a cancelled request
	ctx = context.WithoutCancel(ctx)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, r := range reserved {
		g.Go(func() error {
			ok, err := a.Stock.AddStock(ctx, r.ProductID, r.Quantity)
			if err == nil && ok {
				a.Metrics.Compensations.WithLabelValues("ok").Inc()
				return nil
			}
			if err == nil {
				err = fmt.Errorf("product %s: %w", r.ProductID, apperr.ErrBusy)
			}
			err = fmt.Errorf("put back %d of %s: %w", r.Quantity, r.ProductID, err)

			a.Metrics.Compensations.WithLabelValues("failed").Inc()
			a.Log.Error("compensation failed",
				zap.String("user_id", userID),
				zap.String("product_id", r.ProductID),
				zap.Int("qty", r.Quantity),
				zap.Error(err),
			)
			a.publishCompensationFailed(userID, r, err)

			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (a *Assembler) publishCreated(o Order) {
	if a.Created == nil {
		return
	}
	ev := a.envelope(EventOrderCreated, o.OrderID, OrderCreatedPayload{
		OrderID:  o.OrderID,
		UserID:   o.UserID,
		Items:    o.Products,
		Total:    o.Total,
		PlacedAt: o.Date,
	})
	a.Created.Publish(PartitionKey(o.UserID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (a *Assembler) publishCompensationFailed(userID string, r reservation, cause error) {
	if a.CompensationFailed == nil {
		return
	}
	ev := a.envelope(EventCompensationFailed, r.ProductID, CompensationFailedPayload{
		UserID:    userID,
		ProductID: r.ProductID,
		Qty:       r.Quantity,
		Reason:    cause.Error(),
	})
	a.CompensationFailed.Publish(PartitionKey(r.ProductID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventCompensationFailed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (a *Assembler) envelope(eventType, correlationID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      a.Service,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

func (a *Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}
