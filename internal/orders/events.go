package orders

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-cart-stock/internal/cart"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventCompensationFailed = "CompensationFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID  string      `json:"order_id"`
	UserID   string      `json:"user_id"`
	Items    []cart.Item `json:"items"`
	Total    float64     `json:"total"`
	PlacedAt time.Time   `json:"placed_at"`
}

// CompensationFailedPayload describes a reservation that could not be put
// back during a rollback and still has to be returned to stock.
type CompensationFailedPayload struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Reason    string `json:"reason"`
}
