package orders

import (
	"time"

	"github.com/ariefcatur/go-cart-stock/internal/cart"
)

type Order struct {
	OrderID  string      `json:"orderId"`
	Date     time.Time   `json:"date"`
	UserID   string      `json:"userId"`
	FullName string      `json:"fullName,omitempty"`
	Total    float64     `json:"total"`
	Products []cart.Item `json:"products" validate:"required,min=1,dive"`
}

// Filter pages through a user's orders, newest first.
type Filter struct {
	Limit  int
	Offset int
}

// Where narrows a bulk delete. Zero fields match everything.
type Where struct {
	OrderID string
	Before  time.Time
}

type reservation struct {
	ProductID string
	Quantity  int
	Reserved  bool
	Err       error
}
