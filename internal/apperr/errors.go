package apperr

import (
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateProduct  = errors.New("duplicate product id")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBusy              = errors.New("multiple requests submitted, try again later")
	ErrInvalidInput      = errors.New("invalid input")
)

// InsufficientStockError names the products that could not be reserved.
// Compensation carries rollback failures that happened on the way out; it
// never replaces the stock error itself.
type InsufficientStockError struct {
	ProductIDs   []string
	Compensation error
}

func (e *InsufficientStockError) Error() string {
	msg := "product not in stock: " + strings.Join(e.ProductIDs, ",")
	if e.Compensation != nil {
		msg += " (compensation: " + e.Compensation.Error() + ")"
	}
	return msg
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

func (e *InsufficientStockError) Unwrap() error { return e.Compensation }

// DuplicateProductError names the first repeated product id.
type DuplicateProductError struct {
	ProductID string
}

func (e *DuplicateProductError) Error() string {
	return "duplicate product id found " + e.ProductID
}

func (e *DuplicateProductError) Is(target error) bool { return target == ErrDuplicateProduct }
