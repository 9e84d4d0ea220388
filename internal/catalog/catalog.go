// Package catalog is the authoritative product stock collaborator. The
// stock mirror in Redis follows the values held here.
package catalog

import "context"

type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

type Catalog interface {
	// FindStockByID returns apperr.ErrNotFound for unknown products.
	FindStockByID(ctx context.Context, productID string) (int, error)
	// IncrementStock atomically adds delta (may be negative) to the stock field.
	IncrementStock(ctx context.Context, productID string, delta int) error
}
