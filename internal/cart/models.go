package cart

import "github.com/ariefcatur/go-cart-stock/internal/apperr"

type Item struct {
	ProductID string   `json:"productId" validate:"required"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity" validate:"gt=0"`
	Price     *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
}

type Cart struct {
	UserID      string  `json:"userId"`
	Items       []Item  `json:"items" validate:"dive"`
	TotalAmount float64 `json:"totalAmount" validate:"gte=0"`
}

// EnsureNoDuplicateProduct rejects item lists that name a product twice.
func EnsureNoDuplicateProduct(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ProductID]; dup {
			return &apperr.DuplicateProductError{ProductID: it.ProductID}
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

// Total sums price*quantity over the priced items.
func Total(items []Item) float64 {
	var total float64
	for _, it := range items {
		if it.Price != nil {
			total += *it.Price * float64(it.Quantity)
		}
	}
	return total
}

// merge replaces the entry with the same product id in place, or appends.
func merge(items []Item, item Item) []Item {
	out := make([]Item, len(items), len(items)+1)
	copy(out, items)
	for i := range out {
		if out[i].ProductID == item.ProductID {
			out[i] = item
			return out
		}
	}
	return append(out, item)
}
