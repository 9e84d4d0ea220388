package validate

import (
	"errors"
	"testing"

	"github.com/ariefcatur/go-cart-stock/internal/apperr"
	"github.com/ariefcatur/go-cart-stock/internal/cart"
)

func TestCheckCart(t *testing.T) {
	neg := -1.0
	ok := 3.0

	tests := []struct {
		name    string
		cart    cart.Cart
		wantErr bool
	}{
		{"valid", cart.Cart{Items: []cart.Item{{ProductID: "p1", Quantity: 1, Price: &ok}}}, false},
		{"empty cart", cart.Cart{}, false},
		{"zero quantity", cart.Cart{Items: []cart.Item{{ProductID: "p1", Quantity: 0}}}, true},
		{"missing product", cart.Cart{Items: []cart.Item{{Quantity: 1}}}, true},
		{"negative price", cart.Cart{Items: []cart.Item{{ProductID: "p1", Quantity: 1, Price: &neg}}}, true},
		{"negative total", cart.Cart{TotalAmount: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.cart)
			if tt.wantErr && !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
