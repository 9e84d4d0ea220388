package httpx

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-cart-stock/internal/apperr"
	"github.com/ariefcatur/go-cart-stock/internal/cart"
	"github.com/ariefcatur/go-cart-stock/internal/orders"
	"github.com/ariefcatur/go-cart-stock/internal/validate"
)

type StockChecker interface {
	EnsureInStock(ctx context.Context, productID string, qty int) error
}

type CartsHandler struct {
	Carts     *cart.Store
	Stock     StockChecker
	Assembler *orders.Assembler
	Log       *zap.Logger
}

func (h *CartsHandler) Register(r chi.Router) {
	r.Post("/carts/{userId}", h.setCart)
	r.Put("/carts/{userId}", h.setCart)
	r.Get("/carts/{userId}", h.getCart)
	r.Delete("/carts/{userId}", h.deleteCart)
	r.Post("/carts/{userId}/items", h.addItem)
	r.Put("/carts/{userId}/checkout", h.checkout)
}

func (h *CartsHandler) setCart(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var c cart.Cart
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, h.Log, fmt.Errorf("invalid json: %v: %w", err, apperr.ErrInvalidInput))
		return
	}
	if err := validate.Check(c); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if err := cart.EnsureNoDuplicateProduct(c.Items); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	for _, it := range c.Items {
		g.Go(func() error { return h.Stock.EnsureInStock(ctx, it.ProductID, it.Quantity) })
	}
	if err := g.Wait(); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	if err := h.Carts.Set(r.Context(), userID, c); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartsHandler) getCart(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	c, found, err := h.Carts.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !found {
		writeError(w, r, h.Log, fmt.Errorf("shopping cart not found for user %s: %w", userID, apperr.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartsHandler) deleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Delete(r.Context(), chi.URLParam(r, "userId")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartsHandler) addItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var it cart.Item
	if err := decodeJSON(w, r, &it); err != nil {
		writeError(w, r, h.Log, fmt.Errorf("invalid json: %v: %w", err, apperr.ErrInvalidInput))
		return
	}
	if err := validate.Check(it); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if err := h.Stock.EnsureInStock(r.Context(), it.ProductID, it.Quantity); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	c, err := h.Carts.AddItem(r.Context(), userID, it)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	o, err := h.Assembler.Checkout(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
