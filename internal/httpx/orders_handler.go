package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-stock/internal/apperr"
	"github.com/ariefcatur/go-cart-stock/internal/cart"
	"github.com/ariefcatur/go-cart-stock/internal/orders"
	"github.com/ariefcatur/go-cart-stock/internal/validate"
)

type CreateOrderReq struct {
	FullName string      `json:"fullName"`
	Products []cart.Item `json:"products" validate:"required,min=1,dive"`
}

type DeleteOrdersResp struct {
	Count int64 `json:"count"`
}

type OrdersHandler struct {
	Assembler *orders.Assembler
	Orders    orders.Repository
	Log       *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/users/{userId}/orders", h.createOrder)
	r.Get("/users/{userId}/orders", h.listOrders)
	r.Delete("/users/{userId}/orders", h.deleteOrders)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, fmt.Errorf("invalid json: %v: %w", err, apperr.ErrInvalidInput))
		return
	}
	if err := validate.Check(req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	o, err := h.Assembler.CreateOrder(r.Context(), chi.URLParam(r, "userId"), orders.Order{
		FullName: req.FullName,
		Products: req.Products,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	out, err := h.Orders.ListForUser(r.Context(), chi.URLParam(r, "userId"), orders.Filter{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) deleteOrders(w http.ResponseWriter, r *http.Request) {
	where := orders.Where{OrderID: r.URL.Query().Get("orderId")}
	if s := r.URL.Query().Get("before"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, r, h.Log, fmt.Errorf("before must be RFC3339: %w", apperr.ErrInvalidInput))
			return
		}
		where.Before = t
	}

	n, err := h.Orders.DeleteForUser(r.Context(), chi.URLParam(r, "userId"), where)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteOrdersResp{Count: n})
}

func queryInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %w", key, apperr.ErrInvalidInput)
	}
	return n, nil
}
