package orders

import (
	"context"
	"sort"
	"sync"
)

type MemRepo struct {
	mu sync.RWMutex
	m  map[string][]Order
}

func NewMemRepo() *MemRepo {
	return &MemRepo{m: map[string][]Order{}}
}

func (r *MemRepo) CreateForUser(ctx context.Context, userID string, o Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.UserID = userID
	r.m[userID] = append(r.m[userID], o)
	return o, nil
}

func (r *MemRepo) ListForUser(ctx context.Context, userID string, f Filter) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]Order(nil), r.m[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Order{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemRepo) DeleteForUser(ctx context.Context, userID string, w Where) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	kept := r.m[userID][:0]
	for _, o := range r.m[userID] {
		match := (w.OrderID == "" || o.OrderID == w.OrderID) &&
			(w.Before.IsZero() || o.Date.Before(w.Before))
		if match {
			n++
			continue
		}
		kept = append(kept, o)
	}
	r.m[userID] = kept
	return n, nil
}
