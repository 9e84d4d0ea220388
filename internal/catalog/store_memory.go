package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ariefcatur/go-cart-stock/internal/apperr"
)

type MemStore struct {
	mu sync.RWMutex
	m  map[string]Product
}

func NewMemStore(products ...Product) *MemStore {
	s := &MemStore{m: map[string]Product{}}
	for _, p := range products {
		s.m[p.ID] = p
	}
	return s
}

func (s *MemStore) FindStockByID(ctx context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[productID]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", productID, apperr.ErrNotFound)
	}
	return p.Stock, nil
}

func (s *MemStore) IncrementStock(ctx context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, apperr.ErrNotFound)
	}
	p.Stock += delta
	s.m[productID] = p
	return nil
}

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
