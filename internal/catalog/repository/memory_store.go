package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/fjod/petmarket/internal/catalog/domain"
)

// MemoryStore implements ProductRepository with in-memory storage
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]*domain.Product
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]*domain.Product),
		nextID:   1,
	}
}

// SetProduct adds or replaces a product. A zero ID is assigned the next free one.
func (s *MemoryStore) SetProduct(p domain.Product) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = s.nextID
	}
	if p.ID >= s.nextID {
		s.nextID = p.ID + 1
	}
	s.products[p.ID] = &p
	return p.ID
}

// DeleteProduct removes the product; carts and orders keep their copies.
func (s *MemoryStore) DeleteProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Product, 0, len(s.products))
	for _, p := range s.products {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) DecrementStock(_ context.Context, id int64, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (s *MemoryStore) IncrementStock(_ context.Context, id int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Stock += qty
	return nil
}
