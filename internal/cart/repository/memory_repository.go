package repository

import (
	"context"
	"sync"

	"github.com/fjod/petmarket/internal/cart/domain"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*domain.Cart)}
}

func (m *MemoryRepository) GetCart(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, ok := m.carts[owner.Key()]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (m *MemoryRepository) SaveCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.carts[cart.Owner.Key()] = cart.Clone()
	return nil
}

func (m *MemoryRepository) DeleteCart(_ context.Context, owner domain.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.carts[owner.Key()]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, owner.Key())
	return nil
}
