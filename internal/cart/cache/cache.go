package cache

import (
	"context"
	"errors"

	"github.com/fjod/petmarket/internal/cart/domain"
)

// CartCache fronts the durable account cart store.
type CartCache interface {
	Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, owner domain.Owner) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never holds anything.
type Nop struct{}

func (Nop) Get(context.Context, domain.Owner) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (Nop) Set(context.Context, *domain.Cart) error                 { return nil }
func (Nop) Delete(context.Context, domain.Owner) error              { return nil }
