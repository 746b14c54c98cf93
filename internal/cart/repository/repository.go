package repository

import (
	"context"
	"fmt"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/fjod/petmarket/internal/cart/domain"
)

var (
	ErrCartNotFound = fmt.Errorf("cart %w", apperr.ErrNotFound)
	ErrItemNotFound = fmt.Errorf("cart item %w", apperr.ErrNotFound)
)

// CartRepository stores whole carts keyed by owner. The account backend is
// durable, the guest backend expires with the session.
type CartRepository interface {
	// GetCart returns ErrCartNotFound when the owner has no cart.
	GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	// SaveCart creates or replaces the owner's cart.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	// DeleteCart returns ErrCartNotFound when there was nothing to delete.
	DeleteCart(ctx context.Context, owner domain.Owner) error
}
