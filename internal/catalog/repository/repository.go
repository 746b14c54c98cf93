package repository

import (
	"context"
	"fmt"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/fjod/petmarket/internal/catalog/domain"
)

var ErrProductNotFound = fmt.Errorf("product %w", apperr.ErrNotFound)

// ProductRepository is the product store the cart and the stock ledger read from.
type ProductRepository interface {
	// GetProduct returns ErrProductNotFound when the product does not exist.
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	// DecrementStock subtracts qty only if at least qty is on hand.
	// It reports false when the product is missing or short.
	DecrementStock(ctx context.Context, id int64, qty int) (bool, error)
	// IncrementStock adds qty without any upper bound.
	IncrementStock(ctx context.Context, id int64, qty int) error
}
