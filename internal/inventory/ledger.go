// Package inventory guards product quantity on hand.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/petmarket/internal/apperr"
	catalog "github.com/fjod/petmarket/internal/catalog/repository"
)

type Ledger struct {
	products catalog.ProductRepository
}

func NewLedger(products catalog.ProductRepository) *Ledger {
	return &Ledger{products: products}
}

// Reserve takes qty units of the product off the shelf in a single conditional
// decrement. A shortfall yields a *apperr.StockError.
func (l *Ledger) Reserve(ctx context.Context, productID int64, qty int) error {
	if qty < 1 {
		return fmt.Errorf("reserve %d units: %w", qty, apperr.ErrInvalidQuantity)
	}

	ok, err := l.products.DecrementStock(ctx, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock for product %d: %w", productID, err)
	}
	if ok {
		return nil
	}

	// The decrement matched nothing: find out whether the product is gone or short.
	p, err := l.products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("reserve stock for product %d: %w", productID, err)
	}
	return &apperr.StockError{ProductID: productID, Requested: qty, Available: p.Stock}
}

// Release puts qty units back. Nothing checks qty against what was reserved.
func (l *Ledger) Release(ctx context.Context, productID int64, qty int) error {
	if qty < 1 {
		return fmt.Errorf("release %d units: %w", qty, apperr.ErrInvalidQuantity)
	}
	if err := l.products.IncrementStock(ctx, productID, qty); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("release stock for product %d: %w", productID, err)
	}
	return nil
}
