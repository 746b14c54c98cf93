package checkout

import (
	"context"

	"github.com/fjod/petmarket/internal/orders/domain"
	"github.com/fjod/petmarket/pkg/logger"
)

type reservation struct {
	productID int64
	qty       int
}

// reserveInventory reserves items in order and stops at the first failure,
// releasing whatever it already took. A product deleted since the snapshot was
// taken is dropped like any other deleted product; the items actually reserved
// are returned.
func (s *CheckoutService) reserveInventory(ctx context.Context, items []domain.OrderItem) ([]domain.OrderItem, []reservation, error) {
	kept := make([]domain.OrderItem, 0, len(items))
	reserved := make([]reservation, 0, len(items))
	for _, item := range items {
		err := s.stock.Reserve(ctx, item.ProductID, item.Quantity)
		if isProductGone(err) {
			logger.Ctx(ctx).Info().
				Int64("product_id", item.ProductID).
				Msg("skipping product deleted during checkout")
			continue
		}
		if err != nil {
			s.releaseInventory(ctx, reserved)
			return nil, nil, err
		}
		kept = append(kept, item)
		reserved = append(reserved, reservation{productID: item.ProductID, qty: item.Quantity})
	}
	return kept, reserved, nil
}

// releaseInventory must finish even when the request was cancelled.
func (s *CheckoutService) releaseInventory(ctx context.Context, reserved []reservation) {
	if len(reserved) == 0 {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.rollbackTimeout)
	defer cancel()

	for _, r := range reserved {
		if err := s.stock.Release(releaseCtx, r.productID, r.qty); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Int64("product_id", r.productID).
				Int("quantity", r.qty).
				Msg("failed to release reserved stock")
		}
	}
}
