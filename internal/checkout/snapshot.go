package checkout

import (
	"context"
	"fmt"

	cartdomain "github.com/fjod/petmarket/internal/cart/domain"
	"github.com/fjod/petmarket/internal/orders/domain"
	"github.com/fjod/petmarket/pkg/logger"
)

// buildSnapshot copies the cart lines into order items at their cart price.
// Lines whose product no longer exists are dropped.
func (s *CheckoutService) buildSnapshot(ctx context.Context, cart *cartdomain.Cart) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if isProductGone(err) {
			logger.Ctx(ctx).Info().
				Int64("product_id", line.ProductID).
				Stringer("owner", cart.Owner).
				Msg("skipping deleted product at checkout")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get product %d: %w", line.ProductID, err)
		}

		sellerID := product.SellerID
		if sellerID == "" {
			sellerID = line.SellerID
		}
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			SellerID:  sellerID,
		})
	}
	return items, nil
}
