// Package checkout turns a cart into a placed order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/petmarket/internal/apperr"
	cartdomain "github.com/fjod/petmarket/internal/cart/domain"
	catalogdomain "github.com/fjod/petmarket/internal/catalog/domain"
	"github.com/fjod/petmarket/internal/orders/domain"
	"github.com/fjod/petmarket/internal/pricing"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CartStore hands out the owner's cart under its lock. The cart is cleared
// only when fn returns nil.
type CartStore interface {
	Checkout(ctx context.Context, owner cartdomain.Owner, fn func(cart *cartdomain.Cart) error) error
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*catalogdomain.Product, error)
}

type StockLedger interface {
	Reserve(ctx context.Context, productID int64, qty int) error
	Release(ctx context.Context, productID int64, qty int) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
}

type CheckoutService struct {
	carts    CartStore
	products ProductLookup
	stock    StockLedger
	orders   OrderStore
	calc     pricing.Calculator
	validate *validator.Validate
	now      func() time.Time
	// rollbackTimeout bounds stock release after the request context is gone.
	rollbackTimeout time.Duration
}

func NewCheckoutService(carts CartStore, products ProductLookup, stock StockLedger, orders OrderStore, calc pricing.Calculator) *CheckoutService {
	return &CheckoutService{
		carts:           carts,
		products:        products,
		stock:           stock,
		orders:          orders,
		calc:            calc,
		validate:        newValidator(),
		now:             func() time.Time { return time.Now().UTC() },
		rollbackTimeout: 5 * time.Second,
	}
}

// Checkout reserves stock for every line, stores the order and empties the
// cart. Either all of it happens or stock and cart are left as they were.
func (s *CheckoutService) Checkout(ctx context.Context, req Request) (*domain.Order, error) {
	req.ShippingAddress = req.ShippingAddress.Normalize()

	var placed *domain.Order
	err := s.carts.Checkout(ctx, req.Owner, func(cart *cartdomain.Cart) error {
		if cart.IsEmpty() {
			return apperr.ErrEmptyCart
		}
		if err := s.validateRequest(req); err != nil {
			return err
		}

		snapshot, err := s.buildSnapshot(ctx, cart)
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return apperr.ErrEmptyCart
		}

		snapshot, reserved, err := s.reserveInventory(ctx, snapshot)
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return apperr.ErrEmptyCart
		}

		order := s.newOrder(req, cart, snapshot)
		if err := s.orders.CreateOrder(ctx, order); err != nil {
			s.releaseInventory(ctx, reserved)
			return fmt.Errorf("failed to save order: %w", err)
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (s *CheckoutService) newOrder(req Request, cart *cartdomain.Cart, items []domain.OrderItem) *domain.Order {
	lines := make([]pricing.Line, len(items))
	for i, item := range items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}

	now := s.now()
	order := &domain.Order{
		ID:                uuid.New(),
		Items:             items,
		ShippingAddress:   req.ShippingAddress,
		PaymentMethod:     req.PaymentMethod,
		Status:            domain.OrderStatusPlaced,
		PaymentStatus:     domain.PaymentStatusCompleted,
		Totals:            s.calc.ComputeWithPromo(lines, cart.PromoCode),
		Notes:             req.Notes,
		EstimatedDelivery: now.Add(domain.EstimatedDeliveryWindow),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !req.Owner.IsGuest() {
		order.CustomerID = req.Owner.ID
	}
	return order
}

func isProductGone(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
