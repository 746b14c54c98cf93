// Package service runs the order status state machine and the order read paths.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/petmarket/internal/apperr"
	catalog "github.com/fjod/petmarket/internal/catalog/repository"
	"github.com/fjod/petmarket/internal/orders/domain"
	"github.com/fjod/petmarket/internal/orders/repository"
	"github.com/fjod/petmarket/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockReleaser puts reserved units back on the shelf.
type StockReleaser interface {
	Release(ctx context.Context, productID int64, qty int) error
}

// SellerOrder is an order narrowed to one seller's lines.
type SellerOrder struct {
	Order       *domain.Order   `json:"order"`
	SellerTotal decimal.Decimal `json:"sellerTotal"`
}

type OrderService struct {
	repo  repository.OrderRepository
	stock StockReleaser
	now   func() time.Time
}

func NewOrderService(repo repository.OrderRepository, stock StockReleaser) *OrderService {
	return &OrderService{
		repo:  repo,
		stock: stock,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	if customerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	return s.repo.ListOrdersByCustomer(ctx, customerID)
}

func (s *OrderService) ListSellerOrders(ctx context.Context, sellerID string) ([]SellerOrder, error) {
	if sellerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	orders, err := s.repo.ListOrdersBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	result := make([]SellerOrder, 0, len(orders))
	for _, o := range orders {
		items := o.ItemsForSeller(sellerID)
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.LineTotal())
		}
		narrowed := *o
		narrowed.Items = items
		result = append(result, SellerOrder{Order: &narrowed, SellerTotal: total.Round(2)})
	}
	return result, nil
}

// Transition moves the order to status to. trackingNumber is only stored on
// the way to shipped. Cancelling goes through Cancel.
func (s *OrderService) Transition(ctx context.Context, id uuid.UUID, to domain.OrderStatus, trackingNumber string) (*domain.Order, error) {
	if !to.Valid() {
		return nil, &apperr.ValidationError{Fields: []string{"status"}}
	}
	if to == domain.OrderStatusCancelled {
		return s.Cancel(ctx, id)
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(to) {
		return nil, &apperr.TransitionError{From: order.Status.String(), To: to.String()}
	}

	update := repository.StatusUpdate{Status: to, UpdatedAt: s.now()}
	if to == domain.OrderStatusShipped {
		update.TrackingNumber = trackingNumber
	}
	return s.apply(ctx, order, update)
}

// Cancel marks the order cancelled and refunded, then returns every line's
// quantity to stock. A second cancel fails with a TransitionError.
func (s *OrderService) Cancel(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
		return nil, &apperr.TransitionError{From: order.Status.String(), To: domain.OrderStatusCancelled.String()}
	}

	now := s.now()
	updated, err := s.apply(ctx, order, repository.StatusUpdate{
		Status:        domain.OrderStatusCancelled,
		PaymentStatus: domain.PaymentStatusRefunded,
		CancelledAt:   &now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.releaseItems(ctx, updated); err != nil {
		return updated, fmt.Errorf("order %s cancelled but stock release failed: %w", id, err)
	}
	return updated, nil
}

func (s *OrderService) apply(ctx context.Context, order *domain.Order, update repository.StatusUpdate) (*domain.Order, error) {
	updated, err := s.repo.UpdateStatus(ctx, order.ID, order.Status, update)
	if errors.Is(err, repository.ErrStatusConflict) {
		// Someone else moved the order first; report against its current status.
		current, getErr := s.repo.GetOrderByID(ctx, order.ID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &apperr.TransitionError{From: current.Status.String(), To: update.Status.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("update order %s status: %w", order.ID, err)
	}
	return updated, nil
}

func (s *OrderService) releaseItems(ctx context.Context, order *domain.Order) error {
	var errs []error
	for _, item := range order.Items {
		err := s.stock.Release(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, catalog.ErrProductNotFound) {
			logger.Ctx(ctx).Warn().
				Str("order_id", order.ID.String()).
				Int64("product_id", item.ProductID).
				Msg("product deleted, stock not restored")
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
