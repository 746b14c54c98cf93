package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/fjod/petmarket/internal/identity"
	"github.com/fjod/petmarket/internal/orders/domain"
	"github.com/fjod/petmarket/internal/orders/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderService interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error)
	ListSellerOrders(ctx context.Context, sellerID string) ([]service.SellerOrder, error)
	Transition(ctx context.Context, id uuid.UUID, to domain.OrderStatus, trackingNumber string) (*domain.Order, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
}

func NewOrdersHandler(orders OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type UpdateStatusRequestDTO struct {
	Status         domain.OrderStatus `json:"status"`
	TrackingNumber string             `json:"trackingNumber"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	acc, ok := accountFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.ListCustomerOrders(ctx, acc.ID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{orderID}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.loadAuthorized(ctx, w, r, identity.CanAccessOrder)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{orderID}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.loadAuthorized(ctx, w, r, identity.CanAccessOrder)
	if !ok {
		return
	}

	cancelled, err := h.orders.Cancel(ctx, order.ID)
	if err != nil && cancelled == nil {
		handleServiceError(ctx, w, err)
		return
	}
	if err != nil {
		// the status change is committed; only restocking went wrong
		logFailure(ctx, err, "order cancelled with stock release errors")
	}
	respondJSON(w, http.StatusOK, cancelled)
}

// PUT /api/v1/orders/{orderID}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	order, ok := h.loadAuthorized(ctx, w, r, identity.CanUpdateOrderStatus)
	if !ok {
		return
	}

	updated, err := h.orders.Transition(ctx, order.ID, req.Status, req.TrackingNumber)
	if err != nil && updated == nil {
		handleServiceError(ctx, w, err)
		return
	}
	if err != nil {
		logFailure(ctx, err, "order cancelled with stock release errors")
	}
	respondJSON(w, http.StatusOK, updated)
}

// GET /api/v1/seller/orders
// Admins may pass ?sellerId=; ?activeOnly=on hides cancelled orders.
func (h *OrdersHandler) SellerOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	acc, ok := accountFromContext(ctx)
	if !ok || (acc.Role != identity.RoleSeller && !acc.Role.IsAdmin()) {
		handleServiceError(ctx, w, apperr.ErrUnauthorized)
		return
	}
	sellerID := acc.ID
	if acc.Role.IsAdmin() {
		if q := r.URL.Query().Get("sellerId"); q != "" {
			sellerID = q
		}
	}
	activeOnly, err := identity.ParseBool(r.URL.Query().Get("activeOnly"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_flag", "activeOnly must be a boolean")
		return
	}

	orders, err := h.orders.ListSellerOrders(ctx, sellerID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	result := make([]service.SellerOrder, 0, len(orders))
	for _, so := range orders {
		if activeOnly && so.Order.Status == domain.OrderStatusCancelled {
			continue
		}
		result = append(result, so)
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *OrdersHandler) loadAuthorized(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	allowed func(identity.Principal, *domain.Order) bool,
) (*domain.Order, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "orderID must be a UUID")
		return nil, false
	}

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(ctx, w, err)
		return nil, false
	}

	p, _ := identity.FromContext(ctx)
	if p == nil || !allowed(p, order) {
		handleServiceError(ctx, w, apperr.ErrUnauthorized)
		return nil, false
	}
	return order, true
}

func accountFromContext(ctx context.Context) (identity.Account, bool) {
	p, _ := identity.FromContext(ctx)
	acc, ok := p.(identity.Account)
	return acc, ok
}
