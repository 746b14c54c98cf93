package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/petmarket/internal/checkout"
	"github.com/fjod/petmarket/internal/orders/domain"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(svc CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: svc,
		timeout:  timeout,
	}
}

type CheckoutRequestDTO struct {
	ShippingInfo  domain.ShippingAddress `json:"shippingInfo"`
	PaymentMethod domain.PaymentMethod   `json:"paymentMethod"`
	Notes         string                 `json:"notes"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.checkout.Checkout(ctx, checkout.Request{
		Owner:           ownerFromContext(ctx),
		ShippingAddress: req.ShippingInfo,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}
