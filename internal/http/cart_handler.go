package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/fjod/petmarket/internal/cart/domain"
	"github.com/fjod/petmarket/internal/cart/service"
	"github.com/fjod/petmarket/internal/identity"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Count(ctx context.Context, owner domain.Owner) (int, error)
	AddItem(ctx context.Context, owner domain.Owner, productID int64, quantity int) (*service.AddItemResult, error)
	UpdateQuantity(ctx context.Context, owner domain.Owner, itemID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, owner domain.Owner, itemID string) (*domain.Cart, error)
	Clear(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	ApplyPromo(ctx context.Context, owner domain.Owner, code string) (*domain.Cart, error)
	RemovePromo(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Merge(ctx context.Context, guest, account domain.Owner) (*domain.Cart, error)
	Validate(ctx context.Context, owner domain.Owner) (*service.ValidateResult, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
}

func NewCartHandler(carts CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type PromoRequestDTO struct {
	PromoCode string `json:"promoCode"`
}

type CountResponseDTO struct {
	Count int `json:"count"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.GetCart(ctx, ownerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// GET /api/v1/cart/count
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.carts.Count(ctx, ownerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, CountResponseDTO{Count: n})
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be positive")
		return
	}

	result, err := h.carts.AddItem(ctx, ownerFromContext(ctx), req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// PUT /api/v1/cart/items/{itemID}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, ownerFromContext(ctx), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// DELETE /api/v1/cart/items/{itemID}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveItem(ctx, ownerFromContext(ctx), chi.URLParam(r, "itemID"))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Clear(ctx, ownerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// POST /api/v1/cart/promo
func (h *CartHandler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PromoRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, err := h.carts.ApplyPromo(ctx, ownerFromContext(ctx), req.PromoCode)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// DELETE /api/v1/cart/promo
func (h *CartHandler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemovePromo(ctx, ownerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// POST /api/v1/cart/validate
func (h *CartHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.carts.Validate(ctx, ownerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// POST /api/v1/cart/merge
// Called once after login with the account token and the old guest session.
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, _ := identity.FromContext(ctx)
	acc, ok := p.(identity.Account)
	if !ok {
		handleServiceError(ctx, w, apperr.ErrUnauthorized)
		return
	}
	session := guestSession(ctx)
	if session == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "no guest session to merge")
		return
	}

	cart, err := h.carts.Merge(ctx, domain.GuestOwner(session), acc.CartOwner())
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	clearSessionCookie(w)
	respondJSON(w, http.StatusOK, cart)
}

func ownerFromContext(ctx context.Context) domain.Owner {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return domain.Owner{}
	}
	return p.CartOwner()
}
