package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	catalogdomain "github.com/fjod/petmarket/internal/catalog/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (*catalogdomain.Product, error)
	ListProducts(ctx context.Context) ([]*catalogdomain.Product, error)
}

type ProductHandler struct {
	products ProductCatalog
	timeout  time.Duration
}

func NewProductHandler(products ProductCatalog, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		products: products,
		timeout:  timeout,
	}
}

type ProductResponse struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price          decimal.Decimal  `json:"price"`
	SalePrice      *decimal.Decimal `json:"salePrice,omitempty"`
	EffectivePrice decimal.Decimal  `json:"effectivePrice"`
	OnSale         bool             `json:"onSale"`
	Stock          int              `json:"stock"`
	SellerID       string           `json:"sellerId"`
	ImageURL       string           `json:"imageUrl"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.products.ListProducts(ctx)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	products := make([]ProductResponse, len(res))
	for i, p := range res {
		products[i] = toProductResponse(p)
	}

	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}

// GET /api/v1/products/{productID}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productID must be a positive integer")
		return
	}

	p, err := h.products.GetProduct(ctx, id)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(p))
}

func toProductResponse(p *catalogdomain.Product) ProductResponse {
	resp := ProductResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		EffectivePrice: p.EffectivePrice(),
		OnSale:         p.OnSale && p.SalePrice.Valid,
		Stock:          p.Stock,
		SellerID:       p.SellerID,
		ImageURL:       p.MainImage,
	}
	if p.SalePrice.Valid {
		sale := p.SalePrice.Decimal
		resp.SalePrice = &sale
	}
	return resp
}
