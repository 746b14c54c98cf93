// Package http exposes the cart, checkout and order operations as a JSON API.
package http

import (
	"net/http"
	"time"

	"github.com/fjod/petmarket/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Services struct {
	Carts    CartService
	Checkout CheckoutService
	Orders   OrderService
	Products ProductCatalog
}

type RouterConfig struct {
	Tokens         *identity.Tokens
	RequestTimeout time.Duration
	SessionTTL     time.Duration
	// RateLimitRPS of zero disables the per-owner limiter.
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler(svc.Carts, cfg.RequestTimeout)
	checkoutHandler := NewCheckoutHandler(svc.Checkout, cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(svc.Orders, cfg.RequestTimeout)
	productHandler := NewProductHandler(svc.Products, cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware(cfg.Tokens, cfg.SessionTTL))
		if cfg.RateLimitRPS > 0 {
			r.Use(NewOwnerRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
		}

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/{productID}", productHandler.Get)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Get("/count", cartHandler.Count)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{itemID}", cartHandler.UpdateQuantity)
			r.Delete("/items/{itemID}", cartHandler.RemoveItem)
			r.Post("/merge", cartHandler.Merge)
			r.Post("/validate", cartHandler.Validate)
			r.Post("/promo", cartHandler.ApplyPromo)
			r.Delete("/promo", cartHandler.RemovePromo)
		})

		r.Post("/checkout", checkoutHandler.Checkout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{orderID}", ordersHandler.GetOrder)
			r.Post("/{orderID}/cancel", ordersHandler.CancelOrder)
			r.Put("/{orderID}/status", ordersHandler.UpdateStatus)
		})

		r.Get("/seller/orders", ordersHandler.SellerOrders)
	})

	return otelhttp.NewHandler(r, "checkout-api")
}
