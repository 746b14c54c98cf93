package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cartdomain "github.com/fjod/petmarket/internal/cart/domain"
	cartrepo "github.com/fjod/petmarket/internal/cart/repository"
	cartservice "github.com/fjod/petmarket/internal/cart/service"
	catalogdomain "github.com/fjod/petmarket/internal/catalog/domain"
	catalog "github.com/fjod/petmarket/internal/catalog/repository"
	"github.com/fjod/petmarket/internal/checkout"
	"github.com/fjod/petmarket/internal/identity"
	"github.com/fjod/petmarket/internal/inventory"
	"github.com/fjod/petmarket/internal/orders/domain"
	ordersrepo "github.com/fjod/petmarket/internal/orders/repository"
	orderservice "github.com/fjod/petmarket/internal/orders/service"
	"github.com/fjod/petmarket/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	tokens   *identity.Tokens
	products *catalog.MemoryStore
	kibble   int64
	collar   int64
}

func newTestAPI(t *testing.T, rps float64, burst int) *testAPI {
	t.Helper()
	products := catalog.NewMemoryStore()
	kibble := products.SetProduct(catalogdomain.Product{
		Name: "Kibble", Price: decimal.RequireFromString("20.00"), Stock: 10, SellerID: "shop-1",
	})
	collar := products.SetProduct(catalogdomain.Product{
		Name: "Collar", Price: decimal.RequireFromString("15.00"), Stock: 2, SellerID: "shop-2",
		OnSale: true, SalePrice: decimal.NewNullDecimal(decimal.RequireFromString("12.00")),
	})

	calc := pricing.DefaultCalculator()
	ledger := inventory.NewLedger(products)
	carts := cartservice.NewCartService(cartrepo.NewMemoryRepository(), cartrepo.NewMemoryRepository(), nil, products, calc)
	orders := ordersrepo.NewMemoryRepository()
	tokens := identity.NewTokens("test-secret")

	handler := NewRouter(Services{
		Carts:    carts,
		Checkout: checkout.NewCheckoutService(carts, products, ledger, orders, calc),
		Orders:   orderservice.NewOrderService(orders, ledger),
		Products: products,
	}, RouterConfig{
		Tokens:         tokens,
		RequestTimeout: 5 * time.Second,
		SessionTTL:     time.Hour,
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
	})

	return &testAPI{t: t, handler: handler, tokens: tokens, products: products, kibble: kibble, collar: collar}
}

type reqOpt func(*http.Request)

func asAccount(api *testAPI, id string, role identity.Role) reqOpt {
	raw, err := api.tokens.Issue(id, role, time.Hour)
	require.NoError(api.t, err)
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }
}

func fromAddr(addr string) reqOpt {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func withSession(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set(SessionHeader, token) }
}

func (api *testAPI) do(method, path string, body interface{}, opts ...reqOpt) *httptest.ResponseRecorder {
	api.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(api.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func validCheckout() CheckoutRequestDTO {
	return CheckoutRequestDTO{
		ShippingInfo: domain.ShippingAddress{
			Name: "Robin", Phone: "555-0199", Street: "4 Oak Ave", City: "Austin",
			State: "TX", ZipCode: "73301", Country: "US",
		},
		PaymentMethod: domain.PaymentMethodCreditCard,
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	rec := api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGuestSessionIssued(t *testing.T) {
	api := newTestAPI(t, 0, 0)

	rec := api.do(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	session := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, session)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Equal(t, session, cookies[0].Value)

	cart := decode[cartdomain.Cart](t, rec)
	assert.Empty(t, cart.Items)
	assert.Equal(t, cartdomain.GuestOwner(session), cart.Owner)

	// an existing session is kept
	rec = api.do(http.MethodGet, "/api/v1/cart", nil, withSession("known"))
	assert.Equal(t, "known", rec.Header().Get(SessionHeader))
	assert.Empty(t, rec.Result().Cookies())
}

func TestGuestCartFlow(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	guest := withSession("guest-1")

	rec := api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.kibble, Quantity: 3}, guest)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[cartservice.AddItemResult](t, rec)
	assert.False(t, added.Adjusted)
	require.Len(t, added.Cart.Items, 1)
	assert.True(t, decimal.RequireFromString("60").Equal(added.Cart.Totals.Subtotal))

	rec = api.do(http.MethodGet, "/api/v1/cart/count", nil, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[CountResponseDTO](t, rec).Count)

	itemID := added.Cart.Items[0].ID
	rec = api.do(http.MethodPut, "/api/v1/cart/items/"+itemID, UpdateQuantityRequestDTO{Quantity: 1}, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[cartdomain.Cart](t, rec).Items[0].Quantity)

	rec = api.do(http.MethodDelete, "/api/v1/cart/items/"+itemID, nil, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	emptied := decode[cartdomain.Cart](t, rec)
	assert.Empty(t, emptied.Items)
	assert.True(t, emptied.Totals.Total.IsZero())

	// removing again is a no-op
	rec = api.do(http.MethodDelete, "/api/v1/cart/items/"+itemID, nil, guest)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddItem_ClampsToStock(t *testing.T) {
	api := newTestAPI(t, 0, 0)

	rec := api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.collar, Quantity: 5}, withSession("g"))
	require.Equal(t, http.StatusCreated, rec.Code)

	added := decode[cartservice.AddItemResult](t, rec)
	assert.True(t, added.Adjusted)
	assert.Equal(t, cartservice.StockAdjustedWarning, added.Warning)
	assert.Equal(t, 2, added.Cart.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("12").Equal(added.Cart.Items[0].UnitPrice))
}

func TestCartErrors(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	guest := withSession("g")

	rec := api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 999, Quantity: 1}, guest)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)

	rec = api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.kibble, Quantity: 0}, guest)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_quantity", decode[ErrorResponse](t, rec).Code)

	rec = api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.kibble, Quantity: 1}, guest)
	require.Equal(t, http.StatusCreated, rec.Code)
	itemID := decode[cartservice.AddItemResult](t, rec).Cart.Items[0].ID

	rec = api.do(http.MethodPut, "/api/v1/cart/items/"+itemID, UpdateQuantityRequestDTO{Quantity: 11}, guest)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", errResp.Code)
	details, ok := errResp.Details.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 10, details["available"])

	rec = api.do(http.MethodPut, "/api/v1/cart/items/missing", UpdateQuantityRequestDTO{Quantity: 1}, guest)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("{"))
	req.Header.Set(SessionHeader, "g")
	bad := httptest.NewRecorder()
	api.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestPromoCodes(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	guest := withSession("g")

	rec := api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.kibble, Quantity: 1}, guest)
	require.Equal(t, http.StatusCreated, rec.Code)

	// there is no way to name an arbitrary discount
	rec = api.do(http.MethodPut, "/api/v1/cart/discount", map[string]string{"amount": "100"}, guest)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/cart/promo", PromoRequestDTO{PromoCode: "EVERYTHINGFREE"}, guest)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", errResp.Code)

	rec = api.do(http.MethodPost, "/api/v1/cart/promo", PromoRequestDTO{PromoCode: "welcome10"}, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[cartdomain.Cart](t, rec)
	assert.Equal(t, pricing.PromoWelcome10, cart.PromoCode)
	assert.True(t, decimal.RequireFromString("2.00").Equal(cart.Totals.Discount))
	assert.True(t, decimal.RequireFromString("25.69").Equal(cart.Totals.Total))

	rec = api.do(http.MethodPost, "/api/v1/checkout", validCheckout(), guest)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[domain.Order](t, rec)
	assert.True(t, decimal.RequireFromString("25.69").Equal(order.Totals.Total))
}

func TestRemovePromoAndValidate(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	guest := withSession("g")

	rec := api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.kibble, Quantity: 1}, guest)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = api.do(http.MethodPost, "/api/v1/cart/promo", PromoRequestDTO{PromoCode: "FREESHIP"}, guest)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodDelete, "/api/v1/cart/promo", nil, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[cartdomain.Cart](t, rec)
	assert.Empty(t, cart.PromoCode)
	assert.True(t, decimal.RequireFromString("5.99").Equal(cart.Totals.Shipping))

	api.products.DeleteProduct(api.kibble)
	rec = api.do(http.MethodPost, "/api/v1/cart/validate", nil, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[cartservice.ValidateResult](t, rec)
	assert.Len(t, result.Removed, 1)
	assert.Empty(t, result.Cart.Items)
}

func TestCheckoutErrors(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	guest := withSession("g")

	rec := api.do(http.MethodPost, "/api/v1/checkout", validCheckout(), guest)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, rec).Code)

	rec = api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.kibble, Quantity: 1}, guest)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := validCheckout()
	body.ShippingInfo.Phone = ""
	body.PaymentMethod = "cash"
	rec = api.do(http.MethodPost, "/api/v1/checkout", body, guest)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", errResp.Code)
	assert.ElementsMatch(t, []interface{}{"phone", "paymentMethod"}, errResp.Details)
}

func TestAccountOrderLifecycle(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	buyer := asAccount(api, "buyer-1", identity.RoleCustomer)

	rec := api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.kibble, Quantity: 3}, buyer)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/checkout", validCheckout(), buyer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[domain.Order](t, rec)
	assert.Equal(t, "buyer-1", order.CustomerID)
	assert.Equal(t, domain.OrderStatusPlaced, order.Status)
	assert.True(t, decimal.RequireFromString("65.10").Equal(order.Totals.Total))

	p, err := api.products.GetProduct(t.Context(), api.kibble)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)

	rec = api.do(http.MethodGet, "/api/v1/orders", nil, buyer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Order](t, rec), 1)

	orderPath := "/api/v1/orders/" + order.ID.String()
	rec = api.do(http.MethodGet, orderPath, nil, asAccount(api, "someone-else", identity.RoleCustomer))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, orderPath, nil, asAccount(api, "shop-1", identity.RoleSeller))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPut, orderPath+"/status", UpdateStatusRequestDTO{Status: domain.OrderStatusProcessing}, buyer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPut, orderPath+"/status", UpdateStatusRequestDTO{Status: domain.OrderStatusProcessing}, asAccount(api, "shop-1", identity.RoleSeller))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusProcessing, decode[domain.Order](t, rec).Status)

	rec = api.do(http.MethodPost, orderPath+"/cancel", nil, buyer)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[domain.Order](t, rec)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, cancelled.PaymentStatus)

	p, err = api.products.GetProduct(t.Context(), api.kibble)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)

	rec = api.do(http.MethodPost, orderPath+"/cancel", nil, buyer)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Code)
}

func TestOrderRoutes_BadInput(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	buyer := asAccount(api, "buyer-1", identity.RoleCustomer)

	rec := api.do(http.MethodGet, "/api/v1/orders/not-a-uuid", nil, buyer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/orders/00000000-0000-0000-0000-000000000001", nil, buyer)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/orders", nil, withSession("g"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidToken(t *testing.T) {
	api := newTestAPI(t, 0, 0)

	rec := api.do(http.MethodGet, "/api/v1/cart", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer nonsense")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMergeGuestCartOnLogin(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	guest := withSession("guest-9")
	account := asAccount(api, "buyer-9", identity.RoleCustomer)

	rec := api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.collar, Quantity: 2}, guest)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: api.collar, Quantity: 1}, account)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/cart/merge", nil, account, guest)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	merged := decode[cartdomain.Cart](t, rec)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, 2, merged.Items[0].Quantity)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	rec = api.do(http.MethodGet, "/api/v1/cart/count", nil, guest)
	assert.Equal(t, 0, decode[CountResponseDTO](t, rec).Count)

	rec = api.do(http.MethodPost, "/api/v1/cart/merge", nil, guest)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/cart/merge", nil, account)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSellerOrders(t *testing.T) {
	api := newTestAPI(t, 0, 0)
	buyer := asAccount(api, "buyer-1", identity.RoleCustomer)

	for _, id := range []int64{api.kibble, api.collar} {
		rec := api.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: id, Quantity: 1}, buyer)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := api.do(http.MethodPost, "/api/v1/checkout", validCheckout(), buyer)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/seller/orders", nil, asAccount(api, "shop-2", identity.RoleSeller))
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]orderservice.SellerOrder](t, rec)
	require.Len(t, views, 1)
	require.Len(t, views[0].Order.Items, 1)
	assert.Equal(t, api.collar, views[0].Order.Items[0].ProductID)
	assert.True(t, decimal.RequireFromString("12").Equal(views[0].SellerTotal))

	rec = api.do(http.MethodGet, "/api/v1/seller/orders?sellerId=shop-1", nil, asAccount(api, "root", identity.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]orderservice.SellerOrder](t, rec), 1)

	rec = api.do(http.MethodPost, "/api/v1/orders/"+views[0].Order.ID.String()+"/cancel", nil, buyer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/seller/orders?activeOnly=on", nil, asAccount(api, "shop-2", identity.RoleSeller))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]orderservice.SellerOrder](t, rec))

	rec = api.do(http.MethodGet, "/api/v1/seller/orders?activeOnly=perhaps", nil, asAccount(api, "shop-2", identity.RoleSeller))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/seller/orders", nil, buyer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProducts(t *testing.T) {
	api := newTestAPI(t, 0, 0)

	rec := api.do(http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ProductsResponse](t, rec)
	require.Len(t, list.Products, 2)
	collar := list.Products[1]
	assert.True(t, collar.OnSale)
	require.NotNil(t, collar.SalePrice)
	assert.True(t, decimal.RequireFromString("12").Equal(collar.EffectivePrice))

	rec = api.do(http.MethodGet, "/api/v1/products/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitPerOwner(t *testing.T) {
	api := newTestAPI(t, 1, 2)

	for i := 0; i < 2; i++ {
		rec := api.do(http.MethodGet, "/api/v1/cart/count", nil, withSession("busy"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := api.do(http.MethodGet, "/api/v1/cart/count", nil, withSession("busy"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// other owners have their own bucket
	rec = api.do(http.MethodGet, "/api/v1/cart/count", nil, withSession("quiet"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitCookielessGuestsShareTheirAddress(t *testing.T) {
	api := newTestAPI(t, 1, 2)

	// every response mints a new session, but the client never sends it back
	for i := 0; i < 2; i++ {
		rec := api.do(http.MethodGet, "/api/v1/cart/count", nil, fromAddr("203.0.113.7:40001"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(SessionHeader))
	}
	rec := api.do(http.MethodGet, "/api/v1/cart/count", nil, fromAddr("203.0.113.7:40002"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/cart/count", nil, fromAddr("198.51.100.4:40001"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// a client that keeps its session has its own bucket
	rec = api.do(http.MethodGet, "/api/v1/cart/count", nil, fromAddr("203.0.113.7:40003"), withSession("kept"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
