package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/fjod/petmarket/internal/cart/cache"
	"github.com/fjod/petmarket/internal/cart/domain"
	"github.com/fjod/petmarket/internal/cart/repository"
	catalogdomain "github.com/fjod/petmarket/internal/catalog/domain"
	catalog "github.com/fjod/petmarket/internal/catalog/repository"
	"github.com/fjod/petmarket/internal/pricing"
	"github.com/fjod/petmarket/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const StockAdjustedWarning = "Quantity adjusted to available stock"

const sharedLoadTimeout = 5 * time.Second

// ProductLookup resolves the current state of a product.
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*catalogdomain.Product, error)
}

type AddItemResult struct {
	Cart *domain.Cart `json:"cart"`
	// Adjusted is set when the requested quantity was cut down to the stock on hand.
	Adjusted bool   `json:"adjusted"`
	Warning  string `json:"warning,omitempty"`
}

type ValidateResult struct {
	Cart    *domain.Cart `json:"cart"`
	Removed []string     `json:"removed"`
	Clamped []string     `json:"clamped"`
}

type CartService struct {
	accounts repository.CartRepository
	guests   repository.CartRepository
	cache    cache.CartCache
	products ProductLookup
	calc     pricing.Calculator
	locks    *keyedMutex
	sfg      singleflight.Group
	now      func() time.Time
}

// NewCartService wires the durable account backend and the ephemeral guest
// backend behind one set of operations. cache fronts account carts only and may be nil.
func NewCartService(
	accounts, guests repository.CartRepository,
	cartCache cache.CartCache,
	products ProductLookup,
	calc pricing.Calculator,
) *CartService {
	if cartCache == nil {
		cartCache = cache.Nop{}
	}
	return &CartService{
		accounts: accounts,
		guests:   guests,
		cache:    cartCache,
		products: products,
		calc:     calc,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetCart never fails for a missing cart; it returns an empty one.
func (s *CartService) GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if owner.IsGuest() {
		return s.loadOrNew(ctx, owner)
	}

	// Concurrent readers of one owner share a single cache read and fill. The
	// shared load runs detached from any one caller so a caller that gives up
	// does not fail the others.
	ch := s.sfg.DoChan(owner.Key(), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		cart, err := s.cache.Get(ctx, owner)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Ctx(ctx).Warn().Err(err).Stringer("owner", owner).Msg("cart cache get failed")
		}

		// Holding the owner lock across read and fill keeps a concurrent
		// mutation from being overwritten by the stale cart read here.
		unlock := s.locks.Lock(owner.Key())
		defer unlock()

		cart, err = s.loadOrNew(ctx, owner)
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, cart); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Stringer("owner", owner).Msg("cart cache set failed")
		}
		return cart, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// callers sharing one flight must not share one cart
		return res.Val.(*domain.Cart).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Count is the number of units in the owner's cart, 0 when there is none.
func (s *CartService) Count(ctx context.Context, owner domain.Owner) (int, error) {
	cart, err := s.GetCart(ctx, owner)
	if err != nil {
		return 0, err
	}
	return cart.Count(), nil
}

// AddItem adds quantity units of a product. When the cumulative quantity would
// exceed stock it is clamped and the result carries a warning instead of an error.
// A product with nothing on hand fails with a *apperr.StockError.
func (s *CartService) AddItem(ctx context.Context, owner domain.Owner, productID int64, quantity int) (*AddItemResult, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, fmt.Errorf("add %d units: %w", quantity, apperr.ErrInvalidQuantity)
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart, err := s.loadOrNew(ctx, owner)
	if err != nil {
		return nil, err
	}

	existing := 0
	idx, found := cart.FindProduct(productID)
	if found {
		existing = cart.Items[idx].Quantity
	}
	if product.Stock < 1 {
		return nil, &apperr.StockError{ProductID: productID, Requested: existing + quantity, Available: product.Stock}
	}

	wanted := existing + quantity
	granted := min(wanted, product.Stock)
	now := s.now()

	if found {
		cart.Items[idx].Quantity = granted
		cart.Items[idx].UnitPrice = product.EffectivePrice()
	} else {
		cart.Items = append(cart.Items, domain.LineItem{
			ID:        uuid.NewString(),
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.MainImage,
			SellerID:  product.SellerID,
			UnitPrice: product.EffectivePrice(),
			Quantity:  granted,
			AddedAt:   now,
		})
	}

	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	result := &AddItemResult{Cart: cart}
	if granted < wanted {
		result.Adjusted = true
		result.Warning = StockAdjustedWarning
	}
	return result, nil
}

// UpdateQuantity sets a line item's quantity. Unlike AddItem, asking for more
// than is in stock is an error.
func (s *CartService) UpdateQuantity(ctx context.Context, owner domain.Owner, itemID string, quantity int) (*domain.Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, fmt.Errorf("set quantity %d: %w", quantity, apperr.ErrInvalidQuantity)
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	cart, err := s.load(ctx, owner)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil, repository.ErrItemNotFound
		}
		return nil, err
	}

	idx, ok := cart.FindItem(itemID)
	if !ok {
		return nil, repository.ErrItemNotFound
	}

	product, err := s.products.GetProduct(ctx, cart.Items[idx].ProductID)
	if err != nil {
		return nil, err
	}
	if quantity > product.Stock {
		return nil, &apperr.StockError{ProductID: product.ID, Requested: quantity, Available: product.Stock}
	}

	cart.Items[idx].Quantity = quantity
	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem is a no-op for an unknown line item.
func (s *CartService) RemoveItem(ctx context.Context, owner domain.Owner, itemID string) (*domain.Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	cart, err := s.loadOrNew(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !cart.RemoveItem(itemID) {
		return cart, nil
	}

	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) Clear(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	if err := s.delete(ctx, owner); err != nil {
		return nil, err
	}
	return domain.NewCart(owner, s.now()), nil
}

// ClearIfUnchangedSince removes the cart only when it was last modified at or
// before since. It reports whether a cart was removed.
func (s *CartService) ClearIfUnchangedSince(ctx context.Context, owner domain.Owner, since time.Time) (bool, error) {
	if err := validateOwner(owner); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	cart, err := s.backend(owner).GetCart(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cart.UpdatedAt.After(since) {
		return false, nil
	}
	if err := s.delete(ctx, owner); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyPromo attaches a promotion to a non-empty cart. Only known codes are
// accepted; the discount itself is derived from the cart contents every time
// totals are computed.
func (s *CartService) ApplyPromo(ctx context.Context, owner domain.Owner, code string) (*domain.Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	promo, ok := pricing.LookupPromo(code)
	if !ok {
		return nil, &apperr.ValidationError{Fields: []string{"promoCode"}}
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	cart, err := s.load(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, apperr.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, apperr.ErrEmptyCart
	}

	cart.PromoCode = promo.Code
	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemovePromo detaches any promotion. A missing cart reads as empty.
func (s *CartService) RemovePromo(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	cart, err := s.load(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(owner, s.now()), nil
	}
	if err != nil {
		return nil, err
	}
	if cart.PromoCode == "" {
		return cart, nil
	}

	cart.PromoCode = ""
	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Merge folds a guest cart into an account cart and discards the guest cart.
// Products that no longer exist are dropped; shared products add up, clamped
// to stock. Running it twice for the same login is the caller's problem.
func (s *CartService) Merge(ctx context.Context, guest, account domain.Owner) (*domain.Cart, error) {
	if err := validateOwner(guest); err != nil {
		return nil, err
	}
	if err := validateOwner(account); err != nil {
		return nil, err
	}
	if !guest.IsGuest() || account.IsGuest() {
		return nil, &apperr.ValidationError{Fields: []string{"owner"}}
	}

	// guest before account, always, so two merges cannot deadlock
	unlockGuest := s.locks.Lock(guest.Key())
	defer unlockGuest()
	unlockAccount := s.locks.Lock(account.Key())
	defer unlockAccount()

	guestCart, err := s.load(ctx, guest)
	if errors.Is(err, repository.ErrCartNotFound) {
		return s.loadOrNew(ctx, account)
	}
	if err != nil {
		return nil, err
	}

	accountCart, err := s.loadOrNew(ctx, account)
	if err != nil {
		return nil, err
	}

	for _, item := range guestCart.Items {
		product, err := s.products.GetProduct(ctx, item.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if idx, ok := accountCart.FindProduct(item.ProductID); ok {
			accountCart.Items[idx].Quantity = min(accountCart.Items[idx].Quantity+item.Quantity, product.Stock)
			continue
		}
		item.Quantity = min(item.Quantity, product.Stock)
		accountCart.Items = append(accountCart.Items, item)
	}
	if accountCart.PromoCode == "" {
		accountCart.PromoCode = guestCart.PromoCode
	}

	if err := s.recompute(ctx, accountCart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, accountCart); err != nil {
		return nil, err
	}
	if err := s.delete(ctx, guest); err != nil {
		return nil, err
	}
	return accountCart, nil
}

// Validate drops line items whose product is gone or sold out and trims the
// rest down to what is in stock.
func (s *CartService) Validate(ctx context.Context, owner domain.Owner) (*ValidateResult, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	cart, err := s.loadOrNew(ctx, owner)
	if err != nil {
		return nil, err
	}

	result := &ValidateResult{Cart: cart, Removed: []string{}, Clamped: []string{}}
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		product, err := s.products.GetProduct(ctx, item.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			result.Removed = append(result.Removed, item.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if product.Stock < 1 {
			result.Removed = append(result.Removed, item.ID)
			continue
		}
		if item.Quantity > product.Stock {
			item.Quantity = product.Stock
			result.Clamped = append(result.Clamped, item.ID)
		}
		kept = append(kept, item)
	}
	cart.Items = kept

	if err := s.recompute(ctx, cart); err != nil {
		return nil, err
	}
	if len(result.Removed) > 0 || len(result.Clamped) > 0 {
		if err := s.save(ctx, cart); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Checkout runs fn against the owner's cart while holding the owner's lock.
// The cart is cleared only when fn succeeds; a failed clear is logged, not
// returned, since whatever fn committed cannot be undone here.
func (s *CartService) Checkout(ctx context.Context, owner domain.Owner, fn func(cart *domain.Cart) error) error {
	if err := validateOwner(owner); err != nil {
		return err
	}

	unlock := s.locks.Lock(owner.Key())
	defer unlock()

	cart, err := s.load(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		cart = domain.NewCart(owner, s.now())
	} else if err != nil {
		return err
	}
	cart.Totals = s.totals(cart)

	if err := fn(cart); err != nil {
		return err
	}

	if err := s.delete(ctx, owner); err != nil {
		logger.Ctx(ctx).Error().Err(err).Stringer("owner", owner).Msg("failed to clear cart after checkout")
	}
	return nil
}

// recompute refreshes prices from the catalog, keeps quantities within stock
// and recalculates totals. Lines for deleted products keep their captured price.
func (s *CartService) recompute(ctx context.Context, cart *domain.Cart) error {
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		product, err := s.products.GetProduct(ctx, item.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			kept = append(kept, item)
			continue
		}
		if err != nil {
			return err
		}
		if product.Stock < 1 {
			continue
		}
		item.UnitPrice = product.EffectivePrice()
		item.Quantity = min(item.Quantity, product.Stock)
		kept = append(kept, item)
	}
	cart.Items = kept
	cart.Totals = s.totals(cart)
	cart.UpdatedAt = s.now()
	return nil
}

func (s *CartService) totals(cart *domain.Cart) pricing.Totals {
	return s.calc.ComputeWithPromo(cart.Lines(), cart.PromoCode)
}

func (s *CartService) backend(owner domain.Owner) repository.CartRepository {
	if owner.IsGuest() {
		return s.guests
	}
	return s.accounts
}

func (s *CartService) load(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	cart, err := s.backend(owner).GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}
	cart.Totals = s.totals(cart)
	return cart, nil
}

func (s *CartService) loadOrNew(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	cart, err := s.load(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(owner, s.now()), nil
	}
	return cart, err
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) error {
	if err := s.backend(cart.Owner).SaveCart(ctx, cart); err != nil {
		return err
	}
	s.invalidateCache(ctx, cart.Owner)
	return nil
}

func (s *CartService) delete(ctx context.Context, owner domain.Owner) error {
	err := s.backend(owner).DeleteCart(ctx, owner)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	s.invalidateCache(ctx, owner)
	return nil
}

func (s *CartService) invalidateCache(ctx context.Context, owner domain.Owner) {
	if owner.IsGuest() {
		return
	}
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(cacheCtx, owner); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Stringer("owner", owner).Msg("cart cache invalidate failed")
	}
}

func validateOwner(owner domain.Owner) error {
	if !owner.Valid() {
		return &apperr.ValidationError{Fields: []string{"owner"}}
	}
	return nil
}
