package domain

import (
	"time"

	"github.com/fjod/petmarket/internal/pricing"
	"github.com/shopspring/decimal"
)

type OwnerKind string

const (
	OwnerAccount OwnerKind = "account"
	OwnerGuest   OwnerKind = "guest"
)

// Owner identifies a cart: an account id or an anonymous session token, never both.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func AccountOwner(accountID string) Owner {
	return Owner{Kind: OwnerAccount, ID: accountID}
}

func GuestOwner(sessionToken string) Owner {
	return Owner{Kind: OwnerGuest, ID: sessionToken}
}

// Key is the storage key for the owner, unique across both kinds.
func (o Owner) Key() string {
	return string(o.Kind) + ":" + o.ID
}

func (o Owner) IsGuest() bool {
	return o.Kind == OwnerGuest
}

func (o Owner) Valid() bool {
	return o.ID != "" && (o.Kind == OwnerAccount || o.Kind == OwnerGuest)
}

func (o Owner) String() string {
	return o.Key()
}

type LineItem struct {
	ID        string          `json:"id"`
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	SellerID  string          `json:"sellerId"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

type Cart struct {
	Owner     Owner           `json:"owner"`
	Items     []LineItem      `json:"items"`
	PromoCode string          `json:"promoCode,omitempty"`
	Totals    pricing.Totals  `json:"totals"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func NewCart(owner Owner, now time.Time) *Cart {
	return &Cart{
		Owner:     owner,
		Items:     []LineItem{},
		Totals:    pricing.Zero(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Count is the number of units in the cart.
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) FindItem(itemID string) (int, bool) {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i, true
		}
	}
	return -1, false
}

func (c *Cart) FindProduct(productID int64) (int, bool) {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// RemoveItem drops the line item and reports whether it was present.
func (c *Cart) RemoveItem(itemID string) bool {
	i, ok := c.FindItem(itemID)
	if !ok {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
	}
	return lines
}

// Clone returns a deep copy; stores hand out clones so callers cannot alias stored state.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]LineItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}
