package domain

import (
	"strings"
	"time"

	"github.com/fjod/petmarket/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EstimatedDeliveryWindow is added to the order time to promise a delivery date.
const EstimatedDeliveryWindow = 7 * 24 * time.Hour

type ShippingAddress struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"required"`
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Country string `json:"country" validate:"required"`
}

// Normalize trims surrounding whitespace so blank fields count as missing.
func (a ShippingAddress) Normalize() ShippingAddress {
	return ShippingAddress{
		Name:    strings.TrimSpace(a.Name),
		Email:   strings.TrimSpace(a.Email),
		Phone:   strings.TrimSpace(a.Phone),
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		ZipCode: strings.TrimSpace(a.ZipCode),
		Country: strings.TrimSpace(a.Country),
	}
}

// OrderItem is a copy of a cart line taken at checkout. SellerID is copied so
// revenue can be attributed after the product changes or disappears.
type OrderItem struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	SellerID  string          `json:"sellerId"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                uuid.UUID       `json:"id"`
	CustomerID        string          `json:"customerId,omitempty"`
	Items             []OrderItem     `json:"items"`
	ShippingAddress   ShippingAddress `json:"shippingAddress"`
	PaymentMethod     PaymentMethod   `json:"paymentMethod"`
	Status            OrderStatus     `json:"status"`
	PaymentStatus     PaymentStatus   `json:"paymentStatus"`
	Totals            pricing.Totals  `json:"totals"`
	TrackingNumber    string          `json:"trackingNumber,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	EstimatedDelivery time.Time       `json:"estimatedDelivery"`
	CancelledAt       *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsGuest reports whether the order was placed without an account.
func (o *Order) IsGuest() bool {
	return o.CustomerID == ""
}

func (o *Order) SellerIDs() []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, item := range o.Items {
		if item.SellerID == "" || seen[item.SellerID] {
			continue
		}
		seen[item.SellerID] = true
		ids = append(ids, item.SellerID)
	}
	return ids
}

func (o *Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

func (o *Order) ItemsForSeller(sellerID string) []OrderItem {
	var items []OrderItem
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			items = append(items, item)
		}
	}
	return items
}
