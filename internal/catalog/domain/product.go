package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Price       decimal.Decimal     `json:"price"`
	SalePrice   decimal.NullDecimal `json:"salePrice"`
	OnSale      bool                `json:"onSale"`
	Stock       int                 `json:"stock"`
	SellerID    string              `json:"sellerId"`
	MainImage   string              `json:"mainImage"`
}

// EffectivePrice is the sale price while the product is on sale, otherwise the list price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.OnSale && p.SalePrice.Valid {
		return p.SalePrice.Decimal
	}
	return p.Price
}
