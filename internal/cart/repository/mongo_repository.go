package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/petmarket/internal/cart/domain"
	"github.com/fjod/petmarket/internal/pricing"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartTTL expires account carts nobody has touched for 90 days.
const cartTTL = 90 * 24 * time.Hour

type cartDocument struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	OwnerKey  string               `bson:"owner_key"`
	OwnerKind string               `bson:"owner_kind"`
	OwnerID   string               `bson:"owner_id"`
	Items     []lineItemDocument   `bson:"items"`
	PromoCode string               `bson:"promo_code,omitempty"`
	CreatedAt time.Time            `bson:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

type lineItemDocument struct {
	ID        string               `bson:"id"`
	ProductID int64                `bson:"product_id"`
	Name      string               `bson:"name"`
	Image     string               `bson:"image"`
	SellerID  string               `bson:"seller_id"`
	UnitPrice primitive.Decimal128 `bson:"unit_price"`
	Quantity  int                  `bson:"quantity"`
	AddedAt   time.Time            `bson:"added_at"`
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"owner_key": owner.Key()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart, err := fromDocument(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return cart, nil
}

func (m *MongoRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}

	doc, err := toDocument(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}

	filter := bson.M{"owner_key": doc.OwnerKey}
	update := bson.M{
		"$set": bson.M{
			"owner_kind": doc.OwnerKind,
			"owner_id":   doc.OwnerID,
			"items":      doc.Items,
			"promo_code": doc.PromoCode,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": doc.CreatedAt},
	}

	_, err = m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, owner domain.Owner) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner_key": owner.Key()})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func toDocument(cart *domain.Cart) (*cartDocument, error) {
	items := make([]lineItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		price, err := toDecimal128(item.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, lineItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			SellerID:  item.SellerID,
			UnitPrice: price,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}

	return &cartDocument{
		OwnerKey:  cart.Owner.Key(),
		OwnerKind: string(cart.Owner.Kind),
		OwnerID:   cart.Owner.ID,
		Items:     items,
		PromoCode: cart.PromoCode,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}, nil
}

func fromDocument(doc *cartDocument) (*domain.Cart, error) {
	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		price, err := fromDecimal128(item.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.LineItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			SellerID:  item.SellerID,
			UnitPrice: price,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}

	return &domain.Cart{
		Owner:     domain.Owner{Kind: domain.OwnerKind(doc.OwnerKind), ID: doc.OwnerID},
		Items:     items,
		PromoCode: doc.PromoCode,
		Totals:    pricing.Zero(),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}
