package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/fjod/petmarket/internal/orders/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound  = fmt.Errorf("order %w", apperr.ErrNotFound)
	ErrDuplicateOrder = errors.New("order already exists")
	// ErrStatusConflict means the order was no longer in the expected status.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// StatusUpdate describes one transition. Empty PaymentStatus and
// TrackingNumber leave the stored values unchanged.
type StatusUpdate struct {
	Status         domain.OrderStatus
	PaymentStatus  domain.PaymentStatus
	TrackingNumber string
	CancelledAt    *time.Time
	UpdatedAt      time.Time
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OrderRepository interface {
	// CreateOrder stores the order and its order.placed event atomically.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// ListOrdersByCustomer returns newest first.
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error)
	// ListOrdersBySeller returns orders containing at least one of the seller's items, newest first.
	ListOrdersBySeller(ctx context.Context, sellerID string) ([]*domain.Order, error)
	// UpdateStatus applies the update only if the order is still in status from,
	// otherwise it returns ErrStatusConflict. The matching outbox event is written in the same transaction.
	UpdateStatus(ctx context.Context, id uuid.UUID, from domain.OrderStatus, update StatusUpdate) (*domain.Order, error)
}

type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

func eventTypeFor(status domain.OrderStatus) string {
	if status == domain.OrderStatusCancelled {
		return EventOrderCancelled
	}
	return EventOrderStatusChanged
}
