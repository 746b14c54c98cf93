package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/petmarket/internal/orders/domain"
	"github.com/google/uuid"
)

// MemoryRepository keeps orders and their outbox in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	orders  map[uuid.UUID]*domain.Order
	outbox  []*OutboxEvent
	nextEvt int64
	// processed holds ids handed back through MarkEventAsProcessed
	processed map[int64]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:    make(map[uuid.UUID]*domain.Order),
		processed: make(map[int64]bool),
		nextEvt:   1,
	}
}

func (m *MemoryRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return ErrDuplicateOrder
	}
	stored := cloneOrder(order)
	if err := m.appendEvent(stored, EventOrderPlaced); err != nil {
		return err
	}
	m.orders[order.ID] = stored
	return nil
}

func (m *MemoryRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (m *MemoryRepository) ListOrdersByCustomer(_ context.Context, customerID string) ([]*domain.Order, error) {
	return m.list(func(o *domain.Order) bool { return o.CustomerID != "" && o.CustomerID == customerID }), nil
}

func (m *MemoryRepository) ListOrdersBySeller(_ context.Context, sellerID string) ([]*domain.Order, error) {
	return m.list(func(o *domain.Order) bool { return o.HasSeller(sellerID) }), nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from domain.OrderStatus, update StatusUpdate) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if current.Status != from {
		return nil, ErrStatusConflict
	}

	next := cloneOrder(current)
	next.Status = update.Status
	if update.PaymentStatus != "" {
		next.PaymentStatus = update.PaymentStatus
	}
	if update.TrackingNumber != "" {
		next.TrackingNumber = update.TrackingNumber
	}
	if update.CancelledAt != nil {
		t := *update.CancelledAt
		next.CancelledAt = &t
	}
	next.UpdatedAt = update.UpdatedAt

	if err := m.appendEvent(next, eventTypeFor(next.Status)); err != nil {
		return nil, err
	}
	m.orders[id] = next
	return cloneOrder(next), nil
}

func (m *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []*OutboxEvent
	for _, e := range m.outbox {
		if m.processed[e.ID] {
			continue
		}
		cp := *e
		events = append(events, &cp)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (m *MemoryRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[id] = true
	return nil
}

// appendEvent must be called with mu held.
func (m *MemoryRepository) appendEvent(order *domain.Order, eventType string) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	m.outbox = append(m.outbox, &OutboxEvent{
		ID:          m.nextEvt,
		AggregateID: order.ID.String(),
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	})
	m.nextEvt++
	return nil
}

func (m *MemoryRepository) list(match func(*domain.Order) bool) []*domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := []*domain.Order{}
	for _, o := range m.orders {
		if match(o) {
			orders = append(orders, cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = make([]domain.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}
