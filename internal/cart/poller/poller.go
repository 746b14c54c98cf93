// Package poller consumes order events and removes carts that were checked out.
package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/petmarket/internal/cart/domain"
	orderdomain "github.com/fjod/petmarket/internal/orders/domain"
	"github.com/fjod/petmarket/internal/orders/repository"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const ConsumerGroup = "cart-cleanup"

// MessageReader is the part of *kafka.Reader the poller uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartClearer removes a cart unless it changed after the given instant.
type CartClearer interface {
	ClearIfUnchangedSince(ctx context.Context, owner domain.Owner, since time.Time) (bool, error)
}

type Poller struct {
	reader  MessageReader
	carts   CartClearer
	backoff time.Duration
}

func NewKafkaReader(topic string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  ConsumerGroup,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPoller(reader MessageReader, carts CartClearer) *Poller {
	return &Poller{reader: reader, carts: carts, backoff: time.Second}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.handleNext(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("failed to read order event")
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Poller) Close() error {
	return p.reader.Close()
}

// handleNext returns an error only when reading from the broker failed.
// Malformed or irrelevant messages are logged and skipped.
func (p *Poller) handleNext(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}
	if eventType(m) != repository.EventOrderPlaced {
		return nil
	}

	var order orderdomain.Order
	if err := json.Unmarshal(m.Value, &order); err != nil {
		log.Error().Err(err).Str("key", string(m.Key)).Msg("failed to parse order event")
		return nil
	}
	// guest carts expire on their own
	if order.IsGuest() {
		return nil
	}

	owner := domain.AccountOwner(order.CustomerID)
	removed, err := p.carts.ClearIfUnchangedSince(ctx, owner, order.CreatedAt)
	if err != nil {
		log.Error().Err(err).
			Str("order_id", order.ID.String()).
			Stringer("owner", owner).
			Msg("failed to clear checked out cart")
		return nil
	}
	if removed {
		log.Info().Str("order_id", order.ID.String()).Stringer("owner", owner).Msg("removed leftover cart")
	}
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
