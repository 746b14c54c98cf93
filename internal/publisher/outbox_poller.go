// Package publisher relays order outbox rows to Kafka.
package publisher

import (
	"context"
	"time"

	"github.com/fjod/petmarket/internal/orders/repository"
	"github.com/fjod/petmarket/pkg/circuitbreaker"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "order-events"

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batchSize int
	repo      repository.OutboxStore
	writer    MessageWriter
	breaker   *circuitbreaker.Breaker[struct{}]
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo repository.OutboxStore, writer MessageWriter) *OutboxPoller {
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		batchSize: 100,
		repo:      repo,
		writer:    writer,
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Settings{
			Name:                "kafka-outbox",
			ConsecutiveFailures: 3,
			OpenTimeout:         15 * time.Second,
		}),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close flushes and closes the Kafka writer.
func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes in outbox order and stops at the first
// failure so a later event for the same order is never sent ahead of an earlier one.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch outbox events")
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			log.Warn().Err(err).
				Int64("event_id", event.ID).
				Str("breaker_state", p.breaker.State()).
				Msg("failed to publish outbox event")
			return published
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			log.Error().Err(err).Int64("event_id", event.ID).Msg("failed to mark outbox event as processed")
			return published
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps per-order ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	_, err := p.breaker.Execute(func() (struct{}, error) {
		writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.writer.WriteMessages(writeCtx, msg)
	})
	return err
}
