// Package events relays order events from the outbox table to Kafka.
package events

import (
	"context"
	"time"

	"github.com/safar/go-grocery-store/internal/config"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const batchSize = 100

type OutboxSource interface {
	Unpublished(ctx context.Context, limit int) ([]*store.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Poller publishes unpublished outbox rows in id order. A row is marked
// published only after Kafka accepts it, so delivery is at least once.
type Poller struct {
	source OutboxSource
	writer MessageWriter
	tick   time.Duration
	log    logrus.FieldLogger
}

func NewPoller(source OutboxSource, writer MessageWriter, tick time.Duration, log logrus.FieldLogger) *Poller {
	return &Poller{source: source, writer: writer, tick: tick, log: log}
}

// NewKafkaWriter returns nil when no brokers are configured.
func NewKafkaWriter(cfg *config.KafkaConfig) *kafka.Writer {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// Run polls until ctx is cancelled, then closes the writer.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.WithError(err).Warn("failed to close kafka writer")
		}
	}()

	for {
		select {
		case <-ticker.C:
			p.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush publishes one batch and returns how many events were marked
// published. It stops at the first publish failure to keep per-order
// ordering intact.
func (p *Poller) Flush(ctx context.Context) int {
	events, err := p.source.Unpublished(ctx, batchSize)
	if err != nil {
		p.log.WithError(err).Warn("failed to fetch outbox events")
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.writer.WriteMessages(ctx, toMessage(event)); err != nil {
			p.log.WithError(err).WithField("event_id", event.ID).Warn("failed to publish event")
			return published
		}

		if err := p.source.MarkPublished(ctx, event.ID); err != nil {
			p.log.WithError(err).WithField("event_id", event.ID).Warn("failed to mark event as published")
			return published
		}
		published++
	}

	if published > 0 {
		p.log.WithField("count", published).Debug("outbox events published")
	}
	return published
}

func toMessage(event *store.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
}
