package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventOrderPlaced           = "order.placed"
	EventOrderStatusUpdated    = "order.status_updated"
	EventOrderPaymentCompleted = "order.payment_completed"
)

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// InsertOutboxEvent stores an event in the caller's transaction so it is
// published only if the surrounding write commits.
func InsertOutboxEvent(ctx context.Context, q Querier, aggregateID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		aggregateID, eventType, data)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

func ListUnpublishedEvents(ctx context.Context, q Querier, limit int) ([]*OutboxEvent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events
		 WHERE published_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

func MarkEventPublished(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = NOW() WHERE id = $1 AND published_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

// Outbox binds the outbox queries to one Querier for the event poller.
type Outbox struct {
	q Querier
}

func NewOutbox(q Querier) *Outbox {
	return &Outbox{q: q}
}

func (o *Outbox) Unpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	return ListUnpublishedEvents(ctx, o.q, limit)
}

func (o *Outbox) MarkPublished(ctx context.Context, id int64) error {
	return MarkEventPublished(ctx, o.q, id)
}
