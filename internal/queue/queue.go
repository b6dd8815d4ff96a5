// Package queue publishes triage messages to RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

type publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// RoutingKeys names where each message kind is routed
type RoutingKeys struct {
	Batch        string
	Update       string
	Notification string
}

// Queue implements domain.BatchQueue and domain.Publisher
type Queue struct {
	publisher publisher
	keys      RoutingKeys
}

// New creates a queue over p
func New(p publisher, keys RoutingKeys) *Queue {
	return &Queue{publisher: p, keys: keys}
}

func (q *Queue) SendBatch(ctx context.Context, msg domain.BatchMessage) error {
	return q.send(ctx, q.keys.Batch, msg)
}

func (q *Queue) SendUpdate(ctx context.Context, msg domain.UpdateMessage) error {
	return q.send(ctx, q.keys.Update, msg)
}

func (q *Queue) SendNotification(ctx context.Context, n domain.Notification) error {
	return q.send(ctx, q.keys.Notification, n)
}

func (q *Queue) send(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.publisher.PublishWithRetry(ctx, routingKey, body, "application/json")
}
