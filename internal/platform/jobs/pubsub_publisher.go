package jobs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/orderdesk/api/internal/services"
)

// PubSubEventPublisher fans commerce domain events out to a Pub/Sub topic.
// It satisfies the order, inventory, and customer publisher interfaces so
// a single topic carries the whole event stream.
type PubSubEventPublisher struct {
	topic         *pubsub.Topic
	marshal       func(any) ([]byte, error)
	signingSecret []byte
}

// PublisherOption customises publisher construction.
type PublisherOption func(*PubSubEventPublisher)

// WithSigningSecret attaches an HMAC-SHA256 signature attribute to every
// message so downstream consumers can verify provenance.
func WithSigningSecret(secret string) PublisherOption {
	return func(p *PubSubEventPublisher) {
		if trimmed := strings.TrimSpace(secret); trimmed != "" {
			p.signingSecret = []byte(trimmed)
		}
	}
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic, opts ...PublisherOption) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	p := &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

type eventEnvelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// PublishOrderEvent enqueues an order lifecycle event on the configured topic.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "actorId", event.ActorID)
	return p.publish(ctx, eventEnvelope{Type: event.Type, OccurredAt: event.OccurredAt, Payload: event}, attrs)
}

// PublishInventoryEvent enqueues a stock movement event on the configured topic.
func (p *PubSubEventPublisher) PublishInventoryEvent(ctx context.Context, event services.InventoryStockEvent) error {
	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "productId", event.ProductID)
	setAttr(attrs, "orderRef", event.OrderRef)
	setAttr(attrs, "actorId", event.ActorID)
	return p.publish(ctx, eventEnvelope{Type: event.Type, OccurredAt: event.OccurredAt, Payload: event}, attrs)
}

// PublishCustomerEvent enqueues a customer account event on the configured topic.
func (p *PubSubEventPublisher) PublishCustomerEvent(ctx context.Context, event services.CustomerEvent) error {
	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "customerId", event.CustomerID)
	setAttr(attrs, "actorId", event.ActorID)
	return p.publish(ctx, eventEnvelope{Type: event.Type, OccurredAt: event.OccurredAt, Payload: event}, attrs)
}

func (p *PubSubEventPublisher) publish(ctx context.Context, envelope eventEnvelope, attrs map[string]string) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", envelope.Type, err)
	}

	if len(p.signingSecret) > 0 {
		mac := hmac.New(sha256.New, p.signingSecret)
		mac.Write(data)
		attrs["signature"] = hex.EncodeToString(mac.Sum(nil))
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", envelope.Type, err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
