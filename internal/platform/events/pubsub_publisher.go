// Package events publishes order and payment state transitions to Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/orderengine/internal/services"
)

const (
	EventTypeOrderTransition   = "order.state.transitioned"
	EventTypePaymentTransition = "payment.state.transitioned"
)

// PubSubPublisher publishes transition events on a single topic, ordered per order.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.EventPublisher = (*PubSubPublisher)(nil)

// NewPubSubPublisher constructs a Pub/Sub backed event publisher. Message ordering is enabled on
// topic so events of one order are delivered in the order they were published.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type orderTransitionMessage struct {
	EventID    string    `json:"eventId"`
	OrderID    string    `json:"orderId"`
	OrderCode  string    `json:"orderCode,omitempty"`
	FromState  string    `json:"fromState"`
	ToState    string    `json:"toState"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type paymentTransitionMessage struct {
	EventID    string    `json:"eventId"`
	PaymentID  string    `json:"paymentId"`
	OrderID    string    `json:"orderId"`
	Method     string    `json:"method"`
	Amount     int64     `json:"amount"`
	FromState  string    `json:"fromState"`
	ToState    string    `json:"toState"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PublishOrderTransition publishes an order transition and waits for the server ack.
func (p *PubSubPublisher) PublishOrderTransition(ctx context.Context, event services.OrderStateTransitionEvent) error {
	msg := orderTransitionMessage{
		EventID:    event.ID,
		OrderID:    event.OrderID,
		OrderCode:  event.OrderCode,
		FromState:  string(event.FromState),
		ToState:    string(event.ToState),
		ActorID:    event.ActorID,
		OccurredAt: event.OccurredAt.UTC(),
	}
	attrs := map[string]string{"eventType": EventTypeOrderTransition}
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "toState", string(event.ToState))
	_, err := p.publish(ctx, event.OrderID, msg, attrs)
	return err
}

// PublishPaymentTransition publishes a payment transition keyed by its order.
func (p *PubSubPublisher) PublishPaymentTransition(ctx context.Context, event services.PaymentStateTransitionEvent) error {
	msg := paymentTransitionMessage{
		EventID:    event.ID,
		PaymentID:  event.PaymentID,
		OrderID:    event.OrderID,
		Method:     event.Method,
		Amount:     event.Amount,
		FromState:  string(event.FromState),
		ToState:    string(event.ToState),
		ActorID:    event.ActorID,
		OccurredAt: event.OccurredAt.UTC(),
	}
	attrs := map[string]string{"eventType": EventTypePaymentTransition}
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "paymentId", event.PaymentID)
	setAttr(attrs, "toState", string(event.ToState))
	_, err := p.publish(ctx, event.OrderID, msg, attrs)
	return err
}

func (p *PubSubPublisher) publish(ctx context.Context, orderingKey string, payload any, attrs map[string]string) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", attrs["eventType"], err)
	}

	key := strings.TrimSpace(orderingKey)
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: key,
	})
	id, err := result.Get(ctx)
	if err != nil {
		if key != "" {
			// A failed ordered publish pauses the key until resumed.
			p.topic.ResumePublish(key)
		}
		return "", fmt.Errorf("publish %s: %w", attrs["eventType"], err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
