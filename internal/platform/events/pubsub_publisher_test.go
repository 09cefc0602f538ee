package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/services"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubPublisherPublishesOrderTransition(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	err = publisher.PublishOrderTransition(context.Background(), services.OrderStateTransitionEvent{
		ID:         "evt_1",
		OrderID:    "o1",
		OrderCode:  "ORD-1",
		FromState:  domain.OrderStateAddingItems,
		ToState:    domain.OrderStateArrangingPayment,
		ActorID:    "staff",
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("PublishOrderTransition: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload orderTransitionMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != "o1" || payload.ToState != "ArrangingPayment" || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if got := messages[0].Attributes["eventType"]; got != EventTypeOrderTransition {
		t.Fatalf("expected eventType attribute, got %q", got)
	}
	if messages[0].OrderingKey != "o1" {
		t.Fatalf("expected ordering key o1, got %q", messages[0].OrderingKey)
	}
}

func TestPubSubPublisherPublishesPaymentTransition(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	err = publisher.PublishPaymentTransition(context.Background(), services.PaymentStateTransitionEvent{
		ID:        "evt_2",
		PaymentID: "pay_1",
		OrderID:   "o1",
		Method:    "manual",
		Amount:    3000,
		FromState: domain.PaymentStateCreated,
		ToState:   domain.PaymentStateAuthorized,
	})
	if err != nil {
		t.Fatalf("PublishPaymentTransition: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload paymentTransitionMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PaymentID != "pay_1" || payload.Amount != 3000 || payload.ToState != "Authorized" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if _, ok := messages[0].Attributes["actorId"]; ok {
		t.Fatalf("actor attribute should not be present")
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
