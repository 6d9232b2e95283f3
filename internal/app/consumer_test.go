package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/clubos/ledger-service/internal/domain"
)

type crediterStub struct {
	err error

	called      bool
	userID      uuid.UUID
	amount      int64
	source      domain.TransactionSource
	description *string
	sourceID    *string
}

func (c *crediterStub) CreditPoints(ctx context.Context, userID uuid.UUID, amount int64, source domain.TransactionSource, description *string, metadata domain.Metadata, sourceID *string) (*domain.Transaction, error) {
	c.called = true
	c.userID = userID
	c.amount = amount
	c.source = source
	c.description = description
	c.sourceID = sourceID
	if c.err != nil {
		return nil, c.err
	}
	return &domain.Transaction{ID: uuid.New(), UserID: userID, Amount: amount, BalanceAfter: amount, Source: source}, nil
}

func TestHandleCheckinCompleted_CreditsPoints(t *testing.T) {
	crediter := &crediterStub{}
	consumer := NewCallerEventConsumer(crediter)

	userID := uuid.New()
	body, _ := json.Marshal(domain.CheckinCompletedEvent{UserID: userID, EventID: "evt-123", Points: 25})

	if ack := consumer.HandleCheckinCompleted(body); !ack {
		t.Fatal("expected message to be acked")
	}
	if !crediter.called {
		t.Fatal("expected a credit to be applied")
	}
	if crediter.userID != userID || crediter.amount != 25 {
		t.Fatalf("unexpected credit: user=%s amount=%d", crediter.userID, crediter.amount)
	}
	if crediter.source != domain.SourceEventCheckin {
		t.Fatalf("expected source EVENT_CHECKIN, got %s", crediter.source)
	}
	if crediter.sourceID == nil || *crediter.sourceID != "evt-123" {
		t.Fatalf("expected source id evt-123, got %v", crediter.sourceID)
	}
}

func TestHandleCheckinCompleted_DropsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "malformed json", body: []byte("{not json")},
		{name: "missing user id", body: mustMarshal(t, domain.CheckinCompletedEvent{EventID: "evt-1", Points: 10})},
		{name: "missing event id", body: mustMarshal(t, domain.CheckinCompletedEvent{UserID: uuid.New(), Points: 10})},
		{name: "non-positive points", body: mustMarshal(t, domain.CheckinCompletedEvent{UserID: uuid.New(), EventID: "evt-1", Points: 0})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crediter := &crediterStub{}
			consumer := NewCallerEventConsumer(crediter)

			if ack := consumer.HandleCheckinCompleted(tt.body); !ack {
				t.Fatal("expected bad payloads to be acked, not re-queued")
			}
			if crediter.called {
				t.Fatal("expected no credit for a bad payload")
			}
		})
	}
}

func TestHandleCheckinCompleted_RequeuesOnStoreFailure(t *testing.T) {
	crediter := &crediterStub{err: errors.New("database down")}
	consumer := NewCallerEventConsumer(crediter)

	body, _ := json.Marshal(domain.CheckinCompletedEvent{UserID: uuid.New(), EventID: "evt-1", Points: 10})
	if ack := consumer.HandleCheckinCompleted(body); ack {
		t.Fatal("expected transient failure to nack for redelivery")
	}
}

func TestHandleOrderCancelled_CreditsRefund(t *testing.T) {
	crediter := &crediterStub{}
	consumer := NewCallerEventConsumer(crediter)

	userID := uuid.New()
	body, _ := json.Marshal(domain.OrderCancelledEvent{UserID: userID, OrderID: "ord-9", Points: 120, Reason: "out of stock"})

	if ack := consumer.HandleOrderCancelled(body); !ack {
		t.Fatal("expected message to be acked")
	}
	if crediter.source != domain.SourceRefund {
		t.Fatalf("expected source REFUND, got %s", crediter.source)
	}
	if crediter.description == nil || *crediter.description != "out of stock" {
		t.Fatalf("expected reason carried as description, got %v", crediter.description)
	}
	if crediter.sourceID == nil || *crediter.sourceID != "ord-9" {
		t.Fatalf("expected source id ord-9, got %v", crediter.sourceID)
	}
}

func TestHandleOrderCancelled_DefaultsDescription(t *testing.T) {
	crediter := &crediterStub{}
	consumer := NewCallerEventConsumer(crediter)

	body, _ := json.Marshal(domain.OrderCancelledEvent{UserID: uuid.New(), OrderID: "ord-9", Points: 120})
	if ack := consumer.HandleOrderCancelled(body); !ack {
		t.Fatal("expected message to be acked")
	}
	if crediter.description == nil || *crediter.description != "Order cancelled" {
		t.Fatalf("expected default description, got %v", crediter.description)
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return body
}
