package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/clubos/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// pointsCrediter is the slice of the ledger service the consumer needs.
type pointsCrediter interface {
	CreditPoints(ctx context.Context, userID uuid.UUID, amount int64, source domain.TransactionSource, description *string, metadata domain.Metadata, sourceID *string) (*domain.Transaction, error)
}

// CallerEventConsumer applies asynchronous caller events to the ledger:
// event check-ins credit points tagged with the event id, and cancelled orders
// credit the points back as a REFUND tagged with the order id.
type CallerEventConsumer struct {
	ledger pointsCrediter
}

func NewCallerEventConsumer(ledger pointsCrediter) *CallerEventConsumer {
	return &CallerEventConsumer{ledger: ledger}
}

// HandleCheckinCompleted processes one checkin.completed message. Returns true
// when the message should be acked (including malformed payloads, which a
// redelivery would not fix).
func (c *CallerEventConsumer) HandleCheckinCompleted(body []byte) bool {
	var event domain.CheckinCompletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=ledger_consumer msg=\"malformed checkin payload; dropping\" err=%v", err)
		return true
	}
	if event.UserID == uuid.Nil || event.EventID == "" || event.Points <= 0 {
		log.Printf("level=warn component=ledger_consumer msg=\"invalid checkin event; dropping\" user_id=%s event_id=%q points=%d", event.UserID, event.EventID, event.Points)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	description := "Event check-in"
	_, err := c.ledger.CreditPoints(ctx, event.UserID, event.Points, domain.SourceEventCheckin, &description, nil, &event.EventID)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			return true
		}
		log.Printf("level=error component=ledger_consumer msg=\"checkin credit failed; re-queuing\" user_id=%s event_id=%s err=%v", event.UserID, event.EventID, err)
		return false
	}
	return true
}

// HandleOrderCancelled processes one order.cancelled message by crediting the
// order's points back as a generic refund.
func (c *CallerEventConsumer) HandleOrderCancelled(body []byte) bool {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=ledger_consumer msg=\"malformed order-cancelled payload; dropping\" err=%v", err)
		return true
	}
	if event.UserID == uuid.Nil || event.OrderID == "" || event.Points <= 0 {
		log.Printf("level=warn component=ledger_consumer msg=\"invalid order-cancelled event; dropping\" user_id=%s order_id=%q points=%d", event.UserID, event.OrderID, event.Points)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	description := event.Reason
	if description == "" {
		description = "Order cancelled"
	}
	_, err := c.ledger.CreditPoints(ctx, event.UserID, event.Points, domain.SourceRefund, &description, nil, &event.OrderID)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			return true
		}
		log.Printf("level=error component=ledger_consumer msg=\"order-cancelled credit failed; re-queuing\" user_id=%s order_id=%s err=%v", event.UserID, event.OrderID, err)
		return false
	}
	return true
}
