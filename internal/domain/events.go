/**
 * @description
 * Message payloads the ledger exchanges with the rest of the platform over
 * RabbitMQ: outbound ledger events consumed by the notification features, and
 * inbound caller events (event check-ins, order cancellations) that credit
 * points asynchronously.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PointsEvent is published after every successful ledger mutation.
type PointsEvent struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	UserID        uuid.UUID         `json:"user_id"`
	Amount        int64             `json:"amount"`
	BalanceAfter  int64             `json:"balance_after"`
	Source        TransactionSource `json:"source"`
	RelatedUserID *uuid.UUID        `json:"related_user_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// CheckinCompletedEvent is consumed from the events feature when a member
// checks in; the ledger credits the configured number of points tagged with
// the event id.
type CheckinCompletedEvent struct {
	UserID  uuid.UUID `json:"user_id"`
	EventID string    `json:"event_id"`
	Points  int64     `json:"points"`
}

// OrderCancelledEvent is consumed from the store feature when a paid order is
// cancelled; the ledger credits the points back as a generic REFUND tagged
// with the order id.
type OrderCancelledEvent struct {
	UserID  uuid.UUID `json:"user_id"`
	OrderID string    `json:"order_id"`
	Points  int64     `json:"points"`
	Reason  string    `json:"reason"`
}
