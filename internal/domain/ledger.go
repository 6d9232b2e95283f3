/**
 * @description
 * This file defines the core domain models for the ledger-service: the per-member
 * point account, the immutable transaction log entry, and the derived
 * recent-counterparty index. These structs map directly to the `point_accounts`,
 * `point_transactions`, and `recent_counterparties` tables.
 *
 * @notes
 * - Point amounts are stored as `int64`. A transaction's amount is signed:
 *   positive for credits, negative for debits; it is never zero.
 * - `BalanceAfter` is the account balance snapshot taken inside the same
 *   database transaction that created the entry, so history views never need
 *   to replay the log.
 * - The account balance is a cached projection of the sum of the member's
 *   transaction amounts; the log is the system of record.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionSource tags the external feature that triggered a ledger entry.
// The set is open: new callers introduce new tags without ledger changes.
type TransactionSource string

const (
	SourceEventCheckin TransactionSource = "EVENT_CHECKIN"
	SourceDailyPost    TransactionSource = "DAILY_POST"
	SourceAdminCredit  TransactionSource = "ADMIN_CREDIT"
	SourceAdminDebit   TransactionSource = "ADMIN_DEBIT"
	SourceShopPurchase TransactionSource = "SHOP_PURCHASE"
	SourceShopCashback TransactionSource = "SHOP_CASHBACK"
	SourceRefund       TransactionSource = "REFUND"
	SourceTransferIn   TransactionSource = "TRANSFER_IN"
	SourceTransferOut  TransactionSource = "TRANSFER_OUT"
	SourcePDVPurchase  TransactionSource = "PDV_PURCHASE"
	SourcePDVCashback  TransactionSource = "PDV_CASHBACK"
)

// Metadata is an opaque structured payload attached to a transaction by its
// caller. The ledger stores and returns it but never inspects it.
type Metadata map[string]interface{}

// Account is the mutable per-member balance aggregate. Created lazily with all
// counters at zero on first touch; mutated only by the ledger engine.
type Account struct {
	UserID         uuid.UUID `json:"user_id"`
	Balance        int64     `json:"balance"`
	LifetimeEarned int64     `json:"lifetime_earned"`
	LifetimeSpent  int64     `json:"lifetime_spent"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Transaction is one immutable, append-only ledger entry.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	UserID                uuid.UUID         `json:"user_id"`
	Amount                int64             `json:"amount"` // signed; positive = credit
	BalanceAfter          int64             `json:"balance_after"`
	Source                TransactionSource `json:"source"`
	SourceID              *string           `json:"source_id,omitempty"`
	Description           *string           `json:"description,omitempty"`
	Metadata              Metadata          `json:"metadata,omitempty"`
	RelatedUserID         *uuid.UUID        `json:"related_user_id,omitempty"`
	RefundedTransactionID *uuid.UUID        `json:"refunded_transaction_id,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
}

// RecentCounterparty is one derived cache row per (sender, recipient) pair.
// Rebuildable from the log's TRANSFER_OUT entries; never consulted for
// correctness.
type RecentCounterparty struct {
	SenderID       uuid.UUID `json:"sender_id"`
	RecipientID    uuid.UUID `json:"recipient_id"`
	DisplayName    string    `json:"display_name"`
	TransferCount  int64     `json:"transfer_count"`
	LastTransferAt time.Time `json:"last_transfer_at"`
}

// UserDisplay is the slice of the platform's users table the ledger reads for
// recipient resolution and audit responses.
type UserDisplay struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
}

// TransferResult is returned to the sender after a successful transfer.
type TransferResult struct {
	TransactionID      uuid.UUID   `json:"transaction_id"`
	Amount             int64       `json:"amount"`
	Recipient          UserDisplay `json:"recipient"`
	SenderBalanceAfter int64       `json:"sender_balance_after"`
	CreatedAt          time.Time   `json:"created_at"`
}

// RefundResult is returned after a successful admin refund.
type RefundResult struct {
	RefundTransactionID   uuid.UUID `json:"refund_transaction_id"`
	OriginalTransactionID uuid.UUID `json:"original_transaction_id"`
	Amount                int64     `json:"amount"` // signed amount of the reversing entry
	UserID                uuid.UUID `json:"user_id"`
	NewBalance            int64     `json:"new_balance"`
}

// AdminAdjustmentResult is returned by the privileged grant/deduct wrappers so
// the admin console can render an audit line without extra lookups.
type AdminAdjustmentResult struct {
	Transaction *Transaction `json:"transaction"`
	Admin       UserDisplay  `json:"admin"`
	Target      UserDisplay  `json:"target"`
}
