/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the ledger-service performs. The interface decouples the engine's
 * business logic from PostgreSQL so the service layer can be unit-tested
 * against stubs.
 *
 * Every mutating method is one atomic unit: the implementation must apply all
 * of its reads-then-writes inside a single database transaction or none of
 * them, and must lock the account rows it mutates so concurrent operations on
 * the same account cannot both read the pre-mutation balance.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For id handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/clubos/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// EntryParams carries the caller-supplied fields of a credit or debit.
// Amount is always positive; the implementation applies the sign.
type EntryParams struct {
	UserID      uuid.UUID
	Amount      int64
	Source      domain.TransactionSource
	Description *string
	Metadata    domain.Metadata
	SourceID    *string
}

// TransferParams carries the fields of a peer-to-peer transfer.
type TransferParams struct {
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Amount     int64
	Message    *string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Platform users table (read-only for the ledger).
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.UserDisplay, error)

	// Account store.
	GetOrCreateAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// Ledger engine atomic units.
	CreditPoints(ctx context.Context, params EntryParams) (*domain.Transaction, error)
	DebitPoints(ctx context.Context, params EntryParams) (*domain.Transaction, error)
	// TransferPoints returns the sender-side transaction; its BalanceAfter is
	// the sender's post-transfer balance and its RelatedUserID the recipient.
	TransferPoints(ctx context.Context, params TransferParams) (*domain.Transaction, error)
	RefundTransaction(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.RefundResult, error)

	// Transaction log reads.
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, query domain.HistoryQuery) ([]domain.Transaction, int64, error)
	SumTransactionsBySource(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.SourceDirectionTotals, error)

	// Association reporting (read-only).
	CountAssociationMembers(ctx context.Context, associationID uuid.UUID) (int, error)
	SumAssociationBySource(ctx context.Context, associationID uuid.UUID, from, to time.Time) ([]domain.SourceDirectionTotals, error)
	AssociationCirculation(ctx context.Context, associationID uuid.UUID) (int64, error)
	AssociationTopEarners(ctx context.Context, associationID uuid.UUID, from, to time.Time, limit int) ([]domain.TopEarner, error)

	// Recent-counterparty index (derived, non-authoritative).
	ListRecentCounterparties(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.RecentCounterparty, error)
}
