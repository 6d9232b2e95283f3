/**
 * @description
 * This file contains the core business logic of the ledger-service. The
 * `Service` struct is the single gate through which every feature of the
 * platform changes a member's point balance: it validates input, delegates the
 * atomic read-modify-write to the repository, publishes ledger events, and
 * opportunistically mirrors the recent-counterparty index into Redis.
 *
 * Key properties:
 * - All four mutating operations (credit, debit, transfer, refund) execute as
 *   one atomic unit inside the repository; on any failure nothing is persisted.
 * - Validation failures surface as sentinel errors the API layer maps to HTTP
 *   statuses; the ledger itself never retries.
 * - Event publishing and the Redis mirror are best-effort: their failure never
 *   fails a committed mutation.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For id handling.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/clubos/ledger-service/internal/domain"
	"github.com/clubos/ledger-service/internal/store"
	"github.com/clubos/ledger-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

var (
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer points to yourself")
	ErrRecipientNotFound      = errors.New("transfer recipient not found")
)

const metadataAdminIDKey = "admin_id"

// Service provides the core business logic for the points ledger.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	recentMirror  RecentCounterpartyMirror
	nowFn         func() time.Time
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
	}
}

// SetRecentCounterpartyMirror attaches the optional Redis hot mirror of the
// recent-counterparty index.
func (s *Service) SetRecentCounterpartyMirror(mirror RecentCounterpartyMirror) {
	s.recentMirror = mirror
}

// GetBalance returns the member's account, creating a zeroed one on first
// touch. It has no failure mode beyond the store itself failing.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return s.repo.GetOrCreateAccount(ctx, userID)
}

// CreditPoints adds points to a member's balance.
func (s *Service) CreditPoints(ctx context.Context, userID uuid.UUID, amount int64, source domain.TransactionSource, description *string, metadata domain.Metadata, sourceID *string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	entry, err := s.repo.CreditPoints(ctx, store.EntryParams{
		UserID:      userID,
		Amount:      amount,
		Source:      source,
		Description: description,
		Metadata:    metadata,
		SourceID:    sourceID,
	})
	if err != nil {
		return nil, err
	}

	s.publishPointsEvent(ctx, "ledger.points.credited", entry)
	return entry, nil
}

// DebitPoints removes points from a member's balance. The member must have an
// account and enough balance to cover the amount.
func (s *Service) DebitPoints(ctx context.Context, userID uuid.UUID, amount int64, source domain.TransactionSource, description *string, metadata domain.Metadata, sourceID *string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	entry, err := s.repo.DebitPoints(ctx, store.EntryParams{
		UserID:      userID,
		Amount:      amount,
		Source:      source,
		Description: description,
		Metadata:    metadata,
		SourceID:    sourceID,
	})
	if err != nil {
		return nil, err
	}

	s.publishPointsEvent(ctx, "ledger.points.debited", entry)
	return entry, nil
}

// TransferPoints moves points from one member to another as a single atomic
// unit: sender debit, recipient credit, both ledger entries, and the
// recent-counterparty upsert commit together or not at all.
func (s *Service) TransferPoints(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, message *string) (*domain.TransferResult, error) {
	if fromUserID == toUserID {
		return nil, ErrSelfTransferNotAllowed
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	recipient, err := s.repo.FindUserByID(ctx, toUserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}

	senderEntry, err := s.repo.TransferPoints(ctx, store.TransferParams{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Amount:     amount,
		Message:    message,
	})
	if err != nil {
		// The recipient row can disappear between resolution and commit.
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}

	s.publishPointsEvent(ctx, "ledger.points.transferred", senderEntry)
	if s.recentMirror != nil {
		if err := s.recentMirror.RecordTransfer(ctx, fromUserID, toUserID, recipient.DisplayName, senderEntry.CreatedAt); err != nil {
			log.Printf("level=warn component=ledger msg=\"recent-counterparty mirror update failed\" sender_id=%s recipient_id=%s err=%v", fromUserID, toUserID, err)
		}
	}

	return &domain.TransferResult{
		TransactionID:      senderEntry.ID,
		Amount:             amount,
		Recipient:          *recipient,
		SenderBalanceAfter: senderEntry.BalanceAfter,
		CreatedAt:          senderEntry.CreatedAt,
	}, nil
}

// AdminRefundTransaction reverses a prior transaction. Retried refunds against
// the same transaction id observe store.ErrAlreadyRefunded.
func (s *Service) AdminRefundTransaction(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.RefundResult, error) {
	result, err := s.repo.RefundTransaction(ctx, transactionID, reason)
	if err != nil {
		return nil, err
	}

	s.publishPointsEvent(ctx, "ledger.points.refunded", &domain.Transaction{
		ID:           result.RefundTransactionID,
		UserID:       result.UserID,
		Amount:       result.Amount,
		BalanceAfter: result.NewBalance,
		Source:       domain.SourceRefund,
		CreatedAt:    time.Now().UTC(),
	})
	return result, nil
}

// AdminGrantPoints is the privileged credit wrapper: it attaches the acting
// admin's id in metadata and returns both display names for the audit log.
func (s *Service) AdminGrantPoints(ctx context.Context, adminID, userID uuid.UUID, amount int64, description *string, sourceID *string) (*domain.AdminAdjustmentResult, error) {
	return s.adminAdjust(ctx, adminID, userID, amount, domain.SourceAdminCredit, description, sourceID, s.CreditPoints)
}

// AdminDeductPoints is the privileged debit wrapper.
func (s *Service) AdminDeductPoints(ctx context.Context, adminID, userID uuid.UUID, amount int64, description *string, sourceID *string) (*domain.AdminAdjustmentResult, error) {
	return s.adminAdjust(ctx, adminID, userID, amount, domain.SourceAdminDebit, description, sourceID, s.DebitPoints)
}

type adjustFunc func(ctx context.Context, userID uuid.UUID, amount int64, source domain.TransactionSource, description *string, metadata domain.Metadata, sourceID *string) (*domain.Transaction, error)

func (s *Service) adminAdjust(ctx context.Context, adminID, userID uuid.UUID, amount int64, source domain.TransactionSource, description *string, sourceID *string, apply adjustFunc) (*domain.AdminAdjustmentResult, error) {
	admin, err := s.repo.FindUserByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("resolve admin: %w", err)
	}
	target, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve target user: %w", err)
	}

	entry, err := apply(ctx, userID, amount, source, description, domain.Metadata{metadataAdminIDKey: adminID.String()}, sourceID)
	if err != nil {
		return nil, err
	}

	return &domain.AdminAdjustmentResult{
		Transaction: entry,
		Admin:       *admin,
		Target:      *target,
	}, nil
}

// GetRecentCounterparties returns who the member last transferred to: the
// Redis mirror when available, the authoritative Postgres index otherwise.
func (s *Service) GetRecentCounterparties(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.RecentCounterparty, error) {
	if s.recentMirror != nil {
		counterparties, err := s.recentMirror.ListRecent(ctx, senderID, limit)
		if err == nil && len(counterparties) > 0 {
			return counterparties, nil
		}
		if err != nil {
			log.Printf("level=warn component=ledger msg=\"recent-counterparty mirror read failed; falling back to store\" sender_id=%s err=%v", senderID, err)
		}
	}
	return s.repo.ListRecentCounterparties(ctx, senderID, limit)
}

func (s *Service) publishPointsEvent(ctx context.Context, routingKey string, entry *domain.Transaction) {
	if s.eventProducer == nil {
		return
	}
	event := domain.PointsEvent{
		TransactionID: entry.ID,
		UserID:        entry.UserID,
		Amount:        entry.Amount,
		BalanceAfter:  entry.BalanceAfter,
		Source:        entry.Source,
		RelatedUserID: entry.RelatedUserID,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.LedgerEventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"event publish failed\" routing_key=%s transaction_id=%s err=%v", routingKey, entry.ID, err)
	}
}
