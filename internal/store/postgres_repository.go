/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains every SQL statement the ledger-service issues against
 * the `point_accounts`, `point_transactions`, and `recent_counterparties`
 * tables, plus the read-only lookups into the platform-owned `users` and
 * `association_members` tables.
 *
 * Each mutating method runs inside one pgx transaction and locks the affected
 * account rows with `SELECT ... FOR UPDATE` before reading the balance, so two
 * concurrent operations on the same account serialize instead of both reading
 * the pre-mutation balance. Transfers lock both accounts in lexicographic
 * user-id order to avoid deadlock between opposite-direction transfers.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clubos/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
)

const transactionColumns = `id, user_id, amount, balance_after, source, source_id, description, metadata, related_user_id, refunded_transaction_id, created_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID retrieves the display slice of a platform user.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.UserDisplay, error) {
	var user domain.UserDisplay
	query := `SELECT id, COALESCE(display_name, '') FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.DisplayName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetOrCreateAccount returns the member's account, creating a zeroed row on
// first touch. The insert and read need no explicit lock: ON CONFLICT DO
// NOTHING makes concurrent first touches converge on one row.
func (r *PostgresRepository) GetOrCreateAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	insert := `INSERT INTO point_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, insert, userID); err != nil {
		return nil, err
	}

	var account domain.Account
	query := `SELECT user_id, balance, lifetime_earned, lifetime_spent, created_at, updated_at FROM point_accounts WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&account.UserID,
		&account.Balance,
		&account.LifetimeEarned,
		&account.LifetimeSpent,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreditPoints applies a positive ledger entry as one atomic unit: lock (and
// lazily create) the account, bump balance and lifetime_earned, append the
// transaction with the post-mutation balance snapshot.
func (r *PostgresRepository) CreditPoints(ctx context.Context, params EntryParams) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO point_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, params.UserID); err != nil {
		return nil, err
	}

	var balance, earned int64
	err = tx.QueryRow(ctx, `SELECT balance, lifetime_earned FROM point_accounts WHERE user_id = $1 FOR UPDATE`, params.UserID).Scan(&balance, &earned)
	if err != nil {
		return nil, err
	}

	newBalance := balance + params.Amount
	_, err = tx.Exec(ctx,
		`UPDATE point_accounts SET balance = $1, lifetime_earned = $2, updated_at = NOW() WHERE user_id = $3`,
		newBalance, earned+params.Amount, params.UserID,
	)
	if err != nil {
		return nil, err
	}

	entry, err := insertTransaction(ctx, tx, &domain.Transaction{
		ID:           uuid.New(),
		UserID:       params.UserID,
		Amount:       params.Amount,
		BalanceAfter: newBalance,
		Source:       params.Source,
		SourceID:     params.SourceID,
		Description:  params.Description,
		Metadata:     params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	return entry, tx.Commit(ctx)
}

// DebitPoints applies a negative ledger entry as one atomic unit. The account
// must already exist and cover the amount; both checks happen under the row
// lock so a concurrent debit cannot spend the same balance twice.
func (r *PostgresRepository) DebitPoints(ctx context.Context, params EntryParams) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var balance, spent int64
	err = tx.QueryRow(ctx, `SELECT balance, lifetime_spent FROM point_accounts WHERE user_id = $1 FOR UPDATE`, params.UserID).Scan(&balance, &spent)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if balance < params.Amount {
		return nil, ErrInsufficientBalance
	}

	newBalance := balance - params.Amount
	_, err = tx.Exec(ctx,
		`UPDATE point_accounts SET balance = $1, lifetime_spent = $2, updated_at = NOW() WHERE user_id = $3`,
		newBalance, spent+params.Amount, params.UserID,
	)
	if err != nil {
		return nil, err
	}

	entry, err := insertTransaction(ctx, tx, &domain.Transaction{
		ID:           uuid.New(),
		UserID:       params.UserID,
		Amount:       -params.Amount,
		BalanceAfter: newBalance,
		Source:       params.Source,
		SourceID:     params.SourceID,
		Description:  params.Description,
		Metadata:     params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	return entry, tx.Commit(ctx)
}

// TransferPoints moves points between two members as one atomic unit: debit
// the sender, credit the recipient (account created if absent), append the
// paired TRANSFER_OUT / TRANSFER_IN entries, and upsert the recent-counterparty
// row. All five writes commit together or not at all.
func (r *PostgresRepository) TransferPoints(ctx context.Context, params TransferParams) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var recipientExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, params.ToUserID).Scan(&recipientExists); err != nil {
		return nil, err
	}
	if !recipientExists {
		return nil, ErrUserNotFound
	}

	// Create-if-absent, then lock both rows in lexicographic user-id order so
	// two opposite-direction transfers cannot deadlock.
	first, second := orderedLockIDs(params.FromUserID, params.ToUserID)
	for _, id := range []uuid.UUID{first, second} {
		if _, err := tx.Exec(ctx, `INSERT INTO point_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, id); err != nil {
			return nil, err
		}
	}

	balances := make(map[uuid.UUID]struct{ balance, earned, spent int64 }, 2)
	for _, id := range []uuid.UUID{first, second} {
		var row struct{ balance, earned, spent int64 }
		err := tx.QueryRow(ctx,
			`SELECT balance, lifetime_earned, lifetime_spent FROM point_accounts WHERE user_id = $1 FOR UPDATE`, id,
		).Scan(&row.balance, &row.earned, &row.spent)
		if err != nil {
			return nil, err
		}
		balances[id] = row
	}

	sender := balances[params.FromUserID]
	if sender.balance < params.Amount {
		return nil, ErrInsufficientBalance
	}
	recipient := balances[params.ToUserID]

	senderBalance := sender.balance - params.Amount
	recipientBalance := recipient.balance + params.Amount

	_, err = tx.Exec(ctx,
		`UPDATE point_accounts SET balance = $1, lifetime_spent = $2, updated_at = NOW() WHERE user_id = $3`,
		senderBalance, sender.spent+params.Amount, params.FromUserID,
	)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE point_accounts SET balance = $1, lifetime_earned = $2, updated_at = NOW() WHERE user_id = $3`,
		recipientBalance, recipient.earned+params.Amount, params.ToUserID,
	)
	if err != nil {
		return nil, err
	}

	senderEntry, err := insertTransaction(ctx, tx, &domain.Transaction{
		ID:            uuid.New(),
		UserID:        params.FromUserID,
		Amount:        -params.Amount,
		BalanceAfter:  senderBalance,
		Source:        domain.SourceTransferOut,
		Description:   params.Message,
		RelatedUserID: &params.ToUserID,
	})
	if err != nil {
		return nil, err
	}
	_, err = insertTransaction(ctx, tx, &domain.Transaction{
		ID:            uuid.New(),
		UserID:        params.ToUserID,
		Amount:        params.Amount,
		BalanceAfter:  recipientBalance,
		Source:        domain.SourceTransferIn,
		Description:   params.Message,
		RelatedUserID: &params.FromUserID,
	})
	if err != nil {
		return nil, err
	}

	upsert := `
		INSERT INTO recent_counterparties (sender_id, recipient_id, transfer_count, last_transfer_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (sender_id, recipient_id)
		DO UPDATE SET
			transfer_count = recent_counterparties.transfer_count + 1,
			last_transfer_at = NOW()
	`
	if _, err := tx.Exec(ctx, upsert, params.FromUserID, params.ToUserID); err != nil {
		return nil, err
	}

	return senderEntry, tx.Commit(ctx)
}

// RefundTransaction appends a reversing entry for a prior transaction. The
// refunded-already check and the balance mutation happen inside one atomic
// unit, so a retried refund observes ErrAlreadyRefunded instead of
// double-reversing.
func (r *PostgresRepository) RefundTransaction(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.RefundResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	result, err := refundWithinTx(ctx, tx, transactionID, reason)
	if err != nil {
		return nil, err
	}
	return result, tx.Commit(ctx)
}

// refundWithinTx holds the refund's read-check-mutate sequence. The
// refunded-already check must run only after the account row lock is held:
// a concurrent refund of the same transaction blocks on the lock and then
// observes the first refund's committed reversing entry.
func refundWithinTx(ctx context.Context, tx pgx.Tx, transactionID uuid.UUID, reason string) (*domain.RefundResult, error) {
	original, err := scanTransaction(tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM point_transactions WHERE id = $1`, transactionColumns), transactionID,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	var balance, earned, spent int64
	err = tx.QueryRow(ctx,
		`SELECT balance, lifetime_earned, lifetime_spent FROM point_accounts WHERE user_id = $1 FOR UPDATE`, original.UserID,
	).Scan(&balance, &earned, &spent)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	var alreadyRefunded bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM point_transactions WHERE refunded_transaction_id = $1)`, transactionID,
	).Scan(&alreadyRefunded)
	if err != nil {
		return nil, err
	}
	if alreadyRefunded {
		return nil, ErrAlreadyRefunded
	}

	refundAmount := original.Amount
	newBalance := balance - refundAmount
	// Reversing a credit claws points back; the member may have spent them
	// already. Debit reversals only increase balance, so they need no check.
	if refundAmount > 0 && newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	newEarned, newSpent := earned, spent
	if refundAmount > 0 {
		newEarned -= refundAmount
	} else {
		newSpent += refundAmount
	}

	_, err = tx.Exec(ctx,
		`UPDATE point_accounts SET balance = $1, lifetime_earned = $2, lifetime_spent = $3, updated_at = NOW() WHERE user_id = $4`,
		newBalance, newEarned, newSpent, original.UserID,
	)
	if err != nil {
		return nil, err
	}

	description := reason
	refundEntry, err := insertTransaction(ctx, tx, &domain.Transaction{
		ID:                    uuid.New(),
		UserID:                original.UserID,
		Amount:                -refundAmount,
		BalanceAfter:          newBalance,
		Source:                domain.SourceRefund,
		Description:           &description,
		RefundedTransactionID: &original.ID,
	})
	if err != nil {
		return nil, err
	}

	return &domain.RefundResult{
		RefundTransactionID:   refundEntry.ID,
		OriginalTransactionID: original.ID,
		Amount:                refundEntry.Amount,
		UserID:                original.UserID,
		NewBalance:            newBalance,
	}, nil
}

// FindTransactionByID retrieves a single ledger entry.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	entry, err := scanTransaction(r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM point_transactions WHERE id = $1`, transactionColumns), transactionID,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ListTransactions returns one page of a member's ledger entries, newest
// first, plus the total row count for the same filters.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID uuid.UUID, query domain.HistoryQuery) ([]domain.Transaction, int64, error) {
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := query.Page
	if page < 1 {
		page = 1
	}

	where := []string{"user_id = $1"}
	args := []interface{}{userID}
	argPos := 2

	switch query.Direction {
	case domain.DirectionCredit:
		where = append(where, "amount > 0")
	case domain.DirectionDebit:
		where = append(where, "amount < 0")
	}
	if query.Source != "" {
		where = append(where, fmt.Sprintf("source = $%d", argPos))
		args = append(args, query.Source)
		argPos++
	}
	if query.From != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *query.From)
		argPos++
	}
	if query.To != nil {
		where = append(where, fmt.Sprintf("created_at < $%d", argPos))
		args = append(args, *query.To)
		argPos++
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM point_transactions WHERE %s`, whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(
		`SELECT %s FROM point_transactions WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, whereClause, argPos, argPos+1,
	)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

// SumTransactionsBySource aggregates one member's entries within [from, to)
// into per-source earned/spent rows.
func (r *PostgresRepository) SumTransactionsBySource(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.SourceDirectionTotals, error) {
	query := `
		SELECT
			source,
			COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0) AS earned,
			COALESCE(SUM(-amount) FILTER (WHERE amount < 0), 0) AS spent
		FROM point_transactions
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY source
		ORDER BY source
	`
	return r.querySourceTotals(ctx, query, userID, from, to)
}

// CountAssociationMembers returns the size of the association's member set.
func (r *PostgresRepository) CountAssociationMembers(ctx context.Context, associationID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM association_members WHERE association_id = $1`, associationID,
	).Scan(&count)
	return count, err
}

// SumAssociationBySource aggregates all association members' entries within
// [from, to) into per-source earned/spent rows.
func (r *PostgresRepository) SumAssociationBySource(ctx context.Context, associationID uuid.UUID, from, to time.Time) ([]domain.SourceDirectionTotals, error) {
	query := `
		SELECT
			t.source,
			COALESCE(SUM(t.amount) FILTER (WHERE t.amount > 0), 0) AS earned,
			COALESCE(SUM(-t.amount) FILTER (WHERE t.amount < 0), 0) AS spent
		FROM point_transactions t
		JOIN association_members am ON am.user_id = t.user_id AND am.association_id = $1
		WHERE t.created_at >= $2 AND t.created_at < $3
		GROUP BY t.source
		ORDER BY t.source
	`
	return r.querySourceTotals(ctx, query, associationID, from, to)
}

// AssociationCirculation sums the current balances of all association members.
func (r *PostgresRepository) AssociationCirculation(ctx context.Context, associationID uuid.UUID) (int64, error) {
	var circulation int64
	query := `
		SELECT COALESCE(SUM(a.balance), 0)
		FROM point_accounts a
		JOIN association_members am ON am.user_id = a.user_id AND am.association_id = $1
	`
	err := r.db.QueryRow(ctx, query, associationID).Scan(&circulation)
	return circulation, err
}

// AssociationTopEarners ranks association members by points credited within
// [from, to).
func (r *PostgresRepository) AssociationTopEarners(ctx context.Context, associationID uuid.UUID, from, to time.Time, limit int) ([]domain.TopEarner, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT t.user_id, COALESCE(u.display_name, ''), SUM(t.amount) AS earned
		FROM point_transactions t
		JOIN association_members am ON am.user_id = t.user_id AND am.association_id = $1
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.amount > 0 AND t.created_at >= $2 AND t.created_at < $3
		GROUP BY t.user_id, u.display_name
		ORDER BY earned DESC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, associationID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earners []domain.TopEarner
	for rows.Next() {
		var earner domain.TopEarner
		if err := rows.Scan(&earner.UserID, &earner.DisplayName, &earner.Earned); err != nil {
			return nil, err
		}
		earners = append(earners, earner)
	}
	return earners, rows.Err()
}

// ListRecentCounterparties returns the sender's most recent transfer
// recipients, most recent first.
func (r *PostgresRepository) ListRecentCounterparties(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.RecentCounterparty, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	query := `
		SELECT rc.sender_id, rc.recipient_id, COALESCE(u.display_name, ''), rc.transfer_count, rc.last_transfer_at
		FROM recent_counterparties rc
		LEFT JOIN users u ON u.id = rc.recipient_id
		WHERE rc.sender_id = $1
		ORDER BY rc.last_transfer_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, senderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counterparties []domain.RecentCounterparty
	for rows.Next() {
		var cp domain.RecentCounterparty
		if err := rows.Scan(&cp.SenderID, &cp.RecipientID, &cp.DisplayName, &cp.TransferCount, &cp.LastTransferAt); err != nil {
			return nil, err
		}
		counterparties = append(counterparties, cp)
	}
	return counterparties, rows.Err()
}

func (r *PostgresRepository) querySourceTotals(ctx context.Context, query string, args ...interface{}) ([]domain.SourceDirectionTotals, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []domain.SourceDirectionTotals
	for rows.Next() {
		var row domain.SourceDirectionTotals
		if err := rows.Scan(&row.Source, &row.Earned, &row.Spent); err != nil {
			return nil, err
		}
		totals = append(totals, row)
	}
	return totals, rows.Err()
}

// orderedLockIDs returns the pair sorted lexicographically by id so callers
// acquire row locks in one global order.
func orderedLockIDs(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) <= 0 {
		return a, b
	}
	return b, a
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var entry domain.Transaction
	var metadata []byte
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Amount,
		&entry.BalanceAfter,
		&entry.Source,
		&entry.SourceID,
		&entry.Description,
		&metadata,
		&entry.RelatedUserID,
		&entry.RefundedTransactionID,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	return &entry, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, entry *domain.Transaction) (*domain.Transaction, error) {
	var metadata []byte
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode transaction metadata: %w", err)
		}
		metadata = encoded
	}

	query := `
		INSERT INTO point_transactions (
			id,
			user_id,
			amount,
			balance_after,
			source,
			source_id,
			description,
			metadata,
			related_user_id,
			refunded_transaction_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Amount,
		entry.BalanceAfter,
		entry.Source,
		entry.SourceID,
		entry.Description,
		metadata,
		entry.RelatedUserID,
		entry.RefundedTransactionID,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
