package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clubos/ledger-service/internal/domain"
)

func TestOrderedLockIDs(t *testing.T) {
	low := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	high := uuid.MustParse("99999999-9999-9999-9999-999999999999")

	tests := []struct {
		name string
		a    uuid.UUID
		b    uuid.UUID
	}{
		{name: "already ordered", a: low, b: high},
		{name: "reversed input", a: high, b: low},
		{name: "equal ids", a: low, b: low},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, second := orderedLockIDs(tt.a, tt.b)
			if first.String() > second.String() {
				t.Fatalf("expected lexicographic order, got %s before %s", first, second)
			}
			// The pair must be preserved, only possibly swapped.
			if !(first == tt.a && second == tt.b) && !(first == tt.b && second == tt.a) {
				t.Fatalf("expected the input pair back, got (%s, %s)", first, second)
			}
		})
	}
}

// fakeRow feeds canned column values through the rowScanner interface in the
// column order of scanTransaction.
type fakeRow struct {
	id            uuid.UUID
	userID        uuid.UUID
	amount        int64
	balanceAfter  int64
	source        domain.TransactionSource
	sourceID      *string
	description   *string
	metadata      []byte
	relatedUserID *uuid.UUID
	refundedID    *uuid.UUID
	createdAt     time.Time
}

func (r *fakeRow) Scan(dest ...interface{}) error {
	*dest[0].(*uuid.UUID) = r.id
	*dest[1].(*uuid.UUID) = r.userID
	*dest[2].(*int64) = r.amount
	*dest[3].(*int64) = r.balanceAfter
	*dest[4].(*domain.TransactionSource) = r.source
	*dest[5].(**string) = r.sourceID
	*dest[6].(**string) = r.description
	*dest[7].(*[]byte) = r.metadata
	*dest[8].(**uuid.UUID) = r.relatedUserID
	*dest[9].(**uuid.UUID) = r.refundedID
	*dest[10].(*time.Time) = r.createdAt
	return nil
}

func TestScanTransaction_DecodesMetadata(t *testing.T) {
	id := uuid.New()
	userID := uuid.New()
	sourceID := "ord-1"
	description := "Shop purchase"
	createdAt := time.Now().UTC()

	entry, err := scanTransaction(&fakeRow{
		id:           id,
		userID:       userID,
		amount:       -250,
		balanceAfter: 750,
		source:       domain.SourceShopPurchase,
		sourceID:     &sourceID,
		description:  &description,
		metadata:     []byte(`{"admin_id":"abc-123"}`),
		createdAt:    createdAt,
	})
	if err != nil {
		t.Fatalf("scanTransaction returned error: %v", err)
	}
	if entry.ID != id || entry.UserID != userID {
		t.Fatal("expected ids carried through")
	}
	if entry.Amount != -250 || entry.BalanceAfter != 750 {
		t.Fatalf("unexpected amounts: amount=%d balance_after=%d", entry.Amount, entry.BalanceAfter)
	}
	if entry.Source != domain.SourceShopPurchase {
		t.Fatalf("expected source SHOP_PURCHASE, got %s", entry.Source)
	}
	if entry.Metadata["admin_id"] != "abc-123" {
		t.Fatalf("expected metadata decoded, got %v", entry.Metadata)
	}
	if entry.SourceID == nil || *entry.SourceID != "ord-1" {
		t.Fatalf("expected source id ord-1, got %v", entry.SourceID)
	}
}

func TestScanTransaction_NilMetadataStaysNil(t *testing.T) {
	entry, err := scanTransaction(&fakeRow{
		id:           uuid.New(),
		userID:       uuid.New(),
		amount:       100,
		balanceAfter: 100,
		source:       domain.SourceEventCheckin,
		createdAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("scanTransaction returned error: %v", err)
	}
	if entry.Metadata != nil {
		t.Fatalf("expected nil metadata, got %v", entry.Metadata)
	}
}

func TestScanTransaction_RejectsBadMetadata(t *testing.T) {
	_, err := scanTransaction(&fakeRow{
		id:           uuid.New(),
		userID:       uuid.New(),
		amount:       100,
		balanceAfter: 100,
		source:       domain.SourceEventCheckin,
		metadata:     []byte("{broken"),
		createdAt:    time.Now().UTC(),
	})
	if err == nil {
		t.Fatal("expected error for malformed metadata")
	}
}

// refundTxStub stands in for a pgx transaction and records the order of the
// statements the refund runs.
type refundTxStub struct {
	pgx.Tx

	original        *fakeRow
	balance         int64
	earned          int64
	spent           int64
	alreadyRefunded bool

	queries []string
	execs   []string
}

type scanFn func(dest ...interface{}) error

func (f scanFn) Scan(dest ...interface{}) error { return f(dest...) }

func (t *refundTxStub) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	t.queries = append(t.queries, sql)
	switch {
	case strings.Contains(sql, "FROM point_transactions WHERE id"):
		return t.original
	case strings.Contains(sql, "FOR UPDATE"):
		return scanFn(func(dest ...interface{}) error {
			*dest[0].(*int64) = t.balance
			*dest[1].(*int64) = t.earned
			*dest[2].(*int64) = t.spent
			return nil
		})
	case strings.Contains(sql, "SELECT EXISTS"):
		return scanFn(func(dest ...interface{}) error {
			*dest[0].(*bool) = t.alreadyRefunded
			return nil
		})
	case strings.Contains(sql, "INSERT INTO point_transactions"):
		return scanFn(func(dest ...interface{}) error {
			*dest[0].(*time.Time) = time.Now().UTC()
			return nil
		})
	}
	return scanFn(func(dest ...interface{}) error { return pgx.ErrNoRows })
}

func (t *refundTxStub) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (t *refundTxStub) queryIndex(substr string) int {
	for i, q := range t.queries {
		if strings.Contains(q, substr) {
			return i
		}
	}
	return -1
}

func creditRow(amount int64) *fakeRow {
	return &fakeRow{
		id:           uuid.New(),
		userID:       uuid.New(),
		amount:       amount,
		balanceAfter: amount,
		source:       domain.SourceEventCheckin,
		createdAt:    time.Now().UTC(),
	}
}

func TestRefundWithinTx_ChecksRefundedOnlyUnderAccountLock(t *testing.T) {
	tx := &refundTxStub{
		original:        creditRow(100),
		balance:         500,
		earned:          700,
		spent:           200,
		alreadyRefunded: true,
	}

	_, err := refundWithinTx(context.Background(), tx, tx.original.id, "duplicate charge")
	if err != ErrAlreadyRefunded {
		t.Fatalf("expected ErrAlreadyRefunded, got %v", err)
	}

	lockIdx := tx.queryIndex("FOR UPDATE")
	existsIdx := tx.queryIndex("SELECT EXISTS")
	if lockIdx == -1 || existsIdx == -1 {
		t.Fatalf("expected both lock and refunded-check statements, got %v", tx.queries)
	}
	// A concurrent refund serializes on the account lock, so the refunded
	// check is only trustworthy after the lock is held.
	if lockIdx > existsIdx {
		t.Fatalf("expected the account lock before the refunded check, got order %v", tx.queries)
	}
	if len(tx.execs) != 0 {
		t.Fatalf("expected no writes for an already-refunded transaction, got %v", tx.execs)
	}
	if tx.queryIndex("INSERT INTO point_transactions") != -1 {
		t.Fatal("expected no reversing entry for an already-refunded transaction")
	}
}

func TestRefundWithinTx_ReversesCredit(t *testing.T) {
	tx := &refundTxStub{
		original: creditRow(100),
		balance:  500,
		earned:   700,
		spent:    200,
	}

	result, err := refundWithinTx(context.Background(), tx, tx.original.id, "duplicate charge")
	if err != nil {
		t.Fatalf("refundWithinTx returned error: %v", err)
	}
	if result.Amount != -100 {
		t.Fatalf("expected reversing amount -100, got %d", result.Amount)
	}
	if result.NewBalance != 400 {
		t.Fatalf("expected new balance 400, got %d", result.NewBalance)
	}
	if result.OriginalTransactionID != tx.original.id {
		t.Fatal("expected original transaction id carried through")
	}
	if len(tx.execs) != 1 || !strings.Contains(tx.execs[0], "UPDATE point_accounts") {
		t.Fatalf("expected one account update, got %v", tx.execs)
	}
	if tx.queryIndex("INSERT INTO point_transactions") == -1 {
		t.Fatal("expected a reversing entry to be inserted")
	}
}

func TestRefundWithinTx_CreditReversalNeedsBalance(t *testing.T) {
	tx := &refundTxStub{
		original: creditRow(100),
		balance:  50,
		earned:   700,
		spent:    200,
	}

	_, err := refundWithinTx(context.Background(), tx, tx.original.id, "duplicate charge")
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(tx.execs) != 0 {
		t.Fatalf("expected no writes when the clawback cannot be covered, got %v", tx.execs)
	}
}
