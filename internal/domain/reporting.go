/**
 * @description
 * Read-side view models for the ledger: paginated history projections, period
 * summaries, and association-wide reports. These are projections over the
 * transaction log; none of them carry mutable state.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SummaryPeriod selects the calendar window a summary or report covers.
type SummaryPeriod string

const (
	PeriodToday SummaryPeriod = "today"
	PeriodWeek  SummaryPeriod = "week" // rolling 7 days
	PeriodMonth SummaryPeriod = "month"
	PeriodYear  SummaryPeriod = "year"
)

// HistoryDirection filters history to one side of the ledger.
type HistoryDirection string

const (
	DirectionCredit HistoryDirection = "credit"
	DirectionDebit  HistoryDirection = "debit"
)

// HistoryQuery carries the pagination and filter options for GetHistory.
type HistoryQuery struct {
	Page      int
	PageSize  int
	Direction HistoryDirection  // empty = both
	Source    TransactionSource // empty = all
	From      *time.Time
	To        *time.Time
}

// TransactionView is the member-facing shape of one history row: the stored
// signed amount is unfolded into a direction plus absolute value.
type TransactionView struct {
	ID            uuid.UUID         `json:"id"`
	Type          HistoryDirection  `json:"type"`
	Amount        int64             `json:"amount"` // absolute value
	BalanceAfter  int64             `json:"balance_after"`
	Source        TransactionSource `json:"source"`
	SourceID      *string           `json:"source_id,omitempty"`
	Description   *string           `json:"description,omitempty"`
	RelatedUserID *uuid.UUID        `json:"related_user_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// HistoryPage is one page of a member's transaction history, newest first.
type HistoryPage struct {
	Transactions []TransactionView `json:"transactions"`
	Page         int               `json:"page"`
	PageSize     int               `json:"page_size"`
	TotalCount   int64             `json:"total_count"`
	TotalPages   int               `json:"total_pages"`
}

// SourceTotals is the per-source breakdown row inside a summary.
type SourceTotals struct {
	Source TransactionSource `json:"source"`
	Amount int64             `json:"amount"` // absolute value
}

// PeriodSummary aggregates one member's transactions within a period.
type PeriodSummary struct {
	Period        SummaryPeriod  `json:"period"`
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	Earned        int64          `json:"earned"`
	Spent         int64          `json:"spent"`
	Net           int64          `json:"net"`
	BySource      []SourceTotals `json:"by_source"`      // credits per source
	ByDestination []SourceTotals `json:"by_destination"` // debits per source
}

// TopEarner is one row of the association report's ranking.
type TopEarner struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Earned      int64     `json:"earned"`
}

// AssociationReport is the association-wide variant of a period summary.
type AssociationReport struct {
	AssociationID uuid.UUID      `json:"association_id"`
	Period        SummaryPeriod  `json:"period"`
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	MemberCount   int            `json:"member_count"`
	Earned        int64          `json:"earned"`
	Spent         int64          `json:"spent"`
	Net           int64          `json:"net"`
	Circulation   int64          `json:"circulation"` // sum of member balances now
	BySource      []SourceTotals `json:"by_source"`
	ByDestination []SourceTotals `json:"by_destination"`
	TopEarners    []TopEarner    `json:"top_earners"`
}

// SourceDirectionTotals is the raw aggregation row the store returns for
// summary queries: per-source sums split by direction.
type SourceDirectionTotals struct {
	Source TransactionSource
	Earned int64 // sum of positive amounts
	Spent  int64 // sum of abs(negative amounts)
}
