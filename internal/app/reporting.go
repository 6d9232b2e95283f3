/**
 * @description
 * Read-side operations of the ledger-service: per-member history pages, period
 * summaries, and association-wide reports. Everything here is a pure read over
 * the transaction log; aggregation happens in SQL and the helpers below only
 * shape rows into view models.
 */

package app

import (
	"context"

	"github.com/clubos/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// GetHistory returns one page of the member's transaction history, newest
// first, with the stored signed amounts unfolded into direction + absolute
// value views.
func (s *Service) GetHistory(ctx context.Context, userID uuid.UUID, query domain.HistoryQuery) (*domain.HistoryPage, error) {
	if query.PageSize <= 0 {
		query.PageSize = 20
	}
	if query.PageSize > 100 {
		query.PageSize = 100
	}
	if query.Page < 1 {
		query.Page = 1
	}

	transactions, total, err := s.repo.ListTransactions(ctx, userID, query)
	if err != nil {
		return nil, err
	}

	views := make([]domain.TransactionView, 0, len(transactions))
	for i := range transactions {
		views = append(views, historyView(&transactions[i]))
	}

	totalPages := int((total + int64(query.PageSize) - 1) / int64(query.PageSize))
	return &domain.HistoryPage{
		Transactions: views,
		Page:         query.Page,
		PageSize:     query.PageSize,
		TotalCount:   total,
		TotalPages:   totalPages,
	}, nil
}

// GetSummary aggregates the member's transactions within the period's calendar
// bounds into earned/spent/net totals plus per-source breakdowns.
func (s *Service) GetSummary(ctx context.Context, userID uuid.UUID, period domain.SummaryPeriod) (*domain.PeriodSummary, error) {
	bounds, err := periodBounds(period, s.now())
	if err != nil {
		return nil, err
	}

	totals, err := s.repo.SumTransactionsBySource(ctx, userID, bounds.from, bounds.to)
	if err != nil {
		return nil, err
	}

	summary := buildPeriodSummary(period, bounds, totals)
	return &summary, nil
}

// GetReports builds the association-wide variant of a period summary: member
// totals, points currently in circulation, and the top-10 earners ranking.
func (s *Service) GetReports(ctx context.Context, associationID uuid.UUID, period domain.SummaryPeriod) (*domain.AssociationReport, error) {
	bounds, err := periodBounds(period, s.now())
	if err != nil {
		return nil, err
	}

	memberCount, err := s.repo.CountAssociationMembers(ctx, associationID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.SumAssociationBySource(ctx, associationID, bounds.from, bounds.to)
	if err != nil {
		return nil, err
	}
	circulation, err := s.repo.AssociationCirculation(ctx, associationID)
	if err != nil {
		return nil, err
	}
	topEarners, err := s.repo.AssociationTopEarners(ctx, associationID, bounds.from, bounds.to, 10)
	if err != nil {
		return nil, err
	}

	summary := buildPeriodSummary(period, bounds, totals)
	return &domain.AssociationReport{
		AssociationID: associationID,
		Period:        period,
		From:          summary.From,
		To:            summary.To,
		MemberCount:   memberCount,
		Earned:        summary.Earned,
		Spent:         summary.Spent,
		Net:           summary.Net,
		Circulation:   circulation,
		BySource:      summary.BySource,
		ByDestination: summary.ByDestination,
		TopEarners:    topEarners,
	}, nil
}

func historyView(entry *domain.Transaction) domain.TransactionView {
	view := domain.TransactionView{
		ID:            entry.ID,
		BalanceAfter:  entry.BalanceAfter,
		Source:        entry.Source,
		SourceID:      entry.SourceID,
		Description:   entry.Description,
		RelatedUserID: entry.RelatedUserID,
		CreatedAt:     entry.CreatedAt,
	}
	if entry.Amount >= 0 {
		view.Type = domain.DirectionCredit
		view.Amount = entry.Amount
	} else {
		view.Type = domain.DirectionDebit
		view.Amount = -entry.Amount
	}
	return view
}

func buildPeriodSummary(period domain.SummaryPeriod, bounds periodWindow, totals []domain.SourceDirectionTotals) domain.PeriodSummary {
	summary := domain.PeriodSummary{
		Period:        period,
		From:          bounds.from,
		To:            bounds.to,
		BySource:      []domain.SourceTotals{},
		ByDestination: []domain.SourceTotals{},
	}
	for _, row := range totals {
		summary.Earned += row.Earned
		summary.Spent += row.Spent
		if row.Earned > 0 {
			summary.BySource = append(summary.BySource, domain.SourceTotals{Source: row.Source, Amount: row.Earned})
		}
		if row.Spent > 0 {
			summary.ByDestination = append(summary.ByDestination, domain.SourceTotals{Source: row.Source, Amount: row.Spent})
		}
	}
	summary.Net = summary.Earned - summary.Spent
	return summary
}
