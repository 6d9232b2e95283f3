package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clubos/ledger-service/internal/domain"
	"github.com/clubos/ledger-service/internal/store"
)

type reportingRepoStub struct {
	store.Repository

	transactions []domain.Transaction
	total        int64
	totals       []domain.SourceDirectionTotals
	memberCount  int
	circulation  int64
	topEarners   []domain.TopEarner

	listQuery    domain.HistoryQuery
	summaryFrom  time.Time
	summaryTo    time.Time
	summaryCalls int
}

func (s *reportingRepoStub) ListTransactions(ctx context.Context, userID uuid.UUID, query domain.HistoryQuery) ([]domain.Transaction, int64, error) {
	s.listQuery = query
	return s.transactions, s.total, nil
}

func (s *reportingRepoStub) SumTransactionsBySource(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.SourceDirectionTotals, error) {
	s.summaryCalls++
	s.summaryFrom = from
	s.summaryTo = to
	return s.totals, nil
}

func (s *reportingRepoStub) CountAssociationMembers(ctx context.Context, associationID uuid.UUID) (int, error) {
	return s.memberCount, nil
}

func (s *reportingRepoStub) SumAssociationBySource(ctx context.Context, associationID uuid.UUID, from, to time.Time) ([]domain.SourceDirectionTotals, error) {
	return s.totals, nil
}

func (s *reportingRepoStub) AssociationCirculation(ctx context.Context, associationID uuid.UUID) (int64, error) {
	return s.circulation, nil
}

func (s *reportingRepoStub) AssociationTopEarners(ctx context.Context, associationID uuid.UUID, from, to time.Time, limit int) ([]domain.TopEarner, error) {
	return s.topEarners, nil
}

func TestGetHistory_ClampsPagination(t *testing.T) {
	tests := []struct {
		name         string
		query        domain.HistoryQuery
		wantPage     int
		wantPageSize int
	}{
		{name: "defaults", query: domain.HistoryQuery{}, wantPage: 1, wantPageSize: 20},
		{name: "oversized page size capped", query: domain.HistoryQuery{Page: 2, PageSize: 500}, wantPage: 2, wantPageSize: 100},
		{name: "negative page floored", query: domain.HistoryQuery{Page: -1, PageSize: 10}, wantPage: 1, wantPageSize: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &reportingRepoStub{}
			svc := NewService(repo, &publisherStub{})

			page, err := svc.GetHistory(context.Background(), uuid.New(), tt.query)
			if err != nil {
				t.Fatalf("GetHistory returned error: %v", err)
			}
			if repo.listQuery.Page != tt.wantPage || repo.listQuery.PageSize != tt.wantPageSize {
				t.Fatalf("expected page=%d size=%d passed to store, got page=%d size=%d",
					tt.wantPage, tt.wantPageSize, repo.listQuery.Page, repo.listQuery.PageSize)
			}
			if page.Page != tt.wantPage || page.PageSize != tt.wantPageSize {
				t.Fatalf("expected page=%d size=%d in result, got page=%d size=%d",
					tt.wantPage, tt.wantPageSize, page.Page, page.PageSize)
			}
		})
	}
}

func TestGetHistory_ComputesTotalPages(t *testing.T) {
	repo := &reportingRepoStub{total: 45}
	svc := NewService(repo, &publisherStub{})

	page, err := svc.GetHistory(context.Background(), uuid.New(), domain.HistoryQuery{PageSize: 20})
	if err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}
	if page.TotalCount != 45 {
		t.Fatalf("expected total count 45, got %d", page.TotalCount)
	}
	if page.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", page.TotalPages)
	}
}

func TestHistoryView_UnfoldsSignedAmounts(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		wantType   domain.HistoryDirection
		wantAmount int64
	}{
		{name: "credit stays positive", amount: 150, wantType: domain.DirectionCredit, wantAmount: 150},
		{name: "debit becomes absolute", amount: -75, wantType: domain.DirectionDebit, wantAmount: 75},
		{name: "zero counts as credit", amount: 0, wantType: domain.DirectionCredit, wantAmount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := domain.Transaction{ID: uuid.New(), Amount: tt.amount, BalanceAfter: 500}
			view := historyView(&entry)
			if view.Type != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, view.Type)
			}
			if view.Amount != tt.wantAmount {
				t.Fatalf("expected amount %d, got %d", tt.wantAmount, view.Amount)
			}
			if view.BalanceAfter != 500 {
				t.Fatalf("expected balance_after preserved, got %d", view.BalanceAfter)
			}
		})
	}
}

func TestBuildPeriodSummary_SplitsEarnedAndSpent(t *testing.T) {
	bounds := periodWindow{
		from: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		to:   time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC),
	}
	totals := []domain.SourceDirectionTotals{
		{Source: domain.SourceEventCheckin, Earned: 300},
		{Source: domain.SourceShopPurchase, Spent: 120},
		{Source: domain.SourceTransferIn, Earned: 80},
		{Source: domain.SourceTransferOut, Spent: 40},
	}

	summary := buildPeriodSummary(domain.PeriodMonth, bounds, totals)

	if summary.Earned != 380 {
		t.Fatalf("expected earned 380, got %d", summary.Earned)
	}
	if summary.Spent != 160 {
		t.Fatalf("expected spent 160, got %d", summary.Spent)
	}
	if summary.Net != 220 {
		t.Fatalf("expected net 220, got %d", summary.Net)
	}
	if len(summary.BySource) != 2 {
		t.Fatalf("expected 2 credit sources, got %d", len(summary.BySource))
	}
	if len(summary.ByDestination) != 2 {
		t.Fatalf("expected 2 debit destinations, got %d", len(summary.ByDestination))
	}
}

func TestGetSummary_UsesPeriodBounds(t *testing.T) {
	repo := &reportingRepoStub{
		totals: []domain.SourceDirectionTotals{{Source: domain.SourceDailyPost, Earned: 10}},
	}
	svc := NewService(repo, &publisherStub{})
	fixed := time.Date(2026, time.March, 18, 15, 0, 0, 0, time.UTC)
	svc.nowFn = func() time.Time { return fixed }

	summary, err := svc.GetSummary(context.Background(), uuid.New(), domain.PeriodToday)
	if err != nil {
		t.Fatalf("GetSummary returned error: %v", err)
	}
	wantFrom := time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC)
	if !repo.summaryFrom.Equal(wantFrom) || !repo.summaryTo.Equal(fixed) {
		t.Fatalf("expected window [%v, %v], got [%v, %v]", wantFrom, fixed, repo.summaryFrom, repo.summaryTo)
	}
	if summary.Earned != 10 {
		t.Fatalf("expected earned 10, got %d", summary.Earned)
	}
}

func TestGetSummary_RejectsUnknownPeriod(t *testing.T) {
	svc := NewService(&reportingRepoStub{}, &publisherStub{})

	if _, err := svc.GetSummary(context.Background(), uuid.New(), domain.SummaryPeriod("decade")); err == nil {
		t.Fatal("expected error for unknown period")
	}
}

func TestGetReports_AssemblesAssociationReport(t *testing.T) {
	associationID := uuid.New()
	repo := &reportingRepoStub{
		memberCount: 42,
		circulation: 12500,
		totals: []domain.SourceDirectionTotals{
			{Source: domain.SourceEventCheckin, Earned: 900},
			{Source: domain.SourceShopPurchase, Spent: 300},
		},
		topEarners: []domain.TopEarner{
			{UserID: uuid.New(), DisplayName: "Ada", Earned: 500},
		},
	}
	svc := NewService(repo, &publisherStub{})

	report, err := svc.GetReports(context.Background(), associationID, domain.PeriodMonth)
	if err != nil {
		t.Fatalf("GetReports returned error: %v", err)
	}
	if report.AssociationID != associationID {
		t.Fatal("expected association id carried through")
	}
	if report.MemberCount != 42 {
		t.Fatalf("expected 42 members, got %d", report.MemberCount)
	}
	if report.Circulation != 12500 {
		t.Fatalf("expected circulation 12500, got %d", report.Circulation)
	}
	if report.Earned != 900 || report.Spent != 300 || report.Net != 600 {
		t.Fatalf("unexpected totals: earned=%d spent=%d net=%d", report.Earned, report.Spent, report.Net)
	}
	if len(report.TopEarners) != 1 || report.TopEarners[0].DisplayName != "Ada" {
		t.Fatalf("unexpected top earners: %+v", report.TopEarners)
	}
}
