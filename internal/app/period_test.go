package app

import (
	"errors"
	"testing"
	"time"

	"github.com/clubos/ledger-service/internal/domain"
)

func TestPeriodBounds(t *testing.T) {
	// Wednesday, mid-month, to exercise every window shape.
	now := time.Date(2026, time.March, 18, 15, 30, 45, 0, time.UTC)

	tests := []struct {
		name     string
		period   domain.SummaryPeriod
		wantFrom time.Time
	}{
		{
			name:     "today starts at midnight",
			period:   domain.PeriodToday,
			wantFrom: time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "week is a rolling seven days",
			period:   domain.PeriodWeek,
			wantFrom: time.Date(2026, time.March, 11, 15, 30, 45, 0, time.UTC),
		},
		{
			name:     "month starts on the first",
			period:   domain.PeriodMonth,
			wantFrom: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "year starts on january first",
			period:   domain.PeriodYear,
			wantFrom: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bounds, err := periodBounds(tt.period, now)
			if err != nil {
				t.Fatalf("periodBounds returned error: %v", err)
			}
			if !bounds.from.Equal(tt.wantFrom) {
				t.Fatalf("expected from=%v, got %v", tt.wantFrom, bounds.from)
			}
			if !bounds.to.Equal(now) {
				t.Fatalf("expected to=%v, got %v", now, bounds.to)
			}
		})
	}
}

func TestPeriodBounds_RejectsUnknownPeriod(t *testing.T) {
	_, err := periodBounds(domain.SummaryPeriod("quarter"), time.Now())
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}
