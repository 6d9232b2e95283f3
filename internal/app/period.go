package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/clubos/ledger-service/internal/domain"
)

// ErrInvalidPeriod is returned when a summary period name is not one of
// the supported values.
var ErrInvalidPeriod = errors.New("invalid summary period")

// periodWindow is a half-open [from, to) interval ending at "now".
type periodWindow struct {
	from time.Time
	to   time.Time
}

// periodBounds derives the calendar window for a summary period:
// today = local midnight to now, week = rolling 7 days, month = first of the
// month to now, year = Jan 1 to now.
func periodBounds(period domain.SummaryPeriod, now time.Time) (periodWindow, error) {
	switch period {
	case domain.PeriodToday:
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return periodWindow{from: midnight, to: now}, nil
	case domain.PeriodWeek:
		return periodWindow{from: now.AddDate(0, 0, -7), to: now}, nil
	case domain.PeriodMonth:
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return periodWindow{from: firstOfMonth, to: now}, nil
	case domain.PeriodYear:
		firstOfYear := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		return periodWindow{from: firstOfYear, to: now}, nil
	default:
		return periodWindow{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

func (s *Service) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now().UTC()
}
