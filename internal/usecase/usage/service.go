package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// Period is the reporting window of a usage report.
type Period string

// Supported reporting periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// ParsePeriod converts a query value into a Period. Empty selects the month.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodMonth, PeriodTotal:
		return Period(s), nil
	default:
		return "", fmt.Errorf("unknown period %q: %w", s, domain.ErrInvalidInput)
	}
}

// Report is a snapshot of embedding token consumption against the budget.
// Start, End and ResetsAt are unix milliseconds, zero for the total period.
type Report struct {
	Period    Period
	Start     int64
	End       int64
	Limit     int64
	Used      int64
	Remaining int64
	Exhausted bool
	ResetsAt  int64
}

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br, now: time.Now}
}

// GetReport builds a usage report for the given period.
// The total period has no boundaries and reads the monthly window.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := s.now().UTC()
	r := Report{Period: period}

	var snap domain.BudgetSnapshot
	if s.br != nil {
		snap = s.br.Snapshot()
	}
	w := snap.Monthly

	switch period {
	case PeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.Start, r.End = start.UnixMilli(), start.AddDate(0, 0, 1).UnixMilli()
		w = snap.Daily
	case PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.Start, r.End = start.UnixMilli(), start.AddDate(0, 1, 0).UnixMilli()
	}

	r.Limit, r.Used, r.Remaining = w.Limit, w.Used, w.Remaining
	if w.Limit == 0 {
		r.Remaining = 0
	}
	r.Exhausted = w.Exhausted()
	r.ResetsAt = r.End
	return r
}
