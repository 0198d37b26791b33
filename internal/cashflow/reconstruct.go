package cashflow

import (
	"sort"
	"time"

	"kasirinaja/ledger/internal/domain"
)

// Event is one cash movement from any source, before windowing.
type Event struct {
	At          time.Time
	Type        string
	Category    string
	Description string
	Amount      int64
	SourceID    string
}

func (e Event) signed() int64 {
	if e.Type == domain.CashflowExpense {
		return -e.Amount
	}
	return e.Amount
}

// Reconstruct builds the ledger for w from events given in source order.
// Events before w.From fold into the opening balance, events inside w become
// entries sorted by time with ties kept in source order, and events at or
// after w.To are ignored. loc decides calendar days for the daily series.
func Reconstruct(events []Event, w domain.Window, loc *time.Location) domain.CashflowReport {
	if loc == nil {
		loc = time.UTC
	}
	report := domain.CashflowReport{
		From:    w.From,
		To:      w.To,
		Entries: make([]domain.CashflowEntry, 0),
		Daily:   make([]domain.DailyCashflow, 0),
	}

	inWindow := make([]Event, 0, len(events))
	for _, e := range events {
		switch {
		case e.At.Before(w.From):
			report.OpeningBalance += e.signed()
		case w.Contains(e.At):
			inWindow = append(inWindow, e)
		}
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].At.Before(inWindow[j].At)
	})

	running := report.OpeningBalance
	for _, e := range inWindow {
		running += e.signed()
		if e.Type == domain.CashflowExpense {
			report.TotalExpense += e.Amount
		} else {
			report.TotalIncome += e.Amount
		}
		report.Entries = append(report.Entries, domain.CashflowEntry{
			Date:           e.At.In(loc),
			Type:           e.Type,
			Category:       e.Category,
			Description:    e.Description,
			Amount:         e.Amount,
			RunningBalance: running,
			SourceID:       e.SourceID,
		})
	}
	report.ClosingBalance = running
	report.Daily = bucketByDay(report.Entries, loc)
	return report
}

// bucketByDay expects entries in time order; each day's closing balance is
// the running balance after its last entry.
func bucketByDay(entries []domain.CashflowEntry, loc *time.Location) []domain.DailyCashflow {
	days := make([]domain.DailyCashflow, 0)
	for _, e := range entries {
		key := e.Date.In(loc).Format("2006-01-02")
		if len(days) == 0 || days[len(days)-1].Date != key {
			days = append(days, domain.DailyCashflow{Date: key})
		}
		day := &days[len(days)-1]
		if e.Type == domain.CashflowExpense {
			day.Expense += e.Amount
		} else {
			day.Income += e.Amount
		}
		day.Net = day.Income - day.Expense
		day.ClosingBalance = e.RunningBalance
	}
	return days
}
