package report

import (
	"context"

	"kasirinaja/ledger/internal/cashflow"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/validation"
)

type Service struct {
	sales    *validation.Service
	cashflow *cashflow.Reconstructor
}

func New(sales *validation.Service, cashflow *cashflow.Reconstructor) *Service {
	return &Service{sales: sales, cashflow: cashflow}
}

// Profit combines gross profit from reportable completed sales with the
// window's expenses taken from the cashflow ledger.
func (s *Service) Profit(ctx context.Context, w domain.Window) (domain.ProfitReport, error) {
	flow, err := s.cashflow.Build(ctx, w)
	if err != nil {
		return domain.ProfitReport{}, err
	}
	ledger, err := s.sales.Load(ctx, w)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	report := domain.ProfitReport{
		From:    w.From,
		To:      w.To,
		Quality: flow.Quality,
	}
	for _, tx := range ledger.Reportable {
		if !validation.IsCompleted(tx) {
			continue
		}
		cogs := validation.ComputeCOGS(tx, ledger.Catalog)
		report.Revenue += tx.Total.Int64()
		report.COGS += cogs.Amount
		report.COGSEstimated = report.COGSEstimated || cogs.HasEstimation
	}
	for _, e := range flow.Entries {
		if e.Type != domain.CashflowExpense {
			continue
		}
		if e.Category == cashflow.CategoryPurchase {
			report.Purchases += e.Amount
		} else {
			report.OperationalCosts += e.Amount
		}
	}

	report.GrossProfit = report.Revenue - report.COGS
	report.NetProfit = report.GrossProfit - report.OperationalCosts
	report.NetCashflow = flow.ClosingBalance - flow.OpeningBalance
	return report, nil
}
