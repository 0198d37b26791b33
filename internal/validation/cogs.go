package validation

import (
	"github.com/shopspring/decimal"

	"kasirinaja/ledger/internal/domain"
)

type LineCost struct {
	ProductID   string `json:"product_id"`
	Quantity    int64  `json:"quantity"`
	UnitCost    int64  `json:"unit_cost"`
	Source      string `json:"source"`
	IsEstimated bool   `json:"is_estimated"`
	Amount      int64  `json:"amount"`
}

type COGS struct {
	Amount        int64      `json:"amount"`
	HasEstimation bool       `json:"has_estimation"`
	Lines         []LineCost `json:"lines"`
}

// ComputeCOGS sums resolved unit cost times quantity over every line of tx.
func ComputeCOGS(tx domain.SaleTransaction, catalog Catalog) COGS {
	out := COGS{Lines: make([]LineCost, 0, len(tx.Items))}
	for _, item := range tx.Items {
		cost := ResolveUnitCost(item, catalog)
		line := LineCost{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity.Int64(),
			UnitCost:    cost.Cost,
			Source:      cost.Source,
			IsEstimated: cost.IsEstimated,
			Amount:      multiply(cost.Cost, item.Quantity),
		}
		out.Amount += line.Amount
		out.HasEstimation = out.HasEstimation || cost.IsEstimated
		out.Lines = append(out.Lines, line)
	}
	return out
}

// BuildView resolves display names and costs for tx and records whether it
// may enter financial aggregates.
func BuildView(tx domain.SaleTransaction, catalog Catalog, users Directory) domain.ValidatedTransactionView {
	cashier := ResolveCashierName(tx, users)
	cogs := ComputeCOGS(tx, catalog)
	reason := ExclusionReason(tx)

	view := domain.ValidatedTransactionView{
		Transaction:    tx,
		CashierName:    cashier.Name,
		CashierWarning: cashier.Warning,
		Lines:          make([]domain.LineView, 0, len(tx.Items)),
		COGS:           cogs.Amount,
		HasEstimation:  cogs.HasEstimation,
		Valid:          reason == "",
		InvalidReason:  reason,
	}
	for i, item := range tx.Items {
		name := ResolveProductName(item, catalog)
		cost := cogs.Lines[i]
		view.Lines = append(view.Lines, domain.LineView{
			ProductID:   item.ProductID,
			Name:        name.Name,
			NameWarning: name.Warning,
			Quantity:    cost.Quantity,
			UnitPrice:   item.UnitPrice.Int64(),
			UnitCost:    cost.UnitCost,
			CostSource:  cost.Source,
			IsEstimated: cost.IsEstimated,
			LineCOGS:    cost.Amount,
			LineRevenue: multiply(item.UnitPrice.Int64(), item.Quantity),
		})
	}
	return view
}

// Audit counts how much of txs had to be excluded or resolved through a
// fallback, so reports can state how far their figures can be trusted.
func Audit(txs []domain.SaleTransaction, catalog Catalog, users Directory) domain.DataQuality {
	q := domain.DataQuality{
		TotalTransactions: len(txs),
		ExcludedByReason:  map[string]int{},
	}
	for _, tx := range txs {
		if reason := ExclusionReason(tx); reason != "" {
			q.ExcludedTransactions++
			q.ExcludedByReason[reason]++
			continue
		}
		q.ReportableTransactions++

		if ResolveCashierName(tx, users).IsFallback() {
			q.CashierFallbacks++
		}
		for _, item := range tx.Items {
			if ResolveProductName(item, catalog).IsFallback() {
				q.NameFallbacks++
			}
			switch cost := ResolveUnitCost(item, catalog); cost.Source {
			case SourceEstimated:
				q.EstimatedCostLines++
			case SourceNone:
				q.ZeroCostLines++
			}
		}
	}
	return q
}

func multiply(unit int64, quantity domain.Number) int64 {
	if !quantity.Finite() {
		return 0
	}
	return decimal.NewFromInt(unit).Mul(decimal.NewFromFloat(quantity.Value)).Round(0).IntPart()
}
