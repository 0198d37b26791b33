package cashflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/shift"
	"kasirinaja/ledger/internal/store"
	"kasirinaja/ledger/internal/validation"
)

const (
	CategorySales       = "sales"
	CategoryShiftFloat  = "shift_float"
	CategoryOperational = "operational"
	CategoryPurchase    = "purchase"
)

// Reconstructor gathers every cash source from the store on each call;
// nothing is cached between calls.
type Reconstructor struct {
	store      store.EventStore
	clock      clock.Clock
	sales      *validation.Service
	reconciler *shift.Reconciler
	logger     *zap.Logger
}

func NewReconstructor(es store.EventStore, clk clock.Clock, sales *validation.Service, reconciler *shift.Reconciler, logger *zap.Logger) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{
		store:      es,
		clock:      clk,
		sales:      sales,
		reconciler: reconciler,
		logger:     logger.Named("cashflow"),
	}
}

func (r *Reconstructor) Today(ctx context.Context) (domain.CashflowReport, error) {
	return r.Build(ctx, domain.Today(r.now()))
}

func (r *Reconstructor) Last(ctx context.Context, days int) (domain.CashflowReport, error) {
	return r.Build(ctx, domain.Last(r.now(), days))
}

func (r *Reconstructor) Build(ctx context.Context, w domain.Window) (domain.CashflowReport, error) {
	events, quality, err := r.Gather(ctx, w)
	if err != nil {
		return domain.CashflowReport{}, err
	}
	report := Reconstruct(events, w, r.clock.Location())
	report.Quality = quality
	r.sales.Observe("cashflow", quality)

	if report.ClosingBalance < report.OpeningBalance {
		r.logger.Debug("cash position fell over window",
			zap.Time("from", w.From),
			zap.Time("to", w.To),
			zap.Int64("opening", report.OpeningBalance),
			zap.Int64("closing", report.ClosingBalance),
		)
	}
	return report, nil
}

// Gather returns events from all four sources in source order: completed
// reportable sales, floats of shifts still open, operational costs, then
// purchases. Quality covers the sales inside w and every cost or purchase
// record that could not be dated or valued.
func (r *Reconstructor) Gather(ctx context.Context, w domain.Window) ([]Event, domain.DataQuality, error) {
	loc := r.clock.Location()

	snap, err := r.sales.Snapshot(ctx)
	if err != nil {
		return nil, domain.DataQuality{}, err
	}
	quality := snap.Narrow(w).Quality

	active, err := r.reconciler.ActiveShifts(ctx)
	if err != nil {
		return nil, domain.DataQuality{}, err
	}
	costs, err := store.Load[domain.OperationalCost](ctx, r.store, store.OperationalCosts)
	if err != nil {
		return nil, domain.DataQuality{}, err
	}
	purchases, err := store.Load[domain.Purchase](ctx, r.store, store.Purchases)
	if err != nil {
		return nil, domain.DataQuality{}, err
	}

	events := make([]Event, 0, len(snap.Sales)+len(active)+len(costs)+len(purchases))
	for _, tx := range validation.SelectReportable(snap.Sales) {
		if !validation.IsCompleted(tx) {
			continue
		}
		events = append(events, Event{
			At:          tx.Timestamp.Time(),
			Type:        domain.CashflowIncome,
			Category:    CategorySales,
			Description: fmt.Sprintf("Penjualan #%s (%s)", tx.ID, paymentLabel(tx.PaymentMethod)),
			Amount:      tx.Total.Int64(),
			SourceID:    tx.ID,
		})
	}

	for _, s := range active {
		if s.StartingCash <= 0 {
			continue
		}
		events = append(events, Event{
			At:          time.UnixMilli(s.StartTime),
			Type:        domain.CashflowIncome,
			Category:    CategoryShiftFloat,
			Description: fmt.Sprintf("Modal awal shift %s", cashierLabel(s)),
			Amount:      s.StartingCash,
			SourceID:    s.ID,
		})
	}

	for _, c := range costs {
		at, ok := c.Date.In(loc)
		if !ok || !c.Amount.Positive() {
			quality.InvalidCostRecords++
			continue
		}
		category := strings.TrimSpace(c.Category)
		if category == "" {
			category = CategoryOperational
		}
		description := strings.TrimSpace(c.Description)
		if description == "" {
			description = "Biaya operasional"
		}
		events = append(events, Event{
			At:          at,
			Type:        domain.CashflowExpense,
			Category:    category,
			Description: description,
			Amount:      c.Amount.Int64(),
			SourceID:    c.ID,
		})
	}

	for _, p := range purchases {
		at, ok := p.PurchaseDate.In(loc)
		amount, valued := PurchaseTotal(p)
		if !ok || !valued {
			quality.InvalidPurchaseRecords++
			continue
		}
		supplier := strings.TrimSpace(p.Supplier)
		if supplier == "" {
			supplier = "supplier"
		}
		events = append(events, Event{
			At:          at,
			Type:        domain.CashflowExpense,
			Category:    CategoryPurchase,
			Description: fmt.Sprintf("Pembelian dari %s", supplier),
			Amount:      amount,
			SourceID:    p.ID,
		})
	}

	return events, quality, nil
}

// PurchaseTotal prefers the recorded totalCost. Without one it rebuilds the
// total from item subtotals (or quantity times cost price) plus shipping and
// other costs.
func PurchaseTotal(p domain.Purchase) (int64, bool) {
	if p.TotalCost.Positive() {
		return p.TotalCost.Int64(), true
	}

	total := decimal.Zero
	for _, item := range p.Items {
		switch {
		case item.Subtotal.Finite() && item.Subtotal.Value >= 0:
			total = total.Add(decimal.NewFromFloat(item.Subtotal.Value))
		case item.Quantity.Finite() && item.CostPrice.Finite():
			total = total.Add(decimal.NewFromFloat(item.Quantity.Value).Mul(decimal.NewFromFloat(item.CostPrice.Value)))
		}
	}
	if p.ShippingCost.Finite() {
		total = total.Add(decimal.NewFromFloat(p.ShippingCost.Value))
	}
	if p.OtherCosts.Finite() {
		total = total.Add(decimal.NewFromFloat(p.OtherCosts.Value))
	}

	amount := total.Round(0).IntPart()
	return amount, amount > 0
}

func (r *Reconstructor) now() time.Time {
	return r.clock.Now().In(r.clock.Location())
}

func paymentLabel(method string) string {
	if strings.TrimSpace(method) == "" {
		return "unknown"
	}
	return method
}

func cashierLabel(s domain.Shift) string {
	if name := strings.TrimSpace(s.CashierName); name != "" {
		return name
	}
	return s.CashierID
}
