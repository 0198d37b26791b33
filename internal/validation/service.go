package validation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/metrics"
	"kasirinaja/ledger/internal/store"
)

type Service struct {
	store   store.EventStore
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewService(es store.EventStore, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: es, logger: logger.Named("validation"), metrics: m}
}

// Snapshot is one read of the collections sales reporting depends on.
// Malformed counts sale records that could not be decoded at all.
type Snapshot struct {
	Sales     []domain.SaleTransaction
	Malformed int
	Catalog   Catalog
	Users     Directory
}

func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	salesCol, err := s.store.Read(ctx, store.SaleTransactions)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", store.SaleTransactions, err)
	}
	products, err := store.Load[domain.Product](ctx, s.store, store.Products)
	if err != nil {
		return Snapshot{}, err
	}
	users, err := store.Load[domain.User](ctx, s.store, store.Users)
	if err != nil {
		return Snapshot{}, err
	}

	sales, malformed := store.Decode[domain.SaleTransaction](salesCol)
	return Snapshot{
		Sales:     sales,
		Malformed: malformed,
		Catalog:   NewCatalog(products),
		Users:     NewDirectory(users),
	}, nil
}

// Ledger narrows a snapshot to a window. Considered holds the in-window
// sales plus those whose timestamp cannot place them in any window;
// Reportable is the subset that may enter financial aggregates.
type Ledger struct {
	Window     domain.Window
	Catalog    Catalog
	Users      Directory
	Considered []domain.SaleTransaction
	Reportable []domain.SaleTransaction
	Quality    domain.DataQuality
}

func (snap Snapshot) Narrow(w domain.Window) Ledger {
	considered := InWindow(snap.Sales, w)
	ledger := Ledger{
		Window:     w,
		Catalog:    snap.Catalog,
		Users:      snap.Users,
		Considered: considered,
		Reportable: SelectReportable(considered),
	}
	ledger.Quality = Audit(considered, snap.Catalog, snap.Users)
	if snap.Malformed > 0 {
		ledger.Quality.TotalTransactions += snap.Malformed
		ledger.Quality.ExcludedTransactions += snap.Malformed
		ledger.Quality.ExcludedByReason[ReasonMalformedRecord] += snap.Malformed
	}
	return ledger
}

func (s *Service) Load(ctx context.Context, w domain.Window) (Ledger, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Ledger{}, err
	}
	return snap.Narrow(w), nil
}

// InWindow keeps sales dated inside w plus those with no usable timestamp,
// which belong to no window but still count against data quality.
func InWindow(txs []domain.SaleTransaction, w domain.Window) []domain.SaleTransaction {
	out := make([]domain.SaleTransaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Timestamp.Valid() || w.ContainsMillis(tx.Timestamp.Millis) {
			out = append(out, tx)
		}
	}
	return out
}

func (s *Service) SalesReport(ctx context.Context, w domain.Window) (domain.SalesReport, error) {
	ledger, err := s.Load(ctx, w)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{
		From:         w.From,
		To:           w.To,
		ByPayment:    map[string]int64{},
		Transactions: make([]domain.ValidatedTransactionView, 0, len(ledger.Considered)),
		Quality:      ledger.Quality,
	}
	for _, tx := range ledger.Considered {
		view := BuildView(tx, ledger.Catalog, ledger.Users)
		report.Transactions = append(report.Transactions, view)
		if !view.Valid || !IsCompleted(tx) {
			continue
		}
		report.Revenue += tx.Total.Int64()
		report.COGS += view.COGS
		report.HasEstimation = report.HasEstimation || view.HasEstimation
		report.ByPayment[paymentKey(tx.PaymentMethod)] += tx.Total.Int64()
	}
	report.GrossProfit = report.Revenue - report.COGS

	s.Observe("sales", report.Quality)
	return report, nil
}

// Observe publishes the quality of one report as gauges and logs one warning
// line when any record needed a fallback or was excluded.
func (s *Service) Observe(report string, q domain.DataQuality) {
	s.metrics.ReportQuality(report, q)

	if q.ExcludedTransactions == 0 && q.EstimatedCostLines == 0 && q.ZeroCostLines == 0 &&
		q.NameFallbacks == 0 && q.CashierFallbacks == 0 &&
		q.InvalidCostRecords == 0 && q.InvalidPurchaseRecords == 0 {
		return
	}
	s.logger.Warn("report data needed fallbacks",
		zap.String("report", report),
		zap.Int("total", q.TotalTransactions),
		zap.Int("excluded", q.ExcludedTransactions),
		zap.Any("excluded_by_reason", q.ExcludedByReason),
		zap.Int("estimated_cost_lines", q.EstimatedCostLines),
		zap.Int("zero_cost_lines", q.ZeroCostLines),
		zap.Int("name_fallbacks", q.NameFallbacks),
		zap.Int("cashier_fallbacks", q.CashierFallbacks),
		zap.Int("invalid_cost_records", q.InvalidCostRecords),
		zap.Int("invalid_purchase_records", q.InvalidPurchaseRecords),
	)
}

func paymentKey(method string) string {
	if method == "" {
		return "unknown"
	}
	return method
}
