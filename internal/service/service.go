package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kasirinaja/ledger/internal/cashflow"
	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/metrics"
	"kasirinaja/ledger/internal/report"
	"kasirinaja/ledger/internal/shift"
	"kasirinaja/ledger/internal/stock"
	"kasirinaja/ledger/internal/store"
	"kasirinaja/ledger/internal/validation"
)

type Options struct {
	CommitRetries     int
	LowStockThreshold int
}

// Service wires the four engine components over one store and exposes them
// with request-level parsing and defaults.
type Service struct {
	clock    clock.Clock
	sales    *validation.Service
	shifts   *shift.Reconciler
	stock    *stock.Ledger
	cashflow *cashflow.Reconstructor
	reports  *report.Service
}

func New(es store.EventStore, clk clock.Clock, opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CommitRetries < 1 {
		opts.CommitRetries = 5
	}

	sales := validation.NewService(es, logger, m)
	shifts := shift.NewReconciler(es, clk, opts.CommitRetries, logger, m)
	flow := cashflow.NewReconstructor(es, clk, sales, shifts, logger)

	return &Service{
		clock:    clk,
		sales:    sales,
		shifts:   shifts,
		stock:    stock.NewLedger(es, clk, opts.CommitRetries, opts.LowStockThreshold, logger, m),
		cashflow: flow,
		reports:  report.New(sales, flow),
	}
}

func (s *Service) window(from string, to string) (domain.Window, error) {
	return domain.ParseWindow(from, to, s.clock.Now().In(s.clock.Location()))
}

func (s *Service) CashflowReport(ctx context.Context, from string, to string) (domain.CashflowReport, error) {
	w, err := s.window(from, to)
	if err != nil {
		return domain.CashflowReport{}, err
	}
	return s.cashflow.Build(ctx, w)
}

func (s *Service) SalesReport(ctx context.Context, from string, to string) (domain.SalesReport, error) {
	w, err := s.window(from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}
	return s.sales.SalesReport(ctx, w)
}

func (s *Service) ProfitReport(ctx context.Context, from string, to string) (domain.ProfitReport, error) {
	w, err := s.window(from, to)
	if err != nil {
		return domain.ProfitReport{}, err
	}
	return s.reports.Profit(ctx, w)
}

func (s *Service) ShiftSummary(ctx context.Context, from string, to string) (domain.ShiftSummary, error) {
	w, err := s.window(from, to)
	if err != nil {
		return domain.ShiftSummary{}, err
	}
	return s.shifts.Summary(ctx, w)
}

func (s *Service) OpenShift(ctx context.Context, req shift.OpenRequest) (domain.Shift, error) {
	return s.shifts.OpenShift(ctx, req)
}

func (s *Service) CloseShift(ctx context.Context, shiftID string, actualCash int64) (domain.Shift, error) {
	return s.shifts.CloseShift(ctx, shiftID, actualCash)
}

// ActiveShifts returns every open shift, or only the cashier's when one is
// named.
func (s *Service) ActiveShifts(ctx context.Context, cashierID string) ([]domain.Shift, error) {
	cashierID = strings.TrimSpace(cashierID)
	if cashierID == "" {
		return s.shifts.ActiveShifts(ctx)
	}
	current, err := s.shifts.ActiveShiftFor(ctx, cashierID)
	if err != nil {
		return nil, err
	}
	return []domain.Shift{current}, nil
}

func (s *Service) RecordMovement(ctx context.Context, req stock.MovementRequest) (domain.StockMovement, error) {
	return s.stock.RecordMovement(ctx, req)
}

func (s *Service) AdjustStock(ctx context.Context, productID string, delta int, changeType string, reason string, actor string) (domain.StockMovement, error) {
	if delta == 0 {
		return domain.StockMovement{}, fmt.Errorf("%w: delta cannot be zero", domain.ErrInvalidInput)
	}
	return s.stock.ApplyDelta(ctx, productID, delta, changeType, reason, actor)
}

type StockHistory struct {
	ProductID string                 `json:"product_id"`
	Replayed  int                    `json:"replayed_stock"`
	Movements []domain.StockMovement `json:"movements"`
}

func (s *Service) StockHistory(ctx context.Context, productID string) (StockHistory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockHistory{}, fmt.Errorf("%w: product id is required", domain.ErrInvalidInput)
	}
	history, err := s.stock.HistoryFor(ctx, productID)
	if err != nil {
		return StockHistory{}, err
	}
	return StockHistory{ProductID: productID, Replayed: stock.Replay(history), Movements: history}, nil
}

func (s *Service) LowStock(ctx context.Context, threshold int, branchID string) ([]domain.Product, error) {
	return s.stock.LowStock(ctx, threshold, branchID)
}

func (s *Service) OutOfStock(ctx context.Context, branchID string) ([]domain.Product, error) {
	return s.stock.OutOfStock(ctx, branchID)
}

func (s *Service) VerifyStock(ctx context.Context) ([]domain.StockDrift, error) {
	return s.stock.Verify(ctx)
}
