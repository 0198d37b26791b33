package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/shift"
	"kasirinaja/ledger/internal/stock"
	"kasirinaja/ledger/internal/store"
	"kasirinaja/ledger/internal/store/memory"
)

var wib = time.FixedZone("WIB", 7*60*60)

func newTestService(now time.Time) (*Service, *memory.Store, *clock.Fixed) {
	clk := clock.NewFixed(now)
	repo := memory.NewSeeded(clk)
	return New(repo, clk, Options{CommitRetries: 3}, nil, nil), repo, clk
}

func TestSeededCatalogVerifiesClean(t *testing.T) {
	svc, _, _ := newTestService(time.Now().In(wib))

	drifts, err := svc.VerifyStock(context.Background())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("expected no drift on seeded catalog, got %+v", drifts)
	}
}

func TestAdjustStockThenHistoryReplays(t *testing.T) {
	svc, _, _ := newTestService(time.Now().In(wib))
	ctx := context.Background()

	if _, err := svc.AdjustStock(ctx, "SKU-MIE-01", -3, domain.ChangeSale, "checkout", "Kasir A"); err != nil {
		t.Fatalf("sale adjustment failed: %v", err)
	}
	if _, err := svc.RecordMovement(ctx, stock.MovementRequest{ProductID: "SKU-MIE-01", NewQuantity: 140, ChangeType: domain.ChangeRestock, Actor: "admin"}); err != nil {
		t.Fatalf("restock failed: %v", err)
	}

	history, err := svc.StockHistory(ctx, "SKU-MIE-01")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if history.Replayed != 140 {
		t.Fatalf("expected replay to reach 140, got %d", history.Replayed)
	}
	if len(history.Movements) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(history.Movements))
	}
}

func TestAdjustStockRejectsZeroDelta(t *testing.T) {
	svc, _, _ := newTestService(time.Now().In(wib))

	_, err := svc.AdjustStock(context.Background(), "SKU-MIE-01", 0, domain.ChangeAdjustment, "", "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestShiftFlowFeedsCashflow(t *testing.T) {
	now := time.Date(2024, 3, 5, 8, 0, 0, 0, wib)
	svc, repo, clk := newTestService(now)
	ctx := context.Background()

	opened, err := svc.OpenShift(ctx, shift.OpenRequest{CashierID: "user-kasir-a", CashierName: "Kasir A", StartingCash: 100000})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	active, err := svc.ActiveShifts(ctx, "user-kasir-a")
	if err != nil || len(active) != 1 || active[0].ID != opened.ID {
		t.Fatalf("expected active shift %s, got %+v (err %v)", opened.ID, active, err)
	}

	if err := repo.Put(store.SaleTransactions, domain.SaleTransaction{
		ID:            "tx-1",
		Timestamp:     domain.TimestampOf(now.Add(time.Hour)),
		CashierID:     "user-kasir-a",
		ShiftID:       opened.ID,
		PaymentMethod: domain.PaymentCash,
		Status:        domain.TxStatusCompleted,
		Total:         domain.NumberOf(7000),
		Items: []domain.LineItem{
			{ProductID: "SKU-MIE-01", Name: "Mie Goreng Instan", Quantity: domain.NumberOf(2), UnitPrice: domain.NumberOf(3500)},
		},
	}); err != nil {
		t.Fatalf("seed sale: %v", err)
	}

	flow, err := svc.CashflowReport(ctx, "2024-03-05", "2024-03-05")
	if err != nil {
		t.Fatalf("cashflow failed: %v", err)
	}
	if flow.TotalIncome != 107000 {
		t.Fatalf("expected float plus sale as income, got %d", flow.TotalIncome)
	}

	clk.Advance(8 * time.Hour)
	closed, err := svc.CloseShift(ctx, opened.ID, 107000)
	if err != nil {
		t.Fatalf("close shift failed: %v", err)
	}
	if *closed.Difference != 0 {
		t.Fatalf("expected balanced drawer, got difference %d", *closed.Difference)
	}

	flow, err = svc.CashflowReport(ctx, "2024-03-05", "2024-03-05")
	if err != nil {
		t.Fatalf("cashflow failed: %v", err)
	}
	if flow.TotalIncome != 7000 {
		t.Fatalf("closed shift float must leave the ledger, got income %d", flow.TotalIncome)
	}

	summary, err := svc.ShiftSummary(ctx, "2024-03-05", "")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.ClosedShifts != 1 || summary.ExpectedCash != 107000 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestReportsRejectBadWindow(t *testing.T) {
	svc, _, _ := newTestService(time.Now().In(wib))

	_, err := svc.SalesReport(context.Background(), "2024-03-10", "2024-03-01")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for inverted window, got %v", err)
	}
}
