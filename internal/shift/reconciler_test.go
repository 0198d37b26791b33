package shift

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/store"
	"kasirinaja/ledger/internal/store/memory"
)

var wib = time.FixedZone("WIB", 7*60*60)

func newTestReconciler(t *testing.T, s *memory.Store, at time.Time) (*Reconciler, *clock.Fixed) {
	t.Helper()
	clk := clock.NewFixed(at)
	return NewReconciler(s, clk, 5, nil, nil), clk
}

func sale(id string, cashierID string, method string, total int64, at time.Time) domain.SaleTransaction {
	return domain.SaleTransaction{
		ID:            id,
		Timestamp:     domain.TimestampOf(at),
		CashierID:     cashierID,
		PaymentMethod: method,
		Status:        domain.TxStatusCompleted,
		Total:         domain.NumberOf(float64(total)),
		Items: []domain.LineItem{
			{ProductID: "P1", Quantity: domain.NumberOf(1), UnitPrice: domain.NumberOf(float64(total))},
		},
	}
}

func TestTypeForBoundaries(t *testing.T) {
	day := func(h, m int) time.Time { return time.Date(2024, 3, 5, h, m, 0, 0, wib) }

	assert.Equal(t, domain.ShiftMalam, TypeFor(day(5, 59)))
	assert.Equal(t, domain.ShiftPagi, TypeFor(day(6, 0)))
	assert.Equal(t, domain.ShiftPagi, TypeFor(day(13, 59)))
	assert.Equal(t, domain.ShiftSiang, TypeFor(day(14, 0)))
	assert.Equal(t, domain.ShiftSiang, TypeFor(day(21, 59)))
	assert.Equal(t, domain.ShiftMalam, TypeFor(day(22, 0)))
	assert.Equal(t, domain.ShiftMalam, TypeFor(day(0, 0)))
}

func TestShiftScenarioShortfall(t *testing.T) {
	ctx := context.Background()
	opened := time.Date(2024, 3, 5, 7, 0, 0, 0, wib)
	s := memory.New()
	rec, clk := newTestReconciler(t, s, opened)

	shift, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u1", CashierName: "Kasir A", StartingCash: 100000})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftPagi, shift.ShiftType)
	assert.Equal(t, domain.ShiftStatusActive, shift.Status)
	assert.Nil(t, shift.EndTime)

	tagged := sale("tx-2", "u1", domain.PaymentCash, 100000, opened.Add(2*time.Hour))
	tagged.ShiftID = shift.ID
	otherShift := sale("tx-x", "u1", domain.PaymentCash, 70000, opened.Add(2*time.Hour))
	otherShift.ShiftID = "shift-elsewhere"
	pending := sale("tx-p", "u1", domain.PaymentCash, 5000, opened.Add(3*time.Hour))
	pending.Status = domain.TxStatusPending

	require.NoError(t, s.Put(store.SaleTransactions,
		sale("tx-before", "u1", domain.PaymentCash, 99000, opened.Add(-time.Minute)),
		sale("tx-1", "u1", domain.PaymentCash, 150000, opened.Add(time.Hour)),
		tagged,
		otherShift,
		pending,
		sale("tx-qris", "u1", domain.PaymentQRIS, 50000, opened.Add(time.Hour)),
		sale("tx-other-cashier", "u2", domain.PaymentCash, 80000, opened.Add(time.Hour)),
	))

	clk.Set(opened.Add(7 * time.Hour))
	closed, err := rec.CloseShift(ctx, shift.ID, 349000)
	require.NoError(t, err)

	assert.Equal(t, domain.ShiftStatusClosed, closed.Status)
	require.NotNil(t, closed.ExpectedCash)
	require.NotNil(t, closed.Difference)
	require.NotNil(t, closed.EndingCash)
	require.NotNil(t, closed.EndTime)
	assert.Equal(t, int64(350000), *closed.ExpectedCash)
	assert.Equal(t, int64(-1000), *closed.Difference)
	assert.Equal(t, int64(349000), *closed.EndingCash)
	assert.Equal(t, opened.Add(7*time.Hour).UnixMilli(), *closed.EndTime)

	stored, err := store.Load[domain.Shift](ctx, s, store.Shifts)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, closed, stored[0])

	active, err := rec.ActiveShifts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCloseArithmeticHolds(t *testing.T) {
	cases := []struct{ starting, sales, actual int64 }{
		{0, 0, 0},
		{100000, 250000, 349000},
		{50000, 0, 60000},
		{250000, 1234567, 1484567},
	}
	for _, c := range cases {
		closed, err := Close(domain.Shift{ID: "s", StartingCash: c.starting, Status: domain.ShiftStatusActive}, c.actual, c.sales, time.Now())
		require.NoError(t, err)
		assert.Equal(t, c.actual-(c.starting+c.sales), *closed.Difference)
		assert.Equal(t, c.starting+c.sales, *closed.ExpectedCash)
	}
}

func TestCloseRejectsClosedShift(t *testing.T) {
	_, err := Close(domain.Shift{ID: "s", Status: domain.ShiftStatusClosed}, 0, 0, time.Now())
	assert.ErrorIs(t, err, domain.ErrShiftClosed)

	_, err = Close(domain.Shift{ID: "s", Status: domain.ShiftStatusActive}, -1, 0, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestOneActiveShiftPerCashier(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec, clk := newTestReconciler(t, s, time.Date(2024, 3, 5, 15, 0, 0, 0, wib))

	first, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u1", CashierName: "Kasir A", StartingCash: 50000})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftSiang, first.ShiftType)

	_, err = rec.OpenShift(ctx, OpenRequest{CashierID: "u1", CashierName: "Kasir A", StartingCash: 10000})
	assert.ErrorIs(t, err, domain.ErrShiftAlreadyActive)

	other, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u2", CashierName: "Kasir B"})
	require.NoError(t, err)

	current, err := rec.ActiveShiftFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	clk.Advance(time.Hour)
	_, err = rec.CloseShift(ctx, first.ID, 50000)
	require.NoError(t, err)

	_, err = rec.ActiveShiftFor(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	again, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u1", CashierName: "Kasir A", StartingCash: 0})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, again.ID)

	active, err := rec.ActiveShifts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, other.ID, active[0].ID)

	index, err := store.Load[domain.ActiveShiftRef](ctx, s, store.ActiveShifts)
	require.NoError(t, err)
	assert.Equal(t, []domain.ActiveShiftRef{
		{CashierID: "u1", ShiftID: again.ID},
		{CashierID: "u2", ShiftID: other.ID},
	}, index)
}

func TestLegacyActiveShiftBlocksOpenWithoutIndex(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.PutRaw(store.Shifts, `{"id":"shift-old","cashierId":"u1","cashierName":"Kasir A","shiftType":"pagi",
		"startTime":1709600000000,"startingCash":50000,"status":"active","terminal":"T1"}`)
	rec, _ := newTestReconciler(t, s, time.Date(2024, 3, 5, 9, 0, 0, 0, wib))

	_, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u1", StartingCash: 0})
	assert.ErrorIs(t, err, domain.ErrShiftAlreadyActive)

	closed, err := rec.CloseShift(ctx, "shift-old", 50000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), *closed.Difference)

	raw, err := s.Read(ctx, store.Shifts)
	require.NoError(t, err)
	assert.Contains(t, string(raw.Records[0]), `"terminal":"T1"`)
}

func TestCloseShiftErrors(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec, _ := newTestReconciler(t, s, time.Date(2024, 3, 5, 9, 0, 0, 0, wib))

	_, err := rec.CloseShift(ctx, "shift-missing", 1000)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	shift, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u1", StartingCash: 1000})
	require.NoError(t, err)
	_, err = rec.CloseShift(ctx, shift.ID, 1000)
	require.NoError(t, err)

	_, err = rec.CloseShift(ctx, shift.ID, 1000)
	assert.ErrorIs(t, err, domain.ErrShiftClosed)
}

func TestOpenShiftValidatesInput(t *testing.T) {
	ctx := context.Background()
	rec, _ := newTestReconciler(t, memory.New(), time.Now())

	_, err := rec.OpenShift(ctx, OpenRequest{CashierID: " ", StartingCash: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = rec.OpenShift(ctx, OpenRequest{CashierID: "u1", StartingCash: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSummaryTotalsClosedShifts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	day := time.Date(2024, 3, 5, 7, 0, 0, 0, wib)
	rec, clk := newTestReconciler(t, s, day)

	a, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u1", StartingCash: 100000})
	require.NoError(t, err)
	b, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u2", StartingCash: 50000})
	require.NoError(t, err)
	_, err = rec.OpenShift(ctx, OpenRequest{CashierID: "u3", StartingCash: 20000})
	require.NoError(t, err)

	clk.Advance(6 * time.Hour)
	_, err = rec.CloseShift(ctx, a.ID, 99000)
	require.NoError(t, err)
	_, err = rec.CloseShift(ctx, b.ID, 52500)
	require.NoError(t, err)

	summary, err := rec.Summary(ctx, domain.Today(day))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ClosedShifts)
	assert.Equal(t, 1, summary.ActiveShifts)
	assert.Equal(t, int64(150000), summary.ExpectedCash)
	assert.Equal(t, int64(151500), summary.ActualCash)
	assert.Equal(t, int64(1000), summary.Shortfall)
	assert.Equal(t, int64(2500), summary.Overage)
	assert.Equal(t, int64(1500), summary.NetDifference)
	assert.Len(t, summary.Shifts, 3)
}

func TestShiftWrittenByAnotherFlowJoinsIndex(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec, _ := newTestReconciler(t, s, time.Date(2024, 3, 5, 9, 0, 0, 0, wib))

	_, err := rec.OpenShift(ctx, OpenRequest{CashierID: "u1", StartingCash: 100000})
	require.NoError(t, err)
	require.NoError(t, s.Put(store.Shifts, domain.Shift{
		ID:           "shift-mobile",
		CashierID:    "u2",
		ShiftType:    domain.ShiftPagi,
		StartTime:    time.Date(2024, 3, 5, 8, 0, 0, 0, wib).UnixMilli(),
		StartingCash: 50000,
		Status:       domain.ShiftStatusActive,
	}))

	active, err := rec.ActiveShifts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "shift-mobile", active[0].ID)

	current, err := rec.ActiveShiftFor(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "shift-mobile", current.ID)

	_, err = rec.OpenShift(ctx, OpenRequest{CashierID: "u2", StartingCash: 0})
	assert.ErrorIs(t, err, domain.ErrShiftAlreadyActive)

	_, err = rec.CloseShift(ctx, "shift-mobile", 50000)
	require.NoError(t, err)
	index, err := store.Load[domain.ActiveShiftRef](ctx, s, store.ActiveShifts)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, "u1", index[0].CashierID)
}

func TestShiftNumbersDecodeLoosely(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.PutRaw(store.Shifts,
		`{"id":"shift-str","cashierId":"u1","startTime":"1709600000000","startingCash":"75000","endTime":null,"status":"active"}`,
		`{"id":"shift-bad","cashierId":"u2","startTime":"pagi tadi","startingCash":0,"status":"active"}`,
	)
	rec, _ := newTestReconciler(t, s, time.UnixMilli(1709600000000).Add(4*time.Hour).In(wib))

	closed, err := rec.CloseShift(ctx, "shift-str", 75000)
	require.NoError(t, err)
	assert.Equal(t, int64(1709600000000), closed.StartTime)
	assert.Equal(t, int64(75000), *closed.ExpectedCash)
	assert.Equal(t, int64(0), *closed.Difference)

	_, err = rec.CloseShift(ctx, "shift-bad", 0)
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
