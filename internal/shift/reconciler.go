package shift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/metrics"
	"kasirinaja/ledger/internal/store"
	"kasirinaja/ledger/internal/validation"
	"kasirinaja/ledger/internal/xid"
)

type OpenRequest struct {
	CashierID    string `json:"cashier_id"`
	CashierName  string `json:"cashier_name"`
	StartingCash int64  `json:"starting_cash"`
}

// Reconciler owns the cash drawer lifecycle: a shift is opened once, closed
// once, and never touched again. Each cashier has at most one active shift,
// tracked in the active-shifts index written together with the shift and
// merged with the shift records on every read.
type Reconciler struct {
	store   store.EventStore
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	retries int
	locks   *store.KeyedMutex
}

func NewReconciler(es store.EventStore, clk clock.Clock, retries int, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:   es,
		clock:   clk,
		logger:  logger.Named("shift"),
		metrics: m,
		retries: retries,
		locks:   store.NewKeyedMutex(),
	}
}

// TypeFor maps a local hour to its shift: pagi 06-14, siang 14-22, malam
// 22-06.
func TypeFor(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 6 && h < 14:
		return domain.ShiftPagi
	case h >= 14 && h < 22:
		return domain.ShiftSiang
	default:
		return domain.ShiftMalam
	}
}

func (r *Reconciler) OpenShift(ctx context.Context, req OpenRequest) (domain.Shift, error) {
	req.CashierID = strings.TrimSpace(req.CashierID)
	req.CashierName = strings.TrimSpace(req.CashierName)
	if req.CashierID == "" {
		return domain.Shift{}, fmt.Errorf("%w: cashier id is required", domain.ErrInvalidInput)
	}
	if req.StartingCash < 0 {
		return domain.Shift{}, fmt.Errorf("%w: starting cash cannot be negative", domain.ErrInvalidInput)
	}

	unlock := r.locks.Lock(req.CashierID)
	defer unlock()

	var opened domain.Shift
	err := store.WithRetry(ctx, r.retries, func() error {
		shifts, index, err := r.readShifts(ctx)
		if err != nil {
			return err
		}
		active := activeIndex(shifts, index)
		if current, ok := active[req.CashierID]; ok {
			return fmt.Errorf("%w: %s has shift %s open", domain.ErrShiftAlreadyActive, req.CashierID, current)
		}

		now := r.clock.Now().In(r.clock.Location())
		shift := domain.Shift{
			ID:           xid.New("shift"),
			CashierID:    req.CashierID,
			CashierName:  req.CashierName,
			ShiftType:    TypeFor(now),
			StartTime:    now.UnixMilli(),
			StartingCash: req.StartingCash,
			Status:       domain.ShiftStatusActive,
		}
		appendShift, err := shifts.Append(shift)
		if err != nil {
			return err
		}
		active[req.CashierID] = shift.ID
		indexWrite, err := writeIndex(index, active)
		if err != nil {
			return err
		}

		if err := r.commit(ctx, "open_shift", appendShift, indexWrite); err != nil {
			return err
		}
		opened = shift
		return nil
	})
	if err != nil {
		return domain.Shift{}, err
	}

	r.logger.Info("shift opened",
		zap.String("shift_id", opened.ID),
		zap.String("cashier_id", opened.CashierID),
		zap.String("shift_type", opened.ShiftType),
		zap.Int64("starting_cash", opened.StartingCash),
	)
	return opened, nil
}

// Close settles shift against the counted cash. It is pure: the caller
// supplies the cash sales and the closing instant.
func Close(shift domain.Shift, actualCash int64, cashSales int64, now time.Time) (domain.Shift, error) {
	if shift.Status == domain.ShiftStatusClosed {
		return domain.Shift{}, fmt.Errorf("%w: %s", domain.ErrShiftClosed, shift.ID)
	}
	if actualCash < 0 {
		return domain.Shift{}, fmt.Errorf("%w: counted cash cannot be negative", domain.ErrInvalidInput)
	}

	expected := shift.StartingCash + cashSales
	difference := actualCash - expected
	endTime := now.UnixMilli()

	closed := shift
	closed.EndTime = &endTime
	closed.EndingCash = &actualCash
	closed.ExpectedCash = &expected
	closed.Difference = &difference
	closed.Status = domain.ShiftStatusClosed
	return closed, nil
}

// CashSalesFor sums completed cash sales by the shift's cashier between its
// start and until. Sales tagged with another shift are left out.
func CashSalesFor(shift domain.Shift, sales []domain.SaleTransaction, until time.Time) int64 {
	untilMs := until.UnixMilli()
	var total int64
	for _, tx := range sales {
		if tx.CashierID != shift.CashierID {
			continue
		}
		if tx.ShiftID != "" && tx.ShiftID != shift.ID {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(tx.PaymentMethod), domain.PaymentCash) {
			continue
		}
		if !validation.IsReportable(tx) || !validation.IsCompleted(tx) {
			continue
		}
		if tx.Timestamp.Millis < shift.StartTime || tx.Timestamp.Millis > untilMs {
			continue
		}
		total += tx.Total.Int64()
	}
	return total
}

func (r *Reconciler) CloseShift(ctx context.Context, shiftID string, actualCash int64) (domain.Shift, error) {
	shiftID = strings.TrimSpace(shiftID)
	if shiftID == "" {
		return domain.Shift{}, fmt.Errorf("%w: shift id is required", domain.ErrInvalidInput)
	}

	target, err := r.findShift(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	unlock := r.locks.Lock(target.CashierID)
	defer unlock()

	var closed domain.Shift
	err = store.WithRetry(ctx, r.retries, func() error {
		shifts, index, err := r.readShifts(ctx)
		if err != nil {
			return err
		}
		idx, shift, err := findShift(shifts, shiftID)
		if err != nil {
			return err
		}
		sales, err := store.Load[domain.SaleTransaction](ctx, r.store, store.SaleTransactions)
		if err != nil {
			return err
		}

		now := r.clock.Now()
		result, err := Close(shift, actualCash, CashSalesFor(shift, sales, now), now)
		if err != nil {
			return err
		}

		patched, err := store.Patch(shifts.Records[idx], map[string]any{
			"endTime":      result.EndTime,
			"endingCash":   result.EndingCash,
			"expectedCash": result.ExpectedCash,
			"difference":   result.Difference,
			"status":       result.Status,
		})
		if err != nil {
			return fmt.Errorf("patch shift %s: %w", shiftID, err)
		}
		records := make([]json.RawMessage, len(shifts.Records))
		copy(records, shifts.Records)
		records[idx] = patched

		after := shifts
		after.Records = records
		indexWrite, err := writeIndex(index, activeIndex(after, index))
		if err != nil {
			return err
		}

		if err := r.commit(ctx, "close_shift", shifts.Replace(records), indexWrite); err != nil {
			return err
		}
		closed = result
		return nil
	})
	if err != nil {
		return domain.Shift{}, err
	}

	r.metrics.ShiftClosed(*closed.Difference)
	fields := []zap.Field{
		zap.String("shift_id", closed.ID),
		zap.String("cashier_id", closed.CashierID),
		zap.Int64("expected_cash", *closed.ExpectedCash),
		zap.Int64("actual_cash", *closed.EndingCash),
		zap.Int64("difference", *closed.Difference),
	}
	if *closed.Difference != 0 {
		r.logger.Warn("shift closed with cash difference", fields...)
	} else {
		r.logger.Info("shift closed", fields...)
	}
	return closed, nil
}

// ActiveShifts lists every shift whose record says it is still open, ordered
// by start time. Shifts written by other flows count as soon as they land in
// the shifts collection, whatever the index says.
func (r *Reconciler) ActiveShifts(ctx context.Context) ([]domain.Shift, error) {
	shifts, err := r.store.Read(ctx, store.Shifts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", store.Shifts, err)
	}

	decoded, _ := store.Decode[domain.Shift](shifts)
	out := make([]domain.Shift, 0)
	for _, s := range decoded {
		if s.Status == domain.ShiftStatusActive {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

// ActiveShiftFor returns the cashier's current shift as the merged index
// resolves it.
func (r *Reconciler) ActiveShiftFor(ctx context.Context, cashierID string) (domain.Shift, error) {
	shifts, index, err := r.readShifts(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	shiftID, ok := activeIndex(shifts, index)[cashierID]
	if !ok {
		return domain.Shift{}, fmt.Errorf("%w: no active shift for %s", domain.ErrNotFound, cashierID)
	}
	_, current, err := findShift(shifts, shiftID)
	return current, err
}

// Summary aggregates shifts that started inside w. Only closed shifts carry
// cash totals.
func (r *Reconciler) Summary(ctx context.Context, w domain.Window) (domain.ShiftSummary, error) {
	shifts, err := store.Load[domain.Shift](ctx, r.store, store.Shifts)
	if err != nil {
		return domain.ShiftSummary{}, err
	}

	summary := domain.ShiftSummary{From: w.From, To: w.To, Shifts: make([]domain.Shift, 0)}
	for _, s := range shifts {
		if !w.ContainsMillis(s.StartTime) {
			continue
		}
		summary.Shifts = append(summary.Shifts, s)
		if s.Status != domain.ShiftStatusClosed {
			summary.ActiveShifts++
			continue
		}
		summary.ClosedShifts++
		if s.ExpectedCash != nil {
			summary.ExpectedCash += *s.ExpectedCash
		}
		if s.EndingCash != nil {
			summary.ActualCash += *s.EndingCash
		}
		if s.Difference == nil {
			continue
		}
		summary.NetDifference += *s.Difference
		if *s.Difference < 0 {
			summary.Shortfall -= *s.Difference
		} else {
			summary.Overage += *s.Difference
		}
	}
	sort.SliceStable(summary.Shifts, func(i, j int) bool {
		return summary.Shifts[i].StartTime < summary.Shifts[j].StartTime
	})
	return summary, nil
}

func (r *Reconciler) readShifts(ctx context.Context) (store.Collection, store.Collection, error) {
	shifts, err := r.store.Read(ctx, store.Shifts)
	if err != nil {
		return store.Collection{}, store.Collection{}, fmt.Errorf("read %s: %w", store.Shifts, err)
	}
	index, err := r.store.Read(ctx, store.ActiveShifts)
	if err != nil {
		return store.Collection{}, store.Collection{}, fmt.Errorf("read %s: %w", store.ActiveShifts, err)
	}
	return shifts, index, nil
}

func (r *Reconciler) findShift(ctx context.Context, shiftID string) (domain.Shift, error) {
	shifts, err := r.store.Read(ctx, store.Shifts)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("read %s: %w", store.Shifts, err)
	}
	_, shift, err := findShift(shifts, shiftID)
	return shift, err
}

func (r *Reconciler) commit(ctx context.Context, operation string, writes ...store.Write) error {
	err := r.store.Commit(ctx, writes...)
	if errors.Is(err, store.ErrVersionConflict) {
		r.metrics.VersionConflict(operation)
	}
	return err
}

// findShift matches on the id alone, so a shift record that exists but cannot
// be decoded is reported as malformed rather than missing.
func findShift(shifts store.Collection, shiftID string) (int, domain.Shift, error) {
	for i, raw := range shifts.Records {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil || head.ID != shiftID {
			continue
		}
		var s domain.Shift
		if err := json.Unmarshal(raw, &s); err != nil {
			if errors.Is(err, domain.ErrMalformedRecord) {
				return i, domain.Shift{}, err
			}
			return i, domain.Shift{}, fmt.Errorf("%w: shift %s: %v", domain.ErrMalformedRecord, shiftID, err)
		}
		return i, s, nil
	}
	return -1, domain.Shift{}, fmt.Errorf("%w: shift %s", domain.ErrNotFound, shiftID)
}

// activeIndex returns cashierId -> shiftId for shifts that are really still
// active. Index rows pointing at closed or missing shifts are dropped, and
// active shifts the index does not know about, such as those written by other
// flows, are merged in. When a cashier has several, the newest wins; on equal
// start times the indexed one is kept.
func activeIndex(shifts store.Collection, index store.Collection) map[string]string {
	decoded, _ := store.Decode[domain.Shift](shifts)
	activeByID := make(map[string]domain.Shift)
	for _, s := range decoded {
		if s.Status == domain.ShiftStatusActive {
			activeByID[s.ID] = s
		}
	}

	out := make(map[string]string)
	keep := func(s domain.Shift) {
		if prev, ok := out[s.CashierID]; ok && activeByID[prev].StartTime >= s.StartTime {
			return
		}
		out[s.CashierID] = s.ID
	}

	refs, _ := store.Decode[domain.ActiveShiftRef](index)
	for _, ref := range refs {
		s, ok := activeByID[ref.ShiftID]
		if !ok || s.CashierID != ref.CashierID {
			continue
		}
		keep(s)
	}
	for _, s := range decoded {
		if s.Status == domain.ShiftStatusActive {
			keep(s)
		}
	}
	return out
}

func writeIndex(index store.Collection, active map[string]string) (store.Write, error) {
	cashiers := make([]string, 0, len(active))
	for cashierID := range active {
		cashiers = append(cashiers, cashierID)
	}
	sort.Strings(cashiers)

	records := make([]json.RawMessage, 0, len(cashiers))
	for _, cashierID := range cashiers {
		raw, err := json.Marshal(domain.ActiveShiftRef{CashierID: cashierID, ShiftID: active[cashierID]})
		if err != nil {
			return store.Write{}, fmt.Errorf("encode %s: %w", store.ActiveShifts, err)
		}
		records = append(records, raw)
	}
	return index.Replace(records), nil
}
