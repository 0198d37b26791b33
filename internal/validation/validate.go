package validation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"kasirinaja/ledger/internal/domain"
)

// Reasons a sale transaction is kept out of financial aggregates.
const (
	ReasonMissingID        = "missing_id"
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonEmptyItems       = "empty_items"
	ReasonInvalidItem      = "invalid_item"
	ReasonInvalidTotal     = "invalid_total"
	ReasonZeroTotal        = "non_positive_total"
	ReasonMalformedRecord  = "malformed_record"
)

// ValidateTimestamp accepts epoch milliseconds as a number or numeric string
// greater than zero. Anything else yields now and false; callers must check
// the flag rather than trust the substituted value.
func ValidateTimestamp(value any, now time.Time) (int64, bool) {
	ms, ok := timestampMillis(value)
	if !ok || ms <= 0 {
		return now.UnixMilli(), false
	}
	return ms, true
}

func timestampMillis(value any) (int64, bool) {
	switch v := value.(type) {
	case domain.Timestamp:
		return v.Millis, v.Valid()
	case *domain.Timestamp:
		if v == nil {
			return 0, false
		}
		return v.Millis, v.Valid()
	case domain.Number:
		return v.Int64(), v.Finite()
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return timestampMillis(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return timestampMillis(f)
	case time.Time:
		if v.IsZero() {
			return 0, false
		}
		return v.UnixMilli(), true
	default:
		return 0, false
	}
}

func ValidateTransactionItem(item domain.LineItem) bool {
	if strings.TrimSpace(item.ProductID) == "" {
		return false
	}
	if !item.Quantity.Positive() {
		return false
	}
	return item.UnitPrice.Finite() && item.UnitPrice.Value >= 0
}

func ValidateTransaction(tx domain.SaleTransaction) bool {
	return invalidReason(tx) == ""
}

// invalidReason reports the first structural defect of tx, or "" when the
// transaction is well formed.
func invalidReason(tx domain.SaleTransaction) string {
	if strings.TrimSpace(tx.ID) == "" {
		return ReasonMissingID
	}
	if _, ok := ValidateTimestamp(tx.Timestamp, time.Time{}); !ok {
		return ReasonInvalidTimestamp
	}
	if len(tx.Items) == 0 {
		return ReasonEmptyItems
	}
	for _, item := range tx.Items {
		if !ValidateTransactionItem(item) {
			return ReasonInvalidItem
		}
	}
	if !tx.Total.Finite() || tx.Total.Value < 0 {
		return ReasonInvalidTotal
	}
	return ""
}

// ExclusionReason is "" for a reportable transaction, otherwise the reason it
// is left out of financial reports.
func ExclusionReason(tx domain.SaleTransaction) string {
	if reason := invalidReason(tx); reason != "" {
		return reason
	}
	if tx.Total.Value <= 0 {
		return ReasonZeroTotal
	}
	return ""
}

func IsReportable(tx domain.SaleTransaction) bool {
	return ExclusionReason(tx) == ""
}

// SelectReportable keeps only structurally sound transactions with a
// positive total, preserving input order.
func SelectReportable(txs []domain.SaleTransaction) []domain.SaleTransaction {
	out := make([]domain.SaleTransaction, 0, len(txs))
	for _, tx := range txs {
		if IsReportable(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// IsCompleted treats a missing status as completed; sales recorded before
// statuses existed were always settled at the till.
func IsCompleted(tx domain.SaleTransaction) bool {
	status := strings.ToLower(strings.TrimSpace(tx.Status))
	return status == "" || status == domain.TxStatusCompleted
}
