package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Records below mirror what the POS front-end writes into each collection, so
// their JSON keys follow the front-end's camelCase. Derived views further
// down are produced by this module and use snake_case like the rest of the API.

type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	Price     Number `json:"price"`
	CostPrice Number `json:"costPrice"`
	Cost      Number `json:"cost"`
	Stock     int    `json:"stock"`
	BranchID  string `json:"branchId,omitempty"`
}

// UnmarshalJSON accepts stock written as a numeric string. Stock that is
// present but not a number fails the record instead of reading as zero.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	aux := struct {
		*plain
		Stock Number `json:"stock"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Stock.Set && !aux.Stock.Finite() {
		return fmt.Errorf("%w: product %s has non-numeric stock", ErrMalformedRecord, p.ID)
	}
	p.Stock = int(aux.Stock.Int64())
	return nil
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

type LineItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  Number `json:"quantity"`
	UnitPrice Number `json:"price"`
	UnitCost  Number `json:"unitCost"`
}

type SaleTransaction struct {
	ID            string     `json:"id"`
	Timestamp     Timestamp  `json:"timestamp"`
	CashierID     string     `json:"cashierId"`
	CashierName   string     `json:"cashierName"`
	Cashier       string     `json:"cashier,omitempty"`
	ShiftID       string     `json:"shiftId,omitempty"`
	Items         []LineItem `json:"items"`
	Total         Number     `json:"total"`
	PaymentMethod string     `json:"paymentMethod"`
	Status        string     `json:"status"`
}

type Shift struct {
	ID           string `json:"id"`
	CashierID    string `json:"cashierId"`
	CashierName  string `json:"cashierName"`
	ShiftType    string `json:"shiftType"`
	StartTime    int64  `json:"startTime"`
	EndTime      *int64 `json:"endTime"`
	StartingCash int64  `json:"startingCash"`
	EndingCash   *int64 `json:"endingCash"`
	ExpectedCash *int64 `json:"expectedCash"`
	Difference   *int64 `json:"difference"`
	Status       string `json:"status"`
}

// UnmarshalJSON reads the numeric shift fields loosely. A shift without a
// usable startTime cannot be reconciled, so it fails to decode.
func (s *Shift) UnmarshalJSON(data []byte) error {
	type plain Shift
	aux := struct {
		*plain
		StartTime    Timestamp `json:"startTime"`
		EndTime      Number    `json:"endTime"`
		StartingCash Number    `json:"startingCash"`
		EndingCash   Number    `json:"endingCash"`
		ExpectedCash Number    `json:"expectedCash"`
		Difference   Number    `json:"difference"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if !aux.StartTime.Valid() {
		return fmt.Errorf("%w: shift %s has no usable startTime", ErrMalformedRecord, s.ID)
	}
	if aux.StartingCash.Set && !aux.StartingCash.Finite() {
		return fmt.Errorf("%w: shift %s has non-numeric startingCash", ErrMalformedRecord, s.ID)
	}
	s.StartTime = aux.StartTime.Millis
	s.StartingCash = aux.StartingCash.Int64()
	s.EndTime = optionalInt(aux.EndTime)
	s.EndingCash = optionalInt(aux.EndingCash)
	s.ExpectedCash = optionalInt(aux.ExpectedCash)
	s.Difference = optionalInt(aux.Difference)
	return nil
}

func optionalInt(n Number) *int64 {
	if !n.Finite() {
		return nil
	}
	v := n.Int64()
	return &v
}

// ActiveShiftRef is one row of the cashier -> active shift index kept next to
// the shifts collection.
type ActiveShiftRef struct {
	CashierID string `json:"cashierId"`
	ShiftID   string `json:"shiftId"`
}

type StockMovement struct {
	ID              string `json:"id"`
	ProductID       string `json:"productId"`
	ProductName     string `json:"productName"`
	ChangeType      string `json:"changeType"`
	QuantityBefore  int    `json:"quantityBefore"`
	QuantityAfter   int    `json:"quantityAfter"`
	QuantityChanged int    `json:"quantityChanged"`
	Reason          string `json:"reason"`
	ActorName       string `json:"actorName"`
	Timestamp       int64  `json:"timestamp"`
}

type OperationalCost struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Amount      Number `json:"amount"`
	Date        Date   `json:"date"`
	Description string `json:"description"`
}

type PurchaseItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    Number `json:"quantity"`
	CostPrice   Number `json:"costPrice"`
	Subtotal    Number `json:"subtotal"`
}

type Purchase struct {
	ID           string         `json:"id"`
	Supplier     string         `json:"supplier"`
	PurchaseDate Date           `json:"purchaseDate"`
	Items        []PurchaseItem `json:"items"`
	ShippingCost Number         `json:"shippingCost"`
	OtherCosts   Number         `json:"otherCosts"`
	TotalCost    Number         `json:"totalCost"`
}

// Derived views.

type CashflowEntry struct {
	Date           time.Time `json:"date"`
	Type           string    `json:"type"`
	Category       string    `json:"category"`
	Description    string    `json:"description"`
	Amount         int64     `json:"amount"`
	RunningBalance int64     `json:"running_balance"`
	SourceID       string    `json:"source_id,omitempty"`
}

type DailyCashflow struct {
	Date           string `json:"date"`
	Income         int64  `json:"income"`
	Expense        int64  `json:"expense"`
	Net            int64  `json:"net"`
	ClosingBalance int64  `json:"closing_balance"`
}

type CashflowReport struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance int64           `json:"opening_balance"`
	TotalIncome    int64           `json:"total_income"`
	TotalExpense   int64           `json:"total_expense"`
	ClosingBalance int64           `json:"closing_balance"`
	Entries        []CashflowEntry `json:"entries"`
	Daily          []DailyCashflow `json:"daily"`
	Quality        DataQuality     `json:"quality"`
}

type LineView struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	NameWarning string `json:"name_warning,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	UnitCost    int64  `json:"unit_cost"`
	CostSource  string `json:"cost_source"`
	IsEstimated bool   `json:"is_estimated"`
	LineCOGS    int64  `json:"line_cogs"`
	LineRevenue int64  `json:"line_revenue"`
}

type ValidatedTransactionView struct {
	Transaction    SaleTransaction `json:"transaction"`
	CashierName    string          `json:"cashier_name"`
	CashierWarning string          `json:"cashier_warning,omitempty"`
	Lines          []LineView      `json:"lines"`
	COGS           int64           `json:"cogs"`
	HasEstimation  bool            `json:"has_estimation"`
	Valid          bool            `json:"valid"`
	InvalidReason  string          `json:"invalid_reason,omitempty"`
}

// DataQuality lets a report consumer judge how far the aggregates can be
// trusted without walking individual records.
type DataQuality struct {
	TotalTransactions      int            `json:"total_transactions"`
	ReportableTransactions int            `json:"reportable_transactions"`
	ExcludedTransactions   int            `json:"excluded_transactions"`
	ExcludedByReason       map[string]int `json:"excluded_by_reason"`
	EstimatedCostLines     int            `json:"estimated_cost_lines"`
	ZeroCostLines          int            `json:"zero_cost_lines"`
	NameFallbacks          int            `json:"name_fallbacks"`
	CashierFallbacks       int            `json:"cashier_fallbacks"`
	InvalidCostRecords     int            `json:"invalid_cost_records"`
	InvalidPurchaseRecords int            `json:"invalid_purchase_records"`
}

type SalesReport struct {
	From          time.Time                  `json:"from"`
	To            time.Time                  `json:"to"`
	Revenue       int64                      `json:"revenue"`
	COGS          int64                      `json:"cogs"`
	GrossProfit   int64                      `json:"gross_profit"`
	HasEstimation bool                       `json:"has_estimation"`
	ByPayment     map[string]int64           `json:"by_payment"`
	Transactions  []ValidatedTransactionView `json:"transactions"`
	Quality       DataQuality                `json:"quality"`
}

type ProfitReport struct {
	From             time.Time   `json:"from"`
	To               time.Time   `json:"to"`
	Revenue          int64       `json:"revenue"`
	COGS             int64       `json:"cogs"`
	COGSEstimated    bool        `json:"cogs_estimated"`
	GrossProfit      int64       `json:"gross_profit"`
	OperationalCosts int64       `json:"operational_costs"`
	NetProfit        int64       `json:"net_profit"`
	Purchases        int64       `json:"purchases"`
	NetCashflow      int64       `json:"net_cashflow"`
	Quality          DataQuality `json:"quality"`
}

type StockDrift struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	StoredStock   int    `json:"stored_stock"`
	ReplayedStock int    `json:"replayed_stock"`
	Movements     int    `json:"movements"`
	Malformed     bool   `json:"malformed,omitempty"`
}

type ShiftSummary struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	ClosedShifts  int       `json:"closed_shifts"`
	ActiveShifts  int       `json:"active_shifts"`
	ExpectedCash  int64     `json:"expected_cash"`
	ActualCash    int64     `json:"actual_cash"`
	Shortfall     int64     `json:"shortfall"`
	Overage       int64     `json:"overage"`
	NetDifference int64     `json:"net_difference"`
	Shifts        []Shift   `json:"shifts"`
}

const (
	PaymentCash         = "Cash"
	PaymentQRIS         = "QRIS"
	PaymentEWallet      = "E-Wallet"
	PaymentTransferBank = "Transfer Bank"
)

const (
	TxStatusCompleted = "completed"
	TxStatusPending   = "pending"
	TxStatusCancelled = "cancelled"
)

const (
	ShiftStatusActive = "active"
	ShiftStatusClosed = "closed"
)

const (
	ShiftPagi  = "pagi"
	ShiftSiang = "siang"
	ShiftMalam = "malam"
)

const (
	ChangeRestock    = "restock"
	ChangeSale       = "sale"
	ChangeAdjustment = "adjustment"
)

const (
	CashflowIncome  = "income"
	CashflowExpense = "expense"
)
