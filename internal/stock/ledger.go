package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/metrics"
	"kasirinaja/ledger/internal/store"
	"kasirinaja/ledger/internal/xid"
)

const DefaultLowStockThreshold = 10

type MovementRequest struct {
	ProductID   string `json:"product_id"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
	Actor       string `json:"actor"`
	ChangeType  string `json:"change_type"`
}

// Ledger is the only writer of product stock. Every change goes through a
// movement committed together with the new stock level.
type Ledger struct {
	store     store.EventStore
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
	retries   int
	threshold int
	locks     *store.KeyedMutex
}

func NewLedger(es store.EventStore, clk clock.Clock, retries int, lowStockThreshold int, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lowStockThreshold < 1 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	return &Ledger{
		store:     es,
		clock:     clk,
		logger:    logger.Named("stock"),
		metrics:   m,
		retries:   retries,
		threshold: lowStockThreshold,
		locks:     store.NewKeyedMutex(),
	}
}

// RecordMovement sets a product's stock to req.NewQuantity and appends the
// movement explaining the change.
func (l *Ledger) RecordMovement(ctx context.Context, req MovementRequest) (domain.StockMovement, error) {
	target := req.NewQuantity
	return l.record(ctx, req.ProductID, req.ChangeType, req.Reason, req.Actor, func(int) int { return target })
}

// ApplyDelta moves stock by delta relative to whatever is stored when the
// write lands, so concurrent sales never overwrite each other.
func (l *Ledger) ApplyDelta(ctx context.Context, productID string, delta int, changeType string, reason string, actor string) (domain.StockMovement, error) {
	return l.record(ctx, productID, changeType, reason, actor, func(before int) int { return before + delta })
}

func (l *Ledger) record(ctx context.Context, productID string, changeType string, reason string, actor string, next func(before int) int) (domain.StockMovement, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.StockMovement{}, fmt.Errorf("%w: product id is required", domain.ErrInvalidInput)
	}
	changeType = strings.ToLower(strings.TrimSpace(changeType))
	if changeType == "" {
		changeType = domain.ChangeAdjustment
	}
	if !isChangeType(changeType) {
		return domain.StockMovement{}, fmt.Errorf("%w: unsupported change type %q", domain.ErrInvalidInput, changeType)
	}

	unlock := l.locks.Lock(productID)
	defer unlock()

	var recorded domain.StockMovement
	err := store.WithRetry(ctx, l.retries, func() error {
		products, err := l.store.Read(ctx, store.Products)
		if err != nil {
			return fmt.Errorf("read %s: %w", store.Products, err)
		}
		movements, err := l.store.Read(ctx, store.StockMovements)
		if err != nil {
			return fmt.Errorf("read %s: %w", store.StockMovements, err)
		}

		idx, product, err := findProduct(products, productID)
		if err != nil {
			return err
		}
		after := next(product.Stock)
		if after < 0 {
			return fmt.Errorf("%w: %s has %d, requested %d", domain.ErrNegativeStock, productID, product.Stock, after)
		}

		movement := domain.StockMovement{
			ID:              xid.New("mov"),
			ProductID:       productID,
			ProductName:     product.Name,
			ChangeType:      changeType,
			QuantityBefore:  product.Stock,
			QuantityAfter:   after,
			QuantityChanged: after - product.Stock,
			Reason:          strings.TrimSpace(reason),
			ActorName:       strings.TrimSpace(actor),
			Timestamp:       l.nextTimestamp(movements, productID),
		}

		patched, err := store.Patch(products.Records[idx], map[string]any{"stock": after})
		if err != nil {
			return fmt.Errorf("patch product %s: %w", productID, err)
		}
		records := make([]json.RawMessage, len(products.Records))
		copy(records, products.Records)
		records[idx] = patched

		appendMovement, err := movements.Append(movement)
		if err != nil {
			return err
		}
		if err := l.store.Commit(ctx, appendMovement, products.Replace(records)); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				l.metrics.VersionConflict("record_movement")
			}
			return err
		}
		recorded = movement
		return nil
	})
	if err != nil {
		return domain.StockMovement{}, err
	}

	l.metrics.StockMovement(recorded.ChangeType)
	l.logger.Debug("stock movement recorded",
		zap.String("product_id", recorded.ProductID),
		zap.String("change_type", recorded.ChangeType),
		zap.Int("before", recorded.QuantityBefore),
		zap.Int("after", recorded.QuantityAfter),
	)
	return recorded, nil
}

// nextTimestamp never goes behind the product's latest movement, so replay
// order stays the recording order even when the wall clock steps back.
func (l *Ledger) nextTimestamp(movements store.Collection, productID string) int64 {
	ts := l.clock.Now().UnixMilli()
	existing, _ := store.Decode[domain.StockMovement](movements)
	for _, m := range existing {
		if m.ProductID == productID && m.Timestamp > ts {
			ts = m.Timestamp
		}
	}
	return ts
}

// HistoryFor returns the product's movements oldest first; ties keep the
// order they were recorded in.
func (l *Ledger) HistoryFor(ctx context.Context, productID string) ([]domain.StockMovement, error) {
	movements, err := store.Load[domain.StockMovement](ctx, l.store, store.StockMovements)
	if err != nil {
		return nil, err
	}
	return historyOf(movements, productID), nil
}

func historyOf(movements []domain.StockMovement, productID string) []domain.StockMovement {
	out := make([]domain.StockMovement, 0)
	for _, m := range movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// Replay folds quantityChanged over history starting from zero.
func Replay(history []domain.StockMovement) int {
	total := 0
	for _, m := range history {
		total += m.QuantityChanged
	}
	return total
}

// Verify replays every product's history and reports the products whose
// stored stock disagrees with it.
func (l *Ledger) Verify(ctx context.Context) ([]domain.StockDrift, error) {
	products, malformed, err := l.loadProducts(ctx)
	if err != nil {
		return nil, err
	}
	movements, err := store.Load[domain.StockMovement](ctx, l.store, store.StockMovements)
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string][]domain.StockMovement)
	for _, m := range movements {
		byProduct[m.ProductID] = append(byProduct[m.ProductID], m)
	}

	drifts := make([]domain.StockDrift, 0)
	for _, p := range products {
		history := byProduct[p.ID]
		replayed := Replay(history)
		if replayed == p.Stock {
			continue
		}
		drifts = append(drifts, domain.StockDrift{
			ProductID:     p.ID,
			ProductName:   p.Name,
			StoredStock:   p.Stock,
			ReplayedStock: replayed,
			Movements:     len(history),
		})
	}

	for _, id := range malformed {
		history := byProduct[id]
		drifts = append(drifts, domain.StockDrift{
			ProductID:     id,
			ReplayedStock: Replay(history),
			Movements:     len(history),
			Malformed:     true,
		})
	}

	if len(drifts) > 0 {
		l.logger.Warn("stock does not match movement history", zap.Int("products", len(drifts)))
	}
	return drifts, nil
}

// LowStock lists products with 0 < stock <= threshold. A threshold below 1
// uses the ledger default; an empty branch matches every branch.
func (l *Ledger) LowStock(ctx context.Context, threshold int, branchID string) ([]domain.Product, error) {
	if threshold < 1 {
		threshold = l.threshold
	}
	return l.filterProducts(ctx, branchID, func(p domain.Product) bool {
		return p.Stock > 0 && p.Stock <= threshold
	})
}

func (l *Ledger) OutOfStock(ctx context.Context, branchID string) ([]domain.Product, error) {
	return l.filterProducts(ctx, branchID, func(p domain.Product) bool {
		return p.Stock <= 0
	})
}

func (l *Ledger) filterProducts(ctx context.Context, branchID string, keep func(domain.Product) bool) ([]domain.Product, error) {
	products, _, err := l.loadProducts(ctx)
	if err != nil {
		return nil, err
	}
	branchID = strings.TrimSpace(branchID)

	out := make([]domain.Product, 0)
	for _, p := range products {
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// findProduct matches on the id alone, so a catalog record that exists but
// cannot be decoded is reported as malformed rather than unknown.
func findProduct(products store.Collection, productID string) (int, domain.Product, error) {
	for i, raw := range products.Records {
		if recordID(raw) != productID {
			continue
		}
		var p domain.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			if errors.Is(err, domain.ErrMalformedRecord) {
				return i, domain.Product{}, err
			}
			return i, domain.Product{}, fmt.Errorf("%w: product %s: %v", domain.ErrMalformedRecord, productID, err)
		}
		return i, p, nil
	}
	return -1, domain.Product{}, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, productID)
}

func recordID(raw json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.ID
}

// loadProducts decodes the catalog and returns the ids of records that could
// not be decoded next to the good ones.
func (l *Ledger) loadProducts(ctx context.Context) ([]domain.Product, []string, error) {
	c, err := l.store.Read(ctx, store.Products)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", store.Products, err)
	}
	products := make([]domain.Product, 0, len(c.Records))
	var malformed []string
	for _, raw := range c.Records {
		var p domain.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			malformed = append(malformed, recordID(raw))
			continue
		}
		products = append(products, p)
	}
	if len(malformed) > 0 {
		l.logger.Warn("product records could not be decoded", zap.Strings("product_ids", malformed))
	}
	return products, malformed, nil
}

func isChangeType(changeType string) bool {
	switch changeType {
	case domain.ChangeRestock, domain.ChangeSale, domain.ChangeAdjustment:
		return true
	default:
		return false
	}
}
