package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/store"
	"kasirinaja/ledger/internal/xid"
)

type collection struct {
	version int64
	records []json.RawMessage
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]collection
}

func New() *Store {
	return &Store{collections: make(map[string]collection)}
}

// NewSeeded returns a store holding a small demo catalog. Every seeded stock
// level is backed by an opening restock movement, stamped a day before clk's
// now, so the ledger replays cleanly.
func NewSeeded(clk clock.Clock) *Store {
	s := New()

	type seedProduct struct {
		id, name, category string
		price              int64
		marginRate         float64
		legacyCost         bool
		noCost             bool
	}
	seeds := []seedProduct{
		{id: "SKU-MIE-01", name: "Mie Goreng Instan", category: "grocery", price: 3500, marginRate: 0.22},
		{id: "SKU-TELUR-01", name: "Telur 10 Butir", category: "grocery", price: 26500, marginRate: 0.13},
		{id: "SKU-SUSU-01", name: "Susu UHT 1L", category: "dairy", price: 18900, marginRate: 0.28},
		{id: "SKU-ROTI-01", name: "Roti Tawar", category: "bakery", price: 17800, marginRate: 0.30},
		{id: "SKU-KOPI-01", name: "Kopi Sachet", category: "beverage", price: 2600, marginRate: 0.34},
		{id: "SKU-GULA-01", name: "Gula 1kg", category: "grocery", price: 17400, marginRate: 0.12},
		{id: "SKU-TEH-01", name: "Teh Celup", category: "beverage", price: 9800, marginRate: 0.26},
		{id: "SKU-AIR-01", name: "Air Mineral 600ml", category: "beverage", price: 3900, marginRate: 0.18},
		{id: "SKU-KERIPIK-01", name: "Keripik Singkong", category: "snack", price: 12800, marginRate: 0.37, legacyCost: true},
		{id: "SKU-COKLAT-01", name: "Coklat Batang", category: "snack", price: 8600, marginRate: 0.35, legacyCost: true},
		{id: "SKU-SABUN-01", name: "Sabun Mandi", category: "household", price: 7400, noCost: true},
		{id: "SKU-SHAMPOO-01", name: "Shampoo Sachet", category: "household", price: 3200, noCost: true},
	}

	openedAt := clk.Now().Add(-24 * time.Hour).UnixMilli()
	products := make([]any, 0, len(seeds))
	movements := make([]any, 0, len(seeds))
	for _, seed := range seeds {
		product := domain.Product{
			ID:       seed.id,
			Name:     seed.name,
			Category: seed.category,
			Price:    domain.NumberOf(float64(seed.price)),
			Stock:    120,
		}
		unitCost := math.Round(float64(seed.price) * (1 - seed.marginRate))
		switch {
		case seed.noCost:
		case seed.legacyCost:
			product.Cost = domain.NumberOf(unitCost)
		default:
			product.CostPrice = domain.NumberOf(unitCost)
		}
		products = append(products, product)
		movements = append(movements, domain.StockMovement{
			ID:              xid.New("mov"),
			ProductID:       seed.id,
			ProductName:     seed.name,
			ChangeType:      domain.ChangeRestock,
			QuantityBefore:  0,
			QuantityAfter:   120,
			QuantityChanged: 120,
			Reason:          "Stok awal",
			ActorName:       "system",
			Timestamp:       openedAt,
		})
	}

	users := []any{
		domain.User{ID: "user-admin", Name: "Admin Toko", Username: "admin", Role: "admin"},
		domain.User{ID: "user-kasir-a", Name: "Kasir A", Username: "kasir.a", Role: "cashier"},
		domain.User{ID: "user-kasir-b", Name: "Kasir B", Username: "kasir.b", Role: "cashier"},
	}

	for key, values := range map[string][]any{
		store.Products:       products,
		store.StockMovements: movements,
		store.Users:          users,
	} {
		if err := s.Put(key, values...); err != nil {
			panic(fmt.Sprintf("[memory-store] seed %s: %v", key, err))
		}
	}
	return s
}

func (s *Store) Read(_ context.Context, key string) (store.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collections[key]
	return store.Collection{
		Key:     key,
		Version: c.version,
		Records: cloneRecords(c.records),
	}, nil
}

func (s *Store) Commit(_ context.Context, writes ...store.Write) error {
	if err := store.CheckWrites(writes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		if s.collections[w.Key].version != w.ExpectedVersion {
			return fmt.Errorf("%s: %w", w.Key, store.ErrVersionConflict)
		}
	}
	for _, w := range writes {
		s.collections[w.Key] = collection{
			version: w.ExpectedVersion + 1,
			records: cloneRecords(w.Records),
		}
	}
	return nil
}

// Put appends encoded values to a collection without a version check. It is
// meant for fixtures and imports, not for engine writes.
func (s *Store) Put(key string, values ...any) error {
	encoded := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		encoded = append(encoded, raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[key]
	c.records = append(c.records, encoded...)
	c.version++
	s.collections[key] = c
	return nil
}

// PutRaw is Put for records that are already JSON, including malformed ones.
func (s *Store) PutRaw(key string, records ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[key]
	for _, r := range records {
		c.records = append(c.records, json.RawMessage(r))
	}
	c.version++
	s.collections[key] = c
}

func cloneRecords(src []json.RawMessage) []json.RawMessage {
	dup := make([]json.RawMessage, len(src))
	for i, r := range src {
		dup[i] = append(json.RawMessage(nil), r...)
	}
	return dup
}
