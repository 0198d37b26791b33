package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/domain"
	"kasirinaja/ledger/internal/store"
)

func TestReadMissingCollectionIsEmpty(t *testing.T) {
	s := New()

	c, err := s.Read(context.Background(), store.Purchases)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Version)
	assert.Empty(t, c.Records)
}

func TestCommitChecksEveryVersionBeforeWriting(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(store.Products, domain.Product{ID: "P1", Stock: 5}))

	products, err := s.Read(ctx, store.Products)
	require.NoError(t, err)
	movements, err := s.Read(ctx, store.StockMovements)
	require.NoError(t, err)

	require.NoError(t, s.Put(store.Products, domain.Product{ID: "P2"}))

	appendMovement, err := movements.Append(domain.StockMovement{ID: "m1", ProductID: "P1"})
	require.NoError(t, err)
	err = s.Commit(ctx, appendMovement, products.Replace(nil))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	after, err := s.Read(ctx, store.StockMovements)
	require.NoError(t, err)
	assert.Empty(t, after.Records, "movement must not land when the product write conflicts")
}

func TestReadReturnsDetachedRecords(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutRaw(store.Users, `{"id":"u1","name":"Kasir A"}`)

	c, err := s.Read(ctx, store.Users)
	require.NoError(t, err)
	c.Records[0][2] = 'X'

	again, err := s.Read(ctx, store.Users)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","name":"Kasir A"}`, string(again.Records[0]))
}

func TestSeededStockMatchesOpeningMovements(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	s := NewSeeded(clock.NewFixed(now))

	products, err := store.Load[domain.Product](ctx, s, store.Products)
	require.NoError(t, err)
	movements, err := store.Load[domain.StockMovement](ctx, s, store.StockMovements)
	require.NoError(t, err)
	require.Len(t, movements, len(products))

	byProduct := make(map[string]int)
	for _, m := range movements {
		byProduct[m.ProductID] += m.QuantityChanged
		assert.Equal(t, now.Add(-24*time.Hour).UnixMilli(), m.Timestamp, m.ID)
	}
	for _, p := range products {
		assert.Equal(t, p.Stock, byProduct[p.ID], p.ID)
	}
}

func TestPatchKeepsUnknownFields(t *testing.T) {
	raw := json.RawMessage(`{"id":"P1","stock":3,"barcode":"899123"}`)

	patched, err := store.Patch(raw, map[string]any{"stock": 9})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"P1","stock":9,"barcode":"899123"}`, string(patched))
}
