package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrVersionConflict = errors.New("collection version conflict")

// Collection keys shared by the POS front-end and this module.
const (
	SaleTransactions = "sale-transactions"
	Shifts           = "shifts"
	ActiveShifts     = "active-shifts"
	StockMovements   = "stock-movements"
	OperationalCosts = "operational-costs"
	Purchases        = "purchases"
	Products         = "products"
	Users            = "users"
)

// Collection is a full snapshot of one named collection. Version is 0 for a
// collection that has never been written.
type Collection struct {
	Key     string
	Version int64
	Records []json.RawMessage
}

// Write replaces a whole collection, provided it is still at ExpectedVersion.
type Write struct {
	Key             string
	ExpectedVersion int64
	Records         []json.RawMessage
}

// EventStore is the key/value collaborator every component reads from.
// Read never fails for a missing collection. Commit applies all writes or
// none, and returns ErrVersionConflict when any collection moved on since it
// was read.
type EventStore interface {
	Read(ctx context.Context, key string) (Collection, error)
	Commit(ctx context.Context, writes ...Write) error
}

// Decode converts raw records into T, skipping records that are not even
// JSON objects of the right shape. The number of skipped records is returned
// so callers can surface it.
func Decode[T any](c Collection) ([]T, int) {
	out := make([]T, 0, len(c.Records))
	skipped := 0
	for _, raw := range c.Records {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

func Load[T any](ctx context.Context, s EventStore, key string) ([]T, error) {
	c, err := s.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	records, _ := Decode[T](c)
	return records, nil
}

// Replace builds a write for c carrying records, guarded by c's version.
func (c Collection) Replace(records []json.RawMessage) Write {
	return Write{Key: c.Key, ExpectedVersion: c.Version, Records: records}
}

// Append builds a write that keeps every existing raw record and adds the
// encoded values at the end.
func (c Collection) Append(values ...any) (Write, error) {
	records := make([]json.RawMessage, 0, len(c.Records)+len(values))
	records = append(records, c.Records...)
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return Write{}, fmt.Errorf("encode %s record: %w", c.Key, err)
		}
		records = append(records, raw)
	}
	return c.Replace(records), nil
}

// Patch overwrites the named top-level fields of a raw record and leaves every
// other field untouched, so fields this module does not model survive writes.
func Patch(raw json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for name, value := range fields {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		doc[name] = encoded
	}
	return json.Marshal(doc)
}

// WithRetry runs fn until it succeeds, fails with something other than a
// version conflict, or attempts run out.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}

// CheckWrites rejects batches that name the same collection twice.
func CheckWrites(writes []Write) error {
	seen := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		if w.Key == "" {
			return fmt.Errorf("write without collection key")
		}
		if _, dup := seen[w.Key]; dup {
			return fmt.Errorf("collection %s written twice in one commit", w.Key)
		}
		seen[w.Key] = struct{}{}
	}
	return nil
}

// EncodeRecords marshals a collection body as a JSON array. A nil slice is
// stored as [] so readers never see null.
func EncodeRecords(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	return json.Marshal(records)
}

func DecodeRecords(payload []byte) ([]json.RawMessage, error) {
	if len(payload) == 0 {
		return []json.RawMessage{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}
