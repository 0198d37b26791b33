package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"kasirinaja/ledger/internal/store"
)

// commitScript receives KEYS as (version, records) pairs and ARGV as the
// expected versions followed by the encoded bodies. It returns the 1-based
// index of the first write whose version moved, or 0 once everything is set.
var commitScript = goredis.NewScript(`
local n = #KEYS / 2
for i = 1, n do
	local current = tonumber(redis.call('GET', KEYS[2*i-1]) or '0')
	if current ~= tonumber(ARGV[i]) then
		return i
	end
end
for i = 1, n do
	redis.call('SET', KEYS[2*i-1], tonumber(ARGV[i]) + 1)
	redis.call('SET', KEYS[2*i], ARGV[n+i])
end
return 0
`)

// Store keeps each collection under two keys sharing one hash tag, so a
// multi-collection commit stays on a single cluster slot.
type Store struct {
	client *goredis.Client
	prefix string
}

func New(addr string, password string, db int, prefix string) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if prefix == "" {
		prefix = "kasirinaja"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) versionKey(key string) string {
	return fmt.Sprintf("{%s}:version:%s", s.prefix, key)
}

func (s *Store) recordsKey(key string) string {
	return fmt.Sprintf("{%s}:records:%s", s.prefix, key)
}

func (s *Store) Read(ctx context.Context, key string) (store.Collection, error) {
	values, err := s.client.MGet(ctx, s.versionKey(key), s.recordsKey(key)).Result()
	if err != nil {
		return store.Collection{}, fmt.Errorf("mget %s: %w", key, err)
	}

	out := store.Collection{Key: key, Records: []json.RawMessage{}}
	if raw, ok := values[0].(string); ok {
		version, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return store.Collection{}, fmt.Errorf("parse %s version: %w", key, err)
		}
		out.Version = version
	}
	if raw, ok := values[1].(string); ok {
		records, err := store.DecodeRecords([]byte(raw))
		if err != nil {
			return store.Collection{}, fmt.Errorf("decode %s: %w", key, err)
		}
		out.Records = records
	}
	return out, nil
}

func (s *Store) Commit(ctx context.Context, writes ...store.Write) error {
	if err := store.CheckWrites(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	keys := make([]string, 0, 2*len(writes))
	versions := make([]any, 0, len(writes))
	bodies := make([]any, 0, len(writes))
	for _, w := range writes {
		payload, err := store.EncodeRecords(w.Records)
		if err != nil {
			return fmt.Errorf("encode %s: %w", w.Key, err)
		}
		keys = append(keys, s.versionKey(w.Key), s.recordsKey(w.Key))
		versions = append(versions, w.ExpectedVersion)
		bodies = append(bodies, string(payload))
	}

	failed, err := commitScript.Run(ctx, s.client, keys, append(versions, bodies...)...).Int()
	if err != nil {
		return fmt.Errorf("commit script: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%s: %w", writes[failed-1].Key, store.ErrVersionConflict)
	}
	return nil
}
