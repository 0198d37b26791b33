package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirinaja/ledger/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_collections (
	key        TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	records    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Read(ctx context.Context, key string) (store.Collection, error) {
	var version int64
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT version, records
		FROM event_collections
		WHERE key = $1
	`, key).Scan(&version, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Collection{Key: key, Records: []json.RawMessage{}}, nil
		}
		return store.Collection{}, err
	}

	records, err := store.DecodeRecords(payload)
	if err != nil {
		return store.Collection{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return store.Collection{Key: key, Version: version, Records: records}, nil
}

func (s *Store) Commit(ctx context.Context, writes ...store.Write) error {
	if err := store.CheckWrites(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		payload, err := store.EncodeRecords(w.Records)
		if err != nil {
			return fmt.Errorf("encode %s: %w", w.Key, err)
		}

		if w.ExpectedVersion == 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO event_collections (key, version, records, updated_at)
				VALUES ($1, 1, $2, now())
			`, w.Key, payload)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%s: %w", w.Key, store.ErrVersionConflict)
				}
				return fmt.Errorf("insert %s: %w", w.Key, err)
			}
			continue
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE event_collections
			SET version = version + 1, records = $3, updated_at = now()
			WHERE key = $1 AND version = $2
		`, w.Key, w.ExpectedVersion, payload)
		if err != nil {
			return fmt.Errorf("update %s: %w", w.Key, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%s: %w", w.Key, store.ErrVersionConflict)
		}
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
