package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"kasirinaja/ledger/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_collections (
	collection_key VARCHAR(191) NOT NULL PRIMARY KEY,
	version        BIGINT NOT NULL,
	records        LONGTEXT NOT NULL,
	updated_at     DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
)`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysqldriver.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)

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
	err := s.db.QueryRowContext(ctx, `SELECT version, records FROM event_collections WHERE collection_key = ?`, key).
		Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Collection{Key: key, Records: []json.RawMessage{}}, nil
	}
	if err != nil {
		return store.Collection{}, fmt.Errorf("query %s: %w", key, err)
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
			_, err = tx.ExecContext(ctx,
				`INSERT INTO event_collections (collection_key, version, records, updated_at) VALUES (?, 1, ?, NOW(3))`,
				w.Key, payload,
			)
			if err != nil {
				if isDuplicateKey(err) {
					return fmt.Errorf("%s: %w", w.Key, store.ErrVersionConflict)
				}
				return fmt.Errorf("insert %s: %w", w.Key, err)
			}
			continue
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE event_collections
			SET version = version + 1, records = ?, updated_at = NOW(3)
			WHERE collection_key = ? AND version = ?`,
			payload, w.Key, w.ExpectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update %s: %w", w.Key, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%s: %w", w.Key, store.ErrVersionConflict)
		}
	}

	return tx.Commit()
}

func isDuplicateKey(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
