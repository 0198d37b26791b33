package main

import (
	"context"
	"testing"
	"time"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/config"
	"kasirinaja/ledger/internal/store"
)

func TestOpenStoreMemoryIsSeeded(t *testing.T) {
	es, closers, err := openStore(context.Background(), config.Config{StoreBackend: config.BackendMemory}, clock.NewFixed(time.Now()))
	if err != nil {
		t.Fatalf("expected memory backend to open, got %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("memory backend needs no closers, got %d", len(closers))
	}

	products, err := es.Read(context.Background(), store.Products)
	if err != nil {
		t.Fatalf("read products: %v", err)
	}
	if len(products.Records) == 0 {
		t.Fatalf("expected seeded catalog")
	}
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	if _, _, err := openStore(context.Background(), config.Config{StoreBackend: "sqlite"}, clock.NewFixed(time.Now())); err == nil {
		t.Fatalf("expected unknown backend to be rejected")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("chatty"); err == nil {
		t.Fatalf("expected invalid LOG_LEVEL to fail")
	}
	logger, err := newLogger("debug")
	if err != nil {
		t.Fatalf("expected debug level to build, got %v", err)
	}
	_ = logger.Sync()
}
