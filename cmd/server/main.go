package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kasirinaja/ledger/internal/clock"
	"kasirinaja/ledger/internal/config"
	"kasirinaja/ledger/internal/httpapi"
	"kasirinaja/ledger/internal/metrics"
	"kasirinaja/ledger/internal/service"
	"kasirinaja/ledger/internal/store"
	"kasirinaja/ledger/internal/store/memory"
	mysqlstore "kasirinaja/ledger/internal/store/mysql"
	pgstore "kasirinaja/ledger/internal/store/postgres"
	redisstore "kasirinaja/ledger/internal/store/redis"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clk := clock.NewSystem(clock.LoadLocation(cfg.Timezone))
	es, closers, err := openStore(ctx, cfg, clk)
	if err != nil {
		logger.Fatal("event store unavailable; refusing to start with in-memory fallback",
			zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	logger.Info("event store ready", zap.String("backend", cfg.StoreBackend))

	m := metrics.New()
	svc := service.New(es, clk, service.Options{
		CommitRetries:     cfg.CommitRetries,
		LowStockThreshold: cfg.LowStockThreshold,
	}, logger, m)
	api := httpapi.New(svc, m, logger, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("ledger engine listening", zap.String("addr", cfg.Address()), zap.String("timezone", clk.Location().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(parsed)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// openStore connects the configured backend. A configured backend that cannot
// be reached is an error; memory is only used when chosen.
func openStore(ctx context.Context, cfg config.Config, clk clock.Clock) (store.EventStore, []func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, []func() error{pg.Close}, nil
	case config.BackendMySQL:
		my, err := mysqlstore.New(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		return my, []func() error{my.Close}, nil
	case config.BackendRedis:
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, err
		}
		return rs, []func() error{rs.Close}, nil
	case config.BackendMemory:
		return memory.NewSeeded(clk), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
