package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendRedis    = "redis"
)

type Config struct {
	Port               string
	AllowedOrigin      string
	StoreBackend       string
	DatabaseURL        string
	MySQLDSN           string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisPrefix        string
	Timezone           string
	LowStockThreshold  int
	CommitRetries      int
	RateLimitPerMinute int
	LogLevel           string
}

func Load() Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StoreBackend:       strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND"))),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		MySQLDSN:           os.Getenv("MYSQL_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0, 0),
		RedisPrefix:        getEnv("REDIS_PREFIX", "kasirinaja"),
		Timezone:           getEnv("TIMEZONE", "Asia/Jakarta"),
		LowStockThreshold:  getInt("LOW_STOCK_THRESHOLD", 10, 1),
		CommitRetries:      getInt("COMMIT_RETRIES", 5, 1),
		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 240, 1),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if cfg.StoreBackend == "" {
		cfg.StoreBackend = inferBackend(cfg)
	}
	return cfg
}

// inferBackend picks a backend from whichever connection setting is present,
// in the order postgres, mysql, redis.
func inferBackend(cfg Config) string {
	switch {
	case cfg.DatabaseURL != "":
		return BackendPostgres
	case cfg.MySQLDSN != "":
		return BackendMySQL
	case cfg.RedisAddr != "":
		return BackendRedis
	default:
		return BackendMemory
	}
}

// Validate reports settings that would make the chosen backend unusable.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("STORE_BACKEND=mysql requires MYSQL_DSN")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("STORE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || parsed < min {
		return fallback
	}
	return parsed
}
