// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
)

// Config holds every setting of the chat engine process.
type Config struct {
	AppEnv   string `env:"APP_ENV,default=dev"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`
	GRPCAddr string `env:"GRPC_ADDR,default=:9090"`

	StoreBackend  string        `env:"STORE_BACKEND,default=memory"`
	DatabaseDSN   string        `env:"DB_DSN"`
	SQLitePath    string        `env:"SQLITE_PATH,default=chat.db"`
	MongoURI      string        `env:"MONGO_URI,default=mongodb://localhost:27017"`
	MongoDatabase string        `env:"MONGO_DATABASE,default=chat"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT,default=5s"`

	RedisAddr    string `env:"REDIS_ADDR"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE,default=chat.events"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=24h"`

	PageSize       int `env:"PAGE_SIZE,default=10"`
	SearchPageSize int `env:"SEARCH_PAGE_SIZE,default=10"`
	MaxUnreadFetch int `env:"MAX_UNREAD_FETCH,default=100"`
	SinkBuffer     int `env:"SINK_BUFFER,default=32"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendMongo:
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return errors.New("DB_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.PageSize < 1 || c.SearchPageSize < 1 {
		return errors.New("page sizes must be positive")
	}
	if c.MaxUnreadFetch < 1 {
		return errors.New("MAX_UNREAD_FETCH must be positive")
	}
	if c.SinkBuffer < 1 {
		return errors.New("SINK_BUFFER must be positive")
	}
	if c.JWTSecret == "" && !c.IsDebug() {
		return errors.New("JWT_SECRET is required outside debug mode")
	}
	return nil
}

// IsDebug reports whether the process runs in debug mode.
func (c Config) IsDebug() bool {
	return strings.EqualFold(c.AppEnv, "debug")
}

// Secret returns the token signing key, falling back to a fixed key in debug mode.
func (c Config) Secret() []byte {
	if c.JWTSecret == "" {
		return []byte("debug-secret")
	}
	return []byte(c.JWTSecret)
}
