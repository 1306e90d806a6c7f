package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Store kinds selected from the database URL scheme.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment    string
	Addr           string
	LogLevel       string
	DatabaseURL    string
	DatabaseName   string
	MigrationsDir  string
	PersistTimeout time.Duration
	MaxInFlight    int
	SmokeRoutes    bool
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:    GetString("APP_ENV", "development"),
		Addr:           GetString("API_ADDR", ":4000"),
		LogLevel:       GetString("TERROR_LOG_LEVEL", "info"),
		DatabaseURL:    GetString("TERROR_DATABASE_URL", "postgres://terror:terror@db:5432/terror?sslmode=disable"),
		DatabaseName:   strings.TrimSpace(GetString("TERROR_DATABASE_NAME", "")),
		MigrationsDir:  GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		PersistTimeout: GetSeconds("TERROR_PERSIST_TIMEOUT_SECONDS", 10*time.Second),
		MaxInFlight:    GetInt("TERROR_MAX_INFLIGHT", 64),
		SmokeRoutes:    GetBool("TERROR_SMOKE_ROUTES", false),
	}
}

// StoreKind reports which sink the database URL addresses.
func (c APIConfig) StoreKind() (string, error) {
	u, err := url.Parse(strings.TrimSpace(c.DatabaseURL))
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return StorePostgres, nil
	case "redis", "rediss":
		return StoreRedis, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
}
