// Package config loads environment-driven settings shared by every component process.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment variable named in the platform's external
// interface table, plus small per-component additions noted inline.
type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBPath     string // embedded sqlite file backing DatabaseGateway
	DBMinConns int
	DBMaxConns int

	// REST / auth
	RestPort           string
	SessionPort        string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	JWTSecret          string

	// Session / simulator lifecycle
	SessionTTLSeconds   int
	ReconnectTimeout    time.Duration
	GapToleranceSeconds int

	// Orchestrator
	PollInterval time.Duration

	// Observability
	EnableTracing bool
	EnableMetrics bool
	MetricsPort   string

	// gRPC (C1<->C2/C4)
	GRPCPort string

	// Distributor
	DistributorHost string
	DistributorPort string
	Symbols         []string

	// Simulator (C1) market-data ingest: the host:port C5 pushes bars to
	PodHost        string
	MarketDataPort string

	LogLevel string
}

// Load reads process environment (optionally seeded by a .env file) into Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBName:     getEnv("DB_NAME", "simcore"),
		DBUser:     getEnv("DB_USER", "simcore"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBPath:     getEnv("DB_PATH", "./data/simcore.db"),
		DBMinConns: getEnvInt("DB_MIN_CONNECTIONS", 1),
		DBMaxConns: getEnvInt("DB_MAX_CONNECTIONS", 10),

		RestPort:           getEnv("REST_PORT", "8001"),
		SessionPort:        getEnv("SESSION_PORT", "8002"),
		AccessTokenExpiry:  time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		RefreshTokenExpiry: time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRY", 2592000)) * time.Second,
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),

		SessionTTLSeconds:   getEnvInt("SESSION_TTL_SECONDS", 120),
		ReconnectTimeout:    time.Duration(getEnvInt("RECONNECT_TIMEOUT", 30)) * time.Second,
		GapToleranceSeconds: getEnvInt("GAP_TOLERANCE_SECONDS", 30),

		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL", 30)) * time.Second,

		EnableTracing: getEnv("ENABLE_TRACING", "false") == "true",
		EnableMetrics: getEnv("ENABLE_METRICS", "false") == "true",
		MetricsPort:   getEnv("METRICS_PORT", "9090"),

		GRPCPort: getEnv("GRPC_PORT", "50060"),

		DistributorHost: getEnv("DISTRIBUTOR_HOST", "localhost"),
		DistributorPort: getEnv("DISTRIBUTOR_PORT", "8050"),
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "AAPL,MSFT,GOOG,AMZN,TSLA")),

		PodHost:        getEnv("POD_HOST", "localhost"),
		MarketDataPort: getEnv("MARKET_DATA_PORT", "8060"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
