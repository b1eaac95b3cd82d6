package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL         string
	ServerAddr          string
	MigrationsDir       string
	SessionTTL          time.Duration
	SessionCookieName   string
	SessionCookieSecure bool
	SessionSweep        time.Duration
	RedisURL            string
	ProposalPriceRule   string
	WSSendBuffer        int
	AllowedOrigins      []string
	ShutdownTimeout     time.Duration
}

// Load reads configuration from the environment. Values in a .env file in the
// working directory are applied first without overriding the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "bazaar")
		pass := getenv("POSTGRES_PASSWORD", "bazaar_pass")
		db := getenv("POSTGRES_DB", "bazaar")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	cfg := &Config{
		DatabaseURL:         dsn,
		ServerAddr:          getenv("SERVER_ADDR", "0.0.0.0:8080"),
		MigrationsDir:       getenv("MIGRATIONS_DIR", "internal/migrations"),
		SessionTTL:          parseDuration(getenv("SESSION_TTL", "24h"), 24*time.Hour),
		SessionCookieName:   getenv("SESSION_COOKIE_NAME", "jwt"),
		SessionCookieSecure: parseBool(getenv("SESSION_COOKIE_SECURE", "false"), false),
		SessionSweep:        parseDuration(getenv("SESSION_SWEEP_INTERVAL", "10m"), 10*time.Minute),
		RedisURL:            os.Getenv("REDIS_URL"),
		ProposalPriceRule:   getenv("PROPOSAL_PRICE_RULE", "price >= 0"),
		WSSendBuffer:        parseInt(getenv("WS_SEND_BUFFER", "128"), 128),
		AllowedOrigins:      splitList(os.Getenv("WS_ALLOWED_ORIGINS")),
		ShutdownTimeout:     parseDuration(getenv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}
	if cfg.WSSendBuffer <= 0 {
		return nil, fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", cfg.WSSendBuffer)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}
	if cfg.SessionSweep <= 0 {
		return nil, fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
