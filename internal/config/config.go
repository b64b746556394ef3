package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

type Config struct {
	Env   string
	Port  int
	DBURL string
	// Store selects the credential store backend: "postgres" or "memory".
	Store string

	JWTSecret                  string
	JWTAccessTTLMinutes        int
	JWTRefreshTTLDays          int
	JWTResetPasswordTTLMinutes int
	JWTVerifyEmailTTLMinutes   int
	RequestTimeout             time.Duration

	AdminEmail    string
	AdminPassword string
	AdminName     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitAuth      int
	CORSAllowedOrigins []string
	OTLPEndpoint       string
	TraceSampleRatio   float64
	SweepInterval      time.Duration
	SweepSchedule      string
	SweeperPort        int
}

// Load reads an optional .env file and then the process environment.
// A missing signing secret is fatal: no token could ever be issued or verified.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "err", err)
	}

	cfg := Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),
		Store: strings.ToLower(getEnv("STORE", "postgres")),

		JWTSecret:                  os.Getenv("JWT_SECRET"),
		JWTAccessTTLMinutes:        getEnvInt("JWT_ACCESS_TTL_MINUTES", 30),
		JWTRefreshTTLDays:          getEnvInt("JWT_REFRESH_TTL_DAYS", 30),
		JWTResetPasswordTTLMinutes: getEnvInt("JWT_RESET_PASSWORD_TTL_MINUTES", 10),
		JWTVerifyEmailTTLMinutes:   getEnvInt("JWT_VERIFY_EMAIL_TTL_MINUTES", 10),
		RequestTimeout:             time.Duration(getEnvInt("REQUEST_TIMEOUT_MS", 3000)) * time.Millisecond,

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitAuth:      getEnvInt("RATE_LIMIT_AUTH", 20),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:   getEnvFloat("OTEL_TRACES_SAMPLER_RATIO", 0.2),
		SweepInterval:      time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		SweepSchedule:      strings.TrimSpace(os.Getenv("SWEEP_SCHEDULE")),
		SweeperPort:        getEnvInt("SWEEPER_PORT", 9090),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingJWTSecret
	}

	switch c.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORE %q", c.Store)
	}

	if c.JWTAccessTTLMinutes <= 0 || c.JWTRefreshTTLDays <= 0 {
		return errors.New("token TTLs must be positive")
	}

	return nil
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

func (c Config) ResetPasswordTTL() time.Duration {
	return time.Duration(c.JWTResetPasswordTTLMinutes) * time.Minute
}

func (c Config) VerifyEmailTTL() time.Duration {
	return time.Duration(c.JWTVerifyEmailTTLMinutes) * time.Minute
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "orderhub")
	pass := getEnv("DB_PASSWORD", "orderhub")
	name := getEnv("DB_NAME", "orderhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// WithTimeout derives a deadline from the parent so that request cancellation propagates to store calls.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float env var, using default", "key", key, "value", v)
		return fallback
	}
	return f
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
