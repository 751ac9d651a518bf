package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendWebsocket = "websocket"

	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	StorageDriver  string        `mapstructure:"STORAGE_DRIVER"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	EventsChannel  string        `mapstructure:"EVENTS_CHANNEL"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	LockBackend   string        `mapstructure:"LOCK_BACKEND"`
	LockTTL       time.Duration `mapstructure:"LOCK_TTL"`
	LockWait      time.Duration `mapstructure:"LOCK_WAIT"`
	EventsBackend string        `mapstructure:"EVENTS_BACKEND"`

	TurnoverDefaultMinutes int    `mapstructure:"TURNOVER_DEFAULT_MINUTES"`
	TurnoverClassMinutes   string `mapstructure:"TURNOVER_CLASS_MINUTES"`

	ReportWindowPadding     time.Duration `mapstructure:"REPORT_WINDOW_PADDING"`
	ReportFallbackLimit     int           `mapstructure:"REPORT_FALLBACK_LIMIT"`
	ReportAdmissionFallback time.Duration `mapstructure:"REPORT_ADMISSION_FALLBACK"`
	ReportTimezone          string        `mapstructure:"REPORT_TIMEZONE"`
	ReportCacheTTL          time.Duration `mapstructure:"REPORT_CACHE_TTL"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"STORAGE_DRIVER", "REDIS_URL", "EVENTS_CHANNEL", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"AUTH_SIGNING_KEY", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "LOCK_BACKEND", "LOCK_TTL", "LOCK_WAIT", "EVENTS_BACKEND",
	"TURNOVER_DEFAULT_MINUTES", "TURNOVER_CLASS_MINUTES", "REPORT_WINDOW_PADDING",
	"REPORT_FALLBACK_LIMIT", "REPORT_ADMISSION_FALLBACK", "REPORT_TIMEZONE",
	"REPORT_CACHE_TTL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV when empty
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("EVENTS_CHANNEL", "bedflow:events")
	v.SetDefault("AUTH_ISSUER", "bedflow")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOCK_BACKEND", BackendMemory)
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("LOCK_WAIT", "5s")
	v.SetDefault("EVENTS_BACKEND", BackendWebsocket)
	v.SetDefault("TURNOVER_DEFAULT_MINUTES", 30)
	v.SetDefault("TURNOVER_CLASS_MINUTES", "icu=60,isolation=90")
	v.SetDefault("REPORT_WINDOW_PADDING", "24h")
	v.SetDefault("REPORT_FALLBACK_LIMIT", 10)
	v.SetDefault("REPORT_ADMISSION_FALLBACK", "24h")
	v.SetDefault("REPORT_TIMEZONE", "UTC")
	v.SetDefault("REPORT_CACHE_TTL", "10m")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.StorageDriver == StoragePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %q", StoragePostgres)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments run without token checks and everything else requires JWTs.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// ClassMinutes parses TURNOVER_CLASS_MINUTES, a comma-separated list of
// class=minutes pairs.
func (c *Config) ClassMinutes() (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(c.TurnoverClassMinutes, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		class, mins, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("TURNOVER_CLASS_MINUTES: %q is not class=minutes", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(mins))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("TURNOVER_CLASS_MINUTES: %q needs a positive minute count", pair)
		}
		out[strings.ToLower(strings.TrimSpace(class))] = n
	}
	return out, nil
}

// Location resolves REPORT_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	if c.ReportTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

// Validate checks cross-field constraints before the server starts.
func (c *Config) Validate() error {
	switch c.ResolvedAuthMode() {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE %q is not allowed when ENV=production", AuthModeDevelopment)
		}
	case AuthModeJWT:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes when AUTH_MODE is %q", AuthModeJWT)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDevelopment, AuthModeJWT, c.AuthMode)
	}

	switch c.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMemory, StoragePostgres, c.StorageDriver)
	}
	if c.StorageDriver == StoragePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %q", StoragePostgres)
	}

	switch c.LockBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.LockBackend)
	}
	switch c.EventsBackend {
	case BackendWebsocket, BackendRedis:
	default:
		return fmt.Errorf("EVENTS_BACKEND must be %q or %q, got %q", BackendWebsocket, BackendRedis, c.EventsBackend)
	}
	if (c.LockBackend == BackendRedis || c.EventsBackend == BackendRedis) && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when a redis backend is selected")
	}
	if c.LockBackend == BackendRedis && c.LockTTL <= c.LockWait {
		return fmt.Errorf("LOCK_TTL (%s) must exceed LOCK_WAIT (%s)", c.LockTTL, c.LockWait)
	}
	if c.LockWait <= 0 {
		return fmt.Errorf("LOCK_WAIT must be positive")
	}

	if c.TurnoverDefaultMinutes <= 0 {
		return fmt.Errorf("TURNOVER_DEFAULT_MINUTES must be positive")
	}
	if _, err := c.ClassMinutes(); err != nil {
		return err
	}
	if c.ReportWindowPadding < 0 || c.ReportAdmissionFallback <= 0 {
		return fmt.Errorf("REPORT_WINDOW_PADDING must not be negative and REPORT_ADMISSION_FALLBACK must be positive")
	}
	if c.ReportFallbackLimit <= 0 {
		return fmt.Errorf("REPORT_FALLBACK_LIMIT must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
