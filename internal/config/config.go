// Package config provides engine configuration loaded from environment
// variables with defaults and validation. It centralizes rate-limit
// policies, transaction-integrity windows, credit amount rules, shared
// store connectivity, audit persistence, logging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IdentityLimit is the fixed-window policy for one identity type.
type IdentityLimit struct {
	Requests int64         // max requests per window
	Window   time.Duration // counter TTL
	Prefix   string        // store key prefix, e.g. "rate_limit:ip"
	Enabled  bool          // per-type kill switch
}

// RateLimitConfig groups the per-identity-type policies plus the global
// kill switch. With Enabled false every check passes with the -1 sentinel.
type RateLimitConfig struct {
	Enabled bool
	IP      IdentityLimit
	User    IdentityLimit
	APIKey  IdentityLimit
}

// CreditConfig defines the exact-decimal amount rules.
type CreditConfig struct {
	Precision     int32           // max fractional digits
	MinAmount     decimal.Decimal // minimum magnitude
	MaxAmount     decimal.Decimal // maximum magnitude
	AllowNegative bool            // whether debits are admissible
}

// RedisConfig defines connectivity for the shared counter store.
type RedisConfig struct {
	Addr         string // REDIS_ADDR (host:port)
	Password     string // REDIS_PASSWORD
	DB           int    // REDIS_DB
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-credit-gate")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the admission engine.
type Config struct {
	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Rate limiting
	RateLimit RateLimitConfig

	// Transaction integrity. ReplayWindow is the TTL on dedup keys;
	// TimestampWindow bounds how stale or futuristic a submission
	// timestamp may be, and falls back to ReplayWindow when unset.
	ReplayWindow    time.Duration // TRANSACTION_WINDOW (seconds)
	TimestampWindow time.Duration // TIMESTAMP_WINDOW (seconds, 0 = ReplayWindow)

	// Credit amount rules
	Credit CreditConfig

	// Payload ceilings
	MaxMetadataBytes  int // MAX_METADATA_SIZE
	MaxReferenceIDLen int // MAX_REFERENCE_ID_LENGTH

	// Balance enforcement
	EnforceBalance bool   // ENFORCE_BALANCE_VALIDATION
	PostgresDSN    string // balance lookup database

	// Audit persistence (SQLite); empty path disables the store sink
	AuditDBPath string

	// Shared counter store
	Redis RedisConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled: getbool("RATE_LIMIT_ENABLED", true),
			IP: IdentityLimit{
				Requests: getint64("RATE_LIMIT_IP_REQUESTS", 100),
				Window:   getsecs("RATE_LIMIT_IP_WINDOW", 60*time.Second),
				Prefix:   getenv("RATE_LIMIT_IP_PREFIX", "rate_limit:ip"),
				Enabled:  getbool("RATE_LIMIT_IP_ENABLED", true),
			},
			User: IdentityLimit{
				Requests: getint64("RATE_LIMIT_USER_REQUESTS", 1000),
				Window:   getsecs("RATE_LIMIT_USER_WINDOW", time.Hour),
				Prefix:   getenv("RATE_LIMIT_USER_PREFIX", "rate_limit:user"),
				Enabled:  getbool("RATE_LIMIT_USER_ENABLED", true),
			},
			APIKey: IdentityLimit{
				Requests: getint64("RATE_LIMIT_API_KEY_REQUESTS", 10000),
				Window:   getsecs("RATE_LIMIT_API_KEY_WINDOW", time.Hour),
				Prefix:   getenv("RATE_LIMIT_API_KEY_PREFIX", "rate_limit:api_key"),
				Enabled:  getbool("RATE_LIMIT_API_KEY_ENABLED", true),
			},
		},

		// Transaction integrity
		ReplayWindow:    getsecs("TRANSACTION_WINDOW", time.Hour),
		TimestampWindow: getsecs("TIMESTAMP_WINDOW", 0),

		// Credit amount rules (decimals parsed below)
		Credit: CreditConfig{
			Precision:     int32(getint("CREDIT_PRECISION", 2)),
			AllowNegative: getbool("CREDIT_ALLOW_NEGATIVE", false),
		},

		// Payload ceilings
		MaxMetadataBytes:  getint("MAX_METADATA_SIZE", 1024),
		MaxReferenceIDLen: getint("MAX_REFERENCE_ID_LENGTH", 64),

		// Balance enforcement
		EnforceBalance: getbool("ENFORCE_BALANCE_VALIDATION", false),
		PostgresDSN:    getenv("POSTGRES_DSN", ""),

		// Audit persistence
		AuditDBPath: getenv("AUDIT_DB_PATH", ""),

		// Shared counter store
		Redis: RedisConfig{
			Addr:         getenv("REDIS_ADDR", "localhost:6379"),
			Password:     getenv("REDIS_PASSWORD", ""),
			DB:           getint("REDIS_DB", 0),
			DialTimeout:  getdur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getdur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getdur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-credit-gate"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	var err error
	if cfg.Credit.MinAmount, err = getdecimal("CREDIT_MIN_AMOUNT", "0.01"); err != nil {
		return cfg, err
	}
	if cfg.Credit.MaxAmount, err = getdecimal("CREDIT_MAX_AMOUNT", "1000000"); err != nil {
		return cfg, err
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	// The timestamp-validity window defaults to the replay window; they are
	// independently configurable but rarely diverge.
	if cfg.TimestampWindow <= 0 {
		cfg.TimestampWindow = cfg.ReplayWindow
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	for _, lim := range []struct {
		name string
		IdentityLimit
	}{
		{"RATE_LIMIT_IP", cfg.RateLimit.IP},
		{"RATE_LIMIT_USER", cfg.RateLimit.User},
		{"RATE_LIMIT_API_KEY", cfg.RateLimit.APIKey},
	} {
		if !lim.Enabled {
			continue
		}
		if lim.Requests < 1 {
			return cfg, errors.New(lim.name + "_REQUESTS must be >= 1")
		}
		if lim.Window <= 0 {
			return cfg, errors.New(lim.name + "_WINDOW must be a positive duration")
		}
		if strings.TrimSpace(lim.Prefix) == "" {
			return cfg, errors.New(lim.name + "_PREFIX must not be empty")
		}
	}
	if cfg.ReplayWindow <= 0 {
		return cfg, errors.New("TRANSACTION_WINDOW must be a positive duration")
	}
	if cfg.Credit.Precision < 0 || cfg.Credit.Precision > 18 {
		return cfg, errors.New("CREDIT_PRECISION must be between 0 and 18")
	}
	if cfg.Credit.MinAmount.IsNegative() {
		return cfg, errors.New("CREDIT_MIN_AMOUNT must be >= 0")
	}
	if cfg.Credit.MaxAmount.Cmp(cfg.Credit.MinAmount) < 0 {
		return cfg, errors.New("CREDIT_MAX_AMOUNT must be >= CREDIT_MIN_AMOUNT")
	}
	if cfg.MaxMetadataBytes <= 0 {
		return cfg, errors.New("MAX_METADATA_SIZE must be > 0")
	}
	if cfg.MaxReferenceIDLen <= 0 {
		return cfg, errors.New("MAX_REFERENCE_ID_LENGTH must be > 0")
	}
	if cfg.EnforceBalance && strings.TrimSpace(cfg.PostgresDSN) == "" {
		return cfg, errors.New("POSTGRES_DSN must be set when ENFORCE_BALANCE_VALIDATION is on")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if cfg.Redis.DB < 0 {
		return cfg, errors.New("REDIS_DB must be >= 0")
	}
	if cfg.Redis.DialTimeout <= 0 || cfg.Redis.ReadTimeout <= 0 || cfg.Redis.WriteTimeout <= 0 {
		return cfg, errors.New("redis timeouts must be positive durations")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps beyond decimal) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getsecs reads a window duration. Plain integers are treated as seconds
// ("3600" = 1h) for parity with the original deployment environment;
// Go duration strings ("1h30m") are accepted as well.
func getsecs(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(i) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getdecimal reads an exact decimal literal, with a descriptive error
// naming the offending variable.
func getdecimal(k, def string) (decimal.Decimal, error) {
	raw := getenv(k, def)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New(k + " must be a decimal number")
	}
	return d, nil
}
