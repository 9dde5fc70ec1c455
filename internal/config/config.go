// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// database selection, upstream feed credentials, reconciliation tuning,
// Kafka ingestion, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// UpstreamConfig holds the credentials and tuning for the external
// order-taking platform's API.
type UpstreamConfig struct {
	BaseURL string        // UPSTREAM_BASE_URL
	Token   string        // UPSTREAM_TOKEN
	Timeout time.Duration // UPSTREAM_TIMEOUT per-request deadline
}

// SyncConfig tunes the batch reconciliation engine and the cache validator.
//
// The virtual warehouse id names the one non-fulfillable location excluded
// from stock snapshots. Upstream hard-codes this location; the id is kept
// configurable here but the default must not change without product
// confirmation.
type SyncConfig struct {
	BatchSize   int           // SYNC_BATCH_SIZE orders per chunk
	Concurrency int           // SYNC_CONCURRENCY chunks in flight
	WavePause   time.Duration // SYNC_WAVE_PAUSE pause between concurrency waves

	BusinessTZ         string // SYNC_BUSINESS_TZ IANA name; "" = system local
	VirtualWarehouseID string // SYNC_VIRTUAL_WAREHOUSE

	ValidateInterval time.Duration // SYNC_VALIDATE_INTERVAL; 0 disables the scheduled validator
	HistoryRetention time.Duration // SYNC_HISTORY_RETENTION prune horizon for the audit trail
}

// KafkaConfig configures the optional push-ingestion consumer.
type KafkaConfig struct {
	Enabled       bool          // KAFKA_ENABLED
	Brokers       []string      // KAFKA_BROKERS comma-separated
	Topic         string        // KAFKA_TOPIC
	Group         string        // KAFKA_GROUP
	FlushSize     int           // KAFKA_FLUSH_SIZE buffered orders before a reconcile flush
	FlushInterval time.Duration // KAFKA_FLUSH_INTERVAL max buffering delay
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// API
	APIBasePath string

	// Database: sqlite file for dev/tests, postgres DSN for production.
	DBDriver string // sqlite|postgres
	DBPath   string // SQLite path (DB_PATH)
	DBDSN    string // Postgres DSN (DB_DSN), required when DBDriver == postgres

	// Collaborators / engine
	Upstream UpstreamConfig
	Sync     SyncConfig
	Kafka    KafkaConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// API
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Database
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:   getenv("DB_PATH", "orders.db"),
		DBDSN:    getenv("DB_DSN", ""),

		Upstream: UpstreamConfig{
			BaseURL: getenv("UPSTREAM_BASE_URL", ""),
			Token:   getenv("UPSTREAM_TOKEN", ""),
			Timeout: getdur("UPSTREAM_TIMEOUT", 20*time.Second),
		},

		Sync: SyncConfig{
			BatchSize:          getint("SYNC_BATCH_SIZE", 50),
			Concurrency:        getint("SYNC_CONCURRENCY", 3),
			WavePause:          getdur("SYNC_WAVE_PAUSE", 200*time.Millisecond),
			BusinessTZ:         getenv("SYNC_BUSINESS_TZ", ""),
			VirtualWarehouseID: getenv("SYNC_VIRTUAL_WAREHOUSE", "1"),
			ValidateInterval:   getdur("SYNC_VALIDATE_INTERVAL", 0),
			HistoryRetention:   getdur("SYNC_HISTORY_RETENTION", 30*24*time.Hour),
		},

		Kafka: KafkaConfig{
			Enabled:       getbool("KAFKA_ENABLED", false),
			Brokers:       splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:         getenv("KAFKA_TOPIC", "orders"),
			Group:         getenv("KAFKA_GROUP", "orders-sync"),
			FlushSize:     getint("KAFKA_FLUSH_SIZE", 50),
			FlushInterval: getdur("KAFKA_FLUSH_INTERVAL", 5*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-orders-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be sqlite or postgres")
	}
	if cfg.Upstream.Timeout <= 0 {
		return cfg, errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.Sync.BatchSize < 1 {
		return cfg, errors.New("SYNC_BATCH_SIZE must be >= 1")
	}
	if cfg.Sync.Concurrency < 1 {
		return cfg, errors.New("SYNC_CONCURRENCY must be >= 1")
	}
	if cfg.Sync.WavePause < 0 {
		return cfg, errors.New("SYNC_WAVE_PAUSE must be >= 0")
	}
	if strings.TrimSpace(cfg.Sync.VirtualWarehouseID) == "" {
		return cfg, errors.New("SYNC_VIRTUAL_WAREHOUSE must not be empty")
	}
	if cfg.Sync.ValidateInterval < 0 {
		return cfg, errors.New("SYNC_VALIDATE_INTERVAL must be >= 0")
	}
	if cfg.Sync.HistoryRetention <= 0 {
		return cfg, errors.New("SYNC_HISTORY_RETENTION must be > 0")
	}
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return cfg, errors.New("KAFKA_BROKERS must not be empty when KAFKA_ENABLED")
		}
		if strings.TrimSpace(cfg.Kafka.Topic) == "" {
			return cfg, errors.New("KAFKA_TOPIC must not be empty when KAFKA_ENABLED")
		}
		if cfg.Kafka.FlushSize < 1 {
			return cfg, errors.New("KAFKA_FLUSH_SIZE must be >= 1")
		}
		if cfg.Kafka.FlushInterval <= 0 {
			return cfg, errors.New("KAFKA_FLUSH_INTERVAL must be > 0")
		}
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
