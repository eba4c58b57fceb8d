// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, the
// chat-completion and market-data upstreams, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/averla/portfolio-ai-backend/internal/sysutil"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "portfolio-ai-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ChatModelConfig defines the hosted chat-completion upstream.
//
// Temperature and TopP default low to favor deterministic, conservative
// completions appropriate for financial content.
type ChatModelConfig struct {
	BaseURL      string        // CHAT_MODEL_BASE_URL
	APIKey       string        // CHAT_MODEL_API_KEY
	Model        string        // CHAT_MODEL_NAME
	Temperature  float64       // CHAT_MODEL_TEMPERATURE [0..2]
	TopP         float64       // CHAT_MODEL_TOP_P (0..1]
	Timeout      time.Duration // CHAT_MODEL_TIMEOUT (default 120s)
	MaxToolRound int           // CHAT_MODEL_MAX_TOOL_ROUNDS per turn (default 3)
}

// MarketConfig defines the market intelligence upstream.
type MarketConfig struct {
	BaseURL string        // MARKET_BASE_URL
	APIKey  string        // MARKET_API_KEY
	Timeout time.Duration // MARKET_TIMEOUT (default 30s)
}

// MemoryConfig bounds conversation context size.
type MemoryConfig struct {
	RecentWindow     int           // MEMORY_RECENT_WINDOW: raw messages kept in the prompt
	SummaryThreshold int           // MEMORY_SUMMARY_THRESHOLD: messages/day before summarizing
	RetentionCutoff  time.Duration // MEMORY_RETENTION_CUTOFF: purge inactive threads older than this
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath       string // SQLite path
	MaxQueryLen  int    // input guardrail character ceiling
	DefaultTitle string // placeholder title for new threads

	// Upstreams
	ChatModel ChatModelConfig
	Market    MarketConfig

	// Memory
	Memory MemoryConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

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
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 150*time.Second), // must cover a full model turn
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:       getenv("DB_PATH", "app.db"),
		MaxQueryLen:  getint("MAX_QUERY_LEN", 5000),
		DefaultTitle: getenv("DEFAULT_THREAD_TITLE", "New conversation"),

		// Upstreams
		ChatModel: ChatModelConfig{
			BaseURL:      getenv("CHAT_MODEL_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:       getenv("CHAT_MODEL_API_KEY", ""),
			Model:        getenv("CHAT_MODEL_NAME", "openai/gpt-4o-mini"),
			Temperature:  getfloat("CHAT_MODEL_TEMPERATURE", 0.2),
			TopP:         getfloat("CHAT_MODEL_TOP_P", 0.9),
			Timeout:      getdur("CHAT_MODEL_TIMEOUT", 120*time.Second),
			MaxToolRound: getint("CHAT_MODEL_MAX_TOOL_ROUNDS", 3),
		},
		Market: MarketConfig{
			BaseURL: getenv("MARKET_BASE_URL", ""),
			APIKey:  getenv("MARKET_API_KEY", ""),
			Timeout: getdur("MARKET_TIMEOUT", 30*time.Second),
		},

		// Memory
		Memory: MemoryConfig{
			RecentWindow:     getint("MEMORY_RECENT_WINDOW", 10),
			SummaryThreshold: getint("MEMORY_SUMMARY_THRESHOLD", 20),
			RetentionCutoff:  getdur("MEMORY_RETENTION_CUTOFF", 90*24*time.Hour),
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

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "portfolio-ai-backend"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxQueryLen < 1 {
		return cfg, errors.New("MAX_QUERY_LEN must be >= 1")
	}
	if cfg.ChatModel.Temperature < 0 || cfg.ChatModel.Temperature > 2 {
		return cfg, errors.New("CHAT_MODEL_TEMPERATURE must be in [0,2]")
	}
	if cfg.ChatModel.TopP <= 0 || cfg.ChatModel.TopP > 1 {
		return cfg, errors.New("CHAT_MODEL_TOP_P must be in (0,1]")
	}
	if cfg.ChatModel.Timeout <= 0 || cfg.Market.Timeout <= 0 {
		return cfg, errors.New("upstream timeouts must be positive durations")
	}
	if cfg.ChatModel.MaxToolRound < 1 {
		return cfg, errors.New("CHAT_MODEL_MAX_TOOL_ROUNDS must be >= 1")
	}
	if cfg.Memory.RecentWindow < 1 {
		return cfg, errors.New("MEMORY_RECENT_WINDOW must be >= 1")
	}
	if cfg.Memory.SummaryThreshold < 1 {
		return cfg, errors.New("MEMORY_SUMMARY_THRESHOLD must be >= 1")
	}
	if cfg.Memory.RetentionCutoff <= 0 {
		return cfg, errors.New("MEMORY_RETENTION_CUTOFF must be > 0")
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

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

// getbool is tri-state: truthy literals win, explicit falsy literals win,
// anything else keeps the default.
func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
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
