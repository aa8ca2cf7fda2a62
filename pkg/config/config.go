package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	NATS      NATSConfig
	Oracle    OracleConfig
	Ledger    LedgerConfig
	RateLimit RateLimitConfig
	Sentry    SentryConfig
	Tracing   TracingConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string
	Environment    string
	ServiceName    string
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int    // per-request handler timeout in seconds
	CORSOrigins    string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
	Enabled  bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string
	Expiration int // in hours
}

// NATSConfig holds the event bus configuration
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Enabled       bool
}

// OracleConfig holds price oracle configuration
type OracleConfig struct {
	Mode             string // "static" or "feed"
	StaticAnswer     int64  // native asset price in USD, scaled by Decimals
	Decimals         uint8
	FeedURL          string
	FeedAssetID      string
	FeedTimeout      time.Duration
	CacheTTL         time.Duration
	MaxAge           time.Duration
	BreakerInterval  time.Duration // closed-state counting window
	BreakerTimeout   time.Duration // open time before a trial request
	BreakerFailures  int
	BreakerSuccesses int
}

// LedgerConfig holds gift card ledger configuration
type LedgerConfig struct {
	AdminID        uuid.UUID
	TokenURI       string
	NativeDecimals uint8
	JournalEnabled bool
	JournalTimeout time.Duration // bound on one journal write
}

// RateLimitConfig holds Redis-backed rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	WindowSeconds     int
	DefaultLimit      int
	DefaultBurst      int
	AnonymousLimit    int
	AnonymousBurst    int
	RedisPrefix       string
	EndpointOverrides map[string]EndpointRateLimitConfig
}

// EndpointRateLimitConfig overrides the defaults for one route
type EndpointRateLimitConfig struct {
	AuthenticatedLimit int
	AuthenticatedBurst int
	AnonymousLimit     int
	AnonymousBurst     int
	WindowSeconds      int
}

// Window returns the default rate limit window
func (c RateLimitConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

// TracingConfig holds OpenTelemetry export configuration
type TracingConfig struct {
	Enabled     bool
	Endpoint    string // OTLP/gRPC collector host:port
	Insecure    bool
	SampleRatio float64
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN     string
	Enabled bool
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	adminID, err := uuid.Parse(getEnv("LEDGER_ADMIN_ID", uuid.Nil.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_ADMIN_ID: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ServiceName:    serviceName,
			ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeout: getEnvAsInt("REQUEST_TIMEOUT", 15),
			CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "giftcards"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
			Enabled:  getEnvAsBool("DB_ENABLED", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			Expiration: getEnvAsInt("JWT_EXPIRATION", 24),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "giftcards"),
			Enabled:       getEnvAsBool("NATS_ENABLED", false),
		},
		Oracle: OracleConfig{
			Mode:             getEnv("ORACLE_MODE", "static"),
			StaticAnswer:     getEnvAsInt64("ORACLE_STATIC_ANSWER", 2000_00000000),
			Decimals:         uint8(getEnvAsInt("ORACLE_DECIMALS", 8)),
			FeedURL:          getEnv("ORACLE_FEED_URL", "https://api.coingecko.com/api/v3/simple/price"),
			FeedAssetID:      getEnv("ORACLE_FEED_ASSET", "ethereum"),
			FeedTimeout:      getEnvAsDuration("ORACLE_FEED_TIMEOUT", 5*time.Second),
			CacheTTL:         getEnvAsDuration("ORACLE_CACHE_TTL", 30*time.Second),
			MaxAge:           getEnvAsDuration("ORACLE_MAX_AGE", time.Hour),
			BreakerInterval:  getEnvAsDuration("ORACLE_BREAKER_INTERVAL", time.Minute),
			BreakerTimeout:   getEnvAsDuration("ORACLE_BREAKER_TIMEOUT", 30*time.Second),
			BreakerFailures:  getEnvAsInt("ORACLE_BREAKER_FAILURES", 5),
			BreakerSuccesses: getEnvAsInt("ORACLE_BREAKER_SUCCESSES", 1),
		},
		Ledger: LedgerConfig{
			AdminID:        adminID,
			TokenURI:       getEnv("LEDGER_TOKEN_URI", ""),
			NativeDecimals: uint8(getEnvAsInt("LEDGER_NATIVE_DECIMALS", 18)),
			JournalEnabled: getEnvAsBool("LEDGER_JOURNAL_ENABLED", true),
			JournalTimeout: getEnvAsDuration("LEDGER_JOURNAL_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", true),
			WindowSeconds:  getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			DefaultLimit:   getEnvAsInt("RATE_LIMIT_DEFAULT_LIMIT", 120),
			DefaultBurst:   getEnvAsInt("RATE_LIMIT_DEFAULT_BURST", 20),
			AnonymousLimit: getEnvAsInt("RATE_LIMIT_ANON_LIMIT", 60),
			AnonymousBurst: getEnvAsInt("RATE_LIMIT_ANON_BURST", 10),
			RedisPrefix:    getEnv("RATE_LIMIT_REDIS_PREFIX", "giftcards:rl"),
			EndpointOverrides: map[string]EndpointRateLimitConfig{
				"/api/v1/giftcards/purchases": {
					AuthenticatedLimit: getEnvAsInt("RATE_LIMIT_PURCHASE_LIMIT", 10),
					AuthenticatedBurst: getEnvAsInt("RATE_LIMIT_PURCHASE_BURST", 2),
				},
			},
		},
		Sentry: SentryConfig{
			DSN:     getEnv("SENTRY_DSN", ""),
			Enabled: getEnvAsBool("SENTRY_ENABLED", false),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that the ledger cannot start without
func (c *Config) Validate() error {
	if c.Ledger.AdminID == uuid.Nil {
		return fmt.Errorf("LEDGER_ADMIN_ID is required")
	}
	switch c.Oracle.Mode {
	case "static":
		if c.Oracle.StaticAnswer <= 0 {
			return fmt.Errorf("ORACLE_STATIC_ANSWER must be positive")
		}
	case "feed":
		if c.Oracle.FeedURL == "" || c.Oracle.FeedAssetID == "" {
			return fmt.Errorf("ORACLE_FEED_URL and ORACLE_FEED_ASSET are required in feed mode")
		}
	default:
		return fmt.Errorf("unknown ORACLE_MODE %q", c.Oracle.Mode)
	}
	if c.Oracle.Decimals > 18 {
		return fmt.Errorf("ORACLE_DECIMALS must be at most 18")
	}
	if c.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must not be negative")
	}
	for endpoint, override := range c.RateLimit.EndpointOverrides {
		if override.WindowSeconds < 0 {
			return fmt.Errorf("rate limit window for %s must not be negative", endpoint)
		}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when tracing is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the database connection string in URL form, as migrate expects it
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
