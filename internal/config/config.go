// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string (optional, velocity windows fall back to the primary store)

	// External model scorer
	ScorerURL     string        // Model endpoint (optional, uses the built-in rule scorer if not set)
	ScorerAPIKey  string        // Bearer token for the model endpoint
	ScorerTimeout time.Duration // Per-call timeout for the model endpoint

	// Geolocation
	GeoIPDBPath string // MaxMind GeoIP2 City database path (optional, uses the static resolver if not set)

	// Alerting
	AlertWebhookURL    string // HMAC-signed alert delivery endpoint (optional)
	AlertWebhookSecret string
	KafkaBrokers       string // Comma-separated bootstrap servers (optional)
	KafkaAlertTopic    string

	// Observability
	OTLPEndpoint string // OTLP gRPC collector address (optional, tracing disabled if not set)

	// Security
	APIKey       string // Bearer key protecting /v1 (optional in development)
	RateLimitRPS int

	// Scoring policy
	MLWeight          float64
	VelocityWeight    float64
	DeviceWeight      float64
	GeoWeight         float64
	CriticalThreshold int
	BlockThreshold    int
	ReviewThreshold   int
	HourlyTxLimit     int
	DailyTxLimit      int
	HourlyAmountLimit float64
	DailyAmountLimit  float64
	HighRiskCountries []string

	// Records
	RetentionDays int

	// Batch evaluation
	MaxBatchSize     int
	BatchConcurrency int
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultScorerTimeout   = 3 * time.Second
	DefaultKafkaAlertTopic = "riskline.alerts"
	DefaultRateLimit       = 100
	DefaultRetentionDays   = 90
	DefaultMaxBatchSize    = 100
	DefaultBatchWorkers    = 8
)

// DefaultHighRiskCountries is the ISO 3166-1 alpha-2 set flagged by the
// geographic analyzer when HIGH_RISK_COUNTRIES is not set.
var DefaultHighRiskCountries = []string{"NG", "PK", "BD", "VE", "KP", "IR", "SY", "CU"}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:           os.Getenv("REDIS_URL"),
		ScorerURL:          os.Getenv("SCORER_URL"),
		ScorerAPIKey:       os.Getenv("SCORER_API_KEY"),
		ScorerTimeout:      getEnvDuration("SCORER_TIMEOUT", DefaultScorerTimeout),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		AlertWebhookURL:    os.Getenv("ALERT_WEBHOOK_URL"),
		AlertWebhookSecret: os.Getenv("ALERT_WEBHOOK_SECRET"),
		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		KafkaAlertTopic:    getEnv("KAFKA_ALERT_TOPIC", DefaultKafkaAlertTopic),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		APIKey:             os.Getenv("API_KEY"),
		RateLimitRPS:       int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		MLWeight:           getEnvFloat("ML_WEIGHT", 0.40),
		VelocityWeight:     getEnvFloat("VELOCITY_WEIGHT", 0.25),
		DeviceWeight:       getEnvFloat("DEVICE_WEIGHT", 0.20),
		GeoWeight:          getEnvFloat("GEO_WEIGHT", 0.15),
		CriticalThreshold:  int(getEnvInt64("CRITICAL_THRESHOLD", 950)),
		BlockThreshold:     int(getEnvInt64("BLOCK_THRESHOLD", 800)),
		ReviewThreshold:    int(getEnvInt64("REVIEW_THRESHOLD", 500)),
		HourlyTxLimit:      int(getEnvInt64("HOURLY_TX_LIMIT", 10)),
		DailyTxLimit:       int(getEnvInt64("DAILY_TX_LIMIT", 50)),
		HourlyAmountLimit:  getEnvFloat("HOURLY_AMOUNT_LIMIT", 5000),
		DailyAmountLimit:   getEnvFloat("DAILY_AMOUNT_LIMIT", 20000),
		HighRiskCountries:  getEnvList("HIGH_RISK_COUNTRIES", DefaultHighRiskCountries),
		RetentionDays:      int(getEnvInt64("RETENTION_DAYS", DefaultRetentionDays)),
		MaxBatchSize:       int(getEnvInt64("MAX_BATCH_SIZE", DefaultMaxBatchSize)),
		BatchConcurrency:   int(getEnvInt64("BATCH_CONCURRENCY", DefaultBatchWorkers)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	sum := c.MLWeight + c.VelocityWeight + c.DeviceWeight + c.GeoWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.3f", sum)
	}

	if c.CriticalThreshold <= c.BlockThreshold || c.BlockThreshold <= c.ReviewThreshold {
		return fmt.Errorf("thresholds must be ordered: critical > block > review")
	}

	if c.ReviewThreshold <= 0 || c.CriticalThreshold > 1000 {
		return fmt.Errorf("thresholds must fall within the 0-1000 score range")
	}

	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive")
	}

	if c.MaxBatchSize <= 0 || c.MaxBatchSize > 1000 {
		return fmt.Errorf("MAX_BATCH_SIZE must be between 1 and 1000")
	}

	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive")
	}

	if c.IsProduction() && c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}

	return nil
}

// Policy builds the scoring policy from the configured overrides. Limits
// without an environment knob keep the stock values.
func (c *Config) Policy() fraud.Policy {
	p := fraud.DefaultPolicy()

	p.MLWeight = c.MLWeight
	p.VelocityWeight = c.VelocityWeight
	p.DeviceWeight = c.DeviceWeight
	p.GeoWeight = c.GeoWeight

	p.CriticalThreshold = c.CriticalThreshold
	p.BlockThreshold = c.BlockThreshold
	p.ReviewThreshold = c.ReviewThreshold

	p.Velocity.HourlyTxLimit = c.HourlyTxLimit
	p.Velocity.DailyTxLimit = c.DailyTxLimit
	p.Velocity.HourlyAmountLimit = decimal.NewFromFloat(c.HourlyAmountLimit)
	p.Velocity.DailyAmountLimit = decimal.NewFromFloat(c.DailyAmountLimit)

	p.Geo.HighRiskCountries = c.HighRiskCountries

	return p
}

// Retention is the evaluation record lifetime.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
