package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) BillingWebhookConfig { return cfg.BillingWebhook }),
	fx.Provide(NewPlanCatalogHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string
	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	BillingWebhook BillingWebhookConfig
	BillingEvents  BillingEventsConfig
}

// TelemetryConfig controls the OTLP trace and metric exporters.
type TelemetryConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

// BillingWebhookConfig is everything the ingestion path reads. It is built
// once at startup and passed to constructors; nothing below reads the env.
type BillingWebhookConfig struct {
	Environment string

	StripeWebhookSecret string
	// StripeVerifierEnabled turns the signature capability off entirely,
	// which surfaces as missing_verifier.
	StripeVerifierEnabled bool
	SignatureTolerance    time.Duration

	LegacySecret string
	// AllowGuardedFallback overrides the environment default when set.
	AllowGuardedFallback *bool

	RetryFailedReceipts bool
	AdminToken          string
}

// BillingEventsConfig configures where billing events are emitted besides the database.
type BillingEventsConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Stream        string
	MaxLen        int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	// DEPLOYMENT_ENV overrides ENVIRONMENT. Every consumer reads this one value.
	environment := strings.TrimSpace(getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")))

	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"); strings.TrimSpace(traces) != "" {
		protocol = traces
	}

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "workspacebilling"),
		AppVersion:  getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:   strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		Telemetry: TelemetryConfig{
			Enabled:       getenvBool("OTEL_ENABLED", false),
			Endpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			Protocol:      strings.ToLower(strings.TrimSpace(protocol)),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		BillingWebhook: BillingWebhookConfig{
			Environment:           environment,
			StripeWebhookSecret:   strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			StripeVerifierEnabled: getenvBool("STRIPE_VERIFIER_ENABLED", true),
			SignatureTolerance:    time.Duration(getenvInt("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)) * time.Second,
			LegacySecret:          strings.TrimSpace(getenv("BILLING_WEBHOOK_SECRET", "")),
			AllowGuardedFallback:  getenvOptionalBool("BILLING_WEBHOOK_ALLOW_GUARDED_FALLBACK"),
			RetryFailedReceipts:   getenvBool("BILLING_WEBHOOK_RETRY_FAILED", false),
			AdminToken:            strings.TrimSpace(getenv("BILLING_ADMIN_TOKEN", "")),
		},
		BillingEvents: BillingEventsConfig{
			RedisAddr:     strings.TrimSpace(getenv("BILLING_EVENTS_REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("BILLING_EVENTS_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("BILLING_EVENTS_REDIS_DB", 0),
			Stream:        getenv("BILLING_EVENTS_STREAM", "billing:events"),
			MaxLen:        int64(getenvInt("BILLING_EVENTS_STREAM_MAXLEN", 10000)),
		},
	}

	return cfg
}

// IsProductionLike reports whether env should be treated as production.
func IsProductionLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging":
		return true
	default:
		return false
	}
}

// IsDevelopment reports whether env is a local or test deployment.
func IsDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// GuardedFallbackAllowed reports whether the legacy secret may stand in for an
// unavailable provider verification.
func (c BillingWebhookConfig) GuardedFallbackAllowed() bool {
	if c.AllowGuardedFallback != nil {
		return *c.AllowGuardedFallback
	}
	return !IsProductionLike(c.Environment)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

func getenvBool(key string, def bool) bool {
	parsed, ok := parseBool(os.Getenv(key))
	if !ok {
		return def
	}
	return parsed
}

func getenvOptionalBool(key string) *bool {
	parsed, ok := parseBool(os.Getenv(key))
	if !ok {
		return nil
	}
	return &parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
