package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallbiznis/workspacebilling/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Telemetry:   config.TelemetryConfig{Endpoint: "collector:4317", SamplingRatio: 3},
	})

	assert.Equal(t, "workspacebilling", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigSharesEnvironmentWithWebhookPolicy(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("DEPLOYMENT_ENV", "production")
	t.Setenv("BILLING_WEBHOOK_ALLOW_GUARDED_FALLBACK", "")

	app := config.Load()
	cfg := LoadConfig(app)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, cfg.Environment, app.BillingWebhook.Environment)
	assert.False(t, app.BillingWebhook.GuardedFallbackAllowed())
}

func TestDebugFollowsEnvironmentAndLevel(t *testing.T) {
	assert.True(t, Config{Environment: "development"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "debug"}.Debug())
	assert.False(t, Config{Environment: "staging", LogLevel: "info"}.Debug())
}
