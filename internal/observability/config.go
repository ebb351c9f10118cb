package observability

import (
	"strings"

	"github.com/smallbiznis/workspacebilling/internal/config"
)

// Config is the observability view of the application config. It never
// reads the environment itself, so the service name and deployment
// environment match what the webhook policy sees.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "workspacebilling"
	}
	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	format := cfg.LogFormat
	if format == "" {
		format = "json"
	}
	protocol := cfg.Telemetry.Protocol
	if protocol == "" {
		protocol = "grpc"
	}

	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          cfg.Environment,
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             level,
		LogFormat:            format,
		OtelEnabled:          cfg.Telemetry.Enabled,
		OtelExporterEndpoint: cfg.Telemetry.Endpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on development logging for dev environments or LOG_LEVEL=debug.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return config.IsDevelopment(c.Environment)
}
