package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookDeliveries metric.Int64Counter
	billingMutations  metric.Int64Counter
	billingEvents     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "workspacebilling"
	}
	meter := provider.Meter(name)

	webhookDeliveries, err := meter.Int64Counter("workspacebilling_webhook_deliveries_total",
		metric.WithDescription("Billing webhook deliveries by provider and outcome."))
	if err != nil {
		return nil, err
	}
	billingMutations, err := meter.Int64Counter("workspacebilling_billing_mutations_total",
		metric.WithDescription("Billing mutations applied to workspaces."))
	if err != nil {
		return nil, err
	}
	billingEvents, err := meter.Int64Counter("workspacebilling_billing_events_total",
		metric.WithDescription("Billing events emitted after an applied mutation."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookDeliveries: webhookDeliveries,
		billingMutations:  billingMutations,
		billingEvents:     billingEvents,
	}, nil
}

// RecordWebhookDelivery counts one finished delivery.
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, provider, outcome, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", normalizeLabel(provider)),
		attribute.String("outcome", normalizeLabel(outcome)),
		attribute.String("reason", normalizeLabel(reason)),
	)
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBillingMutation counts an applied mutation by resulting status.
func (m *Metrics) RecordBillingMutation(ctx context.Context, provider, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", normalizeLabel(provider)),
		attribute.String("subscription_status", normalizeLabel(status)),
	)
	m.billingMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBillingEvent counts emitted billing events.
func (m *Metrics) RecordBillingEvent(ctx context.Context, eventType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	attrs := FilterAttributes(
		attribute.String("event_type", normalizeLabel(eventType)),
		attribute.String("result", result),
	)
	m.billingEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "none"
	}
	return value
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":            {},
	"outcome":             {},
	"reason":              {},
	"event_type":          {},
	"subscription_status": {},
	"result":              {},
	"route":               {},
	"status_code":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Workspace and event ids never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
