package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("workspace_id", "W1"),
		attribute.String("event_id", "evt_1"),
		attribute.String("outcome", "duplicate"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("provider"))
	assert.Contains(t, keys, attribute.Key("outcome"))
}

func TestRecordWebhookDelivery(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordWebhookDelivery(ctx, "stripe", "processed", "")
	m.RecordWebhookDelivery(ctx, "stripe", "processed", "")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var found bool
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != "workspacebilling_webhook_deliveries_total" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(2), sum.DataPoints[0].Value)
			reason, ok := sum.DataPoints[0].Attributes.Value("reason")
			require.True(t, ok)
			assert.Equal(t, "none", reason.AsString())
			found = true
		}
	}
	assert.True(t, found)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookDelivery(context.Background(), "stripe", "processed", "")
	m.RecordBillingMutation(context.Background(), "stripe", "active")
	m.RecordBillingEvent(context.Background(), "webhook_billing_updated", true)
}
