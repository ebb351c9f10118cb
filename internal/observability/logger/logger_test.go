package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smallbiznis/workspacebilling/internal/observability/obscontext"
	"github.com/smallbiznis/workspacebilling/pkg/telemetry/correlation"
)

func TestWithContextAddsDeliveryFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "corr-1")
	ctx = obscontext.WithDelivery(ctx, obscontext.Delivery{Provider: "stripe", EventID: "evt_1"})
	ctx = obscontext.WithDelivery(ctx, obscontext.Delivery{WorkspaceID: "W1"})

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "corr-1", fields["correlation_id"])
	assert.Equal(t, "stripe", fields["provider"])
	assert.Equal(t, "evt_1", fields["event_id"])
	assert.Equal(t, "W1", fields["workspace_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextWithoutIdentifiersReturnsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestGinMiddlewareSetsIdentifiers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{}))
	router.POST("/api/billing/webhook", func(c *gin.Context) {
		assert.Equal(t, "req-42", obscontext.RequestIDFromContext(c.Request.Context()))
		c.Status(http.StatusOK)
	})
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/billing/webhook", entries[0].ContextMap()["route"])

	// health checks log at debug and are filtered out at info.
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, logs.FilterMessage("http_request").All(), 1)
}
