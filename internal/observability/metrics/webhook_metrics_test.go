package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	workspacedomain "github.com/smallbiznis/workspacebilling/internal/workspace/domain"
)

func TestClassifyApplyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ApplyErrorDeadlineExceeded},
		{name: "workspace missing", err: fmt.Errorf("apply: %w", workspacedomain.ErrWorkspaceNotFound), want: ApplyErrorWorkspaceNotFound},
		{name: "lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: ApplyErrorDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: ApplyErrorSerializationFailure},
		{name: "other pg error", err: &pgconn.PgError{Code: "42P01"}, want: ApplyErrorDB},
		{name: "gorm", err: gorm.ErrInvalidDB, want: ApplyErrorDB},
		{name: "unknown", err: errors.New("boom"), want: ApplyErrorUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyApplyError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestWebhookMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWebhookMetrics(registry, Config{ServiceName: "test", Environment: "test"})

	m.IncApplyError(workspacedomain.ErrWorkspaceNotFound)
	m.IncApplyError(workspacedomain.ErrWorkspaceNotFound)
	m.IncBookkeepingFailure(BookkeepingStageEmit)
	m.IncGuardedFallback()
	m.ObserveIngest("stripe", OutcomeProcessed, 20*time.Millisecond)

	if got := testutil.ToFloat64(m.applyErrors.WithLabelValues(ApplyErrorWorkspaceNotFound)); got != 2 {
		t.Fatalf("expected 2 apply errors, got %v", got)
	}
	if got := testutil.ToFloat64(m.bookkeeping.WithLabelValues(BookkeepingStageEmit)); got != 1 {
		t.Fatalf("expected 1 bookkeeping failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.fallbackAccepted); got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ingestDuration); got != 1 {
		t.Fatalf("expected 1 histogram series, got %d", got)
	}
}

func TestNilWebhookMetricsIsSafe(t *testing.T) {
	var m *WebhookMetrics
	m.IncApplyError(errors.New("boom"))
	m.IncBookkeepingFailure(BookkeepingStageComplete)
	m.IncReceiptRevived("stripe")
	m.IncGuardedFallback()
	m.ObserveIngest("stripe", OutcomeFailed, time.Second)
}
