package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	workspacedomain "github.com/smallbiznis/workspacebilling/internal/workspace/domain"
)

const (
	OutcomeProcessed      = "processed"
	OutcomeDuplicate      = "duplicate"
	OutcomeIgnored        = "ignored"
	OutcomeRejected       = "rejected"
	OutcomeInvalidPayload = "invalid_payload"
	OutcomeFailed         = "failed"
	OutcomeLedgerError    = "ledger_error"
)

const (
	ApplyErrorDeadlineExceeded     = "deadline_exceeded"
	ApplyErrorWorkspaceNotFound    = "workspace_not_found"
	ApplyErrorDBLockTimeout        = "db_lock_timeout"
	ApplyErrorSerializationFailure = "serialization_failure"
	ApplyErrorDB                   = "db"
	ApplyErrorUnknown              = "unknown"
)

const (
	BookkeepingStageComplete = "complete"
	BookkeepingStageEmit     = "emit"
)

// WebhookMetrics captures ingestion health signals scraped from /metrics.
type WebhookMetrics struct {
	ingestDuration   *prometheus.HistogramVec
	applyErrors      *prometheus.CounterVec
	bookkeeping      *prometheus.CounterVec
	receiptsRevived  *prometheus.CounterVec
	fallbackAccepted prometheus.Counter
}

var (
	webhookMetricsOnce sync.Once
	webhookMetrics     *WebhookMetrics
)

// Webhook returns the singleton webhook metrics registered on the default registry.
func Webhook(cfg Config) *WebhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetrics = NewWebhookMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

// NewWebhookMetrics registers the webhook collectors on registerer.
func NewWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "workspacebilling"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	ingestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "billing_webhook_ingest_duration_seconds",
		Help:        "Webhook ingestion latency from body read to response.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"provider", "outcome"})
	applyErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billing_webhook_apply_errors_total",
		Help:        "Billing mutations that failed to apply, by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	bookkeeping := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billing_webhook_bookkeeping_failures_total",
		Help:        "Receipt completion and billing event failures that did not change the response.",
		ConstLabels: constLabels,
	}, []string{"stage"})
	receiptsRevived := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billing_webhook_receipts_revived_total",
		Help:        "Failed receipts re-claimed by a redelivery.",
		ConstLabels: constLabels,
	}, []string{"provider"})
	fallbackAccepted := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "billing_webhook_guarded_fallback_total",
		Help:        "Deliveries accepted through the legacy secret because signature verification was unavailable.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		ingestDuration,
		applyErrors,
		bookkeeping,
		receiptsRevived,
		fallbackAccepted,
	)

	return &WebhookMetrics{
		ingestDuration:   ingestDuration,
		applyErrors:      applyErrors,
		bookkeeping:      bookkeeping,
		receiptsRevived:  receiptsRevived,
		fallbackAccepted: fallbackAccepted,
	}
}

// ObserveIngest records how long one delivery took and how it ended.
func (m *WebhookMetrics) ObserveIngest(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.ingestDuration.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncApplyError counts a failed mutation with classification.
func (m *WebhookMetrics) IncApplyError(err error) {
	if m == nil || err == nil {
		return
	}
	m.applyErrors.WithLabelValues(ClassifyApplyError(err)).Inc()
}

func (m *WebhookMetrics) IncBookkeepingFailure(stage string) {
	if m == nil {
		return
	}
	m.bookkeeping.WithLabelValues(normalizeLabel(stage)).Inc()
}

func (m *WebhookMetrics) IncReceiptRevived(provider string) {
	if m == nil {
		return
	}
	m.receiptsRevived.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *WebhookMetrics) IncGuardedFallback() {
	if m == nil {
		return
	}
	m.fallbackAccepted.Inc()
}

// ClassifyApplyError maps mutation sink errors to low-cardinality reasons.
func ClassifyApplyError(err error) string {
	switch {
	case err == nil:
		return ApplyErrorUnknown
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return ApplyErrorDeadlineExceeded
	case errors.Is(err, workspacedomain.ErrWorkspaceNotFound):
		return ApplyErrorWorkspaceNotFound
	case hasPGCode(err, "55P03"):
		return ApplyErrorDBLockTimeout
	case hasPGCode(err, "40001"):
		return ApplyErrorSerializationFailure
	case isDBError(err):
		return ApplyErrorDB
	default:
		return ApplyErrorUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
