package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/mapper"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/verifier"
	"github.com/smallbiznis/workspacebilling/internal/clock"
	"github.com/smallbiznis/workspacebilling/internal/observability/logger"
	"github.com/smallbiznis/workspacebilling/internal/observability/metrics"
	"github.com/smallbiznis/workspacebilling/internal/observability/obscontext"
)

// Authenticator decides which scheme, if any, authorizes a delivery.
type Authenticator interface {
	Decide(ctx context.Context, in domain.InboundWebhook) domain.Decision
}

// EventMapper turns authenticated input into billing mutations.
type EventMapper interface {
	Map(event domain.CanonicalEvent) domain.MappingOutcome
	ParseLegacy(body []byte) (mapper.LegacyEvent, error)
}

type Params struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	Policy         *verifier.Policy
	Mapper         *mapper.Mapper
	Ledger         domain.Ledger
	Sink           domain.MutationSink
	Emitter        domain.Emitter          `optional:"true"`
	Metrics        *metrics.Metrics        `optional:"true"`
	WebhookMetrics *metrics.WebhookMetrics `optional:"true"`
}

type Service struct {
	log            *zap.Logger
	clock          clock.Clock
	auth           Authenticator
	mapper         EventMapper
	ledger         domain.Ledger
	sink           domain.MutationSink
	emitter        domain.Emitter
	metrics        *metrics.Metrics
	webhookMetrics *metrics.WebhookMetrics
}

func NewService(p Params) domain.Service {
	svc := New(p.Log, p.Policy, p.Mapper, p.Ledger, p.Sink, p.Emitter)
	if p.Clock != nil {
		svc.clock = p.Clock
	}
	svc.metrics = p.Metrics
	svc.webhookMetrics = p.WebhookMetrics
	return svc
}

func New(
	log *zap.Logger,
	auth Authenticator,
	eventMapper EventMapper,
	ledger domain.Ledger,
	sink domain.MutationSink,
	emitter domain.Emitter,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		log:     log.Named("billingwebhook.service"),
		clock:   clock.SystemClock{},
		auth:    auth,
		mapper:  eventMapper,
		ledger:  ledger,
		sink:    sink,
		emitter: emitter,
	}
}

// WithMetrics attaches instruments; nil values disable recording.
func (s *Service) WithMetrics(m *metrics.Metrics, wm *metrics.WebhookMetrics) *Service {
	s.metrics = m
	s.webhookMetrics = wm
	return s
}

// delivery carries what is known about one webhook while it moves through
// claim, apply and completion.
type delivery struct {
	provider       domain.Provider
	eventID        string
	eventType      string
	mode           domain.VerificationMode
	fallbackReason domain.RejectReason
	payloadHash    string
	mutation       domain.BillingMutation
}

// Ingest runs one delivery through verification, dedupe, apply and
// completion. It never panics on malformed input and always returns a
// response the HTTP layer can write as-is.
func (s *Service) Ingest(ctx context.Context, in domain.InboundWebhook) domain.Result {
	start := s.clock.Now()
	provider := domain.ProviderStripe
	outcome := metrics.OutcomeProcessed
	reason := ""
	defer func() {
		s.webhookMetrics.ObserveIngest(string(provider), outcome, s.clock.Now().Sub(start))
		s.metrics.RecordWebhookDelivery(ctx, string(provider), outcome, reason)
	}()

	if len(in.Body) == 0 {
		outcome, reason = metrics.OutcomeInvalidPayload, domain.ErrEmptyPayload.Error()
		return errorResult(http.StatusBadRequest, "empty payload")
	}

	switch d := s.auth.Decide(ctx, in).(type) {
	case domain.Denied:
		outcome, reason = metrics.OutcomeRejected, string(d.Reason)
		logger.WithContext(ctx, s.log).Warn("billing webhook rejected",
			zap.String("reason", string(d.Reason)),
			zap.String("message", d.Message),
			zap.Bool("fallback_eligible", d.FallbackEligible),
			zap.Bool("fallback_allowed", d.FallbackAllowed),
			zap.Bool("has_signature", in.Signature != ""),
			zap.Bool("has_secret", in.Secret != ""),
		)
		allowed := d.FallbackAllowed
		message := d.Message
		if message == "" {
			message = string(d.Reason)
		}
		return domain.Result{
			Status:          verifier.StatusForReason(d.Reason),
			Error:           message,
			Reason:          string(d.Reason),
			FallbackAllowed: &allowed,
		}

	case domain.ProviderAccepted:
		res, out, why := s.ingestProvider(ctx, in, d.Event)
		outcome, reason = out, why
		return res

	case domain.LegacyAccepted:
		provider = domain.ProviderLegacy
		if d.Mode == domain.ModeLegacyGuardedFallback {
			s.webhookMetrics.IncGuardedFallback()
			logger.WithContext(ctx, s.log).Warn("billing webhook accepted through guarded fallback",
				zap.String("fallback_reason", string(d.FallbackReason)),
			)
		}
		res, out, why := s.ingestLegacy(ctx, in, d)
		outcome, reason = out, why
		return res

	default:
		outcome, reason = metrics.OutcomeRejected, string(domain.RejectUnauthorized)
		return errorResult(http.StatusUnauthorized, "unauthorized")
	}
}

func (s *Service) ingestProvider(ctx context.Context, in domain.InboundWebhook, event domain.CanonicalEvent) (domain.Result, string, string) {
	d := delivery{
		provider:    event.Provider,
		eventID:     event.EventID,
		eventType:   event.EventType,
		mode:        domain.ModeProviderSignature,
		payloadHash: domain.HashPayload(in.Body),
	}
	if d.provider == "" {
		d.provider = domain.ProviderStripe
	}
	ctx = obscontext.WithDelivery(ctx, obscontext.Delivery{Provider: string(d.provider), EventID: d.eventID})

	claim, err := s.claim(ctx, d, nil)
	if err != nil {
		return errorResult(http.StatusInternalServerError, "failed to record webhook receipt"), metrics.OutcomeLedgerError, classifyLedgerError(err)
	}
	if !claim.Accepted {
		return duplicateResult(), metrics.OutcomeDuplicate, ""
	}

	// Nothing below may be abandoned half way once the receipt exists.
	ctx = context.WithoutCancel(ctx)

	switch m := s.mapper.Map(event).(type) {
	case domain.Mapped:
		d.mutation = m.Mutation
		return s.apply(ctx, d, claim)
	case domain.Unhandled:
		why := string(m.Reason)
		s.complete(ctx, domain.CompleteRequest{
			ReceiptID:     claim.ReceiptID,
			Status:        domain.ReceiptIgnored,
			EventType:     d.eventType,
			FailureReason: &why,
		})
		logger.WithContext(ctx, s.log).Info("billing webhook ignored", zap.String("reason", why))
		return domain.Result{Status: http.StatusOK, OK: true, Ignored: true}, metrics.OutcomeIgnored, why
	default:
		why := string(domain.UnhandledUnsupportedEventType)
		s.complete(ctx, domain.CompleteRequest{
			ReceiptID:     claim.ReceiptID,
			Status:        domain.ReceiptIgnored,
			EventType:     d.eventType,
			FailureReason: &why,
		})
		return domain.Result{Status: http.StatusOK, OK: true, Ignored: true}, metrics.OutcomeIgnored, why
	}
}

func (s *Service) ingestLegacy(ctx context.Context, in domain.InboundWebhook, decision domain.LegacyAccepted) (domain.Result, string, string) {
	event, err := s.mapper.ParseLegacy(in.Body)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("invalid legacy billing payload", zap.Error(err))
		return errorResult(http.StatusBadRequest, "invalid payload"), metrics.OutcomeInvalidPayload, domain.ErrInvalidPayload.Error()
	}

	d := delivery{
		provider:       domain.ProviderLegacy,
		eventID:        event.EventID,
		eventType:      event.EventType,
		mode:           decision.Mode,
		fallbackReason: decision.FallbackReason,
		payloadHash:    domain.HashPayload(in.Body),
		mutation:       event.Mutation,
	}
	ctx = obscontext.WithDelivery(ctx, obscontext.Delivery{
		Provider:    string(d.provider),
		EventID:     d.eventID,
		WorkspaceID: d.mutation.WorkspaceID,
	})

	workspaceID := d.mutation.WorkspaceID
	claim, err := s.claim(ctx, d, &workspaceID)
	if err != nil {
		return errorResult(http.StatusInternalServerError, "failed to record webhook receipt"), metrics.OutcomeLedgerError, classifyLedgerError(err)
	}
	if !claim.Accepted {
		return duplicateResult(), metrics.OutcomeDuplicate, ""
	}

	return s.apply(context.WithoutCancel(ctx), d, claim)
}

func (s *Service) claim(ctx context.Context, d delivery, workspaceID *string) (domain.ClaimResult, error) {
	claim, err := s.ledger.Claim(ctx, domain.ClaimRequest{
		Provider:    d.provider,
		EventID:     d.eventID,
		EventType:   d.eventType,
		PayloadHash: d.payloadHash,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Error("failed to claim billing webhook receipt",
			zap.String("event_type", d.eventType),
			zap.Error(err),
		)
		return domain.ClaimResult{}, err
	}
	if claim.Revived {
		s.webhookMetrics.IncReceiptRevived(string(d.provider))
		logger.WithContext(ctx, s.log).Info("re-processing previously failed billing webhook")
	}
	return claim, nil
}

func (s *Service) apply(ctx context.Context, d delivery, claim domain.ClaimResult) (domain.Result, string, string) {
	ctx = obscontext.WithDelivery(ctx, obscontext.Delivery{WorkspaceID: d.mutation.WorkspaceID})
	workspaceID := d.mutation.WorkspaceID

	if err := s.sink.ApplyBillingMutation(ctx, d.mutation); err != nil {
		s.webhookMetrics.IncApplyError(err)
		failure := err.Error()
		s.complete(ctx, domain.CompleteRequest{
			ReceiptID:     claim.ReceiptID,
			Status:        domain.ReceiptFailed,
			WorkspaceID:   &workspaceID,
			EventType:     d.eventType,
			FailureReason: &failure,
		})
		logger.WithContext(ctx, s.log).Error("failed to apply billing mutation",
			zap.String("event_type", d.eventType),
			zap.String("subscription_status", string(d.mutation.SubscriptionStatus)),
			zap.Error(err),
		)
		return errorResult(http.StatusInternalServerError, "failed to apply billing update"), metrics.OutcomeFailed, metrics.ClassifyApplyError(err)
	}
	s.metrics.RecordBillingMutation(ctx, string(d.provider), string(d.mutation.SubscriptionStatus))

	s.emit(ctx, d)
	s.complete(ctx, domain.CompleteRequest{
		ReceiptID:   claim.ReceiptID,
		Status:      domain.ReceiptProcessed,
		WorkspaceID: &workspaceID,
		EventType:   d.eventType,
	})

	logger.WithContext(ctx, s.log).Info("billing webhook processed",
		zap.String("event_type", d.eventType),
		zap.String("verification_mode", string(d.mode)),
		zap.String("subscription_status", string(d.mutation.SubscriptionStatus)),
	)
	return domain.Result{Status: http.StatusOK, OK: true}, metrics.OutcomeProcessed, ""
}

func (s *Service) emit(ctx context.Context, d delivery) {
	if s.emitter == nil {
		return
	}
	err := s.emitter.Emit(ctx, domain.EventRecord{
		WorkspaceID: d.mutation.WorkspaceID,
		EventType:   domain.BillingEventTypeUpdated,
		Source:      d.mutation.Source,
		Payload:     eventPayload(d),
	})
	s.metrics.RecordBillingEvent(ctx, domain.BillingEventTypeUpdated, err == nil)
	if err != nil {
		s.webhookMetrics.IncBookkeepingFailure(metrics.BookkeepingStageEmit)
		logger.WithContext(ctx, s.log).Warn("failed to record billing event", zap.Error(err))
	}
}

func (s *Service) complete(ctx context.Context, req domain.CompleteRequest) {
	if err := s.ledger.Complete(ctx, req); err != nil {
		s.webhookMetrics.IncBookkeepingFailure(metrics.BookkeepingStageComplete)
		logger.WithContext(ctx, s.log).Warn("failed to complete billing webhook receipt",
			zap.String("status", string(req.Status)),
			zap.Error(err),
		)
	}
}

func eventPayload(d delivery) map[string]any {
	m := d.mutation
	payload := map[string]any{
		"subscriptionStatus": string(m.SubscriptionStatus),
		"provider":           string(d.provider),
		"providerEventId":    d.eventID,
		"providerEventType":  d.eventType,
		"verificationMode":   string(d.mode),
	}
	if m.SubscriptionPlan != nil {
		payload["subscriptionPlan"] = string(*m.SubscriptionPlan)
	} else {
		payload["subscriptionPlan"] = nil
	}
	payload["stripeCustomerId"] = stringOrNil(m.ProviderCustomerID)
	payload["stripeSubscriptionId"] = stringOrNil(m.ProviderSubscriptionID)
	if m.CurrentPeriodEnd != nil {
		payload["currentPeriodEnd"] = m.CurrentPeriodEnd.UTC().Format(time.RFC3339Nano)
	} else {
		payload["currentPeriodEnd"] = nil
	}
	if d.fallbackReason != "" {
		payload["fallbackReason"] = string(d.fallbackReason)
	} else {
		payload["fallbackReason"] = nil
	}
	return payload
}

func stringOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func classifyLedgerError(err error) string {
	if errors.Is(err, domain.ErrLedgerUnavailable) {
		return domain.ErrLedgerUnavailable.Error()
	}
	return metrics.ClassifyApplyError(err)
}

func errorResult(status int, message string) domain.Result {
	return domain.Result{Status: status, Error: message}
}

func duplicateResult() domain.Result {
	return domain.Result{Status: http.StatusOK, OK: true, Duplicate: true}
}
