package verifier

import (
	"context"
	"net/http"
	"strings"

	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/config"
)

// Policy composes the provider signature scheme and the legacy shared
// secret into one decision.
type Policy struct {
	provider        domain.ProviderVerifier
	secret          SharedSecret
	fallbackAllowed bool
}

func NewPolicy(provider domain.ProviderVerifier, secret SharedSecret, fallbackAllowed bool) *Policy {
	return &Policy{
		provider:        provider,
		secret:          secret,
		fallbackAllowed: fallbackAllowed,
	}
}

// NewPolicyFromConfig wires the Stripe verifier and shared secret from cfg.
func NewPolicyFromConfig(cfg config.BillingWebhookConfig) *Policy {
	var checker domain.SignatureChecker
	if cfg.StripeVerifierEnabled {
		checker = StripeChecker{Tolerance: cfg.SignatureTolerance}
	}
	return NewPolicy(
		NewStripeVerifier(cfg.StripeWebhookSecret, checker),
		NewSharedSecret(cfg.LegacySecret),
		cfg.GuardedFallbackAllowed(),
	)
}

func (p *Policy) FallbackAllowed() bool {
	return p.fallbackAllowed
}

// Decide authenticates one delivery. A present signature is always tried
// first; the shared secret only stands in for it when the provider scheme
// could not run and fallback is permitted.
func (p *Policy) Decide(ctx context.Context, in domain.InboundWebhook) domain.Decision {
	secretOK := p.secret.Matches(in.Secret)

	if strings.TrimSpace(in.Signature) == "" {
		if secretOK {
			return domain.LegacyAccepted{Mode: domain.ModeLegacySecret}
		}
		return domain.Denied{
			Reason:          domain.RejectUnauthorized,
			Message:         "unauthorized",
			FallbackAllowed: p.fallbackAllowed,
		}
	}

	var outcome domain.VerificationOutcome
	if p.provider == nil {
		outcome = domain.Rejected{Reason: domain.RejectMissingVerifier, Message: "stripe signature verification is unavailable"}
	} else {
		outcome = p.provider.Verify(ctx, in.Body, in.Signature)
	}

	switch o := outcome.(type) {
	case domain.Authenticated:
		return domain.ProviderAccepted{Event: o.Event}
	case domain.Rejected:
		eligible := o.Reason.Unavailable()
		if eligible && secretOK && p.fallbackAllowed {
			return domain.LegacyAccepted{
				Mode:           domain.ModeLegacyGuardedFallback,
				FallbackReason: o.Reason,
			}
		}
		return domain.Denied{
			Reason:           o.Reason,
			Message:          o.Message,
			FallbackEligible: eligible,
			FallbackAllowed:  p.fallbackAllowed,
		}
	default:
		return domain.Denied{Reason: domain.RejectInvalidSignature, Message: "invalid stripe signature"}
	}
}

// StatusForReason maps a denial reason to its HTTP status.
func StatusForReason(reason domain.RejectReason) int {
	switch reason {
	case domain.RejectInvalidSignature, domain.RejectInvalidShape:
		return http.StatusBadRequest
	case domain.RejectMissingSecret, domain.RejectMissingVerifier:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}
