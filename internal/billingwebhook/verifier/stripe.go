package verifier

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
)

const (
	HeaderStripeSignature = "Stripe-Signature"

	DefaultSignatureTolerance = 300 * time.Second
)

// StripeChecker validates the t=/v1= signature header against the webhook secret.
type StripeChecker struct {
	Tolerance time.Duration
}

func (c StripeChecker) Check(payload []byte, header string, secret string) error {
	tolerance := c.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance)
}

// StripeVerifier authenticates Stripe-signed deliveries and decodes them into
// canonical events.
type StripeVerifier struct {
	secret  string
	checker domain.SignatureChecker
}

// NewStripeVerifier builds a verifier. A nil checker is allowed and reported
// as missing_verifier at verification time.
func NewStripeVerifier(secret string, checker domain.SignatureChecker) *StripeVerifier {
	return &StripeVerifier{
		secret:  strings.TrimSpace(secret),
		checker: checker,
	}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (v *StripeVerifier) Verify(ctx context.Context, body []byte, signature string) domain.VerificationOutcome {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return domain.Rejected{Reason: domain.RejectMissingSignature, Message: "missing stripe signature"}
	}
	if v.secret == "" {
		return domain.Rejected{Reason: domain.RejectMissingSecret, Message: "stripe webhook secret is not configured"}
	}
	if v.checker == nil {
		return domain.Rejected{Reason: domain.RejectMissingVerifier, Message: "stripe signature verification is unavailable"}
	}
	if err := v.checker.Check(body, signature, v.secret); err != nil {
		return domain.Rejected{Reason: domain.RejectInvalidSignature, Message: "invalid stripe signature"}
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.Rejected{Reason: domain.RejectInvalidShape, Message: "stripe event is not valid json"}
	}
	eventID := strings.TrimSpace(event.ID)
	eventType := strings.TrimSpace(event.Type)
	if eventID == "" || eventType == "" {
		return domain.Rejected{Reason: domain.RejectInvalidShape, Message: "stripe event is missing id or type"}
	}

	var object map[string]any
	if len(event.Data.Object) == 0 || json.Unmarshal(event.Data.Object, &object) != nil || object == nil {
		return domain.Rejected{Reason: domain.RejectInvalidShape, Message: "stripe event is missing data.object"}
	}

	return domain.Authenticated{
		Provider: domain.ProviderStripe,
		Event: domain.CanonicalEvent{
			Provider:  domain.ProviderStripe,
			EventID:   eventID,
			EventType: eventType,
			Object:    object,
		},
	}
}
