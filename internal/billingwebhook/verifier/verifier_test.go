package verifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
)

const testSecret = "whsec_test"

var checkoutPayload = []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{"customer":"cus_1","metadata":{"workspaceId":"W1"}}}}`)

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func signed(payload []byte) string {
	return buildStripeSignatureHeader(testSecret, payload, time.Now().Unix())
}

type failingChecker struct{}

func (failingChecker) Check([]byte, string, string) error { return errors.New("boom") }

func rejectReason(t *testing.T, outcome domain.VerificationOutcome) domain.RejectReason {
	t.Helper()
	rejected, ok := outcome.(domain.Rejected)
	require.True(t, ok, "expected rejection, got %T", outcome)
	return rejected.Reason
}

func TestStripeVerifierAuthenticates(t *testing.T) {
	v := NewStripeVerifier(testSecret, StripeChecker{})

	outcome := v.Verify(context.Background(), checkoutPayload, signed(checkoutPayload))

	auth, ok := outcome.(domain.Authenticated)
	require.True(t, ok, "expected authenticated, got %T", outcome)
	assert.Equal(t, domain.ProviderStripe, auth.Provider)
	assert.Equal(t, "evt_123", auth.Event.EventID)
	assert.Equal(t, "checkout.session.completed", auth.Event.EventType)
	assert.Equal(t, "cus_1", auth.Event.Object["customer"])
}

func TestStripeVerifierRejectionOrder(t *testing.T) {
	ctx := context.Background()

	// missing signature wins over every configuration problem
	assert.Equal(t, domain.RejectMissingSignature, rejectReason(t, NewStripeVerifier("", nil).Verify(ctx, checkoutPayload, " ")))
	// missing secret is checked before the capability
	assert.Equal(t, domain.RejectMissingSecret, rejectReason(t, NewStripeVerifier("", nil).Verify(ctx, checkoutPayload, "t=1,v1=x")))
	assert.Equal(t, domain.RejectMissingVerifier, rejectReason(t, NewStripeVerifier(testSecret, nil).Verify(ctx, checkoutPayload, "t=1,v1=x")))
	assert.Equal(t, domain.RejectInvalidSignature, rejectReason(t, NewStripeVerifier(testSecret, failingChecker{}).Verify(ctx, checkoutPayload, signed(checkoutPayload))))
}

func TestStripeVerifierInvalidSignature(t *testing.T) {
	v := NewStripeVerifier(testSecret, StripeChecker{})
	ctx := context.Background()

	wrongKey := buildStripeSignatureHeader("wrong", checkoutPayload, time.Now().Unix())
	assert.Equal(t, domain.RejectInvalidSignature, rejectReason(t, v.Verify(ctx, checkoutPayload, wrongKey)))

	stale := buildStripeSignatureHeader(testSecret, checkoutPayload, time.Now().Add(-time.Hour).Unix())
	assert.Equal(t, domain.RejectInvalidSignature, rejectReason(t, v.Verify(ctx, checkoutPayload, stale)))

	assert.Equal(t, domain.RejectInvalidSignature, rejectReason(t, v.Verify(ctx, checkoutPayload, "garbage")))
}

func TestStripeVerifierInvalidShape(t *testing.T) {
	v := NewStripeVerifier(testSecret, StripeChecker{})
	ctx := context.Background()

	payloads := map[string][]byte{
		"not json":       []byte(`not json`),
		"missing id":     []byte(`{"type":"x","data":{"object":{}}}`),
		"missing type":   []byte(`{"id":"evt_1","data":{"object":{}}}`),
		"missing object": []byte(`{"id":"evt_1","type":"x","data":{}}`),
		"array object":   []byte(`{"id":"evt_1","type":"x","data":{"object":[1,2]}}`),
		"null object":    []byte(`{"id":"evt_1","type":"x","data":{"object":null}}`),
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, domain.RejectInvalidShape, rejectReason(t, v.Verify(ctx, payload, signed(payload))))
		})
	}
}

func TestSharedSecretMatches(t *testing.T) {
	s := NewSharedSecret("  s3cret ")

	assert.True(t, s.Matches("s3cret"))
	assert.True(t, s.Matches(" s3cret\n"))
	assert.False(t, s.Matches("S3CRET"))
	assert.False(t, s.Matches("s3cret2"))
	assert.False(t, s.Matches(""))

	empty := NewSharedSecret("")
	assert.False(t, empty.Configured())
	assert.False(t, empty.Matches(""))
	assert.False(t, empty.Matches("anything"))
}

func TestPolicyDecide(t *testing.T) {
	ctx := context.Background()
	goodSig := signed(checkoutPayload)

	tests := []struct {
		name     string
		policy   *Policy
		in       domain.InboundWebhook
		assertFn func(t *testing.T, d domain.Decision)
	}{
		{
			name:   "valid signature",
			policy: NewPolicy(NewStripeVerifier(testSecret, StripeChecker{}), NewSharedSecret("legacy"), false),
			in:     domain.InboundWebhook{Body: checkoutPayload, Signature: goodSig},
			assertFn: func(t *testing.T, d domain.Decision) {
				accepted, ok := d.(domain.ProviderAccepted)
				require.True(t, ok)
				assert.Equal(t, "evt_123", accepted.Event.EventID)
			},
		},
		{
			name:   "legacy secret without signature",
			policy: NewPolicy(NewStripeVerifier(testSecret, StripeChecker{}), NewSharedSecret("legacy"), false),
			in:     domain.InboundWebhook{Body: checkoutPayload, Secret: "legacy"},
			assertFn: func(t *testing.T, d domain.Decision) {
				accepted, ok := d.(domain.LegacyAccepted)
				require.True(t, ok)
				assert.Equal(t, domain.ModeLegacySecret, accepted.Mode)
			},
		},
		{
			name:   "nothing presented",
			policy: NewPolicy(NewStripeVerifier(testSecret, StripeChecker{}), NewSharedSecret("legacy"), true),
			in:     domain.InboundWebhook{Body: checkoutPayload},
			assertFn: func(t *testing.T, d domain.Decision) {
				denied, ok := d.(domain.Denied)
				require.True(t, ok)
				assert.Equal(t, domain.RejectUnauthorized, denied.Reason)
				assert.Equal(t, http.StatusUnauthorized, StatusForReason(denied.Reason))
			},
		},
		{
			name:   "invalid signature with valid secret is rejected",
			policy: NewPolicy(NewStripeVerifier(testSecret, StripeChecker{}), NewSharedSecret("legacy"), true),
			in:     domain.InboundWebhook{Body: checkoutPayload, Signature: buildStripeSignatureHeader("wrong", checkoutPayload, time.Now().Unix()), Secret: "legacy"},
			assertFn: func(t *testing.T, d domain.Decision) {
				denied, ok := d.(domain.Denied)
				require.True(t, ok)
				assert.Equal(t, domain.RejectInvalidSignature, denied.Reason)
				assert.False(t, denied.FallbackEligible)
				assert.Equal(t, http.StatusBadRequest, StatusForReason(denied.Reason))
			},
		},
		{
			name:   "missing secret falls back when allowed",
			policy: NewPolicy(NewStripeVerifier("", StripeChecker{}), NewSharedSecret("legacy"), true),
			in:     domain.InboundWebhook{Body: checkoutPayload, Signature: goodSig, Secret: "legacy"},
			assertFn: func(t *testing.T, d domain.Decision) {
				accepted, ok := d.(domain.LegacyAccepted)
				require.True(t, ok)
				assert.Equal(t, domain.ModeLegacyGuardedFallback, accepted.Mode)
				assert.Equal(t, domain.RejectMissingSecret, accepted.FallbackReason)
			},
		},
		{
			name:   "missing verifier denied when fallback disabled",
			policy: NewPolicy(NewStripeVerifier(testSecret, nil), NewSharedSecret("legacy"), false),
			in:     domain.InboundWebhook{Body: checkoutPayload, Signature: goodSig, Secret: "legacy"},
			assertFn: func(t *testing.T, d domain.Decision) {
				denied, ok := d.(domain.Denied)
				require.True(t, ok)
				assert.Equal(t, domain.RejectMissingVerifier, denied.Reason)
				assert.True(t, denied.FallbackEligible)
				assert.False(t, denied.FallbackAllowed)
				assert.Equal(t, http.StatusServiceUnavailable, StatusForReason(denied.Reason))
			},
		},
		{
			name:   "missing secret with wrong legacy secret",
			policy: NewPolicy(NewStripeVerifier("", StripeChecker{}), NewSharedSecret("legacy"), true),
			in:     domain.InboundWebhook{Body: checkoutPayload, Signature: goodSig, Secret: "nope"},
			assertFn: func(t *testing.T, d domain.Decision) {
				denied, ok := d.(domain.Denied)
				require.True(t, ok)
				assert.Equal(t, domain.RejectMissingSecret, denied.Reason)
				assert.True(t, denied.FallbackAllowed)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.assertFn(t, tc.policy.Decide(ctx, tc.in))
		})
	}
}
