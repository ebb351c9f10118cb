package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SignatureChecker is the cryptographic capability behind the provider scheme.
type SignatureChecker interface {
	Check(payload []byte, header string, secret string) error
}

// ProviderVerifier authenticates provider-signed deliveries.
type ProviderVerifier interface {
	Verify(ctx context.Context, body []byte, signature string) VerificationOutcome
}

// MutationSink applies a canonical mutation to the workspace addressed by it.
type MutationSink interface {
	ApplyBillingMutation(ctx context.Context, mutation BillingMutation) error
}

// Emitter records business events. Callers treat it as fire-and-forget.
type Emitter interface {
	Emit(ctx context.Context, record EventRecord) error
}

// EventRecord is a free-form billing event.
type EventRecord struct {
	WorkspaceID string
	EventType   string
	Source      string
	Payload     map[string]any
}

type ClaimRequest struct {
	Provider    Provider
	EventID     string
	EventType   string
	PayloadHash string
	WorkspaceID *string
}

type ClaimResult struct {
	Accepted  bool
	ReceiptID snowflake.ID
	// Revived is set when a previously failed receipt was re-claimed.
	Revived bool
}

type CompleteRequest struct {
	ReceiptID     snowflake.ID
	Status        ReceiptStatus
	WorkspaceID   *string
	EventType     string
	FailureReason *string
}

type ListReceiptsRequest struct {
	Status   ReceiptStatus
	Provider Provider
	Limit    int
	// BeforeID pages backwards from a previously returned receipt.
	BeforeID snowflake.ID
}

// Ledger owns webhook receipts.
type Ledger interface {
	Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error)
	Complete(ctx context.Context, req CompleteRequest) error
	List(ctx context.Context, req ListReceiptsRequest) ([]Receipt, error)
}

// Result is what the coordinator decided for one delivery.
type Result struct {
	Status          int
	OK              bool
	Duplicate       bool
	Ignored         bool
	Error           string
	Reason          string
	FallbackAllowed *bool
}

// Service ingests one webhook delivery end to end.
type Service interface {
	Ingest(ctx context.Context, in InboundWebhook) Result
}

// Clock is the time source for receipt stamps.
type Clock interface {
	Now() time.Time
}
