package domain

// RejectReason names why a delivery was not authenticated.
type RejectReason string

const (
	RejectMissingSignature RejectReason = "missing_signature"
	RejectMissingSecret    RejectReason = "missing_secret"
	RejectMissingVerifier  RejectReason = "missing_verifier"
	RejectInvalidSignature RejectReason = "invalid_signature"
	RejectInvalidShape     RejectReason = "invalid_shape"
	RejectUnauthorized     RejectReason = "unauthorized"
)

// Unavailable reports whether the provider scheme could not run because of
// server configuration, as opposed to the request being wrong.
func (r RejectReason) Unavailable() bool {
	return r == RejectMissingSecret || r == RejectMissingVerifier
}

// VerificationOutcome is either Authenticated or Rejected.
type VerificationOutcome interface {
	verificationOutcome()
}

type Authenticated struct {
	Provider Provider
	Event    CanonicalEvent
}

type Rejected struct {
	Reason  RejectReason
	Message string
}

func (Authenticated) verificationOutcome() {}
func (Rejected) verificationOutcome()      {}

// UnhandledReason names why an authenticated event produced no mutation.
type UnhandledReason string

const (
	UnhandledUnsupportedEventType UnhandledReason = "unsupported_event_type"
	UnhandledMissingWorkspaceID   UnhandledReason = "missing_workspace_id"
)

// MappingOutcome is either Mapped or Unhandled.
type MappingOutcome interface {
	mappingOutcome()
}

type Mapped struct {
	Mutation BillingMutation
}

type Unhandled struct {
	Reason UnhandledReason
}

func (Mapped) mappingOutcome()    {}
func (Unhandled) mappingOutcome() {}

// VerificationMode records which scheme authorized a delivery.
type VerificationMode string

const (
	ModeProviderSignature     VerificationMode = "stripe_signature"
	ModeLegacySecret          VerificationMode = "legacy_secret"
	ModeLegacyGuardedFallback VerificationMode = "legacy_secret_guarded_fallback"
)

// Decision is the result of composing both authentication schemes.
type Decision interface {
	decision()
}

// ProviderAccepted means the provider signature authenticated the event.
type ProviderAccepted struct {
	Event CanonicalEvent
}

// LegacyAccepted means the shared secret authorized manual payload parsing.
type LegacyAccepted struct {
	Mode           VerificationMode
	FallbackReason RejectReason
}

// Denied means neither scheme authenticated the delivery.
type Denied struct {
	Reason           RejectReason
	Message          string
	FallbackEligible bool
	FallbackAllowed  bool
}

func (ProviderAccepted) decision() {}
func (LegacyAccepted) decision()   {}
func (Denied) decision()           {}
