package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Provider identifies who issued a webhook delivery.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderLegacy Provider = "legacy"
)

// SubscriptionStatus is the canonical, provider-agnostic subscription state.
type SubscriptionStatus string

const (
	StatusActive          SubscriptionStatus = "active"
	StatusTrialing        SubscriptionStatus = "trialing"
	StatusPastDue         SubscriptionStatus = "past_due"
	StatusCanceled        SubscriptionStatus = "canceled"
	StatusIncomplete      SubscriptionStatus = "incomplete"
	StatusUnpaid          SubscriptionStatus = "unpaid"
	StatusInactive        SubscriptionStatus = "inactive"
	StatusCheckoutPending SubscriptionStatus = "checkout_pending"
	StatusPilot           SubscriptionStatus = "pilot"
)

// Plan is a workspace plan code.
type Plan string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
	PlanPilot        Plan = "pilot"
)

// InboundWebhook is one raw delivery as received by the HTTP layer.
type InboundWebhook struct {
	Body      []byte
	Signature string
	Secret    string
}

// CanonicalEvent is an authenticated event reduced to the fields ingestion needs.
type CanonicalEvent struct {
	Provider  Provider
	EventID   string
	EventType string
	Object    map[string]any
}

// BillingMutation is the only shape written to the workspace store.
type BillingMutation struct {
	WorkspaceID            string
	SubscriptionStatus     SubscriptionStatus
	SubscriptionPlan       *Plan
	ProviderCustomerID     *string
	ProviderSubscriptionID *string
	CurrentPeriodEnd       *time.Time
	Source                 string
}

// ReceiptStatus is the lifecycle state of a webhook receipt.
type ReceiptStatus string

const (
	ReceiptReceived  ReceiptStatus = "received"
	ReceiptProcessed ReceiptStatus = "processed"
	ReceiptIgnored   ReceiptStatus = "ignored"
	ReceiptFailed    ReceiptStatus = "failed"
)

// Receipt records that one (provider, event id) pair was seen.
type Receipt struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Provider      string        `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_billing_webhook_receipts_provider_event,priority:1"`
	EventID       string        `json:"event_id" gorm:"type:text;not null;uniqueIndex:ux_billing_webhook_receipts_provider_event,priority:2"`
	EventType     string        `json:"event_type" gorm:"type:text;not null"`
	Status        ReceiptStatus `json:"status" gorm:"type:text;not null;index"`
	PayloadHash   string        `json:"payload_hash" gorm:"type:text;not null"`
	WorkspaceID   *string       `json:"workspace_id,omitempty" gorm:"type:text"`
	FailureReason *string       `json:"failure_reason,omitempty" gorm:"type:text"`
	ReceivedAt    time.Time     `json:"received_at" gorm:"not null"`
	ProcessedAt   *time.Time    `json:"processed_at,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null"`
}

func (Receipt) TableName() string { return "billing_webhook_receipts" }

const (
	LegacyEventIDPrefix     = "legacy_"
	LegacyDefaultEventType  = "legacy.workspace_billing_updated"
	BillingEventTypeUpdated = "webhook_billing_updated"
)
