package domain

import (
	"errors"
	"time"
)

// Workspace holds the billing columns written by webhook ingestion.
type Workspace struct {
	ID                           string     `json:"id" gorm:"primaryKey;type:text"`
	Name                         string     `json:"name" gorm:"type:text;not null;default:''"`
	Plan                         *string    `json:"plan,omitempty" gorm:"type:text"`
	SubscriptionPlan             *string    `json:"subscription_plan,omitempty" gorm:"type:text"`
	SubscriptionStatus           string     `json:"subscription_status" gorm:"type:text;not null;default:'inactive'"`
	StripeCustomerID             *string    `json:"stripe_customer_id,omitempty" gorm:"type:text"`
	StripeSubscriptionID         *string    `json:"stripe_subscription_id,omitempty" gorm:"type:text"`
	SubscriptionCurrentPeriodEnd *time.Time `json:"subscription_current_period_end,omitempty"`
	BillingUpdatedAt             *time.Time `json:"billing_updated_at,omitempty"`
	CreatedAt                    time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt                    time.Time  `json:"updated_at" gorm:"not null"`
}

func (Workspace) TableName() string { return "workspaces" }

var (
	ErrWorkspaceNotFound  = errors.New("workspace_not_found")
	ErrInvalidWorkspaceID = errors.New("invalid_workspace_id")
	ErrInvalidStatus      = errors.New("invalid_subscription_status")
)
