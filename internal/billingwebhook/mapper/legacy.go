package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
)

// LegacyPayload is the body accepted under shared-secret authentication.
type LegacyPayload struct {
	EventID              string `json:"eventId" validate:"omitempty,max=255"`
	EventType            string `json:"eventType" validate:"omitempty,max=255"`
	WorkspaceID          string `json:"workspaceId" validate:"required,workspace_uuid"`
	SubscriptionStatus   string `json:"subscriptionStatus" validate:"required,oneof=active trialing past_due canceled incomplete unpaid checkout_pending pilot inactive"`
	SubscriptionPlan     string `json:"subscriptionPlan" validate:"omitempty,billing_plan"`
	StripeCustomerID     string `json:"stripeCustomerId"`
	StripeSubscriptionID string `json:"stripeSubscriptionId"`
	CurrentPeriodEnd     string `json:"currentPeriodEnd" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Source               string `json:"source"`
}

// LegacyEvent is a validated legacy delivery.
type LegacyEvent struct {
	EventID   string
	EventType string
	Mutation  domain.BillingMutation
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid legacy payload: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidPayload }

func (m *Mapper) newValidator() *validator.Validate {
	v := validator.New()
	rules := map[string]validator.Func{
		"billing_plan": func(fl validator.FieldLevel) bool {
			_, ok := m.plans.Get().Resolve(fl.Field().String())
			return ok
		},
		"workspace_uuid": isWorkspaceUUID,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("mapper: register %s validation: %v", tag, err))
		}
	}
	return v
}

// isWorkspaceUUID accepts the canonical 8-4-4-4-12 hex form in either case.
func isWorkspaceUUID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if len(value) != 36 {
		return false
	}
	_, err := uuid.Parse(value)
	return err == nil
}

// ParseLegacy validates body against the legacy schema. Errors wrap
// domain.ErrInvalidPayload.
func (m *Mapper) ParseLegacy(body []byte) (LegacyEvent, error) {
	var payload LegacyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return LegacyEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	if err := m.validate.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return LegacyEvent{}, &ValidationError{Fields: fields}
		}
		return LegacyEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	mutation := domain.BillingMutation{
		WorkspaceID:            payload.WorkspaceID,
		SubscriptionStatus:     domain.SubscriptionStatus(payload.SubscriptionStatus),
		SubscriptionPlan:       m.plan(payload.SubscriptionPlan),
		ProviderCustomerID:     nonEmptyString(payload.StripeCustomerID),
		ProviderSubscriptionID: nonEmptyString(payload.StripeSubscriptionID),
		Source:                 strings.TrimSpace(payload.Source),
	}
	if payload.CurrentPeriodEnd != "" {
		if t, err := time.Parse(time.RFC3339Nano, payload.CurrentPeriodEnd); err == nil {
			utc := t.UTC()
			mutation.CurrentPeriodEnd = &utc
		}
	}
	if mutation.Source == "" {
		mutation.Source = string(domain.ProviderLegacy)
	}

	eventType := strings.TrimSpace(payload.EventType)
	if eventType == "" {
		eventType = domain.LegacyDefaultEventType
	}

	return LegacyEvent{
		EventID:   domain.LegacyEventID(body, payload.EventID),
		EventType: eventType,
		Mutation:  mutation,
	}, nil
}
