package mapper

import (
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/config"
)

const (
	EventCheckoutSessionCompleted    = "checkout.session.completed"
	EventCustomerSubscriptionCreated = "customer.subscription.created"
	EventCustomerSubscriptionUpdated = "customer.subscription.updated"
	EventCustomerSubscriptionDeleted = "customer.subscription.deleted"
)

// PlanSource supplies the current plan catalog.
type PlanSource interface {
	Get() config.PlanCatalog
}

// Mapper turns authenticated provider events into billing mutations.
type Mapper struct {
	plans    PlanSource
	validate *validator.Validate
}

func New(plans PlanSource) *Mapper {
	if plans == nil {
		plans = config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	}
	m := &Mapper{plans: plans}
	m.validate = m.newValidator()
	return m
}

// Map is pure: the same event always yields the same outcome.
func (m *Mapper) Map(event domain.CanonicalEvent) domain.MappingOutcome {
	object := event.Object
	metadata := asRecord(object["metadata"])

	switch event.EventType {
	case EventCheckoutSessionCompleted:
		workspaceID, ok := workspaceIDFrom(metadata)
		if !ok {
			return domain.Unhandled{Reason: domain.UnhandledMissingWorkspaceID}
		}
		return domain.Mapped{Mutation: domain.BillingMutation{
			WorkspaceID:            workspaceID,
			SubscriptionStatus:     domain.StatusActive,
			SubscriptionPlan:       m.plan(metadata["plan"]),
			ProviderCustomerID:     nonEmptyString(object["customer"]),
			ProviderSubscriptionID: nonEmptyString(object["subscription"]),
			Source:                 "stripe." + EventCheckoutSessionCompleted,
		}}

	case EventCustomerSubscriptionCreated, EventCustomerSubscriptionUpdated, EventCustomerSubscriptionDeleted:
		workspaceID, ok := workspaceIDFrom(metadata)
		if !ok {
			return domain.Unhandled{Reason: domain.UnhandledMissingWorkspaceID}
		}

		status := domain.StatusCanceled
		if event.EventType != EventCustomerSubscriptionDeleted {
			rawStatus := ""
			if s := nonEmptyString(object["status"]); s != nil {
				rawStatus = *s
			}
			status = NormalizeStripeStatus(rawStatus)
		}

		return domain.Mapped{Mutation: domain.BillingMutation{
			WorkspaceID:            workspaceID,
			SubscriptionStatus:     status,
			SubscriptionPlan:       m.plan(metadata["plan"]),
			ProviderCustomerID:     nonEmptyString(object["customer"]),
			ProviderSubscriptionID: nonEmptyString(object["id"]),
			CurrentPeriodEnd:       ParsePeriodEnd(object["current_period_end"]),
			Source:                 "stripe." + event.EventType,
		}}
	}

	return domain.Unhandled{Reason: domain.UnhandledUnsupportedEventType}
}

func (m *Mapper) plan(raw any) *domain.Plan {
	value := nonEmptyString(raw)
	if value == nil {
		return nil
	}
	resolved, ok := m.plans.Get().Resolve(*value)
	if !ok {
		return nil
	}
	plan := domain.Plan(resolved)
	return &plan
}

// NormalizeStripeStatus collapses provider statuses onto the canonical set.
// Anything unrecognized becomes inactive.
func NormalizeStripeStatus(raw string) domain.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return domain.StatusActive
	case "trialing":
		return domain.StatusTrialing
	case "past_due":
		return domain.StatusPastDue
	case "canceled":
		return domain.StatusCanceled
	case "incomplete":
		return domain.StatusIncomplete
	case "unpaid":
		return domain.StatusUnpaid
	default:
		return domain.StatusInactive
	}
}

// ParsePeriodEnd accepts unix seconds or an RFC3339 string and returns the
// instant in UTC, or nil when the value is absent or unparseable.
func ParsePeriodEnd(raw any) *time.Time {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		t := time.Unix(int64(v), 0).UTC()
		return &t
	case int64:
		t := time.Unix(v, 0).UTC()
		return &t
	case int:
		t := time.Unix(int64(v), 0).UTC()
		return &t
	case string:
		value := strings.TrimSpace(v)
		if value == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil
		}
		t = t.UTC()
		return &t
	}
	return nil
}

func workspaceIDFrom(metadata map[string]any) (string, bool) {
	if id := nonEmptyString(metadata["workspaceId"]); id != nil {
		return *id, true
	}
	if id := nonEmptyString(metadata["workspace_id"]); id != nil {
		return *id, true
	}
	return "", false
}

func nonEmptyString(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func asRecord(value any) map[string]any {
	record, ok := value.(map[string]any)
	if !ok || record == nil {
		return map[string]any{}
	}
	return record
}
