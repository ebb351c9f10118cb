package repository

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	webhookdomain "github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/clock"
	"github.com/smallbiznis/workspacebilling/internal/workspace/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Clock clock.Clock
}

type repo struct {
	db    *gorm.DB
	clock clock.Clock
}

// Provide returns the workspace store as the billing mutation sink.
func Provide(p Params) webhookdomain.MutationSink {
	return New(p.DB, p.Clock)
}

func New(db *gorm.DB, clk clock.Clock) webhookdomain.MutationSink {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &repo{db: db, clock: clk}
}

// ApplyBillingMutation overwrites the billing columns of one workspace.
// Absent optional fields leave the stored value untouched.
func (r *repo) ApplyBillingMutation(ctx context.Context, mutation webhookdomain.BillingMutation) error {
	if r.db == nil {
		return webhookdomain.ErrSinkUnavailable
	}
	workspaceID := strings.TrimSpace(mutation.WorkspaceID)
	if workspaceID == "" {
		return domain.ErrInvalidWorkspaceID
	}
	if strings.TrimSpace(string(mutation.SubscriptionStatus)) == "" {
		return domain.ErrInvalidStatus
	}

	now := r.clock.Now()
	updates := map[string]any{
		"subscription_status": string(mutation.SubscriptionStatus),
		"billing_updated_at":  now,
		"updated_at":          now,
	}
	if mutation.SubscriptionPlan != nil {
		plan := string(*mutation.SubscriptionPlan)
		updates["plan"] = plan
		updates["subscription_plan"] = plan
	}
	if mutation.ProviderCustomerID != nil {
		updates["stripe_customer_id"] = *mutation.ProviderCustomerID
	}
	if mutation.ProviderSubscriptionID != nil {
		updates["stripe_subscription_id"] = *mutation.ProviderSubscriptionID
	}
	if mutation.CurrentPeriodEnd != nil {
		updates["subscription_current_period_end"] = mutation.CurrentPeriodEnd.UTC()
	}

	res := r.db.WithContext(ctx).
		Model(&domain.Workspace{}).
		Where("id = ?", workspaceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrWorkspaceNotFound
	}
	return nil
}
