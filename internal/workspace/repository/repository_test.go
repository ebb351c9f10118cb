package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	webhookdomain "github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/clock"
	"github.com/smallbiznis/workspacebilling/internal/workspace/domain"
	"github.com/smallbiznis/workspacebilling/internal/workspace/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Workspace{}))
	return db
}

func strPtr(v string) *string { return &v }

func TestApplyBillingMutation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, db.Create(&domain.Workspace{
		ID:                 "W1",
		Name:               "Acme",
		SubscriptionStatus: "checkout_pending",
		StripeCustomerID:   strPtr("cus_old"),
		CreatedAt:          clk.Now(),
		UpdatedAt:          clk.Now(),
	}).Error)

	plan := webhookdomain.PlanStarter
	periodEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sink := repository.New(db, clk)

	err := sink.ApplyBillingMutation(ctx, webhookdomain.BillingMutation{
		WorkspaceID:            "W1",
		SubscriptionStatus:     webhookdomain.StatusActive,
		SubscriptionPlan:       &plan,
		ProviderSubscriptionID: strPtr("sub_1"),
		CurrentPeriodEnd:       &periodEnd,
		Source:                 "stripe.checkout.session.completed",
	})
	require.NoError(t, err)

	var got domain.Workspace
	require.NoError(t, db.Where("id = ?", "W1").Take(&got).Error)
	assert.Equal(t, "active", got.SubscriptionStatus)
	require.NotNil(t, got.SubscriptionPlan)
	assert.Equal(t, "starter", *got.SubscriptionPlan)
	require.NotNil(t, got.Plan)
	assert.Equal(t, "starter", *got.Plan)
	require.NotNil(t, got.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *got.StripeSubscriptionID)
	// customer id was absent from the mutation and stays as it was
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_old", *got.StripeCustomerID)
	require.NotNil(t, got.SubscriptionCurrentPeriodEnd)
	assert.True(t, got.SubscriptionCurrentPeriodEnd.Equal(periodEnd))
	require.NotNil(t, got.BillingUpdatedAt)
	assert.Equal(t, "Acme", got.Name)
}

func TestApplyBillingMutationUnknownWorkspace(t *testing.T) {
	db := setupTestDB(t)
	sink := repository.New(db, nil)

	err := sink.ApplyBillingMutation(context.Background(), webhookdomain.BillingMutation{
		WorkspaceID:        "missing",
		SubscriptionStatus: webhookdomain.StatusCanceled,
	})
	assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound)
}

func TestApplyBillingMutationValidation(t *testing.T) {
	db := setupTestDB(t)
	sink := repository.New(db, nil)
	ctx := context.Background()

	assert.ErrorIs(t, sink.ApplyBillingMutation(ctx, webhookdomain.BillingMutation{SubscriptionStatus: webhookdomain.StatusActive}), domain.ErrInvalidWorkspaceID)
	assert.ErrorIs(t, sink.ApplyBillingMutation(ctx, webhookdomain.BillingMutation{WorkspaceID: "W1"}), domain.ErrInvalidStatus)
	assert.ErrorIs(t, repository.New(nil, nil).ApplyBillingMutation(ctx, webhookdomain.BillingMutation{WorkspaceID: "W1"}), webhookdomain.ErrSinkUnavailable)
}
