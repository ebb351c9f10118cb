package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	webhookdomain "github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/repository"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/verifier"
	"github.com/smallbiznis/workspacebilling/internal/clock"
	"github.com/smallbiznis/workspacebilling/internal/config"
)

type fakeWebhookService struct {
	got    webhookdomain.InboundWebhook
	result webhookdomain.Result
}

func (f *fakeWebhookService) Ingest(_ context.Context, in webhookdomain.InboundWebhook) webhookdomain.Result {
	f.got = in
	return f.result
}

func newTestServer(t *testing.T, svc webhookdomain.Service, ledger webhookdomain.Ledger, adminToken string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	s := NewServer(ServerParams{
		Engine:  engine,
		Config:  config.BillingWebhookConfig{AdminToken: adminToken},
		Webhook: svc,
		Ledger:  ledger,
	})
	s.RegisterRoutes()
	return engine
}

func newLedger(t *testing.T) (webhookdomain.Ledger, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&webhookdomain.Receipt{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return repository.NewLedger(db, node, clock.SystemClock{}, false), node
}

func TestHandleBillingWebhookPassesRawRequest(t *testing.T) {
	svc := &fakeWebhookService{result: webhookdomain.Result{Status: http.StatusOK, OK: true, Duplicate: true}}
	router := newTestServer(t, svc, nil, "")

	body := []byte(`{"id":"evt_1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(body))
	req.Header.Set(verifier.HeaderStripeSignature, "t=1,v1=abc")
	req.Header.Set(verifier.HeaderLegacySecret, "shh")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"duplicate":true}`, rec.Body.String())
	assert.Equal(t, body, svc.got.Body)
	assert.Equal(t, "t=1,v1=abc", svc.got.Signature)
	assert.Equal(t, "shh", svc.got.Secret)
}

func TestHandleBillingWebhookDeniedBody(t *testing.T) {
	allowed := false
	svc := &fakeWebhookService{result: webhookdomain.Result{
		Status:          http.StatusServiceUnavailable,
		Error:           "stripe webhook secret is not configured",
		Reason:          "missing_secret",
		FallbackAllowed: &allowed,
	}}
	router := newTestServer(t, svc, nil, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader([]byte(`{}`))))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"stripe webhook secret is not configured","reason":"missing_secret","fallbackAllowed":false}`, rec.Body.String())
}

func TestWebhookReceiptsRequiresAdminToken(t *testing.T) {
	ledger, _ := newLedger(t)

	disabled := newTestServer(t, &fakeWebhookService{}, ledger, "")
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/billing/webhook-receipts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	router := newTestServer(t, &fakeWebhookService{}, ledger, "admin-token")
	req := httptest.NewRequest(http.MethodGet, "/internal/billing/webhook-receipts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListWebhookReceiptsPaginates(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	for i := 0; i < 3; i++ {
		claim, err := ledger.Claim(ctx, webhookdomain.ClaimRequest{
			Provider:    webhookdomain.ProviderStripe,
			EventID:     fmt.Sprintf("evt_%d", i),
			EventType:   "customer.subscription.updated",
			PayloadHash: "hash",
		})
		require.NoError(t, err)
		reason := "workspace_not_found"
		require.NoError(t, ledger.Complete(ctx, webhookdomain.CompleteRequest{
			ReceiptID:     claim.ReceiptID,
			Status:        webhookdomain.ReceiptFailed,
			FailureReason: &reason,
		}))
	}

	router := newTestServer(t, &fakeWebhookService{}, ledger, "admin-token")
	get := func(query string) (int, listWebhookReceiptsResponse) {
		req := httptest.NewRequest(http.MethodGet, "/internal/billing/webhook-receipts?"+query, nil)
		req.Header.Set("Authorization", "Bearer admin-token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		var resp listWebhookReceiptsResponse
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		}
		return rec.Code, resp
	}

	code, first := get("status=failed&page_size=2")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, first.Data, 2)
	assert.True(t, first.PageInfo.HasMore)
	assert.Equal(t, "evt_2", first.Data[0].EventID)

	code, second := get("status=failed&page_size=2&page_token=" + first.PageInfo.NextPageToken)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, second.Data, 1)
	assert.False(t, second.PageInfo.HasMore)
	assert.Equal(t, "evt_0", second.Data[0].EventID)

	code, _ = get("status=bogus")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get("page_token=not-base64!")
	assert.Equal(t, http.StatusBadRequest, code)
}
