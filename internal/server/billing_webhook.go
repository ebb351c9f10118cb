package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	webhookdomain "github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/verifier"
)

const maxWebhookBodyBytes = 1 << 20

type billingWebhookResponse struct {
	OK              bool   `json:"ok,omitempty"`
	Duplicate       bool   `json:"duplicate,omitempty"`
	Ignored         bool   `json:"ignored,omitempty"`
	Error           string `json:"error,omitempty"`
	Reason          string `json:"reason,omitempty"`
	FallbackAllowed *bool  `json:"fallbackAllowed,omitempty"`
}

// HandleBillingWebhook reads the raw body untouched; signature checks run
// against the exact bytes the provider signed.
func (s *Server) HandleBillingWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		s.log.Warn("failed to read billing webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, billingWebhookResponse{Error: "invalid payload"})
		return
	}

	result := s.webhookSvc.Ingest(c.Request.Context(), webhookdomain.InboundWebhook{
		Body:      body,
		Signature: c.GetHeader(verifier.HeaderStripeSignature),
		Secret:    c.GetHeader(verifier.HeaderLegacySecret),
	})

	status := result.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, billingWebhookResponse{
		OK:              result.OK,
		Duplicate:       result.Duplicate,
		Ignored:         result.Ignored,
		Error:           result.Error,
		Reason:          result.Reason,
		FallbackAllowed: result.FallbackAllowed,
	})
}
