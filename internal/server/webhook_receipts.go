package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	webhookdomain "github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/pkg/db/pagination"
)

type listWebhookReceiptsRequest struct {
	pagination.Pagination
	Status   string `form:"status"`
	Provider string `form:"provider"`
}

type listWebhookReceiptsResponse struct {
	Data     []webhookdomain.Receipt `json:"data"`
	PageInfo pagination.PageInfo     `json:"page_info"`
}

// ListWebhookReceipts lets operators find failed deliveries for replay.
func (s *Server) ListWebhookReceipts(c *gin.Context) {
	var req listWebhookReceiptsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, newValidationError("query", "invalid_request", "invalid query"))
		return
	}

	status := webhookdomain.ReceiptStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case "", webhookdomain.ReceiptReceived, webhookdomain.ReceiptProcessed, webhookdomain.ReceiptIgnored, webhookdomain.ReceiptFailed:
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "unknown receipt status"))
		return
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var beforeID snowflake.ID
	if cursor != nil {
		beforeID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			AbortWithError(c, pagination.ErrInvalidPageToken)
			return
		}
	}

	size := req.Size()
	receipts, err := s.ledger.List(c.Request.Context(), webhookdomain.ListReceiptsRequest{
		Status:   status,
		Provider: webhookdomain.Provider(strings.TrimSpace(req.Provider)),
		Limit:    size + 1,
		BeforeID: beforeID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, info, err := pagination.BuildCursorPage(receipts, size, func(r webhookdomain.Receipt) string {
		return r.ID.String()
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if page == nil {
		page = []webhookdomain.Receipt{}
	}

	c.JSON(http.StatusOK, listWebhookReceiptsResponse{Data: page, PageInfo: info})
}
