package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/clock"
	"github.com/smallbiznis/workspacebilling/internal/config"
	"github.com/smallbiznis/workspacebilling/pkg/db"
)

const (
	defaultListLimit = 50
	maxListLimit     = 250
)

type Params struct {
	fx.In

	DB     *gorm.DB
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.BillingWebhookConfig
}

type ledger struct {
	db          *gorm.DB
	genID       *snowflake.Node
	clock       clock.Clock
	retryFailed bool
}

// Provide returns the gorm-backed receipt ledger. The unique
// (provider, event_id) index is the only dedupe authority.
func Provide(p Params) domain.Ledger {
	return NewLedger(p.DB, p.GenID, p.Clock, p.Config.RetryFailedReceipts)
}

func NewLedger(conn *gorm.DB, genID *snowflake.Node, clk clock.Clock, retryFailed bool) domain.Ledger {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &ledger{
		db:          conn,
		genID:       genID,
		clock:       clk,
		retryFailed: retryFailed,
	}
}

func (l *ledger) Claim(ctx context.Context, req domain.ClaimRequest) (domain.ClaimResult, error) {
	if l.db == nil {
		return domain.ClaimResult{}, domain.ErrLedgerUnavailable
	}
	eventID := strings.TrimSpace(req.EventID)
	if req.Provider == "" || eventID == "" {
		return domain.ClaimResult{}, domain.ErrInvalidEvent
	}

	now := l.clock.Now()
	receipt := domain.Receipt{
		ID:          l.genID.Generate(),
		Provider:    string(req.Provider),
		EventID:     eventID,
		EventType:   req.EventType,
		Status:      domain.ReceiptReceived,
		PayloadHash: req.PayloadHash,
		WorkspaceID: req.WorkspaceID,
		ReceivedAt:  now,
		UpdatedAt:   now,
	}

	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&receipt)
	if res.Error != nil && !db.IsDuplicateKeyErr(res.Error) {
		return domain.ClaimResult{}, res.Error
	}
	if res.Error == nil && res.RowsAffected > 0 {
		return domain.ClaimResult{Accepted: true, ReceiptID: receipt.ID}, nil
	}

	existing, err := l.find(ctx, req.Provider, eventID)
	if err != nil {
		return domain.ClaimResult{}, err
	}

	if l.retryFailed && existing.Status == domain.ReceiptFailed {
		revived, err := l.revive(ctx, existing.ID, req)
		if err != nil {
			return domain.ClaimResult{}, err
		}
		if revived {
			return domain.ClaimResult{Accepted: true, ReceiptID: existing.ID, Revived: true}, nil
		}
	}

	return domain.ClaimResult{Accepted: false, ReceiptID: existing.ID}, nil
}

// revive moves a failed receipt back to received. The status guard makes
// concurrent re-deliveries race on a single row update.
func (l *ledger) revive(ctx context.Context, id snowflake.ID, req domain.ClaimRequest) (bool, error) {
	updates := map[string]any{
		"status":         domain.ReceiptReceived,
		"payload_hash":   req.PayloadHash,
		"failure_reason": nil,
		"processed_at":   nil,
		"updated_at":     l.clock.Now(),
	}
	if req.WorkspaceID != nil {
		updates["workspace_id"] = *req.WorkspaceID
	}

	res := l.db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("id = ? AND status = ?", id, domain.ReceiptFailed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (l *ledger) find(ctx context.Context, provider domain.Provider, eventID string) (*domain.Receipt, error) {
	var receipt domain.Receipt
	err := l.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", string(provider), eventID).
		Take(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReceiptNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

func (l *ledger) Complete(ctx context.Context, req domain.CompleteRequest) error {
	if l.db == nil {
		return domain.ErrLedgerUnavailable
	}
	if req.ReceiptID == 0 {
		return domain.ErrInvalidReceiptID
	}
	switch req.Status {
	case domain.ReceiptProcessed, domain.ReceiptIgnored, domain.ReceiptFailed:
	default:
		return domain.ErrInvalidStatus
	}

	now := l.clock.Now()
	updates := map[string]any{
		"status":         req.Status,
		"failure_reason": req.FailureReason,
		"updated_at":     now,
	}
	if req.Status == domain.ReceiptFailed {
		updates["processed_at"] = nil
	} else {
		updates["processed_at"] = now
	}
	if req.WorkspaceID != nil {
		updates["workspace_id"] = *req.WorkspaceID
	}
	if strings.TrimSpace(req.EventType) != "" {
		updates["event_type"] = req.EventType
	}

	res := l.db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("id = ?", req.ReceiptID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrReceiptNotFound
	}
	return nil
}

func (l *ledger) List(ctx context.Context, req domain.ListReceiptsRequest) ([]domain.Receipt, error) {
	if l.db == nil {
		return nil, domain.ErrLedgerUnavailable
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	stmt := l.db.WithContext(ctx).Model(&domain.Receipt{})
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}
	if req.Provider != "" {
		stmt = stmt.Where("provider = ?", string(req.Provider))
	}
	if req.BeforeID != 0 {
		stmt = stmt.Where("id < ?", req.BeforeID)
	}

	var receipts []domain.Receipt
	if err := stmt.Order("id DESC").Limit(limit).Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}
