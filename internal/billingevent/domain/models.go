package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent is an append-only record of a billing change on a workspace.
type BillingEvent struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	WorkspaceID string            `json:"workspace_id" gorm:"type:text;not null;index"`
	EventType   string            `json:"event_type" gorm:"type:text;not null"`
	Source      string            `json:"source" gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `json:"payload" gorm:"not null"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

// Sink persists or forwards one billing event.
type Sink interface {
	Name() string
	Write(ctx context.Context, event BillingEvent) error
}

var (
	ErrInvalidWorkspace = errors.New("invalid_workspace")
	ErrInvalidEventType = errors.New("invalid_event_type")
)
