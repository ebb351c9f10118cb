package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/smallbiznis/workspacebilling/internal/billingevent/domain"
)

type dbSink struct {
	db *gorm.DB
}

// NewDBSink writes billing events to the billing_events table.
func NewDBSink(db *gorm.DB) domain.Sink {
	return &dbSink{db: db}
}

func (s *dbSink) Name() string { return "database" }

func (s *dbSink) Write(ctx context.Context, event domain.BillingEvent) error {
	return s.db.WithContext(ctx).Create(&event).Error
}
