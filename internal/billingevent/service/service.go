package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/smallbiznis/workspacebilling/internal/billingevent/domain"
	webhookdomain "github.com/smallbiznis/workspacebilling/internal/billingwebhook/domain"
	"github.com/smallbiznis/workspacebilling/internal/clock"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Sinks []domain.Sink `group:"billing_event_sinks"`
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	sinks []domain.Sink
}

func NewService(p Params) webhookdomain.Emitter {
	return New(p.Log, p.GenID, p.Clock, p.Sinks...)
}

func New(log *zap.Logger, genID *snowflake.Node, clk clock.Clock, sinks ...domain.Sink) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	active := make([]domain.Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	return &Service{
		log:   log.Named("billingevent.service"),
		genID: genID,
		clock: clk,
		sinks: active,
	}
}

// Emit writes the record to every sink. One failing sink does not stop
// the others; all failures are joined into the returned error.
func (s *Service) Emit(ctx context.Context, record webhookdomain.EventRecord) error {
	workspaceID := strings.TrimSpace(record.WorkspaceID)
	if workspaceID == "" {
		return domain.ErrInvalidWorkspace
	}
	eventType := strings.TrimSpace(record.EventType)
	if eventType == "" {
		return domain.ErrInvalidEventType
	}
	source := strings.TrimSpace(record.Source)
	if source == "" {
		source = "system"
	}

	payload := datatypes.JSONMap{}
	for key, value := range record.Payload {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	event := domain.BillingEvent{
		ID:          s.genID.Generate(),
		WorkspaceID: workspaceID,
		EventType:   eventType,
		Source:      source,
		Payload:     payload,
		CreatedAt:   s.clock.Now(),
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			s.log.Debug("billing event sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("workspace_id", workspaceID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
