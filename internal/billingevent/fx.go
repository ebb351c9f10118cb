package billingevent

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/workspacebilling/internal/billingevent/domain"
	"github.com/smallbiznis/workspacebilling/internal/billingevent/repository"
	"github.com/smallbiznis/workspacebilling/internal/billingevent/service"
	"github.com/smallbiznis/workspacebilling/internal/billingevent/stream"
	"github.com/smallbiznis/workspacebilling/internal/config"
)

var Module = fx.Module("billingevent",
	fx.Provide(
		fx.Annotate(
			func(db *gorm.DB) domain.Sink { return repository.NewDBSink(db) },
			fx.ResultTags(`group:"billing_event_sinks"`),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideStreamSink,
			fx.ResultTags(`group:"billing_event_sinks"`),
		),
	),
	fx.Provide(service.NewService),
)

// provideStreamSink yields a nil sink when redis is not configured; the
// service skips nil sinks.
func provideStreamSink(lc fx.Lifecycle, cfg config.Config) domain.Sink {
	client := stream.NewClient(cfg.BillingEvents)
	if client == nil {
		return nil
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return stream.NewSink(client, cfg.BillingEvents.Stream, cfg.BillingEvents.MaxLen)
}
