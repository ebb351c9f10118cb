package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/smallbiznis/workspacebilling/internal/billingevent"
	"github.com/smallbiznis/workspacebilling/internal/billingwebhook"
	"github.com/smallbiznis/workspacebilling/internal/clock"
	"github.com/smallbiznis/workspacebilling/internal/config"
	"github.com/smallbiznis/workspacebilling/internal/migration"
	"github.com/smallbiznis/workspacebilling/internal/observability"
	"github.com/smallbiznis/workspacebilling/internal/server"
	"github.com/smallbiznis/workspacebilling/internal/workspace"
	"github.com/smallbiznis/workspacebilling/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Billing ingestion
		workspace.Module,
		billingevent.Module,
		billingwebhook.Module,

		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
