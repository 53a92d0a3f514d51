package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotara/internal/clock"
	"github.com/smallbiznis/quotara/internal/config"
	"github.com/smallbiznis/quotara/internal/migration"
	"github.com/smallbiznis/quotara/internal/observability"
	"github.com/smallbiznis/quotara/internal/scheduler"
	"github.com/smallbiznis/quotara/internal/server"
	"github.com/smallbiznis/quotara/pkg/db"
	"go.uber.org/fx"
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

		// HTTP surface plus the domain modules it wires in
		server.Module,

		// Background jobs
		scheduler.Module,
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
