package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/migration"
	"github.com/lukasmk87/basketmanager/internal/observability"
	"github.com/lukasmk87/basketmanager/internal/scheduler"
	"github.com/lukasmk87/basketmanager/internal/server"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"go.uber.org/fx"
)

// Single binary for small installs: migrations, HTTP API and the scheduler
// in one process.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// server.Module carries every domain module
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
