package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/observability"
	"github.com/lukasmk87/basketmanager/internal/server"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"go.uber.org/fx"
)

// The API process serves HTTP only. Dunning and redemption expiry run in
// apps/scheduler.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
