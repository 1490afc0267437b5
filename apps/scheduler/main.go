package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/audit"
	"github.com/lukasmk87/basketmanager/internal/authorization"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/club"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/dunning"
	"github.com/lukasmk87/basketmanager/internal/invoice"
	"github.com/lukasmk87/basketmanager/internal/notification"
	"github.com/lukasmk87/basketmanager/internal/observability"
	"github.com/lukasmk87/basketmanager/internal/ratelimit"
	"github.com/lukasmk87/basketmanager/internal/scheduler"
	"github.com/lukasmk87/basketmanager/internal/tax"
	"github.com/lukasmk87/basketmanager/internal/tenant"
	"github.com/lukasmk87/basketmanager/internal/voucher"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// services the jobs call into
		audit.Module,
		authorization.Module,
		tenant.Module,
		club.Module,
		tax.Module,
		voucher.Module,
		notification.Module,
		invoice.Module,
		dunning.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
