package tenant

import (
	"github.com/lukasmk87/basketmanager/internal/tenant/repository"
	"github.com/lukasmk87/basketmanager/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
