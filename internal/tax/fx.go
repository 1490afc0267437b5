package tax

import (
	"github.com/lukasmk87/basketmanager/internal/tax/repository"
	"github.com/lukasmk87/basketmanager/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewService),
)
