package invoice

import (
	"github.com/lukasmk87/basketmanager/internal/invoice/render"
	"github.com/lukasmk87/basketmanager/internal/invoice/repository"
	"github.com/lukasmk87/basketmanager/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(render.NewRenderer),
	fx.Provide(service.NewService),
)
