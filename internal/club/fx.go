package club

import (
	"github.com/lukasmk87/basketmanager/internal/club/repository"
	"github.com/lukasmk87/basketmanager/internal/club/service"
	"go.uber.org/fx"
)

var Module = fx.Module("club.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
