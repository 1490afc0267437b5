package audit

import (
	"github.com/lukasmk87/basketmanager/internal/audit/repository"
	"github.com/lukasmk87/basketmanager/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
