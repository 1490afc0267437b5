package voucher

import (
	"github.com/lukasmk87/basketmanager/internal/voucher/repository"
	"github.com/lukasmk87/basketmanager/internal/voucher/service"
	"go.uber.org/fx"
)

var Module = fx.Module("voucher.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
