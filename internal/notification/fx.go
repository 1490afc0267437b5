package notification

import (
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/providers/email"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	email.Module,
	fx.Provide(
		fx.Annotate(NewNotifier, fx.As(new(invoicedomain.Notifier))),
	),
)
