package email

import (
	"github.com/lukasmk87/basketmanager/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig picks the provider named by MAIL_PROVIDER. A sendgrid setup
// without key falls back to noop.
func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	mail := cfg.Mail
	switch mail.Provider {
	case config.MailProviderSMTP:
		return NewSMTP(SMTPConfig{
			Host:     mail.SMTPHost,
			Port:     mail.SMTPPort,
			Username: mail.SMTPUsername,
			Password: mail.SMTPPassword,
			From:     mail.From,
			FromName: mail.FromName,
		})
	case config.MailProviderSendGrid:
		if mail.SendGridAPIKey == "" {
			log.Warn("sendgrid selected without api key, mails are dropped")
			return NewNoOp(log)
		}
		return NewSendGrid(mail.SendGridAPIKey, mail.From, mail.FromName)
	default:
		return NewNoOp(log)
	}
}
