package email

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var ErrNoRecipients = errors.New("email_no_recipients")

// Message is one rendered mail.
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
}

// Recipients returns the non-empty, trimmed addresses of To.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To))
	for _, addr := range m.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider only logs. Used when no mail provider is configured.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	p.log.Debug("mail skipped",
		zap.Strings("to", msg.Recipients()),
		zap.String("subject", msg.Subject),
	)
	return nil
}
