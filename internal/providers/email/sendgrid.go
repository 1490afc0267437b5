package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

var ErrSendGridKeyMissing = errors.New("sendgrid_api_key_missing")

type SendGridProvider struct {
	key  string
	from *sgmail.Email
	api  func(request rest.Request) (*rest.Response, error)
}

func NewSendGrid(apiKey, from, fromName string) *SendGridProvider {
	return &SendGridProvider{
		key:  apiKey,
		from: sgmail.NewEmail(fromName, from),
		api:  sendgrid.API,
	}
}

func (p *SendGridProvider) prepare(to []string, msg Message) *sgmail.SGMailV3 {
	personalization := sgmail.NewPersonalization()
	personalization.Subject = msg.Subject
	for _, addr := range to {
		personalization.AddTos(sgmail.NewEmail("", addr))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(p.from)
	m.AddPersonalizations(personalization)
	if msg.TextBody != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextBody))
	}
	m.AddContent(sgmail.NewContent("text/html", msg.HTMLBody))
	return m
}

func (p *SendGridProvider) Send(ctx context.Context, msg Message) error {
	if p.key == "" {
		return ErrSendGridKeyMissing
	}
	to := msg.Recipients()
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(p.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(p.prepare(to, msg))

	res, err := p.api(req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
