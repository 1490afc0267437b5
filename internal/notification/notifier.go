// Package notification sends the invoice mails of the billing lifecycle.
package notification

import (
	"bytes"
	"context"
	"embed"
	"html/template"

	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/i18n"
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/invoice/format"
	"github.com/lukasmk87/basketmanager/internal/providers/email"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplateInvoiceSent         = "invoice_sent"
	TemplateInvoiceReminder     = "invoice_reminder"
	TemplateSuspensionWarning   = "invoice_suspension_warning"
	TemplatePaymentConfirmation = "invoice_payment_confirmation"
	TemplateInvoiceCancelled    = "invoice_cancelled"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Mailer  email.Provider
	Billing *config.BillingConfigHolder
	Clock   clock.Clock
	Tenants tenantdomain.Service `optional:"true"`
}

type Notifier struct {
	log       *zap.Logger
	mailer    email.Provider
	billing   *config.BillingConfigHolder
	clock     clock.Clock
	tenants   tenantdomain.Service
	templates *template.Template
}

var _ invoicedomain.Notifier = (*Notifier)(nil)

func NewNotifier(p Params) (*Notifier, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Notifier{
		log:       p.Log.Named("notification"),
		mailer:    p.Mailer,
		billing:   p.Billing,
		clock:     p.Clock,
		tenants:   p.Tenants,
		templates: templates,
	}, nil
}

// mailData is what every template sees.
type mailData struct {
	Locale        i18n.Locale
	Subject       string
	RecipientName string
	IssuerName    string
	Number        string
	Amount        string
	DueDate       string
	Reference     string
	BillingPeriod string
	SmallBusiness bool
	DaysOverdue   int
	Level         int
	MaxLevel      int
	PaidAt        string
	Note          string
}

func (n *Notifier) InvoiceSent(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return n.deliver(ctx, invoice, TemplateInvoiceSent, "mail.invoice_sent.subject", 0)
}

// Reminder sends the first reminder as a friendly note and later ones as dunning letters.
func (n *Notifier) Reminder(ctx context.Context, invoice *invoicedomain.Invoice, level int) error {
	return n.deliver(ctx, invoice, TemplateInvoiceReminder, "mail.invoice_reminder.subject", level)
}

func (n *Notifier) SuspensionWarning(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return n.deliver(ctx, invoice, TemplateSuspensionWarning, "mail.invoice_suspension_warning.subject", 0)
}

func (n *Notifier) PaymentConfirmation(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return n.deliver(ctx, invoice, TemplatePaymentConfirmation, "mail.invoice_payment_confirmation.subject", 0)
}

func (n *Notifier) Cancelled(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return n.deliver(ctx, invoice, TemplateInvoiceCancelled, "mail.invoice_cancelled.subject", 0)
}

func (n *Notifier) deliver(ctx context.Context, invoice *invoicedomain.Invoice, name, subjectKey string, level int) error {
	if invoice == nil {
		return invoicedomain.ErrNotFound
	}
	if invoice.BillingEmail == "" {
		n.log.Warn("invoice has no billing email, mail skipped",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("template", name),
		)
		return nil
	}

	data := n.data(ctx, invoice, level)
	if level >= 2 {
		data.Subject = i18n.T(data.Locale, "mail.invoice_dunning.subject", level, invoice.Number)
	} else {
		data.Subject = i18n.T(data.Locale, subjectKey, invoice.Number)
	}

	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, email.Message{
		To:       []string{invoice.BillingEmail},
		Subject:  data.Subject,
		HTMLBody: body.String(),
	}); err != nil {
		return err
	}
	n.log.Info("invoice mail sent",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("template", name),
		zap.Int("level", level),
	)
	return nil
}

func (n *Notifier) data(ctx context.Context, invoice *invoicedomain.Invoice, level int) mailData {
	cfg := n.billing.Get()
	data := mailData{
		Locale:        i18n.Default,
		RecipientName: invoice.BillingName,
		IssuerName:    cfg.Issuer.Name,
		Number:        invoice.Number,
		Amount:        format.Money(invoice.GrossAmount, invoice.Currency),
		DueDate:       format.Date(invoice.DueDate),
		Reference:     invoice.Reference(),
		BillingPeriod: invoice.BillingPeriod,
		SmallBusiness: invoice.IsSmallBusiness,
		DaysOverdue:   invoice.DaysOverdue(n.clock.Now()),
		Level:         level,
		MaxLevel:      cfg.Dunning.MaxReminders,
	}
	if invoice.PaidAt != nil {
		data.PaidAt = format.Date(*invoice.PaidAt)
	}
	if invoice.Status == invoicedomain.StatusCancelled && invoice.PaymentNotes != nil {
		data.Note = *invoice.PaymentNotes
	}

	if n.tenants == nil {
		return data
	}
	tenant, err := n.tenants.Get(ctx, invoice.TenantID)
	if err != nil {
		n.log.Warn("tenant lookup for mail failed", zap.String("tenant_id", invoice.TenantID.String()), zap.Error(err))
		return data
	}
	if tenant.Locale != "" {
		data.Locale = i18n.Locale(tenant.Locale)
	}
	// clubs are billed by their tenant
	if invoice.BillableType == invoicedomain.BillableClub {
		data.IssuerName = tenant.BillingRecipient()
	}
	return data
}
