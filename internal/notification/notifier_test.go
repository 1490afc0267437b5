package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/config"
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/providers/email"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type outbox struct {
	messages []email.Message
	err      error
}

func (o *outbox) Send(_ context.Context, msg email.Message) error {
	if o.err != nil {
		return o.err
	}
	o.messages = append(o.messages, msg)
	return nil
}

type stubTenants struct {
	tenantdomain.Service
	tenant *tenantdomain.Tenant
}

func (s stubTenants) Get(context.Context, snowflake.ID) (*tenantdomain.Tenant, error) {
	if s.tenant == nil {
		return nil, tenantdomain.ErrNotFound
	}
	return s.tenant, nil
}

func newNotifier(t *testing.T, tenant *tenantdomain.Tenant) (*Notifier, *outbox) {
	t.Helper()
	box := &outbox{}
	n, err := NewNotifier(Params{
		Log:     zap.NewNop(),
		Mailer:  box,
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Clock:   clock.NewFakeClock(time.Date(2024, 4, 20, 8, 0, 0, 0, time.UTC)),
		Tenants: stubTenants{tenant: tenant},
	})
	require.NoError(t, err)
	return n, box
}

func clubInvoice() *invoicedomain.Invoice {
	return &invoicedomain.Invoice{
		ID:           snowflake.ID(42),
		TenantID:     snowflake.ID(7),
		BillableType: invoicedomain.BillableClub,
		Number:       "CLUB-2024-00012",
		Status:       invoicedomain.StatusOverdue,
		BillingName:  "TV Nord e.V.",
		BillingEmail: "kasse@tvnord.de",
		Currency:     "EUR",
		GrossAmount:  decimal.RequireFromString("1234.5"),
		DueDate:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestInvoiceSent_UsesTenantLocaleAndIssuer(t *testing.T) {
	n, box := newNotifier(t, &tenantdomain.Tenant{Name: "Kreisverband", Locale: "de"})

	require.NoError(t, n.InvoiceSent(context.Background(), clubInvoice()))
	require.Len(t, box.messages, 1)
	msg := box.messages[0]
	assert.Equal(t, []string{"kasse@tvnord.de"}, msg.To)
	assert.Equal(t, "Ihre Rechnung CLUB-2024-00012", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "Guten Tag TV Nord e.V.")
	assert.Contains(t, msg.HTMLBody, "1.234,50 EUR")
	assert.Contains(t, msg.HTMLBody, "01.04.2024")
	assert.Contains(t, msg.HTMLBody, "Kreisverband")
}

func TestReminder_LevelsSwitchSubject(t *testing.T) {
	n, box := newNotifier(t, &tenantdomain.Tenant{Name: "Kreisverband", Locale: "en"})

	require.NoError(t, n.Reminder(context.Background(), clubInvoice(), 1))
	require.NoError(t, n.Reminder(context.Background(), clubInvoice(), 3))
	require.Len(t, box.messages, 2)

	assert.Equal(t, "Payment reminder for invoice CLUB-2024-00012", box.messages[0].Subject)
	assert.Contains(t, box.messages[0].HTMLBody, "due for 19 days")

	assert.Equal(t, "Reminder 3 for invoice CLUB-2024-00012", box.messages[1].Subject)
	assert.Contains(t, box.messages[1].HTMLBody, "access will be suspended")
}

func TestTenantInvoice_UsesPlatformIssuer(t *testing.T) {
	n, box := newNotifier(t, &tenantdomain.Tenant{Name: "Kreisverband", Locale: "de"})
	invoice := clubInvoice()
	invoice.BillableType = invoicedomain.BillableTenant
	invoice.Status = invoicedomain.StatusPaid
	paidAt := time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC)
	invoice.PaidAt = &paidAt

	require.NoError(t, n.PaymentConfirmation(context.Background(), invoice))
	require.Len(t, box.messages, 1)
	assert.Equal(t, "Zahlungseingang zur Rechnung CLUB-2024-00012", box.messages[0].Subject)
	assert.Contains(t, box.messages[0].HTMLBody, "Basketmanager")
	assert.Contains(t, box.messages[0].HTMLBody, "19.04.2024")
}

func TestCancelled_IncludesNote(t *testing.T) {
	n, box := newNotifier(t, nil)
	invoice := clubInvoice()
	invoice.Status = invoicedomain.StatusCancelled
	note := "Storniert: doppelt"
	invoice.PaymentNotes = &note

	require.NoError(t, n.Cancelled(context.Background(), invoice))
	require.Len(t, box.messages, 1)
	assert.Equal(t, "Stornierung der Rechnung CLUB-2024-00012", box.messages[0].Subject)
	assert.Contains(t, box.messages[0].HTMLBody, "Storniert: doppelt")
}

func TestDeliver_SkipsMissingAddressAndReturnsProviderErrors(t *testing.T) {
	n, box := newNotifier(t, nil)
	invoice := clubInvoice()
	invoice.BillingEmail = ""
	require.NoError(t, n.SuspensionWarning(context.Background(), invoice))
	assert.Empty(t, box.messages)

	box.err = errors.New("smtp down")
	err := n.SuspensionWarning(context.Background(), clubInvoice())
	assert.ErrorIs(t, err, box.err)
}
