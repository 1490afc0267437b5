// Package dunning walks unpaid invoices: marks them overdue, sends reminders
// on the configured schedule and suspends the billable once the grace period
// has run out.
package dunning

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/config"
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/observability/metrics"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Result counts what one dunning run changed.
type Result struct {
	MarkedOverdue          int `json:"marked_overdue"`
	RemindersSent          int `json:"reminders_sent"`
	SubscriptionsSuspended int `json:"subscriptions_suspended"`
	Errors                 int `json:"errors"`
}

func (r *Result) add(other Result) {
	r.MarkedOverdue += other.MarkedOverdue
	r.RemindersSent += other.RemindersSent
	r.SubscriptionsSuspended += other.SubscriptionsSuspended
	r.Errors += other.Errors
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Invoices invoicedomain.Service
	Clubs    clubdomain.Service
	Tenants  tenantdomain.Service
	Notifier invoicedomain.Notifier `optional:"true"`
	Metrics  *metrics.Metrics       `optional:"true"`
}

type Processor struct {
	log      *zap.Logger
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	invoices invoicedomain.Service
	clubs    clubdomain.Service
	tenants  tenantdomain.Service
	notifier invoicedomain.Notifier
	metrics  *metrics.Metrics
}

func NewProcessor(p Params) *Processor {
	return &Processor{
		log:      p.Log.Named("dunning.processor"),
		clock:    p.Clock,
		billing:  p.Billing,
		invoices: p.Invoices,
		clubs:    p.Clubs,
		tenants:  p.Tenants,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

// ProcessOverdueInvoices runs all three dunning stages. A failing invoice is
// logged and counted; the run continues with the next one.
func (p *Processor) ProcessOverdueInvoices(ctx context.Context) (Result, error) {
	var result Result

	marked, err := p.MarkOverdue(ctx)
	result.add(marked)
	jobErr := err

	reminded, err := p.SendReminders(ctx)
	result.add(reminded)
	jobErr = errors.Join(jobErr, err)

	suspended, err := p.SuspendOverdue(ctx)
	result.add(suspended)
	jobErr = errors.Join(jobErr, err)

	p.log.Info("dunning run finished",
		zap.Int("marked_overdue", result.MarkedOverdue),
		zap.Int("reminders_sent", result.RemindersSent),
		zap.Int("subscriptions_suspended", result.SubscriptionsSuspended),
		zap.Int("errors", result.Errors),
	)
	return result, jobErr
}

// MarkOverdue flips sent invoices past their due date to overdue, batch by
// batch until none are left or a batch makes no progress.
func (p *Processor) MarkOverdue(ctx context.Context) (Result, error) {
	var result Result
	var jobErr error
	failed := make(map[snowflake.ID]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(jobErr, err)
		}
		invoices, err := p.invoices.ListSentPastDue(ctx, 0)
		if err != nil {
			return result, errors.Join(jobErr, err)
		}
		if len(invoices) == 0 {
			return result, jobErr
		}

		progressed := 0
		for _, invoice := range invoices {
			if _, seen := failed[invoice.ID]; seen {
				continue
			}
			if _, err := p.invoices.MarkOverdue(ctx, invoice.ID); err != nil {
				failed[invoice.ID] = struct{}{}
				result.Errors++
				jobErr = errors.Join(jobErr, err)
				p.logFailure("mark_overdue", invoice, err)
				continue
			}
			progressed++
		}
		result.MarkedOverdue += progressed
		if progressed == 0 {
			return result, jobErr
		}
	}
}

// SendReminders sends the next reminder for every overdue invoice whose days
// overdue reached the interval of its next reminder level.
func (p *Processor) SendReminders(ctx context.Context) (Result, error) {
	var result Result
	cfg := p.billing.Get().Dunning
	if !cfg.ReminderEnabled {
		return result, nil
	}

	invoices, err := p.invoices.ListOverdueForReminder(ctx, 0)
	if err != nil {
		return result, err
	}
	now := p.clock.Now()
	var jobErr error
	for _, invoice := range invoices {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(jobErr, err)
		}
		days, ok := cfg.ReminderInterval(invoice.ReminderCount)
		if !ok || invoice.DaysOverdue(now) < days {
			continue
		}
		if _, err := p.invoices.SendReminder(ctx, invoice.ID); err != nil {
			if errors.Is(err, invoicedomain.ErrMaxReminders) {
				continue
			}
			result.Errors++
			jobErr = errors.Join(jobErr, err)
			p.logFailure("send_reminder", invoice, err)
			continue
		}
		result.RemindersSent++
	}
	return result, jobErr
}

// SuspendOverdue suspends clubs and tenants whose invoice stayed unpaid
// SuspensionDaysAfterDue days past the due date.
func (p *Processor) SuspendOverdue(ctx context.Context) (Result, error) {
	var result Result
	if !p.billing.Get().Dunning.SuspensionEnabled {
		return result, nil
	}

	var jobErr error
	failed := make(map[snowflake.ID]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(jobErr, err)
		}
		invoices, err := p.invoices.ListOverdueForSuspension(ctx, 0)
		if err != nil {
			return result, errors.Join(jobErr, err)
		}
		if len(invoices) == 0 {
			return result, jobErr
		}

		progressed := 0
		for i := range invoices {
			invoice := &invoices[i]
			if _, seen := failed[invoice.ID]; seen {
				continue
			}
			suspended, err := p.suspend(ctx, invoice)
			if err != nil {
				failed[invoice.ID] = struct{}{}
				result.Errors++
				jobErr = errors.Join(jobErr, err)
				p.logFailure("suspend", *invoice, err)
				continue
			}
			progressed++
			if !suspended {
				continue
			}
			result.SubscriptionsSuspended++
			p.warn(ctx, invoice)
			p.metrics.RecordSuspension(ctx, string(invoice.BillableType))
		}
		if progressed == 0 {
			return result, jobErr
		}
	}
}

// suspend reports false when the billable was already suspended.
func (p *Processor) suspend(ctx context.Context, invoice *invoicedomain.Invoice) (bool, error) {
	now := p.clock.Now()
	switch invoice.BillableType {
	case invoicedomain.BillableClub:
		club, err := p.clubs.Get(ctx, invoice.TenantID, invoice.BillableID)
		if err != nil {
			return false, err
		}
		if club.SubscriptionStatus == clubdomain.StatusSuspended {
			return false, nil
		}
		if err := p.clubs.Suspend(ctx, nil, club, map[string]any{
			"invoice_id":     invoice.ID.String(),
			"invoice_number": invoice.Number,
			"days_overdue":   invoice.DaysOverdue(now),
		}); err != nil {
			return false, err
		}
	case invoicedomain.BillableTenant:
		tenant, err := p.tenants.Get(ctx, invoice.BillableID)
		if err != nil {
			return false, err
		}
		if tenant.IsSuspended {
			return false, nil
		}
		if _, err := p.tenants.Suspend(ctx, tenant.ID, "unpaid_invoice:"+invoice.Number); err != nil {
			return false, err
		}
	default:
		return false, invoicedomain.ErrInvalidBillableType
	}

	p.log.Info("billable suspended for unpaid invoice",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.Number),
		zap.String("billable_type", string(invoice.BillableType)),
		zap.String("billable_id", invoice.BillableID.String()),
	)
	return true, nil
}

func (p *Processor) warn(ctx context.Context, invoice *invoicedomain.Invoice) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.SuspensionWarning(ctx, invoice); err != nil {
		p.log.Warn("suspension warning mail failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
	}
}

func (p *Processor) logFailure(stage string, invoice invoicedomain.Invoice, err error) {
	p.log.Error("dunning step failed",
		zap.String("stage", stage),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.Number),
		zap.String("tenant_id", invoice.TenantID.String()),
		zap.Error(err),
	)
}
