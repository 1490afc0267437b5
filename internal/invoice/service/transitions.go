package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/i18n"
	"github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"github.com/lukasmk87/basketmanager/pkg/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// related holds the club and plan an invoice bills. Loaded before the
// transaction opens because the club service reads on its own connection.
type related struct {
	club *clubdomain.Club
	plan *clubdomain.Plan
}

func (s *Service) related(ctx context.Context, invoice *domain.Invoice) (related, error) {
	var r related
	if invoice.BillableType != domain.BillableClub {
		return r, nil
	}
	club, err := s.clubs.Get(ctx, invoice.TenantID, invoice.BillableID)
	if err != nil {
		return r, err
	}
	r.club = club
	if invoice.PlanID != nil {
		plan, err := s.clubs.GetPlan(ctx, invoice.TenantID, *invoice.PlanID)
		if err != nil {
			return r, err
		}
		r.plan = plan
	}
	return r, nil
}

// transition locks the invoice, checks allowed and applies mutate in one
// transaction. mutate may write more rows on tx.
func (s *Service) transition(ctx context.Context, id snowflake.ID, allowed func(domain.Invoice) bool, mutate func(tx *gorm.DB, invoice *domain.Invoice) error) (*domain.Invoice, error) {
	var result *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !allowed(*invoice) {
			return domain.ErrInvalidTransition
		}
		invoice.UpdatedBy = tenantcontext.ActorID(ctx)
		invoice.UpdatedAt = s.clock.Now()
		if err := mutate(tx, invoice); err != nil {
			return err
		}
		result = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) MarkSent(ctx context.Context, id snowflake.ID, sendEmail bool) (*domain.Invoice, error) {
	current, err := s.load(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	rel, err := s.related(ctx, current)
	if err != nil {
		return nil, err
	}

	invoice, err := s.transition(ctx, id, domain.Invoice.CanBeSent, func(tx *gorm.DB, invoice *domain.Invoice) error {
		invoice.Status = domain.StatusSent
		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		if rel.club != nil && rel.club.PaysViaInvoice() && invoice.PlanID != nil {
			if err := s.clubs.MarkPendingPayment(ctx, tx, rel.club); err != nil {
				return err
			}
		}
		if err := s.logClubEvent(ctx, tx, invoice, clubdomain.EventInvoiceSent, nil); err != nil {
			return err
		}
		return s.audit(ctx, tx, "invoice.send", invoice, map[string]any{"send_email": sendEmail})
	})
	if err != nil {
		return nil, err
	}

	if sendEmail {
		s.notify(invoice, "invoice_sent", func(n domain.Notifier) error {
			return n.InvoiceSent(ctx, invoice)
		})
	}
	s.log.Info("invoice sent",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.Number),
		zap.Bool("send_email", sendEmail),
	)
	return invoice, nil
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID, req domain.MarkPaidRequest) (*domain.Invoice, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	rel, err := s.related(ctx, current)
	if err != nil {
		return nil, err
	}

	invoice, err := s.transition(ctx, id, domain.Invoice.CanBeMarkedPaid, func(tx *gorm.DB, invoice *domain.Invoice) error {
		paidAt := s.clock.Now()
		if req.PaidAt != nil {
			paidAt = req.PaidAt.UTC()
		}
		invoice.Status = domain.StatusPaid
		invoice.PaidAt = &paidAt
		invoice.PaymentReference = trimmedOrNil(req.PaymentReference)
		invoice.PaymentNotes = trimmedOrNil(req.PaymentNotes)
		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		if rel.club != nil && rel.plan != nil {
			interval := clubdomain.BillingInterval(invoice.BillingInterval)
			if err := s.clubs.ActivateSubscription(ctx, tx, rel.club, rel.plan, interval); err != nil {
				return err
			}
		}
		if err := s.logClubEvent(ctx, tx, invoice, clubdomain.EventInvoicePaid, map[string]any{
			"amount": invoice.GrossAmount.StringFixed(2),
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, "invoice.mark_paid", invoice, map[string]any{
			"gross_amount": invoice.GrossAmount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	if invoice.BillableType == domain.BillableTenant {
		s.reactivateTenant(ctx, invoice)
	}
	s.notify(invoice, "payment_confirmation", func(n domain.Notifier) error {
		return n.PaymentConfirmation(ctx, invoice)
	})
	s.metrics.RecordInvoicePaid(ctx, string(invoice.BillableType))
	s.log.Info("invoice paid",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.Number),
		zap.String("gross_amount", invoice.GrossAmount.StringFixed(2)),
	)
	return invoice, nil
}

// reactivateTenant lifts a dunning suspension once the platform invoice is paid.
func (s *Service) reactivateTenant(ctx context.Context, invoice *domain.Invoice) {
	tenant, err := s.tenants.Get(ctx, invoice.BillableID)
	if err != nil || !tenant.IsSuspended {
		return
	}
	if _, err := s.tenants.Reactivate(ctx, tenant.ID); err != nil {
		s.log.Warn("tenant reactivation failed",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) MarkOverdue(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	return s.transition(ctx, id, domain.Invoice.CanBeMarkedOverdue, func(tx *gorm.DB, invoice *domain.Invoice) error {
		invoice.Status = domain.StatusOverdue
		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.logClubEvent(ctx, tx, invoice, clubdomain.EventInvoiceOverdue, map[string]any{
			"due_date": invoice.DueDate.Format("2006-01-02"),
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, "invoice.mark_overdue", invoice, nil)
	})
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (*domain.Invoice, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrCancellationReason
	}
	current, err := s.load(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	locale := i18n.Default
	if tenant, err := s.tenants.Get(ctx, current.TenantID); err == nil {
		locale = localeOf(tenant)
	}

	var delivered bool
	invoice, err := s.transition(ctx, id, domain.Invoice.CanBeCancelled, func(tx *gorm.DB, invoice *domain.Invoice) error {
		delivered = invoice.Status != domain.StatusDraft
		note := i18n.T(locale, "invoice.cancelled_note", reason)
		invoice.Status = domain.StatusCancelled
		invoice.PaymentNotes = &note
		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.logClubEvent(ctx, tx, invoice, clubdomain.EventInvoiceCancelled, map[string]any{
			"reason": reason,
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, "invoice.cancel", invoice, map[string]any{"reason": reason})
	})
	if err != nil {
		return nil, err
	}

	// drafts never reached the recipient
	if delivered {
		s.notify(invoice, "cancelled", func(n domain.Notifier) error {
			return n.Cancelled(ctx, invoice)
		})
	}
	return invoice, nil
}

func (s *Service) SendReminder(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	maxReminders := s.billing.Get().Dunning.MaxReminders

	invoice, err := s.transition(ctx, id, domain.Invoice.CanSendReminder, func(tx *gorm.DB, invoice *domain.Invoice) error {
		if invoice.ReminderCount >= maxReminders {
			return domain.ErrMaxReminders
		}
		now := s.clock.Now()
		invoice.ReminderCount++
		invoice.LastReminderSentAt = &now
		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.logClubEvent(ctx, tx, invoice, clubdomain.EventReminderSent, map[string]any{
			"level":        invoice.ReminderCount,
			"days_overdue": invoice.DaysOverdue(now),
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, "invoice.reminder", invoice, map[string]any{"level": invoice.ReminderCount})
	})
	if err != nil {
		return nil, err
	}

	level := invoice.ReminderCount
	s.notify(invoice, "reminder", func(n domain.Notifier) error {
		return n.Reminder(ctx, invoice, level)
	})
	s.metrics.RecordReminderSent(ctx, level)
	s.log.Info("invoice reminder sent",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.Number),
		zap.Int("level", level),
	)
	return invoice, nil
}

// The dunning listings cover every tenant for system callers and only the
// caller's tenant otherwise.

func (s *Service) ListSentPastDue(ctx context.Context, limit int) ([]domain.Invoice, error) {
	return s.repo.ListSentPastDue(ctx, s.db, scope(ctx), s.clock.Now(), s.batch(limit))
}

func (s *Service) ListOverdueForReminder(ctx context.Context, limit int) ([]domain.Invoice, error) {
	return s.repo.ListOverdueForReminder(ctx, s.db, scope(ctx), s.billing.Get().Dunning.MaxReminders, s.batch(limit))
}

func (s *Service) ListOverdueForSuspension(ctx context.Context, limit int) ([]domain.Invoice, error) {
	days := s.billing.Get().Dunning.SuspensionDaysAfterDue
	dueBefore := endOfDay(s.clock.Now().AddDate(0, 0, -days))
	return s.repo.ListOverdueForSuspension(ctx, s.db, scope(ctx), dueBefore, s.batch(limit))
}

// endOfDay compares due dates by calendar day.
func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

func (s *Service) batch(limit int) int {
	if limit > 0 {
		return limit
	}
	if size := s.billing.Get().Dunning.BatchSize; size > 0 {
		return size
	}
	return 100
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
