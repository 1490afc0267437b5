package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func NewRepository() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, invoice *domain.Invoice) error {
	return conn.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(ctx, conn, id, "")
}

func (r *repo) FindForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(ctx, conn, id, db.ForUpdate(conn))
}

func (r *repo) find(ctx context.Context, conn *gorm.DB, id snowflake.ID, lock string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ? LIMIT 1`+lock,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, invoice *domain.Invoice) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, net_amount = ?, tax_rate = ?, tax_amount = ?, gross_amount = ?,
		     billing_period = ?, description = ?, line_items = ?, billing_name = ?,
		     billing_email = ?, billing_address = ?, vat_number = ?, issue_date = ?, due_date = ?,
		     paid_at = ?, payment_reference = ?, payment_notes = ?, reminder_count = ?,
		     last_reminder_sent_at = ?, updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		invoice.Status,
		invoice.NetAmount,
		invoice.TaxRate,
		invoice.TaxAmount,
		invoice.GrossAmount,
		invoice.BillingPeriod,
		invoice.Description,
		invoice.LineItems,
		invoice.BillingName,
		invoice.BillingEmail,
		invoice.BillingAddress,
		invoice.VATNumber,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.PaidAt,
		invoice.PaymentReference,
		invoice.PaymentNotes,
		invoice.ReminderCount,
		invoice.LastReminderSentAt,
		invoice.UpdatedBy,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	return conn.WithContext(ctx).Exec(`DELETE FROM invoices WHERE id = ?`, id).Error
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	stmt := conn.WithContext(ctx).Model(&domain.Invoice{})
	if filter.TenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.BillableType != "" {
		stmt = stmt.Where("billable_type = ?", filter.BillableType)
	}
	if filter.BillableID != nil {
		stmt = stmt.Where("billable_id = ?", *filter.BillableID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		stmt = stmt.Where(
			"LOWER(invoice_number) LIKE ? OR LOWER(billing_name) LIKE ? OR LOWER(billing_email) LIKE ?",
			like, like, like,
		)
	}
	if filter.From != nil {
		stmt = stmt.Where("issue_date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("issue_date < ?", filter.To.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var invoices []domain.Invoice
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) LastNumber(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, from, to time.Time) (string, error) {
	var number string
	err := conn.WithContext(ctx).Raw(
		`SELECT invoice_number
		 FROM invoices
		 WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		tenantID,
		from,
		to,
	).Scan(&number).Error
	return number, err
}

func (r *repo) LockTenant(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) error {
	var id snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT id FROM tenants WHERE id = ?`+db.ForUpdate(conn),
		tenantID,
	).Scan(&id).Error
	if err != nil {
		return err
	}
	if id == 0 {
		return domain.ErrInvalidTenant
	}
	return nil
}

func (r *repo) Statistics(ctx context.Context, conn *gorm.DB, tenantID *snowflake.ID, monthStart, monthEnd time.Time) (domain.Statistics, error) {
	query := `SELECT
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN status = 'draft' THEN 1 ELSE 0 END), 0) AS draft,
		COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0) AS sent,
		COALESCE(SUM(CASE WHEN status = 'paid' THEN 1 ELSE 0 END), 0) AS paid,
		COALESCE(SUM(CASE WHEN status = 'overdue' THEN 1 ELSE 0 END), 0) AS overdue,
		COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0) AS cancelled,
		COALESCE(SUM(CASE WHEN status = 'paid' AND issue_date >= ? AND issue_date < ? THEN gross_amount ELSE 0 END), 0) AS paid_this_month,
		COALESCE(SUM(CASE WHEN status IN ('sent', 'overdue') THEN gross_amount ELSE 0 END), 0) AS pending_amount,
		COALESCE(SUM(CASE WHEN status = 'overdue' THEN gross_amount ELSE 0 END), 0) AS overdue_amount,
		COALESCE(SUM(CASE WHEN status = 'paid' THEN gross_amount ELSE 0 END), 0) AS paid_amount
		FROM invoices`
	args := []any{monthStart, monthEnd}
	if tenantID != nil {
		query += ` WHERE tenant_id = ?`
		args = append(args, *tenantID)
	}

	var stats domain.Statistics
	err := conn.WithContext(ctx).Raw(query, args...).Scan(&stats).Error
	return stats, err
}

// tenantFilter narrows a dunning query to one tenant when scoped.
func tenantFilter(column string, tenantID *snowflake.ID, args []any) (string, []any) {
	if tenantID == nil {
		return "", args
	}
	return " AND " + column + " = ?", append(args, *tenantID)
}

func (r *repo) ListSentPastDue(ctx context.Context, conn *gorm.DB, tenantID *snowflake.ID, now time.Time, limit int) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	filter, args := tenantFilter("tenant_id", tenantID, []any{domain.StatusSent, now})
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM invoices
		 WHERE status = ? AND due_date < ?`+filter+`
		 ORDER BY due_date ASC, id ASC
		 LIMIT ?`,
		append(args, limit)...,
	).Scan(&invoices).Error
	return invoices, err
}

func (r *repo) ListOverdueForReminder(ctx context.Context, conn *gorm.DB, tenantID *snowflake.ID, maxReminders, limit int) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	filter, args := tenantFilter("tenant_id", tenantID, []any{domain.StatusOverdue, maxReminders})
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM invoices
		 WHERE status = ? AND reminder_count < ?`+filter+`
		 ORDER BY due_date ASC, id ASC
		 LIMIT ?`,
		append(args, limit)...,
	).Scan(&invoices).Error
	return invoices, err
}

func (r *repo) ListOverdueForSuspension(ctx context.Context, conn *gorm.DB, tenantID *snowflake.ID, dueBefore time.Time, limit int) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	filter, args := tenantFilter("i.tenant_id", tenantID, []any{
		domain.BillableClub,
		domain.BillableTenant,
		domain.StatusOverdue,
		dueBefore,
		domain.BillableClub,
		"suspended",
		domain.BillableTenant,
		false,
	})
	err := conn.WithContext(ctx).Raw(
		`SELECT i.* FROM invoices i
		 LEFT JOIN clubs c ON i.billable_type = ? AND c.id = i.billable_id
		 LEFT JOIN tenants t ON i.billable_type = ? AND t.id = i.billable_id
		 WHERE i.status = ? AND i.due_date <= ?
		   AND (
		     (i.billable_type = ? AND c.id IS NOT NULL AND c.subscription_status <> ?)
		     OR (i.billable_type = ? AND t.id IS NOT NULL AND t.is_suspended = ?)
		   )`+filter+`
		 ORDER BY i.due_date ASC, i.id ASC
		 LIMIT ?`,
		append(args, limit)...,
	).Scan(&invoices).Error
	return invoices, err
}

func (r *repo) InsertRequest(ctx context.Context, conn *gorm.DB, request *domain.InvoiceRequest) error {
	return conn.WithContext(ctx).Create(request).Error
}

func (r *repo) FindRequest(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.InvoiceRequest, error) {
	var request domain.InvoiceRequest
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM invoice_requests WHERE id = ? LIMIT 1`+db.ForUpdate(conn),
		id,
	).Scan(&request).Error
	if err != nil {
		return nil, err
	}
	if request.ID == 0 {
		return nil, nil
	}
	return &request, nil
}

func (r *repo) HasPendingRequest(ctx context.Context, conn *gorm.DB, clubID snowflake.ID) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM invoice_requests WHERE club_id = ? AND status = ?`,
		clubID,
		domain.RequestPending,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) UpdateRequest(ctx context.Context, conn *gorm.DB, request *domain.InvoiceRequest) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE invoice_requests
		 SET status = ?, rejection_reason = ?, processed_by = ?, processed_at = ?,
		     invoice_id = ?, updated_at = ?
		 WHERE id = ?`,
		request.Status,
		request.RejectionReason,
		request.ProcessedBy,
		request.ProcessedAt,
		request.InvoiceID,
		request.UpdatedAt,
		request.ID,
	).Error
}

func (r *repo) ListRequests(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, status domain.RequestStatus) ([]domain.InvoiceRequest, error) {
	query := `SELECT * FROM invoice_requests WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var requests []domain.InvoiceRequest
	err := conn.WithContext(ctx).Raw(query, args...).Scan(&requests).Error
	return requests, err
}
