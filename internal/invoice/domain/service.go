package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateRequest struct {
	BillableType    BillableType     `json:"billable_type" validate:"required,oneof=club tenant"`
	BillableID      snowflake.ID     `json:"billable_id" validate:"required"`
	PlanID          *snowflake.ID    `json:"plan_id"`
	NetAmount       decimal.Decimal  `json:"net_amount"`
	TaxRate         *decimal.Decimal `json:"tax_rate"`
	Currency        string           `json:"currency" validate:"omitempty,len=3"`
	BillingPeriod   string           `json:"billing_period" validate:"max=64"`
	BillingInterval string           `json:"billing_interval" validate:"omitempty,oneof=monthly yearly"`
	Description     string           `json:"description"`
	LineItems       []LineItem       `json:"line_items" validate:"omitempty,dive"`
	IssueDate       *time.Time       `json:"issue_date"`
	DueDate         *time.Time       `json:"due_date"`
	BillingName     *string          `json:"billing_name" validate:"omitempty,max=255"`
	BillingEmail    *string          `json:"billing_email" validate:"omitempty,email"`
	BillingAddress  map[string]any   `json:"billing_address"`
	VATNumber       *string          `json:"vat_number" validate:"omitempty,max=64"`

	DiscountAmount      decimal.Decimal `json:"-"`
	VoucherRedemptionID *snowflake.ID   `json:"-"`
}

// UpdateRequest edits a draft. A new net amount or tax rate recomputes the totals.
type UpdateRequest struct {
	NetAmount      *decimal.Decimal `json:"net_amount"`
	TaxRate        *decimal.Decimal `json:"tax_rate"`
	BillingPeriod  *string          `json:"billing_period" validate:"omitempty,max=64"`
	Description    *string          `json:"description"`
	LineItems      *[]LineItem      `json:"line_items"`
	IssueDate      *time.Time       `json:"issue_date"`
	DueDate        *time.Time       `json:"due_date"`
	BillingName    *string          `json:"billing_name" validate:"omitempty,max=255"`
	BillingEmail   *string          `json:"billing_email" validate:"omitempty,email"`
	BillingAddress map[string]any   `json:"billing_address"`
	VATNumber      *string          `json:"vat_number" validate:"omitempty,max=64"`
}

type MarkPaidRequest struct {
	PaymentReference *string    `json:"payment_reference" validate:"omitempty,max=255"`
	PaymentNotes     *string    `json:"payment_notes"`
	PaidAt           *time.Time `json:"paid_at"`
}

type ListRequest struct {
	pagination.Pagination
	BillableType BillableType  `form:"type"`
	BillableID   *snowflake.ID `form:"billable_id"`
	Status       Status        `form:"status"`
	Search       string        `form:"search"`
	Year         int           `form:"year"`
	FromDate     *time.Time    `form:"from_date" time_format:"2006-01-02"`
	ToDate       *time.Time    `form:"to_date" time_format:"2006-01-02"`
}

type ListResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// ListFilter is ListRequest resolved for the repository.
type ListFilter struct {
	TenantID     *snowflake.ID
	BillableType BillableType
	BillableID   *snowflake.ID
	Status       Status
	Search       string
	From         *time.Time
	To           *time.Time
	Cursor       *pagination.Cursor
	Limit        int
}

type Statistics struct {
	Total         int64           `json:"total"`
	Draft         int64           `json:"draft"`
	Sent          int64           `json:"sent"`
	Paid          int64           `json:"paid"`
	Overdue       int64           `json:"overdue"`
	Cancelled     int64           `json:"cancelled"`
	PaidThisMonth decimal.Decimal `json:"paid_this_month"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	OverdueAmount decimal.Decimal `json:"overdue_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
}

type SubmitInvoiceRequest struct {
	PlanID          snowflake.ID   `json:"plan_id" validate:"required"`
	BillingInterval string         `json:"billing_interval" validate:"omitempty,oneof=monthly yearly"`
	BillingName     string         `json:"billing_name" validate:"required,max=255"`
	BillingEmail    string         `json:"billing_email" validate:"required,email"`
	BillingAddress  map[string]any `json:"billing_address"`
	VATNumber       *string        `json:"vat_number" validate:"omitempty,max=64"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)
	// LastNumber returns the newest invoice number of the tenant created in [from, to).
	LastNumber(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, from, to time.Time) (string, error)
	LockTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error
	Statistics(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID, monthStart, monthEnd time.Time) (Statistics, error)

	ListSentPastDue(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID, now time.Time, limit int) ([]Invoice, error)
	ListOverdueForReminder(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID, maxReminders, limit int) ([]Invoice, error)
	// ListOverdueForSuspension skips invoices whose club or tenant is already suspended.
	ListOverdueForSuspension(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID, dueBefore time.Time, limit int) ([]Invoice, error)

	InsertRequest(ctx context.Context, db *gorm.DB, request *InvoiceRequest) error
	FindRequest(ctx context.Context, db *gorm.DB, id snowflake.ID) (*InvoiceRequest, error)
	HasPendingRequest(ctx context.Context, db *gorm.DB, clubID snowflake.ID) (bool, error)
	UpdateRequest(ctx context.Context, db *gorm.DB, request *InvoiceRequest) error
	ListRequests(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status RequestStatus) ([]InvoiceRequest, error)
}

// Notifier delivers invoice mails to the billing contact.
type Notifier interface {
	InvoiceSent(ctx context.Context, invoice *Invoice) error
	Reminder(ctx context.Context, invoice *Invoice, level int) error
	SuspensionWarning(ctx context.Context, invoice *Invoice) error
	PaymentConfirmation(ctx context.Context, invoice *Invoice) error
	Cancelled(ctx context.Context, invoice *Invoice) error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Invoice, error)
	// CreateForSubscription bills one period of plan, applying the club's active voucher.
	CreateForSubscription(ctx context.Context, club *clubdomain.Club, plan *clubdomain.Plan, interval clubdomain.BillingInterval) (*Invoice, error)
	// CreateForTenant bills one period of the tenant's subscription tier.
	CreateForTenant(ctx context.Context, tenantID snowflake.ID, interval clubdomain.BillingInterval) (*Invoice, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*Invoice, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Statistics(ctx context.Context, tenantID *snowflake.ID) (Statistics, error)
	// RenderHTML returns the printable invoice document.
	RenderHTML(ctx context.Context, id snowflake.ID) (string, error)

	MarkSent(ctx context.Context, id snowflake.ID, sendEmail bool) (*Invoice, error)
	MarkPaid(ctx context.Context, id snowflake.ID, req MarkPaidRequest) (*Invoice, error)
	MarkOverdue(ctx context.Context, id snowflake.ID) (*Invoice, error)
	Cancel(ctx context.Context, id snowflake.ID, reason string) (*Invoice, error)
	SendReminder(ctx context.Context, id snowflake.ID) (*Invoice, error)

	SubmitRequest(ctx context.Context, clubID snowflake.ID, req SubmitInvoiceRequest) (*InvoiceRequest, error)
	GetRequest(ctx context.Context, id snowflake.ID) (*InvoiceRequest, error)
	ListRequests(ctx context.Context, status RequestStatus) ([]InvoiceRequest, error)
	ApproveRequest(ctx context.Context, id snowflake.ID) (*Invoice, error)
	RejectRequest(ctx context.Context, id snowflake.ID, reason string) (*InvoiceRequest, error)

	ListSentPastDue(ctx context.Context, limit int) ([]Invoice, error)
	ListOverdueForReminder(ctx context.Context, limit int) ([]Invoice, error)
	ListOverdueForSuspension(ctx context.Context, limit int) ([]Invoice, error)
}
