// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BillableType names who receives the invoice.
type BillableType string

const (
	BillableClub   BillableType = "club"
	BillableTenant BillableType = "tenant"
)

func (t BillableType) Valid() bool {
	return t == BillableClub || t == BillableTenant
}

// Status represents invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

var statusLabels = map[Status]string{
	StatusDraft:     "Entwurf",
	StatusSent:      "Versendet",
	StatusPaid:      "Bezahlt",
	StatusOverdue:   "Überfällig",
	StatusCancelled: "Storniert",
}

func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// LineItem is one position on an invoice. Discounts carry a negative total.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Invoice represents an issued or draft invoice.
type Invoice struct {
	ID                  snowflake.ID                  `gorm:"primaryKey" json:"id"`
	TenantID            snowflake.ID                  `gorm:"not null;index;uniqueIndex:ux_invoices_tenant_number" json:"tenant_id"`
	BillableType        BillableType                  `gorm:"type:varchar(16);not null;index:ix_invoices_billable" json:"billable_type"`
	BillableID          snowflake.ID                  `gorm:"not null;index:ix_invoices_billable" json:"billable_id"`
	PlanID              *snowflake.ID                 `json:"plan_id,omitempty"`
	Number              string                        `gorm:"column:invoice_number;type:varchar(64);not null;uniqueIndex:ux_invoices_tenant_number" json:"invoice_number"`
	Status              Status                        `gorm:"type:varchar(16);not null;index" json:"status"`
	NetAmount           decimal.Decimal               `gorm:"type:numeric(12,2);not null" json:"net_amount"`
	TaxRate             decimal.Decimal               `gorm:"type:numeric(5,2);not null" json:"tax_rate"`
	TaxAmount           decimal.Decimal               `gorm:"type:numeric(12,2);not null" json:"tax_amount"`
	GrossAmount         decimal.Decimal               `gorm:"type:numeric(12,2);not null" json:"gross_amount"`
	DiscountAmount      decimal.Decimal               `gorm:"type:numeric(12,2);not null;default:0" json:"discount_amount"`
	VoucherRedemptionID *snowflake.ID                 `json:"voucher_redemption_id,omitempty"`
	Currency            string                        `gorm:"type:varchar(3);not null" json:"currency"`
	BillingPeriod       string                        `gorm:"type:varchar(64)" json:"billing_period"`
	BillingInterval     string                        `gorm:"type:varchar(16)" json:"billing_interval"`
	Description         string                        `gorm:"type:text" json:"description"`
	LineItems           datatypes.JSONSlice[LineItem] `json:"line_items"`
	BillingName         string                        `gorm:"type:varchar(255);not null" json:"billing_name"`
	BillingEmail        string                        `gorm:"type:varchar(255)" json:"billing_email"`
	BillingAddress      datatypes.JSONMap             `json:"billing_address,omitempty"`
	VATNumber           *string                       `gorm:"column:vat_number;type:varchar(64)" json:"vat_number,omitempty"`
	IsSmallBusiness     bool                          `gorm:"not null;default:false" json:"is_small_business"`
	IssueDate           time.Time                     `gorm:"not null" json:"issue_date"`
	DueDate             time.Time                     `gorm:"not null;index" json:"due_date"`
	PaidAt              *time.Time                    `json:"paid_at,omitempty"`
	PaymentReference    *string                       `gorm:"type:varchar(255)" json:"payment_reference,omitempty"`
	PaymentNotes        *string                       `gorm:"type:text" json:"payment_notes,omitempty"`
	ReminderCount       int                           `gorm:"not null;default:0" json:"reminder_count"`
	LastReminderSentAt  *time.Time                    `json:"last_reminder_sent_at,omitempty"`
	CreatedBy           *string                       `gorm:"type:varchar(255)" json:"created_by,omitempty"`
	UpdatedBy           *string                       `gorm:"type:varchar(255)" json:"updated_by,omitempty"`
	CreatedAt           time.Time                     `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time                     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

func (i Invoice) CanBeEdited() bool { return i.Status == StatusDraft }

func (i Invoice) CanBeSent() bool { return i.Status == StatusDraft }

func (i Invoice) CanBeMarkedPaid() bool {
	return i.Status == StatusSent || i.Status == StatusOverdue
}

func (i Invoice) CanSendReminder() bool {
	return i.Status == StatusSent || i.Status == StatusOverdue
}

func (i Invoice) CanBeCancelled() bool {
	return i.Status == StatusDraft || i.Status == StatusSent || i.Status == StatusOverdue
}

func (i Invoice) CanBeMarkedOverdue() bool { return i.Status == StatusSent }

// IsOverdue is true for unpaid, uncancelled invoices past their due date.
func (i Invoice) IsOverdue(now time.Time) bool {
	if i.Status == StatusPaid || i.Status == StatusCancelled {
		return false
	}
	return i.DueDate.Before(now)
}

// DaysOverdue counts whole days since the due date, 0 when not overdue.
func (i Invoice) DaysOverdue(now time.Time) int {
	if !i.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}

// Reference is the payment reference a payer should quote; defaults to the number.
func (i Invoice) Reference() string {
	if i.PaymentReference != nil && *i.PaymentReference != "" {
		return *i.PaymentReference
	}
	return i.Number
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// InvoiceRequest is a club asking to pay its subscription by invoice.
type InvoiceRequest struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	ClubID          snowflake.ID      `gorm:"not null;index" json:"club_id"`
	PlanID          snowflake.ID      `gorm:"not null" json:"plan_id"`
	BillingInterval string            `gorm:"type:varchar(16);not null" json:"billing_interval"`
	BillingName     string            `gorm:"type:varchar(255);not null" json:"billing_name"`
	BillingEmail    string            `gorm:"type:varchar(255);not null" json:"billing_email"`
	BillingAddress  datatypes.JSONMap `json:"billing_address,omitempty"`
	VATNumber       *string           `gorm:"column:vat_number;type:varchar(64)" json:"vat_number,omitempty"`
	Status          RequestStatus     `gorm:"type:varchar(16);not null;index" json:"status"`
	RejectionReason *string           `gorm:"type:text" json:"rejection_reason,omitempty"`
	ProcessedBy     *string           `gorm:"type:varchar(255)" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
	InvoiceID       *snowflake.ID     `json:"invoice_id,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
}

func (InvoiceRequest) TableName() string { return "invoice_requests" }

func (r InvoiceRequest) CanBeProcessed() bool { return r.Status == RequestPending }
