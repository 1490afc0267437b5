package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type SubscriptionStatus string

const (
	StatusTrialing       SubscriptionStatus = "trialing"
	StatusActive         SubscriptionStatus = "active"
	StatusPendingPayment SubscriptionStatus = "pending_payment"
	StatusPastDue        SubscriptionStatus = "past_due"
	StatusSuspended      SubscriptionStatus = "suspended"
	StatusCanceled       SubscriptionStatus = "canceled"
)

type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

func (i BillingInterval) Valid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// Months returns how many billing months one period covers.
func (i BillingInterval) Months() int {
	if i == IntervalYearly {
		return 12
	}
	return 1
}

const (
	PaymentMethodInvoice = "invoice"
	PaymentMethodStripe  = "stripe"
)

type Club struct {
	ID                    snowflake.ID       `gorm:"primaryKey" json:"id"`
	TenantID              snowflake.ID       `gorm:"not null;index" json:"tenant_id"`
	Name                  string             `gorm:"type:varchar(255);not null" json:"name"`
	Email                 string             `gorm:"type:varchar(255)" json:"email"`
	BillingEmail          string             `gorm:"type:varchar(255)" json:"billing_email"`
	InvoiceBillingName    string             `gorm:"type:varchar(255)" json:"invoice_billing_name"`
	InvoiceVATNumber      *string            `gorm:"column:invoice_vat_number;type:varchar(64)" json:"invoice_vat_number,omitempty"`
	BillingAddress        datatypes.JSONMap  `json:"billing_address,omitempty"`
	PlanID                *snowflake.ID      `json:"plan_id,omitempty"`
	SubscriptionStatus    SubscriptionStatus `gorm:"type:varchar(32);not null" json:"subscription_status"`
	BillingInterval       BillingInterval    `gorm:"type:varchar(16);not null;default:monthly" json:"billing_interval"`
	TrialEndsAt           *time.Time         `json:"trial_ends_at,omitempty"`
	SubscriptionStartedAt *time.Time         `json:"subscription_started_at,omitempty"`
	CurrentPeriodStart    *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd      *time.Time         `json:"current_period_end,omitempty"`
	PaymentMethodType     string             `gorm:"type:varchar(32)" json:"payment_method_type"`
	CreatedAt             time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time          `gorm:"not null" json:"updated_at"`
}

func (Club) TableName() string { return "clubs" }

func (c Club) PaysViaInvoice() bool {
	return c.PaymentMethodType == PaymentMethodInvoice
}

func (c Club) BillingName() string {
	if c.InvoiceBillingName != "" {
		return c.InvoiceBillingName
	}
	return c.Name
}

func (c Club) BillingContact() string {
	if c.BillingEmail != "" {
		return c.BillingEmail
	}
	return c.Email
}

// TrialDaysRemaining counts whole days left in the trial, never negative.
func (c Club) TrialDaysRemaining(now time.Time) int {
	if c.SubscriptionStatus != StatusTrialing || c.TrialEndsAt == nil {
		return 0
	}
	remaining := int(c.TrialEndsAt.Sub(now).Hours() / 24)
	if remaining < 0 {
		return 0
	}
	return remaining
}

type Plan struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID    `gorm:"not null;uniqueIndex:ux_plans_tenant_slug" json:"tenant_id"`
	Name            string          `gorm:"type:varchar(255);not null" json:"name"`
	Slug            string          `gorm:"type:varchar(255);not null;uniqueIndex:ux_plans_tenant_slug" json:"slug"`
	Description     string          `gorm:"type:text" json:"description,omitempty"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`
	BillingInterval BillingInterval `gorm:"type:varchar(16);not null" json:"billing_interval"`
	TrialPeriodDays int             `gorm:"not null" json:"trial_period_days"`
	IsActive        bool            `gorm:"not null" json:"is_active"`
	IsDefault       bool            `gorm:"not null" json:"is_default"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "club_subscription_plans" }

type EventType string

const (
	EventSubscriptionCreated  EventType = "subscription_created"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventTrialExtended        EventType = "trial_extended"
	EventVoucherRedeemed      EventType = "voucher_redeemed"
	EventPendingPayment       EventType = "pending_payment"
	EventInvoiceCreated       EventType = "invoice_created"
	EventInvoiceSent          EventType = "invoice_sent"
	EventInvoicePaid          EventType = "invoice_paid"
	EventInvoiceOverdue       EventType = "invoice_overdue"
	EventInvoiceCancelled     EventType = "invoice_cancelled"
	EventReminderSent         EventType = "invoice_reminder_sent"
)

const CancellationReasonPaymentFailed = "payment_failed"

type SubscriptionEvent struct {
	ID                 snowflake.ID        `gorm:"primaryKey" json:"id"`
	TenantID           snowflake.ID        `gorm:"not null;index" json:"tenant_id"`
	ClubID             snowflake.ID        `gorm:"not null;index" json:"club_id"`
	EventType          EventType           `gorm:"type:varchar(64);not null" json:"event_type"`
	PlanID             *snowflake.ID       `json:"plan_id,omitempty"`
	NewPlanID          *snowflake.ID       `json:"new_plan_id,omitempty"`
	CancellationReason *string             `gorm:"type:varchar(64)" json:"cancellation_reason,omitempty"`
	Feedback           *string             `gorm:"type:text" json:"feedback,omitempty"`
	MRRChange          decimal.NullDecimal `gorm:"column:mrr_change;type:numeric(12,2)" json:"mrr_change"`
	Metadata           datatypes.JSONMap   `json:"metadata,omitempty"`
	EventDate          time.Time           `gorm:"not null" json:"event_date"`
	CreatedAt          time.Time           `gorm:"not null" json:"created_at"`
}

func (SubscriptionEvent) TableName() string { return "subscription_events" }
