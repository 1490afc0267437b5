package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateClubRequest struct {
	Name               string         `json:"name" validate:"required,max=255"`
	Email              string         `json:"email" validate:"omitempty,email"`
	BillingEmail       string         `json:"billing_email" validate:"omitempty,email"`
	InvoiceBillingName string         `json:"invoice_billing_name" validate:"max=255"`
	InvoiceVATNumber   string         `json:"invoice_vat_number" validate:"max=64"`
	BillingAddress     map[string]any `json:"billing_address"`
	PlanID             *snowflake.ID  `json:"plan_id"`
	PaymentMethodType  string         `json:"payment_method_type" validate:"omitempty,oneof=invoice stripe"`
}

// BillingDetails are the recipient fields printed on club invoices.
type BillingDetails struct {
	Name      string
	Email     string
	Address   map[string]any
	VATNumber *string
}

type CreatePlanRequest struct {
	Name            string          `json:"name" validate:"required,max=255"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	BillingInterval BillingInterval `json:"billing_interval" validate:"omitempty,oneof=monthly yearly"`
	TrialPeriodDays int             `json:"trial_period_days" validate:"min=0,max=365"`
	IsDefault       bool            `json:"is_default"`
}

type Repository interface {
	InsertClub(ctx context.Context, db *gorm.DB, club *Club) error
	FindClub(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Club, error)
	ListClubs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Club, error)
	UpdateSubscription(ctx context.Context, db *gorm.DB, club *Club) error
	UpdateBillingDetails(ctx context.Context, db *gorm.DB, club *Club) error

	InsertPlan(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindPlanBySlug(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, slug string) (*Plan, error)
	ListPlans(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Plan, error)
	ClearDefaultPlan(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error

	InsertEvent(ctx context.Context, db *gorm.DB, event *SubscriptionEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, clubID snowflake.ID) ([]SubscriptionEvent, error)
}

// Service owns clubs, their plans and the subscription event log. Methods taking
// a *gorm.DB run on it so callers can compose them in one transaction; nil uses
// the default connection.
type Service interface {
	Create(ctx context.Context, tenantID snowflake.ID, req CreateClubRequest) (*Club, error)
	Get(ctx context.Context, tenantID, id snowflake.ID) (*Club, error)
	List(ctx context.Context, tenantID snowflake.ID) ([]Club, error)

	CreatePlan(ctx context.Context, tenantID snowflake.ID, req CreatePlanRequest) (*Plan, error)
	GetPlan(ctx context.Context, tenantID, id snowflake.ID) (*Plan, error)
	ListPlans(ctx context.Context, tenantID snowflake.ID) ([]Plan, error)

	// ApplyTrialExtension adds days to the later of the trial end and now.
	ApplyTrialExtension(ctx context.Context, db *gorm.DB, club *Club, days int) (time.Time, error)
	ActivateSubscription(ctx context.Context, db *gorm.DB, club *Club, plan *Plan, interval BillingInterval) error
	MarkPendingPayment(ctx context.Context, db *gorm.DB, club *Club) error
	// SwitchToInvoice makes the club pay by invoice using the given billing details.
	SwitchToInvoice(ctx context.Context, db *gorm.DB, club *Club, details BillingDetails) error
	// Suspend stops the subscription after failed payment.
	Suspend(ctx context.Context, db *gorm.DB, club *Club, metadata map[string]any) error
	LogEvent(ctx context.Context, db *gorm.DB, event *SubscriptionEvent) error
	ListEvents(ctx context.Context, tenantID, clubID snowflake.ID) ([]SubscriptionEvent, error)
}

var (
	ErrNotFound        = errors.New("club_not_found")
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrPlanInactive    = errors.New("plan_inactive")
	ErrInvalidName     = errors.New("invalid_club_name")
	ErrInvalidPrice    = errors.New("invalid_plan_price")
	ErrInvalidInterval = errors.New("invalid_billing_interval")
	ErrInvalidDays     = errors.New("invalid_trial_days")
	ErrPlanSlugTaken   = errors.New("plan_slug_taken")
)
