package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateRequest struct {
	Name            string         `json:"name" validate:"required,max=255"`
	Tier            Tier           `json:"subscription_tier" validate:"omitempty,oneof=free basic professional enterprise"`
	BillingName     string         `json:"billing_name" validate:"max=255"`
	BillingEmail    string         `json:"billing_email" validate:"omitempty,email"`
	BillingAddress  map[string]any `json:"billing_address"`
	Locale          string         `json:"locale" validate:"omitempty,oneof=de en"`
	IsSmallBusiness bool           `json:"is_small_business"`
	PaysViaInvoice  bool           `json:"pays_via_invoice"`
}

type UpdateBillingRequest struct {
	IsSmallBusiness *bool            `json:"is_small_business"`
	PaysViaInvoice  *bool            `json:"pays_via_invoice"`
	BillingName     *string          `json:"billing_name" validate:"omitempty,max=255"`
	BillingEmail    *string          `json:"billing_email" validate:"omitempty,email"`
	VATNumber       *string          `json:"vat_number" validate:"omitempty,max=64"`
	TaxRate         *decimal.Decimal `json:"tax_rate"`
	ClearTaxRate    bool             `json:"clear_tax_rate"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Tenant, error)
	List(ctx context.Context, db *gorm.DB) ([]Tenant, error)
	UpdateBilling(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	SetSuspended(ctx context.Context, db *gorm.DB, id snowflake.ID, suspended bool, reason *string, now time.Time) error
	CountClubs(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Tenant, error)
	Get(ctx context.Context, id snowflake.ID) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	UpdateBilling(ctx context.Context, id snowflake.ID, req UpdateBillingRequest) (*Tenant, error)
	Suspend(ctx context.Context, id snowflake.ID, reason string) (*Tenant, error)
	Reactivate(ctx context.Context, id snowflake.ID) (*Tenant, error)
	// EnsureAccess rejects suspended tenants and tenants whose free trial ran out.
	EnsureAccess(ctx context.Context, tenant *Tenant) error
	// EnsureClubQuota fails when the tier's club limit is reached.
	EnsureClubQuota(ctx context.Context, db *gorm.DB, tenant *Tenant) error
}

var (
	ErrNotFound        = errors.New("tenant_not_found")
	ErrInvalidName     = errors.New("invalid_tenant_name")
	ErrInvalidTier     = errors.New("invalid_subscription_tier")
	ErrInvalidTaxRate  = errors.New("invalid_tax_rate")
	ErrSlugTaken       = errors.New("tenant_slug_taken")
	ErrTenantSuspended = errors.New("tenant_suspended")
	ErrTrialExpired    = errors.New("trial_expired")
	ErrQuotaExceeded   = errors.New("usage_quota_exceeded")
)
