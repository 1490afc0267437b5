package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"github.com/shopspring/decimal"
)

// Resolver picks the VAT rate applied to a tenant's invoices.
type Resolver interface {
	// ResolveRate: small business → 0, tenant override, tenant default rate,
	// then the configured default.
	ResolveRate(ctx context.Context, tenant *tenantdomain.Tenant) (decimal.Decimal, error)
	// Invalidate drops the cached default rate of a tenant.
	Invalidate(tenantID snowflake.ID)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*TaxRate, error)
	List(ctx context.Context, req ListRequest) ([]TaxRate, error)
	Update(ctx context.Context, req UpdateRequest) (*TaxRate, error)
	Disable(ctx context.Context, id string) (*TaxRate, error)
}

type ListRequest struct {
	Code      string
	IsEnabled *bool
	SortBy    string
}

type CreateRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	Description *string         `json:"description"`
	IsDefault   bool            `json:"is_default"`
	IsEnabled   *bool           `json:"is_enabled"`
}

type UpdateRequest struct {
	ID          string           `json:"id"`
	Name        *string          `json:"name,omitempty"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	Description *string          `json:"description,omitempty"`
	IsDefault   *bool            `json:"is_default,omitempty"`
}
