package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Stable tax codes printed on invoices. Do not repurpose once used.
const (
	TaxCodeNoTax         = "NO_TAX"
	TaxCodeDEStandard    = "DE_VAT_STANDARD"
	TaxCodeDEReduced     = "DE_VAT_REDUCED"
	TaxCodeSmallBusiness = "DE_KLEINUNTERNEHMER"
)

// TaxRate is a tenant-scoped VAT rate. Rate is a percentage (19 means 19 %).
type TaxRate struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID `gorm:"not null;index" json:"tenant_id"`

	Name string          `gorm:"type:varchar(255);not null" json:"name"`
	Code string          `gorm:"type:varchar(64);not null" json:"code"`
	Rate decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"rate"`

	Description *string `gorm:"type:text" json:"description,omitempty"`

	IsDefault bool `gorm:"not null" json:"is_default"`
	IsEnabled bool `gorm:"not null" json:"is_enabled"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (TaxRate) TableName() string { return "tax_rates" }

func (t *TaxRate) Validate() error {
	if t.Code == "" {
		return ErrInvalidTaxCode
	}
	if t.Rate.IsNegative() || t.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidTaxRate
	}
	return nil
}

// Amounts is the tax breakdown of one net amount.
type Amounts struct {
	Net   decimal.Decimal `json:"net_amount"`
	Rate  decimal.Decimal `json:"tax_rate"`
	Tax   decimal.Decimal `json:"tax_amount"`
	Gross decimal.Decimal `json:"gross_amount"`
}
