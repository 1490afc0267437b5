package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Tier string

const (
	TierFree         Tier = "free"
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// TierLimits describes what a subscription tier includes. Negative limits are unlimited.
type TierLimits struct {
	MonthlyPrice decimal.Decimal
	MaxClubs     int
}

var tierLimits = map[Tier]TierLimits{
	TierFree:         {MonthlyPrice: decimal.Zero, MaxClubs: 1},
	TierBasic:        {MonthlyPrice: decimal.NewFromInt(49), MaxClubs: 5},
	TierProfessional: {MonthlyPrice: decimal.NewFromInt(149), MaxClubs: 20},
	TierEnterprise:   {MonthlyPrice: decimal.NewFromInt(499), MaxClubs: -1},
}

func (t Tier) Valid() bool {
	_, ok := tierLimits[t]
	return ok
}

func (t Tier) Limits() TierLimits {
	if limits, ok := tierLimits[t]; ok {
		return limits
	}
	return tierLimits[TierFree]
}

type Tenant struct {
	ID               snowflake.ID        `gorm:"primaryKey" json:"id"`
	Name             string              `gorm:"type:varchar(255);not null" json:"name"`
	Slug             string              `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	SubscriptionTier Tier                `gorm:"type:varchar(32);not null" json:"subscription_tier"`
	TrialEndsAt      *time.Time          `json:"trial_ends_at,omitempty"`
	IsActive         bool                `gorm:"not null" json:"is_active"`
	IsSuspended      bool                `gorm:"not null" json:"is_suspended"`
	SuspensionReason *string             `gorm:"type:text" json:"suspension_reason,omitempty"`
	IsSmallBusiness  bool                `gorm:"not null" json:"is_small_business"`
	PaysViaInvoice   bool                `gorm:"not null" json:"pays_via_invoice"`
	BillingName      string              `gorm:"type:varchar(255)" json:"billing_name"`
	BillingEmail     string              `gorm:"type:varchar(255)" json:"billing_email"`
	BillingAddress   datatypes.JSONMap   `json:"billing_address,omitempty"`
	VATNumber        *string             `gorm:"column:vat_number;type:varchar(64)" json:"vat_number,omitempty"`
	Locale           string              `gorm:"type:varchar(8);not null" json:"locale"`
	TaxRate          decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"tax_rate"`
	CreatedAt        time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// TrialExpired reports whether the tenant had a trial that has ended.
func (t Tenant) TrialExpired(now time.Time) bool {
	return t.TrialEndsAt != nil && t.TrialEndsAt.Before(now)
}

// HasActiveSubscription is true for paid tiers and for free tenants still in trial.
func (t Tenant) HasActiveSubscription(now time.Time) bool {
	if t.SubscriptionTier != TierFree {
		return true
	}
	return t.TrialEndsAt != nil && t.TrialEndsAt.After(now)
}

// BillingRecipient returns the name used on invoices.
func (t Tenant) BillingRecipient() string {
	if t.BillingName != "" {
		return t.BillingName
	}
	return t.Name
}
