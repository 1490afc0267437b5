package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Type string

const (
	TypePercent        Type = "percent"
	TypeFixedAmount    Type = "fixed_amount"
	TypeTrialExtension Type = "trial_extension"
)

func (t Type) Valid() bool {
	switch t {
	case TypePercent, TypeFixedAmount, TypeTrialExtension:
		return true
	default:
		return false
	}
}

var Types = []Type{TypePercent, TypeFixedAmount, TypeTrialExtension}

// Voucher is a discount code. A nil TenantID makes it valid for every tenant.
type Voucher struct {
	ID                 snowflake.ID                      `gorm:"primaryKey" json:"id"`
	TenantID           *snowflake.ID                     `gorm:"index" json:"tenant_id,omitempty"`
	Code               string                            `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	Name               string                            `gorm:"type:varchar(255);not null" json:"name"`
	Description        *string                           `gorm:"type:text" json:"description,omitempty"`
	Type               Type                              `gorm:"type:varchar(32);not null" json:"type"`
	DiscountPercent    decimal.NullDecimal               `gorm:"type:numeric(5,2)" json:"discount_percent"`
	DiscountAmount     decimal.NullDecimal               `gorm:"type:numeric(12,2)" json:"discount_amount"`
	TrialExtensionDays *int                              `json:"trial_extension_days,omitempty"`
	DurationMonths     int                               `gorm:"not null" json:"duration_months"`
	MaxRedemptions     *int                              `json:"max_redemptions,omitempty"`
	CurrentRedemptions int                               `gorm:"not null;default:0" json:"current_redemptions"`
	ValidFrom          *time.Time                        `json:"valid_from,omitempty"`
	ValidUntil         *time.Time                        `json:"valid_until,omitempty"`
	ApplicablePlanIDs  datatypes.JSONSlice[snowflake.ID] `json:"applicable_plan_ids"`
	IsActive           bool                              `gorm:"not null" json:"is_active"`
	CreatedBy          *string                           `gorm:"type:varchar(255)" json:"created_by,omitempty"`
	Metadata           datatypes.JSONMap                 `json:"metadata,omitempty"`
	CreatedAt          time.Time                         `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time                         `gorm:"not null" json:"updated_at"`
}

func (Voucher) TableName() string { return "vouchers" }

func (v Voucher) IsSystemWide() bool {
	return v.TenantID == nil
}

func (v Voucher) IsExpired(now time.Time) bool {
	return v.ValidUntil != nil && v.ValidUntil.Before(now)
}

func (v Voucher) IsNotYetValid(now time.Time) bool {
	return v.ValidFrom != nil && v.ValidFrom.After(now)
}

func (v Voucher) IsExhausted() bool {
	return v.MaxRedemptions != nil && v.CurrentRedemptions >= *v.MaxRedemptions
}

// IsValid ignores club and plan; see Service.Validate for the full check.
func (v Voucher) IsValid(now time.Time) bool {
	return v.IsActive && !v.IsNotYetValid(now) && !v.IsExpired(now) && !v.IsExhausted()
}

// ApplicableToPlan is true when the voucher has no plan restriction or lists planID.
func (v Voucher) ApplicableToPlan(planID snowflake.ID) bool {
	if len(v.ApplicablePlanIDs) == 0 {
		return true
	}
	return lo.Contains(v.ApplicablePlanIDs, planID)
}

// RemainingRedemptions is nil for unlimited vouchers.
func (v Voucher) RemainingRedemptions() *int {
	if v.MaxRedemptions == nil {
		return nil
	}
	remaining := max(0, *v.MaxRedemptions-v.CurrentRedemptions)
	return &remaining
}

type Redemption struct {
	ID                  snowflake.ID        `gorm:"primaryKey" json:"id"`
	VoucherID           snowflake.ID        `gorm:"not null;uniqueIndex:ux_redemptions_voucher_club" json:"voucher_id"`
	ClubID              snowflake.ID        `gorm:"not null;uniqueIndex:ux_redemptions_voucher_club;index" json:"club_id"`
	TenantID            snowflake.ID        `gorm:"not null;index" json:"tenant_id"`
	VoucherType         Type                `gorm:"type:varchar(32);not null" json:"voucher_type"`
	VoucherCode         string              `gorm:"type:varchar(64);not null" json:"voucher_code"`
	DiscountPercent     decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"discount_percent"`
	DiscountAmount      decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"discount_amount"`
	TrialExtensionDays  *int                `json:"trial_extension_days,omitempty"`
	DurationMonths      int                 `gorm:"not null" json:"duration_months"`
	AppliedToPlanID     *snowflake.ID       `json:"applied_to_plan_id,omitempty"`
	RedeemedBy          *string             `gorm:"type:varchar(255)" json:"redeemed_by,omitempty"`
	MonthsApplied       int                 `gorm:"not null;default:0" json:"months_applied"`
	TotalDiscountAmount decimal.Decimal     `gorm:"type:numeric(12,2);not null;default:0" json:"total_discount_amount"`
	IsFullyApplied      bool                `gorm:"not null;default:false" json:"is_fully_applied"`
	FirstAppliedAt      *time.Time          `json:"first_applied_at,omitempty"`
	LastAppliedAt       *time.Time          `json:"last_applied_at,omitempty"`
	ExpiresAt           *time.Time          `json:"expires_at,omitempty"`
	CreatedAt           time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"not null" json:"updated_at"`
}

func (Redemption) TableName() string { return "voucher_redemptions" }

// IsActive reports whether the redemption still discounts future invoices.
func (r Redemption) IsActive(now time.Time) bool {
	if r.IsFullyApplied || r.VoucherType == TypeTrialExtension {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

func (r Redemption) RemainingMonths() int {
	return max(0, r.DurationMonths-r.MonthsApplied)
}

// DiscountFor returns the discount on amount: percent of it, or the fixed
// amount capped at amount. Not rounded.
func (r Redemption) DiscountFor(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	switch r.VoucherType {
	case TypePercent:
		if !r.DiscountPercent.Valid {
			return decimal.Zero
		}
		return amount.Mul(r.DiscountPercent.Decimal).Div(decimal.NewFromInt(100))
	case TypeFixedAmount:
		if !r.DiscountAmount.Valid {
			return decimal.Zero
		}
		return decimal.Min(r.DiscountAmount.Decimal, amount)
	default:
		return decimal.Zero
	}
}
