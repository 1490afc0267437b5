package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateRequest struct {
	// TenantID nil creates a system-wide voucher.
	TenantID           *snowflake.ID    `json:"-"`
	Code               string           `json:"code" validate:"omitempty,min=4,max=64,alphanum"`
	Name               string           `json:"name" validate:"required,max=255"`
	Description        *string          `json:"description"`
	Type               Type             `json:"type" validate:"required,oneof=percent fixed_amount trial_extension"`
	DiscountPercent    *decimal.Decimal `json:"discount_percent"`
	DiscountAmount     *decimal.Decimal `json:"discount_amount"`
	TrialExtensionDays *int             `json:"trial_extension_days"`
	DurationMonths     int              `json:"duration_months" validate:"min=0,max=120"`
	MaxRedemptions     *int             `json:"max_redemptions"`
	ValidFrom          *time.Time       `json:"valid_from"`
	ValidUntil         *time.Time       `json:"valid_until"`
	ApplicablePlanIDs  []snowflake.ID   `json:"applicable_plan_ids"`
	IsActive           *bool            `json:"is_active"`
	Metadata           map[string]any   `json:"metadata"`
}

type UpdateRequest struct {
	Code               *string          `json:"code" validate:"omitempty,min=4,max=64,alphanum"`
	Name               *string          `json:"name" validate:"omitempty,max=255"`
	Description        *string          `json:"description"`
	DiscountPercent    *decimal.Decimal `json:"discount_percent"`
	DiscountAmount     *decimal.Decimal `json:"discount_amount"`
	TrialExtensionDays *int             `json:"trial_extension_days"`
	DurationMonths     *int             `json:"duration_months" validate:"omitempty,min=1,max=120"`
	MaxRedemptions     *int             `json:"max_redemptions"`
	ValidFrom          *time.Time       `json:"valid_from"`
	ValidUntil         *time.Time       `json:"valid_until"`
	ApplicablePlanIDs  *[]snowflake.ID  `json:"applicable_plan_ids"`
	IsActive           *bool            `json:"is_active"`
	Metadata           map[string]any   `json:"metadata"`
}

// Scope selects which vouchers a list returns.
type Scope string

const (
	// ScopeTenant lists the tenant's vouchers plus system-wide ones.
	ScopeTenant         Scope = "tenant"
	ScopeTenantSpecific Scope = "tenant_specific"
	ScopeSystemWide     Scope = "system_wide"
	ScopeAll            Scope = "all"
)

type ListFilter struct {
	Scope    Scope
	TenantID snowflake.ID
}

// ListItem is a voucher with its redemption count and display labels.
type ListItem struct {
	Voucher
	RedemptionsCount int64  `json:"redemptions_count"`
	StatusLabel      string `json:"status_label"`
	TypeLabelText    string `json:"type_label"`
	DiscountLabel    string `json:"discount_label"`
	DurationLabel    string `json:"duration_label"`
}

// VoucherView is what clubs see when they check a code.
type VoucherView struct {
	ID                 snowflake.ID        `json:"id"`
	Code               string              `json:"code"`
	Name               string              `json:"name"`
	Type               Type                `json:"type"`
	TypeLabel          string              `json:"type_label"`
	DiscountLabel      string              `json:"discount_label"`
	DurationLabel      string              `json:"duration_label"`
	DurationMonths     int                 `json:"duration_months"`
	Description        *string             `json:"description"`
	ApplicablePlanIDs  []snowflake.ID      `json:"applicable_plan_ids"`
	DiscountPercent    decimal.NullDecimal `json:"discount_percent"`
	DiscountAmount     decimal.NullDecimal `json:"discount_amount"`
	TrialExtensionDays *int                `json:"trial_extension_days"`
}

type InfoResult struct {
	Valid     bool           `json:"valid"`
	Voucher   *VoucherView   `json:"voucher"`
	ErrorCode ValidationCode `json:"error_code,omitempty"`
	Message   string         `json:"message"`
}

type RedemptionView struct {
	ID              snowflake.ID `json:"id"`
	VoucherID       snowflake.ID `json:"voucher_id"`
	VoucherCode     string       `json:"voucher_code"`
	Type            Type         `json:"type"`
	RemainingMonths int          `json:"remaining_months"`
	DiscountLabel   string       `json:"discount_label"`
}

type DiscountResult struct {
	HasDiscount    bool            `json:"has_discount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Redemption     *RedemptionView `json:"redemption"`
}

type PreviewResult struct {
	HasDiscount      bool            `json:"has_discount"`
	MonthlyDiscount  decimal.Decimal `json:"monthly_discount"`
	TotalDiscount    decimal.Decimal `json:"total_discount"`
	MonthlyPrice     decimal.Decimal `json:"monthly_price"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	ApplicableMonths int             `json:"applicable_months"`
	VoucherCode      string          `json:"voucher_code,omitempty"`
	DiscountLabel    string          `json:"discount_label,omitempty"`
}

type VoucherStatistics struct {
	TotalRedemptions     int             `json:"total_redemptions"`
	TotalDiscountGiven   decimal.Decimal `json:"total_discount_given"`
	ActiveRedemptions    int             `json:"active_redemptions"`
	CompletedRedemptions int             `json:"completed_redemptions"`
	RemainingRedemptions *int            `json:"remaining_redemptions"`
	Redemptions          []Redemption    `json:"redemptions"`
}

type OverallStatistics struct {
	TotalVouchers      int             `json:"total_vouchers"`
	ActiveVouchers     int             `json:"active_vouchers"`
	SystemWideVouchers int             `json:"system_wide_vouchers"`
	TotalRedemptions   int64           `json:"total_redemptions"`
	TotalDiscountGiven decimal.Decimal `json:"total_discount_given"`
	ByType             map[Type]int    `json:"by_type"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, voucher *Voucher) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Voucher, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Voucher, error)
	CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error)
	Update(ctx context.Context, db *gorm.DB, voucher *Voucher) error
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) error
	// IncrementRedemptions bumps the counter unless the cap is reached and
	// reports whether a row changed.
	IncrementRedemptions(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]ListItem, error)
	ListAvailable(ctx context.Context, db *gorm.DB, tenantID, clubID snowflake.ID, now time.Time) ([]Voucher, error)

	HasRedemption(ctx context.Context, db *gorm.DB, voucherID, clubID snowflake.ID) (bool, error)
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *Redemption) error
	UpdateRedemptionProgress(ctx context.Context, db *gorm.DB, redemption *Redemption) error
	FindActiveRedemption(ctx context.Context, db *gorm.DB, clubID snowflake.ID, now time.Time) (*Redemption, error)
	ListRedemptionsByClub(ctx context.Context, db *gorm.DB, clubID snowflake.ID) ([]Redemption, error)
	ListRedemptionsByVoucher(ctx context.Context, db *gorm.DB, voucherID snowflake.ID) ([]Redemption, error)
	RedemptionTotals(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID) (int64, decimal.Decimal, error)
	// ExpireRedemptions closes up to limit redemptions whose expires_at passed.
	ExpireRedemptions(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Voucher, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*Voucher, error)
	Get(ctx context.Context, id snowflake.ID) (*Voucher, error)
	Activate(ctx context.Context, id snowflake.ID) (*Voucher, error)
	Deactivate(ctx context.Context, id snowflake.ID) (*Voucher, error)
	GenerateUniqueCode(ctx context.Context, length int) (string, error)

	// Validate returns the voucher or the first failing *ValidationError.
	Validate(ctx context.Context, code string, club *clubdomain.Club, plan *clubdomain.Plan) (*Voucher, error)
	Info(ctx context.Context, code string, club *clubdomain.Club, plan *clubdomain.Plan) (InfoResult, error)
	Redeem(ctx context.Context, voucherID snowflake.ID, club *clubdomain.Club, plan *clubdomain.Plan, redeemedBy *string) (*Redemption, error)
	RedeemByCode(ctx context.Context, code string, club *clubdomain.Club, plan *clubdomain.Plan, redeemedBy *string) (*Redemption, error)

	CalculateDiscount(ctx context.Context, club *clubdomain.Club, amount decimal.Decimal) (DiscountResult, error)
	PreviewDiscount(ctx context.Context, club *clubdomain.Club, monthlyPrice decimal.Decimal, months int) (PreviewResult, error)
	// MarkDiscountApplied books months billing cycles on the club's active
	// redemption. Returns nil when the club has none.
	MarkDiscountApplied(ctx context.Context, db *gorm.DB, club *clubdomain.Club, discount decimal.Decimal, months int) (*Redemption, error)
	ActiveRedemption(ctx context.Context, db *gorm.DB, clubID snowflake.ID) (*Redemption, error)
	ExpireRedemptions(ctx context.Context, limit int) (int64, error)

	List(ctx context.Context, filter ListFilter) ([]ListItem, error)
	AvailableForClub(ctx context.Context, club *clubdomain.Club) ([]Voucher, error)
	ClubRedemptionHistory(ctx context.Context, clubID snowflake.ID) ([]Redemption, error)
	VoucherStatistics(ctx context.Context, id snowflake.ID) (VoucherStatistics, error)
	OverallStatistics(ctx context.Context, tenantID *snowflake.ID) (OverallStatistics, error)
}
