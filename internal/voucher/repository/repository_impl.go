package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func NewRepository() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, voucher *domain.Voucher) error {
	return db.WithContext(ctx).Create(voucher).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Voucher, error) {
	var voucher domain.Voucher
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM vouchers WHERE id = ? LIMIT 1`,
		id,
	).Scan(&voucher).Error
	if err != nil {
		return nil, err
	}
	if voucher.ID == 0 {
		return nil, nil
	}
	return &voucher, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Voucher, error) {
	var voucher domain.Voucher
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM vouchers WHERE code = ? LIMIT 1`,
		code,
	).Scan(&voucher).Error
	if err != nil {
		return nil, err
	}
	if voucher.ID == 0 {
		return nil, nil
	}
	return &voucher, nil
}

func (r *repo) CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM vouchers WHERE code = ?`,
		code,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, voucher *domain.Voucher) error {
	return db.WithContext(ctx).Exec(
		`UPDATE vouchers
		 SET code = ?, name = ?, description = ?, discount_percent = ?, discount_amount = ?,
		     trial_extension_days = ?, duration_months = ?, max_redemptions = ?, valid_from = ?,
		     valid_until = ?, applicable_plan_ids = ?, is_active = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		voucher.Code,
		voucher.Name,
		voucher.Description,
		voucher.DiscountPercent,
		voucher.DiscountAmount,
		voucher.TrialExtensionDays,
		voucher.DurationMonths,
		voucher.MaxRedemptions,
		voucher.ValidFrom,
		voucher.ValidUntil,
		voucher.ApplicablePlanIDs,
		voucher.IsActive,
		voucher.Metadata,
		voucher.UpdatedAt,
		voucher.ID,
	).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE vouchers SET is_active = ?, updated_at = ? WHERE id = ?`,
		active,
		now,
		id,
	).Error
}

func (r *repo) IncrementRedemptions(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE vouchers
		 SET current_redemptions = current_redemptions + 1, updated_at = ?
		 WHERE id = ? AND (max_redemptions IS NULL OR current_redemptions < max_redemptions)`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

const listSelect = `SELECT v.*,
	(SELECT COUNT(*) FROM voucher_redemptions vr WHERE vr.voucher_id = v.id) AS redemptions_count
	FROM vouchers v`

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.ListItem, error) {
	query := listSelect
	var args []any
	switch filter.Scope {
	case domain.ScopeTenant:
		query += ` WHERE (v.tenant_id IS NULL OR v.tenant_id = ?)`
		args = append(args, filter.TenantID)
	case domain.ScopeTenantSpecific:
		query += ` WHERE v.tenant_id = ?`
		args = append(args, filter.TenantID)
	case domain.ScopeSystemWide:
		query += ` WHERE v.tenant_id IS NULL`
	}
	query += ` ORDER BY v.created_at DESC, v.id DESC`

	var items []domain.ListItem
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}

func (r *repo) ListAvailable(ctx context.Context, db *gorm.DB, tenantID, clubID snowflake.ID, now time.Time) ([]domain.Voucher, error) {
	var vouchers []domain.Voucher
	err := db.WithContext(ctx).Raw(
		`SELECT v.* FROM vouchers v
		 WHERE (v.tenant_id IS NULL OR v.tenant_id = ?)
		   AND v.is_active = ?
		   AND (v.valid_from IS NULL OR v.valid_from <= ?)
		   AND (v.valid_until IS NULL OR v.valid_until >= ?)
		   AND (v.max_redemptions IS NULL OR v.current_redemptions < v.max_redemptions)
		   AND NOT EXISTS (
		     SELECT 1 FROM voucher_redemptions vr WHERE vr.voucher_id = v.id AND vr.club_id = ?
		   )
		 ORDER BY v.created_at DESC, v.id DESC`,
		tenantID,
		true,
		now,
		now,
		clubID,
	).Scan(&vouchers).Error
	return vouchers, err
}

func (r *repo) HasRedemption(ctx context.Context, db *gorm.DB, voucherID, clubID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM voucher_redemptions WHERE voucher_id = ? AND club_id = ?`,
		voucherID,
		clubID,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) InsertRedemption(ctx context.Context, db *gorm.DB, redemption *domain.Redemption) error {
	return db.WithContext(ctx).Create(redemption).Error
}

func (r *repo) UpdateRedemptionProgress(ctx context.Context, db *gorm.DB, redemption *domain.Redemption) error {
	return db.WithContext(ctx).Exec(
		`UPDATE voucher_redemptions
		 SET months_applied = ?, total_discount_amount = ?, is_fully_applied = ?,
		     first_applied_at = ?, last_applied_at = ?, updated_at = ?
		 WHERE id = ?`,
		redemption.MonthsApplied,
		redemption.TotalDiscountAmount,
		redemption.IsFullyApplied,
		redemption.FirstAppliedAt,
		redemption.LastAppliedAt,
		redemption.UpdatedAt,
		redemption.ID,
	).Error
}

func (r *repo) FindActiveRedemption(ctx context.Context, db *gorm.DB, clubID snowflake.ID, now time.Time) (*domain.Redemption, error) {
	var redemption domain.Redemption
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM voucher_redemptions
		 WHERE club_id = ? AND is_fully_applied = ? AND voucher_type <> ?
		   AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		clubID,
		false,
		domain.TypeTrialExtension,
		now,
	).Scan(&redemption).Error
	if err != nil {
		return nil, err
	}
	if redemption.ID == 0 {
		return nil, nil
	}
	return &redemption, nil
}

func (r *repo) ListRedemptionsByClub(ctx context.Context, db *gorm.DB, clubID snowflake.ID) ([]domain.Redemption, error) {
	var items []domain.Redemption
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM voucher_redemptions WHERE club_id = ? ORDER BY created_at DESC, id DESC`,
		clubID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListRedemptionsByVoucher(ctx context.Context, db *gorm.DB, voucherID snowflake.ID) ([]domain.Redemption, error) {
	var items []domain.Redemption
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM voucher_redemptions WHERE voucher_id = ? ORDER BY created_at DESC, id DESC`,
		voucherID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) RedemptionTotals(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID) (int64, decimal.Decimal, error) {
	var row struct {
		Count int64
		Total decimal.Decimal
	}
	query := `SELECT COUNT(*) AS count, COALESCE(SUM(total_discount_amount), 0) AS total FROM voucher_redemptions`
	var args []any
	if tenantID != nil {
		query += ` WHERE tenant_id = ?`
		args = append(args, *tenantID)
	}
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return 0, decimal.Zero, err
	}
	return row.Count, row.Total, nil
}

func (r *repo) ExpireRedemptions(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE voucher_redemptions
		 SET is_fully_applied = ?, updated_at = ?
		 WHERE id IN (
		   SELECT id FROM voucher_redemptions
		   WHERE is_fully_applied = ? AND expires_at IS NOT NULL AND expires_at <= ?
		   ORDER BY id ASC
		   LIMIT ?
		 )`,
		true,
		now,
		false,
		now,
		limit,
	)
	return res.RowsAffected, res.Error
}
