package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func NewRepository() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Create(tenant).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM tenants WHERE id = ? LIMIT 1`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM tenants WHERE slug = ? LIMIT 1`,
		slug,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Tenant, error) {
	var tenants []domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM tenants ORDER BY name ASC, id ASC`,
	).Scan(&tenants).Error
	return tenants, err
}

func (r *repo) UpdateBilling(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants
		 SET is_small_business = ?, pays_via_invoice = ?, billing_name = ?, billing_email = ?,
		     vat_number = ?, tax_rate = ?, updated_at = ?
		 WHERE id = ?`,
		tenant.IsSmallBusiness,
		tenant.PaysViaInvoice,
		tenant.BillingName,
		tenant.BillingEmail,
		tenant.VATNumber,
		tenant.TaxRate,
		tenant.UpdatedAt,
		tenant.ID,
	).Error
}

func (r *repo) SetSuspended(ctx context.Context, db *gorm.DB, id snowflake.ID, suspended bool, reason *string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants SET is_suspended = ?, suspension_reason = ?, updated_at = ? WHERE id = ?`,
		suspended,
		reason,
		now,
		id,
	).Error
}

func (r *repo) CountClubs(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM clubs WHERE tenant_id = ?`,
		id,
	).Scan(&count).Error
	return count, err
}
