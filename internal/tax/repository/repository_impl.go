package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/lukasmk87/basketmanager/internal/tax/domain"
	"github.com/lukasmk87/basketmanager/pkg/db/option"
	"gorm.io/gorm"
)

const columns = `id, tenant_id, name, code, rate, description, is_default, is_enabled, created_at, updated_at`

type repository struct{}

func NewRepository() taxdomain.Repository {
	return &repository{}
}

func (r *repository) GetDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*taxdomain.TaxRate, error) {
	var rate taxdomain.TaxRate
	err := db.WithContext(ctx).Raw(
		`SELECT `+columns+`
		 FROM tax_rates
		 WHERE tenant_id = ? AND is_enabled = ? AND is_default = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		tenantID,
		true,
		true,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repository) Create(ctx context.Context, db *gorm.DB, rate *taxdomain.TaxRate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tax_rates (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rate.ID,
		rate.TenantID,
		rate.Name,
		rate.Code,
		rate.Rate,
		rate.Description,
		rate.IsDefault,
		rate.IsEnabled,
		rate.CreatedAt,
		rate.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*taxdomain.TaxRate, error) {
	var rate taxdomain.TaxRate
	err := db.WithContext(ctx).Raw(
		`SELECT `+columns+` FROM tax_rates WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	query := `SELECT ` + columns + ` FROM tax_rates WHERE tenant_id = ?`
	args := []any{tenantID}
	if filter.Code != "" {
		query += ` AND code = ?`
		args = append(args, filter.Code)
	}
	if filter.IsEnabled != nil {
		query += ` AND is_enabled = ?`
		args = append(args, *filter.IsEnabled)
	}
	query += option.Apply("created_at", []string{"created_at", "updated_at", "name", "rate"},
		option.WithQuerySortBy(filter.SortBy),
	).OrderClause()

	var items []taxdomain.TaxRate
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, rate *taxdomain.TaxRate) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tax_rates
		 SET name = ?, rate = ?, description = ?, is_default = ?, is_enabled = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		rate.Name,
		rate.Rate,
		rate.Description,
		rate.IsDefault,
		rate.IsEnabled,
		rate.UpdatedAt,
		rate.TenantID,
		rate.ID,
	).Error
}

func (r *repository) ClearDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tax_rates SET is_default = ? WHERE tenant_id = ? AND is_default = ?`,
		false,
		tenantID,
		true,
	).Error
}
