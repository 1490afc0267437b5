package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// GetDefault returns the enabled default rate of a tenant, or nil.
	GetDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*TaxRate, error)
	Create(ctx context.Context, db *gorm.DB, rate *TaxRate) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*TaxRate, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListRequest) ([]TaxRate, error)
	Update(ctx context.Context, db *gorm.DB, rate *TaxRate) error
	ClearDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error
}
