package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/cache"
	"github.com/lukasmk87/basketmanager/internal/config"
	taxdomain "github.com/lukasmk87/basketmanager/internal/tax/domain"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	rateCacheSize = 1024
	rateCacheTTL  = 10 * time.Minute
)

var hundred = decimal.NewFromInt(100)

type resolverParam struct {
	fx.In

	DB         *gorm.DB
	Repository taxdomain.Repository
	Billing    *config.BillingConfigHolder
}

type resolver struct {
	db      *gorm.DB
	repo    taxdomain.Repository
	billing *config.BillingConfigHolder
	// tenant id → enabled default rate; Valid=false caches "none configured"
	defaults cache.Cache[snowflake.ID, decimal.NullDecimal]
}

func NewResolver(p resolverParam) taxdomain.Resolver {
	return &resolver{
		db:       p.DB,
		repo:     p.Repository,
		billing:  p.Billing,
		defaults: cache.NewTTLCache[snowflake.ID, decimal.NullDecimal](rateCacheSize, rateCacheTTL),
	}
}

func (r *resolver) ResolveRate(ctx context.Context, tenant *tenantdomain.Tenant) (decimal.Decimal, error) {
	if tenant == nil {
		return decimal.Zero, taxdomain.ErrInvalidTenant
	}
	if tenant.IsSmallBusiness {
		return decimal.Zero, nil
	}
	if tenant.TaxRate.Valid {
		return tenant.TaxRate.Decimal, nil
	}

	def, ok := r.defaults.Get(tenant.ID)
	if !ok {
		rate, err := r.repo.GetDefault(ctx, r.db, tenant.ID)
		if err != nil {
			return decimal.Zero, err
		}
		if rate != nil {
			def = decimal.NewNullDecimal(rate.Rate)
		}
		r.defaults.Set(tenant.ID, def)
	}
	if def.Valid {
		return def.Decimal, nil
	}
	return decimal.NewFromFloat(r.billing.Get().DefaultTaxRate), nil
}

func (r *resolver) Invalidate(tenantID snowflake.ID) {
	r.defaults.Delete(tenantID)
}

// CalculateAmounts splits net into tax and gross at rate percent. Small
// businesses never charge VAT.
func CalculateAmounts(net, rate decimal.Decimal, isSmallBusiness bool) taxdomain.Amounts {
	if isSmallBusiness || rate.IsNegative() {
		rate = decimal.Zero
	}
	net = net.Round(2)
	tax := net.Mul(rate).Div(hundred).Round(2)
	return taxdomain.Amounts{
		Net:   net,
		Rate:  rate,
		Tax:   tax,
		Gross: net.Add(tax).Round(2),
	}
}
