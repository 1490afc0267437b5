package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/config"
	taxdomain "github.com/lukasmk87/basketmanager/internal/tax/domain"
	"github.com/lukasmk87/basketmanager/internal/tax/repository"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"github.com/lukasmk87/basketmanager/pkg/db/dbtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServices(t *testing.T) (taxdomain.Service, taxdomain.Resolver) {
	t.Helper()
	conn := dbtest.Open(t, &taxdomain.TaxRate{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.NewRepository()
	resolver := NewResolver(resolverParam{
		DB:         conn,
		Repository: repo,
		Billing:    config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	svc := NewService(serviceParams{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:     repo,
		Resolver: resolver,
	})
	return svc, resolver
}

func TestCalculateAmounts(t *testing.T) {
	amounts := CalculateAmounts(decimal.RequireFromString("49.00"), decimal.NewFromInt(19), false)
	assert.Equal(t, "49.00", amounts.Net.StringFixed(2))
	assert.Equal(t, "9.31", amounts.Tax.StringFixed(2))
	assert.Equal(t, "58.31", amounts.Gross.StringFixed(2))

	rounded := CalculateAmounts(decimal.RequireFromString("10.05"), decimal.NewFromInt(19), false)
	assert.Equal(t, "1.91", rounded.Tax.StringFixed(2))
	assert.Equal(t, "11.96", rounded.Gross.StringFixed(2))

	small := CalculateAmounts(decimal.RequireFromString("49.00"), decimal.NewFromInt(19), true)
	assert.True(t, small.Rate.IsZero())
	assert.True(t, small.Tax.IsZero())
	assert.Equal(t, "49.00", small.Gross.StringFixed(2))
}

func TestResolveRate_Precedence(t *testing.T) {
	svc, resolver := newTestServices(t)
	tenantID := snowflake.ID(5)
	ctx := tenantcontext.WithTenantID(context.Background(), tenantID)
	tenant := &tenantdomain.Tenant{ID: tenantID}

	rate, err := resolver.ResolveRate(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(19)), "configured default")

	_, err = svc.Create(ctx, taxdomain.CreateRequest{
		Code:      taxdomain.TaxCodeDEReduced,
		Name:      "Ermäßigt",
		Rate:      decimal.NewFromInt(7),
		IsDefault: true,
	})
	require.NoError(t, err)

	rate, err = resolver.ResolveRate(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(7)), "tenant default rate after cache invalidation")

	tenant.TaxRate = decimal.NewNullDecimal(decimal.NewFromInt(16))
	rate, err = resolver.ResolveRate(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(16)), "tenant override")

	tenant.IsSmallBusiness = true
	rate, err = resolver.ResolveRate(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, rate.IsZero(), "small business")
}

func TestManagement_DefaultIsExclusiveAndDisable(t *testing.T) {
	svc, resolver := newTestServices(t)
	tenantID := snowflake.ID(9)
	ctx := tenantcontext.WithTenantID(context.Background(), tenantID)

	standard, err := svc.Create(ctx, taxdomain.CreateRequest{Code: "de_vat_standard", Name: "Standard", Rate: decimal.NewFromInt(19), IsDefault: true})
	require.NoError(t, err)
	assert.Equal(t, taxdomain.TaxCodeDEStandard, standard.Code)

	reduced, err := svc.Create(ctx, taxdomain.CreateRequest{Code: taxdomain.TaxCodeDEReduced, Name: "Reduziert", Rate: decimal.NewFromInt(7)})
	require.NoError(t, err)

	makeDefault := true
	_, err = svc.Update(ctx, taxdomain.UpdateRequest{ID: reduced.ID.String(), IsDefault: &makeDefault})
	require.NoError(t, err)

	rates, err := svc.List(ctx, taxdomain.ListRequest{SortBy: "rate"})
	require.NoError(t, err)
	require.Len(t, rates, 2)
	defaults := 0
	for _, r := range rates {
		if r.IsDefault {
			defaults++
			assert.Equal(t, reduced.ID, r.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	_, err = svc.Disable(ctx, reduced.ID.String())
	require.NoError(t, err)
	rate, err := resolver.ResolveRate(ctx, &tenantdomain.Tenant{ID: tenantID})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(19)))
}

func TestManagement_Validation(t *testing.T) {
	svc, _ := newTestServices(t)

	_, err := svc.Create(context.Background(), taxdomain.CreateRequest{Code: "X", Name: "X"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTenant)

	ctx := tenantcontext.WithTenantID(context.Background(), snowflake.ID(3))
	_, err = svc.Create(ctx, taxdomain.CreateRequest{Code: "X", Name: "X", Rate: decimal.NewFromInt(101)})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)

	_, err = svc.Update(ctx, taxdomain.UpdateRequest{ID: "nope"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidID)

	_, err = svc.Disable(ctx, "12345")
	assert.ErrorIs(t, err, taxdomain.ErrNotFound)
}
