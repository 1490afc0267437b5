package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"github.com/lukasmk87/basketmanager/internal/tenant/repository"
	"github.com/lukasmk87/basketmanager/pkg/db/dbtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, &domain.Tenant{})
	require.NoError(t, conn.Exec(`CREATE TABLE clubs (id INTEGER PRIMARY KEY, tenant_id INTEGER NOT NULL)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.NewRepository(),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	}).(*Service)
	return svc, clk, conn
}

func TestCreate_FreeTierStartsTrial(t *testing.T) {
	svc, clk, _ := newTestService(t)

	tenant, err := svc.Create(context.Background(), domain.CreateRequest{Name: "TSV Grünwald Baskets"})
	require.NoError(t, err)

	assert.Equal(t, "tsv-gruenwald-baskets", tenant.Slug)
	assert.Equal(t, domain.TierFree, tenant.SubscriptionTier)
	assert.Equal(t, "de", tenant.Locale)
	require.NotNil(t, tenant.TrialEndsAt)
	assert.Equal(t, clk.Now().AddDate(0, 0, 14), *tenant.TrialEndsAt)
}

func TestCreate_SlugCollisionGetsSuffix(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, domain.CreateRequest{Name: "Hoop Stars", Tier: domain.TierBasic})
	require.NoError(t, err)
	second, err := svc.Create(ctx, domain.CreateRequest{Name: "Hoop Stars", Tier: domain.TierBasic})
	require.NoError(t, err)

	assert.Equal(t, "hoop-stars", first.Slug)
	assert.Equal(t, "hoop-stars-2", second.Slug)
	assert.Nil(t, second.TrialEndsAt)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "X", BillingEmail: "not-an-email"})
	assert.Error(t, err)
}

func TestEnsureAccess(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateRequest{Name: "Trial Club"})
	require.NoError(t, err)
	assert.NoError(t, svc.EnsureAccess(ctx, tenant))

	clk.AdvanceDays(15)
	assert.ErrorIs(t, svc.EnsureAccess(ctx, tenant), domain.ErrTrialExpired)

	tenant.SubscriptionTier = domain.TierBasic
	assert.NoError(t, svc.EnsureAccess(ctx, tenant))

	suspended, err := svc.Suspend(ctx, tenant.ID, "payment_failed")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.EnsureAccess(ctx, suspended), domain.ErrTenantSuspended)
}

func TestSuspendAndReactivate_ClearsReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateRequest{Name: "Dunk City", Tier: domain.TierProfessional})
	require.NoError(t, err)

	_, err = svc.Suspend(ctx, tenant.ID, "Zahlungsverzug")
	require.NoError(t, err)
	stored, err := svc.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSuspended)
	require.NotNil(t, stored.SuspensionReason)
	assert.Equal(t, "Zahlungsverzug", *stored.SuspensionReason)

	_, err = svc.Reactivate(ctx, tenant.ID)
	require.NoError(t, err)
	stored, err = svc.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsSuspended)
	assert.Nil(t, stored.SuspensionReason)
}

func TestUpdateBilling(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateRequest{Name: "Korbjäger", Tier: domain.TierBasic})
	require.NoError(t, err)

	small := true
	email := "kasse@korbjaeger.de"
	rate := decimal.NewFromInt(7)
	updated, err := svc.UpdateBilling(ctx, tenant.ID, domain.UpdateBillingRequest{
		IsSmallBusiness: &small,
		BillingEmail:    &email,
		TaxRate:         &rate,
	})
	require.NoError(t, err)
	assert.True(t, updated.IsSmallBusiness)
	assert.Equal(t, email, updated.BillingEmail)
	assert.True(t, updated.TaxRate.Valid)

	stored, err := svc.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, stored.TaxRate.Decimal.Equal(rate))

	bad := decimal.NewFromInt(120)
	_, err = svc.UpdateBilling(ctx, tenant.ID, domain.UpdateBillingRequest{TaxRate: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)

	_, err = svc.UpdateBilling(ctx, snowflake.ID(42), domain.UpdateBillingRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureClubQuota(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateRequest{Name: "Tiny", Tier: domain.TierFree})
	require.NoError(t, err)
	assert.NoError(t, svc.EnsureClubQuota(ctx, nil, tenant))

	require.NoError(t, conn.Exec(`INSERT INTO clubs (id, tenant_id) VALUES (1, ?)`, tenant.ID).Error)
	assert.ErrorIs(t, svc.EnsureClubQuota(ctx, nil, tenant), domain.ErrQuotaExceeded)

	tenant.SubscriptionTier = domain.TierEnterprise
	assert.NoError(t, svc.EnsureClubQuota(ctx, nil, tenant))
}
