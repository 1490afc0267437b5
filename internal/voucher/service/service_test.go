package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	clubrepository "github.com/lukasmk87/basketmanager/internal/club/repository"
	clubservice "github.com/lukasmk87/basketmanager/internal/club/service"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/i18n"
	"github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/lukasmk87/basketmanager/internal/voucher/repository"
	"github.com/lukasmk87/basketmanager/pkg/db/dbtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const tenantID = snowflake.ID(11)

type fixture struct {
	svc   *Service
	clubs clubdomain.Service
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&domain.Voucher{},
		&domain.Redemption{},
		&clubdomain.Club{},
		&clubdomain.Plan{},
		&clubdomain.SubscriptionEvent{},
	)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	clubs := clubservice.NewService(clubservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    clubrepository.NewRepository(),
		Billing: billing,
	})
	svc := NewService(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.NewRepository(),
		Billing: billing,
		Clubs:   clubs,
	}).(*Service)
	return &fixture{svc: svc, clubs: clubs, clock: clk}
}

func (f *fixture) club(t *testing.T, tenant snowflake.ID, name string) *clubdomain.Club {
	t.Helper()
	club, err := f.clubs.Create(context.Background(), tenant, clubdomain.CreateClubRequest{Name: name})
	require.NoError(t, err)
	return club
}

func (f *fixture) plan(t *testing.T, name string, price int64) *clubdomain.Plan {
	t.Helper()
	plan, err := f.clubs.CreatePlan(context.Background(), tenantID, clubdomain.CreatePlanRequest{
		Name:  name,
		Price: decimal.NewFromInt(price),
	})
	require.NoError(t, err)
	return plan
}

func percentVoucher(code string, percent int64, months int) domain.CreateRequest {
	p := decimal.NewFromInt(percent)
	tenant := tenantID
	return domain.CreateRequest{
		TenantID:        &tenant,
		Code:            code,
		Name:            "Percent " + code,
		Type:            domain.TypePercent,
		DiscountPercent: &p,
		DurationMonths:  months,
	}
}

func requireValidationCode(t *testing.T, err error, code domain.ValidationCode) {
	t.Helper()
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, code, verr.Code)
}

func TestCreate_NormalizesCodeAndDefaultsDuration(t *testing.T) {
	f := newFixture(t)
	req := percentVoucher("  spring24 ", 20, 0)

	voucher, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "SPRING24", voucher.Code)
	assert.Equal(t, 1, voucher.DurationMonths)
	assert.True(t, voucher.IsActive)
	assert.Equal(t, "20%", voucher.FormattedDiscount("EUR"))

	_, err = f.svc.Create(context.Background(), percentVoucher("SPRING24", 10, 1))
	assert.ErrorIs(t, err, domain.ErrCodeTaken)
}

func TestCreate_GeneratesCode(t *testing.T) {
	f := newFixture(t)
	voucher, err := f.svc.Create(context.Background(), percentVoucher("", 15, 3))
	require.NoError(t, err)
	assert.Len(t, voucher.Code, 8)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, voucher.Code)
}

func TestCreate_RejectsInvalidTypeFields(t *testing.T) {
	f := newFixture(t)

	tooMuch := percentVoucher("TOOMUCH", 120, 1)
	_, err := f.svc.Create(context.Background(), tooMuch)
	assert.ErrorIs(t, err, domain.ErrInvalidPercent)

	// rounds to 0.00%
	tiny := decimal.RequireFromString("0.004")
	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		Code:            "TINY",
		Name:            "Tiny",
		Type:            domain.TypePercent,
		DiscountPercent: &tiny,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPercent)

	zero := decimal.Zero
	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		Code:           "ZEROFIX",
		Name:           "Zero",
		Type:           domain.TypeFixedAmount,
		DiscountAmount: &zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		Code: "NODAYS",
		Name: "Trial",
		Type: domain.TypeTrialExtension,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTrialDays)
}

func TestUpdate_IgnoresCodeChangeAfterRedemption(t *testing.T) {
	f := newFixture(t)
	voucher, err := f.svc.Create(context.Background(), percentVoucher("LOCKED", 10, 2))
	require.NoError(t, err)
	club := f.club(t, tenantID, "TSV Nord")

	_, err = f.svc.Redeem(context.Background(), voucher.ID, club, nil, nil)
	require.NoError(t, err)

	newCode := "CHANGED"
	newName := "Renamed"
	updated, err := f.svc.Update(context.Background(), voucher.ID, domain.UpdateRequest{Code: &newCode, Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "LOCKED", updated.Code)
	assert.Equal(t, "Renamed", updated.Name)
}

func TestValidate_OrderedChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.club(t, tenantID, "BC Hafen")
	foreign := f.club(t, snowflake.ID(999), "Fremdclub")

	_, err := f.svc.Validate(ctx, "MISSING", club, nil)
	requireValidationCode(t, err, domain.CodeNotFound)

	voucher, err := f.svc.Create(ctx, percentVoucher("HAFEN10", 10, 1))
	require.NoError(t, err)

	_, err = f.svc.Validate(ctx, "hafen10", foreign, nil)
	requireValidationCode(t, err, domain.CodeWrongTenant)

	_, err = f.svc.Deactivate(ctx, voucher.ID)
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, "HAFEN10", club, nil)
	requireValidationCode(t, err, domain.CodeInactive)
	_, err = f.svc.Activate(ctx, voucher.ID)
	require.NoError(t, err)

	future := f.clock.Now().AddDate(0, 0, 5)
	req := percentVoucher("LATER", 10, 1)
	req.ValidFrom = &future
	_, err = f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, "LATER", club, nil)
	requireValidationCode(t, err, domain.CodeNotYetValid)

	past := f.clock.Now().AddDate(0, 0, -1)
	req = percentVoucher("OLD", 10, 1)
	req.ValidUntil = &past
	_, err = f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, "OLD", club, nil)
	requireValidationCode(t, err, domain.CodeExpired)

	basic := f.plan(t, "Basic", 19)
	premium := f.plan(t, "Premium", 49)
	req = percentVoucher("PREMIUM", 10, 1)
	req.ApplicablePlanIDs = []snowflake.ID{premium.ID}
	_, err = f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, "PREMIUM", club, basic)
	requireValidationCode(t, err, domain.CodeWrongPlan)

	found, err := f.svc.Validate(ctx, "PREMIUM", club, premium)
	require.NoError(t, err)
	assert.Equal(t, "PREMIUM", found.Code)
}

func TestValidate_ExhaustedAndAlreadyRedeemed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.club(t, tenantID, "Erster")
	second := f.club(t, tenantID, "Zweiter")

	limit := 1
	req := percentVoucher("ONCE", 25, 1)
	req.MaxRedemptions = &limit
	voucher, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, voucher.ID, first, nil, nil)
	require.NoError(t, err)

	_, err = f.svc.Validate(ctx, "ONCE", second, nil)
	requireValidationCode(t, err, domain.CodeExhausted)

	unlimited, err := f.svc.Create(ctx, percentVoucher("MANY", 5, 1))
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, unlimited.ID, first, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, unlimited.ID, first, nil, nil)
	requireValidationCode(t, err, domain.CodeAlreadyRedeemed)
}

func TestInfo_LocalizedMessages(t *testing.T) {
	f := newFixture(t)
	club := f.club(t, tenantID, "Info Club")

	result, err := f.svc.Info(context.Background(), "NOPE", club, nil)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.CodeNotFound, result.ErrorCode)
	assert.Equal(t, "Voucher-Code nicht gefunden.", result.Message)

	en := i18n.WithLocale(context.Background(), i18n.EN)
	result, err = f.svc.Info(en, "NOPE", club, nil)
	require.NoError(t, err)
	assert.Equal(t, "Voucher code not found.", result.Message)

	_, err = f.svc.Create(context.Background(), percentVoucher("INFO20", 20, 3))
	require.NoError(t, err)
	result, err = f.svc.Info(context.Background(), "info20", club, nil)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.NotNil(t, result.Voucher)
	assert.Equal(t, "Prozent-Rabatt", result.Voucher.TypeLabel)
	assert.Equal(t, "3 Monate", result.Voucher.DurationLabel)
	assert.Equal(t, "20%", result.Voucher.DiscountLabel)
}

func TestRedeem_TrialExtensionExtendsTrial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.club(t, tenantID, "Trial Club")
	require.NotNil(t, club.TrialEndsAt)
	trialEnd := *club.TrialEndsAt

	days := 30
	voucher, err := f.svc.Create(ctx, domain.CreateRequest{
		Code:               "TRIAL30",
		Name:               "Trial",
		Type:               domain.TypeTrialExtension,
		TrialExtensionDays: &days,
	})
	require.NoError(t, err)
	assert.True(t, voucher.IsSystemWide())

	redemption, err := f.svc.RedeemByCode(ctx, "trial30", club, nil, nil)
	require.NoError(t, err)
	assert.True(t, redemption.IsFullyApplied)
	assert.Nil(t, redemption.ExpiresAt)
	assert.Equal(t, trialEnd.AddDate(0, 0, 30), *club.TrialEndsAt)

	events, err := f.clubs.ListEvents(ctx, tenantID, club.ID)
	require.NoError(t, err)
	types := make([]clubdomain.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, clubdomain.EventTrialExtended)
	assert.Contains(t, types, clubdomain.EventVoucherRedeemed)

	reloaded, err := f.svc.Get(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentRedemptions)
}

func TestCalculateDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.club(t, tenantID, "Rabatt Club")

	result, err := f.svc.CalculateDiscount(ctx, club, decimal.NewFromInt(49))
	require.NoError(t, err)
	assert.False(t, result.HasDiscount)
	assert.True(t, result.FinalAmount.Equal(decimal.NewFromInt(49)))

	voucher, err := f.svc.Create(ctx, percentVoucher("SAVE15", 15, 2))
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, voucher.ID, club, nil, nil)
	require.NoError(t, err)

	result, err = f.svc.CalculateDiscount(ctx, club, decimal.RequireFromString("49.99"))
	require.NoError(t, err)
	assert.True(t, result.HasDiscount)
	assert.Equal(t, "7.50", result.DiscountAmount.StringFixed(2))
	assert.Equal(t, "42.49", result.FinalAmount.StringFixed(2))
	require.NotNil(t, result.Redemption)
	assert.Equal(t, 2, result.Redemption.RemainingMonths)
}

func TestCalculateDiscount_FixedAmountCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.club(t, tenantID, "Fix Club")

	amount := decimal.NewFromInt(50)
	voucher, err := f.svc.Create(ctx, domain.CreateRequest{
		Code:           "FIFTY",
		Name:           "Fifty off",
		Type:           domain.TypeFixedAmount,
		DiscountAmount: &amount,
		DurationMonths: 1,
	})
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, voucher.ID, club, nil, nil)
	require.NoError(t, err)

	result, err := f.svc.CalculateDiscount(ctx, club, decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.Equal(t, "30.00", result.DiscountAmount.StringFixed(2))
	assert.True(t, result.FinalAmount.IsZero())
}

func TestPreviewDiscount_LimitsToRemainingMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.club(t, tenantID, "Preview Club")

	voucher, err := f.svc.Create(ctx, percentVoucher("PREVIEW", 20, 3))
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, voucher.ID, club, nil, nil)
	require.NoError(t, err)

	preview, err := f.svc.PreviewDiscount(ctx, club, decimal.NewFromInt(50), 12)
	require.NoError(t, err)
	assert.True(t, preview.HasDiscount)
	assert.Equal(t, 3, preview.ApplicableMonths)
	assert.Equal(t, "10.00", preview.MonthlyDiscount.StringFixed(2))
	assert.Equal(t, "30.00", preview.TotalDiscount.StringFixed(2))
	assert.Equal(t, "40.00", preview.MonthlyPrice.StringFixed(2))
	assert.Equal(t, "570.00", preview.TotalPrice.StringFixed(2))

	_, err = f.svc.PreviewDiscount(ctx, club, decimal.NewFromInt(50), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidMonths)
}

func TestMarkDiscountApplied_CompletesRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.club(t, tenantID, "Apply Club")

	voucher, err := f.svc.Create(ctx, percentVoucher("TWICE", 10, 2))
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, voucher.ID, club, nil, nil)
	require.NoError(t, err)

	redemption, err := f.svc.MarkDiscountApplied(ctx, nil, club, decimal.NewFromInt(5), 1)
	require.NoError(t, err)
	require.NotNil(t, redemption)
	assert.Equal(t, 1, redemption.MonthsApplied)
	assert.False(t, redemption.IsFullyApplied)

	redemption, err = f.svc.MarkDiscountApplied(ctx, nil, club, decimal.NewFromInt(5), 1)
	require.NoError(t, err)
	assert.True(t, redemption.IsFullyApplied)
	assert.Equal(t, "10.00", redemption.TotalDiscountAmount.StringFixed(2))

	active, err := f.svc.ActiveRedemption(ctx, nil, club.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	none, err := f.svc.MarkDiscountApplied(ctx, nil, club, decimal.NewFromInt(5), 1)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestExpireRedemptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.club(t, tenantID, "Expire Club")

	voucher, err := f.svc.Create(ctx, percentVoucher("SHORT", 10, 1))
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, voucher.ID, club, nil, nil)
	require.NoError(t, err)

	expired, err := f.svc.ExpireRedemptions(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, expired)

	f.clock.AdvanceDays(40)
	expired, err = f.svc.ExpireRedemptions(ctx, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, expired)

	history, err := f.svc.ClubRedemptionHistory(ctx, club.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsFullyApplied)
}

func TestListAndStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.club(t, tenantID, "Stats Club")

	own, err := f.svc.Create(ctx, percentVoucher("OWN10", 10, 1))
	require.NoError(t, err)
	days := 14
	_, err = f.svc.Create(ctx, domain.CreateRequest{
		Code:               "GLOBAL14",
		Name:               "Global",
		Type:               domain.TypeTrialExtension,
		TrialExtensionDays: &days,
	})
	require.NoError(t, err)
	other := snowflake.ID(500)
	otherReq := percentVoucher("OTHER", 5, 1)
	otherReq.TenantID = &other
	_, err = f.svc.Create(ctx, otherReq)
	require.NoError(t, err)

	items, err := f.svc.List(ctx, domain.ListFilter{Scope: domain.ScopeTenant, TenantID: tenantID})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = f.svc.List(ctx, domain.ListFilter{Scope: domain.ScopeSystemWide})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Trial-Verlängerung", items[0].TypeLabelText)
	assert.Equal(t, "Einmalig", items[0].DurationLabel)
	assert.Equal(t, "Aktiv", items[0].StatusLabel)

	available, err := f.svc.AvailableForClub(ctx, club)
	require.NoError(t, err)
	assert.Len(t, available, 2)

	_, err = f.svc.Redeem(ctx, own.ID, club, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.MarkDiscountApplied(ctx, nil, club, decimal.RequireFromString("4.90"), 1)
	require.NoError(t, err)

	available, err = f.svc.AvailableForClub(ctx, club)
	require.NoError(t, err)
	assert.Len(t, available, 1)

	stats, err := f.svc.VoucherStatistics(ctx, own.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRedemptions)
	assert.Equal(t, 1, stats.CompletedRedemptions)
	assert.Equal(t, "4.90", stats.TotalDiscountGiven.StringFixed(2))
	assert.Nil(t, stats.RemainingRedemptions)

	overall, err := f.svc.OverallStatistics(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, overall.TotalVouchers)
	assert.Equal(t, 1, overall.SystemWideVouchers)
	assert.EqualValues(t, 1, overall.TotalRedemptions)
	assert.Equal(t, 2, overall.ByType[domain.TypePercent])
	assert.Equal(t, 1, overall.ByType[domain.TypeTrialExtension])

	tenantStats, err := f.svc.OverallStatistics(ctx, ptr(tenantID))
	require.NoError(t, err)
	assert.Equal(t, 2, tenantStats.TotalVouchers)
}

func ptr[T any](v T) *T { return &v }
