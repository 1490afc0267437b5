package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	clubrepository "github.com/lukasmk87/basketmanager/internal/club/repository"
	clubservice "github.com/lukasmk87/basketmanager/internal/club/service"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/invoice/render"
	"github.com/lukasmk87/basketmanager/internal/invoice/repository"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	tenantrepository "github.com/lukasmk87/basketmanager/internal/tenant/repository"
	tenantservice "github.com/lukasmk87/basketmanager/internal/tenant/service"
	voucherdomain "github.com/lukasmk87/basketmanager/internal/voucher/domain"
	voucherrepository "github.com/lukasmk87/basketmanager/internal/voucher/repository"
	voucherservice "github.com/lukasmk87/basketmanager/internal/voucher/service"
	"github.com/lukasmk87/basketmanager/pkg/db/dbtest"
	"github.com/lukasmk87/basketmanager/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedRate struct{ rate decimal.Decimal }

func (f fixedRate) ResolveRate(context.Context, *tenantdomain.Tenant) (decimal.Decimal, error) {
	return f.rate, nil
}

func (fixedRate) Invalidate(snowflake.ID) {}

type sentMail struct {
	kind   string
	number string
	level  int
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) record(kind string, invoice *domain.Invoice, level int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: kind, number: invoice.Number, level: level})
	return nil
}

func (n *recordingNotifier) InvoiceSent(_ context.Context, invoice *domain.Invoice) error {
	return n.record("sent", invoice, 0)
}

func (n *recordingNotifier) Reminder(_ context.Context, invoice *domain.Invoice, level int) error {
	return n.record("reminder", invoice, level)
}

func (n *recordingNotifier) SuspensionWarning(_ context.Context, invoice *domain.Invoice) error {
	return n.record("suspension", invoice, 0)
}

func (n *recordingNotifier) PaymentConfirmation(_ context.Context, invoice *domain.Invoice) error {
	return n.record("paid", invoice, 0)
}

func (n *recordingNotifier) Cancelled(_ context.Context, invoice *domain.Invoice) error {
	return n.record("cancelled", invoice, 0)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.sent))
	for _, mail := range n.sent {
		kinds = append(kinds, mail.kind)
	}
	return kinds
}

type fixture struct {
	svc      *Service
	tenants  tenantdomain.Service
	clubs    clubdomain.Service
	vouchers voucherdomain.Service
	notifier *recordingNotifier
	clock    *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&tenantdomain.Tenant{},
		&clubdomain.Club{},
		&clubdomain.Plan{},
		&clubdomain.SubscriptionEvent{},
		&voucherdomain.Voucher{},
		&voucherdomain.Redemption{},
		&domain.Invoice{},
		&domain.InvoiceRequest{},
	)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	tenants := tenantservice.NewService(tenantservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    tenantrepository.NewRepository(),
		Billing: billing,
	})
	clubs := clubservice.NewService(clubservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    clubrepository.NewRepository(),
		Billing: billing,
		Tenants: tenants,
	})
	vouchers := voucherservice.NewService(voucherservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    voucherrepository.NewRepository(),
		Billing: billing,
		Clubs:   clubs,
	})
	notifier := &recordingNotifier{}
	svc := NewService(Params{
		DB:          conn,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        repository.NewRepository(),
		Billing:     billing,
		Tenants:     tenants,
		Clubs:       clubs,
		TaxResolver: fixedRate{rate: decimal.NewFromInt(19)},
		Vouchers:    vouchers,
		Notifier:    notifier,
		Renderer:    render.NewRenderer(),
	}).(*Service)

	return &fixture{
		svc:      svc,
		tenants:  tenants,
		clubs:    clubs,
		vouchers: vouchers,
		notifier: notifier,
		clock:    clk,
	}
}

func (f *fixture) tenant(t *testing.T, name string, smallBusiness bool) *tenantdomain.Tenant {
	t.Helper()
	tenant, err := f.tenants.Create(context.Background(), tenantdomain.CreateRequest{
		Name:            name,
		Tier:            tenantdomain.TierBasic,
		BillingEmail:    "billing@example.de",
		IsSmallBusiness: smallBusiness,
	})
	require.NoError(t, err)
	return tenant
}

func (f *fixture) club(t *testing.T, tenant *tenantdomain.Tenant, name string) *clubdomain.Club {
	t.Helper()
	club, err := f.clubs.Create(context.Background(), tenant.ID, clubdomain.CreateClubRequest{
		Name:         name,
		BillingEmail: "kasse@example.de",
	})
	require.NoError(t, err)
	return club
}

func (f *fixture) plan(t *testing.T, tenant *tenantdomain.Tenant, name string, price int64) *clubdomain.Plan {
	t.Helper()
	plan, err := f.clubs.CreatePlan(context.Background(), tenant.ID, clubdomain.CreatePlanRequest{
		Name:  name,
		Price: decimal.NewFromInt(price),
	})
	require.NoError(t, err)
	return plan
}

func (f *fixture) redeemPercent(t *testing.T, tenant *tenantdomain.Tenant, club *clubdomain.Club, plan *clubdomain.Plan, code string, percent int64, months int) {
	t.Helper()
	p := decimal.NewFromInt(percent)
	tenantID := tenant.ID
	_, err := f.vouchers.Create(context.Background(), voucherdomain.CreateRequest{
		TenantID:        &tenantID,
		Code:            code,
		Name:            "Rabatt " + code,
		Type:            voucherdomain.TypePercent,
		DiscountPercent: &p,
		DurationMonths:  months,
	})
	require.NoError(t, err)
	_, err = f.vouchers.RedeemByCode(context.Background(), code, club, plan, nil)
	require.NoError(t, err)
}

func scoped(tenant *tenantdomain.Tenant) context.Context {
	ctx := tenantcontext.WithTenantID(context.Background(), tenant.ID)
	return tenantcontext.WithActor(ctx, tenantcontext.Actor{ID: "user-1", Role: "tenant_admin"})
}

func manual(club *clubdomain.Club, net int64) domain.CreateRequest {
	return domain.CreateRequest{
		BillableType:  domain.BillableClub,
		BillableID:    club.ID,
		NetAmount:     decimal.NewFromInt(net),
		Description:   "Hallenmiete",
		BillingPeriod: "März 2024",
	}
}

func TestCreate_ComputesTaxAndSequentialNumbers(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "TV Nord", false)
	club := f.club(t, tenant, "TV Nord Basketball")
	ctx := scoped(tenant)

	first, err := f.svc.Create(ctx, manual(club, 100))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, manual(club, 50))
	require.NoError(t, err)

	assert.Equal(t, "CLUB-2024-00001", first.Number)
	assert.Equal(t, "CLUB-2024-00002", second.Number)
	assert.Equal(t, domain.StatusDraft, first.Status)
	assert.Equal(t, "100.00", first.NetAmount.StringFixed(2))
	assert.Equal(t, "19.00", first.TaxAmount.StringFixed(2))
	assert.Equal(t, "119.00", first.GrossAmount.StringFixed(2))
	assert.Equal(t, "TV Nord Basketball", first.BillingName)
	assert.Equal(t, "kasse@example.de", first.BillingEmail)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 14), first.DueDate)
	require.Len(t, first.LineItems, 1)
	assert.Equal(t, "Hallenmiete", first.LineItems[0].Description)
	require.NotNil(t, first.CreatedBy)
	assert.Equal(t, "user-1", *first.CreatedBy)

	events, err := f.clubs.ListEvents(context.Background(), tenant.ID, club.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, clubdomain.EventInvoiceCreated, events[0].EventType)
}

func TestCreate_SmallBusinessChargesNoVAT(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "Kleiner Verein", true)
	club := f.club(t, tenant, "Korbjäger")

	invoice, err := f.svc.Create(scoped(tenant), manual(club, 80))
	require.NoError(t, err)
	assert.True(t, invoice.IsSmallBusiness)
	assert.True(t, invoice.TaxRate.IsZero())
	assert.True(t, invoice.TaxAmount.IsZero())
	assert.Equal(t, "80.00", invoice.GrossAmount.StringFixed(2))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "TV Süd", false)
	other := f.tenant(t, "TV West", false)
	club := f.club(t, tenant, "TV Süd Baskets")

	_, err := f.svc.Create(context.Background(), manual(club, 10))
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = f.svc.Create(scoped(other), manual(club, 10))
	assert.ErrorIs(t, err, domain.ErrBillableNotFound)

	req := manual(club, 10)
	req.NetAmount = decimal.NewFromInt(-1)
	_, err = f.svc.Create(scoped(tenant), req)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	req = manual(club, 10)
	issue := f.clock.Now()
	due := issue.AddDate(0, 0, -1)
	req.IssueDate, req.DueDate = &issue, &due
	_, err = f.svc.Create(scoped(tenant), req)
	assert.ErrorIs(t, err, domain.ErrInvalidDates)

	req = manual(club, 10)
	rate := decimal.NewFromInt(101)
	req.TaxRate = &rate
	_, err = f.svc.Create(scoped(tenant), req)
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)
}

func TestCreateForSubscription_YearlyWithVoucher(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "BBC Mitte", false)
	club := f.club(t, tenant, "BBC Mitte Juniors")
	plan := f.plan(t, tenant, "Standard", 50)
	f.redeemPercent(t, tenant, club, plan, "JAHR20", 20, 3)

	invoice, err := f.svc.CreateForSubscription(context.Background(), club, plan, clubdomain.IntervalYearly)
	require.NoError(t, err)

	// 50 * 12 * 0.9 = 540, 20 % of 45 per month for the 3 voucher months = 27
	require.Len(t, invoice.LineItems, 2)
	assert.Equal(t, "540.00", invoice.LineItems[0].Total.StringFixed(2))
	assert.Equal(t, "Subscription: Standard (yearly)", invoice.LineItems[0].Description)
	assert.Equal(t, "-27.00", invoice.LineItems[1].Total.StringFixed(2))
	assert.True(t, strings.HasPrefix(invoice.LineItems[1].Description, "Gutschein JAHR20"))
	assert.Equal(t, "27.00", invoice.DiscountAmount.StringFixed(2))
	assert.Equal(t, "513.00", invoice.NetAmount.StringFixed(2))
	assert.Equal(t, "97.47", invoice.TaxAmount.StringFixed(2))
	assert.Equal(t, "610.47", invoice.GrossAmount.StringFixed(2))
	assert.Equal(t, "15.03.2024 - 14.03.2025", invoice.BillingPeriod)
	require.NotNil(t, invoice.VoucherRedemptionID)

	history, err := f.vouchers.ClubRedemptionHistory(context.Background(), club.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].MonthsApplied)
	assert.True(t, history[0].IsFullyApplied)
	assert.Equal(t, "27.00", history[0].TotalDiscountAmount.StringFixed(2))
}

func TestCreateForSubscription_MonthlyConsumesVoucher(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "SG Ost", false)
	club := f.club(t, tenant, "SG Ost Dragons")
	plan := f.plan(t, tenant, "Basis", 30)
	f.redeemPercent(t, tenant, club, plan, "HALB50", 50, 2)

	var nets []string
	for range 3 {
		invoice, err := f.svc.CreateForSubscription(context.Background(), club, plan, clubdomain.IntervalMonthly)
		require.NoError(t, err)
		nets = append(nets, invoice.NetAmount.StringFixed(2))
	}
	assert.Equal(t, []string{"15.00", "15.00", "30.00"}, nets)
}

func TestCreateForSubscription_RejectsForeignPlan(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "TSV Eins", false)
	other := f.tenant(t, "TSV Zwei", false)
	club := f.club(t, tenant, "TSV Eins Hoops")
	plan := f.plan(t, other, "Fremd", 20)

	_, err := f.svc.CreateForSubscription(context.Background(), club, plan, "")
	assert.ErrorIs(t, err, clubdomain.ErrPlanNotFound)
}

func TestCreateForTenant_BillsTierAtPlatformRate(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "Landesverband", true)

	invoice, err := f.svc.CreateForTenant(context.Background(), tenant.ID, clubdomain.IntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, "TEN-2024-00001", invoice.Number)
	assert.Equal(t, domain.BillableTenant, invoice.BillableType)
	// the platform is never a small business, whatever the tenant is
	assert.False(t, invoice.IsSmallBusiness)
	assert.Equal(t, "49.00", invoice.NetAmount.StringFixed(2))
	assert.Equal(t, "9.31", invoice.TaxAmount.StringFixed(2))
	assert.Equal(t, "58.31", invoice.GrossAmount.StringFixed(2))
}

func TestLifecycle_SendAndPayActivatesSubscription(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "MTV Stadt", false)
	club := f.club(t, tenant, "MTV Stadt Baskets")
	plan := f.plan(t, tenant, "Premium", 40)
	ctx := scoped(tenant)

	invoice, err := f.svc.CreateForSubscription(ctx, club, plan, clubdomain.IntervalMonthly)
	require.NoError(t, err)

	sent, err := f.svc.MarkSent(ctx, invoice.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	pending, err := f.clubs.Get(ctx, tenant.ID, club.ID)
	require.NoError(t, err)
	assert.Equal(t, clubdomain.StatusPendingPayment, pending.SubscriptionStatus)

	_, err = f.svc.MarkSent(ctx, invoice.ID, true)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	net := decimal.NewFromInt(1)
	_, err = f.svc.Update(ctx, invoice.ID, domain.UpdateRequest{NetAmount: &net})
	assert.ErrorIs(t, err, domain.ErrNotEditable)
	assert.ErrorIs(t, f.svc.Delete(ctx, invoice.ID), domain.ErrNotEditable)

	ref := "  SEPA-4711 "
	paid, err := f.svc.MarkPaid(ctx, invoice.ID, domain.MarkPaidRequest{PaymentReference: &ref})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, "SEPA-4711", paid.Reference())

	active, err := f.clubs.Get(ctx, tenant.ID, club.ID)
	require.NoError(t, err)
	assert.Equal(t, clubdomain.StatusActive, active.SubscriptionStatus)
	require.NotNil(t, active.PlanID)
	assert.Equal(t, plan.ID, *active.PlanID)

	_, err = f.svc.Cancel(ctx, invoice.ID, "zu spät")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, []string{"sent", "paid"}, f.notifier.kinds())
}

func TestUpdate_RecomputesDraftTotals(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "ASC", false)
	club := f.club(t, tenant, "ASC Giants")
	ctx := scoped(tenant)

	invoice, err := f.svc.Create(ctx, manual(club, 100))
	require.NoError(t, err)

	net := decimal.NewFromInt(200)
	rate := decimal.NewFromInt(7)
	updated, err := f.svc.Update(ctx, invoice.ID, domain.UpdateRequest{NetAmount: &net, TaxRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, "14.00", updated.TaxAmount.StringFixed(2))
	assert.Equal(t, "214.00", updated.GrossAmount.StringFixed(2))

	require.NoError(t, f.svc.Delete(ctx, invoice.ID))
	_, err = f.svc.Get(ctx, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendReminder_StopsAtMaximum(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "TG Hafen", false)
	club := f.club(t, tenant, "TG Hafen Sharks")
	ctx := scoped(tenant)

	invoice, err := f.svc.Create(ctx, manual(club, 60))
	require.NoError(t, err)
	_, err = f.svc.SendReminder(ctx, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.MarkSent(ctx, invoice.ID, false)
	require.NoError(t, err)
	f.clock.AdvanceDays(20)
	overdue, err := f.svc.MarkOverdue(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, overdue.Status)
	assert.Equal(t, 6, overdue.DaysOverdue(f.clock.Now()))

	for level := 1; level <= 3; level++ {
		reminded, err := f.svc.SendReminder(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, level, reminded.ReminderCount)
		require.NotNil(t, reminded.LastReminderSentAt)
	}
	_, err = f.svc.SendReminder(ctx, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrMaxReminders)

	levels := []int{}
	for _, mail := range f.notifier.sent {
		levels = append(levels, mail.level)
	}
	assert.Equal(t, []int{1, 2, 3}, levels)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "DJK", false)
	club := f.club(t, tenant, "DJK Titans")
	ctx := scoped(tenant)

	draft, err := f.svc.Create(ctx, manual(club, 10))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, draft.ID, "  ")
	assert.ErrorIs(t, err, domain.ErrCancellationReason)

	cancelled, err := f.svc.Cancel(ctx, draft.ID, "doppelt")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.PaymentNotes)
	assert.Equal(t, "Storniert: doppelt", *cancelled.PaymentNotes)
	assert.Empty(t, f.notifier.kinds())

	sent, err := f.svc.Create(ctx, manual(club, 10))
	require.NoError(t, err)
	_, err = f.svc.MarkSent(ctx, sent.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, sent.ID, "falscher Betrag")
	require.NoError(t, err)
	assert.Equal(t, []string{"cancelled"}, f.notifier.kinds())
}

func TestMarkPaid_ReactivatesSuspendedTenant(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "Bezirk Nord", false)

	invoice, err := f.svc.CreateForTenant(context.Background(), tenant.ID, clubdomain.IntervalMonthly)
	require.NoError(t, err)
	_, err = f.svc.MarkSent(context.Background(), invoice.ID, false)
	require.NoError(t, err)
	_, err = f.tenants.Suspend(context.Background(), tenant.ID, "unpaid")
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(context.Background(), invoice.ID, domain.MarkPaidRequest{})
	require.NoError(t, err)
	reloaded, err := f.tenants.Get(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsSuspended)
}

func TestInvoiceRequest_ApproveSwitchesClubToInvoice(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "VfL", false)
	club := f.club(t, tenant, "VfL Rebounds")
	plan := f.plan(t, tenant, "Verein", 25)
	ctx := scoped(tenant)

	vat := "DE123456789"
	submit := domain.SubmitInvoiceRequest{
		PlanID:          plan.ID,
		BillingInterval: "yearly",
		BillingName:     "VfL Rebounds e.V.",
		BillingEmail:    "finanzen@vfl.de",
		BillingAddress:  map[string]any{"street": "Hallenweg 1", "postal_code": "12345", "city": "Musterstadt"},
		VATNumber:       &vat,
	}
	request, err := f.svc.SubmitRequest(ctx, club.ID, submit)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, request.Status)

	_, err = f.svc.SubmitRequest(ctx, club.ID, submit)
	assert.ErrorIs(t, err, domain.ErrRequestPending)

	invoice, err := f.svc.ApproveRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, "VfL Rebounds e.V.", invoice.BillingName)
	assert.Equal(t, "finanzen@vfl.de", invoice.BillingEmail)
	require.NotNil(t, invoice.VATNumber)
	assert.Equal(t, vat, *invoice.VATNumber)
	assert.Equal(t, "yearly", invoice.BillingInterval)
	assert.Equal(t, "270.00", invoice.NetAmount.StringFixed(2))

	approved, err := f.svc.GetRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, approved.Status)
	require.NotNil(t, approved.InvoiceID)
	assert.Equal(t, invoice.ID, *approved.InvoiceID)

	switched, err := f.clubs.Get(ctx, tenant.ID, club.ID)
	require.NoError(t, err)
	assert.True(t, switched.PaysViaInvoice())
	assert.Equal(t, "VfL Rebounds e.V.", switched.BillingName())

	_, err = f.svc.ApproveRequest(ctx, request.ID)
	assert.ErrorIs(t, err, domain.ErrRequestProcessed)
	_, err = f.svc.RejectRequest(ctx, request.ID, "spät")
	assert.ErrorIs(t, err, domain.ErrRequestProcessed)
}

func TestInvoiceRequest_Reject(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "BV", false)
	club := f.club(t, tenant, "BV Dunkers")
	plan := f.plan(t, tenant, "Mini", 10)
	ctx := scoped(tenant)

	request, err := f.svc.SubmitRequest(ctx, club.ID, domain.SubmitInvoiceRequest{
		PlanID:       plan.ID,
		BillingName:  "BV Dunkers",
		BillingEmail: "kasse@bv.de",
	})
	require.NoError(t, err)

	_, err = f.svc.RejectRequest(ctx, request.ID, "")
	assert.ErrorIs(t, err, domain.ErrRejectionReason)
	rejected, err := f.svc.RejectRequest(ctx, request.ID, "Bitte SEPA nutzen")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, rejected.Status)
	require.NotNil(t, rejected.ProcessedBy)
	assert.Equal(t, "user-1", *rejected.ProcessedBy)

	pending, err := f.svc.ListRequests(ctx, domain.RequestPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestList_PaginatesWithinTenant(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "TuS", false)
	other := f.tenant(t, "TuS Zwei", false)
	club := f.club(t, tenant, "TuS Jumpers")
	ctx := scoped(tenant)

	for range 3 {
		_, err := f.svc.Create(ctx, manual(club, 10))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	first, err := f.svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Invoices, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "CLUB-2024-00003", first.Invoices[0].Number)

	second, err := f.svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Invoices, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "CLUB-2024-00001", second.Invoices[0].Number)

	filtered, err := f.svc.List(ctx, domain.ListRequest{Search: "00002"})
	require.NoError(t, err)
	require.Len(t, filtered.Invoices, 1)

	foreign, err := f.svc.List(scoped(other), domain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, foreign.Invoices)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "SC", false)
	club := f.club(t, tenant, "SC Ballers")
	ctx := scoped(tenant)

	paid, err := f.svc.Create(ctx, manual(club, 100))
	require.NoError(t, err)
	_, err = f.svc.MarkSent(ctx, paid.ID, false)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, paid.ID, domain.MarkPaidRequest{})
	require.NoError(t, err)

	open, err := f.svc.Create(ctx, manual(club, 10))
	require.NoError(t, err)
	_, err = f.svc.MarkSent(ctx, open.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, manual(club, 5))
	require.NoError(t, err)

	stats, err := f.svc.Statistics(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.Draft)
	assert.EqualValues(t, 1, stats.Sent)
	assert.EqualValues(t, 1, stats.Paid)
	assert.Equal(t, "119.00", stats.PaidThisMonth.StringFixed(2))
	assert.Equal(t, "11.90", stats.PendingAmount.StringFixed(2))
	assert.True(t, stats.OverdueAmount.IsZero())
}

func TestDunningListings(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "ESV", false)
	club := f.club(t, tenant, "ESV Rockets")
	ctx := scoped(tenant)

	invoice, err := f.svc.Create(ctx, manual(club, 10))
	require.NoError(t, err)
	_, err = f.svc.MarkSent(ctx, invoice.ID, false)
	require.NoError(t, err)

	due, err := f.svc.ListSentPastDue(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	f.clock.AdvanceDays(15)
	due, err = f.svc.ListSentPastDue(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	other := f.tenant(t, "TSV", false)
	due, err = f.svc.ListSentPastDue(scoped(other), 0)
	require.NoError(t, err)
	assert.Empty(t, due)
	due, err = f.svc.ListSentPastDue(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	_, err = f.svc.MarkOverdue(ctx, invoice.ID)
	require.NoError(t, err)
	reminders, err := f.svc.ListOverdueForReminder(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, reminders, 1)

	suspend, err := f.svc.ListOverdueForSuspension(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, suspend)
	f.clock.AdvanceDays(30)
	suspend, err = f.svc.ListOverdueForSuspension(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, suspend, 1)
}

func TestListOverdueForSuspension_ComparesCalendarDays(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "BC Hafen", false)
	club := f.club(t, tenant, "BC Hafen Baskets")
	ctx := scoped(tenant)

	invoice, err := f.svc.Create(ctx, manual(club, 10))
	require.NoError(t, err)
	invoice, err = f.svc.MarkSent(ctx, invoice.ID, false)
	require.NoError(t, err)
	f.clock.Set(invoice.DueDate.AddDate(0, 0, 1))
	_, err = f.svc.MarkOverdue(ctx, invoice.ID)
	require.NoError(t, err)

	f.clock.Set(invoice.DueDate.AddDate(0, 0, 29))
	suspend, err := f.svc.ListOverdueForSuspension(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, suspend)

	// the cutoff day counts even before the due time of day is reached
	f.clock.Set(invoice.DueDate.AddDate(0, 0, 30).Add(-time.Hour))
	suspend, err = f.svc.ListOverdueForSuspension(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, suspend, 1)
}

func TestRenderHTML(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant(t, "Kleinverein", true)
	club := f.club(t, tenant, "Kleinverein Korb")
	ctx := scoped(tenant)

	invoice, err := f.svc.Create(ctx, manual(club, 42))
	require.NoError(t, err)

	html, err := f.svc.RenderHTML(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Contains(t, html, invoice.Number)
	assert.Contains(t, html, "§ 19 UStG")
	assert.Contains(t, html, "42,00 EUR")
	assert.Contains(t, html, "Kleinverein Korb")
}
