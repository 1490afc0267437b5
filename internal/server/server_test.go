package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	auditrepository "github.com/lukasmk87/basketmanager/internal/audit/repository"
	auditservice "github.com/lukasmk87/basketmanager/internal/audit/service"
	"github.com/lukasmk87/basketmanager/internal/authorization"
	"github.com/lukasmk87/basketmanager/internal/clock"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	clubrepository "github.com/lukasmk87/basketmanager/internal/club/repository"
	clubservice "github.com/lukasmk87/basketmanager/internal/club/service"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/dunning"
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/invoice/render"
	invoicerepository "github.com/lukasmk87/basketmanager/internal/invoice/repository"
	invoiceservice "github.com/lukasmk87/basketmanager/internal/invoice/service"
	"github.com/lukasmk87/basketmanager/internal/observability"
	"github.com/lukasmk87/basketmanager/internal/ratelimit"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	tenantrepository "github.com/lukasmk87/basketmanager/internal/tenant/repository"
	tenantservice "github.com/lukasmk87/basketmanager/internal/tenant/service"
	voucherdomain "github.com/lukasmk87/basketmanager/internal/voucher/domain"
	voucherrepository "github.com/lukasmk87/basketmanager/internal/voucher/repository"
	voucherservice "github.com/lukasmk87/basketmanager/internal/voucher/service"
	"github.com/lukasmk87/basketmanager/pkg/db/dbtest"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flatRate struct{}

func (flatRate) ResolveRate(context.Context, *tenantdomain.Tenant) (decimal.Decimal, error) {
	return decimal.NewFromInt(19), nil
}

func (flatRate) Invalidate(snowflake.ID) {}

type fixture struct {
	engine   *gin.Engine
	tenants  tenantdomain.Service
	clubs    clubdomain.Service
	vouchers voucherdomain.Service
	clock    *clock.FakeClock
}

type fixtureOptions struct {
	billing  config.BillingConfig
	redisURL string
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := dbtest.Open(t,
		&tenantdomain.Tenant{},
		&clubdomain.Club{},
		&clubdomain.Plan{},
		&clubdomain.SubscriptionEvent{},
		&voucherdomain.Voucher{},
		&voucherdomain.Redemption{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceRequest{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	if opts.billing.Currency == "" {
		opts.billing = config.DefaultBillingConfig()
	}
	billing := config.NewStaticBillingConfigHolder(opts.billing)
	log := zap.NewNop()

	audits := auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepository.NewRepository(),
	})
	tenants := tenantservice.NewService(tenantservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: tenantrepository.NewRepository(), Billing: billing,
	})
	clubs := clubservice.NewService(clubservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: clubrepository.NewRepository(), Billing: billing, Tenants: tenants,
	})
	vouchers := voucherservice.NewService(voucherservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: voucherrepository.NewRepository(), Billing: billing, Clubs: clubs,
	})
	invoices := invoiceservice.NewService(invoiceservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo:        invoicerepository.NewRepository(),
		Billing:     billing,
		Tenants:     tenants,
		Clubs:       clubs,
		TaxResolver: flatRate{},
		Vouchers:    vouchers,
		Renderer:    render.NewRenderer(),
	})
	processor := dunning.NewProcessor(dunning.Params{
		Log: log, Clock: clk, Billing: billing,
		Invoices: invoices, Clubs: clubs, Tenants: tenants,
	})
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, AuditSvc: audits})

	var bucket *ratelimit.TokenBucket
	if opts.redisURL != "" {
		client := redis.NewClient(&redis.Options{Addr: opts.redisURL})
		t.Cleanup(func() { _ = client.Close() })
		bucket = ratelimit.NewTokenBucket(client)
	}
	limiter := ratelimit.NewVoucherLimiter(ratelimit.VoucherLimiterParams{Log: log, Billing: billing, Bucket: bucket})

	engine := NewEngine(observability.Config{})
	NewServer(ServerParams{
		Gin:            engine,
		Log:            log,
		AuthzSvc:       authz,
		AuditSvc:       audits,
		TenantSvc:      tenants,
		ClubSvc:        clubs,
		VoucherSvc:     vouchers,
		InvoiceSvc:     invoices,
		Dunning:        processor,
		VoucherLimiter: limiter,
	})

	return &fixture{engine: engine, tenants: tenants, clubs: clubs, vouchers: vouchers, clock: clk}
}

type request struct {
	method   string
	path     string
	body     any
	tenantID snowflake.ID
	role     string
	language string
}

func (f *fixture) do(t *testing.T, r request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.tenantID != 0 {
		req.Header.Set(tenantcontext.Header, r.tenantID.String())
	}
	if r.role != "" {
		req.Header.Set(headerActorID, "user-1")
		req.Header.Set(headerActorRole, r.role)
	}
	if r.language != "" {
		req.Header.Set("Accept-Language", r.language)
	}

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	}
	return rec, payload
}

func errorField(payload map[string]any, key string) string {
	errObj, _ := payload["error"].(map[string]any)
	value, _ := errObj[key].(string)
	return value
}

func dataField(payload map[string]any, key string) string {
	data, _ := payload["data"].(map[string]any)
	value, _ := data[key].(string)
	return value
}

// club creates a basic tier tenant with one club and one plan.
func (f *fixture) club(t *testing.T, name string) (*tenantdomain.Tenant, *clubdomain.Club, *clubdomain.Plan) {
	t.Helper()
	ctx := context.Background()
	tenant, err := f.tenants.Create(ctx, tenantdomain.CreateRequest{Name: name, Tier: tenantdomain.TierBasic})
	require.NoError(t, err)
	club, err := f.clubs.Create(ctx, tenant.ID, clubdomain.CreateClubRequest{Name: name + " Baskets", BillingEmail: "kasse@example.de"})
	require.NoError(t, err)
	plan, err := f.clubs.CreatePlan(ctx, tenant.ID, clubdomain.CreatePlanRequest{Name: "Standard", Price: decimal.NewFromInt(30)})
	require.NoError(t, err)
	return tenant, club, plan
}

func (f *fixture) percentVoucher(t *testing.T, tenantID *snowflake.ID, code string) *voucherdomain.Voucher {
	t.Helper()
	percent := decimal.NewFromInt(20)
	voucher, err := f.vouchers.Create(context.Background(), voucherdomain.CreateRequest{
		TenantID:        tenantID,
		Code:            code,
		Name:            "Percent " + code,
		Type:            voucherdomain.TypePercent,
		DiscountPercent: &percent,
		DurationMonths:  3,
	})
	require.NoError(t, err)
	return voucher
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	rec, payload := f.do(t, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])
}

func TestTenantScope(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tenant, _, _ := f.club(t, "BC Nord")

	rec, payload := f.do(t, request{method: http.MethodGet, path: "/api/v1/clubs", role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tenant_required", errorField(payload, "code"))

	rec, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/clubs", tenantID: snowflake.ID(999), role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, payload = f.do(t, request{method: http.MethodGet, path: "/api/v1/clubs", tenantID: tenant.ID, role: authorization.RoleTenantAdmin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, payload["data"], 1)

	_, err := f.tenants.Suspend(context.Background(), tenant.ID, "unpaid_invoice")
	require.NoError(t, err)
	rec, payload = f.do(t, request{method: http.MethodGet, path: "/api/v1/clubs", tenantID: tenant.ID, role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "tenant_suspended", errorField(payload, "type"))
}

func TestTenantScope_TrialExpired(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tenant, err := f.tenants.Create(context.Background(), tenantdomain.CreateRequest{Name: "Freizeitliga", Tier: tenantdomain.TierFree})
	require.NoError(t, err)

	rec, _ := f.do(t, request{method: http.MethodGet, path: "/api/v1/tenant", tenantID: tenant.ID, role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusOK, rec.Code)

	f.clock.AdvanceDays(15)
	rec, payload := f.do(t, request{method: http.MethodGet, path: "/api/v1/tenant", tenantID: tenant.ID, role: authorization.RoleTenantAdmin, language: "en-US"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "trial_expired", errorField(payload, "type"))
	assert.Equal(t, "Your trial has expired. Please choose a subscription.", errorField(payload, "message"))
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tenant, _, _ := f.club(t, "TV Süd")
	body := map[string]any{"name": "Frühling", "type": "percent", "discount_percent": "10", "duration_months": 1}

	rec, payload := f.do(t, request{method: http.MethodPost, path: "/api/v1/vouchers", tenantID: tenant.ID, body: body})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Anmeldung erforderlich.", errorField(payload, "message"))

	rec, _ = f.do(t, request{method: http.MethodPost, path: "/api/v1/vouchers", tenantID: tenant.ID, role: authorization.RoleClubAdmin, body: body})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, request{method: http.MethodPost, path: "/api/v1/vouchers", tenantID: tenant.ID, role: "coach", body: body})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, payload = f.do(t, request{method: http.MethodPost, path: "/api/v1/vouchers", tenantID: tenant.ID, role: authorization.RoleTenantAdmin, body: body})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, tenant.ID.String(), jsonNumberString(payload, "tenant_id"))

	// tenant admins cannot reach cross-tenant routes
	rec, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/tenants", role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/tenants", role: authorization.RoleSuperAdmin})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func jsonNumberString(payload map[string]any, key string) string {
	data, _ := payload["data"].(map[string]any)
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return snowflake.ID(int64(v)).String()
	}
	return ""
}

func TestSystemVouchers_ReadOnlyForTenants(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tenant, _, _ := f.club(t, "MTV West")

	rec, payload := f.do(t, request{
		method: http.MethodPost, path: "/api/v1/admin/vouchers", role: authorization.RoleSuperAdmin,
		body: map[string]any{"code": "LIGA2024", "name": "Liga", "type": "percent", "discount_percent": "15", "duration_months": 6},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "LIGA2024", dataField(payload, "code"))
	system, err := f.vouchers.List(context.Background(), voucherdomain.ListFilter{Scope: voucherdomain.ScopeSystemWide})
	require.NoError(t, err)
	require.Len(t, system, 1)
	path := "/api/v1/vouchers/" + system[0].ID.String()

	rec, _ = f.do(t, request{method: http.MethodGet, path: path, tenantID: tenant.ID, role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, request{method: http.MethodPost, path: path + "/deactivate", tenantID: tenant.ID, role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	other := snowflake.ID(12345)
	foreign := f.percentVoucher(t, &other, "FREMD")
	rec, _ = f.do(t, request{method: http.MethodGet, path: "/api/v1/vouchers/" + foreign.ID.String(), tenantID: tenant.ID, role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedeemVoucher(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tenant, club, plan := f.club(t, "SC Hafen")
	f.percentVoucher(t, &tenant.ID, "HAFEN20")
	path := "/api/v1/clubs/" + club.ID.String() + "/vouchers"

	rec, payload := f.do(t, request{
		method: http.MethodPost, path: path + "/redeem", tenantID: tenant.ID, role: authorization.RoleClubAdmin,
		body: map[string]any{"code": "NOPE"}, language: "en",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_voucher", errorField(payload, "type"))
	assert.Equal(t, "not_found", errorField(payload, "code"))
	assert.Equal(t, "Voucher code not found.", errorField(payload, "message"))

	rec, payload = f.do(t, request{
		method: http.MethodPost, path: path + "/validate", tenantID: tenant.ID, role: authorization.RoleClubAdmin,
		body: map[string]any{"code": "hafen20", "plan_id": plan.ID.String()},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data, _ := payload["data"].(map[string]any)
	assert.Equal(t, true, data["valid"])

	rec, _ = f.do(t, request{
		method: http.MethodPost, path: path + "/redeem", tenantID: tenant.ID, role: authorization.RoleClubAdmin,
		body: map[string]any{"code": "HAFEN20", "plan_id": plan.ID.String()},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, payload = f.do(t, request{
		method: http.MethodPost, path: path + "/redeem", tenantID: tenant.ID, role: authorization.RoleClubAdmin,
		body: map[string]any{"code": "HAFEN20"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "already_redeemed", errorField(payload, "code"))
	assert.Equal(t, "Ihr Club hat diesen Voucher bereits eingelöst.", errorField(payload, "message"))

	rec, payload = f.do(t, request{method: http.MethodGet, path: path + "/history", tenantID: tenant.ID, role: authorization.RoleClubAdmin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, payload["data"], 1)
}

func TestVoucherRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.DefaultBillingConfig()
	cfg.Voucher.RateLimitRate = 1
	cfg.Voucher.RateLimitBurst = 1
	f := newFixture(t, fixtureOptions{billing: cfg, redisURL: mr.Addr()})
	tenant, club, _ := f.club(t, "ASC Berg")
	path := "/api/v1/clubs/" + club.ID.String() + "/vouchers/validate"

	rec, _ := f.do(t, request{method: http.MethodPost, path: path, tenantID: tenant.ID, role: authorization.RoleClubAdmin, body: map[string]any{"code": "GUESS1"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, payload := f.do(t, request{method: http.MethodPost, path: path, tenantID: tenant.ID, role: authorization.RoleClubAdmin, body: map[string]any{"code": "GUESS2"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorField(payload, "type"))
	assert.Equal(t, "club", rec.Header().Get("X-Rate-Limited-Reason"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestInvoiceLifecycle(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tenant, club, plan := f.club(t, "BG Altstadt")
	admin := func(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
		return f.do(t, request{method: method, path: path, tenantID: tenant.ID, role: authorization.RoleTenantAdmin, body: body})
	}

	rec, payload := admin(http.MethodPost, "/api/v1/clubs/"+club.ID.String()+"/invoices", map[string]any{"plan_id": plan.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, string(invoicedomain.StatusDraft), dataField(payload, "status"))
	invoiceID := jsonNumberString(payload, "id")
	require.NotEmpty(t, invoiceID)
	base := "/api/v1/invoices/" + invoiceID

	rec, payload = admin(http.MethodPost, base+"/pay", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", errorField(payload, "type"))

	rec, payload = admin(http.MethodPost, base+"/send", map[string]any{"send_email": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(invoicedomain.StatusSent), dataField(payload, "status"))

	rec, payload = admin(http.MethodPost, base+"/pay", map[string]any{"payment_reference": "SEPA-42"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(invoicedomain.StatusPaid), dataField(payload, "status"))

	rec, _ = admin(http.MethodPost, base+"/cancel", map[string]any{"reason": "Doppelt"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = admin(http.MethodGet, base+"/html", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), club.Name)

	// invoices of one tenant stay invisible to another
	other, _, _ := f.club(t, "Fremdverein")
	rec, _ = f.do(t, request{method: http.MethodGet, path: base, tenantID: other.ID, role: authorization.RoleTenantAdmin})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, payload = admin(http.MethodGet, "/api/v1/invoices/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats, _ := payload["data"].(map[string]any)
	assert.EqualValues(t, 1, stats["paid"])
}

func TestRunDunning(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	tenant, _, _ := f.club(t, "TSG Ost")

	rec, payload := f.do(t, request{method: http.MethodPost, path: "/api/v1/dunning/run", tenantID: tenant.ID, role: authorization.RoleTenantAdmin})
	require.Equal(t, http.StatusOK, rec.Code)
	data, _ := payload["data"].(map[string]any)
	assert.EqualValues(t, 0, data["marked_overdue"])

	rec, _ = f.do(t, request{method: http.MethodPost, path: "/api/v1/dunning/run", tenantID: tenant.ID, role: authorization.RoleClubAdmin})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMapError(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{ratelimit.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{tenantdomain.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded"},
		{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{invoicedomain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{voucherdomain.ErrCodeTaken, http.StatusConflict, "conflict"},
		{clubdomain.ErrPlanNotFound, http.StatusNotFound, "not_found"},
		{voucherdomain.ErrInvalidPercent, http.StatusBadRequest, "validation_error"},
		{context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(ctx, tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.typ, payload.Type, tc.err.Error())
	}
}
