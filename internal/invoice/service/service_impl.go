package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	"github.com/lukasmk87/basketmanager/internal/clock"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/i18n"
	"github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/invoice/render"
	"github.com/lukasmk87/basketmanager/internal/observability/metrics"
	taxdomain "github.com/lukasmk87/basketmanager/internal/tax/domain"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	voucherdomain "github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Billing     *config.BillingConfigHolder
	Tenants     tenantdomain.Service
	Clubs       clubdomain.Service
	TaxResolver taxdomain.Resolver
	Vouchers    voucherdomain.Service `optional:"true"`
	Notifier    domain.Notifier       `optional:"true"`
	Renderer    render.Renderer       `optional:"true"`
	AuditSvc    auditdomain.Service   `optional:"true"`
	Metrics     *metrics.Metrics      `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	billing  *config.BillingConfigHolder
	tenants  tenantdomain.Service
	clubs    clubdomain.Service
	taxes    taxdomain.Resolver
	vouchers voucherdomain.Service
	notifier domain.Notifier
	renderer render.Renderer
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		billing:  p.Billing,
		tenants:  p.Tenants,
		clubs:    p.Clubs,
		taxes:    p.TaxResolver,
		vouchers: p.Vouchers,
		notifier: p.Notifier,
		renderer: p.Renderer,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

// billable is the resolved recipient of an invoice together with the tax
// treatment and numbering of its issuer.
type billable struct {
	typ           domain.BillableType
	id            snowflake.ID
	tenantID      snowflake.ID
	tenant        *tenantdomain.Tenant
	club          *clubdomain.Club
	prefix        string
	rate          decimal.Decimal
	smallBusiness bool
	locale        i18n.Locale
}

// scope returns the tenant the caller is restricted to, nil for system callers.
func scope(ctx context.Context) *snowflake.ID {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil
	}
	return &tenantID
}

func inScope(ctx context.Context, tenantID snowflake.ID) bool {
	scoped := scope(ctx)
	return scoped == nil || *scoped == tenantID
}

func (s *Service) resolveBillable(ctx context.Context, typ domain.BillableType, id snowflake.ID) (*billable, error) {
	switch typ {
	case domain.BillableClub:
		scoped := scope(ctx)
		if scoped == nil {
			return nil, domain.ErrInvalidTenant
		}
		club, err := s.clubs.Get(ctx, *scoped, id)
		if err != nil {
			if errors.Is(err, clubdomain.ErrNotFound) {
				return nil, domain.ErrBillableNotFound
			}
			return nil, err
		}
		return s.clubBillable(ctx, club)
	case domain.BillableTenant:
		if !inScope(ctx, id) {
			return nil, domain.ErrBillableNotFound
		}
		return s.tenantBillable(ctx, id)
	default:
		return nil, domain.ErrInvalidBillableType
	}
}

// clubBillable bills a club on behalf of its tenant, using the tenant's rate
// and small-business status.
func (s *Service) clubBillable(ctx context.Context, club *clubdomain.Club) (*billable, error) {
	tenant, err := s.tenants.Get(ctx, club.TenantID)
	if err != nil {
		return nil, err
	}
	rate, err := s.taxes.ResolveRate(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return &billable{
		typ:           domain.BillableClub,
		id:            club.ID,
		tenantID:      tenant.ID,
		tenant:        tenant,
		club:          club,
		prefix:        s.billing.Get().NumberPrefixes.Club,
		rate:          rate,
		smallBusiness: tenant.IsSmallBusiness,
		locale:        localeOf(tenant),
	}, nil
}

// tenantBillable bills a tenant for the platform subscription at the platform rate.
func (s *Service) tenantBillable(ctx context.Context, tenantID snowflake.ID) (*billable, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrNotFound) {
			return nil, domain.ErrBillableNotFound
		}
		return nil, err
	}
	return &billable{
		typ:      domain.BillableTenant,
		id:       tenant.ID,
		tenantID: tenant.ID,
		tenant:   tenant,
		prefix:   s.billing.Get().NumberPrefixes.Tenant,
		rate:     decimal.NewFromFloat(s.billing.Get().DefaultTaxRate),
		locale:   localeOf(tenant),
	}, nil
}

// fill copies the recipient fields of b onto invoice.
func (b *billable) fill(invoice *domain.Invoice) {
	invoice.TenantID = b.tenantID
	invoice.BillableType = b.typ
	invoice.BillableID = b.id
	invoice.IsSmallBusiness = b.smallBusiness
	if b.club != nil {
		invoice.BillingName = b.club.BillingName()
		invoice.BillingEmail = b.club.BillingContact()
		invoice.BillingAddress = b.club.BillingAddress
		invoice.VATNumber = b.club.InvoiceVATNumber
		return
	}
	invoice.BillingName = b.tenant.BillingRecipient()
	invoice.BillingEmail = b.tenant.BillingEmail
	invoice.BillingAddress = b.tenant.BillingAddress
	invoice.VATNumber = b.tenant.VATNumber
}

func localeOf(tenant *tenantdomain.Tenant) i18n.Locale {
	if tenant == nil || tenant.Locale == "" {
		return i18n.Default
	}
	return i18n.Locale(tenant.Locale)
}

// load returns the invoice when it exists and is visible to the caller.
func (s *Service) load(ctx context.Context, conn *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Invoice, error) {
	find := s.repo.FindByID
	if forUpdate {
		find = s.repo.FindForUpdate
	}
	invoice, err := find(ctx, conn, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil || !inScope(ctx, invoice.TenantID) {
		return nil, domain.ErrNotFound
	}
	return invoice, nil
}

// logClubEvent appends to the club's subscription log; tenant invoices have none.
func (s *Service) logClubEvent(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, eventType clubdomain.EventType, extra map[string]any) error {
	if invoice.BillableType != domain.BillableClub {
		return nil
	}
	metadata := map[string]any{
		"invoice_id":     invoice.ID.String(),
		"invoice_number": invoice.Number,
		"gross_amount":   invoice.GrossAmount.StringFixed(2),
	}
	for key, value := range extra {
		metadata[key] = value
	}
	return s.clubs.LogEvent(ctx, tx, &clubdomain.SubscriptionEvent{
		TenantID:  invoice.TenantID,
		ClubID:    invoice.BillableID,
		EventType: eventType,
		PlanID:    invoice.PlanID,
		Metadata:  metadata,
	})
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, invoice *domain.Invoice, extra map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	metadata := map[string]any{
		"invoice_number": invoice.Number,
		"billable_type":  string(invoice.BillableType),
		"billable_id":    invoice.BillableID.String(),
		"status":         string(invoice.Status),
	}
	for key, value := range extra {
		metadata[key] = value
	}
	tenantID := invoice.TenantID
	target := invoice.ID.String()
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		TenantID:   &tenantID,
		Action:     action,
		TargetType: "invoice",
		TargetID:   &target,
		Metadata:   metadata,
	})
}

// notify runs a mail delivery after commit. Failures are logged, never returned.
func (s *Service) notify(invoice *domain.Invoice, kind string, send func(domain.Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := send(s.notifier); err != nil {
		s.log.Warn("invoice mail failed",
			zap.String("kind", kind),
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
	}
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(100))
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
