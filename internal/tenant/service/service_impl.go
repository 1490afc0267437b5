package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"github.com/lukasmk87/basketmanager/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxSlugAttempts = 20

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Billing  *config.BillingConfigHolder
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	billing  *config.BillingConfigHolder
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tenant.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		billing:  p.Billing,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Tenant, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, domain.ErrInvalidName
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	tier := req.Tier
	if tier == "" {
		tier = domain.TierFree
	}
	if !tier.Valid() {
		return nil, domain.ErrInvalidTier
	}
	locale := strings.ToLower(strings.TrimSpace(req.Locale))
	if locale == "" {
		locale = "de"
	}

	now := s.clock.Now()
	tenant := &domain.Tenant{
		ID:               s.genID.Generate(),
		Name:             req.Name,
		SubscriptionTier: tier,
		IsActive:         true,
		IsSmallBusiness:  req.IsSmallBusiness,
		PaysViaInvoice:   req.PaysViaInvoice,
		BillingName:      strings.TrimSpace(req.BillingName),
		BillingEmail:     strings.TrimSpace(req.BillingEmail),
		BillingAddress:   datatypes.JSONMap(req.BillingAddress),
		Locale:           locale,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if tier == domain.TierFree {
		trialEnds := now.AddDate(0, 0, s.billing.Get().TrialDays)
		tenant.TrialEndsAt = &trialEnds
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenantSlug, err := s.uniqueSlug(ctx, tx, req.Name)
		if err != nil {
			return err
		}
		tenant.Slug = tenantSlug
		if err := s.repo.Insert(ctx, tx, tenant); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}
		return s.audit(ctx, tx, tenant.ID, "tenant.create", map[string]any{
			"slug": tenant.Slug,
			"tier": string(tenant.SubscriptionTier),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("tenant created", zap.String("tenant_id", tenant.ID.String()), zap.String("slug", tenant.Slug))
	return tenant, nil
}

func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, name string) (string, error) {
	base := slug.MakeLang(name, "de")
	if base == "" {
		base = "tenant"
	}
	candidate := base
	for attempt := 2; attempt <= maxSlugAttempts+1; attempt++ {
		existing, err := s.repo.FindBySlug(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
	return "", domain.ErrSlugTaken
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	tenant, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrNotFound
	}
	return tenant, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Tenant, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) UpdateBilling(ctx context.Context, id snowflake.ID, req domain.UpdateBillingRequest) (*domain.Tenant, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.TaxRate != nil && (req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(decimal.NewFromInt(100))) {
		return nil, domain.ErrInvalidTaxRate
	}

	var updated *domain.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if tenant == nil {
			return domain.ErrNotFound
		}

		if req.IsSmallBusiness != nil {
			tenant.IsSmallBusiness = *req.IsSmallBusiness
		}
		if req.PaysViaInvoice != nil {
			tenant.PaysViaInvoice = *req.PaysViaInvoice
		}
		if req.BillingName != nil {
			tenant.BillingName = strings.TrimSpace(*req.BillingName)
		}
		if req.BillingEmail != nil {
			tenant.BillingEmail = strings.TrimSpace(*req.BillingEmail)
		}
		if req.VATNumber != nil {
			vat := strings.TrimSpace(*req.VATNumber)
			if vat == "" {
				tenant.VATNumber = nil
			} else {
				tenant.VATNumber = &vat
			}
		}
		switch {
		case req.ClearTaxRate:
			tenant.TaxRate = decimal.NullDecimal{}
		case req.TaxRate != nil:
			tenant.TaxRate = decimal.NewNullDecimal(req.TaxRate.Round(2))
		}
		tenant.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateBilling(ctx, tx, tenant); err != nil {
			return err
		}
		updated = tenant
		return s.audit(ctx, tx, tenant.ID, "tenant.update_billing", map[string]any{
			"is_small_business": tenant.IsSmallBusiness,
			"pays_via_invoice":  tenant.PaysViaInvoice,
			"billing_email":     tenant.BillingEmail,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Suspend(ctx context.Context, id snowflake.ID, reason string) (*domain.Tenant, error) {
	reason = strings.TrimSpace(reason)
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	return s.setSuspended(ctx, id, true, reasonPtr, "tenant.suspend")
}

func (s *Service) Reactivate(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	return s.setSuspended(ctx, id, false, nil, "tenant.reactivate")
}

func (s *Service) setSuspended(ctx context.Context, id snowflake.ID, suspended bool, reason *string, action string) (*domain.Tenant, error) {
	var result *domain.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if tenant == nil {
			return domain.ErrNotFound
		}
		now := s.clock.Now()
		if err := s.repo.SetSuspended(ctx, tx, id, suspended, reason, now); err != nil {
			return err
		}
		tenant.IsSuspended = suspended
		tenant.SuspensionReason = reason
		tenant.UpdatedAt = now
		result = tenant

		metadata := map[string]any{}
		if reason != nil {
			metadata["reason"] = *reason
		}
		return s.audit(ctx, tx, id, action, metadata)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("tenant suspension changed",
		zap.String("tenant_id", id.String()),
		zap.Bool("suspended", suspended),
	)
	return result, nil
}

func (s *Service) EnsureAccess(ctx context.Context, tenant *domain.Tenant) error {
	if tenant == nil {
		return domain.ErrNotFound
	}
	if !tenant.IsActive || tenant.IsSuspended {
		return domain.ErrTenantSuspended
	}
	now := s.clock.Now()
	if tenant.TrialExpired(now) && !tenant.HasActiveSubscription(now) {
		return domain.ErrTrialExpired
	}
	return nil
}

func (s *Service) EnsureClubQuota(ctx context.Context, conn *gorm.DB, tenant *domain.Tenant) error {
	if tenant == nil {
		return domain.ErrNotFound
	}
	limit := tenant.SubscriptionTier.Limits().MaxClubs
	if limit < 0 {
		return nil
	}
	if conn == nil {
		conn = s.db
	}
	count, err := s.repo.CountClubs(ctx, conn, tenant.ID)
	if err != nil {
		return err
	}
	if count+1 > int64(limit) {
		return domain.ErrQuotaExceeded
	}
	return nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, action string, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	targetID := tenantID.String()
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		TenantID:   &tenantID,
		Action:     action,
		TargetType: "tenant",
		TargetID:   &targetID,
		Metadata:   metadata,
	})
}

