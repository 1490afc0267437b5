package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	"github.com/lukasmk87/basketmanager/internal/clock"
	"github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/config"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"github.com/lukasmk87/basketmanager/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Billing  *config.BillingConfigHolder
	Tenants  tenantdomain.Service `optional:"true"`
	AuditSvc auditdomain.Service  `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	billing  *config.BillingConfigHolder
	tenants  tenantdomain.Service
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("club.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		billing:  p.Billing,
		tenants:  p.Tenants,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, tenantID snowflake.ID, req domain.CreateClubRequest) (*domain.Club, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, domain.ErrInvalidName
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	paymentMethod := req.PaymentMethodType
	if paymentMethod == "" {
		paymentMethod = domain.PaymentMethodInvoice
	}

	now := s.clock.Now()
	club := &domain.Club{
		ID:                 s.genID.Generate(),
		TenantID:           tenantID,
		Name:               req.Name,
		Email:              strings.TrimSpace(req.Email),
		BillingEmail:       strings.TrimSpace(req.BillingEmail),
		InvoiceBillingName: strings.TrimSpace(req.InvoiceBillingName),
		BillingAddress:     datatypes.JSONMap(req.BillingAddress),
		SubscriptionStatus: domain.StatusTrialing,
		BillingInterval:    domain.IntervalMonthly,
		PaymentMethodType:  paymentMethod,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if vat := strings.TrimSpace(req.InvoiceVATNumber); vat != "" {
		club.InvoiceVATNumber = &vat
	}

	var tenant *tenantdomain.Tenant
	if s.tenants != nil {
		var err error
		if tenant, err = s.tenants.Get(ctx, tenantID); err != nil {
			return nil, err
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tenant != nil {
			if err := s.tenants.EnsureClubQuota(ctx, tx, tenant); err != nil {
				return err
			}
		}

		trialDays := s.billing.Get().TrialDays
		if req.PlanID != nil {
			plan, err := s.scopedPlan(ctx, tx, tenantID, *req.PlanID)
			if err != nil {
				return err
			}
			if !plan.IsActive {
				return domain.ErrPlanInactive
			}
			club.PlanID = &plan.ID
			club.BillingInterval = plan.BillingInterval
			if plan.TrialPeriodDays > 0 {
				trialDays = plan.TrialPeriodDays
			}
		}
		if trialDays > 0 {
			trialEnds := now.AddDate(0, 0, trialDays)
			club.TrialEndsAt = &trialEnds
		}

		if err := s.repo.InsertClub(ctx, tx, club); err != nil {
			return err
		}
		return s.audit(ctx, tx, tenantID, "club.create", club.ID, map[string]any{"name": club.Name})
	})
	if err != nil {
		return nil, err
	}
	return club, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id snowflake.ID) (*domain.Club, error) {
	club, err := s.repo.FindClub(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if club == nil || club.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return club, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]domain.Club, error) {
	return s.repo.ListClubs(ctx, s.db, tenantID)
}

func (s *Service) CreatePlan(ctx context.Context, tenantID snowflake.ID, req domain.CreatePlanRequest) (*domain.Plan, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, domain.ErrInvalidName
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}
	interval := req.BillingInterval
	if interval == "" {
		interval = domain.IntervalMonthly
	}
	if !interval.Valid() {
		return nil, domain.ErrInvalidInterval
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.billing.Get().Currency
	}

	now := s.clock.Now()
	plan := &domain.Plan{
		ID:              s.genID.Generate(),
		TenantID:        tenantID,
		Name:            req.Name,
		Slug:            slug.MakeLang(req.Name, "de"),
		Description:     strings.TrimSpace(req.Description),
		Price:           req.Price.Round(2),
		Currency:        currency,
		BillingInterval: interval,
		TrialPeriodDays: req.TrialPeriodDays,
		IsActive:        true,
		IsDefault:       req.IsDefault,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindPlanBySlug(ctx, tx, tenantID, plan.Slug)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrPlanSlugTaken
		}
		if plan.IsDefault {
			if err := s.repo.ClearDefaultPlan(ctx, tx, tenantID); err != nil {
				return err
			}
		}
		if err := s.repo.InsertPlan(ctx, tx, plan); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrPlanSlugTaken
			}
			return err
		}
		return s.audit(ctx, tx, tenantID, "plan.create", plan.ID, map[string]any{
			"slug":  plan.Slug,
			"price": plan.Price.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) GetPlan(ctx context.Context, tenantID, id snowflake.ID) (*domain.Plan, error) {
	return s.scopedPlan(ctx, s.db, tenantID, id)
}

func (s *Service) scopedPlan(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*domain.Plan, error) {
	plan, err := s.repo.FindPlan(ctx, conn, id)
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.TenantID != tenantID {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) ListPlans(ctx context.Context, tenantID snowflake.ID) ([]domain.Plan, error) {
	return s.repo.ListPlans(ctx, s.db, tenantID)
}

func (s *Service) ApplyTrialExtension(ctx context.Context, conn *gorm.DB, club *domain.Club, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, domain.ErrInvalidDays
	}
	conn = s.conn(conn)
	now := s.clock.Now()

	base := now
	if club.TrialEndsAt != nil && club.TrialEndsAt.After(now) {
		base = *club.TrialEndsAt
	}
	trialEnds := base.AddDate(0, 0, days)
	club.TrialEndsAt = &trialEnds
	if club.SubscriptionStatus != domain.StatusActive {
		club.SubscriptionStatus = domain.StatusTrialing
	}
	club.UpdatedAt = now

	if err := s.repo.UpdateSubscription(ctx, conn, club); err != nil {
		return time.Time{}, err
	}
	if err := s.LogEvent(ctx, conn, &domain.SubscriptionEvent{
		TenantID:  club.TenantID,
		ClubID:    club.ID,
		EventType: domain.EventTrialExtended,
		PlanID:    club.PlanID,
		Metadata: map[string]any{
			"days":          days,
			"trial_ends_at": trialEnds.Format(time.RFC3339),
		},
	}); err != nil {
		return time.Time{}, err
	}
	return trialEnds, nil
}

func (s *Service) ActivateSubscription(ctx context.Context, conn *gorm.DB, club *domain.Club, plan *domain.Plan, interval domain.BillingInterval) error {
	if plan == nil {
		return domain.ErrPlanNotFound
	}
	if interval == "" {
		interval = plan.BillingInterval
	}
	if !interval.Valid() {
		return domain.ErrInvalidInterval
	}
	conn = s.conn(conn)
	now := s.clock.Now()

	periodEnd := now.AddDate(0, interval.Months(), 0)
	previousPlan := club.PlanID

	club.PlanID = &plan.ID
	club.BillingInterval = interval
	club.SubscriptionStatus = domain.StatusActive
	club.PaymentMethodType = domain.PaymentMethodInvoice
	if club.SubscriptionStartedAt == nil {
		club.SubscriptionStartedAt = &now
	}
	club.CurrentPeriodStart = &now
	club.CurrentPeriodEnd = &periodEnd
	club.UpdatedAt = now

	if err := s.repo.UpdateSubscription(ctx, conn, club); err != nil {
		return err
	}

	event := &domain.SubscriptionEvent{
		TenantID:  club.TenantID,
		ClubID:    club.ID,
		EventType: domain.EventSubscriptionCreated,
		PlanID:    &plan.ID,
		MRRChange: decimal.NewNullDecimal(plan.Price),
		Metadata: map[string]any{
			"billing_interval":   string(interval),
			"current_period_end": periodEnd.Format(time.RFC3339),
		},
	}
	if previousPlan != nil && *previousPlan != plan.ID {
		event.PlanID = previousPlan
		event.NewPlanID = &plan.ID
	}
	if err := s.LogEvent(ctx, conn, event); err != nil {
		return err
	}

	s.log.Info("club subscription activated",
		zap.String("club_id", club.ID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.String("interval", string(interval)),
	)
	return nil
}

func (s *Service) MarkPendingPayment(ctx context.Context, conn *gorm.DB, club *domain.Club) error {
	conn = s.conn(conn)
	club.SubscriptionStatus = domain.StatusPendingPayment
	club.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateSubscription(ctx, conn, club); err != nil {
		return err
	}
	return s.LogEvent(ctx, conn, &domain.SubscriptionEvent{
		TenantID:  club.TenantID,
		ClubID:    club.ID,
		EventType: domain.EventPendingPayment,
		PlanID:    club.PlanID,
	})
}

func (s *Service) SwitchToInvoice(ctx context.Context, conn *gorm.DB, club *domain.Club, details domain.BillingDetails) error {
	club.PaymentMethodType = domain.PaymentMethodInvoice
	if name := strings.TrimSpace(details.Name); name != "" {
		club.InvoiceBillingName = name
	}
	if email := strings.TrimSpace(details.Email); email != "" {
		club.BillingEmail = email
	}
	if details.Address != nil {
		club.BillingAddress = datatypes.JSONMap(details.Address)
	}
	if details.VATNumber != nil {
		club.InvoiceVATNumber = details.VATNumber
	}
	club.UpdatedAt = s.clock.Now()
	return s.repo.UpdateBillingDetails(ctx, s.conn(conn), club)
}

func (s *Service) Suspend(ctx context.Context, conn *gorm.DB, club *domain.Club, metadata map[string]any) error {
	conn = s.conn(conn)
	club.SubscriptionStatus = domain.StatusSuspended
	club.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateSubscription(ctx, conn, club); err != nil {
		return err
	}

	reason := domain.CancellationReasonPaymentFailed
	event := &domain.SubscriptionEvent{
		TenantID:           club.TenantID,
		ClubID:             club.ID,
		EventType:          domain.EventSubscriptionCanceled,
		PlanID:             club.PlanID,
		CancellationReason: &reason,
		Metadata:           metadata,
	}
	if club.PlanID != nil {
		if plan, err := s.repo.FindPlan(ctx, conn, *club.PlanID); err == nil && plan != nil {
			event.MRRChange = decimal.NewNullDecimal(plan.Price.Neg())
		}
	}
	if err := s.LogEvent(ctx, conn, event); err != nil {
		return err
	}

	s.log.Warn("club subscription suspended", zap.String("club_id", club.ID.String()))
	return nil
}

func (s *Service) LogEvent(ctx context.Context, conn *gorm.DB, event *domain.SubscriptionEvent) error {
	if event.ID == 0 {
		event.ID = s.genID.Generate()
	}
	now := s.clock.Now()
	if event.EventDate.IsZero() {
		event.EventDate = now
	}
	event.CreatedAt = now
	return s.repo.InsertEvent(ctx, s.conn(conn), event)
}

func (s *Service) ListEvents(ctx context.Context, tenantID, clubID snowflake.ID) ([]domain.SubscriptionEvent, error) {
	if _, err := s.Get(ctx, tenantID, clubID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, s.db, clubID)
}

func (s *Service) conn(conn *gorm.DB) *gorm.DB {
	if conn == nil {
		return s.db
	}
	return conn
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	target := targetID.String()
	targetType := strings.SplitN(action, ".", 2)[0]
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		TenantID:   &tenantID,
		Action:     action,
		TargetType: targetType,
		TargetID:   &target,
		Metadata:   metadata,
	})
}
