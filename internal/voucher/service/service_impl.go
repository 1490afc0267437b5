package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	"github.com/lukasmk87/basketmanager/internal/clock"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/observability/metrics"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
	Clubs    clubdomain.Service
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	billing  *config.BillingConfigHolder
	clubs    clubdomain.Service
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("voucher.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		billing:  p.Billing,
		clubs:    p.Clubs,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) currency() string {
	return s.billing.Get().Currency
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, tenantID *snowflake.ID, action string, voucherID snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	target := voucherID.String()
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     action,
		TargetType: "voucher",
		TargetID:   &target,
		Metadata:   metadata,
	})
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func actorID(ctx context.Context) *string {
	return tenantcontext.ActorID(ctx)
}
