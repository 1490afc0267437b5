package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const globalDomain = "*"

type Service interface {
	// Authorize checks the context actor against object/action in the tenant's
	// domain. A nil tenant asks for a cross-tenant permission.
	Authorize(ctx context.Context, tenantID *snowflake.ID, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer builds the enforcer on the gorm adapter and seeds default policies.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return seed(enforcer)
}

// NewMemoryEnforcer builds a seeded enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	return seed(enforcer)
}

func seed(enforcer *casbin.SyncedEnforcer) (*casbin.SyncedEnforcer, error) {
	for _, policy := range defaultPolicies() {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return nil, err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return nil, err
		}
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, tenantID *snowflake.ID, object, action string) error {
	actor, ok := tenantcontext.ActorFromContext(ctx)
	if !ok {
		return ErrInvalidActor
	}
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if !knownRole(role) {
		return ErrUnknownRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}
	if tenantID != nil && *tenantID == 0 {
		return ErrInvalidTenant
	}
	// only platform roles act outside a tenant
	if tenantID == nil && role != RoleSuperAdmin && role != RoleSystem {
		s.audit(ctx, nil, "authorization.denied", object, action)
		return ErrForbidden
	}

	subject := subjectFor(actor.ID, role)
	domain := domainFor(tenantID)

	// super admins hold their role across every tenant
	groupDomain := domain
	if role == RoleSuperAdmin {
		groupDomain = globalDomain
	}
	if err := s.ensureGrouping(subject, "role:"+role, groupDomain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("domain", domain),
			zap.String("action", action),
		)
		s.audit(ctx, tenantID, "authorization.denied", object, action)
		return ErrForbidden
	}
	if grantAudited(action) {
		s.audit(ctx, tenantID, "authorization.granted", object, action)
	}
	return nil
}

// ensureGrouping keeps exactly one role per subject and domain. A subject
// grouped into a tenant loses any global grouping left from an earlier role.
func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	domains := []string{domain}
	if domain != globalDomain {
		domains = append(domains, globalDomain)
	}
	for _, d := range domains {
		existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", d)
		if err != nil {
			return err
		}
		for _, rule := range existing {
			if len(rule) < 3 || (rule[1] == roleName && rule[2] == domain) {
				continue
			}
			if _, err := s.enforcer.RemoveGroupingPolicy(rule); err != nil {
				return err
			}
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil || has {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) audit(ctx context.Context, tenantID *snowflake.ID, auditAction, object, action string) {
	if s.auditSvc == nil {
		return
	}
	target := object
	if err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditAction,
		TargetType: "authorization",
		TargetID:   &target,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	}); err != nil {
		s.log.Warn("failed to audit authorization decision", zap.Error(err))
	}
}

func subjectFor(actorID, role string) string {
	if role == RoleSystem {
		return RoleSystem
	}
	return "user:" + strings.TrimSpace(actorID)
}

func domainFor(tenantID *snowflake.ID) string {
	if tenantID == nil {
		return globalDomain
	}
	return fmt.Sprintf("tenant:%s", tenantID.String())
}
