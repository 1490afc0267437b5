package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lukasmk87/basketmanager/internal/i18n"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"

	contextTenantKey = "tenant"
)

// RequestContext stores the locale and the gateway-asserted actor on the request.
func (s *Server) RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := i18n.WithLocale(c.Request.Context(), i18n.Parse(c.GetHeader("Accept-Language")))

		actorID := strings.TrimSpace(c.GetHeader(headerActorID))
		if actorID != "" {
			ctx = tenantcontext.WithActor(ctx, tenantcontext.Actor{
				ID:   actorID,
				Role: strings.ToLower(strings.TrimSpace(c.GetHeader(headerActorRole))),
			})
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TenantScope resolves the tenant from X-Tenant-ID and rejects suspended or
// expired tenants before any handler runs.
func (s *Server) TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(tenantcontext.Header))
		if raw == "" {
			AbortWithError(c, ErrTenantRequired)
			return
		}
		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, ErrTenantRequired)
			return
		}

		ctx := c.Request.Context()
		tenant, err := s.tenantSvc.Get(ctx, tenantID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.tenantSvc.EnsureAccess(ctx, tenant); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextTenantKey, tenant)
		c.Request = c.Request.WithContext(tenantcontext.WithTenantID(ctx, tenantID))
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		ctx := c.Request.Context()
		if _, ok := tenantcontext.ActorFromContext(ctx); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var scope *snowflake.ID
		if tenantID, ok := tenantcontext.TenantIDFromContext(ctx); ok {
			scope = &tenantID
		}
		if err := s.authzSvc.Authorize(ctx, scope, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func currentTenant(c *gin.Context) (*tenantdomain.Tenant, bool) {
	value, ok := c.Get(contextTenantKey)
	if !ok {
		return nil, false
	}
	tenant, ok := value.(*tenantdomain.Tenant)
	return tenant, ok && tenant != nil
}

func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, invalidIDError(name)
	}
	return id, nil
}
