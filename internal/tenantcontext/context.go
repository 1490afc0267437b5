package tenantcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Header carries the active tenant on every tenant-scoped request.
const Header = "X-Tenant-ID"

type tenantKey struct{}

type actorKey struct{}

// Actor is the caller identity asserted by the upstream gateway.
type Actor struct {
	ID   string
	Role string
}

// WithTenantID stores the tenant ID in the context.
func WithTenantID(ctx context.Context, tenantID snowflake.ID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantIDFromContext returns the tenant ID from context, if set.
func TenantIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	switch typed := ctx.Value(tenantKey{}).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || strings.TrimSpace(actor.ID) == "" {
		return Actor{}, false
	}
	return actor, true
}

// ActorID returns a pointer to the actor id for audit columns, nil when anonymous.
func ActorID(ctx context.Context) *string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil
	}
	id := actor.ID
	return &id
}
