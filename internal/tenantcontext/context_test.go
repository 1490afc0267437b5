package tenantcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestTenantIDFromContext(t *testing.T) {
	_, ok := TenantIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithTenantID(context.Background(), snowflake.ID(42))
	id, ok := TenantIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	_, ok = TenantIDFromContext(WithTenantID(context.Background(), 0))
	assert.False(t, ok)
}

func TestActorFromContext(t *testing.T) {
	assert.Nil(t, ActorID(context.Background()))

	ctx := WithActor(context.Background(), Actor{ID: "user-7", Role: "tenant_admin"})
	actor, ok := ActorFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tenant_admin", actor.Role)
	assert.Equal(t, "user-7", *ActorID(ctx))

	_, ok = ActorFromContext(WithActor(context.Background(), Actor{Role: "club_admin"}))
	assert.False(t, ok)
}
