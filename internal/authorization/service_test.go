package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func actorCtx(id, role string) context.Context {
	return tenantcontext.WithActor(context.Background(), tenantcontext.Actor{ID: id, Role: role})
}

func TestAuthorize_TenantAdminScopedToTenant(t *testing.T) {
	svc := newTestService(t)
	tenantA, tenantB := snowflake.ID(1), snowflake.ID(2)
	ctx := actorCtx("u1", RoleTenantAdmin)

	require.NoError(t, svc.Authorize(ctx, &tenantA, ObjectVoucher, ActionVoucherManage))
	require.NoError(t, svc.Authorize(ctx, &tenantA, ObjectInvoice, ActionInvoiceMarkPaid))

	// no cross-tenant permission
	assert.ErrorIs(t, svc.Authorize(ctx, nil, ObjectVoucher, ActionVoucherManageSystem), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, nil, ObjectTenant, ActionTenantView), ErrForbidden)

	// a different tenant grants the role there too, since the gateway asserts it
	require.NoError(t, svc.Authorize(ctx, &tenantB, ObjectVoucher, ActionVoucherView))
}

func TestAuthorize_ClubAdminCannotManage(t *testing.T) {
	svc := newTestService(t)
	tenant := snowflake.ID(7)
	ctx := actorCtx("club-user", RoleClubAdmin)

	require.NoError(t, svc.Authorize(ctx, &tenant, ObjectVoucher, ActionVoucherRedeem))
	require.NoError(t, svc.Authorize(ctx, &tenant, ObjectDiscount, ActionDiscountCalculate))
	assert.ErrorIs(t, svc.Authorize(ctx, &tenant, ObjectVoucher, ActionVoucherManage), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, &tenant, ObjectInvoice, ActionInvoiceMarkPaid), ErrForbidden)
}

func TestAuthorize_SuperAdminEverywhere(t *testing.T) {
	svc := newTestService(t)
	tenant := snowflake.ID(3)
	ctx := actorCtx("root", RoleSuperAdmin)

	require.NoError(t, svc.Authorize(ctx, nil, ObjectVoucher, ActionVoucherManageSystem))
	require.NoError(t, svc.Authorize(ctx, &tenant, ObjectTenant, ActionTenantSuspend))
	require.NoError(t, svc.Authorize(ctx, &tenant, ObjectDunning, ActionDunningRun))
}

func TestAuthorize_RoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestService(t)
	tenant := snowflake.ID(4)

	require.NoError(t, svc.Authorize(actorCtx("u9", RoleTenantAdmin), &tenant, ObjectVoucher, ActionVoucherManage))
	assert.ErrorIs(t, svc.Authorize(actorCtx("u9", RoleClubAdmin), &tenant, ObjectVoucher, ActionVoucherManage), ErrForbidden)
}

func TestAuthorize_InvalidInput(t *testing.T) {
	svc := newTestService(t)
	tenant := snowflake.ID(1)
	zero := snowflake.ID(0)

	assert.ErrorIs(t, svc.Authorize(context.Background(), &tenant, ObjectVoucher, ActionVoucherView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(actorCtx("u", "janitor"), &tenant, ObjectVoucher, ActionVoucherView), ErrUnknownRole)
	assert.ErrorIs(t, svc.Authorize(actorCtx("u", RoleTenantAdmin), &tenant, "", ActionVoucherView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(actorCtx("u", RoleTenantAdmin), &tenant, ObjectVoucher, ""), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(actorCtx("u", RoleTenantAdmin), &zero, ObjectVoucher, ActionVoucherView), ErrInvalidTenant)
}

func TestAuthorize_SystemRunsDunning(t *testing.T) {
	svc := newTestService(t)
	tenant := snowflake.ID(8)
	ctx := actorCtx("scheduler", RoleSystem)

	require.NoError(t, svc.Authorize(ctx, &tenant, ObjectDunning, ActionDunningRun))
	assert.ErrorIs(t, svc.Authorize(ctx, &tenant, ObjectVoucher, ActionVoucherManage), ErrForbidden)
}

func TestAuthorize_DemotedSuperAdminLosesGlobalRole(t *testing.T) {
	svc := newTestService(t)
	tenant := snowflake.ID(5)

	require.NoError(t, svc.Authorize(actorCtx("u3", RoleSuperAdmin), nil, ObjectVoucher, ActionVoucherManageSystem))
	require.NoError(t, svc.Authorize(actorCtx("u3", RoleClubAdmin), &tenant, ObjectVoucher, ActionVoucherRedeem))
	assert.ErrorIs(t, svc.Authorize(actorCtx("u3", RoleClubAdmin), &tenant, ObjectVoucher, ActionVoucherManage), ErrForbidden)
}
