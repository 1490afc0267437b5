package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	"github.com/lukasmk87/basketmanager/internal/audit/repository"
	"github.com/lukasmk87/basketmanager/internal/clock"
	obscontext "github.com/lukasmk87/basketmanager/internal/observability/context"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"github.com/lukasmk87/basketmanager/pkg/db/dbtest"
	"github.com/lukasmk87/basketmanager/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.NewRepository(),
	}).(*Service)
	return svc, clk
}

func TestRecord_CapturesActorAndMasksMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	tenantID := snowflake.ID(10)

	ctx := tenantcontext.WithTenantID(context.Background(), tenantID)
	ctx = tenantcontext.WithActor(ctx, tenantcontext.Actor{ID: "u-1", Role: "tenant_admin"})
	ctx = obscontext.WithRequestID(ctx, "req-9")
	ctx = obscontext.WithClientIP(ctx, "10.0.0.1")

	target := "123"
	require.NoError(t, svc.Record(ctx, nil, auditdomain.Entry{
		Action:     "invoice.mark_paid",
		TargetType: "invoice",
		TargetID:   &target,
		Metadata:   map[string]any{"billing_email": "kasse@verein.de", "number": "CLUB-2024-00001"},
	}))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "user", entry.ActorType)
	assert.Equal(t, "u-1", *entry.ActorID)
	assert.Equal(t, "tenant_admin", *entry.ActorRole)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
	assert.Equal(t, tenantID, *entry.TenantID)
	assert.Equal(t, "req-9", entry.Metadata["request_id"])
	assert.Equal(t, "****n.de", entry.Metadata["billing_email"])
	assert.Equal(t, "CLUB-2024-00001", entry.Metadata["number"])
}

func TestRecord_RequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Record(context.Background(), nil, auditdomain.Entry{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestList_PaginatesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := tenantcontext.WithTenantID(context.Background(), snowflake.ID(5))

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, nil, auditdomain.Entry{Action: "voucher.create", TargetType: "voucher"}))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[1].CreatedAt))

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
}

func TestList_RequiresTenant(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)
}
