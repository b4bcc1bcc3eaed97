package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/config"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"github.com/smallbiznis/tenantplane/internal/tenant/repository"
	"github.com/smallbiznis/tenantplane/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var serviceNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type serviceFixture struct {
	db  *gorm.DB
	clk *clock.FakeClock
	svc tenantdomain.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tenantdomain.Tenant{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(serviceNow)
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Clock:  clk,
		Config: config.Config{SnapshotTTL: time.Minute},
	})
	return &serviceFixture{db: db, clk: clk, svc: svc}
}

func (f *serviceFixture) create(t *testing.T, slug string) *tenantdomain.Tenant {
	t.Helper()
	tenant, err := f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{
		Slug: slug,
		Name: "Kathmandu Cafe",
	})
	require.NoError(t, err)
	return tenant
}

func TestCreate_Defaults(t *testing.T) {
	f := newServiceFixture(t)

	tenant := f.create(t, "kathmandu-cafe")

	assert.Equal(t, tenantdomain.StatusTrial, tenant.Status)
	assert.Equal(t, tenantctx.IsolationSchema, tenant.IsolationMode)
	assert.Equal(t, "standard", tenant.PlanCode)
	require.NotNil(t, tenant.TrialEndsAt)
	assert.True(t, tenant.TrialEndsAt.Equal(serviceNow.AddDate(0, 0, 14)))
}

func TestCreate_NormalizesSlug(t *testing.T) {
	f := newServiceFixture(t)

	tenant, err := f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{
		Slug: "  Kathmandu-Cafe ",
		Name: "Kathmandu Cafe",
	})
	require.NoError(t, err)
	assert.Equal(t, "kathmandu-cafe", tenant.Slug)
}

func TestCreate_Validation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{Slug: "ab", Name: "x"})
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidSlug)

	_, err = f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{Slug: "kathmandu-cafe", Name: "  "})
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidName)

	_, err = f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{
		Slug: "kathmandu-cafe", Name: "x", IsolationMode: "SHARDED",
	})
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidIsolation)
}

func TestCreate_SlugTaken(t *testing.T) {
	f := newServiceFixture(t)
	f.create(t, "kathmandu-cafe")

	_, err := f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{
		Slug: "kathmandu-cafe",
		Name: "Another Cafe",
	})
	assert.ErrorIs(t, err, tenantdomain.ErrSlugTaken)
}

func TestSnapshot_ServesCachedUntilInvalidated(t *testing.T) {
	f := newServiceFixture(t)
	f.create(t, "kathmandu-cafe")

	first, err := f.svc.Snapshot(context.Background(), "kathmandu-cafe")
	require.NoError(t, err)
	require.Equal(t, tenantdomain.StatusTrial, first.Status)

	// Change the row behind the cache's back.
	require.NoError(t, f.db.Model(&tenantdomain.Tenant{}).
		Where("slug = ?", "kathmandu-cafe").
		Update("status", tenantdomain.StatusActive).Error)

	stale, err := f.svc.Snapshot(context.Background(), "kathmandu-cafe")
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusTrial, stale.Status, "within the TTL the snapshot is served from cache")

	f.svc.Invalidate("kathmandu-cafe")
	fresh, err := f.svc.Snapshot(context.Background(), "kathmandu-cafe")
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusActive, fresh.Status)
}

func TestSnapshot_UnknownTenant(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Snapshot(context.Background(), "nobody-here")
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)
}

func TestActivate(t *testing.T) {
	f := newServiceFixture(t)
	f.create(t, "kathmandu-cafe")

	require.NoError(t, f.svc.Activate(context.Background(), "kathmandu-cafe"))

	tenant, err := f.svc.GetBySlug(context.Background(), "kathmandu-cafe")
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusActive, tenant.Status)
	require.NotNil(t, tenant.NextPaymentDue)
	assert.True(t, tenant.NextPaymentDue.Equal(serviceNow.AddDate(0, 1, 0)))

	// Already active.
	assert.ErrorIs(t, f.svc.Activate(context.Background(), "kathmandu-cafe"), tenantdomain.ErrInvalidTransition)
}

func TestRecordPayment_RestoresSuspendedTenant(t *testing.T) {
	f := newServiceFixture(t)
	f.create(t, "kathmandu-cafe")

	suspendedAt := serviceNow.AddDate(0, 0, -20)
	require.NoError(t, f.db.Model(&tenantdomain.Tenant{}).
		Where("slug = ?", "kathmandu-cafe").
		Updates(map[string]any{
			"status":       tenantdomain.StatusSuspended,
			"suspended_at": suspendedAt,
		}).Error)

	require.NoError(t, f.svc.RecordPayment(context.Background(), "kathmandu-cafe"))

	tenant, err := f.svc.GetBySlug(context.Background(), "kathmandu-cafe")
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusActive, tenant.Status)
	assert.Nil(t, tenant.SuspendedAt)
	require.NotNil(t, tenant.NextPaymentDue)
	assert.True(t, tenant.NextPaymentDue.Equal(serviceNow.AddDate(0, 1, 0)))
}

func TestRecordPayment_ActiveTenantRollsDueDateForward(t *testing.T) {
	f := newServiceFixture(t)
	f.create(t, "kathmandu-cafe")
	require.NoError(t, f.svc.Activate(context.Background(), "kathmandu-cafe"))

	f.clk.Advance(10 * 24 * time.Hour)
	require.NoError(t, f.svc.RecordPayment(context.Background(), "kathmandu-cafe"))

	tenant, err := f.svc.GetBySlug(context.Background(), "kathmandu-cafe")
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusActive, tenant.Status)
	assert.True(t, tenant.NextPaymentDue.Equal(f.clk.Now().AddDate(0, 1, 0)))
}

func TestCancel_Terminal(t *testing.T) {
	f := newServiceFixture(t)
	f.create(t, "kathmandu-cafe")

	require.NoError(t, f.svc.Cancel(context.Background(), "kathmandu-cafe"))

	tenant, err := f.svc.GetBySlug(context.Background(), "kathmandu-cafe")
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusCancelled, tenant.Status)

	assert.ErrorIs(t, f.svc.Activate(context.Background(), "kathmandu-cafe"), tenantdomain.ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), "kathmandu-cafe"), tenantdomain.ErrInvalidTransition)
}
