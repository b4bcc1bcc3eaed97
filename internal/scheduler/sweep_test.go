package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tenantplane/internal/clock"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"github.com/smallbiznis/tenantplane/internal/tenant/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingRegistry struct {
	mu          sync.Mutex
	invalidated []string
}

func (r *recordingRegistry) Create(context.Context, tenantdomain.CreateTenantRequest) (*tenantdomain.Tenant, error) {
	return nil, nil
}
func (r *recordingRegistry) Snapshot(context.Context, string) (*tenantdomain.Tenant, error) {
	return nil, tenantdomain.ErrTenantNotFound
}
func (r *recordingRegistry) GetBySlug(context.Context, string) (*tenantdomain.Tenant, error) {
	return nil, tenantdomain.ErrTenantNotFound
}
func (r *recordingRegistry) Activate(context.Context, string) error                 { return nil }
func (r *recordingRegistry) Cancel(context.Context, string) error                   { return nil }
func (r *recordingRegistry) RecordPayment(context.Context, string) error            { return nil }
func (r *recordingRegistry) SetStorageExceeded(context.Context, string, bool) error { return nil }

func (r *recordingRegistry) Invalidate(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, slug)
}

type sweepFixture struct {
	db       *gorm.DB
	clk      *clock.FakeClock
	node     *snowflake.Node
	repo     tenantdomain.Repository
	registry *recordingRegistry
	sched    *Scheduler
}

var sweepNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tenantdomain.Tenant{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(sweepNow)
	repo := repository.Provide()
	registry := &recordingRegistry{}

	sched, err := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		Repo:     repo,
		Registry: registry,
	})
	require.NoError(t, err)

	return &sweepFixture{db: db, clk: clk, node: node, repo: repo, registry: registry, sched: sched}
}

func (f *sweepFixture) seed(t *testing.T, slug string, status tenantdomain.SubscriptionStatus, mutate func(*tenantdomain.Tenant)) *tenantdomain.Tenant {
	t.Helper()
	record := &tenantdomain.Tenant{
		ID:     f.node.Generate(),
		Slug:   slug,
		Name:   slug,
		Status: status,
	}
	if mutate != nil {
		mutate(record)
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, record))
	return record
}

func (f *sweepFixture) statusOf(t *testing.T, id snowflake.ID) tenantdomain.SubscriptionStatus {
	t.Helper()
	record, err := f.repo.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record.Status
}

func TestRunDailySweep_ExpiresDueTrials(t *testing.T) {
	f := newSweepFixture(t)

	due := sweepNow.Add(-time.Second)
	exact := sweepNow
	future := sweepNow.Add(time.Second)

	expired := f.seed(t, "past-trial", tenantdomain.StatusTrial, func(r *tenantdomain.Tenant) { r.TrialEndsAt = &due })
	boundary := f.seed(t, "boundary-trial", tenantdomain.StatusTrial, func(r *tenantdomain.Tenant) { r.TrialEndsAt = &exact })
	running := f.seed(t, "running-trial", tenantdomain.StatusTrial, func(r *tenantdomain.Tenant) { r.TrialEndsAt = &future })
	open := f.seed(t, "open-trial", tenantdomain.StatusTrial, nil)

	report, err := f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.TrialsExpired)
	assert.Equal(t, tenantdomain.StatusExpired, f.statusOf(t, expired.ID))
	assert.Equal(t, tenantdomain.StatusTrial, f.statusOf(t, boundary.ID), "at the exact end the gate still admits, so the sweep waits")
	assert.Equal(t, tenantdomain.StatusTrial, f.statusOf(t, running.ID))
	assert.Equal(t, tenantdomain.StatusTrial, f.statusOf(t, open.ID), "no end date means no expiry")
	assert.ElementsMatch(t, []string{"past-trial"}, f.registry.invalidated)

	f.clk.Advance(time.Second)
	report, err = f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TrialsExpired)
	assert.Equal(t, tenantdomain.StatusExpired, f.statusOf(t, boundary.ID))
}

func TestRunDailySweep_MarksOverduePayments(t *testing.T) {
	f := newSweepFixture(t)

	pastGrace := sweepNow.AddDate(0, 0, -6)
	atGrace := sweepNow.AddDate(0, 0, -5)
	withinGrace := sweepNow.AddDate(0, 0, -3)

	overdue := f.seed(t, "overdue", tenantdomain.StatusActive, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &pastGrace })
	edge := f.seed(t, "edge", tenantdomain.StatusActive, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &atGrace })
	graced := f.seed(t, "graced", tenantdomain.StatusActive, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &withinGrace })
	current := f.seed(t, "current", tenantdomain.StatusActive, nil)

	report, err := f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.PaymentsMarkedOverdue)
	assert.Equal(t, tenantdomain.StatusPaymentDue, f.statusOf(t, overdue.ID))
	assert.Equal(t, tenantdomain.StatusActive, f.statusOf(t, edge.ID), "exactly at the grace deadline is not yet past it")
	assert.Equal(t, tenantdomain.StatusActive, f.statusOf(t, graced.ID))
	assert.Equal(t, tenantdomain.StatusActive, f.statusOf(t, current.ID))
}

func TestRunDailySweep_SuspendsDelinquents(t *testing.T) {
	f := newSweepFixture(t)

	pastSuspend := sweepNow.AddDate(0, 0, -16)
	atSuspend := sweepNow.AddDate(0, 0, -15)
	withinWindow := sweepNow.AddDate(0, 0, -10)

	gone := f.seed(t, "gone", tenantdomain.StatusPaymentDue, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &pastSuspend })
	edge := f.seed(t, "edge", tenantdomain.StatusPaymentDue, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &atSuspend })
	pending := f.seed(t, "pending", tenantdomain.StatusPaymentDue, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &withinWindow })

	report, err := f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.AccountsSuspended)
	assert.Equal(t, tenantdomain.StatusSuspended, f.statusOf(t, gone.ID))
	assert.Equal(t, tenantdomain.StatusPaymentDue, f.statusOf(t, edge.ID), "exactly at the suspend deadline is not yet past it")
	assert.Equal(t, tenantdomain.StatusPaymentDue, f.statusOf(t, pending.ID))

	record, err := f.repo.FindByID(context.Background(), f.db, gone.ID)
	require.NoError(t, err)
	require.NotNil(t, record.SuspendedAt)
	assert.True(t, record.SuspendedAt.Equal(sweepNow))
}

func TestRunDailySweep_DeepDelinquencyCascadesInOneRun(t *testing.T) {
	f := newSweepFixture(t)

	longGone := sweepNow.AddDate(0, 0, -30)
	record := f.seed(t, "long-gone", tenantdomain.StatusActive, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &longGone })

	report, err := f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)

	// Delinquency this deep passes through PAYMENT_DUE and lands suspended.
	assert.Equal(t, 1, report.PaymentsMarkedOverdue)
	assert.Equal(t, 1, report.AccountsSuspended)
	assert.Equal(t, tenantdomain.StatusSuspended, f.statusOf(t, record.ID))
}

func TestRunDailySweep_SecondRunIsIdempotent(t *testing.T) {
	f := newSweepFixture(t)

	due := sweepNow.Add(-time.Hour)
	pastGrace := sweepNow.AddDate(0, 0, -6)
	f.seed(t, "past-trial", tenantdomain.StatusTrial, func(r *tenantdomain.Tenant) { r.TrialEndsAt = &due })
	f.seed(t, "overdue", tenantdomain.StatusActive, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &pastGrace })

	first, err := f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.TrialsExpired)
	assert.Equal(t, 1, first.PaymentsMarkedOverdue)

	second, err := f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.TrialsExpired)
	assert.Equal(t, 0, second.PaymentsMarkedOverdue)
	assert.Equal(t, 0, second.AccountsSuspended)
}

func TestRunDailySweep_TimeAdvancesTheWindows(t *testing.T) {
	f := newSweepFixture(t)

	dueDate := sweepNow.AddDate(0, 0, -4)
	record := f.seed(t, "sliding", tenantdomain.StatusActive, func(r *tenantdomain.Tenant) { r.NextPaymentDue = &dueDate })

	report, err := f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.PaymentsMarkedOverdue, "still inside the grace window")

	f.clk.Advance(2 * 24 * time.Hour)
	report, err = f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PaymentsMarkedOverdue)
	assert.Equal(t, tenantdomain.StatusPaymentDue, f.statusOf(t, record.ID))

	f.clk.Advance(10 * 24 * time.Hour)
	report, err = f.sched.RunDailySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AccountsSuspended)
	assert.Equal(t, tenantdomain.StatusSuspended, f.statusOf(t, record.ID))
}

func TestRunOnce_NoLockerRunsDirectly(t *testing.T) {
	f := newSweepFixture(t)
	require.NoError(t, f.sched.RunOnce(context.Background()))
}
