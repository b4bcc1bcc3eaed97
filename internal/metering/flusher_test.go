package metering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/config"
	"github.com/smallbiznis/tenantplane/internal/metering/domain"
	"github.com/smallbiznis/tenantplane/internal/metering/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.UsageSample{}))
	return db
}

func newTestNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func newTestFlusher(t *testing.T, db *gorm.DB, clk clock.Clock, recorder *Recorder, repo domain.Repository) *Flusher {
	t.Helper()
	return NewFlusher(FlusherParams{
		DB:       db,
		Log:      zap.NewNop(),
		Config:   config.Config{FlushInterval: time.Minute},
		Clock:    clk,
		Recorder: recorder,
		Repo:     repo,
	})
}

func TestFlush_PersistsBufferedCounts(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	recorder := NewRecorder(clk)
	repo := repository.Provide(newTestNode(t))
	flusher := newTestFlusher(t, db, clk, recorder, repo)

	tenantID := snowflake.ID(1001)
	for i := 0; i < 10; i++ {
		recorder.RecordRequest(tenantID, "/v1/orders")
	}
	require.NoError(t, flusher.Flush(context.Background()))

	// Requests arriving after the first flush land in a fresh bucket and are
	// carried by the next flush.
	for i := 0; i < 3; i++ {
		recorder.RecordRequest(tenantID, "/v1/orders")
	}
	require.NoError(t, flusher.Flush(context.Background()))

	sample, err := repo.FindByTenantAndDate(context.Background(), db, tenantID, clk.Now())
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, int64(13), sample.APIRequestCount)
	assert.Equal(t, 0, recorder.BufferedTenants())
}

func TestFlush_EmptyBufferIsNoop(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	recorder := NewRecorder(clk)
	flusher := newTestFlusher(t, db, clk, recorder, repository.Provide(newTestNode(t)))

	require.NoError(t, flusher.Flush(context.Background()))
}

func TestFlush_EndpointCountsMergeAcrossFlushes(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	recorder := NewRecorder(clk)
	repo := repository.Provide(newTestNode(t))
	flusher := newTestFlusher(t, db, clk, recorder, repo)

	tenantID := snowflake.ID(1001)
	recorder.RecordRequest(tenantID, "/v1/orders")
	recorder.RecordRequest(tenantID, "/v1/orders")
	recorder.RecordRequest(tenantID, "/v1/menu")
	require.NoError(t, flusher.Flush(context.Background()))

	recorder.RecordRequest(tenantID, "/v1/orders")
	require.NoError(t, flusher.Flush(context.Background()))

	sample, err := repo.FindByTenantAndDate(context.Background(), db, tenantID, clk.Now())
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, int64(4), sample.APIRequestCount)
	assert.Equal(t, float64(3), sample.APIRequestsByEndpoint["/v1/orders"])
	assert.Equal(t, float64(1), sample.APIRequestsByEndpoint["/v1/menu"])
}

func TestFlush_BucketsSplitByDay(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 23, 59, 59, 0, time.UTC))
	recorder := NewRecorder(clk)
	repo := repository.Provide(newTestNode(t))
	flusher := newTestFlusher(t, db, clk, recorder, repo)

	tenantID := snowflake.ID(1001)
	recorder.RecordRequest(tenantID, "/v1/orders")
	clk.Advance(2 * time.Second) // crosses UTC midnight
	recorder.RecordRequest(tenantID, "/v1/orders")
	require.NoError(t, flusher.Flush(context.Background()))

	day1, err := repo.FindByTenantAndDate(context.Background(), db, tenantID, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, day1)
	assert.Equal(t, int64(1), day1.APIRequestCount)

	day2, err := repo.FindByTenantAndDate(context.Background(), db, tenantID, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, day2)
	assert.Equal(t, int64(1), day2.APIRequestCount)
}

// blockingRepo parks the durable write until released, holding the flush open
// so the test can record into the drained buffer's replacement.
type blockingRepo struct {
	domain.Repository
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRepo) IncrementRequests(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, date time.Time, total int64, byEndpoint map[string]int64) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Repository.IncrementRequests(ctx, db, tenantID, date, total, byEndpoint)
}

func TestFlush_RecordsDuringWriteLandInNextFlush(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	recorder := NewRecorder(clk)
	realRepo := repository.Provide(newTestNode(t))
	blocking := &blockingRepo{
		Repository: realRepo,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	slow := newTestFlusher(t, db, clk, recorder, blocking)
	fast := newTestFlusher(t, db, clk, recorder, realRepo)

	tenantID := snowflake.ID(1001)
	for i := 0; i < 10; i++ {
		recorder.RecordRequest(tenantID, "/v1/orders")
	}

	flushDone := make(chan error, 1)
	go func() { flushDone <- slow.Flush(context.Background()) }()

	// The buffer is already drained; the durable write is still in flight.
	<-blocking.entered
	for i := 0; i < 3; i++ {
		recorder.RecordRequest(tenantID, "/v1/orders")
	}
	assert.Equal(t, 1, recorder.BufferedTenants(), "mid-flush records open a fresh bucket")

	close(blocking.release)
	require.NoError(t, <-flushDone)

	sample, err := realRepo.FindByTenantAndDate(context.Background(), db, tenantID, clk.Now())
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, int64(10), sample.APIRequestCount, "only the drained counts are durable")
	assert.Equal(t, 1, recorder.BufferedTenants(), "the 3 wait for the next interval")

	require.NoError(t, fast.Flush(context.Background()))
	sample, err = realRepo.FindByTenantAndDate(context.Background(), db, tenantID, clk.Now())
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, int64(13), sample.APIRequestCount)
	assert.Equal(t, 0, recorder.BufferedTenants())
}

type failingRepo struct {
	domain.Repository
}

func (f *failingRepo) IncrementRequests(context.Context, *gorm.DB, snowflake.ID, time.Time, int64, map[string]int64) error {
	return errors.New("store unavailable")
}

func TestFlush_FailureRetainsCountsForRetry(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	recorder := NewRecorder(clk)
	realRepo := repository.Provide(newTestNode(t))

	failing := newTestFlusher(t, db, clk, recorder, &failingRepo{})
	working := newTestFlusher(t, db, clk, recorder, realRepo)

	tenantID := snowflake.ID(1001)
	for i := 0; i < 10; i++ {
		recorder.RecordRequest(tenantID, "/v1/orders")
	}
	require.Error(t, failing.Flush(context.Background()))
	assert.Equal(t, 1, recorder.BufferedTenants(), "failed flush keeps the bucket")

	// Counts recorded between the failure and the retry merge in.
	for i := 0; i < 3; i++ {
		recorder.RecordRequest(tenantID, "/v1/orders")
	}
	require.NoError(t, working.Flush(context.Background()))

	sample, err := realRepo.FindByTenantAndDate(context.Background(), db, tenantID, clk.Now())
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, int64(13), sample.APIRequestCount, "nothing lost, nothing double-counted")
}

func TestRecorder_ConcurrentRecording(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	recorder := NewRecorder(clk)

	tenantID := snowflake.ID(1001)
	done := make(chan struct{})
	const goroutines = 20
	const perGoroutine = 100
	for g := 0; g < goroutines; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perGoroutine; i++ {
				recorder.RecordRequest(tenantID, "/v1/orders")
			}
		}()
	}
	for g := 0; g < goroutines; g++ {
		<-done
	}

	drained := recorder.drain()
	require.Len(t, drained, 1)
	for _, b := range drained {
		assert.Equal(t, int64(goroutines*perGoroutine), b.Total)
	}
	close(done)
}
