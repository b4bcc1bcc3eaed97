package metering

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/config"
	"github.com/smallbiznis/tenantplane/internal/metering/domain"
	obsmetrics "github.com/smallbiznis/tenantplane/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type FlusherParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	Recorder *Recorder
	Repo     domain.Repository
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Flusher drains the recorder on an interval and writes the counts into
// usage_samples. One final flush runs on shutdown so buffered counts survive
// a clean stop.
type Flusher struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	recorder *Recorder
	repo     domain.Repository
	metrics  *obsmetrics.Metrics
	interval time.Duration

	// Serializes flushes; per-tenant endpoint-map merges rely on no two
	// flushes writing the same sample concurrently.
	mu sync.Mutex
}

func NewFlusher(p FlusherParams) *Flusher {
	interval := p.Config.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Flusher{
		db:       p.DB,
		log:      p.Log.Named("metering.flusher"),
		clock:    p.Clock,
		recorder: p.Recorder,
		repo:     p.Repo,
		metrics:  p.Metrics,
		interval: interval,
	}
}

// Flush drains the buffer and persists every bucket. A bucket whose write
// fails is merged back into the buffer and retried on the next interval;
// other buckets still flush.
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	drained := f.recorder.drain()
	if len(drained) == 0 {
		return nil
	}

	if f.metrics != nil {
		f.metrics.FlushRuns.Inc()
	}

	var firstErr error
	var flushed int64
	for key, b := range drained {
		err := f.repo.IncrementRequests(ctx, f.db, key.TenantID, key.Date, b.Total, b.ByEndpoint)
		if err != nil {
			f.recorder.restore(key, b)
			if f.metrics != nil {
				f.metrics.FlushFailures.Inc()
			}
			f.log.Error("usage flush failed, counts retained for retry",
				zap.Int64("tenant_id", int64(key.TenantID)),
				zap.Time("date", key.Date),
				zap.Int64("total", b.Total),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		flushed += b.Total
	}

	if f.metrics != nil {
		f.metrics.SamplesFlushed.Add(float64(flushed))
		f.metrics.BufferedTenants.Set(float64(f.recorder.BufferedTenants()))
	}
	return firstErr
}

// Run flushes on the configured interval until ctx is cancelled, then runs a
// final flush under a short deadline.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.log.Info("usage flusher started", zap.Duration("interval", f.interval))
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.Flush(shutdownCtx); err != nil {
				f.log.Error("final usage flush failed", zap.Error(err))
			}
			cancel()
			f.log.Info("usage flusher stopped")
			return
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil {
				f.log.Warn("periodic usage flush had failures", zap.Error(err))
			}
		}
	}
}

func registerFlusher(lc fx.Lifecycle, f *Flusher) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				f.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
