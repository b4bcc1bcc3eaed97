// Package scheduler runs the periodic lifecycle sweep: trial expiry, payment
// delinquency, suspension and the daily usage review.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/tenantplane/internal/billing"
	"github.com/smallbiznis/tenantplane/internal/clock"
	obsmetrics "github.com/smallbiznis/tenantplane/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

const sweepLockKey = "tenantplane:sweep:lock"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     tenantdomain.Repository
	Registry tenantdomain.Service
	Reviewer *billing.Reviewer   `optional:"true"`
	Locker   *Locker             `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Config   Config              `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	repo     tenantdomain.Repository
	registry tenantdomain.Service
	reviewer *billing.Reviewer
	locker   *Locker
	metrics  *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.Registry == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		repo:     p.Repo,
		registry: p.Registry,
		reviewer: p.Reviewer,
		locker:   p.Locker,
		metrics:  p.Metrics,
	}, nil
}

// RunOnce executes one sweep, guarded by the distributed lock when one is
// configured. Losing the lock race is not an error; another replica owns the
// run.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Debug("sweep lock held elsewhere, skipping run")
			return nil
		}
		defer func() {
			if err := s.locker.Release(ctx, sweepLockKey, token); err != nil {
				s.log.Warn("sweep lock release failed", zap.Error(err))
			}
		}()
	}

	report, err := s.RunDailySweep(ctx)
	if report != nil {
		s.log.Info("sweep finished",
			zap.Int("trials_expired", report.TrialsExpired),
			zap.Int("payments_marked_overdue", report.PaymentsMarkedOverdue),
			zap.Int("accounts_suspended", report.AccountsSuspended),
			zap.Int("tenants_reviewed", report.TenantsReviewed),
			zap.Int("errors", len(report.Errors)),
		)
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
