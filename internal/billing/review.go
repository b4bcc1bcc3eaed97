package billing

import (
	"context"
	"errors"

	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/gate"
	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
	"github.com/smallbiznis/tenantplane/internal/router"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReviewerParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Router     *router.Router
	Registry   tenantdomain.Service
	Calculator *Calculator
	Engine     *Engine
	Usage      meteringdomain.Repository
}

// Reviewer performs the daily usage review for one tenant: measure the
// tenant store, persist the day's gauges, maintain the storage hard-cap flag
// and run the alert engine over the resulting sample.
type Reviewer struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	router   *router.Router
	registry tenantdomain.Service
	calc     *Calculator
	engine   *Engine
	usage    meteringdomain.Repository
}

func NewReviewer(p ReviewerParams) *Reviewer {
	return &Reviewer{
		db:       p.DB,
		log:      p.Log.Named("billing.reviewer"),
		clock:    p.Clock,
		router:   p.Router,
		registry: p.Registry,
		calc:     p.Calculator,
		engine:   p.Engine,
		usage:    p.Usage,
	}
}

// ReviewTenant measures and evaluates one tenant for the given day.
//
// Gate-denied tenants are skipped, not failed: a suspended or cancelled
// tenant cannot grow its usage, and measuring it would require releasing a
// handle past the gate.
func (r *Reviewer) ReviewTenant(ctx context.Context, tenant *tenantdomain.Tenant) error {
	grant, err := r.router.GetHandle(ctx, tenant.Slug)
	if err != nil {
		var denied *gate.AccessDeniedError
		if errors.As(err, &denied) {
			r.log.Debug("skipping review for gated tenant",
				zap.String("slug", tenant.Slug),
				zap.String("reason", string(denied.Reason)),
			)
			return nil
		}
		return err
	}

	dbSizeMB, err := grant.Handle.MeasureSizeMB(ctx)
	if err != nil {
		return err
	}
	return r.reviewMeasured(ctx, tenant, dbSizeMB)
}

func (r *Reviewer) reviewMeasured(ctx context.Context, tenant *tenantdomain.Tenant, dbSizeMB int64) error {
	sample, err := r.currentSample(ctx, tenant, dbSizeMB)
	if err != nil {
		return err
	}

	limits := r.calc.EffectiveLimits(tenant)
	exceeded := exceedsStorage(sample, limits)
	if exceeded != tenant.StorageExceeded {
		if err := r.registry.SetStorageExceeded(ctx, tenant.Slug, exceeded); err != nil {
			return err
		}
		r.log.Info("storage hard-cap flag changed",
			zap.String("slug", tenant.Slug),
			zap.Bool("exceeded", exceeded),
			zap.Int64("db_size_mb", sample.DBSizeMB),
			zap.Int64("storage_mb", sample.StorageMB),
		)
	}

	return r.engine.EvaluateTenant(ctx, tenant, sample)
}

func (r *Reviewer) currentSample(ctx context.Context, tenant *tenantdomain.Tenant, dbSizeMB int64) (*meteringdomain.UsageSample, error) {
	day := meteringdomain.Day(r.clock.Now())
	existing, err := r.usage.FindByTenantAndDate(ctx, r.db, tenant.ID, day)
	if err != nil {
		return nil, err
	}

	storageMB := int64(0)
	if existing != nil {
		storageMB = existing.StorageMB
	}
	if err := r.usage.SetMeasurements(ctx, r.db, tenant.ID, day, dbSizeMB, storageMB); err != nil {
		return nil, err
	}

	if existing == nil {
		return r.usage.FindByTenantAndDate(ctx, r.db, tenant.ID, day)
	}
	existing.DBSizeMB = dbSizeMB
	return existing, nil
}

// exceedsStorage covers file storage only. Database size over its limit is a
// billed overage, never an access denial.
func exceedsStorage(sample *meteringdomain.UsageSample, limits tenantdomain.Limits) bool {
	if sample == nil {
		return false
	}
	return limits.MaxStorageMB > 0 && sample.StorageMB > limits.MaxStorageMB
}
