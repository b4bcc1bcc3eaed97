package billing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantplane/internal/billing/domain"
	"github.com/smallbiznis/tenantplane/internal/config"
	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
	obsmetrics "github.com/smallbiznis/tenantplane/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sink receives newly raised alerts. The default sink logs; deployments can
// decorate it with mail or webhook delivery.
type Sink interface {
	Notify(ctx context.Context, tenant *tenantdomain.Tenant, alert *domain.UsageAlert)
}

type logSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) Sink {
	return &logSink{log: log.Named("billing.alerts")}
}

func (s *logSink) Notify(_ context.Context, tenant *tenantdomain.Tenant, alert *domain.UsageAlert) {
	s.log.Warn("usage alert raised",
		zap.String("slug", tenant.Slug),
		zap.String("dimension", string(alert.Dimension)),
		zap.String("level", string(alert.Level)),
		zap.Float64("usage_pct", alert.UsagePct),
		zap.Int64("observed", alert.Observed),
		zap.Int64("allowed", alert.Allowed),
	)
}

type EngineParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Holder     *config.BillingConfigHolder
	Calculator *Calculator
	Repo       domain.Repository
	Sink       Sink
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Engine evaluates usage samples against effective limits and raises
// deduplicated threshold alerts.
type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	holder  *config.BillingConfigHolder
	calc    *Calculator
	repo    domain.Repository
	sink    Sink
	metrics *obsmetrics.Metrics
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		db:      p.DB,
		log:     p.Log.Named("billing.engine"),
		genID:   p.GenID,
		holder:  p.Holder,
		calc:    p.Calculator,
		repo:    p.Repo,
		sink:    p.Sink,
		metrics: p.Metrics,
	}
}

type observation struct {
	dimension domain.Dimension
	observed  int64
	allowed   int64
}

// EvaluateTenant checks every dimension of the sample against the tenant's
// effective limits. An open (unacknowledged) alert at the same or a higher
// level for the same tenant, dimension and day suppresses a duplicate; a
// higher crossing escalates.
func (e *Engine) EvaluateTenant(ctx context.Context, tenant *tenantdomain.Tenant, sample *meteringdomain.UsageSample) error {
	if sample == nil {
		return nil
	}
	limits := e.calc.EffectiveLimits(tenant)

	observations := []observation{
		{domain.DimensionDBSize, sample.DBSizeMB, limits.MaxDBSizeMB},
		{domain.DimensionStorage, sample.StorageMB, limits.MaxStorageMB},
		{domain.DimensionBandwidth, sample.BandwidthMB, limits.MaxBandwidthMB},
		{domain.DimensionAPIRequests, sample.APIRequestCount, limits.MaxAPIRequestsPerDay},
		{domain.DimensionOrders, sample.OrderCount, limits.MaxOrders},
		{domain.DimensionStaff, sample.StaffCount, limits.MaxStaff},
	}

	var firstErr error
	for _, obs := range observations {
		if err := e.evaluate(ctx, tenant, sample.Date, obs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) evaluate(ctx context.Context, tenant *tenantdomain.Tenant, date time.Time, obs observation) error {
	if obs.allowed <= 0 {
		return nil
	}
	pct := float64(obs.observed) / float64(obs.allowed) * 100

	level, ok := e.levelFor(pct)
	if !ok {
		return nil
	}

	open, err := e.repo.FindOpenAlert(ctx, e.db, tenant.ID, obs.dimension, date)
	if err != nil {
		return err
	}
	if open != nil && open.Level.Rank() >= level.Rank() {
		return nil
	}

	alert := &domain.UsageAlert{
		ID:        e.genID.Generate(),
		TenantID:  tenant.ID,
		Date:      meteringdomain.Day(date),
		Dimension: obs.dimension,
		Level:     level,
		UsagePct:  pct,
		Observed:  obs.observed,
		Allowed:   obs.allowed,
	}
	if err := e.repo.InsertAlert(ctx, e.db, alert); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.AlertsRaised.WithLabelValues(string(level)).Inc()
	}
	e.sink.Notify(ctx, tenant, alert)
	return nil
}

func (e *Engine) levelFor(pct float64) (domain.AlertLevel, bool) {
	t := e.holder.Current().Thresholds
	switch {
	case pct >= 100:
		return domain.LevelExceeded, true
	case pct >= t.Critical:
		return domain.LevelCritical, true
	case pct >= t.Warning:
		return domain.LevelWarning, true
	}
	return "", false
}
