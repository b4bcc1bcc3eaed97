// Package server exposes the control-plane HTTP surface: tenant signup and
// administration, tenant-scoped usage and billing reads, and ops endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tenantplane/internal/billing"
	billingdomain "github.com/smallbiznis/tenantplane/internal/billing/domain"
	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/config"
	"github.com/smallbiznis/tenantplane/internal/metering"
	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
	"github.com/smallbiznis/tenantplane/internal/observability"
	obslogger "github.com/smallbiznis/tenantplane/internal/observability/logger"
	"github.com/smallbiznis/tenantplane/internal/resolver"
	"github.com/smallbiznis/tenantplane/internal/router"
	"github.com/smallbiznis/tenantplane/internal/scheduler"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, reg *prometheus.Registry) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:   log.Named("http"),
		Debug: obsCfg.Debug(),
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, reg *prometheus.Registry) *gin.Engine {
	return NewEngine(obsCfg, log, reg)
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	resolver   *resolver.Resolver
	router     *router.Router
	tenantSvc  tenantdomain.Service
	recorder   *metering.Recorder
	flusher    *metering.Flusher
	usageRepo  meteringdomain.Repository
	calculator *billing.Calculator
	alertRepo  billingdomain.Repository
	scheduler  *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Resolver   *resolver.Resolver
	Router     *router.Router
	TenantSvc  tenantdomain.Service
	Recorder   *metering.Recorder
	Flusher    *metering.Flusher
	UsageRepo  meteringdomain.Repository
	Calculator *billing.Calculator
	AlertRepo  billingdomain.Repository
	Scheduler  *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		clock:      p.Clock,
		resolver:   p.Resolver,
		router:     p.Router,
		tenantSvc:  p.TenantSvc,
		recorder:   p.Recorder,
		flusher:    p.Flusher,
		usageRepo:  p.UsageRepo,
		calculator: p.Calculator,
		alertRepo:  p.AlertRepo,
		scheduler:  p.Scheduler,
	}
	svc.RegisterRoutes()
	return svc
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")
	{
		v1.POST("/tenants", s.CreateTenant)
		v1.GET("/tenants/:slug", s.GetTenant)
		v1.POST("/tenants/:slug/activate", s.ActivateTenant)
		v1.POST("/tenants/:slug/cancel", s.CancelTenant)
		v1.POST("/tenants/:slug/payments", s.RecordPayment)
	}

	// Tenant-scoped reads resolve the caller from the request host or the
	// tenant header and run through the subscription gate.
	tenant := s.engine.Group("/v1/tenant")
	tenant.Use(s.TenantContext())
	{
		tenant.GET("/usage", s.GetUsage)
		tenant.GET("/bill", s.GetBill)
		tenant.GET("/alerts", s.ListAlerts)
		tenant.POST("/alerts/:id/ack", s.AcknowledgeAlert)
	}

	admin := s.engine.Group("/admin")
	{
		admin.POST("/sweep", s.TriggerSweep)
		admin.POST("/flush", s.TriggerFlush)
		admin.POST("/tenants/:slug/evict", s.EvictTenant)
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
