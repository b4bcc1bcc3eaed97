package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantplane/internal/cache"
	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/config"
	"github.com/smallbiznis/tenantplane/internal/resolver"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"github.com/smallbiznis/tenantplane/pkg/db"
	"github.com/smallbiznis/tenantplane/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   tenantdomain.Repository
	Clock  clock.Clock
	Config config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  tenantdomain.Repository
	clock clock.Clock

	snapshots   cache.Cache[string, *tenantdomain.Tenant]
	snapshotTTL time.Duration
}

func New(p Params) tenantdomain.Service {
	ttl := p.Config.SnapshotTTL
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("tenant.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		clock:       p.Clock,
		snapshots:   cache.NewTTLCache[string, *tenantdomain.Tenant](),
		snapshotTTL: ttl,
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateTenantRequest) (*tenantdomain.Tenant, error) {
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !resolver.ValidSlug(slug) {
		return nil, tenantdomain.ErrInvalidSlug
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, tenantdomain.ErrInvalidName
	}

	mode := req.IsolationMode
	switch mode {
	case tenantctx.IsolationSchema, tenantctx.IsolationDatabase:
	case "":
		mode = tenantctx.IsolationSchema
	default:
		return nil, tenantdomain.ErrInvalidIsolation
	}

	trialDays := req.TrialDays
	if trialDays <= 0 {
		trialDays = 14
	}

	planCode := strings.TrimSpace(req.PlanCode)
	if planCode == "" {
		planCode = "standard"
	}

	now := s.clock.Now()
	trialEnds := now.AddDate(0, 0, trialDays)
	tenant := &tenantdomain.Tenant{
		ID:            s.genID.Generate(),
		Slug:          slug,
		Name:          name,
		IsolationMode: mode,
		Status:        tenantdomain.StatusTrial,
		PlanCode:      planCode,
		TrialEndsAt:   &trialEnds,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, s.db, tenant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, tenantdomain.ErrSlugTaken
		}
		return nil, err
	}

	s.log.Info("tenant created",
		zap.String("slug", slug),
		zap.String("isolation_mode", string(mode)),
	)
	return tenant, nil
}

func (s *Service) Snapshot(ctx context.Context, slug string) (*tenantdomain.Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if cached, ok := s.snapshots.Get(slug); ok {
		return cached, nil
	}

	tenant, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.snapshots.Set(slug, tenant, s.snapshotTTL)
	return tenant, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*tenantdomain.Tenant, error) {
	tenant, err := s.repo.FindBySlug(ctx, s.db, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *Service) Activate(ctx context.Context, slug string) error {
	return s.transition(ctx, slug, tenantdomain.StatusActive, func(t *tenantdomain.Tenant) map[string]any {
		due := s.clock.Now().AddDate(0, 1, 0)
		return map[string]any{"next_payment_due": due, "suspended_at": nil}
	})
}

func (s *Service) Cancel(ctx context.Context, slug string) error {
	return s.transition(ctx, slug, tenantdomain.StatusCancelled, nil)
}

func (s *Service) RecordPayment(ctx context.Context, slug string) error {
	tenant, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	fields := map[string]any{
		"next_payment_due": now.AddDate(0, 1, 0),
		"suspended_at":     nil,
		"updated_at":       now,
	}

	// A payment restores PAYMENT_DUE and SUSPENDED tenants to ACTIVE.
	if tenant.Status == tenantdomain.StatusPaymentDue || tenant.Status == tenantdomain.StatusSuspended {
		ok, err := s.repo.TransitionStatus(ctx, s.db, tenant.ID, tenant.Status, tenantdomain.StatusActive, now)
		if err != nil {
			return err
		}
		if !ok {
			return tenantdomain.ErrInvalidTransition
		}
	}

	if err := s.repo.UpdateFields(ctx, s.db, tenant.ID, fields); err != nil {
		return err
	}
	s.Invalidate(slug)
	return nil
}

func (s *Service) SetStorageExceeded(ctx context.Context, slug string, exceeded bool) error {
	tenant, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	err = s.repo.UpdateFields(ctx, s.db, tenant.ID, map[string]any{
		"storage_exceeded": exceeded,
		"updated_at":       s.clock.Now(),
	})
	if err != nil {
		return err
	}
	s.Invalidate(slug)
	return nil
}

func (s *Service) Invalidate(slug string) {
	s.snapshots.Delete(strings.ToLower(strings.TrimSpace(slug)))
}

func (s *Service) transition(ctx context.Context, slug string, to tenantdomain.SubscriptionStatus, extra func(*tenantdomain.Tenant) map[string]any) error {
	tenant, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	ok, err := s.repo.TransitionStatus(ctx, s.db, tenant.ID, tenant.Status, to, now)
	if err != nil {
		return err
	}
	if !ok {
		return tenantdomain.ErrInvalidTransition
	}

	if extra != nil {
		if fields := extra(tenant); len(fields) > 0 {
			fields["updated_at"] = now
			if err := s.repo.UpdateFields(ctx, s.db, tenant.ID, fields); err != nil {
				return err
			}
		}
	}

	s.Invalidate(slug)
	return nil
}
