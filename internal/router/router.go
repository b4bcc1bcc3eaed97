// Package router resolves tenant identities to cached data-access handles.
//
// Handles are cached per (slug, isolation mode) for the process lifetime.
// First access for a never-before-seen tenant is guarded by a single-flight
// group so that N concurrent callers establish exactly one physical
// connection. Eviction is explicit; the router never evicts on inactivity or
// on a failing gate check.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/gate"
	obsmetrics "github.com/smallbiznis/tenantplane/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"github.com/smallbiznis/tenantplane/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"sync"
)

// ErrConnectionTimeout marks a tenant store that could not be reached within
// the connection-open timeout. The router does not retry; callers decide.
var ErrConnectionTimeout = errors.New("tenant_connection_timeout")

// Opener establishes a physical connection to a tenant target. Injectable so
// tests can count and stub connection establishment.
type Opener interface {
	Open(ctx context.Context, target Target) (*gorm.DB, error)
}

// Config controls routing behaviour.
type Config struct {
	// OpenTimeout bounds connection establishment, distinct from any request
	// deadline, so an unreachable tenant store fails fast.
	OpenTimeout time.Duration
	DBPrefix    string
}

func (c Config) withDefaults() Config {
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 5 * time.Second
	}
	if c.DBPrefix == "" {
		c.DBPrefix = "tenant_"
	}
	return c
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Registry tenantdomain.Service
	Opener   Opener
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Config   Config              `optional:"true"`
}

type Router struct {
	log      *zap.Logger
	registry tenantdomain.Service
	opener   Opener
	clock    clock.Clock
	metrics  *obsmetrics.Metrics
	cfg      Config

	mu      sync.RWMutex
	handles map[string]*Handle
	group   singleflight.Group
}

func New(p Params) *Router {
	return &Router{
		log:      p.Log.Named("router"),
		registry: p.Registry,
		opener:   p.Opener,
		clock:    p.Clock,
		metrics:  p.Metrics,
		cfg:      p.Config.withDefaults(),
		handles:  make(map[string]*Handle),
	}
}

// Grant is a released handle plus any grace-period warning the gate attached.
type Grant struct {
	Handle  *Handle
	Warning string
}

// GetHandle returns the data-access handle for a tenant slug.
//
// The subscription gate runs on every call, against a registry snapshot no
// staler than the configured TTL, before a cached or fresh handle is
// released. A failing gate check returns the error without evicting: the
// physical connection may still be valid for when the tenant recovers.
func (r *Router) GetHandle(ctx context.Context, slug string) (*Grant, error) {
	record, err := r.registry.Snapshot(ctx, slug)
	if err != nil {
		return nil, err
	}

	result, err := gate.Check(record, r.clock.Now())
	if err != nil {
		var denied *gate.AccessDeniedError
		if r.metrics != nil && errors.As(err, &denied) {
			r.metrics.GateDenials.WithLabelValues(string(denied.Reason)).Inc()
		}
		return nil, err
	}

	identity := record.Identity()
	handle, err := r.handleFor(identity)
	if err != nil {
		return nil, err
	}
	return &Grant{Handle: handle, Warning: result.Warning}, nil
}

func (r *Router) handleFor(identity tenantctx.Identity) (*Handle, error) {
	key := cacheKey(identity)

	r.mu.RLock()
	handle, ok := r.handles[key]
	r.mu.RUnlock()
	if ok {
		if r.metrics != nil {
			r.metrics.RouterCacheHits.Inc()
		}
		return handle, nil
	}

	if r.metrics != nil {
		r.metrics.RouterCacheMisses.Inc()
	}

	// Single-flight: concurrent first-accessors for the same key await one
	// in-flight open instead of establishing duplicate connections.
	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		existing, ok := r.handles[key]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		opened, err := r.open(identity)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.handles[key] = opened
		r.mu.Unlock()
		return opened, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (r *Router) open(identity tenantctx.Identity) (*Handle, error) {
	target := TargetFor(identity, r.cfg.DBPrefix)

	// Detached context: the open is bounded by its own timeout, not by the
	// winning caller's request deadline, so concurrent waiters are not
	// failed by one caller's cancellation.
	openCtx, cancel := context.WithTimeout(context.Background(), r.cfg.OpenTimeout)
	defer cancel()

	start := time.Now()
	conn, err := r.opener.Open(openCtx, target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			r.log.Warn("tenant connection open timed out",
				zap.String("slug", identity.Slug),
				zap.Duration("timeout", r.cfg.OpenTimeout),
			)
			return nil, ErrConnectionTimeout
		}
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.ConnectionsOpened.Inc()
	}
	r.log.Info("tenant connection established",
		zap.String("slug", identity.Slug),
		zap.String("mode", string(identity.Mode)),
		zap.Duration("took", time.Since(start)),
	)
	return newHandle(identity, target, conn), nil
}

// Evict closes and removes the tenant's cached handles for both isolation
// modes. Triggered externally on hard delete or isolation-mode change.
func (r *Router) Evict(slug string) {
	keys := []string{
		cacheKey(tenantctx.Identity{Slug: slug, Mode: tenantctx.IsolationSchema}),
		cacheKey(tenantctx.Identity{Slug: slug, Mode: tenantctx.IsolationDatabase}),
	}

	r.mu.Lock()
	evicted := make([]*Handle, 0, len(keys))
	for _, key := range keys {
		if h, ok := r.handles[key]; ok {
			evicted = append(evicted, h)
			delete(r.handles, key)
		}
	}
	r.mu.Unlock()

	for _, h := range evicted {
		if err := h.Close(); err != nil {
			r.log.Warn("closing evicted handle failed",
				zap.String("slug", slug),
				zap.Error(err),
			)
		}
		if r.metrics != nil {
			r.metrics.ConnectionsEvicted.Inc()
		}
	}
}

// Cached reports whether a handle exists for the identity; used by admin
// introspection and tests.
func (r *Router) Cached(identity tenantctx.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[cacheKey(identity)]
	return ok
}

func cacheKey(identity tenantctx.Identity) string {
	return identity.Slug + "|" + string(identity.Mode)
}
