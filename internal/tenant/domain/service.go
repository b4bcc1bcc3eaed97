package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/tenantplane/pkg/tenantctx"
)

type CreateTenantRequest struct {
	Slug          string                  `json:"slug"`
	Name          string                  `json:"name"`
	IsolationMode tenantctx.IsolationMode `json:"isolation_mode"`
	TrialDays     int                     `json:"trial_days"`
	PlanCode      string                  `json:"plan_code"`
}

// Service is the registry surface consumed by the router, the gate callers
// and the lifecycle sweep.
type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (*Tenant, error)

	// Snapshot returns the tenant record for gating. The result may be up to
	// the configured snapshot TTL stale (default 45s, always <=60s); this is
	// the documented staleness window for routing-time checks.
	Snapshot(ctx context.Context, slug string) (*Tenant, error)

	// GetBySlug always reads through to the registry store.
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)

	Activate(ctx context.Context, slug string) error
	Cancel(ctx context.Context, slug string) error
	RecordPayment(ctx context.Context, slug string) error

	// SetStorageExceeded flips the storage hard-cap flag; only the sweep
	// calls this, never the read path.
	SetStorageExceeded(ctx context.Context, slug string, exceeded bool) error

	// Invalidate drops the cached snapshot for a tenant.
	Invalidate(slug string)
}

var (
	ErrTenantNotFound    = errors.New("tenant_not_found")
	ErrInvalidSlug       = errors.New("invalid_slug")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidIsolation  = errors.New("invalid_isolation_mode")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrSlugTaken         = errors.New("slug_taken")
)
