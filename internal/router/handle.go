package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/tenantplane/pkg/tenantctx"
	"gorm.io/gorm"
)

// Target locates a tenant's physical store.
type Target struct {
	Mode     tenantctx.IsolationMode
	Database string
	Schema   string
}

// TargetFor derives the deterministic locator for a tenant: non-alphanumeric
// runes become underscores, DATABASE-mode names carry the configured prefix.
func TargetFor(identity tenantctx.Identity, dbPrefix string) Target {
	name := sanitizeName(identity.Slug)
	if identity.Mode == tenantctx.IsolationDatabase {
		return Target{Mode: identity.Mode, Database: dbPrefix + name}
	}
	return Target{Mode: identity.Mode, Schema: name}
}

func sanitizeName(slug string) string {
	var b strings.Builder
	b.Grow(len(slug))
	for _, r := range strings.ToLower(slug) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Handle is an opaque, shared data-access object scoped to one tenant's
// store. It is owned by the router cache; callers must not close it.
type Handle struct {
	identity tenantctx.Identity
	target   Target
	conn     *gorm.DB

	mu     sync.Mutex
	closed bool
}

func newHandle(identity tenantctx.Identity, target Target, conn *gorm.DB) *Handle {
	return &Handle{identity: identity, target: target, conn: conn}
}

func (h *Handle) Identity() tenantctx.Identity { return h.identity }

// DB exposes the underlying connection for the query layer downstream.
func (h *Handle) DB() *gorm.DB { return h.conn }

// MeasureSizeMB measures the tenant's storage footprint. DATABASE mode
// measures the whole physical database; SCHEMA mode sums every table in the
// tenant's schema. Expensive; batch jobs only, never the request path.
func (h *Handle) MeasureSizeMB(ctx context.Context) (int64, error) {
	var bytes int64
	var err error

	switch h.conn.Dialector.Name() {
	case "postgres":
		if h.target.Mode == tenantctx.IsolationSchema {
			err = h.conn.WithContext(ctx).Raw(
				`SELECT COALESCE(SUM(pg_total_relation_size(quote_ident(schemaname) || '.' || quote_ident(tablename))), 0)
				 FROM pg_tables WHERE schemaname = ?`,
				h.target.Schema,
			).Scan(&bytes).Error
		} else {
			err = h.conn.WithContext(ctx).Raw(
				`SELECT pg_database_size(current_database())`,
			).Scan(&bytes).Error
		}
	case "mysql":
		err = h.conn.WithContext(ctx).Raw(
			`SELECT COALESCE(SUM(data_length + index_length), 0)
			 FROM information_schema.tables WHERE table_schema = DATABASE()`,
		).Scan(&bytes).Error
	case "sqlite":
		err = h.conn.WithContext(ctx).Raw(
			`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
		).Scan(&bytes).Error
	default:
		return 0, fmt.Errorf("storage measurement unsupported for dialect %s", h.conn.Dialector.Name())
	}
	if err != nil {
		return 0, err
	}
	return bytes / (1024 * 1024), nil
}

// Close releases the underlying connection. Called only by the router on
// eviction.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	sqlDB, err := h.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
