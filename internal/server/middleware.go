package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantplane/internal/resolver"
	"github.com/smallbiznis/tenantplane/internal/router"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"github.com/smallbiznis/tenantplane/pkg/tenantctx"
)

const (
	ctxTenantKey = "tenant_record"
	ctxGrantKey  = "tenant_grant"
)

// TenantContext resolves the caller's tenant from the request host (or the
// tenant header when the host carries no subdomain), gates it, attaches the
// routed handle to the request and meters the request against the tenant.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		candidate, err := s.resolver.Resolve(resolver.RequestMetadata{
			Host:       c.Request.Host,
			HeaderSlug: c.GetHeader(s.cfg.TenantHeader),
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if candidate == nil {
			// Reserved subdomain; there is no tenant scope on this group.
			AbortWithError(c, resolver.ErrUnresolved)
			return
		}

		record, err := s.tenantSvc.Snapshot(c.Request.Context(), candidate.Slug)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		grant, err := s.router.GetHandle(c.Request.Context(), candidate.Slug)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if grant.Warning != "" {
			c.Header("X-Subscription-Warning", grant.Warning)
		}

		c.Set("tenant_slug", record.Slug)
		c.Set(ctxTenantKey, record)
		c.Set(ctxGrantKey, grant)
		c.Request = c.Request.WithContext(
			tenantctx.WithIdentity(c.Request.Context(), grant.Handle.Identity()),
		)

		// Counted after the gate so denied requests never meter.
		s.recorder.RecordRequest(record.ID, c.FullPath())

		c.Next()
	}
}

func tenantFromContext(c *gin.Context) *tenantdomain.Tenant {
	v, ok := c.Get(ctxTenantKey)
	if !ok {
		return nil
	}
	record, _ := v.(*tenantdomain.Tenant)
	return record
}

func grantFromContext(c *gin.Context) *router.Grant {
	v, ok := c.Get(ctxGrantKey)
	if !ok {
		return nil
	}
	grant, _ := v.(*router.Grant)
	return grant
}
