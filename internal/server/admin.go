package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerSweep runs one sweep immediately, outside the scheduler's interval
// and lock. Ops-only; CAS transitions make a concurrent scheduled run safe.
func (s *Server) TriggerSweep(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	report, err := s.scheduler.RunDailySweep(c.Request.Context())
	if err != nil {
		s.log.Warn("manual sweep finished with errors")
	}

	errs := make([]string, 0, len(report.Errors))
	for _, e := range report.Errors {
		errs = append(errs, e.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"trials_expired":          report.TrialsExpired,
		"payments_marked_overdue": report.PaymentsMarkedOverdue,
		"accounts_suspended":      report.AccountsSuspended,
		"tenants_reviewed":        report.TenantsReviewed,
		"errors":                  errs,
	})
}

// TriggerFlush forces the usage buffer to persist now.
func (s *Server) TriggerFlush(c *gin.Context) {
	if err := s.flusher.Flush(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"buffered_tenants": s.recorder.BufferedTenants(),
	})
}

// EvictTenant drops the tenant's cached connection handles and registry
// snapshot; the next request re-resolves and reconnects.
func (s *Server) EvictTenant(c *gin.Context) {
	slug := c.Param("slug")
	s.router.Evict(slug)
	s.tenantSvc.Invalidate(slug)
	c.Status(http.StatusNoContent)
}
