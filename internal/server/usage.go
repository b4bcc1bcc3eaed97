package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
)

type usageView struct {
	Date            time.Time        `json:"date"`
	DBSizeMB        int64            `json:"db_size_mb"`
	StorageMB       int64            `json:"storage_mb"`
	BandwidthMB     int64            `json:"bandwidth_mb"`
	APIRequestCount int64            `json:"api_request_count"`
	ByEndpoint      map[string]int64 `json:"api_requests_by_endpoint,omitempty"`
	OrderCount      int64            `json:"order_count"`
	StaffCount      int64            `json:"staff_count"`
	Limits          limitsView       `json:"limits"`
}

type limitsView struct {
	MaxDBSizeMB          int64 `json:"max_db_size_mb"`
	MaxStorageMB         int64 `json:"max_storage_mb"`
	MaxBandwidthMB       int64 `json:"max_bandwidth_mb"`
	MaxAPIRequestsPerDay int64 `json:"max_api_requests_per_day"`
	MaxOrders            int64 `json:"max_orders"`
	MaxStaff             int64 `json:"max_staff"`
}

// GetUsage returns the tenant's sample for the requested day (today by
// default). Flushed counts only; buffered requests appear after the next
// flush interval.
func (s *Server) GetUsage(c *gin.Context) {
	tenant := tenantFromContext(c)
	if tenant == nil {
		AbortWithError(c, ErrInternal)
		return
	}

	day, err := s.requestedDay(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sample, err := s.usageRepo.FindByTenantAndDate(c.Request.Context(), s.db, tenant.ID, day)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limits := s.calculator.EffectiveLimits(tenant)
	view := usageView{
		Date: day,
		Limits: limitsView{
			MaxDBSizeMB:          limits.MaxDBSizeMB,
			MaxStorageMB:         limits.MaxStorageMB,
			MaxBandwidthMB:       limits.MaxBandwidthMB,
			MaxAPIRequestsPerDay: limits.MaxAPIRequestsPerDay,
			MaxOrders:            limits.MaxOrders,
			MaxStaff:             limits.MaxStaff,
		},
	}
	if sample != nil {
		view.DBSizeMB = sample.DBSizeMB
		view.StorageMB = sample.StorageMB
		view.BandwidthMB = sample.BandwidthMB
		view.APIRequestCount = sample.APIRequestCount
		view.OrderCount = sample.OrderCount
		view.StaffCount = sample.StaffCount
		view.ByEndpoint = endpointCounts(sample)
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) GetBill(c *gin.Context) {
	tenant := tenantFromContext(c)
	if tenant == nil {
		AbortWithError(c, ErrInternal)
		return
	}

	day, err := s.requestedDay(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sample, err := s.usageRepo.FindByTenantAndDate(c.Request.Context(), s.db, tenant.ID, day)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	bill := s.calculator.ComputeBill(tenant, sample)
	if sample == nil {
		bill.Period = day
	}
	c.JSON(http.StatusOK, bill)
}

func (s *Server) ListAlerts(c *gin.Context) {
	tenant := tenantFromContext(c)
	if tenant == nil {
		AbortWithError(c, ErrInternal)
		return
	}

	includeAcked, _ := strconv.ParseBool(c.DefaultQuery("include_acked", "false"))
	alerts, err := s.alertRepo.ListByTenant(c.Request.Context(), s.db, tenant.ID, includeAcked)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) AcknowledgeAlert(c *gin.Context) {
	tenant := tenantFromContext(c)
	if tenant == nil {
		AbortWithError(c, ErrInternal)
		return
	}

	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_alert_id", "invalid alert id"))
		return
	}

	if !s.alertBelongsToTenant(c, tenant.ID, id) {
		AbortWithError(c, ErrNotFound)
		return
	}

	acked, err := s.alertRepo.Acknowledge(c.Request.Context(), s.db, id, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !acked {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) alertBelongsToTenant(c *gin.Context, tenantID, alertID snowflake.ID) bool {
	alerts, err := s.alertRepo.ListByTenant(c.Request.Context(), s.db, tenantID, true)
	if err != nil {
		return false
	}
	for _, a := range alerts {
		if a.ID == alertID {
			return true
		}
	}
	return false
}

func (s *Server) requestedDay(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return meteringdomain.Day(s.clock.Now()), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD")
	}
	return meteringdomain.Day(parsed), nil
}

func endpointCounts(sample *meteringdomain.UsageSample) map[string]int64 {
	if len(sample.APIRequestsByEndpoint) == 0 {
		return nil
	}
	out := make(map[string]int64, len(sample.APIRequestsByEndpoint))
	for endpoint, v := range sample.APIRequestsByEndpoint {
		switch n := v.(type) {
		case float64:
			out[endpoint] = int64(n)
		case int64:
			out[endpoint] = n
		}
	}
	return out
}
