package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
)

type tenantView struct {
	ID              string     `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	IsolationMode   string     `json:"isolation_mode"`
	Status          string     `json:"status"`
	PlanCode        string     `json:"plan_code"`
	TrialEndsAt     *time.Time `json:"trial_ends_at,omitempty"`
	NextPaymentDue  *time.Time `json:"next_payment_due,omitempty"`
	SuspendedAt     *time.Time `json:"suspended_at,omitempty"`
	StorageExceeded bool       `json:"storage_exceeded"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toTenantView(t *tenantdomain.Tenant) tenantView {
	return tenantView{
		ID:              t.ID.String(),
		Slug:            t.Slug,
		Name:            t.Name,
		IsolationMode:   string(t.IsolationMode),
		Status:          string(t.Status),
		PlanCode:        t.PlanCode,
		TrialEndsAt:     t.TrialEndsAt,
		NextPaymentDue:  t.NextPaymentDue,
		SuspendedAt:     t.SuspendedAt,
		StorageExceeded: t.StorageExceeded,
		CreatedAt:       t.CreatedAt,
	}
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req tenantdomain.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTenantView(tenant))
}

func (s *Server) GetTenant(c *gin.Context) {
	tenant, err := s.tenantSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTenantView(tenant))
}

func (s *Server) ActivateTenant(c *gin.Context) {
	s.transitionTenant(c, s.tenantSvc.Activate)
}

func (s *Server) CancelTenant(c *gin.Context) {
	s.transitionTenant(c, s.tenantSvc.Cancel)
}

func (s *Server) RecordPayment(c *gin.Context) {
	s.transitionTenant(c, s.tenantSvc.RecordPayment)
}

func (s *Server) transitionTenant(c *gin.Context, op func(ctx context.Context, slug string) error) {
	slug := c.Param("slug")
	if err := op(c.Request.Context(), slug); err != nil {
		AbortWithError(c, err)
		return
	}

	tenant, err := s.tenantSvc.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTenantView(tenant))
}
