// Package domain contains the tenant registry models and the subscription
// status machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantplane/pkg/tenantctx"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a tenant subscription.
type SubscriptionStatus string

const (
	StatusTrial      SubscriptionStatus = "TRIAL"
	StatusActive     SubscriptionStatus = "ACTIVE"
	StatusPaymentDue SubscriptionStatus = "PAYMENT_DUE"
	StatusExpired    SubscriptionStatus = "EXPIRED"
	StatusSuspended  SubscriptionStatus = "SUSPENDED"
	StatusCancelled  SubscriptionStatus = "CANCELLED"
)

// allowedTransitions encodes the monotonic status machine. CANCELLED is
// terminal and reachable from every state.
var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	StatusTrial:      {StatusActive, StatusExpired},
	StatusActive:     {StatusPaymentDue},
	StatusPaymentDue: {StatusActive, StatusSuspended},
	StatusExpired:    {StatusActive},
	StatusSuspended:  {StatusActive},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to SubscriptionStatus) bool {
	if from == to {
		return false
	}
	if from == StatusCancelled {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Tenant is the registry record for one customer organization.
type Tenant struct {
	ID              snowflake.ID            `gorm:"primaryKey"`
	Slug            string                  `gorm:"type:text;not null;uniqueIndex"`
	Name            string                  `gorm:"type:text;not null"`
	IsolationMode   tenantctx.IsolationMode `gorm:"type:text;not null"`
	Status          SubscriptionStatus      `gorm:"type:text;not null;index"`
	PlanCode        string                  `gorm:"type:text;not null;default:'standard'"`
	TrialEndsAt     *time.Time              `gorm:""`
	NextPaymentDue  *time.Time              `gorm:""`
	SuspendedAt     *time.Time              `gorm:""`
	StorageExceeded bool                    `gorm:"not null;default:false"`
	PrioritySupport bool                    `gorm:"not null;default:false"`
	LimitOverrides  datatypes.JSONMap       `gorm:"type:jsonb"`
	CreatedAt       time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Identity returns the routing identity for this tenant.
func (t *Tenant) Identity() tenantctx.Identity {
	return tenantctx.Identity{Slug: t.Slug, Mode: t.IsolationMode}
}

// Limits is the effective allowance projection for one tenant: plan defaults
// with per-tenant overrides applied.
type Limits struct {
	MaxDBSizeMB          int64
	MaxStorageMB         int64
	MaxBandwidthMB       int64
	MaxAPIRequestsPerDay int64
	MaxOrders            int64
	MaxStaff             int64
}

// overridable maps override keys to limit fields.
var overridable = map[string]func(*Limits, int64){
	"maxDbSizeMB":          func(l *Limits, v int64) { l.MaxDBSizeMB = v },
	"maxStorageMB":         func(l *Limits, v int64) { l.MaxStorageMB = v },
	"maxBandwidthMB":       func(l *Limits, v int64) { l.MaxBandwidthMB = v },
	"maxApiRequestsPerDay": func(l *Limits, v int64) { l.MaxAPIRequestsPerDay = v },
	"maxOrders":            func(l *Limits, v int64) { l.MaxOrders = v },
	"maxStaff":             func(l *Limits, v int64) { l.MaxStaff = v },
}

// EffectiveLimits applies the tenant's overrides on top of plan defaults.
func (t *Tenant) EffectiveLimits(defaults Limits) Limits {
	limits := defaults
	for key, apply := range overridable {
		raw, ok := t.LimitOverrides[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			apply(&limits, int64(v))
		case int64:
			apply(&limits, v)
		case int:
			apply(&limits, int64(v))
		}
	}
	return limits
}
