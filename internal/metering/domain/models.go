// Package domain contains persistence models for per-tenant daily usage.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageSample is one tenant's measured consumption for one day. Created
// lazily on first observation, updated idempotently thereafter; rows are
// never deleted by this subsystem.
type UsageSample struct {
	ID                    snowflake.ID      `gorm:"primaryKey"`
	TenantID              snowflake.ID      `gorm:"not null;uniqueIndex:ux_usage_samples_tenant_date,priority:1"`
	Date                  time.Time         `gorm:"type:date;not null;uniqueIndex:ux_usage_samples_tenant_date,priority:2"`
	DBSizeMB              int64             `gorm:"not null;default:0"`
	StorageMB             int64             `gorm:"not null;default:0"`
	BandwidthMB           int64             `gorm:"not null;default:0"`
	APIRequestCount       int64             `gorm:"not null;default:0"`
	APIRequestsByEndpoint datatypes.JSONMap `gorm:"type:jsonb"`
	OrderCount            int64             `gorm:"not null;default:0"`
	StaffCount            int64             `gorm:"not null;default:0"`
	CreatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageSample) TableName() string { return "usage_samples" }

// Day truncates t to UTC day granularity, the sample key resolution.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
