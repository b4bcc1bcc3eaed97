// Package domain contains the billing dimensions, the usage alert model and
// the computed bill projection.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Dimension identifies one billable or alertable usage axis.
type Dimension string

const (
	DimensionDBSize      Dimension = "db_size"
	DimensionStorage     Dimension = "storage"
	DimensionBandwidth   Dimension = "bandwidth"
	DimensionAPIRequests Dimension = "api_requests"
	DimensionOrders      Dimension = "orders"
	DimensionStaff       Dimension = "staff"
)

// AlertLevel orders alert severity. Rank comparisons drive dedup: an open
// alert suppresses re-raising at the same or a lower level.
type AlertLevel string

const (
	LevelWarning  AlertLevel = "WARNING"
	LevelCritical AlertLevel = "CRITICAL"
	LevelExceeded AlertLevel = "EXCEEDED"
)

func (l AlertLevel) Rank() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelCritical:
		return 2
	case LevelExceeded:
		return 3
	}
	return 0
}

// UsageAlert is a persisted threshold crossing for one tenant, dimension and
// day. Alerts stay open until acknowledged.
type UsageAlert struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	TenantID     snowflake.ID `gorm:"not null;index:ix_usage_alerts_tenant_date,priority:1"`
	Date         time.Time    `gorm:"type:date;not null;index:ix_usage_alerts_tenant_date,priority:2"`
	Dimension    Dimension    `gorm:"type:text;not null"`
	Level        AlertLevel   `gorm:"type:text;not null"`
	UsagePct     float64      `gorm:"not null"`
	Observed     int64        `gorm:"not null"`
	Allowed      int64        `gorm:"not null"`
	Acknowledged bool         `gorm:"not null;default:false"`
	AckedAt      *time.Time   `gorm:""`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageAlert) TableName() string { return "usage_alerts" }

// LineItem is one dimension's contribution to a bill.
type LineItem struct {
	Dimension Dimension `json:"dimension"`
	Used      int64     `json:"used"`
	Included  int64     `json:"included"`
	Overage   int64     `json:"overage"`
	Charge    int64     `json:"charge"`
}

// Bill is the computed monthly charge projection for one tenant, in whole
// NPR. It is derived on read and never persisted.
type Bill struct {
	TenantID        snowflake.ID `json:"tenant_id"`
	Period          time.Time    `json:"period"`
	BaseFee         int64        `json:"base_fee"`
	PrioritySupport int64        `json:"priority_support"`
	Lines           []LineItem   `json:"lines"`
	TotalOverage    int64        `json:"total_overage"`
	Total           int64        `json:"total"`
}
