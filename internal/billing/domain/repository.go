package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAlert(ctx context.Context, db *gorm.DB, alert *UsageAlert) error

	// FindOpenAlert returns the highest-ranked unacknowledged alert for the
	// tenant, dimension and day, or nil when none is open.
	FindOpenAlert(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, dimension Dimension, date time.Time) (*UsageAlert, error)

	ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, includeAcked bool) ([]UsageAlert, error)

	// Acknowledge marks the alert acked; returns false when the alert does
	// not exist or is already acknowledged.
	Acknowledge(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}
