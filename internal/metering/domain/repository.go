package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// IncrementRequests upserts the (tenant, day) sample, adding total to the
	// daily request count atomically and merging per-endpoint counts
	// key-wise. Existing counts are never overwritten.
	IncrementRequests(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, date time.Time, total int64, byEndpoint map[string]int64) error

	// SetMeasurements upserts absolute gauge values (db size, storage) for
	// the (tenant, day) sample.
	SetMeasurements(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, date time.Time, dbSizeMB, storageMB int64) error

	FindByTenantAndDate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, date time.Time) (*UsageSample, error)
	ListByDate(ctx context.Context, db *gorm.DB, date time.Time) ([]UsageSample, error)
}
