package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantplane/internal/metering/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type usageRepository struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) domain.Repository {
	return &usageRepository{genID: genID}
}

func (r *usageRepository) IncrementRequests(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, date time.Time, total int64, byEndpoint map[string]int64) error {
	if total <= 0 && len(byEndpoint) == 0 {
		return nil
	}
	date = domain.Day(date)

	sample := domain.UsageSample{
		ID:              r.genID.Generate(),
		TenantID:        tenantID,
		Date:            date,
		APIRequestCount: total,
	}

	// Counter column increments atomically on conflict. The endpoint map is
	// merged separately below (including on fresh inserts); flushes are
	// serialized by the flusher, so read-modify-write on the map does not
	// race with itself.
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"api_request_count": gorm.Expr("usage_samples.api_request_count + ?", total),
			"updated_at":        time.Now().UTC(),
		}),
	}).Create(&sample).Error
	if err != nil {
		return err
	}
	if len(byEndpoint) == 0 {
		return nil
	}
	return r.mergeEndpoints(ctx, db, tenantID, date, byEndpoint)
}

func (r *usageRepository) mergeEndpoints(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, date time.Time, byEndpoint map[string]int64) error {
	var existing domain.UsageSample
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND date = ?", tenantID, date).
		First(&existing).Error
	if err != nil {
		return err
	}

	merged := existing.APIRequestsByEndpoint
	if merged == nil {
		merged = datatypes.JSONMap{}
	}
	for endpoint, n := range byEndpoint {
		prev := int64(0)
		if v, ok := merged[endpoint]; ok {
			if f, ok := v.(float64); ok {
				prev = int64(f)
			}
		}
		merged[endpoint] = prev + n
	}

	return db.WithContext(ctx).Model(&domain.UsageSample{}).
		Where("tenant_id = ? AND date = ?", tenantID, date).
		Update("api_requests_by_endpoint", merged).Error
}

func (r *usageRepository) SetMeasurements(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, date time.Time, dbSizeMB, storageMB int64) error {
	date = domain.Day(date)
	sample := domain.UsageSample{
		ID:        r.genID.Generate(),
		TenantID:  tenantID,
		Date:      date,
		DBSizeMB:  dbSizeMB,
		StorageMB: storageMB,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"db_size_mb": dbSizeMB,
			"storage_mb": storageMB,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&sample).Error
}

func (r *usageRepository) FindByTenantAndDate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, date time.Time) (*domain.UsageSample, error) {
	var sample domain.UsageSample
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND date = ?", tenantID, domain.Day(date)).
		First(&sample).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sample, nil
}

func (r *usageRepository) ListByDate(ctx context.Context, db *gorm.DB, date time.Time) ([]domain.UsageSample, error) {
	var samples []domain.UsageSample
	err := db.WithContext(ctx).
		Where("date = ?", domain.Day(date)).
		Order("tenant_id ASC").
		Find(&samples).Error
	return samples, err
}
