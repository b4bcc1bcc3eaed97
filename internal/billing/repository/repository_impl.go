package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantplane/internal/billing/domain"
	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
	"gorm.io/gorm"
)

type alertRepository struct{}

func Provide() domain.Repository {
	return &alertRepository{}
}

func (r *alertRepository) InsertAlert(ctx context.Context, db *gorm.DB, alert *domain.UsageAlert) error {
	return db.WithContext(ctx).Create(alert).Error
}

func (r *alertRepository) FindOpenAlert(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, dimension domain.Dimension, date time.Time) (*domain.UsageAlert, error) {
	var alerts []domain.UsageAlert
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND dimension = ? AND date = ? AND acknowledged = ?",
			tenantID, dimension, meteringdomain.Day(date), false).
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	top := alerts[0]
	for _, a := range alerts[1:] {
		if a.Level.Rank() > top.Level.Rank() {
			top = a
		}
	}
	return &top, nil
}

func (r *alertRepository) ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, includeAcked bool) ([]domain.UsageAlert, error) {
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !includeAcked {
		q = q.Where("acknowledged = ?", false)
	}

	var alerts []domain.UsageAlert
	err := q.Order("created_at DESC").Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *alertRepository) Acknowledge(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.UsageAlert{}).
		Where("id = ? AND acknowledged = ?", id, false).
		Updates(map[string]any{
			"acknowledged": true,
			"acked_at":     at,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
