package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tenantdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *tenantdomain.Tenant) error {
	return db.WithContext(ctx).Create(tenant).Error
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).Where("slug = ?", slug).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]tenantdomain.Tenant, error) {
	var tenants []tenantdomain.Tenant
	err := db.WithContext(ctx).Order("slug ASC").Find(&tenants).Error
	return tenants, err
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status tenantdomain.SubscriptionStatus) ([]tenantdomain.Tenant, error) {
	var tenants []tenantdomain.Tenant
	err := db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&tenants).Error
	return tenants, err
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to tenantdomain.SubscriptionStatus, at time.Time) (bool, error) {
	if !tenantdomain.CanTransition(from, to) {
		return false, tenantdomain.ErrInvalidTransition
	}

	fields := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if to == tenantdomain.StatusSuspended {
		fields["suspended_at"] = at
	}

	res := db.WithContext(ctx).
		Model(&tenantdomain.Tenant{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&tenantdomain.Tenant{}).
		Where("id = ?", id).
		Updates(fields).Error
}
