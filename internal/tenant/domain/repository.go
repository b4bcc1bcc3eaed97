package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Tenant, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	List(ctx context.Context, db *gorm.DB) ([]Tenant, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status SubscriptionStatus) ([]Tenant, error)

	// TransitionStatus performs a compare-and-set status change: the update
	// applies only while the row still holds the expected status. Returns
	// false when the row was already transitioned (safe re-run).
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to SubscriptionStatus, at time.Time) (bool, error)

	// UpdateFields applies an atomic partial update to one tenant row.
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
}
