package router

import (
	"context"

	"github.com/smallbiznis/tenantplane/internal/config"
	"github.com/smallbiznis/tenantplane/pkg/db"
	"github.com/smallbiznis/tenantplane/pkg/tenantctx"
	"gorm.io/gorm"
)

// gormOpener opens tenant stores using the configured dialect.
type gormOpener struct {
	cfg config.Config
}

func NewOpener(cfg config.Config) Opener {
	return &gormOpener{cfg: cfg}
}

func (o *gormOpener) Open(ctx context.Context, target Target) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		err       error
	)
	if target.Mode == tenantctx.IsolationDatabase {
		dialector, err = db.TenantDialect(o.cfg, target.Database)
	} else {
		dialector, err = db.SchemaDialect(o.cfg, target.Schema)
	}
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(o.cfg.DBMaxOpenConn)

	// gorm.Open does not dial eagerly on every driver; ping under the open
	// timeout so unreachable stores fail fast here, not on first query.
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return conn, nil
}
