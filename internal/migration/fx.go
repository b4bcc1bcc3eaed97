package migration

import (
	"strings"

	billingdomain "github.com/smallbiznis/tenantplane/internal/billing/domain"
	"github.com/smallbiznis/tenantplane/internal/config"
	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned migrations target the postgres registry. Other dialects
		// (mysql, sqlite in tests) fall back to schema sync from the models.
		if !strings.EqualFold(cfg.DBType, "postgres") {
			return conn.AutoMigrate(
				&tenantdomain.Tenant{},
				&meteringdomain.UsageSample{},
				&billingdomain.UsageAlert{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
