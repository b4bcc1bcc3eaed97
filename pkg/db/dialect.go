package db

import (
	"fmt"

	"github.com/smallbiznis/tenantplane/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect builds the dialector for the registry database.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	return dialectFor(cfg, cfg.DBName, "")
}

// TenantDialect builds the dialector for a DATABASE-mode tenant: same host,
// dedicated physical database.
func TenantDialect(cfg config.Config, dbName string) (gorm.Dialector, error) {
	return dialectFor(cfg, dbName, "")
}

// SchemaDialect builds the dialector for a SCHEMA-mode tenant: the shared
// tenant database with the schema scoped via search_path.
func SchemaDialect(cfg config.Config, schema string) (gorm.Dialector, error) {
	return dialectFor(cfg, cfg.SharedTenantDB, schema)
}

func dialectFor(cfg config.Config, dbName, schema string) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql":
		// MySQL has no schemas distinct from databases; SCHEMA mode scopes to
		// a database of the same name.
		if schema != "" {
			dbName = schema
		}
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			dbName,
		)), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			dbName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)
		if schema != "" {
			dsn += fmt.Sprintf(" search_path=%s", schema)
		}
		return postgres.Open(dsn), nil
	case "sqlite":
		name := dbName
		if schema != "" {
			name = schema
		}
		return sqlite.Open(name + ".db"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}
