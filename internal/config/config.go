package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// Tenant resolution.
	BaseDomain         string
	ReservedSubdomains []string
	TenantHeader       string

	// Registry database (also the shared host for SCHEMA-mode tenants).
	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Connection routing.
	TenantDBPrefix  string
	SharedTenantDB  string
	ConnOpenTimeout time.Duration
	SnapshotTTL     time.Duration

	// Metering.
	FlushInterval time.Duration

	// Lifecycle sweep.
	SweepInterval    time.Duration
	SweepGraceDays   int
	SweepSuspendDays int

	// Distributed locks (optional; single-replica deployments leave this off).
	LocksEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "tenantplane"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		BaseDomain:         strings.ToLower(getenv("TENANT_BASE_DOMAIN", "mycafemate.com")),
		ReservedSubdomains: parseList(getenv("TENANT_RESERVED_SUBDOMAINS", "admin,www,api")),
		TenantHeader:       getenv("TENANT_HEADER", "X-Tenant-ID"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tenantplane"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		TenantDBPrefix:  getenv("TENANT_DB_PREFIX", "tenant_"),
		SharedTenantDB:  getenv("TENANT_SHARED_DB", "tenants_shared"),
		ConnOpenTimeout: getenvDuration("TENANT_CONN_OPEN_TIMEOUT", 5*time.Second),
		SnapshotTTL:     getenvDuration("TENANT_SNAPSHOT_TTL", 45*time.Second),

		FlushInterval: getenvDuration("USAGE_FLUSH_INTERVAL", 60*time.Second),

		SweepInterval:    getenvDuration("SWEEP_INTERVAL", time.Hour),
		SweepGraceDays:   getenvInt("SWEEP_GRACE_DAYS", 5),
		SweepSuspendDays: getenvInt("SWEEP_SUSPEND_DAYS", 15),

		LocksEnabled:  getenvBool("LOCKS_ENABLED", false),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
