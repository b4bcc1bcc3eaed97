package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanRates are the overage prices in whole NPR.
type PlanRates struct {
	BaseFee         int64 `mapstructure:"baseFee"`
	DBSizePerGB     int64 `mapstructure:"dbSizePerGB"`
	StoragePerGB    int64 `mapstructure:"storagePerGB"`
	BandwidthPerGB  int64 `mapstructure:"bandwidthPerGB"`
	PerOrder        int64 `mapstructure:"perOrder"`
	PerStaffSeat    int64 `mapstructure:"perStaffSeat"`
	PrioritySupport int64 `mapstructure:"prioritySupport"`
}

// PlanLimits are the included allowances of the default plan. Per-tenant
// overrides in the registry take precedence over these.
type PlanLimits struct {
	MaxDBSizeMB          int64 `mapstructure:"maxDbSizeMB"`
	MaxStorageMB         int64 `mapstructure:"maxStorageMB"`
	MaxBandwidthMB       int64 `mapstructure:"maxBandwidthMB"`
	MaxAPIRequestsPerDay int64 `mapstructure:"maxApiRequestsPerDay"`
	MaxOrders            int64 `mapstructure:"maxOrders"`
	MaxStaff             int64 `mapstructure:"maxStaff"`
}

// AlertThresholds are usage percentages that raise alerts.
type AlertThresholds struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

type BillingConfig struct {
	Rates         PlanRates       `mapstructure:"rates"`
	DefaultLimits PlanLimits      `mapstructure:"defaultLimits"`
	Thresholds    AlertThresholds `mapstructure:"thresholds"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Rates: PlanRates{
			BaseFee:         1500,
			DBSizePerGB:     5,
			StoragePerGB:    5,
			BandwidthPerGB:  3,
			PerOrder:        1,
			PerStaffSeat:    100,
			PrioritySupport: 500,
		},
		DefaultLimits: PlanLimits{
			MaxDBSizeMB:          512,
			MaxStorageMB:         1024,
			MaxBandwidthMB:       10240,
			MaxAPIRequestsPerDay: 50000,
			MaxOrders:            2000,
			MaxStaff:             10,
		},
		Thresholds: AlertThresholds{
			Warning:  80,
			Critical: 90,
		},
	}
}

// BillingConfigHolder exposes the current billing config and hot-reloads it
// when the underlying file changes.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tenantplane/config")
	v.AddConfigPath("/etc/tenantplane")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TENANTPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.rates", defaults.Rates)
		v.SetDefault("billing.defaultLimits", defaults.DefaultLimits)
		v.SetDefault("billing.thresholds", defaults.Thresholds)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	cfg = withBillingDefaults(cfg)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		updated = withBillingDefaults(updated)
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// Current returns the active billing config snapshot.
func (h *BillingConfigHolder) Current() BillingConfig {
	cfg, _ := h.current.Load().(BillingConfig)
	return cfg
}

// NewStaticBillingConfigHolder wraps a fixed config; used by tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(withBillingDefaults(cfg))
	return holder
}

func withBillingDefaults(cfg BillingConfig) BillingConfig {
	defaults := DefaultBillingConfig()
	if cfg.Thresholds.Warning <= 0 {
		cfg.Thresholds.Warning = defaults.Thresholds.Warning
	}
	if cfg.Thresholds.Critical <= 0 {
		cfg.Thresholds.Critical = defaults.Thresholds.Critical
	}
	if cfg.DefaultLimits == (PlanLimits{}) {
		cfg.DefaultLimits = defaults.DefaultLimits
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.Rates.BaseFee < 0 || cfg.Rates.DBSizePerGB < 0 || cfg.Rates.StoragePerGB < 0 || cfg.Rates.BandwidthPerGB < 0 ||
		cfg.Rates.PerOrder < 0 || cfg.Rates.PerStaffSeat < 0 || cfg.Rates.PrioritySupport < 0 {
		return errors.New("billing rates must not be negative")
	}
	if cfg.Thresholds.Warning >= cfg.Thresholds.Critical {
		return errors.New("warning threshold must be below critical threshold")
	}
	if cfg.Thresholds.Critical > 100 {
		return errors.New("critical threshold must not exceed 100")
	}
	return nil
}
