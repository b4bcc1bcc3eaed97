package router

import (
	"github.com/smallbiznis/tenantplane/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("router",
	fx.Provide(NewOpener),
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		OpenTimeout: cfg.ConnOpenTimeout,
		DBPrefix:    cfg.TenantDBPrefix,
	}
}
