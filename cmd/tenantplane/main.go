package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantplane/internal/billing"
	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/config"
	"github.com/smallbiznis/tenantplane/internal/metering"
	"github.com/smallbiznis/tenantplane/internal/migration"
	"github.com/smallbiznis/tenantplane/internal/observability"
	"github.com/smallbiznis/tenantplane/internal/resolver"
	"github.com/smallbiznis/tenantplane/internal/router"
	"github.com/smallbiznis/tenantplane/internal/scheduler"
	"github.com/smallbiznis/tenantplane/internal/server"
	"github.com/smallbiznis/tenantplane/internal/tenant"
	"github.com/smallbiznis/tenantplane/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		tenant.Module,
		resolver.Module,
		router.Module,
		metering.Module,
		billing.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
