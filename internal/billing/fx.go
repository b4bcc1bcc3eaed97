package billing

import (
	"github.com/smallbiznis/tenantplane/internal/billing/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(repository.Provide),
	fx.Provide(NewCalculator),
	fx.Provide(NewLogSink),
	fx.Provide(NewEngine),
	fx.Provide(NewReviewer),
)
