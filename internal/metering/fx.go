package metering

import (
	"github.com/smallbiznis/tenantplane/internal/metering/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("metering",
	fx.Provide(repository.Provide),
	fx.Provide(NewRecorder),
	fx.Provide(NewFlusher),
	fx.Invoke(registerFlusher),
)
