// Package clock abstracts time so schedulers and gates can be tested
// against a fake.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New returns the system clock.
func New() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(New),
)
