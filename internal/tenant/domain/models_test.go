package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to SubscriptionStatus }{
		{StatusTrial, StatusActive},
		{StatusTrial, StatusExpired},
		{StatusActive, StatusPaymentDue},
		{StatusPaymentDue, StatusActive},
		{StatusPaymentDue, StatusSuspended},
		{StatusExpired, StatusActive},
		{StatusSuspended, StatusActive},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to SubscriptionStatus }{
		{StatusTrial, StatusPaymentDue},
		{StatusTrial, StatusSuspended},
		{StatusActive, StatusTrial},
		{StatusActive, StatusExpired},
		{StatusActive, StatusSuspended},
		{StatusExpired, StatusTrial},
		{StatusSuspended, StatusPaymentDue},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransition_CancelledTerminal(t *testing.T) {
	all := []SubscriptionStatus{
		StatusTrial, StatusActive, StatusPaymentDue,
		StatusExpired, StatusSuspended,
	}
	for _, from := range all {
		assert.True(t, CanTransition(from, StatusCancelled), "%s -> CANCELLED", from)
	}
	for _, to := range all {
		assert.False(t, CanTransition(StatusCancelled, to), "CANCELLED -> %s", to)
	}
}

func TestCanTransition_NoSelfTransition(t *testing.T) {
	for _, s := range []SubscriptionStatus{StatusTrial, StatusActive, StatusCancelled} {
		assert.False(t, CanTransition(s, s))
	}
}

func TestEffectiveLimits_Defaults(t *testing.T) {
	defaults := Limits{
		MaxDBSizeMB:          512,
		MaxStorageMB:         1024,
		MaxAPIRequestsPerDay: 50000,
	}
	record := &Tenant{}

	assert.Equal(t, defaults, record.EffectiveLimits(defaults))
}

func TestEffectiveLimits_Overrides(t *testing.T) {
	defaults := Limits{
		MaxDBSizeMB:  512,
		MaxStorageMB: 1024,
		MaxStaff:     10,
	}
	record := &Tenant{
		// JSON numbers scan back as float64.
		LimitOverrides: datatypes.JSONMap{
			"maxStorageMB": float64(4096),
			"maxStaff":     float64(25),
			"unknownKey":   float64(1),
		},
	}

	limits := record.EffectiveLimits(defaults)
	assert.Equal(t, int64(512), limits.MaxDBSizeMB)
	assert.Equal(t, int64(4096), limits.MaxStorageMB)
	assert.Equal(t, int64(25), limits.MaxStaff)
}
