package scheduler

import (
	"time"
)

// Config controls sweep cadence and lifecycle windows.
type Config struct {
	RunInterval time.Duration

	// GraceDays is how long past the payment due date an ACTIVE tenant keeps
	// full access before it is marked PAYMENT_DUE.
	GraceDays int

	// SuspendDays is how long past the payment due date a PAYMENT_DUE tenant
	// survives before suspension.
	SuspendDays int

	// LockTTL bounds how long one replica may hold the sweep lock.
	LockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		GraceDays:   5,
		SuspendDays: 15,
		LockTTL:     10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.GraceDays <= 0 {
		c.GraceDays = defaults.GraceDays
	}
	if c.SuspendDays <= 0 {
		c.SuspendDays = defaults.SuspendDays
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
