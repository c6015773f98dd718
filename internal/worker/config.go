// Package worker runs background jobs against the navigation session store:
// position ingestion from Pub/Sub and idle session sweeps.
package worker

import (
	"time"
)

// SweepConfig holds configuration for the idle session sweep.
type SweepConfig struct {
	// MaxIdle is how long a session may go without positions before it is
	// removed.
	// Default: 30 minutes
	MaxIdle time.Duration

	// Interval is the time between sweeps when run by Start.
	// Default: 1 minute
	Interval time.Duration

	// Concurrency is the number of sessions removed in parallel. Removing a
	// navigating session publishes its final events, so removals are
	// bounded by the event backend.
	// Default: 3
	Concurrency int

	// Timeout bounds the removal of a single session.
	// Default: 10 seconds
	Timeout time.Duration
}

// DefaultSweepConfig returns the default sweep configuration.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		MaxIdle:     30 * time.Minute,
		Interval:    time.Minute,
		Concurrency: 3,
		Timeout:     10 * time.Second,
	}
}

func (c SweepConfig) withDefaults() SweepConfig {
	d := DefaultSweepConfig()
	if c.MaxIdle <= 0 {
		c.MaxIdle = d.MaxIdle
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
