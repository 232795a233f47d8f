package scheduler

import (
	"time"

	"github.com/smallbiznis/portbilling/internal/config"
)

// Config controls the batch loop. Billing policy itself comes from the
// billing config holder and is snapshotted per run.
type Config struct {
	RunInterval    time.Duration
	JobTimeout     time.Duration
	RelayBatchSize int
	EnabledJobs    []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    5 * time.Minute,
		JobTimeout:     10 * time.Minute,
		RelayBatchSize: 100,
	}
}

func ProvideConfig(cfg config.Config) Config {
	out := DefaultConfig()
	if cfg.SchedulerIntervalSeconds > 0 {
		out.RunInterval = time.Duration(cfg.SchedulerIntervalSeconds) * time.Second
	}
	out.EnabledJobs = cfg.SchedulerJobs
	return out
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.RelayBatchSize <= 0 {
		c.RelayBatchSize = defaults.RelayBatchSize
	}
	return c
}
