package scheduler

import (
	"time"

	"github.com/lukasmk87/basketmanager/internal/config"
)

// Config controls the run loop. Dunning jobs follow billing.dunning.schedule;
// redemption expiry has its own cron spec.
type Config struct {
	RunInterval               time.Duration
	JobTimeout                time.Duration
	LockTTL                   time.Duration
	ExpireRedemptionsSchedule string
	ExpireBatchSize           int
	EnabledJobs               []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:               time.Minute,
		JobTimeout:                5 * time.Minute,
		LockTTL:                   10 * time.Minute,
		ExpireRedemptionsSchedule: "15 * * * *",
		ExpireBatchSize:           500,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.EnabledJobs = cfg.SchedulerJobs
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.ExpireRedemptionsSchedule == "" {
		c.ExpireRedemptionsSchedule = defaults.ExpireRedemptionsSchedule
	}
	if c.ExpireBatchSize <= 0 {
		c.ExpireBatchSize = defaults.ExpireBatchSize
	}
	return c
}
