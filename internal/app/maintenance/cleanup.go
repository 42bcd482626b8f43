package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/fanout/pkg/logger"
)

const (
	defaultRetentionDays     = 90
	defaultRetentionSchedule = "@daily"
	defaultCacheSchedule     = "@hourly"
)

// NotificationPruner removes notifications, and through the cascade their fan-out entries,
// created before a cutoff.
type NotificationPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CachePurger drops expired cache entries. Redis expires keys itself and needs no purger.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance: notification retention and cache expiry.
type Cleaner struct {
	notifications NotificationPruner
	cache         CachePurger
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger
	retention     int

	retentionSchedule string
	cacheSchedule     string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetentionDays adjusts how long notifications are kept. Zero or less disables pruning.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		cleaner.retention = days
	}
}

// WithRetentionSchedule overrides the cron specification for notification pruning.
func WithRetentionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.retentionSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache purging.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(notifications NotificationPruner, cache CachePurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		notifications:     notifications,
		cache:             cache,
		now:               time.Now,
		retention:         defaultRetentionDays,
		retentionSchedule: defaultRetentionSchedule,
		cacheSchedule:     defaultCacheSchedule,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

func (c *Cleaner) pruneEnabled() bool {
	return c.notifications != nil && c.retention > 0
}

// Start registers the jobs with the scheduler and launches it when at least one job exists.
func (c *Cleaner) Start() error {
	jobs := 0

	if c.pruneEnabled() {
		if _, err := c.cron.AddFunc(c.retentionSchedule, func() {
			if _, err := c.PruneNotifications(context.Background()); err != nil {
				c.log.Warn("notification retention failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if _, err := c.cache.PurgeExpired(context.Background()); err != nil {
				c.log.Warn("cache purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if jobs > 0 {
		c.cron.Start()
	}
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// PruneNotifications deletes notifications older than the retention window.
func (c *Cleaner) PruneNotifications(ctx context.Context) (int64, error) {
	if !c.pruneEnabled() {
		return 0, nil
	}
	cutoff := c.now().AddDate(0, 0, -c.retention)
	removed, err := c.notifications.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("pruned notifications", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// RunOnce executes every configured job sequentially. Used in tests and at shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if _, err := c.PruneNotifications(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	if c.cache != nil {
		if _, err := c.cache.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
