package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/charlesng35/fanout/internal/cache"
	testutil "github.com/charlesng35/fanout/internal/database/testutil"
	"github.com/charlesng35/fanout/internal/models"
	"github.com/charlesng35/fanout/internal/services"
)

func TestCleanerRunOncePrunesOldNotifications(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate(), testutil.WithUsers("u-1", "u-2"))
	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	svc, err := services.NewNotificationService(db)
	require.NoError(t, err)

	oldID, err := svc.SendBroadcast(context.Background(), services.SendInput{Title: "Old", Body: "stale"})
	require.NoError(t, err)
	freshID, err := svc.SendBroadcast(context.Background(), services.SendInput{Title: "Fresh", Body: "keep"})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", oldID).
		Update("created_at", clock.Now().AddDate(0, 0, -40)).Error)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", freshID).
		Update("created_at", clock.Now().AddDate(0, 0, -1)).Error)

	store, err := services.NewNotificationStore(db)
	require.NoError(t, err)
	dbCache := cache.NewDatabaseStore(db)
	require.NoError(t, dbCache.Set(context.Background(), "gone", []byte("x"), time.Millisecond))
	require.NoError(t, dbCache.Set(context.Background(), "kept", []byte("y"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	c := NewCleaner(store, dbCache,
		WithNow(clock.Now),
		WithRetentionDays(30),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(context.Background()))

	var ids []string
	require.NoError(t, db.Model(&models.Notification{}).Pluck("id", &ids).Error)
	require.Equal(t, []string{freshID}, ids)

	var entries int64
	require.NoError(t, db.Model(&models.FanoutEntry{}).Where("notification_id = ?", oldID).Count(&entries).Error)
	require.Zero(t, entries)

	var keys []string
	require.NoError(t, db.Model(&models.CacheEntry{}).Pluck("key", &keys).Error)
	require.Equal(t, []string{"kept"}, keys)
}

func TestCleanerRetentionDisabled(t *testing.T) {
	pruner := &recordingPruner{}
	c := NewCleaner(pruner, nil, WithRetentionDays(0))

	removed, err := c.PruneNotifications(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Zero(t, pruner.calls)
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	pruneErr := errors.New("prune failed")
	purgeErr := errors.New("purge failed")
	c := NewCleaner(&recordingPruner{err: pruneErr}, failingPurger{err: purgeErr})

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorIs(t, err, pruneErr)
	require.ErrorIs(t, err, purgeErr)
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(&recordingPruner{}, nil, WithRetentionSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerStartAndStop(t *testing.T) {
	c := NewCleaner(&recordingPruner{}, cache.NewMemoryStore())
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}

func TestCleanerCutoffUsesClock(t *testing.T) {
	now := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	pruner := &recordingPruner{}
	c := NewCleaner(pruner, nil, WithNow(func() time.Time { return now }), WithRetentionDays(10))

	_, err := c.PruneNotifications(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, pruner.calls)
	require.Equal(t, time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC), pruner.cutoff)
}

type recordingPruner struct {
	calls  int
	cutoff time.Time
	err    error
}

func (p *recordingPruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls++
	p.cutoff = cutoff
	return 0, p.err
}

type failingPurger struct {
	err error
}

func (f failingPurger) PurgeExpired(context.Context) (int64, error) {
	return 0, f.err
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
