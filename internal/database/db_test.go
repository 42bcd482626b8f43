package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Ping(context.Background(), db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestPingNilHandle(t *testing.T) {
	require.Error(t, Ping(context.Background(), nil))
	require.NoError(t, Close(nil))
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	for _, table := range []string{"users", "notifications", "fanout_entries", "subscriptions", "cache_entries"} {
		require.True(t, migrator.HasTable(table), "expected table %s", table)
	}
	require.True(t, migrator.HasIndex(&models.FanoutEntry{}, "idx_fanout_notification_recipient"))
	require.True(t, migrator.HasIndex(&models.Subscription{}, "idx_subscription_identity"))
}

func TestFanoutEntryUniquePerRecipient(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	n := models.Notification{Title: "t", Body: "b", SenderLabel: models.DefaultSenderLabel}
	require.NoError(t, db.Create(&n).Error)

	require.NoError(t, db.Create(&models.FanoutEntry{NotificationID: n.ID, RecipientID: "u1"}).Error)
	err := db.Create(&models.FanoutEntry{NotificationID: n.ID, RecipientID: "u1"}).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestNotificationDeleteCascadesEntries(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	n := models.Notification{Title: "t", Body: "b", SenderLabel: models.DefaultSenderLabel}
	require.NoError(t, db.Create(&n).Error)
	require.NoError(t, db.Create(&models.FanoutEntry{NotificationID: n.ID, RecipientID: "u1"}).Error)

	require.NoError(t, db.Delete(&models.Notification{}, "id = ?", n.ID).Error)

	var count int64
	require.NoError(t, db.Model(&models.FanoutEntry{}).Count(&count).Error)
	require.Zero(t, count)
}
