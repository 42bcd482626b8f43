package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
// Notification must precede FanoutEntry so the cascade constraint has a target.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	return db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.FanoutEntry{},
		&models.Subscription{},
		&models.CacheEntry{},
	)
}
