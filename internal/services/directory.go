package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/models"
)

// UserDirectory lists every known recipient. Broadcast sends snapshot it at send time.
type UserDirectory interface {
	AllUserIDs(ctx context.Context) ([]string, error)
}

// txDirectory is implemented by directories that can read inside a caller's transaction.
type txDirectory interface {
	WithTx(tx *gorm.DB) UserDirectory
}

// DBDirectory reads the users table.
type DBDirectory struct {
	db *gorm.DB
}

// DirectoryFromDB returns a directory backed by the users table.
func DirectoryFromDB(db *gorm.DB) *DBDirectory {
	return &DBDirectory{db: db}
}

// AllUserIDs returns every user id in creation order.
func (d *DBDirectory) AllUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := d.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("user directory: list users: %w", err)
	}
	return ids, nil
}

// WithTx binds the directory to tx.
func (d *DBDirectory) WithTx(tx *gorm.DB) UserDirectory {
	return &DBDirectory{db: tx}
}
