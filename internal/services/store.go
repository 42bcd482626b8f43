package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/models"
)

// NotificationStore persists notification records.
type NotificationStore struct {
	db *gorm.DB
}

// NewNotificationStore constructs a NotificationStore.
func NewNotificationStore(db *gorm.DB) (*NotificationStore, error) {
	if db == nil {
		return nil, errors.New("notification store: db is required")
	}
	return &NotificationStore{db: db}, nil
}

// Create inserts notification using tx, or the store's handle when tx is nil.
func (s *NotificationStore) Create(ctx context.Context, tx *gorm.DB, notification *models.Notification) error {
	if tx == nil {
		tx = s.db
	}
	if err := tx.WithContext(ensureContext(ctx)).Create(notification).Error; err != nil {
		return fmt.Errorf("notification store: create: %w", err)
	}
	return nil
}

// Get loads one notification.
func (s *NotificationStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.WithContext(ensureContext(ctx)).Where("id = ?", id).First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("notification store: get: %w", err)
	}
	return &notification, nil
}

// Delete removes a notification. Its fan-out entries go with it through the cascade.
func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ensureContext(ctx)).Where("id = ?", id).Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification store: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteOlderThan prunes notifications created before cutoff and returns how many went.
func (s *NotificationStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("created_at < ?", cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification store: prune: %w", result.Error)
	}
	return result.RowsAffected, nil
}
