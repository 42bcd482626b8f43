package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/models"
)

const ledgerBatchSize = 500

// FeedItem is one notification as seen by one recipient.
type FeedItem struct {
	Notification models.Notification `json:"notification"`
	IsRead       bool                `json:"isRead"`
	ReadAt       *time.Time          `json:"readAt,omitempty"`
}

// FanoutLedger tracks which recipient received which notification and the read state.
type FanoutLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewFanoutLedger constructs a FanoutLedger.
func NewFanoutLedger(db *gorm.DB) (*FanoutLedger, error) {
	if db == nil {
		return nil, errors.New("fanout ledger: db is required")
	}
	return &FanoutLedger{db: db, now: time.Now}, nil
}

// Insert writes one unread entry per recipient inside tx.
func (l *FanoutLedger) Insert(ctx context.Context, tx *gorm.DB, notificationID string, recipients []string) (int, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	if tx == nil {
		tx = l.db
	}

	entries := make([]models.FanoutEntry, 0, len(recipients))
	for _, recipient := range recipients {
		entries = append(entries, models.FanoutEntry{
			NotificationID: notificationID,
			RecipientID:    recipient,
		})
	}

	if err := tx.WithContext(ensureContext(ctx)).CreateInBatches(&entries, ledgerBatchSize).Error; err != nil {
		return 0, fmt.Errorf("fanout ledger: insert entries: %w", err)
	}
	return len(entries), nil
}

// MarkRead flips unread entries of recipient to read. Entries already read, or owned by
// someone else, are untouched. It returns the number of entries changed.
func (l *FanoutLedger) MarkRead(ctx context.Context, recipientID string, notificationIDs []string) (int64, error) {
	ids := normaliseIDs(notificationIDs)
	if recipientID == "" || len(ids) == 0 {
		return 0, nil
	}

	result := l.db.WithContext(ensureContext(ctx)).
		Model(&models.FanoutEntry{}).
		Where("recipient_id = ? AND notification_id IN ? AND is_read = ?", recipientID, ids, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": l.now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("fanout ledger: mark read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UnreadCount counts unread entries of recipient.
func (l *FanoutLedger) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	if err := l.db.WithContext(ensureContext(ctx)).
		Model(&models.FanoutEntry{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("fanout ledger: unread count: %w", err)
	}
	return count, nil
}

// ListFor returns the recipient's feed, newest first, along with the total entry count.
func (l *FanoutLedger) ListFor(ctx context.Context, recipientID string, limit, offset int) ([]FeedItem, int64, error) {
	ctx = ensureContext(ctx)
	limit, offset = NormalisePage(limit, offset)

	var total int64
	if err := l.db.WithContext(ctx).
		Model(&models.FanoutEntry{}).
		Where("recipient_id = ?", recipientID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("fanout ledger: count feed: %w", err)
	}

	var entries []models.FanoutEntry
	if err := l.db.WithContext(ctx).
		Preload("Notification").
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("fanout ledger: list feed: %w", err)
	}

	items := make([]FeedItem, 0, len(entries))
	for _, entry := range entries {
		if entry.Notification == nil {
			continue
		}
		items = append(items, FeedItem{
			Notification: *entry.Notification,
			IsRead:       entry.IsRead,
			ReadAt:       entry.ReadAt,
		})
	}
	return items, total, nil
}

// RecipientsOf lists the recipients recorded for a notification.
func (l *FanoutLedger) RecipientsOf(ctx context.Context, notificationID string) ([]string, error) {
	var ids []string
	if err := l.db.WithContext(ensureContext(ctx)).
		Model(&models.FanoutEntry{}).
		Where("notification_id = ?", notificationID).
		Order("created_at ASC, id ASC").
		Pluck("recipient_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("fanout ledger: list recipients: %w", err)
	}
	return ids, nil
}

// Exists reports whether recipient has an entry for notification.
func (l *FanoutLedger) Exists(ctx context.Context, notificationID, recipientID string) (bool, error) {
	var count int64
	if err := l.db.WithContext(ensureContext(ctx)).
		Model(&models.FanoutEntry{}).
		Where("notification_id = ? AND recipient_id = ?", notificationID, recipientID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("fanout ledger: lookup entry: %w", err)
	}
	return count > 0, nil
}
