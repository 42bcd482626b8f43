package models

import "time"

// FanoutEntry records that one recipient received one notification and whether they read it.
type FanoutEntry struct {
	BaseModel

	NotificationID string     `gorm:"size:36;not null;uniqueIndex:idx_fanout_notification_recipient,priority:1" json:"notificationId"`
	RecipientID    string     `gorm:"size:36;not null;uniqueIndex:idx_fanout_notification_recipient,priority:2;index:idx_fanout_recipient_read,priority:1" json:"recipientId"`
	IsRead         bool       `gorm:"not null;default:false;index:idx_fanout_recipient_read,priority:2" json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`

	Notification *Notification `json:"-"`
}
