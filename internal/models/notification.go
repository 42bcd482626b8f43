package models

// DefaultSenderLabel is used when a sender does not identify itself.
const DefaultSenderLabel = "System"

// Notification is one logical message. It is immutable once written and only removed by an
// explicit admin delete, which cascades to its fan-out entries.
type Notification struct {
	BaseModel

	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Body        string `gorm:"type:text;not null" json:"body"`
	SenderLabel string `gorm:"type:varchar(128);not null;default:'System'" json:"senderLabel"`

	Entries []FanoutEntry `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"-"`
}
