package models

// User is a directory entry. Broadcast sends resolve their recipients from this table.
// Rows are owned by the profile system; the engine only reads them.
type User struct {
	BaseModel

	Email       string `gorm:"size:320;uniqueIndex;not null" json:"email"`
	DisplayName string `gorm:"size:255" json:"displayName"`
}
