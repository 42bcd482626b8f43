// Package events turns fan-out ledger change notifications into dispatch jobs.
package events

import (
	"encoding/json"
	"strings"

	"github.com/charlesng35/fanout/internal/services"
)

// ChangeRecord is the body of a ledger change notification.
type ChangeRecord struct {
	Record struct {
		UserID         string `json:"userId"`
		NotificationID string `json:"notificationId"`
	} `json:"record"`
}

// DecodeChange parses a change notification. Malformed bodies are unrecoverable.
func DecodeChange(body []byte) (services.LedgerEvent, error) {
	var change ChangeRecord
	if err := json.Unmarshal(body, &change); err != nil {
		return services.LedgerEvent{}, NewUnrecoverableError("malformed change record: %s", err)
	}

	event := services.LedgerEvent{
		UserID:         strings.TrimSpace(change.Record.UserID),
		NotificationID: strings.TrimSpace(change.Record.NotificationID),
	}
	if event.UserID == "" || event.NotificationID == "" {
		return services.LedgerEvent{}, NewUnrecoverableError("change record requires userId and notificationId")
	}
	return event, nil
}
