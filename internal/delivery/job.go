package delivery

import (
	"encoding/json"

	"github.com/charlesng35/fanout/internal/models"
)

// Payload is the message rendered by every transport. Its JSON form is what the browser
// service worker receives.
type Payload struct {
	NotificationID string `json:"notificationId"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	SenderLabel    string `json:"sender,omitempty"`
	Icon           string `json:"icon,omitempty"`
	URL            string `json:"url,omitempty"`
}

// JSON encodes the payload for transports that ship it verbatim.
func (p Payload) JSON() ([]byte, error) {
	return json.Marshal(p)
}

// Job asks the dispatcher to push one notification to the endpoints of a set of recipients.
type Job struct {
	Payload    Payload
	Recipients []string
	Reason     string
}

// Reasons recorded on jobs.
const (
	ReasonSend       = "send"
	ReasonRedispatch = "redispatch"
	ReasonEvent      = "event"
)

// Target pairs one registered endpoint with the payload destined for it.
type Target struct {
	Subscription models.Subscription
	Payload      Payload
}
