package models

import "gorm.io/datatypes"

// Transport identifiers for registered endpoints.
const (
	TransportWebPush     = "webpush"
	TransportMobileToken = "mobile-token"
	TransportRelay       = "relay-service"
)

// Transports lists every supported transport in a stable order.
var Transports = []string{TransportWebPush, TransportMobileToken, TransportRelay}

// IsValidTransport reports whether name is a supported transport identifier.
func IsValidTransport(name string) bool {
	for _, t := range Transports {
		if t == name {
			return true
		}
	}
	return false
}

// Subscription is a push endpoint registered by a recipient. EndpointKey is the sha256 of the
// canonical descriptor so the identity constraint works on every SQL backend.
type Subscription struct {
	BaseModel

	RecipientID        string         `gorm:"size:36;not null;index;uniqueIndex:idx_subscription_identity,priority:1" json:"recipientId"`
	Transport          string         `gorm:"size:32;not null;uniqueIndex:idx_subscription_identity,priority:2" json:"transport"`
	EndpointKey        string         `gorm:"size:64;not null;uniqueIndex:idx_subscription_identity,priority:3" json:"-"`
	EndpointDescriptor datatypes.JSON `gorm:"not null" json:"endpointDescriptor"`
}
