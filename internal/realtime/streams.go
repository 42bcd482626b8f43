package realtime

// Named realtime streams.
const (
	// StreamNotifications carries ledger changes for the connected recipient.
	StreamNotifications = "notifications"
	// StreamSubscriptions carries endpoint registry changes for the connected recipient.
	StreamSubscriptions = "subscriptions"
)

// Events published on the realtime streams.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationRead    = "notification.read"
	EventNotificationDeleted = "notification.deleted"
	EventSubscriptionEvicted = "subscription.evicted"
)

// DefaultStreams are subscribed automatically when a client does not name any.
var DefaultStreams = []string{StreamNotifications, StreamSubscriptions}
