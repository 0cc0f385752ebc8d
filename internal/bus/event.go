package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix, so
// "message." matches every message event and "" matches everything.
const (
	KindIdentityResolved    = "identity.resolved"
	KindRosterChanged       = "roster.changed"
	KindConversationCreated = "conversation.created"
	KindConversationUpdated = "conversation.updated"
	KindConversationDeleted = "conversation.deleted"
	KindMessageCreated      = "message.created"
	KindMessageRead         = "message.read"
	KindStatusChanged       = "daemon.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
