package store

// Roster roles. The platform distinguishes only the two.
const (
	RoleStudent = "student"
	RoleTrainer = "trainer"
)

// Conversation kinds.
const (
	KindDirect = "direct"
	KindGroup  = "group"
)

// Organization is the tenant boundary: one institute, keyed by its
// owner's user id.
type Organization struct {
	ID        string
	Name      string
	CreatedAt int64
}

// RosterMember is a directory entry scoped to an organization.
type RosterMember struct {
	OrgID     string
	UserID    string
	Role      string
	FirstName string
	LastName  string
	AvatarURL string
}

// Conversation is the container for a message feed, direct or group.
type Conversation struct {
	ID                 string
	OrgID              string
	Kind               string
	Name               string
	LastMessagePreview string
	LastActivityAt     int64
	CreatedAt          int64
	// UnreadCount is populated on per-user listing queries only.
	UnreadCount int
}

// Group is the administrative twin of a group conversation.
type Group struct {
	ConversationID string
	Name           string
	AdminID        string
}

// Member is a conversation membership row.
type Member struct {
	ConversationID string
	UserID         string
	UnreadCount    int
	JoinedAt       int64
}

// Message is one entry in a conversation feed. ReadBy counts the readers
// recorded for it, the sender included.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      int64
	ReadBy         int
}

// OutboxEntry is a pending webhook delivery.
type OutboxEntry struct {
	ID           int64
	Kind         string
	Payload      string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
}
