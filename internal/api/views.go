package api

import "github.com/huddlehq/huddle/internal/store"

// conversationView is the wire shape of a conversation list entry.
type conversationView struct {
	ID                 string `json:"id"`
	OrgID              string `json:"org_id"`
	Kind               string `json:"kind"`
	Name               string `json:"name,omitempty"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
	LastActivityAt     int64  `json:"last_activity_at_unix_ms"`
	CreatedAt          int64  `json:"created_at_unix_ms"`
	UnreadCount        int    `json:"unread_count"`
}

// messageView is the wire shape of a feed entry. ReadByOther drives the
// sender's double-check indicator: true once anyone besides the sender has
// read the message.
type messageView struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Text           string `json:"text"`
	CreatedAt      int64  `json:"created_at_unix_ms"`
	Mine           bool   `json:"mine"`
	ReadByOther    bool   `json:"read_by_other"`
}

func toConversationView(c store.Conversation) conversationView {
	return conversationView{
		ID:                 c.ID,
		OrgID:              c.OrgID,
		Kind:               c.Kind,
		Name:               c.Name,
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt,
		CreatedAt:          c.CreatedAt,
		UnreadCount:        c.UnreadCount,
	}
}

func toConversationViews(convs []store.Conversation) []conversationView {
	out := make([]conversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationView(c))
	}
	return out
}

func toMessageView(m store.Message, viewerID string) messageView {
	return messageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Body,
		CreatedAt:      m.CreatedAt,
		Mine:           m.SenderID == viewerID,
		ReadByOther:    m.ReadBy > 1,
	}
}

func toMessageViews(msgs []store.Message, viewerID string) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageView(m, viewerID))
	}
	return out
}
