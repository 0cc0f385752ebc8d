package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/metrics"
	"github.com/huddlehq/huddle/internal/store"
)

// previewLimit caps the conversation list preview, in runes.
const previewLimit = 100

// Service implements the conversation registry and message feed on top of
// the store. Every mutation runs its policy check here, publishes a bus
// event on success, and leaves the store transactionally consistent.
type Service struct {
	db      *store.DB
	bus     *bus.Bus
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewService(db *store.DB, b *bus.Bus, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{db: db, bus: b, log: log, metrics: m}
}

// ConversationChange is the payload of conversation.* events.
type ConversationChange struct {
	ConversationID string `json:"conversation_id"`
	OrgID          string `json:"org_id"`
	Kind           string `json:"kind"`
	Name           string `json:"name,omitempty"`
	ActorID        string `json:"actor_id"`
}

// MessageCreated is the payload of message.created events.
type MessageCreated struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	Preview        string `json:"preview"`
}

// MessagesRead is the payload of message.read events.
type MessagesRead struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
	Marked         int    `json:"marked"`
}

// DirectID returns the deterministic id for a 1:1 conversation: the two user
// ids sorted lexicographically and joined with "_". Symmetric by construction.
func DirectID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "_" + pair[1]
}

// StartOrGetDirect returns the 1:1 conversation between self and target,
// creating it on first use. Idempotent: both orderings and repeated calls
// yield the same conversation.
func (s *Service) StartOrGetDirect(orgID, selfID, targetID string) (*store.Conversation, error) {
	if selfID == targetID {
		return nil, ErrSelfTarget
	}
	id := DirectID(selfID, targetID)
	now := time.Now().UnixMilli()
	conv := &store.Conversation{
		ID:        id,
		OrgID:     orgID,
		Kind:      store.KindDirect,
		CreatedAt: now,
	}
	created, err := s.db.CreateDirectConversation(conv, selfID, targetID)
	if err != nil {
		return nil, fmt.Errorf("create direct conversation: %w", err)
	}
	if created {
		s.log.Info("direct conversation created",
			zap.String("conversation_id", id),
			zap.String("org_id", orgID))
		if s.metrics != nil {
			s.metrics.ConversationsCreated.WithLabelValues(store.KindDirect).Inc()
		}
		s.publish(bus.KindConversationCreated, ConversationChange{
			ConversationID: id, OrgID: orgID, Kind: store.KindDirect, ActorID: selfID,
		})
		return conv, nil
	}
	return s.db.GetConversation(id)
}

// CreateGroup creates a group conversation and its administrative twin in one
// transaction. Membership is the deduplicated union of the creator and the
// given members; the creator becomes admin.
func (s *Service) CreateGroup(orgID, selfID, name string, memberIDs []string) (*store.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	seen := map[string]bool{selfID: true}
	members := []string{selfID}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, ErrNoMembers
	}

	now := time.Now().UnixMilli()
	conv := &store.Conversation{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Kind:      store.KindGroup,
		Name:      name,
		CreatedAt: now,
	}
	group := &store.Group{
		ConversationID: conv.ID,
		Name:           name,
		AdminID:        selfID,
	}
	if err := s.db.CreateGroupConversation(conv, group, members); err != nil {
		return nil, fmt.Errorf("create group conversation: %w", err)
	}

	s.log.Info("group created",
		zap.String("conversation_id", conv.ID),
		zap.String("org_id", orgID),
		zap.Int("members", len(members)))
	if s.metrics != nil {
		s.metrics.ConversationsCreated.WithLabelValues(store.KindGroup).Inc()
	}
	s.publish(bus.KindConversationCreated, ConversationChange{
		ConversationID: conv.ID, OrgID: orgID, Kind: store.KindGroup, Name: name, ActorID: selfID,
	})
	return conv, nil
}

// Rename changes a group's name on both the group and its conversation twin.
// Admin only.
func (s *Service) Rename(conversationID, requesterID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}
	group, err := s.requireAdmin(conversationID, requesterID)
	if err != nil {
		return err
	}

	found, err := s.db.RenameGroup(conversationID, newName)
	if err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	if !found {
		return ErrNotFound
	}

	s.log.Info("group renamed",
		zap.String("conversation_id", conversationID),
		zap.String("name", newName))
	s.publish(bus.KindConversationUpdated, ConversationChange{
		ConversationID: conversationID, Kind: store.KindGroup, Name: newName, ActorID: group.AdminID,
	})
	return nil
}

// RemoveMember removes a member from a group and its twin. Admin only.
// Removing an already-absent member is a no-op; removing the last member
// deletes the conversation outright.
func (s *Service) RemoveMember(conversationID, requesterID, memberID string) error {
	if _, err := s.requireAdmin(conversationID, requesterID); err != nil {
		return err
	}

	remaining, removed, err := s.db.RemoveMember(conversationID, memberID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if !removed {
		return nil
	}

	if remaining == 0 {
		s.log.Info("group emptied and deleted",
			zap.String("conversation_id", conversationID))
		s.publish(bus.KindConversationDeleted, ConversationChange{
			ConversationID: conversationID, Kind: store.KindGroup, ActorID: requesterID,
		})
		return nil
	}

	s.log.Info("member removed",
		zap.String("conversation_id", conversationID),
		zap.String("member_id", memberID),
		zap.Int("remaining", remaining))
	s.publish(bus.KindConversationUpdated, ConversationChange{
		ConversationID: conversationID, Kind: store.KindGroup, ActorID: requesterID,
	})
	return nil
}

// DeleteGroup deletes a group conversation, its twin and all messages in one
// transaction. Admin only.
func (s *Service) DeleteGroup(conversationID, requesterID string) error {
	if _, err := s.requireAdmin(conversationID, requesterID); err != nil {
		return err
	}

	found, err := s.db.DeleteConversation(conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if !found {
		return ErrNotFound
	}

	s.log.Info("group deleted", zap.String("conversation_id", conversationID))
	s.publish(bus.KindConversationDeleted, ConversationChange{
		ConversationID: conversationID, Kind: store.KindGroup, ActorID: requesterID,
	})
	return nil
}

// Send appends a message to a conversation. The sender must be a member and
// the text must be non-empty after trimming. The message, the sender's read
// receipt, the conversation preview and every other member's unread counter
// move in one transaction.
func (s *Service) Send(conversationID, senderID, text string) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if err := s.requireMember(conversationID, senderID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           text,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := s.db.AppendMessage(msg, preview(text)); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.log.Debug("message sent",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", msg.ID))
	if s.metrics != nil {
		s.metrics.MessagesSent.Inc()
	}
	s.publish(bus.KindMessageCreated, MessageCreated{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		SenderID:       senderID,
		Preview:        preview(text),
	})
	return msg, nil
}

// Messages returns a conversation's feed, oldest first. The viewer must be a
// member.
func (s *Service) Messages(conversationID, viewerID string, limit int) ([]store.Message, error) {
	if err := s.requireMember(conversationID, viewerID); err != nil {
		return nil, err
	}
	return s.db.ListMessages(conversationID, limit)
}

// MarkRead stamps every message in the conversation as read by the reader and
// zeroes their unread counter. Returns the number of newly marked messages.
func (s *Service) MarkRead(conversationID, readerID string) (int, error) {
	if err := s.requireMember(conversationID, readerID); err != nil {
		return 0, err
	}
	marked, err := s.db.MarkRead(conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if marked > 0 {
		if s.metrics != nil {
			s.metrics.MessagesRead.Add(float64(marked))
		}
		s.publish(bus.KindMessageRead, MessagesRead{
			ConversationID: conversationID,
			ReaderID:       readerID,
			Marked:         marked,
		})
	}
	return marked, nil
}

// Conversations lists the caller's conversations, most recent activity first,
// each carrying the caller's unread count.
func (s *Service) Conversations(userID string) ([]store.Conversation, error) {
	return s.db.ListConversationsForUser(userID)
}

// UnreadCounts returns the caller's unread count per conversation.
func (s *Service) UnreadCounts(userID string) (map[string]int, error) {
	return s.db.UnreadCounts(userID)
}

// Group returns the administrative twin of a group conversation.
func (s *Service) Group(conversationID string) (*store.Group, error) {
	group, err := s.db.GetGroup(conversationID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrNotFound
	}
	return group, nil
}

// Members returns the member ids of a conversation, for members only.
func (s *Service) Members(conversationID, viewerID string) ([]string, error) {
	if err := s.requireMember(conversationID, viewerID); err != nil {
		return nil, err
	}
	return s.db.MemberIDs(conversationID)
}

func (s *Service) requireAdmin(conversationID, requesterID string) (*store.Group, error) {
	group, err := s.db.GetGroup(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}
	if group == nil {
		return nil, ErrNotFound
	}
	if group.AdminID != requesterID {
		return nil, ErrNotAdmin
	}
	return group, nil
}

func (s *Service) requireMember(conversationID, userID string) error {
	conv, err := s.db.GetConversation(conversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return ErrNotFound
	}
	member, err := s.db.IsMember(conversationID, userID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !member {
		return ErrNotMember
	}
	return nil
}

func (s *Service) publish(kind string, payload any) {
	if s.bus != nil {
		s.bus.Publish(bus.NewEvent(kind, payload))
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit])
}
