package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetConversation returns a conversation by id, or nil if absent.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT id, org_id, kind, name, last_message_preview, last_activity_at, created_at
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.OrgID, &c.Kind, &c.Name, &c.LastMessagePreview, &c.LastActivityAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetGroup returns the administrative twin of a group conversation, or nil.
func (db *DB) GetGroup(conversationID string) (*Group, error) {
	var g Group
	err := db.QueryRow(`
		SELECT conversation_id, name, admin_id FROM groups WHERE conversation_id = ?`, conversationID).
		Scan(&g.ConversationID, &g.Name, &g.AdminID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// MemberIDs returns the membership set of a conversation.
func (db *DB) MemberIDs(conversationID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT user_id FROM conversation_members WHERE conversation_id = ? ORDER BY user_id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsMember reports whether userID belongs to the conversation.
func (db *DB) IsMember(conversationID, userID string) (bool, error) {
	var one int
	err := db.QueryRow(`
		SELECT 1 FROM conversation_members WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListConversationsForUser returns every conversation the user belongs to,
// most recently active first, with the user's unread counter populated.
func (db *DB) ListConversationsForUser(userID string) ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT c.id, c.org_id, c.kind, c.name, c.last_message_preview, c.last_activity_at, c.created_at,
			m.unread_count
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.last_activity_at DESC, c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Kind, &c.Name, &c.LastMessagePreview,
			&c.LastActivityAt, &c.CreatedAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// CreateDirectConversation inserts a direct conversation with its two
// members, keyed by the caller-derived deterministic id. Idempotent: a
// second call with the same id leaves the existing row untouched and
// reports created=false.
func (db *DB) CreateDirectConversation(c *Conversation, memberA, memberB string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := c.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	res, err := tx.Exec(`
		INSERT INTO conversations (id, org_id, kind, name, created_at)
		VALUES (?, ?, 'direct', '', ?)
		ON CONFLICT(id) DO NOTHING`,
		c.ID, c.OrgID, createdAt)
	if err != nil {
		return false, fmt.Errorf("insert conversation: %w", err)
	}
	n, _ := res.RowsAffected()

	for _, uid := range []string{memberA, memberB} {
		if _, err := tx.Exec(`
			INSERT INTO conversation_members (conversation_id, user_id, joined_at)
			VALUES (?, ?, ?)
			ON CONFLICT(conversation_id, user_id) DO NOTHING`,
			c.ID, uid, createdAt); err != nil {
			return false, fmt.Errorf("insert member %q: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

// CreateGroupConversation inserts a group conversation, its administrative
// twin and its membership set in one transaction.
func (db *DB) CreateGroupConversation(c *Conversation, g *Group, memberIDs []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := c.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	if _, err := tx.Exec(`
		INSERT INTO conversations (id, org_id, kind, name, created_at)
		VALUES (?, ?, 'group', ?, ?)`,
		c.ID, c.OrgID, c.Name, createdAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO groups (conversation_id, name, admin_id)
		VALUES (?, ?, ?)`,
		g.ConversationID, g.Name, g.AdminID); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	for _, uid := range memberIDs {
		if _, err := tx.Exec(`
			INSERT INTO conversation_members (conversation_id, user_id, joined_at)
			VALUES (?, ?, ?)`,
			c.ID, uid, createdAt); err != nil {
			return fmt.Errorf("insert member %q: %w", uid, err)
		}
	}
	return tx.Commit()
}

// RenameGroup updates both the group twin and the conversation name in one
// transaction. Returns false when the group does not exist.
func (db *DB) RenameGroup(conversationID, newName string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE groups SET name = ? WHERE conversation_id = ?`, newName, conversationID)
	if err != nil {
		return false, fmt.Errorf("update group: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if _, err := tx.Exec(`UPDATE conversations SET name = ? WHERE id = ?`, newName, conversationID); err != nil {
		return false, fmt.Errorf("update conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// RemoveMember deletes one membership row. When the last member leaves,
// the conversation and everything under it is deleted in the same
// transaction rather than leaving an unreachable empty group. Returns the
// remaining member count and whether a row was actually removed.
func (db *DB) RemoveMember(conversationID, userID string) (int, bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		DELETE FROM conversation_members WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID)
	if err != nil {
		return 0, false, fmt.Errorf("delete member: %w", err)
	}
	n, _ := res.RowsAffected()

	var remaining int
	if err := tx.QueryRow(`
		SELECT COUNT(*) FROM conversation_members WHERE conversation_id = ?`,
		conversationID).Scan(&remaining); err != nil {
		return 0, false, fmt.Errorf("count members: %w", err)
	}

	if n > 0 && remaining == 0 {
		if err := deleteConversationTx(tx, conversationID); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return remaining, n > 0, nil
}

// DeleteConversation removes a conversation, its messages, read receipts,
// membership and group twin in one transaction. Returns false when the
// conversation does not exist.
func (db *DB) DeleteConversation(conversationID string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRow(`SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup conversation: %w", err)
	}

	if err := deleteConversationTx(tx, conversationID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// deleteConversationTx deletes everything under a conversation: messages
// first (read receipts cascade), then membership, then the conversation
// row (the group twin cascades off it).
func deleteConversationTx(tx *sql.Tx, conversationID string) error {
	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversation_members WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// ConversationCount returns the total number of conversations.
func (db *DB) ConversationCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}
