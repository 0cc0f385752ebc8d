package store

import (
	"fmt"
	"time"
)

// AppendMessage appends a message to its conversation in one transaction:
// the message row, the sender's read receipt, the conversation's preview
// and activity stamp, and a +1 on every other member's unread counter.
func (db *DB) AppendMessage(m *Message, preview string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO message_reads (message_id, user_id, read_at)
		VALUES (?, ?, ?)`,
		m.ID, m.SenderID, m.CreatedAt); err != nil {
		return fmt.Errorf("insert sender receipt: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE conversations SET last_message_preview = ?, last_activity_at = ?
		WHERE id = ?`,
		preview, m.CreatedAt, m.ConversationID); err != nil {
		return fmt.Errorf("update preview: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE conversation_members SET unread_count = unread_count + 1
		WHERE conversation_id = ? AND user_id != ?`,
		m.ConversationID, m.SenderID); err != nil {
		return fmt.Errorf("bump unread: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns a conversation's feed ordered by creation time
// ascending, each message carrying its reader count.
func (db *DB) ListMessages(conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT m.id, m.conversation_id, m.sender_id, m.body, m.created_at,
			(SELECT COUNT(*) FROM message_reads r WHERE r.message_id = m.id) AS read_by
		FROM messages m
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt, &m.ReadBy); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkRead records userID as a reader of every message in the conversation
// it has not yet read, and zeroes the member's unread counter, in one
// transaction. Returns the number of messages newly marked.
func (db *DB) MarkRead(conversationID, userID string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	res, err := tx.Exec(`
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ?
		FROM messages m
		WHERE m.conversation_id = ?
			AND NOT EXISTS (
				SELECT 1 FROM message_reads r
				WHERE r.message_id = m.id AND r.user_id = ?
			)`,
		userID, now, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("insert receipts: %w", err)
	}
	marked, _ := res.RowsAffected()

	if _, err := tx.Exec(`
		UPDATE conversation_members SET unread_count = 0
		WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID); err != nil {
		return 0, fmt.Errorf("zero unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(marked), nil
}

// UnreadCounts returns conversation id -> unread counter for every
// conversation the user belongs to.
func (db *DB) UnreadCounts(userID string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT conversation_id, unread_count
		FROM conversation_members WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// RecountUnread recomputes every member's unread counter from the read
// receipts. Run at startup to repair any drift in the incremental counters.
func (db *DB) RecountUnread() error {
	_, err := db.Exec(`
		UPDATE conversation_members SET unread_count = (
			SELECT COUNT(*)
			FROM messages m
			WHERE m.conversation_id = conversation_members.conversation_id
				AND NOT EXISTS (
					SELECT 1 FROM message_reads r
					WHERE r.message_id = m.id AND r.user_id = conversation_members.user_id
				)
		)`)
	return err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
