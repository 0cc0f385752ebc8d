package store

import (
	"fmt"
	"time"
)

// UpsertRosterMember inserts or updates a roster entry.
func (db *DB) UpsertRosterMember(m *RosterMember) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO roster_members (org_id, user_id, role, first_name, last_name, avatar_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, user_id) DO UPDATE SET
			role = excluded.role,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at`,
		m.OrgID, m.UserID, m.Role, m.FirstName, m.LastName, m.AvatarURL, now)
	return err
}

// BulkUpsertRosterMembers inserts or updates multiple roster entries in a
// single transaction.
func (db *DB) BulkUpsertRosterMembers(members []RosterMember) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range members {
		if _, err := tx.Exec(`
			INSERT INTO roster_members (org_id, user_id, role, first_name, last_name, avatar_url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(org_id, user_id) DO UPDATE SET
				role = excluded.role,
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				avatar_url = excluded.avatar_url,
				updated_at = excluded.updated_at`,
			m.OrgID, m.UserID, m.Role, m.FirstName, m.LastName, m.AvatarURL, now); err != nil {
			return fmt.Errorf("upsert roster member %q: %w", m.UserID, err)
		}
	}
	return tx.Commit()
}

// RemoveRosterMember deletes a roster entry. Removing an absent member is
// a no-op.
func (db *DB) RemoveRosterMember(orgID, userID string) error {
	_, err := db.Exec(`DELETE FROM roster_members WHERE org_id = ? AND user_id = ?`, orgID, userID)
	return err
}

// ListRoster returns the roster slice for one role, ordered by name.
func (db *DB) ListRoster(orgID, role string) ([]RosterMember, error) {
	rows, err := db.Query(`
		SELECT org_id, user_id, role, first_name, last_name, avatar_url
		FROM roster_members
		WHERE org_id = ? AND role = ?
		ORDER BY first_name, last_name, user_id`, orgID, role)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var members []RosterMember
	for rows.Next() {
		var m RosterMember
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.FirstName, &m.LastName, &m.AvatarURL); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RosterCount returns the number of roster entries for an organization.
func (db *DB) RosterCount(orgID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM roster_members WHERE org_id = ?`, orgID).Scan(&count)
	return count, err
}
