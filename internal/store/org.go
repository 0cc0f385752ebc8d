package store

import (
	"database/sql"
	"time"
)

// CreateOrganization inserts an organization keyed by its owner's user id.
// Idempotent: re-creating updates the name only.
func (db *DB) CreateOrganization(o *Organization) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO organizations (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		o.ID, o.Name, now)
	return err
}

// GetOrganization returns an organization by id, or nil if absent.
func (db *DB) GetOrganization(id string) (*Organization, error) {
	var o Organization
	err := db.QueryRow(`SELECT id, name, created_at FROM organizations WHERE id = ?`, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// OrgIDForRosterRole returns the organization id whose roster contains
// userID under the given role, or "" when no roster row matches.
func (db *DB) OrgIDForRosterRole(userID, role string) (string, error) {
	var orgID string
	err := db.QueryRow(`
		SELECT org_id FROM roster_members
		WHERE user_id = ? AND role = ?
		LIMIT 1`, userID, role).
		Scan(&orgID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return orgID, nil
}
