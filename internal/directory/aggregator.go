package directory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/store"
)

// Participant is a directory entry: a roster member projected into the shape
// conversation pickers consume.
type Participant struct {
	UserID      string `json:"user_id"`
	OrgID       string `json:"org_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// RosterChange is the payload of roster.changed events. Role is empty when
// both rosters may have moved (bulk imports).
type RosterChange struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
}

// Aggregator serves merged per-organization directories. Each role's slice is
// cached and replaced independently, so a student roster change never churns
// the trainer snapshot.
type Aggregator struct {
	db  *store.DB
	bus *bus.Bus
	log *zap.Logger

	mu    sync.RWMutex
	cache map[string]map[string][]Participant
}

func NewAggregator(db *store.DB, b *bus.Bus, log *zap.Logger) *Aggregator {
	return &Aggregator{
		db:    db,
		bus:   b,
		log:   log,
		cache: make(map[string]map[string][]Participant),
	}
}

// Directory returns the merged directory for an organization: students first,
// then trainers, each block ordered by name.
func (a *Aggregator) Directory(orgID string) ([]Participant, error) {
	students, err := a.role(orgID, store.RoleStudent)
	if err != nil {
		return nil, err
	}
	trainers, err := a.role(orgID, store.RoleTrainer)
	if err != nil {
		return nil, err
	}
	merged := make([]Participant, 0, len(students)+len(trainers))
	merged = append(merged, students...)
	merged = append(merged, trainers...)
	return merged, nil
}

// Role returns one role's snapshot for an organization.
func (a *Aggregator) Role(orgID, role string) ([]Participant, error) {
	return a.role(orgID, role)
}

func (a *Aggregator) role(orgID, role string) ([]Participant, error) {
	a.mu.RLock()
	byRole, ok := a.cache[orgID]
	if ok {
		if snapshot, ok := byRole[role]; ok {
			a.mu.RUnlock()
			return snapshot, nil
		}
	}
	a.mu.RUnlock()
	return a.refresh(orgID, role)
}

// refresh rebuilds one role's snapshot from the store and swaps it in. Other
// roles' snapshots are untouched.
func (a *Aggregator) refresh(orgID, role string) ([]Participant, error) {
	members, err := a.db.ListRoster(orgID, role)
	if err != nil {
		return nil, fmt.Errorf("list roster %s/%s: %w", orgID, role, err)
	}
	snapshot := make([]Participant, 0, len(members))
	for _, m := range members {
		snapshot = append(snapshot, project(m))
	}

	a.mu.Lock()
	byRole, ok := a.cache[orgID]
	if !ok {
		byRole = make(map[string][]Participant)
		a.cache[orgID] = byRole
	}
	byRole[role] = snapshot
	a.mu.Unlock()

	a.log.Debug("directory refreshed",
		zap.String("org_id", orgID),
		zap.String("role", role),
		zap.Int("members", len(snapshot)))
	return snapshot, nil
}

// Run listens for roster changes and refreshes the affected snapshots until
// the context is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(bus.KindRosterChanged, 64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			change, ok := evt.Payload.(RosterChange)
			if !ok {
				continue
			}
			a.apply(change)
		}
	}
}

func (a *Aggregator) apply(change RosterChange) {
	roles := []string{change.Role}
	if change.Role == "" {
		roles = []string{store.RoleStudent, store.RoleTrainer}
	}
	for _, role := range roles {
		if _, err := a.refresh(change.OrgID, role); err != nil {
			a.log.Warn("directory refresh failed",
				zap.String("org_id", change.OrgID),
				zap.String("role", role),
				zap.Error(err))
		}
	}
}

// project maps a roster row to its directory entry. Members without a durable
// photo URL get a deterministic placeholder avatar keyed by display name.
func project(m store.RosterMember) Participant {
	name := strings.TrimSpace(m.FirstName + " " + m.LastName)
	avatar := m.AvatarURL
	if !durableURL(avatar) {
		avatar = "https://ui-avatars.com/api/?name=" + url.QueryEscape(name)
	}
	return Participant{
		UserID:      m.UserID,
		OrgID:       m.OrgID,
		Role:        m.Role,
		DisplayName: name,
		AvatarURL:   avatar,
	}
}

// durableURL reports whether an avatar URL is hosted somewhere that outlives
// the client that uploaded it. Local previews are not.
func durableURL(u string) bool {
	if u == "" {
		return false
	}
	return !strings.HasPrefix(u, "blob:") && !strings.HasPrefix(u, "file:") && !strings.HasPrefix(u, "data:")
}
