package identity

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/store"
)

// ErrNoOrganization is returned when a user matches none of the lookup probes.
var ErrNoOrganization = errors.New("user does not belong to any organization")

// Role names the relationship between a resolved user and their organization.
const (
	RoleOwner   = "owner"
	RoleStudent = store.RoleStudent
	RoleTrainer = store.RoleTrainer
)

// Identity is a resolved user: which organization they act within and as what.
type Identity struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
}

// Resolver maps user ids to organizations. Lookups probe in a fixed order:
// organization owner first, then the student roster, then the trainer roster.
// The first hit wins and is cached until the roster changes.
type Resolver struct {
	db  *store.DB
	bus *bus.Bus
	log *zap.Logger

	mu    sync.RWMutex
	cache map[string]Identity
}

func NewResolver(db *store.DB, b *bus.Bus, log *zap.Logger) *Resolver {
	return &Resolver{
		db:    db,
		bus:   b,
		log:   log,
		cache: make(map[string]Identity),
	}
}

// Resolve returns the identity for a user id, consulting the cache first.
func (r *Resolver) Resolve(userID string) (Identity, error) {
	r.mu.RLock()
	id, ok := r.cache[userID]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.lookup(userID)
	if err != nil {
		return Identity{}, err
	}

	r.mu.Lock()
	r.cache[userID] = id
	r.mu.Unlock()

	r.log.Debug("identity resolved",
		zap.String("user_id", userID),
		zap.String("org_id", id.OrgID),
		zap.String("role", id.Role))
	if r.bus != nil {
		r.bus.Publish(bus.NewEvent(bus.KindIdentityResolved, id))
	}
	return id, nil
}

func (r *Resolver) lookup(userID string) (Identity, error) {
	// Probe 1: the user owns an organization.
	org, err := r.db.GetOrganization(userID)
	if err != nil {
		return Identity{}, fmt.Errorf("owner probe: %w", err)
	}
	if org != nil {
		return Identity{UserID: userID, OrgID: org.ID, Role: RoleOwner}, nil
	}

	// Probe 2: the user is on a student roster.
	orgID, err := r.db.OrgIDForRosterRole(userID, store.RoleStudent)
	if err != nil {
		return Identity{}, fmt.Errorf("student probe: %w", err)
	}
	if orgID != "" {
		return Identity{UserID: userID, OrgID: orgID, Role: RoleStudent}, nil
	}

	// Probe 3: the user is on a trainer roster.
	orgID, err = r.db.OrgIDForRosterRole(userID, store.RoleTrainer)
	if err != nil {
		return Identity{}, fmt.Errorf("trainer probe: %w", err)
	}
	if orgID != "" {
		return Identity{UserID: userID, OrgID: orgID, Role: RoleTrainer}, nil
	}

	return Identity{}, ErrNoOrganization
}

// Invalidate drops a user's cached identity. Called when roster membership
// changes so the next Resolve re-probes the store.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// InvalidateAll clears the whole cache.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]Identity)
	r.mu.Unlock()
}
