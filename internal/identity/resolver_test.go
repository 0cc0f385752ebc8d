package identity

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/store"
)

func testResolver(t *testing.T) (*Resolver, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	return NewResolver(db, b, zap.NewNop()), db, b
}

func seed(t *testing.T, db *store.DB) {
	t.Helper()
	if err := db.CreateOrganization(&store.Organization{ID: "owner1", Name: "Riverside"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertRosterMember(&store.RosterMember{OrgID: "owner1", UserID: "s1", Role: store.RoleStudent, FirstName: "Asha"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertRosterMember(&store.RosterMember{OrgID: "owner1", UserID: "t1", Role: store.RoleTrainer, FirstName: "Marco"}); err != nil {
		t.Fatal(err)
	}
}

func TestResolveOwner(t *testing.T) {
	r, db, _ := testResolver(t)
	seed(t, db)

	id, err := r.Resolve("owner1")
	if err != nil {
		t.Fatal(err)
	}
	if id.OrgID != "owner1" || id.Role != RoleOwner {
		t.Errorf("got %+v, want org owner1 role owner", id)
	}
}

func TestResolveStudentAndTrainer(t *testing.T) {
	r, db, _ := testResolver(t)
	seed(t, db)

	id, err := r.Resolve("s1")
	if err != nil {
		t.Fatal(err)
	}
	if id.OrgID != "owner1" || id.Role != RoleStudent {
		t.Errorf("student: got %+v", id)
	}

	id, err = r.Resolve("t1")
	if err != nil {
		t.Fatal(err)
	}
	if id.OrgID != "owner1" || id.Role != RoleTrainer {
		t.Errorf("trainer: got %+v", id)
	}
}

// A user who is both an owner and on a roster resolves as owner: probes run
// in a fixed order and the first hit wins.
func TestProbeOrderOwnerWins(t *testing.T) {
	r, db, _ := testResolver(t)
	seed(t, db)
	if err := db.UpsertRosterMember(&store.RosterMember{OrgID: "owner1", UserID: "owner1", Role: store.RoleTrainer, FirstName: "Boss"}); err != nil {
		t.Fatal(err)
	}

	id, err := r.Resolve("owner1")
	if err != nil {
		t.Fatal(err)
	}
	if id.Role != RoleOwner {
		t.Errorf("role = %s, want owner", id.Role)
	}
}

func TestResolveUnknownUser(t *testing.T) {
	r, db, _ := testResolver(t)
	seed(t, db)

	_, err := r.Resolve("stranger")
	if !errors.Is(err, ErrNoOrganization) {
		t.Errorf("err = %v, want ErrNoOrganization", err)
	}
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	r, db, _ := testResolver(t)
	seed(t, db)

	if _, err := r.Resolve("s1"); err != nil {
		t.Fatal(err)
	}

	// Removing the roster row does not evict the cache entry by itself.
	if err := db.RemoveRosterMember("owner1", "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve("s1"); err != nil {
		t.Errorf("cached resolve should still succeed, got %v", err)
	}

	r.Invalidate("s1")
	if _, err := r.Resolve("s1"); !errors.Is(err, ErrNoOrganization) {
		t.Errorf("post-invalidate err = %v, want ErrNoOrganization", err)
	}
}

func TestResolvePublishesEvent(t *testing.T) {
	r, db, b := testResolver(t)
	seed(t, db)

	ch, unsub := b.Subscribe("identity.", 10)
	defer unsub()

	if _, err := r.Resolve("s1"); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindIdentityResolved {
		t.Errorf("kind = %q, want %q", evt.Kind, bus.KindIdentityResolved)
	}
	id, ok := evt.Payload.(Identity)
	if !ok {
		t.Fatalf("payload type = %T, want Identity", evt.Payload)
	}
	if id.UserID != "s1" {
		t.Errorf("payload user = %s, want s1", id.UserID)
	}

	// Cache hits do not republish.
	if _, err := r.Resolve("s1"); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected second event %q", evt.Kind)
	default:
	}
}
