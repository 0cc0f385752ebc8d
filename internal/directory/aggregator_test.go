package directory

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/store"
)

func testAggregator(t *testing.T) (*Aggregator, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.CreateOrganization(&store.Organization{ID: "owner1", Name: "Riverside"}); err != nil {
		t.Fatal(err)
	}
	members := []store.RosterMember{
		{OrgID: "owner1", UserID: "s1", Role: store.RoleStudent, FirstName: "Asha", LastName: "Rao"},
		{OrgID: "owner1", UserID: "s2", Role: store.RoleStudent, FirstName: "Ben"},
		{OrgID: "owner1", UserID: "t1", Role: store.RoleTrainer, FirstName: "Marco", LastName: "Silva"},
	}
	if err := db.BulkUpsertRosterMembers(members); err != nil {
		t.Fatal(err)
	}

	return NewAggregator(db, bus.New(), zap.NewNop()), db
}

func TestDirectoryMergesStudentsThenTrainers(t *testing.T) {
	a, _ := testAggregator(t)

	got, err := a.Directory("owner1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	// Students (by name) first, then trainers.
	wantOrder := []string{"s1", "s2", "t1"}
	for i, id := range wantOrder {
		if got[i].UserID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].UserID, id)
		}
	}
	if got[0].Role != store.RoleStudent || got[2].Role != store.RoleTrainer {
		t.Error("roles out of order")
	}
}

func TestParticipantProjection(t *testing.T) {
	a, _ := testAggregator(t)

	got, err := a.Role("owner1", store.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].DisplayName != "Asha Rao" {
		t.Errorf("display name = %q, want Asha Rao", got[0].DisplayName)
	}
	// Last name missing: no trailing space.
	if got[1].DisplayName != "Ben" {
		t.Errorf("display name = %q, want Ben", got[1].DisplayName)
	}
	if got[0].AvatarURL != "https://ui-avatars.com/api/?name=Asha+Rao" {
		t.Errorf("avatar url = %q", got[0].AvatarURL)
	}
}

func TestRoleSnapshotsRefreshIndependently(t *testing.T) {
	a, db := testAggregator(t)

	// Warm both snapshots.
	if _, err := a.Directory("owner1"); err != nil {
		t.Fatal(err)
	}

	// New trainer lands in the store but only the trainer snapshot is
	// refreshed; the student snapshot is served from cache untouched.
	if err := db.UpsertRosterMember(&store.RosterMember{OrgID: "owner1", UserID: "t2", Role: store.RoleTrainer, FirstName: "Nina"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertRosterMember(&store.RosterMember{OrgID: "owner1", UserID: "s3", Role: store.RoleStudent, FirstName: "Cleo"}); err != nil {
		t.Fatal(err)
	}
	a.apply(RosterChange{OrgID: "owner1", Role: store.RoleTrainer})

	trainers, err := a.Role("owner1", store.RoleTrainer)
	if err != nil {
		t.Fatal(err)
	}
	if len(trainers) != 2 {
		t.Errorf("trainers = %d, want 2", len(trainers))
	}
	students, err := a.Role("owner1", store.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if len(students) != 2 {
		t.Errorf("students = %d, want 2 (stale snapshot expected)", len(students))
	}

	// A change with no role refreshes both.
	a.apply(RosterChange{OrgID: "owner1"})
	students, err = a.Role("owner1", store.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if len(students) != 3 {
		t.Errorf("students after full refresh = %d, want 3", len(students))
	}
}

func TestDirectoryEmptyOrg(t *testing.T) {
	a, _ := testAggregator(t)

	got, err := a.Directory("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries for unknown org, want 0", len(got))
	}
}
