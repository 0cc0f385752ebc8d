package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRecorderQueuesEvents(t *testing.T) {
	db := testDB(t)
	b := bus.New()

	r := NewRecorder(db, b, zap.NewNop())
	r.Start(context.Background())
	defer r.Stop()

	b.Publish(bus.NewEvent(bus.KindMessageCreated, chat.MessageCreated{
		ConversationID: "u1_u2",
		MessageID:      "m1",
		SenderID:       "u1",
		Preview:        "hello",
	}))

	var pending []store.OutboxEntry
	waitFor(t, func() bool {
		var err error
		pending, err = db.PendingOutbox()
		if err != nil {
			t.Fatal(err)
		}
		return len(pending) == 1
	})

	if pending[0].Kind != bus.KindMessageCreated {
		t.Errorf("kind = %q, want %q", pending[0].Kind, bus.KindMessageCreated)
	}
	var env struct {
		Kind       string          `json:"kind"`
		OccurredAt int64           `json:"occurred_at_unix_ms"`
		Payload    json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(pending[0].Payload), &env); err != nil {
		t.Fatal(err)
	}
	if env.Kind != bus.KindMessageCreated || env.OccurredAt == 0 {
		t.Errorf("envelope = %+v", env)
	}
	var msg chat.MessageCreated
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.MessageID != "m1" || msg.Preview != "hello" {
		t.Errorf("payload = %+v", msg)
	}
}

func TestRecorderIgnoresUnrelatedEvents(t *testing.T) {
	db := testDB(t)
	b := bus.New()

	r := NewRecorder(db, b, zap.NewNop())
	r.Start(context.Background())
	defer r.Stop()

	b.Publish(bus.NewEvent(bus.KindStatusChanged, nil))
	b.Publish(bus.NewEvent(bus.KindConversationCreated, chat.ConversationChange{ConversationID: "g1"}))

	waitFor(t, func() bool {
		pending, err := db.PendingOutbox()
		if err != nil {
			t.Fatal(err)
		}
		return len(pending) == 1
	})

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if pending[0].Kind != bus.KindConversationCreated {
		t.Errorf("kind = %q, want %q", pending[0].Kind, bus.KindConversationCreated)
	}
}

func TestSenderDelivers(t *testing.T) {
	db := testDB(t)

	var mu sync.Mutex
	var bodies []string
	var kinds []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		kinds = append(kinds, req.Header.Get("X-Huddle-Event"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := db.QueueOutbox(bus.KindMessageCreated, `{"kind":"message.created"}`); err != nil {
		t.Fatal(err)
	}

	s := NewSender(db, srv.URL, zap.NewNop(), nil)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if bodies[0] != `{"kind":"message.created"}` {
		t.Errorf("delivered body = %q", bodies[0])
	}
	if kinds[0] != bus.KindMessageCreated {
		t.Errorf("event header = %q, want %q", kinds[0], bus.KindMessageCreated)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after delivery = %d, want 0", len(pending))
	}
}

func TestSenderMarksFailures(t *testing.T) {
	db := testDB(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := db.QueueOutbox(bus.KindMessageCreated, `{}`); err != nil {
		t.Fatal(err)
	}

	s := NewSender(db, srv.URL, zap.NewNop(), nil)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool {
		var status string
		if err := db.QueryRow(`SELECT status FROM outbox LIMIT 1`).Scan(&status); err != nil {
			t.Fatal(err)
		}
		return status == "failed"
	})
}
