package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/api"
	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/internal/config"
	"github.com/huddlehq/huddle/internal/directory"
	"github.com/huddlehq/huddle/internal/identity"
	"github.com/huddlehq/huddle/internal/lock"
	"github.com/huddlehq/huddle/internal/status"
	"github.com/huddlehq/huddle/internal/store"
)

func TestDaemonLifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	workspaceDir := filepath.Join(tmpDir, "test")
	if err := os.MkdirAll(workspaceDir, 0700); err != nil {
		t.Fatal(err)
	}

	// Acquire lock.
	lk, err := lock.Acquire(workspaceDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	// Open store.
	db, err := store.Open(filepath.Join(workspaceDir, "huddle.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	// Setup components.
	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	_ = machine.Transition(status.Migrating)
	_ = machine.Transition(status.Ready)

	resolver := identity.NewResolver(db, b, logger)
	dir := directory.NewAggregator(db, b, logger)
	svc := chat.NewService(db, b, logger, nil)
	handlers := api.NewHandlers(db, b, resolver, dir, svc, machine, nil, logger)

	srv, err := NewServer(Params{Workspace: "test", Listen: "127.0.0.1:0"}, &config.Config{}, logger, handlers)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)

	// Daemon answers health checks with its runtime state.
	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["state"] != "READY" {
		t.Errorf("state = %q, want READY", body["state"])
	}

	// A second daemon cannot grab the same workspace.
	if _, err := lock.Acquire(workspaceDir); err == nil {
		t.Error("second Acquire should fail while the daemon holds the lock")
	}
}

func TestServerPicksConfigListenAddress(t *testing.T) {
	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)

	db, err := store.Open(filepath.Join(t.TempDir(), "huddle.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	resolver := identity.NewResolver(db, b, logger)
	dir := directory.NewAggregator(db, b, logger)
	svc := chat.NewService(db, b, logger, nil)
	handlers := api.NewHandlers(db, b, resolver, dir, svc, machine, nil, logger)

	// Flag override beats config.
	srv, err := NewServer(Params{Workspace: "test", Listen: "127.0.0.1:0"}, &config.Config{Listen: "10.0.0.1:1"}, logger, handlers)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Stop(context.Background())
	if srv.Addr() == "10.0.0.1:1" {
		t.Error("flag override should win over config listen address")
	}
}
