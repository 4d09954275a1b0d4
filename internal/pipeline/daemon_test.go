package pipeline

import (
	"context"
	"testing"
	"time"

	"songforge/internal/logging"
	"songforge/internal/songs"
	"songforge/internal/testsupport"
)

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	stubs := stubPipeline(cfg)
	runner := newTestRunner(t, cfg, store, stubs)

	first, err := NewDaemon(cfg, store, logger, runner)
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second, err := NewDaemon(cfg, store, logger, runner)
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second daemon acquired the instance lock")
	}
}

func TestDaemonDrainsQueueInBackground(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.AddSong(t, store, "bg001", "Background Song")

	stubs := stubPipeline(cfg)
	runner := newTestRunner(t, cfg, store, stubs)
	daemon, err := NewDaemon(cfg, store, logging.NewNop(), runner)
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if err := daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer daemon.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for {
		song, err := store.GetByVideoID(context.Background(), "bg001")
		if err != nil {
			t.Fatalf("GetByVideoID: %v", err)
		}
		if song.Status == songs.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("song never completed; status %s", song.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	status := daemon.Status(context.Background())
	if !status.Running {
		t.Fatal("daemon reports not running")
	}
	if status.Queue.Completed != 1 {
		t.Fatalf("queue health completed = %d, want 1", status.Queue.Completed)
	}
}
