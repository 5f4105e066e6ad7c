package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/scrypster/coalesce/internal/coordinator"
	"github.com/scrypster/coalesce/pkg/types"
)

func writeRecord(t *testing.T, dir, id string) {
	t.Helper()
	sink, err := coordinator.NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	record := types.MergeRecord{
		ID:          id,
		CanonicalID: "p2",
		AbsorbedIDs: []string{"p1"},
		Scores:      map[string]float64{"p1|p2": 0.97},
		Timestamp:   time.Now().UTC(),
	}
	if err := sink.Record(context.Background(), record); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}

func TestMergeWatcherReceivesRecord(t *testing.T) {
	dir := t.TempDir()

	received := make(chan types.MergeRecord, 1)
	watcher := NewMergeWatcher(dir, func(r types.MergeRecord) {
		received <- r
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	writeRecord(t, dir, "rec-1")

	select {
	case record := <-received:
		if record.ID != "rec-1" {
			t.Errorf("record id = %s, want rec-1", record.ID)
		}
		if record.CanonicalID != "p2" || len(record.AbsorbedIDs) != 1 {
			t.Errorf("record content wrong: %+v", record)
		}
		if !record.Committed() {
			t.Errorf("committed record reported as conflict: %+v", record)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for merge event")
	}
}

func TestMergeWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	// Records written before the watcher starts.
	writeRecord(t, dir, "rec-1")
	writeRecord(t, dir, "rec-2")

	received := make(chan string, 10)
	watcher := NewMergeWatcher(dir, func(r types.MergeRecord) {
		received <- r.ID
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Drain happens synchronously during Start.
	time.Sleep(100 * time.Millisecond)

	if len(received) != 2 {
		t.Fatalf("expected 2 drained records, got %d", len(received))
	}
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	client := &MockClient{SendChan: make(chan []byte, 4)}
	hub.Register(client)

	record := types.MergeRecord{
		ID:          "rec-1",
		CanonicalID: "p2",
		AbsorbedIDs: []string{"p1"},
		Timestamp:   time.Now().UTC(),
	}
	hub.Broadcast(record)

	select {
	case data := <-client.SendChan:
		var got types.MergeRecord
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("broadcast payload not valid JSON: %v", err)
		}
		if got.ID != "rec-1" || got.CanonicalID != "p2" {
			t.Errorf("broadcast content wrong: %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	client := &MockClient{SendChan: make(chan []byte, 4)}
	hub.Register(client)
	hub.Unregister(client)

	select {
	case _, open := <-client.SendChan:
		if open {
			t.Error("expected send channel closed after unregister")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestHubUnregisterReturnsAfterStop(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	client := &MockClient{SendChan: make(chan []byte, 4)}
	hub.Register(client)
	hub.Stop()

	// Client pumps unregister on their way out; with the run loop gone the
	// call must still return instead of blocking the goroutine forever.
	done := make(chan struct{})
	go func() {
		hub.Unregister(client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Unregister blocked after Stop")
	}
}

func TestHubDropsSaturatedSubscriber(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	// An unbuffered channel nobody reads: the first broadcast cannot be
	// delivered and the hub must disconnect the subscriber.
	client := &MockClient{SendChan: make(chan []byte)}
	hub.Register(client)

	hub.Broadcast(types.MergeRecord{ID: "rec-1"})

	// Stay out of the receive until the hub has hit the full-channel path.
	time.Sleep(100 * time.Millisecond)

	select {
	case _, open := <-client.SendChan:
		if open {
			t.Error("expected send channel closed for saturated subscriber")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for disconnect")
	}
}
