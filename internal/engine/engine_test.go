package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/coalesce/internal/blocking"
	"github.com/scrypster/coalesce/internal/config"
	"github.com/scrypster/coalesce/internal/coordinator"
	"github.com/scrypster/coalesce/internal/notify"
	"github.com/scrypster/coalesce/internal/resolver"
	"github.com/scrypster/coalesce/pkg/types"
)

func testEngineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Storage: config.StorageConfig{
			Engine:     "sqlite",
			SQLitePath: filepath.Join(dir, "coalesce.db"),
		},
		Events: config.EventsConfig{
			Dir:        filepath.Join(dir, "events"),
			FileEvents: true,
			BreakerMax: 3,
		},
		Server: config.ServerConfig{Port: 7171, Host: "127.0.0.1"},
	}
}

func testResolution() resolver.Config {
	return resolver.Config{
		MatchThreshold:    0.85,
		PossibleThreshold: 0.65,
		Weights:           map[string]float64{"name": 1.0},
		Comparators:       map[string]resolver.Comparator{"name": resolver.CompareJaroWinkler},
		Blocking:          blocking.Config{Phonetic: []string{"name"}},
	}
}

func TestEngineLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testEngineConfig(t)

	eng, err := New(cfg, testResolution())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var committed []types.MergeRecord
	eng.SetOnMergeCommitted(func(r types.MergeRecord) {
		committed = append(committed, r)
	})

	earlier := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	result, records, err := eng.ResolveBatch(ctx, []*types.Entity{
		{ID: "p1", Type: types.EntityPerson, Name: "Jon Smith", Confidence: 0.8},
		{ID: "p2", Type: types.EntityPerson, Name: "John Smith", Confidence: 0.8, CreatedAt: earlier},
		{ID: "org", Type: types.EntityOrganization, Name: "Acme"},
	})
	if err != nil {
		t.Fatalf("ResolveBatch failed: %v", err)
	}
	if len(result.Clusters) != 1 || len(records) != 1 || !records[0].Committed() {
		t.Fatalf("expected one committed merge, got clusters=%v records=%v", result.Clusters, records)
	}
	if len(committed) != 1 {
		t.Errorf("merge callback fired %d times, want 1", len(committed))
	}

	// Both members now resolve to the canonical.
	canonical := records[0].CanonicalID
	for _, id := range []string{"p1", "p2"} {
		resolved, err := eng.Store().Resolve(ctx, id)
		if err != nil || resolved != canonical {
			t.Errorf("Resolve(%s) = %s, %v, want %s", id, resolved, err, canonical)
		}
	}
	if eng.Store().EntityCount() != 2 {
		t.Errorf("entity count = %d, want 2 (merged person + org)", eng.Store().EntityCount())
	}

	if err := eng.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// A fresh engine over the same storage restores the merged graph.
	restored, err := New(cfg, testResolution())
	if err != nil {
		t.Fatalf("New (restore) failed: %v", err)
	}
	if err := restored.Start(ctx); err != nil {
		t.Fatalf("Start (restore) failed: %v", err)
	}
	defer func() { _ = restored.Shutdown(ctx) }()

	if restored.Store().EntityCount() != 2 {
		t.Errorf("restored entity count = %d, want 2", restored.Store().EntityCount())
	}
	entity, err := restored.Store().GetEntity(ctx, "p1")
	if err != nil {
		t.Fatalf("GetEntity(p1) after restore failed: %v", err)
	}
	if entity.ID != canonical {
		t.Errorf("restored alias resolved to %s, want %s", entity.ID, canonical)
	}
}

func TestResolveBatchIdempotentOnKnownIDs(t *testing.T) {
	ctx := context.Background()
	cfg := testEngineConfig(t)
	cfg.Storage.Engine = "none"

	eng, err := New(cfg, testResolution())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = eng.Shutdown(ctx) }()

	batch := []*types.Entity{
		{ID: "p1", Type: types.EntityPerson, Name: "Maria Garcia"},
	}
	if _, _, err := eng.ResolveBatch(ctx, batch); err != nil {
		t.Fatalf("first ResolveBatch failed: %v", err)
	}
	// The same id again is not an error; the stored entity wins.
	if _, _, err := eng.ResolveBatch(ctx, batch); err != nil {
		t.Fatalf("second ResolveBatch failed: %v", err)
	}
	if eng.Store().EntityCount() != 1 {
		t.Errorf("entity count = %d, want 1", eng.Store().EntityCount())
	}
}

func TestFileEventsReachHubSubscribers(t *testing.T) {
	ctx := context.Background()
	cfg := testEngineConfig(t)

	eng, err := New(cfg, testResolution())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = eng.Shutdown(ctx) }()

	client := &notify.MockClient{SendChan: make(chan []byte, 4)}
	eng.Hub().Register(client)

	receive := func() types.MergeRecord {
		t.Helper()
		select {
		case data := <-client.SendChan:
			var got types.MergeRecord
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("broadcast payload not valid JSON: %v", err)
			}
			return got
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for merge event")
			return types.MergeRecord{}
		}
	}

	// A local commit travels sink -> events directory -> watcher -> hub.
	_, records, err := eng.ResolveBatch(ctx, []*types.Entity{
		{ID: "p1", Type: types.EntityPerson, Name: "Jon Smith", Confidence: 0.8},
		{ID: "p2", Type: types.EntityPerson, Name: "John Smith", Confidence: 0.8},
	})
	if err != nil {
		t.Fatalf("ResolveBatch failed: %v", err)
	}
	if len(records) != 1 || !records[0].Committed() {
		t.Fatalf("expected one committed merge, got %v", records)
	}
	got := receive()
	if got.ID != records[0].ID {
		t.Errorf("broadcast record id = %s, want %s", got.ID, records[0].ID)
	}

	// A record dropped into the events directory by another writer fans
	// out the same way.
	sink, err := coordinator.NewFileSink(cfg.Events.Dir)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	external := types.MergeRecord{
		ID:          "ext-1",
		CanonicalID: "q1",
		AbsorbedIDs: []string{"q2"},
		Timestamp:   time.Now().UTC(),
	}
	if err := sink.Record(ctx, external); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	got = receive()
	if got.ID != "ext-1" || got.CanonicalID != "q1" {
		t.Errorf("external record broadcast wrong: %+v", got)
	}
}

func TestNewRejectsUnknownStorageEngine(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Storage.Engine = "tape"
	if _, err := New(cfg, testResolution()); err == nil {
		t.Fatal("expected error for unknown storage engine")
	}
}
