package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/scrypster/coalesce/pkg/types"
)

// Tests here need a live server; set COALESCE_POSTGRES_TEST_DSN to run them.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("COALESCE_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("COALESCE_POSTGRES_TEST_DSN not set")
	}
	store, err := New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	snap := &types.Snapshot{
		Entities: []*types.Entity{
			{ID: "e1", Type: types.EntityPerson, Name: "jon smith",
				Attributes: map[string]types.Value{"age": types.Number(40)}},
			{ID: "e2", Type: types.EntityOrganization, Name: "acme"},
		},
		Relationships: []*types.Relationship{
			{ID: "r1", SourceID: "e1", TargetID: "e2", Type: "works_at", Directed: true, Strength: 0.9},
		},
		Aliases: []types.AliasPair{{Alias: "e0", Canonical: "e1"}},
	}

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Entities) != 2 || len(loaded.Relationships) != 1 || len(loaded.Aliases) != 1 {
		t.Fatalf("snapshot shape wrong: %d entities, %d relationships, %d aliases",
			len(loaded.Entities), len(loaded.Relationships), len(loaded.Aliases))
	}
	if loaded.Entities[0].Attributes["age"].Num != 40 {
		t.Errorf("attributes did not survive the round trip: %v", loaded.Entities[0].Attributes)
	}
	if !loaded.Relationships[0].Directed {
		t.Errorf("directed flag lost")
	}
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Save(ctx, &types.Snapshot{Entities: []*types.Entity{
		{ID: "e1", Type: types.EntityPerson, Name: "one"},
	}}); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Save(ctx, &types.Snapshot{Entities: []*types.Entity{
		{ID: "e2", Type: types.EntityPerson, Name: "two"},
	}}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Entities) != 1 || loaded.Entities[0].ID != "e2" {
		t.Errorf("Save did not replace the previous snapshot: %+v", loaded.Entities)
	}
}
