package graph

import (
	"context"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/coalesce/pkg/types"
)

// Export produces a full snapshot of the store: entities sorted by id,
// relationships in insertion order (so Import reproduces traversal
// tie-breaking), and the alias table. The snapshot holds clones; the caller
// may serialize it without racing the store.
func (s *Store) Export(ctx context.Context) (*types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &types.Snapshot{
		Entities:      make([]*types.Entity, 0, len(s.entities)),
		Relationships: make([]*types.Relationship, 0, len(s.relationships)),
		Aliases:       s.aliases.pairs(),
	}

	for _, entity := range s.entities {
		snap.Entities = append(snap.Entities, entity.Clone())
	}
	sort.Slice(snap.Entities, func(i, j int) bool { return snap.Entities[i].ID < snap.Entities[j].ID })

	for _, rel := range s.relationships {
		snap.Relationships = append(snap.Relationships, rel.Clone())
	}
	sort.Slice(snap.Relationships, func(i, j int) bool {
		return s.relSeq[snap.Relationships[i].ID] < s.relSeq[snap.Relationships[j].ID]
	})

	return snap, nil
}

// Import replaces the store's contents with the snapshot. Entities and
// aliases load first; relationships replay afterwards in list order, and
// dangling-reference validation is deferred until the whole snapshot has
// been staged. On any error the live store is untouched: the import builds
// into staging structures and swaps them in atomically only on success.
func (s *Store) Import(ctx context.Context, snap *types.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("graph: nil snapshot")
	}

	staging := NewStore()

	for _, entity := range snap.Entities {
		if entity.ID == "" {
			return fmt.Errorf("graph: import: entity with empty id")
		}
		if _, exists := staging.entities[entity.ID]; exists {
			return fmt.Errorf("graph: import entity %s: %w", entity.ID, ErrDuplicateID)
		}
		clone := entity.Clone()
		staging.entities[clone.ID] = clone
		staging.indexType(clone.Type, clone.ID)
		staging.indexAttrs(clone)
	}

	for _, pair := range snap.Aliases {
		if pair.Alias == "" || pair.Canonical == "" {
			return fmt.Errorf("graph: import: alias pair with empty id")
		}
		if _, exists := staging.entities[pair.Alias]; exists {
			return fmt.Errorf("graph: import alias %s: id also present as entity: %w", pair.Alias, ErrDuplicateID)
		}
		staging.aliases.add(pair.Alias, pair.Canonical)
	}

	// Stage relationships without endpoint checks; validation happens once
	// everything is loaded, so list order never matters.
	for _, rel := range snap.Relationships {
		if rel.ID == "" {
			return fmt.Errorf("graph: import: relationship with empty id")
		}
		if _, exists := staging.relationships[rel.ID]; exists {
			return fmt.Errorf("graph: import relationship %s: %w", rel.ID, ErrDuplicateID)
		}
		clone := rel.Clone()
		clone.SourceID = staging.aliases.resolve(clone.SourceID)
		clone.TargetID = staging.aliases.resolve(clone.TargetID)
		if clone.Strength == 0 {
			clone.Strength = 1.0
		}
		staging.insertRelationshipLocked(clone)
	}

	// Deferred validation pass.
	for _, pair := range snap.Aliases {
		if _, ok := staging.entities[staging.aliases.resolve(pair.Alias)]; !ok {
			return fmt.Errorf("graph: import alias %s -> %s: %w", pair.Alias, pair.Canonical, ErrDanglingReference)
		}
	}
	for _, rel := range staging.relationships {
		if _, ok := staging.entities[rel.SourceID]; !ok {
			return fmt.Errorf("graph: import relationship %s source %s: %w", rel.ID, rel.SourceID, ErrDanglingReference)
		}
		if _, ok := staging.entities[rel.TargetID]; !ok {
			return fmt.Errorf("graph: import relationship %s target %s: %w", rel.ID, rel.TargetID, ErrDanglingReference)
		}
	}

	cache, err := lru.New[string, []Path](pathCacheSize)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entities = staging.entities
	s.relationships = staging.relationships
	s.outgoing = staging.outgoing
	s.incoming = staging.incoming
	s.relSeq = staging.relSeq
	s.nextSeq = staging.nextSeq
	s.typeIndex = staging.typeIndex
	s.attrValues = staging.attrValues
	s.aliases = staging.aliases
	s.pathCache = cache
	s.mu.Unlock()

	return nil
}
