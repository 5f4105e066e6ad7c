// Package graph owns the in-memory entity/relationship index and answers
// structural queries: lookup, bounded path-finding, network expansion,
// search, and on-demand metrics.
//
// Concurrency model: one coarse read/write lock over the whole store.
// Reads (GetEntity, FindPaths, Network, SearchEntities, metrics) run
// concurrently; writes (AddEntity, AddRelationship, UpdateEntity, Merge,
// Import) serialize against each other and against readers. sync.RWMutex
// blocks new readers once a writer is waiting, so a resolution batch cannot
// be starved by a steady read load.
package graph

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/coalesce/pkg/types"
)

// pathCacheSize bounds the FindPaths result cache. Entries are invalidated
// wholesale on every write, so the cache only speeds up read-heavy phases.
const pathCacheSize = 512

// Store is the authoritative in-memory graph index. All access goes through
// an explicit *Store handle; there is no package-level singleton.
type Store struct {
	mu sync.RWMutex

	entities      map[string]*types.Entity
	relationships map[string]*types.Relationship

	// outgoing and incoming map a live entity id to the ids of its edges,
	// in insertion order. relSeq assigns each relationship a monotonically
	// increasing sequence number used for tie-breaking during traversal.
	outgoing map[string][]string
	incoming map[string][]string
	relSeq   map[string]int
	nextSeq  int

	typeIndex map[string]map[string]struct{}

	// attrValues maps the lowercase string rendering of an attribute value
	// to the live entities holding it, for exact-match search lookups.
	attrValues map[string]map[string]struct{}

	aliases *aliasSet

	pathCache *lru.Cache[string, []Path]
}

// NewStore creates an empty graph store.
func NewStore() *Store {
	cache, err := lru.New[string, []Path](pathCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Store{
		entities:      make(map[string]*types.Entity),
		relationships: make(map[string]*types.Relationship),
		outgoing:      make(map[string][]string),
		incoming:      make(map[string][]string),
		relSeq:        make(map[string]int),
		typeIndex:     make(map[string]map[string]struct{}),
		attrValues:    make(map[string]map[string]struct{}),
		aliases:       newAliasSet(),
		pathCache:     cache,
	}
}

// AddEntity inserts a new entity and returns its id. An empty id is
// replaced with a generated one. Fails with ErrDuplicateID if the id is
// already present, including as an alias of a merged-away entity: ids are
// never reused for the lifetime of the store.
func (s *Store) AddEntity(ctx context.Context, entity *types.Entity) (string, error) {
	if entity == nil {
		return "", fmt.Errorf("graph: nil entity")
	}

	stored := entity.Clone()
	if stored.ID == "" {
		stored.ID = "ent:" + uuid.NewString()
	}
	if stored.Type == "" {
		return "", fmt.Errorf("graph: entity %s has empty type", stored.ID)
	}

	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[stored.ID]; exists {
		return "", fmt.Errorf("graph: add entity %s: %w", stored.ID, ErrDuplicateID)
	}
	if s.aliases.contains(stored.ID) {
		return "", fmt.Errorf("graph: add entity %s: id retired as alias: %w", stored.ID, ErrDuplicateID)
	}

	s.entities[stored.ID] = stored
	s.indexType(stored.Type, stored.ID)
	s.indexAttrs(stored)
	s.pathCache.Purge()

	return stored.ID, nil
}

// AddRelationship inserts a typed edge between two entities and returns its
// id. Endpoints are resolved through the alias table, so callers may hold
// retired ids. Fails with ErrDanglingReference if either endpoint is
// unknown; the store is unchanged on failure.
func (s *Store) AddRelationship(ctx context.Context, rel *types.Relationship) (string, error) {
	if rel == nil {
		return "", fmt.Errorf("graph: nil relationship")
	}

	stored := rel.Clone()
	if stored.ID == "" {
		stored.ID = "rel:" + uuid.NewString()
	}
	if stored.Type == "" {
		return "", fmt.Errorf("graph: relationship %s has empty type", stored.ID)
	}
	if stored.Strength == 0 {
		stored.Strength = 1.0
	}

	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.relationships[stored.ID]; exists {
		return "", fmt.Errorf("graph: add relationship %s: %w", stored.ID, ErrDuplicateID)
	}

	source := s.aliases.resolve(stored.SourceID)
	target := s.aliases.resolve(stored.TargetID)
	if _, ok := s.entities[source]; !ok {
		return "", fmt.Errorf("graph: relationship source %s: %w", stored.SourceID, ErrDanglingReference)
	}
	if _, ok := s.entities[target]; !ok {
		return "", fmt.Errorf("graph: relationship target %s: %w", stored.TargetID, ErrDanglingReference)
	}

	// Store canonical endpoints so later lookups skip the alias chase.
	stored.SourceID = source
	stored.TargetID = target

	s.insertRelationshipLocked(stored)
	s.pathCache.Purge()

	return stored.ID, nil
}

// insertRelationshipLocked wires a relationship into the adjacency indexes.
// Caller holds the write lock and has validated both endpoints.
func (s *Store) insertRelationshipLocked(rel *types.Relationship) {
	s.relationships[rel.ID] = rel
	s.relSeq[rel.ID] = s.nextSeq
	s.nextSeq++
	s.outgoing[rel.SourceID] = append(s.outgoing[rel.SourceID], rel.ID)
	s.incoming[rel.TargetID] = append(s.incoming[rel.TargetID], rel.ID)
}

// GetEntity returns the entity for id, chasing the alias chain
// transparently: a retired id yields its canonical successor's data.
// Fails with ErrNotFound if the id was never known.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[s.aliases.resolve(id)]
	if !ok {
		return nil, fmt.Errorf("graph: get entity %s: %w", id, ErrNotFound)
	}
	return entity.Clone(), nil
}

// GetRelationship returns the relationship for id.
func (s *Store) GetRelationship(ctx context.Context, id string) (*types.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.relationships[id]
	if !ok {
		return nil, fmt.Errorf("graph: get relationship %s: %w", id, ErrNotFound)
	}
	return rel.Clone(), nil
}

// EntityPatch describes a partial entity update. Nil fields are left
// untouched; Attributes are merged key-by-key into the existing map.
type EntityPatch struct {
	Name       *string
	Type       *string
	Confidence *float64
	Attributes map[string]types.Value
}

// UpdateEntity applies a patch to an existing entity and returns the updated
// copy. The id is alias-resolved first, so updates through a retired id land
// on the canonical entity.
func (s *Store) UpdateEntity(ctx context.Context, id string, patch EntityPatch) (*types.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := s.aliases.resolve(id)
	entity, ok := s.entities[canonical]
	if !ok {
		return nil, fmt.Errorf("graph: update entity %s: %w", id, ErrNotFound)
	}

	if patch.Name != nil {
		entity.Name = *patch.Name
	}
	if patch.Type != nil && *patch.Type != entity.Type {
		s.unindexType(entity.Type, canonical)
		entity.Type = *patch.Type
		s.indexType(entity.Type, canonical)
	}
	if patch.Confidence != nil {
		entity.Confidence = *patch.Confidence
	}
	if len(patch.Attributes) > 0 {
		s.unindexAttrs(entity)
		if entity.Attributes == nil {
			entity.Attributes = make(map[string]types.Value, len(patch.Attributes))
		}
		for k, v := range patch.Attributes {
			entity.Attributes[k] = v.Clone()
		}
		s.indexAttrs(entity)
	}
	entity.Touch()
	s.pathCache.Purge()

	return entity.Clone(), nil
}

// Resolve returns the canonical id for any id the store has ever known,
// or ErrNotFound.
func (s *Store) Resolve(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canonical := s.aliases.resolve(id)
	if _, ok := s.entities[canonical]; !ok {
		return "", fmt.Errorf("graph: resolve %s: %w", id, ErrNotFound)
	}
	return canonical, nil
}

// EntityCount returns the number of live (non-aliased) entities.
func (s *Store) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// RelationshipCount returns the number of relationships.
func (s *Store) RelationshipCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.relationships)
}

// Merge absorbs the given entity ids into the canonical entity: the
// canonical entity's attributes are replaced with mergedAttrs, every
// relationship of an absorbed entity is rewritten onto the canonical id
// (dropping duplicates that rewriting produces), and each absorbed id is
// retired as a permanent alias.
//
// Merge validates everything before mutating anything: on error the store
// is exactly as it was. Validation failures are reported as ErrNotFound
// (canonical or absorbed id not live); the coordinator translates these
// into merge conflicts.
func (s *Store) Merge(ctx context.Context, canonicalID string, absorbed []string, mergedAttrs map[string]types.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical, ok := s.entities[canonicalID]
	if !ok {
		return fmt.Errorf("graph: merge canonical %s: %w", canonicalID, ErrNotFound)
	}
	for _, id := range absorbed {
		if id == canonicalID {
			return fmt.Errorf("graph: merge: canonical %s listed as absorbed", canonicalID)
		}
		if _, ok := s.entities[id]; !ok {
			return fmt.Errorf("graph: merge absorbed %s: %w", id, ErrNotFound)
		}
	}

	// Commit phase: no failures past this point.
	s.unindexAttrs(canonical)
	canonical.Attributes = types.CloneAttributes(mergedAttrs)
	canonical.Touch()
	s.indexAttrs(canonical)

	for _, id := range absorbed {
		s.rewireLocked(id, canonicalID)

		absorbedEntity := s.entities[id]
		s.unindexType(absorbedEntity.Type, id)
		s.unindexAttrs(absorbedEntity)
		delete(s.entities, id)
		s.aliases.add(id, canonicalID)
	}

	s.dedupeIncidentLocked(canonicalID)
	s.pathCache.Purge()

	log.Printf("graph: merged %d entities into %s", len(absorbed), canonicalID)
	return nil
}

// rewireLocked points every relationship incident to oldID at newID and
// moves the adjacency entries across. Caller holds the write lock.
func (s *Store) rewireLocked(oldID, newID string) {
	for _, relID := range s.outgoing[oldID] {
		rel := s.relationships[relID]
		rel.SourceID = newID
		rel.Touch()
		s.outgoing[newID] = append(s.outgoing[newID], relID)
	}
	delete(s.outgoing, oldID)

	for _, relID := range s.incoming[oldID] {
		rel := s.relationships[relID]
		rel.TargetID = newID
		rel.Touch()
		s.incoming[newID] = append(s.incoming[newID], relID)
	}
	delete(s.incoming, oldID)
}

// dedupeIncidentLocked removes duplicate relationships (same endpoints,
// type, and attributes) among the edges incident to id, keeping the oldest
// by insertion order. Rewiring after a merge is the only way duplicates can
// appear. Caller holds the write lock.
func (s *Store) dedupeIncidentLocked(id string) {
	incident := s.incidentLocked(id)

	// Every endpoint of a dropped edge needs its adjacency lists compacted,
	// not just id: the far endpoint holds the dropped edge id too.
	endpoints := map[string]struct{}{id: {}}
	var drop []string
	for i := 0; i < len(incident); i++ {
		a := s.relationships[incident[i]]
		if a == nil {
			continue
		}
		for j := i + 1; j < len(incident); j++ {
			b := s.relationships[incident[j]]
			if b == nil || incident[i] == incident[j] {
				continue
			}
			if a.SameEdge(b) {
				drop = append(drop, incident[j])
				endpoints[b.SourceID] = struct{}{}
				endpoints[b.TargetID] = struct{}{}
				delete(s.relationships, incident[j])
			}
		}
	}

	if len(drop) == 0 {
		return
	}
	for _, relID := range drop {
		delete(s.relSeq, relID)
	}
	for endpoint := range endpoints {
		s.compactAdjacencyLocked(endpoint)
	}
}

// incidentLocked returns all edge ids touching id, sorted by insertion
// order, duplicates (self-loops appear in both maps) removed.
func (s *Store) incidentLocked(id string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, relID := range s.outgoing[id] {
		if _, ok := seen[relID]; !ok {
			seen[relID] = struct{}{}
			out = append(out, relID)
		}
	}
	for _, relID := range s.incoming[id] {
		if _, ok := seen[relID]; !ok {
			seen[relID] = struct{}{}
			out = append(out, relID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.relSeq[out[i]] < s.relSeq[out[j]] })
	return out
}

// compactAdjacencyLocked drops adjacency entries whose relationship no
// longer exists. Caller holds the write lock.
func (s *Store) compactAdjacencyLocked(id string) {
	filter := func(ids []string) []string {
		kept := ids[:0]
		for _, relID := range ids {
			if _, ok := s.relationships[relID]; ok {
				kept = append(kept, relID)
			}
		}
		return kept
	}
	s.outgoing[id] = filter(s.outgoing[id])
	s.incoming[id] = filter(s.incoming[id])
}

func (s *Store) indexType(entityType, id string) {
	ids, ok := s.typeIndex[entityType]
	if !ok {
		ids = make(map[string]struct{})
		s.typeIndex[entityType] = ids
	}
	ids[id] = struct{}{}
}

func (s *Store) unindexType(entityType, id string) {
	if ids, ok := s.typeIndex[entityType]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.typeIndex, entityType)
		}
	}
}

// indexAttrs registers every string-renderable attribute value of the
// entity. Null and empty values are not indexed.
func (s *Store) indexAttrs(entity *types.Entity) {
	for _, v := range entity.Attributes {
		value := strings.ToLower(v.AsString())
		if value == "" {
			continue
		}
		ids, ok := s.attrValues[value]
		if !ok {
			ids = make(map[string]struct{})
			s.attrValues[value] = ids
		}
		ids[entity.ID] = struct{}{}
	}
}

func (s *Store) unindexAttrs(entity *types.Entity) {
	for _, v := range entity.Attributes {
		value := strings.ToLower(v.AsString())
		if value == "" {
			continue
		}
		if ids, ok := s.attrValues[value]; ok {
			delete(ids, entity.ID)
			if len(ids) == 0 {
				delete(s.attrValues, value)
			}
		}
	}
}

// neighborsLocked returns the edges traversable away from id in insertion
// order: outgoing edges always, incoming edges only when undirected.
// Caller holds at least the read lock.
func (s *Store) neighborsLocked(id string) []*types.Relationship {
	var edges []*types.Relationship
	for _, relID := range s.outgoing[id] {
		edges = append(edges, s.relationships[relID])
	}
	for _, relID := range s.incoming[id] {
		rel := s.relationships[relID]
		if rel.Directed {
			continue
		}
		if rel.SourceID == rel.TargetID {
			// Self-loop already collected from the outgoing list.
			continue
		}
		edges = append(edges, rel)
	}
	sort.Slice(edges, func(i, j int) bool { return s.relSeq[edges[i].ID] < s.relSeq[edges[j].ID] })
	return edges
}

// otherEnd returns the endpoint of rel that is not from.
func otherEnd(rel *types.Relationship, from string) string {
	if rel.SourceID == from {
		return rel.TargetID
	}
	return rel.SourceID
}
