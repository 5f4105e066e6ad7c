package graph

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/scrypster/coalesce/pkg/types"
)

// Path is one simple path between two entities: the visited entity ids and
// the relationships connecting them, in order. len(Relationships) is the
// path length in edges.
type Path struct {
	EntityIDs       []string `json:"entity_ids"`
	RelationshipIDs []string `json:"relationship_ids"`
}

// Len returns the number of edges in the path.
func (p Path) Len() int { return len(p.RelationshipIDs) }

// FindPaths enumerates every simple path from sourceID to targetID of at
// most maxDepth edges, breadth-first: shortest paths first, ties broken by
// the insertion order of the relationship extending the path. A node never
// repeats within one path, but may appear in several returned paths.
//
// Directed relationships are traversed source to target only; undirected
// relationships are traversed both ways. Returns an empty slice, not an
// error, when the target is unreachable within maxDepth. Unknown endpoints
// fail with ErrNotFound.
func (s *Store) FindPaths(ctx context.Context, sourceID, targetID string, maxDepth int) ([]Path, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source := s.aliases.resolve(sourceID)
	target := s.aliases.resolve(targetID)
	if _, ok := s.entities[source]; !ok {
		return nil, fmt.Errorf("graph: find paths source %s: %w", sourceID, ErrNotFound)
	}
	if _, ok := s.entities[target]; !ok {
		return nil, fmt.Errorf("graph: find paths target %s: %w", targetID, ErrNotFound)
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	cacheKey := source + "|" + target + "|" + strconv.Itoa(maxDepth)
	if cached, ok := s.pathCache.Get(cacheKey); ok {
		return clonePaths(cached), nil
	}

	type state struct {
		node string
		path Path
	}

	var found []Path
	queue := []state{{
		node: source,
		path: Path{EntityIDs: []string{source}},
	}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]

		if current.node == target {
			found = append(found, current.path)
			// A simple path cannot leave and return to the target, so
			// there is nothing to extend here.
			continue
		}

		if current.path.Len() >= maxDepth {
			continue
		}

		for _, rel := range s.neighborsLocked(current.node) {
			next := otherEnd(rel, current.node)
			if containsID(current.path.EntityIDs, next) {
				continue
			}
			queue = append(queue, state{
				node: next,
				path: Path{
					EntityIDs:       appendCopy(current.path.EntityIDs, next),
					RelationshipIDs: appendCopy(current.path.RelationshipIDs, rel.ID),
				},
			})
		}
	}

	s.pathCache.Add(cacheKey, clonePaths(found))
	return found, nil
}

// Network is the induced subgraph around an entity: every entity within the
// requested hop count and every relationship whose endpoints are both in
// that set.
type Network struct {
	Entities      []*types.Entity       `json:"entities"`
	Relationships []*types.Relationship `json:"relationships"`
}

// Network expands breadth-first from entityID, collecting all entities
// within depth hops and all edges between the collected entities. Depth 0
// returns just the entity itself. Directed relationships expand source to
// target only; undirected expand both ways.
func (s *Store) Network(ctx context.Context, entityID string, depth int) (*Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := s.aliases.resolve(entityID)
	if _, ok := s.entities[start]; !ok {
		return nil, fmt.Errorf("graph: network %s: %w", entityID, ErrNotFound)
	}
	if depth < 0 {
		depth = 0
	}

	type hop struct {
		node  string
		depth int
	}

	collected := []string{start}
	visited := map[string]struct{}{start: {}}
	queue := []hop{{node: start, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]
		if current.depth >= depth {
			continue
		}

		for _, rel := range s.neighborsLocked(current.node) {
			next := otherEnd(rel, current.node)
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			collected = append(collected, next)
			queue = append(queue, hop{node: next, depth: current.depth + 1})
		}
	}

	network := &Network{Entities: make([]*types.Entity, 0, len(collected))}
	for _, id := range collected {
		network.Entities = append(network.Entities, s.entities[id].Clone())
	}

	// Induced edges: both endpoints inside the collected set.
	seen := make(map[string]struct{})
	for _, id := range collected {
		for _, relID := range s.incidentLocked(id) {
			if _, ok := seen[relID]; ok {
				continue
			}
			rel := s.relationships[relID]
			if _, okA := visited[rel.SourceID]; !okA {
				continue
			}
			if _, okB := visited[rel.TargetID]; !okB {
				continue
			}
			seen[relID] = struct{}{}
			network.Relationships = append(network.Relationships, rel.Clone())
		}
	}
	sort.Slice(network.Relationships, func(i, j int) bool {
		return s.relSeq[network.Relationships[i].ID] < s.relSeq[network.Relationships[j].ID]
	})

	return network, nil
}

// Neighbors returns the entities reachable from entityID within depth hops,
// in breadth-first discovery order, excluding the entity itself. Directed
// relationships are followed source to target only; undirected both ways.
// Depth values below 1 are treated as 1.
func (s *Store) Neighbors(ctx context.Context, entityID string, depth int) ([]*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := s.aliases.resolve(entityID)
	if _, ok := s.entities[start]; !ok {
		return nil, fmt.Errorf("graph: neighbors %s: %w", entityID, ErrNotFound)
	}
	if depth < 1 {
		depth = 1
	}

	type hop struct {
		node  string
		depth int
	}

	var collected []string
	visited := map[string]struct{}{start: {}}
	queue := []hop{{node: start, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]
		if current.depth >= depth {
			continue
		}

		for _, rel := range s.neighborsLocked(current.node) {
			next := otherEnd(rel, current.node)
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			collected = append(collected, next)
			queue = append(queue, hop{node: next, depth: current.depth + 1})
		}
	}

	neighbors := make([]*types.Entity, 0, len(collected))
	for _, id := range collected {
		neighbors = append(neighbors, s.entities[id].Clone())
	}
	return neighbors, nil
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// appendCopy appends to a fresh slice so queued paths never share backing
// arrays.
func appendCopy(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id)
}

func clonePaths(paths []Path) []Path {
	out := make([]Path, len(paths))
	for i, p := range paths {
		out[i] = Path{
			EntityIDs:       append([]string(nil), p.EntityIDs...),
			RelationshipIDs: append([]string(nil), p.RelationshipIDs...),
		}
	}
	return out
}
