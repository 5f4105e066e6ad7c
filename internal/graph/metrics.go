package graph

import (
	"context"
	"fmt"

	"github.com/scrypster/coalesce/pkg/types"
)

// Degree returns the number of edges incident to the entity (in plus out;
// self-loops count twice, matching the usual graph-theoretic convention).
// Metrics are computed on demand over the current snapshot; nothing is
// maintained incrementally.
func (s *Store) Degree(ctx context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canonical := s.aliases.resolve(id)
	if _, ok := s.entities[canonical]; !ok {
		return 0, fmt.Errorf("graph: degree %s: %w", id, ErrNotFound)
	}
	return len(s.outgoing[canonical]) + len(s.incoming[canonical]), nil
}

// DegreeCentrality returns degree/(n-1) for every live entity, the standard
// normalization. A single-entity graph maps to centrality 0.
func (s *Store) DegreeCentrality(ctx context.Context) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entities)
	out := make(map[string]float64, n)
	if n <= 1 {
		for id := range s.entities {
			out[id] = 0
		}
		return out, nil
	}

	for id := range s.entities {
		degree := len(s.outgoing[id]) + len(s.incoming[id])
		out[id] = float64(degree) / float64(n-1)
	}
	return out, nil
}

// Stats summarizes the current graph snapshot.
type Stats struct {
	Entities            int            `json:"entities"`
	Relationships       int            `json:"relationships"`
	Aliases             int            `json:"aliases"`
	EntityTypes         map[string]int `json:"entity_types"`
	Density             float64        `json:"density"`
	ConnectedComponents int            `json:"connected_components"`
	AverageClustering   float64        `json:"average_clustering"`
}

// Stats computes node/edge counts, per-type counts, density, the number of
// weakly connected components, and the average clustering coefficient.
// Direction is ignored for components and clustering.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Entities:      len(s.entities),
		Relationships: len(s.relationships),
		Aliases:       s.aliases.size(),
		EntityTypes:   make(map[string]int, len(s.typeIndex)),
	}
	for entityType, ids := range s.typeIndex {
		stats.EntityTypes[entityType] = len(ids)
	}

	n := len(s.entities)
	if n > 1 {
		stats.Density = 2.0 * float64(len(s.relationships)) / (float64(n) * float64(n-1))
	}

	adjacency := s.undirectedAdjacencyLocked()
	stats.ConnectedComponents = countComponents(s.entities, adjacency)
	stats.AverageClustering = averageClustering(s.entities, adjacency)

	return stats, nil
}

// undirectedAdjacencyLocked builds neighbor sets ignoring direction and
// collapsing multi-edges. Caller holds at least the read lock.
func (s *Store) undirectedAdjacencyLocked() map[string]map[string]struct{} {
	adjacency := make(map[string]map[string]struct{}, len(s.entities))
	link := func(a, b string) {
		if a == b {
			return
		}
		if adjacency[a] == nil {
			adjacency[a] = make(map[string]struct{})
		}
		adjacency[a][b] = struct{}{}
	}
	for _, rel := range s.relationships {
		link(rel.SourceID, rel.TargetID)
		link(rel.TargetID, rel.SourceID)
	}
	return adjacency
}

func countComponents(entities map[string]*types.Entity, adjacency map[string]map[string]struct{}) int {
	visited := make(map[string]struct{}, len(entities))
	components := 0

	for id := range entities {
		if _, ok := visited[id]; ok {
			continue
		}
		components++

		stack := []string{id}
		visited[id] = struct{}{}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for neighbor := range adjacency[node] {
				if _, ok := visited[neighbor]; !ok {
					visited[neighbor] = struct{}{}
					stack = append(stack, neighbor)
				}
			}
		}
	}
	return components
}

// averageClustering is the mean local clustering coefficient: for each
// entity, the fraction of its neighbor pairs that are themselves connected.
// Entities with fewer than two neighbors contribute 0.
func averageClustering(entities map[string]*types.Entity, adjacency map[string]map[string]struct{}) float64 {
	if len(entities) == 0 {
		return 0
	}

	total := 0.0
	for id := range entities {
		neighbors := adjacency[id]
		k := len(neighbors)
		if k < 2 {
			continue
		}

		links := 0
		ids := make([]string, 0, k)
		for neighbor := range neighbors {
			ids = append(ids, neighbor)
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if _, ok := adjacency[ids[i]][ids[j]]; ok {
					links++
				}
			}
		}
		total += 2.0 * float64(links) / (float64(k) * float64(k-1))
	}
	return total / float64(len(entities))
}
