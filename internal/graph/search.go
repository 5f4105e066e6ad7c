package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/scrypster/coalesce/pkg/types"
)

// SearchResult pairs an entity with the score its match earned.
type SearchResult struct {
	Entity *types.Entity `json:"entity"`
	Score  float64       `json:"score"`
}

// SearchEntities finds entities whose name or attribute values match the
// query, case-insensitively, by substring or token. An empty typeFilter
// searches all types. Results are ordered by match score descending, then
// entity confidence descending, then id ascending for a stable order.
//
// Match scoring: exact name 1.0, name prefix 0.9, name substring 0.8, all
// query tokens present in the name 0.7, exact attribute value 0.6,
// attribute substring 0.5, all query tokens present in one attribute
// value 0.4. Exact attribute hits come from the store's value index
// rather than a per-entity scan.
func (s *Store) SearchEntities(ctx context.Context, query, typeFilter string) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	tokens := strings.Fields(needle)

	candidates := s.candidateIDsLocked(typeFilter)
	exactAttr := s.attrValues[needle]

	var results []SearchResult
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entity := s.entities[id]
		if score := matchScore(entity, needle, tokens, exactAttr); score > 0 {
			results = append(results, SearchResult{Entity: entity.Clone(), Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Entity.Confidence != results[j].Entity.Confidence {
			return results[i].Entity.Confidence > results[j].Entity.Confidence
		}
		return results[i].Entity.ID < results[j].Entity.ID
	})

	return results, nil
}

// candidateIDsLocked returns the ids to scan: the type index slice when a
// filter is set, otherwise every live entity.
func (s *Store) candidateIDsLocked(typeFilter string) []string {
	if typeFilter != "" {
		ids := make([]string, 0, len(s.typeIndex[typeFilter]))
		for id := range s.typeIndex[typeFilter] {
			ids = append(ids, id)
		}
		return ids
	}

	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	return ids
}

func matchScore(e *types.Entity, needle string, tokens []string, exactAttr map[string]struct{}) float64 {
	name := strings.ToLower(e.Name)

	switch {
	case name == needle:
		return 1.0
	case strings.HasPrefix(name, needle):
		return 0.9
	case strings.Contains(name, needle):
		return 0.8
	}

	if len(tokens) > 1 && allTokensIn(name, tokens) {
		return 0.7
	}

	if _, ok := exactAttr[e.ID]; ok {
		return 0.6
	}

	best := 0.0
	for _, v := range e.Attributes {
		value := strings.ToLower(v.AsString())
		if value == "" {
			continue
		}
		switch {
		case strings.Contains(value, needle):
			if best < 0.5 {
				best = 0.5
			}
		case len(tokens) > 1 && allTokensIn(value, tokens):
			if best < 0.4 {
				best = 0.4
			}
		}
	}
	return best
}

func allTokensIn(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if !strings.Contains(haystack, token) {
			return false
		}
	}
	return true
}
