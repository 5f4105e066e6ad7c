package resolver

import (
	"sort"

	"github.com/scrypster/coalesce/pkg/types"
)

// unionFind is a plain disjoint-set over batch-local entity ids, used to
// turn auto-match edges into connected components.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(id string) string {
	root := id
	for {
		p, ok := u.parent[root]
		if !ok || p == root {
			return root
		}
		// Path halving.
		if grand, ok := u.parent[p]; ok {
			u.parent[root] = grand
		}
		root = p
	}
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Deterministic orientation: larger root points at smaller.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// buildClusters groups auto-match edges into connected components and picks
// each component's canonical entity. Components of one entity are dropped:
// a cluster proposes a merge, and there is nothing to merge into a
// singleton.
//
// Canonical choice is a deterministic, total order: highest confidence,
// then earliest created_at, then lexicographically smallest id.
func buildClusters(matches []types.MatchCandidate, byID map[string]*types.Entity, cfg Config) []types.Cluster {
	if len(matches) == 0 {
		return nil
	}

	uf := newUnionFind()
	for _, m := range matches {
		uf.union(m.EntityA, m.EntityB)
	}

	members := make(map[string][]string)
	for _, m := range matches {
		for _, id := range []string{m.EntityA, m.EntityB} {
			root := uf.find(id)
			if !containsString(members[root], id) {
				members[root] = append(members[root], id)
			}
		}
	}

	pairScores := make(map[string]map[string]float64)
	for _, m := range matches {
		root := uf.find(m.EntityA)
		if pairScores[root] == nil {
			pairScores[root] = make(map[string]float64)
		}
		pairScores[root][m.PairKey()] = m.Score
	}

	roots := make([]string, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	clusters := make([]types.Cluster, 0, len(roots))
	for _, root := range roots {
		ids := members[root]
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		clusters = append(clusters, types.Cluster{
			Members:           ids,
			CanonicalID:       chooseCanonical(ids, byID),
			PairScores:        pairScores[root],
			MatchThreshold:    cfg.MatchThreshold,
			PossibleThreshold: cfg.PossibleThreshold,
		})
	}
	return clusters
}

// chooseCanonical applies the canonical tie-break chain over the cluster
// members: highest confidence, earliest created_at, smallest id.
func chooseCanonical(ids []string, byID map[string]*types.Entity) string {
	best := ids[0]
	for _, id := range ids[1:] {
		if canonicalLess(byID[id], byID[best]) {
			best = id
		}
	}
	return best
}

// canonicalLess reports whether a outranks b for canonical selection.
func canonicalLess(a, b *types.Entity) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func containsString(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
