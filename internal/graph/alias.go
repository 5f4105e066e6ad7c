package graph

import (
	"sort"
	"sync"

	"github.com/scrypster/coalesce/pkg/types"
)

// aliasSet tracks retired entity ids as a disjoint-set forest: every alias
// points toward its canonical successor. Lookups compress chains with path
// halving, keeping resolution O(1) amortized no matter how many merges an
// id has been through.
//
// aliasSet carries its own mutex because compression mutates the parent map
// even on reads, which may happen while the store only holds its read lock.
type aliasSet struct {
	mu     sync.Mutex
	parent map[string]string
}

func newAliasSet() *aliasSet {
	return &aliasSet{parent: make(map[string]string)}
}

// resolve follows the alias chain from id to its canonical root, halving
// the path as it goes. Ids that were never aliased resolve to themselves.
func (a *aliasSet) resolve(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := id
	for {
		next, ok := a.parent[current]
		if !ok {
			return current
		}
		if grand, ok := a.parent[next]; ok {
			// Path halving: point current at its grandparent.
			a.parent[current] = grand
			current = grand
		} else {
			return next
		}
	}
}

// add retires the alias id, pointing it at canonical. The caller guarantees
// canonical is (or resolves to) a live entity.
func (a *aliasSet) add(alias, canonical string) {
	a.mu.Lock()
	a.parent[alias] = canonical
	a.mu.Unlock()
}

// contains reports whether id has been retired as an alias.
func (a *aliasSet) contains(id string) bool {
	a.mu.Lock()
	_, ok := a.parent[id]
	a.mu.Unlock()
	return ok
}

// pairs exports every alias with its fully resolved canonical id, sorted by
// alias for deterministic snapshots.
func (a *aliasSet) pairs() []types.AliasPair {
	a.mu.Lock()
	ids := make([]string, 0, len(a.parent))
	for alias := range a.parent {
		ids = append(ids, alias)
	}
	a.mu.Unlock()

	sort.Strings(ids)
	out := make([]types.AliasPair, 0, len(ids))
	for _, alias := range ids {
		out = append(out, types.AliasPair{Alias: alias, Canonical: a.resolve(alias)})
	}
	return out
}

// size returns the number of retired ids.
func (a *aliasSet) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.parent)
}
