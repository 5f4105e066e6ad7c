package resolver

import (
	"sort"

	"github.com/scrypster/coalesce/pkg/types"
)

// MergedAttributes computes the canonical entity's attribute set for a
// cluster merge: the union of every member's attributes. On a key
// collision the canonical member's non-null value wins; otherwise the value
// comes from the highest-confidence member holding one (ties broken by
// earliest created_at, then smallest id, the same total order used for
// canonical selection).
//
// The function is pure: inputs are not mutated and the result holds clones.
func MergedAttributes(canonical *types.Entity, members []*types.Entity) map[string]types.Value {
	// Rank members once; the canonical entity always outranks the rest.
	ranked := make([]*types.Entity, 0, len(members)+1)
	ranked = append(ranked, canonical)
	for _, m := range members {
		if m.ID != canonical.ID {
			ranked = append(ranked, m)
		}
	}
	rest := ranked[1:]
	sort.SliceStable(rest, func(i, j int) bool {
		return canonicalLess(rest[i], rest[j])
	})

	merged := make(map[string]types.Value)
	for _, member := range ranked {
		for key, value := range member.Attributes {
			if value.IsNull() {
				continue
			}
			if _, taken := merged[key]; taken {
				continue
			}
			merged[key] = value.Clone()
		}
	}
	return merged
}
