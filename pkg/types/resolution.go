package types

import "time"

// MatchCandidate is a scored pair of entity ids produced by the resolver's
// comparison stage. AttributeScores holds the per-attribute similarity
// breakdown that produced the aggregate Score.
type MatchCandidate struct {
	EntityA         string             `json:"entity_a"`
	EntityB         string             `json:"entity_b"`
	Score           float64            `json:"score"`
	AttributeScores map[string]float64 `json:"attribute_scores,omitempty"`
}

// PairKey returns a stable "a|b" key with the smaller id first, so the same
// unordered pair always produces the same key.
func (m MatchCandidate) PairKey() string {
	a, b := m.EntityA, m.EntityB
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Cluster is a set of entity ids deemed the same real-world object, together
// with the chosen canonical id and the merge rationale. Clusters produced by
// one resolution run are disjoint.
type Cluster struct {
	// Members lists every entity id in the cluster, canonical included,
	// sorted lexicographically.
	Members []string `json:"members"`

	// CanonicalID is the surviving entity id after the merge. Chosen by
	// highest confidence, then earliest created_at, then smallest id.
	CanonicalID string `json:"canonical_id"`

	// PairScores records the aggregate score of every auto-match edge that
	// pulled this cluster together, keyed by MatchCandidate.PairKey().
	PairScores map[string]float64 `json:"pair_scores,omitempty"`

	// MatchThreshold and PossibleThreshold record the thresholds in force
	// when the cluster was formed.
	MatchThreshold    float64 `json:"match_threshold"`
	PossibleThreshold float64 `json:"possible_threshold"`
}

// MergeRecord is the audit trail for one committed (or rejected) cluster
// merge. The coordinator emits exactly one record per cluster it attempts.
type MergeRecord struct {
	ID          string             `json:"id"`
	CanonicalID string             `json:"canonical_id"`
	AbsorbedIDs []string           `json:"absorbed_ids"`
	Scores      map[string]float64 `json:"scores,omitempty"`

	// Conflict is empty on success. On a rejected merge it carries the
	// reason; the cluster left no mutation behind.
	Conflict string `json:"conflict,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Committed reports whether the merge was applied to the store.
func (r MergeRecord) Committed() bool { return r.Conflict == "" }
