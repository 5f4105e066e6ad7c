package types

// AliasPair records that Alias forever resolves to Canonical.
type AliasPair struct {
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
}

// Snapshot is the full-export shape consumed by persistence collaborators:
// flat entity and relationship lists plus the alias table. Edges reference
// ids rather than embedded objects, so the shape serializes without cycles.
// Import replays entities then relationships in any order and defers
// dangling-reference validation until the whole snapshot is loaded.
type Snapshot struct {
	Entities      []*Entity       `json:"entities"`
	Relationships []*Relationship `json:"relationships"`
	Aliases       []AliasPair     `json:"aliases,omitempty"`
}
