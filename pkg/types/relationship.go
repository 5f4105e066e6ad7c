package types

import "time"

// Relationship is a typed edge between two entities. Multi-edges are
// allowed: the same pair may be connected by several relationships of
// different types, or of the same type with different attributes.
//
// Endpoints always reference live entities after alias resolution. When an
// endpoint is merged away the store rewrites the relationship to point at
// the canonical id; relationships are never silently dropped.
type Relationship struct {
	ID         string           `json:"id"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       string           `json:"type"`
	Attributes map[string]Value `json:"attributes,omitempty"`
	Strength   float64          `json:"strength"`
	Directed   bool             `json:"directed"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (r *Relationship) Touch() {
	r.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Attributes = CloneAttributes(r.Attributes)
	return &clone
}

// SameEdge reports whether two relationships are duplicates: same endpoints,
// same type, and deeply equal attributes. Direction matters for directed
// edges; undirected edges match either endpoint order.
func (r *Relationship) SameEdge(other *Relationship) bool {
	if r.Type != other.Type || r.Directed != other.Directed {
		return false
	}
	if !AttributesEqual(r.Attributes, other.Attributes) {
		return false
	}
	if r.SourceID == other.SourceID && r.TargetID == other.TargetID {
		return true
	}
	if !r.Directed && r.SourceID == other.TargetID && r.TargetID == other.SourceID {
		return true
	}
	return false
}
