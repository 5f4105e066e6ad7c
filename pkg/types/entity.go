package types

import "time"

// Common entity types. The enumeration is open: the engine accepts any
// non-empty type string, these constants just name the usual ones.
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityLocation     = "location"
	EntityEvent        = "event"
)

// Entity is a node in the graph. The attribute schema is open: any attribute
// name may map to any Value. Source and Confidence are provenance metadata
// set at ingestion; Confidence must be in [0.0, 1.0].
//
// An entity id is never reused and never deleted. When an entity is merged
// away during resolution its id survives as a permanent alias of the
// canonical entity.
type Entity struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Name       string           `json:"name"`
	Attributes map[string]Value `json:"attributes,omitempty"`
	Source     string           `json:"source,omitempty"`
	Confidence float64          `json:"confidence"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp. Called on every mutation.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// Attribute returns the named attribute. The display name is addressable as
// the pseudo-attribute "name" so resolution configs can weight it uniformly
// with the rest of the schema.
func (e *Entity) Attribute(name string) (Value, bool) {
	if v, ok := e.Attributes[name]; ok && !v.IsNull() {
		return v, true
	}
	if name == "name" && e.Name != "" {
		return String(e.Name), true
	}
	return Value{}, false
}

// Clone returns a deep copy. The store hands out clones so concurrent
// readers never observe in-place mutation.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Attributes = CloneAttributes(e.Attributes)
	return &clone
}
