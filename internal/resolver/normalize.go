package resolver

import (
	"strings"
	"time"

	"github.com/scrypster/coalesce/pkg/types"
)

// dateLayouts are tried in order when canonicalizing date-like strings.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	time.RFC3339,
}

// normalizeEntities returns normalized copies of the batch; the caller's
// entities are never mutated. Normalization is deterministic and
// idempotent: applying it twice yields the same result.
func normalizeEntities(entities []*types.Entity) []*types.Entity {
	out := make([]*types.Entity, len(entities))
	for i, e := range entities {
		clone := e.Clone()
		clone.Name = normalizeString(clone.Name)
		for key, value := range clone.Attributes {
			clone.Attributes[key] = normalizeValue(key, value)
		}
		out[i] = clone
	}
	return out
}

func normalizeValue(key string, v types.Value) types.Value {
	if v.Kind != types.KindString {
		return v
	}
	// Collapse whitespace before date parsing; case-folding would break
	// month-name layouts, so it happens only on the non-date path.
	collapsed := strings.Join(strings.Fields(v.Str), " ")
	if isDateAttribute(key) {
		if canonical, ok := canonicalDate(collapsed); ok {
			return types.String(canonical)
		}
	}
	return types.String(strings.ToLower(collapsed))
}

// normalizeString case-folds and collapses runs of whitespace.
func normalizeString(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// isDateAttribute is a heuristic over the open schema: attribute names
// containing "date", "dob", or ending in "_at" are treated as dates.
func isDateAttribute(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "date") || key == "dob" || strings.HasSuffix(key, "_at")
}

// canonicalDate parses a date-like string against the known layouts and
// renders it as ISO 8601 (2006-01-02). Already-canonical input parses via
// the first layout and round-trips unchanged, keeping the transform
// idempotent.
func canonicalDate(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
