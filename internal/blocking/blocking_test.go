package blocking

import (
	"testing"

	"github.com/scrypster/coalesce/pkg/types"
)

func entity(id, name string, attrs map[string]types.Value) *types.Entity {
	return &types.Entity{ID: id, Type: types.EntityPerson, Name: name, Attributes: attrs}
}

func hasPair(pairs []Pair, a, b string) bool {
	if b < a {
		a, b = b, a
	}
	for _, p := range pairs {
		if p.A == a && p.B == b {
			return true
		}
	}
	return false
}

func TestExactBlocking(t *testing.T) {
	ix := NewIndex(Config{Exact: []string{"country"}})
	ix.Add(entity("p1", "Jon", map[string]types.Value{"country": types.String("Norway")}))
	ix.Add(entity("p2", "John", map[string]types.Value{"country": types.String("norway")}))
	ix.Add(entity("p3", "Ana", map[string]types.Value{"country": types.String("Chile")}))
	ix.Add(entity("p4", "NoCountry", nil))

	pairs := ix.Pairs()
	if !hasPair(pairs, "p1", "p2") {
		t.Errorf("case-folded exact values should share a bucket; pairs: %v", pairs)
	}
	if hasPair(pairs, "p1", "p3") || hasPair(pairs, "p2", "p3") {
		t.Errorf("distinct values must not pair; pairs: %v", pairs)
	}
	if len(pairs) != 1 {
		t.Errorf("expected exactly one candidate pair, got %v", pairs)
	}
}

func TestPhoneticBlockingOnName(t *testing.T) {
	ix := NewIndex(Config{Phonetic: []string{"name"}})
	ix.Add(entity("p1", "Jon Smith", nil))
	ix.Add(entity("p2", "John Smyth", nil))
	ix.Add(entity("p3", "Xavier Quintero", nil))

	pairs := ix.Pairs()
	if !hasPair(pairs, "p1", "p2") {
		t.Errorf("phonetically similar names should block together; pairs: %v", pairs)
	}
	if hasPair(pairs, "p1", "p3") {
		t.Errorf("unrelated names must not pair; pairs: %v", pairs)
	}
}

func TestRangeBlockingWindowGuarantee(t *testing.T) {
	ix := NewIndex(Config{Range: []RangeRule{{Attribute: "age", Window: 5}}})

	// 29 and 31 straddle a bucket boundary (floor 5 vs 6) but are within
	// one window; the overlap assignment must still pair them.
	ix.Add(entity("p1", "A", map[string]types.Value{"age": types.Number(29)}))
	ix.Add(entity("p2", "B", map[string]types.Value{"age": types.Number(31)}))
	ix.Add(entity("p3", "C", map[string]types.Value{"age": types.Number(80)}))

	pairs := ix.Pairs()
	if !hasPair(pairs, "p1", "p2") {
		t.Errorf("values within one window must co-occur in a bucket; pairs: %v", pairs)
	}
	if hasPair(pairs, "p1", "p3") || hasPair(pairs, "p2", "p3") {
		t.Errorf("far apart values must not pair; pairs: %v", pairs)
	}
}

func TestPairsAreDeduplicatedAcrossBuckets(t *testing.T) {
	ix := NewIndex(Config{
		Exact:    []string{"email"},
		Phonetic: []string{"name"},
	})

	// p1/p2 co-occur in both an exact bucket and a phonetic bucket.
	ix.Add(entity("p1", "Jon Smith", map[string]types.Value{"email": types.String("j@x.com")}))
	ix.Add(entity("p2", "John Smith", map[string]types.Value{"email": types.String("j@x.com")}))

	pairs := ix.Pairs()
	if len(pairs) != 1 {
		t.Errorf("pair must be emitted exactly once, got %v", pairs)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := Config{Range: []RangeRule{{Attribute: "age", Window: 0}}}
	if err := bad.Validate(); err == nil {
		t.Errorf("non-positive window should fail validation")
	}

	good := Config{Exact: []string{"email"}, Range: []RangeRule{{Attribute: "age", Window: 2}}}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}
