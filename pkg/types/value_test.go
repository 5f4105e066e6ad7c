package types

import (
	"encoding/json"
	"testing"
)

func TestValueEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"strings equal", String("x"), String("x"), true},
		{"strings differ", String("x"), String("y"), false},
		{"kind mismatch", String("1"), Number(1), false},
		{"nulls equal", Value{}, Value{}, true},
		{"nested lists", List(String("a"), Number(2)), List(String("a"), Number(2)), true},
		{"nested maps", Map(map[string]Value{"k": Boolean(true)}), Map(map[string]Value{"k": Boolean(true)}), true},
		{"map key missing", Map(map[string]Value{"k": Boolean(true)}), Map(map[string]Value{"j": Boolean(true)}), false},
	}

	for _, tc := range cases {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Errorf("%s: Equal = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValueCloneIsIndependent(t *testing.T) {
	original := Map(map[string]Value{"emails": List(String("a@x.com"))})
	clone := original.Clone()

	clone.Map["emails"].List[0] = String("b@x.com")

	if original.Map["emails"].List[0].Str != "a@x.com" {
		t.Errorf("mutating clone leaked into the original")
	}
}

func TestValueJSONNaturalShape(t *testing.T) {
	v := Map(map[string]Value{
		"name":   String("Jon"),
		"age":    Number(41),
		"active": Boolean(true),
	})

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Value
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !v.Equal(decoded) {
		t.Errorf("roundtrip lost structure: %s", data)
	}

	// Scalars must encode as plain JSON scalars, not tagged envelopes.
	data, _ = json.Marshal(Number(3.5))
	if string(data) != "3.5" {
		t.Errorf("number encoded as %s, want 3.5", data)
	}
}

func TestRelationshipSameEdge(t *testing.T) {
	attrs := map[string]Value{"since": String("2020")}

	directed := &Relationship{SourceID: "a", TargetID: "b", Type: "knows", Directed: true, Attributes: attrs}
	reversed := &Relationship{SourceID: "b", TargetID: "a", Type: "knows", Directed: true, Attributes: attrs}
	if directed.SameEdge(reversed) {
		t.Errorf("directed edges with swapped endpoints should not be duplicates")
	}

	undirected := &Relationship{SourceID: "a", TargetID: "b", Type: "knows", Attributes: attrs}
	flipped := &Relationship{SourceID: "b", TargetID: "a", Type: "knows", Attributes: attrs}
	if !undirected.SameEdge(flipped) {
		t.Errorf("undirected edges should match either endpoint order")
	}

	other := &Relationship{SourceID: "a", TargetID: "b", Type: "knows", Attributes: map[string]Value{"since": String("2021")}}
	if undirected.SameEdge(other) {
		t.Errorf("differing attributes should not be duplicates")
	}
}
