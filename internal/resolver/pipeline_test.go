package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/coalesce/internal/blocking"
	"github.com/scrypster/coalesce/pkg/types"
)

func testConfig() Config {
	return Config{
		MatchThreshold:    0.85,
		PossibleThreshold: 0.65,
		Weights:           map[string]float64{"name": 1.0},
		Comparators:       map[string]Comparator{"name": CompareJaroWinkler},
		Blocking:          blocking.Config{Phonetic: []string{"name"}},
	}
}

func TestNewPipelineRejectsMalformedConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted thresholds", func(c *Config) { c.PossibleThreshold = 0.9 }},
		{"threshold above one", func(c *Config) { c.MatchThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.PossibleThreshold = -0.1 }},
		{"weight without comparator", func(c *Config) { c.Weights["phone"] = 0.5 }},
		{"non-positive weight", func(c *Config) { c.Weights["name"] = 0 }},
		{"unknown comparator", func(c *Config) { c.Comparators["name"] = "cosine" }},
		{"no weights", func(c *Config) { c.Weights = nil }},
		{"no blocking", func(c *Config) { c.Blocking = blocking.Config{} }},
		{"sigma on string attribute", func(c *Config) { c.Sigmas = map[string]float64{"name": 5} }},
		{"bad range window", func(c *Config) {
			c.Blocking.Range = []blocking.RangeRule{{Attribute: "age", Window: -1}}
		}},
	}

	for _, tc := range cases {
		cfg := testConfig()
		tc.mutate(&cfg)
		if _, err := NewPipeline(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}

	if _, err := NewPipeline(testConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

// TestJonSmithScenario is the canonical duplicate: "Jon Smith" and
// "John Smith" with name weight 1.0 and a 0.85 match threshold must land in
// one cluster.
func TestJonSmithScenario(t *testing.T) {
	pipeline, err := NewPipeline(testConfig())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	earlier := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	entities := []*types.Entity{
		{ID: "p1", Type: "person", Name: "Jon Smith", Confidence: 0.8, CreatedAt: later},
		{ID: "p2", Type: "person", Name: "John Smith", Confidence: 0.8, CreatedAt: earlier},
		{ID: "p3", Type: "person", Name: "Maria Garcia", Confidence: 0.9, CreatedAt: earlier},
	}

	result, err := pipeline.Run(context.Background(), entities)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Stage != StageClustered {
		t.Errorf("pipeline stopped at stage %s", result.Stage)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("expected one cluster, got %v", result.Clusters)
	}

	cluster := result.Clusters[0]
	if len(cluster.Members) != 2 || cluster.Members[0] != "p1" || cluster.Members[1] != "p2" {
		t.Errorf("cluster members = %v, want [p1 p2]", cluster.Members)
	}
	// Equal confidence: the earlier created_at wins the tie-break.
	if cluster.CanonicalID != "p2" {
		t.Errorf("canonical = %s, want p2 (earlier created_at)", cluster.CanonicalID)
	}
	if score := cluster.PairScores["p1|p2"]; score < 0.85 {
		t.Errorf("pair score %v below the match threshold that formed the cluster", score)
	}
}

func TestClassificationBands(t *testing.T) {
	cfg := testConfig()
	cfg.Weights = map[string]float64{"email": 1.0}
	cfg.Comparators = map[string]Comparator{"email": CompareExact}
	cfg.PossibleThreshold = 0.3
	cfg.Blocking = blocking.Config{Phonetic: []string{"name"}}

	pipeline, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	// Same phonetic name so the pair is a candidate, different emails so
	// the exact comparator scores 0.0: a non-match, discarded entirely.
	entities := []*types.Entity{
		{ID: "p1", Type: "person", Name: "Jon Smith",
			Attributes: map[string]types.Value{"email": types.String("a@x.com")}},
		{ID: "p2", Type: "person", Name: "John Smith",
			Attributes: map[string]types.Value{"email": types.String("b@x.com")}},
	}

	result, err := pipeline.Run(context.Background(), entities)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Candidates != 1 {
		t.Fatalf("expected one candidate pair, got %d", result.Candidates)
	}
	if len(result.Clusters) != 0 || len(result.PossibleMatches) != 0 {
		t.Errorf("non-match leaked: clusters=%v possible=%v", result.Clusters, result.PossibleMatches)
	}
}

func TestPossibleMatchesAreFlaggedNotMerged(t *testing.T) {
	cfg := testConfig()
	cfg.MatchThreshold = 0.99
	cfg.PossibleThreshold = 0.80

	pipeline, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	entities := []*types.Entity{
		{ID: "p1", Type: "person", Name: "Jon Smith"},
		{ID: "p2", Type: "person", Name: "John Smith"},
	}

	result, err := pipeline.Run(context.Background(), entities)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Clusters) != 0 {
		t.Errorf("possible match was auto-merged: %v", result.Clusters)
	}
	if len(result.PossibleMatches) != 1 {
		t.Errorf("expected one flagged pair, got %v", result.PossibleMatches)
	}
}

func TestClusteringIsTransitiveAndDisjoint(t *testing.T) {
	cfg := testConfig()
	pipeline, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	// Three spellings that pairwise match; union-find must produce one
	// cluster containing all three, not two overlapping ones.
	entities := []*types.Entity{
		{ID: "p1", Type: "person", Name: "Jon Smith", Confidence: 0.7},
		{ID: "p2", Type: "person", Name: "John Smith", Confidence: 0.9},
		{ID: "p3", Type: "person", Name: "Jonn Smith", Confidence: 0.8},
		{ID: "q1", Type: "person", Name: "Maria Garcia", Confidence: 0.9},
		{ID: "q2", Type: "person", Name: "Mariah Garcia", Confidence: 0.5},
	}

	result, err := pipeline.Run(context.Background(), entities)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	seen := make(map[string]int)
	for i, cluster := range result.Clusters {
		for _, id := range cluster.Members {
			if prev, ok := seen[id]; ok {
				t.Errorf("entity %s in clusters %d and %d: partition violated", id, prev, i)
			}
			seen[id] = i
		}
	}

	var smiths *types.Cluster
	for i := range result.Clusters {
		for _, id := range result.Clusters[i].Members {
			if id == "p1" {
				smiths = &result.Clusters[i]
			}
		}
	}
	if smiths == nil || len(smiths.Members) != 3 {
		t.Fatalf("expected p1/p2/p3 in one cluster, got %+v", result.Clusters)
	}
	if smiths.CanonicalID != "p2" {
		t.Errorf("canonical = %s, want p2 (highest confidence)", smiths.CanonicalID)
	}
}

func TestScoreMissingValuePolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Weights = map[string]float64{"name": 1.0, "age": 1.0, "email": 1.0}
	cfg.Comparators = map[string]Comparator{
		"name":  CompareJaroWinkler,
		"age":   CompareNumeric,
		"email": CompareExact,
	}
	cfg.Sigmas = map[string]float64{"age": 5}

	pipeline, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	a := &types.Entity{ID: "a", Type: "person", Name: "jon smith",
		Attributes: map[string]types.Value{"age": types.Number(40)}}
	b := &types.Entity{ID: "b", Type: "person", Name: "jon smith"}

	candidate := pipeline.scorePair(a, b)

	// email is absent on both sides: excluded from normalization.
	if _, ok := candidate.AttributeScores["email"]; ok {
		t.Errorf("attribute absent on both sides should be excluded, got %v", candidate.AttributeScores)
	}
	// age is present on one side only: contributes 0 but keeps its weight,
	// so the aggregate is (1.0*1 + 0.0*1) / 2.
	if candidate.AttributeScores["age"] != 0.0 {
		t.Errorf("one-sided attribute should score 0.0, got %v", candidate.AttributeScores["age"])
	}
	if candidate.Score != 0.5 {
		t.Errorf("aggregate = %v, want 0.5", candidate.Score)
	}
}

func TestNormalizationDeterministicIdempotent(t *testing.T) {
	entities := []*types.Entity{{
		ID: "p1", Type: "person", Name: "  Jon\t SMITH ",
		Attributes: map[string]types.Value{
			"dob":  types.String("January 2, 1985"),
			"city": types.String(" OSLO  NORWAY "),
		},
	}}

	once := normalizeEntities(entities)
	twice := normalizeEntities(once)

	if once[0].Name != "jon smith" {
		t.Errorf("name normalization wrong: %q", once[0].Name)
	}
	if got := once[0].Attributes["dob"].Str; got != "1985-01-02" {
		t.Errorf("date canonicalization wrong: %q", got)
	}
	if got := once[0].Attributes["city"].Str; got != "oslo norway" {
		t.Errorf("whitespace collapse wrong: %q", got)
	}

	for key, v := range once[0].Attributes {
		if !v.Equal(twice[0].Attributes[key]) {
			t.Errorf("normalization not idempotent for %s: %v vs %v", key, v, twice[0].Attributes[key])
		}
	}
	if entities[0].Name != "  Jon\t SMITH " {
		t.Errorf("normalization mutated the caller's entity")
	}
}

func TestMergedAttributes(t *testing.T) {
	canonical := &types.Entity{ID: "c", Confidence: 0.9,
		Attributes: map[string]types.Value{
			"email": types.String("c@x.com"),
			"phone": {},
		}}
	high := &types.Entity{ID: "h", Confidence: 0.8,
		Attributes: map[string]types.Value{
			"email": types.String("h@x.com"),
			"phone": types.String("123"),
			"city":  types.String("oslo"),
		}}
	low := &types.Entity{ID: "l", Confidence: 0.2,
		Attributes: map[string]types.Value{
			"city":    types.String("bergen"),
			"country": types.String("norway"),
		}}

	merged := MergedAttributes(canonical, []*types.Entity{low, high, canonical})

	// Canonical non-null value wins the collision.
	if merged["email"].Str != "c@x.com" {
		t.Errorf("email = %v, want canonical's value", merged["email"])
	}
	// Canonical's null does not win: the highest-confidence holder does.
	if merged["phone"].Str != "123" {
		t.Errorf("phone = %v, want high-confidence member's value", merged["phone"])
	}
	if merged["city"].Str != "oslo" {
		t.Errorf("city = %v, want highest-confidence holder's value", merged["city"])
	}
	// Union keeps attributes only one member has.
	if merged["country"].Str != "norway" {
		t.Errorf("country missing from union: %v", merged)
	}
}
