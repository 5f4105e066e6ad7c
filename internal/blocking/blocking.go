// Package blocking reduces the all-pairs comparison space of a resolution
// batch. Entities sharing a cheap key (exact attribute value, phonetic code,
// or numeric range bucket) land in the same candidate bucket; only pairs
// that co-occur in at least one bucket are scored.
//
// The contract is one-sided: blocking must never lose a pair that shares a
// configured key (no false negatives from the index itself), while buckets
// may overlap freely. The deduplicated pair set is what the resolver scores.
package blocking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scrypster/coalesce/internal/similarity"
	"github.com/scrypster/coalesce/pkg/types"
)

// RangeRule buckets a numeric attribute into windows of the given width.
type RangeRule struct {
	// Attribute is the numeric attribute to bucket.
	Attribute string `yaml:"attribute" json:"attribute"`

	// Window is the bucket width. Two values within one window of each
	// other are guaranteed to share at least one bucket.
	Window float64 `yaml:"window" json:"window"`
}

// Config enumerates the blocking strategies for one resolution run.
type Config struct {
	// Exact lists attributes blocked on their exact (case-folded) value.
	Exact []string `yaml:"exact" json:"exact,omitempty"`

	// Phonetic lists attributes blocked on their Soundex code.
	Phonetic []string `yaml:"phonetic" json:"phonetic,omitempty"`

	// Range lists numeric attributes blocked into windows.
	Range []RangeRule `yaml:"range" json:"range,omitempty"`
}

// Empty reports whether no strategy is configured. An empty config is valid
// at the type level; the resolver decides whether to reject it.
func (c Config) Empty() bool {
	return len(c.Exact) == 0 && len(c.Phonetic) == 0 && len(c.Range) == 0
}

// Validate rejects malformed range rules.
func (c Config) Validate() error {
	for _, r := range c.Range {
		if r.Attribute == "" {
			return fmt.Errorf("blocking: range rule with empty attribute")
		}
		if r.Window <= 0 {
			return fmt.Errorf("blocking: range rule for %q has non-positive window %v", r.Attribute, r.Window)
		}
	}
	return nil
}

// Pair is an unordered candidate pair of entity ids, stored with A < B.
type Pair struct {
	A string
	B string
}

// Index assigns entities to candidate buckets. It is not safe for
// concurrent use; the resolver builds one index per batch.
type Index struct {
	cfg     Config
	buckets map[string][]string
}

// NewIndex creates an empty index for the given configuration.
func NewIndex(cfg Config) *Index {
	return &Index{
		cfg:     cfg,
		buckets: make(map[string][]string),
	}
}

// Add places the entity into every bucket its attributes key into. Entities
// missing an attribute simply skip that strategy.
func (ix *Index) Add(e *types.Entity) {
	for _, attr := range ix.cfg.Exact {
		if v, ok := e.Attribute(attr); ok {
			key := strings.ToLower(strings.TrimSpace(v.AsString()))
			if key != "" {
				ix.put("exact:"+attr+":"+key, e.ID)
			}
		}
	}

	for _, attr := range ix.cfg.Phonetic {
		if v, ok := e.Attribute(attr); ok {
			// Code each word so "Jon Smith" and "John Smith" block
			// together on either token.
			for _, word := range strings.Fields(v.AsString()) {
				if code := similarity.Soundex(word); code != "" {
					ix.put("phonetic:"+attr+":"+code, e.ID)
				}
			}
		}
	}

	for _, rule := range ix.cfg.Range {
		v, ok := e.Attribute(rule.Attribute)
		if !ok || v.Kind != types.KindNumber {
			continue
		}
		// Each value lands in its own window and the one above, so any
		// two values at most one window apart share a bucket.
		bucket := int64(math.Floor(v.Num / rule.Window))
		ix.put(rangeKey(rule.Attribute, bucket), e.ID)
		ix.put(rangeKey(rule.Attribute, bucket+1), e.ID)
	}
}

func rangeKey(attribute string, bucket int64) string {
	return fmt.Sprintf("range:%s:%d", attribute, bucket)
}

func (ix *Index) put(key, id string) {
	members := ix.buckets[key]
	// The same entity can hit one bucket through several words; keep
	// bucket membership unique.
	for _, existing := range members {
		if existing == id {
			return
		}
	}
	ix.buckets[key] = append(members, id)
}

// BucketCount returns the number of non-empty buckets.
func (ix *Index) BucketCount() int {
	return len(ix.buckets)
}

// Pairs emits every candidate pair exactly once, regardless of how many
// buckets the pair co-occurs in. Output order is deterministic: sorted by
// (A, B).
func (ix *Index) Pairs() []Pair {
	seen := make(map[Pair]struct{})
	for _, members := range ix.buckets {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := members[i], members[j]
				if b < a {
					a, b = b, a
				}
				seen[Pair{A: a, B: b}] = struct{}{}
			}
		}
	}

	pairs := make([]Pair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}
