// Package resolver implements the record-linkage pipeline: normalization,
// blocking, pairwise scoring, threshold classification, and union-find
// clustering. A pipeline run is a pure function of (entities, config); the
// coordinator applies the resulting clusters to the graph store.
package resolver

import (
	"errors"
	"fmt"

	"github.com/scrypster/coalesce/internal/blocking"
)

// ErrInvalidConfig indicates a malformed resolution configuration. It is
// raised at pipeline construction, before any entity is touched.
var ErrInvalidConfig = errors.New("invalid resolution configuration")

// Comparator names the similarity function used for one attribute.
type Comparator string

const (
	// CompareJaroWinkler scores strings with Jaro-Winkler similarity.
	CompareJaroWinkler Comparator = "jarowinkler"

	// CompareLevenshtein scores strings with normalized edit distance.
	CompareLevenshtein Comparator = "levenshtein"

	// CompareExact scores categorical values 1.0 on equality, else 0.0.
	CompareExact Comparator = "exact"

	// CompareNumeric scores numbers with a Gaussian kernel, using the
	// attribute's configured sigma, or the absolute-difference fallback
	// when no sigma is set.
	CompareNumeric Comparator = "numeric"
)

// Config is the full configuration for one resolution run.
type Config struct {
	// MatchThreshold is the score at or above which a pair auto-matches.
	MatchThreshold float64 `yaml:"match_threshold"`

	// PossibleThreshold is the score at or above which a pair is flagged
	// for review. Must not exceed MatchThreshold.
	PossibleThreshold float64 `yaml:"possible_threshold"`

	// Weights maps attribute names to their contribution to the aggregate
	// score. Every weighted attribute needs an entry in Comparators.
	Weights map[string]float64 `yaml:"weights"`

	// Comparators selects the similarity function per attribute.
	Comparators map[string]Comparator `yaml:"comparators"`

	// Sigmas optionally configures the Gaussian kernel width per numeric
	// attribute. Attributes without a sigma use the absolute-difference
	// fallback.
	Sigmas map[string]float64 `yaml:"sigmas"`

	// Blocking enumerates the candidate-generation strategies.
	Blocking blocking.Config `yaml:"blocking"`

	// Workers is the number of goroutines scoring candidate pairs.
	// Zero or negative means the default of 4.
	Workers int `yaml:"workers"`
}

// defaultWorkers is used when Config.Workers is unset.
const defaultWorkers = 4

// Validate checks the configuration and reports the first problem found,
// wrapped in ErrInvalidConfig. A valid config has thresholds in [0,1] with
// match >= possible, positive weights, a comparator for every weighted
// attribute, sigmas only on numeric attributes, and well-formed blocking
// rules.
func (c Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("resolver: %s: %w", fmt.Sprintf(format, args...), ErrInvalidConfig)
	}

	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fail("match_threshold %v outside [0,1]", c.MatchThreshold)
	}
	if c.PossibleThreshold < 0 || c.PossibleThreshold > 1 {
		return fail("possible_threshold %v outside [0,1]", c.PossibleThreshold)
	}
	if c.PossibleThreshold > c.MatchThreshold {
		return fail("possible_threshold %v exceeds match_threshold %v", c.PossibleThreshold, c.MatchThreshold)
	}

	if len(c.Weights) == 0 {
		return fail("no attribute weights configured")
	}
	for attr, weight := range c.Weights {
		if weight <= 0 {
			return fail("weight for %q must be positive, got %v", attr, weight)
		}
		comparator, ok := c.Comparators[attr]
		if !ok {
			return fail("weighted attribute %q has no comparator", attr)
		}
		switch comparator {
		case CompareJaroWinkler, CompareLevenshtein, CompareExact, CompareNumeric:
		default:
			return fail("attribute %q has unknown comparator %q", attr, comparator)
		}
	}

	for attr, sigma := range c.Sigmas {
		if c.Comparators[attr] != CompareNumeric {
			return fail("sigma configured for non-numeric attribute %q", attr)
		}
		if sigma <= 0 {
			return fail("sigma for %q must be positive, got %v", attr, sigma)
		}
	}

	if c.Blocking.Empty() {
		return fail("no blocking strategy configured")
	}
	if err := c.Blocking.Validate(); err != nil {
		return fmt.Errorf("resolver: %v: %w", err, ErrInvalidConfig)
	}

	return nil
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return defaultWorkers
	}
	return c.Workers
}
