package resolver

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/scrypster/coalesce/internal/blocking"
	"github.com/scrypster/coalesce/pkg/types"
)

// Stage tracks how far a batch progressed through the pipeline.
type Stage string

const (
	StageNormalized Stage = "normalized"
	StageBlocked    Stage = "blocked"
	StageScored     Stage = "scored"
	StageClassified Stage = "classified"
	StageClustered  Stage = "clustered"
)

// Result is the output of one pipeline run.
type Result struct {
	// Clusters are the proposed merges: disjoint sets of entity ids with
	// a chosen canonical id each. Singleton groups are omitted.
	Clusters []types.Cluster

	// PossibleMatches are pairs scoring between the possible and match
	// thresholds. They are surfaced for review, never auto-merged.
	PossibleMatches []types.MatchCandidate

	// Candidates is the number of pairs blocking emitted for scoring.
	Candidates int

	// Stage is the last stage the run completed.
	Stage Stage
}

// Pipeline scores and clusters a batch of entities. Construction validates
// the configuration; a constructed pipeline never fails on config grounds.
// Pipelines are stateless across runs and safe for concurrent use.
type Pipeline struct {
	cfg Config
}

// NewPipeline validates cfg and returns a ready pipeline. A malformed
// configuration fails here, before any entity is touched.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg}, nil
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Run executes the full pipeline over the batch:
// normalize -> block -> score -> classify -> cluster.
// Scoring is read-only and fans out across workers per candidate pair;
// everything else is sequential. Run retains no state between calls.
func (p *Pipeline) Run(ctx context.Context, entities []*types.Entity) (*Result, error) {
	result := &Result{}

	normalized := normalizeEntities(entities)
	byID := make(map[string]*types.Entity, len(normalized))
	for _, e := range normalized {
		if e.ID == "" {
			return nil, fmt.Errorf("resolver: entity with empty id in batch")
		}
		if _, dup := byID[e.ID]; dup {
			return nil, fmt.Errorf("resolver: duplicate id %s in batch", e.ID)
		}
		byID[e.ID] = e
	}
	result.Stage = StageNormalized

	index := blocking.NewIndex(p.cfg.Blocking)
	for _, e := range normalized {
		index.Add(e)
	}
	pairs := index.Pairs()
	result.Candidates = len(pairs)
	result.Stage = StageBlocked

	candidates, err := p.scorePairs(ctx, byID, pairs)
	if err != nil {
		return nil, err
	}
	result.Stage = StageScored

	var matches []types.MatchCandidate
	for _, c := range candidates {
		switch {
		case c.Score >= p.cfg.MatchThreshold:
			matches = append(matches, c)
		case c.Score >= p.cfg.PossibleThreshold:
			result.PossibleMatches = append(result.PossibleMatches, c)
		}
		// Below the possible threshold: non-match, discarded.
	}
	result.Stage = StageClassified

	result.Clusters = buildClusters(matches, byID, p.cfg)
	result.Stage = StageClustered

	log.Printf("resolver: batch of %d entities: %d candidates, %d matches, %d possible, %d clusters",
		len(entities), result.Candidates, len(matches), len(result.PossibleMatches), len(result.Clusters))

	return result, nil
}

// scorePairs fans the candidate pairs out over a worker pool. Workers share
// nothing mutable: they read the normalized entities and send scored
// candidates back on a channel. Output order follows the deterministic
// input pair order.
func (p *Pipeline) scorePairs(ctx context.Context, byID map[string]*types.Entity, pairs []blocking.Pair) ([]types.MatchCandidate, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	workers := p.cfg.workers()
	if workers > len(pairs) {
		workers = len(pairs)
	}

	type indexed struct {
		pos       int
		candidate types.MatchCandidate
	}

	jobs := make(chan int)
	results := make(chan indexed, len(pairs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				pair := pairs[pos]
				results <- indexed{
					pos:       pos,
					candidate: p.scorePair(byID[pair.A], byID[pair.B]),
				}
			}
		}()
	}

	feedErr := func() error {
		defer close(jobs)
		for pos := range pairs {
			select {
			case jobs <- pos:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}()

	wg.Wait()
	close(results)

	if feedErr != nil {
		return nil, feedErr
	}

	ordered := make([]types.MatchCandidate, len(pairs))
	for r := range results {
		ordered[r.pos] = r.candidate
	}
	return ordered, nil
}
