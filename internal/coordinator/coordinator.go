// Package coordinator applies resolution clusters to the graph store. Each
// cluster is validated against the live store before anything is mutated;
// a cluster that fails validation is recorded as a conflict and skipped
// without disturbing the rest of the batch. Every attempted cluster leaves
// an audit record behind.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/scrypster/coalesce/internal/graph"
	"github.com/scrypster/coalesce/internal/resolver"
	"github.com/scrypster/coalesce/pkg/types"
)

// ErrMergeConflict indicates a cluster that cannot be applied to the
// current store state, usually because one of its members was deleted or
// merged away after the pipeline scored it.
var ErrMergeConflict = errors.New("merge conflict")

// Coordinator turns pipeline clusters into committed merges.
type Coordinator struct {
	store   *graph.Store
	sink    AuditSink
	limiter *rate.Limiter
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAuditSink routes merge records to the given sink instead of the
// default log sink.
func WithAuditSink(sink AuditSink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithRateLimit paces commits: the coordinator waits on the limiter before
// each cluster. Useful when merge events fan out to downstream consumers.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(c *Coordinator) { c.limiter = limiter }
}

// New creates a coordinator over the given store.
func New(store *graph.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: store,
		sink:  LogSink{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate dry-runs a cluster against the live store without mutating it.
// It reports (wrapped in ErrMergeConflict) the first reason the cluster
// cannot be applied: a malformed cluster, a member that no longer exists,
// or a member already merged into another entity.
func (c *Coordinator) Validate(ctx context.Context, cluster types.Cluster) error {
	conflict := func(format string, args ...interface{}) error {
		return fmt.Errorf("coordinator: %s: %w", fmt.Sprintf(format, args...), ErrMergeConflict)
	}

	if len(cluster.Members) < 2 {
		return conflict("cluster has %d members, need at least 2", len(cluster.Members))
	}
	canonicalListed := false
	for _, id := range cluster.Members {
		if id == cluster.CanonicalID {
			canonicalListed = true
		}
		resolved, err := c.store.Resolve(ctx, id)
		if err != nil {
			return conflict("member %s not in store", id)
		}
		if resolved != id {
			return conflict("member %s already merged into %s", id, resolved)
		}
	}
	if !canonicalListed {
		return conflict("canonical %s is not a cluster member", cluster.CanonicalID)
	}
	return nil
}

// Apply commits the clusters one at a time, each validated immediately
// before its commit so the check reflects mutations made by earlier
// clusters in the same batch. A conflicting cluster is recorded and
// skipped; the batch continues. Apply returns one MergeRecord per
// attempted cluster, in order.
//
// Context cancellation stops the batch between clusters; records for
// clusters already attempted are returned alongside the context error.
func (c *Coordinator) Apply(ctx context.Context, clusters []types.Cluster) ([]types.MergeRecord, error) {
	records := make([]types.MergeRecord, 0, len(clusters))

	for _, cluster := range clusters {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		default:
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return records, err
			}
		}

		record := c.apply(ctx, cluster)
		if err := c.sink.Record(ctx, record); err != nil {
			log.Printf("coordinator: audit record %s dropped: %v", record.ID, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// apply validates and commits a single cluster, returning its audit record.
func (c *Coordinator) apply(ctx context.Context, cluster types.Cluster) types.MergeRecord {
	record := types.MergeRecord{
		ID:          uuid.NewString(),
		CanonicalID: cluster.CanonicalID,
		AbsorbedIDs: absorbedOf(cluster),
		Scores:      cluster.PairScores,
		Timestamp:   time.Now().UTC(),
	}

	if err := c.Validate(ctx, cluster); err != nil {
		record.Conflict = err.Error()
		log.Printf("coordinator: cluster %v rejected: %v", cluster.Members, err)
		return record
	}

	members := make([]*types.Entity, 0, len(cluster.Members))
	var canonical *types.Entity
	for _, id := range cluster.Members {
		entity, err := c.store.GetEntity(ctx, id)
		if err != nil {
			record.Conflict = fmt.Sprintf("coordinator: member %s vanished mid-commit: %v", id, err)
			return record
		}
		members = append(members, entity)
		if id == cluster.CanonicalID {
			canonical = entity
		}
	}

	merged := resolver.MergedAttributes(canonical, members)
	if err := c.store.Merge(ctx, cluster.CanonicalID, record.AbsorbedIDs, merged); err != nil {
		record.Conflict = err.Error()
		return record
	}
	return record
}

func absorbedOf(cluster types.Cluster) []string {
	absorbed := make([]string, 0, len(cluster.Members)-1)
	for _, id := range cluster.Members {
		if id != cluster.CanonicalID {
			absorbed = append(absorbed, id)
		}
	}
	return absorbed
}
