// Package engine wires the graph store, resolution pipeline, coordinator,
// persistence, and event fanout into one lifecycle. Callers construct an
// Engine, Start it to restore persisted state, push batches through
// ResolveBatch, and Shutdown to persist and release everything.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/coalesce/internal/config"
	"github.com/scrypster/coalesce/internal/coordinator"
	"github.com/scrypster/coalesce/internal/graph"
	"github.com/scrypster/coalesce/internal/notify"
	"github.com/scrypster/coalesce/internal/resolver"
	"github.com/scrypster/coalesce/internal/storage"
	"github.com/scrypster/coalesce/internal/storage/postgres"
	"github.com/scrypster/coalesce/internal/storage/sqlite"
	"github.com/scrypster/coalesce/pkg/types"
)

// Engine is the top-level orchestrator.
type Engine struct {
	store     *graph.Store
	pipeline  *resolver.Pipeline
	coord     *coordinator.Coordinator
	snapshots storage.SnapshotStore
	hub       *notify.Hub
	watcher   *notify.MergeWatcher

	onMergeCommitted func(types.MergeRecord)

	started bool
}

// New builds an engine from process configuration and a validated
// resolution configuration. The snapshot backend comes from
// cfg.Storage.Engine; "none" runs purely in memory.
func New(cfg *config.Config, resolution resolver.Config) (*Engine, error) {
	pipeline, err := resolver.NewPipeline(resolution)
	if err != nil {
		return nil, err
	}

	store := graph.NewStore()
	hub := notify.NewHub(cfg.Server.Origins)

	// With file events on, the events directory is the fanout path: the
	// coordinator's sink writes records there and a watcher feeds them to
	// the hub, so merges committed by other processes sharing the
	// directory reach subscribers the same way as local ones.
	var watcher *notify.MergeWatcher
	var opts []coordinator.Option
	if cfg.Events.FileEvents {
		sink, err := coordinator.NewFileSink(cfg.Events.Dir)
		if err != nil {
			return nil, err
		}
		breakerMax := uint32(cfg.Events.BreakerMax)
		opts = append(opts, coordinator.WithAuditSink(
			coordinator.NewBreakerSink(sink, breakerMax, 30*time.Second)))
		watcher = notify.NewMergeWatcher(cfg.Events.Dir, func(record types.MergeRecord) {
			hub.Broadcast(record)
		})
	}
	if cfg.Events.RatePerSec > 0 {
		opts = append(opts, coordinator.WithRateLimit(
			rate.NewLimiter(rate.Limit(cfg.Events.RatePerSec), 1)))
	}

	snapshots, err := openSnapshotStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:     store,
		pipeline:  pipeline,
		coord:     coordinator.New(store, opts...),
		snapshots: snapshots,
		hub:       hub,
		watcher:   watcher,
	}, nil
}

func openSnapshotStore(cfg config.StorageConfig) (storage.SnapshotStore, error) {
	switch cfg.Engine {
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "postgres":
		return postgres.New(context.Background(), cfg.PostgresDSN)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("engine: unknown storage engine %q", cfg.Engine)
	}
}

// Store exposes the underlying graph store for queries.
func (e *Engine) Store() *graph.Store { return e.store }

// Hub exposes the WebSocket hub so callers can mount its HTTP handler.
func (e *Engine) Hub() *notify.Hub { return e.hub }

// SetOnMergeCommitted sets a callback fired for every committed merge, in
// addition to the hub broadcast.
func (e *Engine) SetOnMergeCommitted(callback func(types.MergeRecord)) {
	e.onMergeCommitted = callback
}

// Start restores the persisted snapshot, if any, and begins the hub loop.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return fmt.Errorf("engine: already started")
	}

	if e.snapshots != nil {
		snap, err := e.snapshots.Load(ctx)
		if err != nil {
			return fmt.Errorf("engine: restore snapshot: %w", err)
		}
		if len(snap.Entities) > 0 {
			if err := e.store.Import(ctx, snap); err != nil {
				return fmt.Errorf("engine: restore snapshot: %w", err)
			}
			log.Printf("engine: restored %d entities, %d relationships",
				len(snap.Entities), len(snap.Relationships))
		}
	}

	go e.hub.Run()
	if e.watcher != nil {
		if err := e.watcher.Start(); err != nil {
			return fmt.Errorf("engine: start merge watcher: %w", err)
		}
	}
	e.started = true
	return nil
}

// ResolveBatch adds the batch entities to the store, runs the resolution
// pipeline over the whole store contents, and commits the resulting
// clusters. Entities already known (same id) are left as they are. Every
// committed merge is broadcast to hub subscribers.
func (e *Engine) ResolveBatch(ctx context.Context, batch []*types.Entity) (*resolver.Result, []types.MergeRecord, error) {
	for _, entity := range batch {
		if _, err := e.store.AddEntity(ctx, entity); err != nil {
			// A duplicate id means the entity is already in the graph;
			// resolution proceeds over the stored version.
			if entity.ID == "" || !isDuplicate(err) {
				return nil, nil, err
			}
		}
	}

	snapshot, err := e.store.Export(ctx)
	if err != nil {
		return nil, nil, err
	}

	result, err := e.pipeline.Run(ctx, snapshot.Entities)
	if err != nil {
		return nil, nil, err
	}

	records, err := e.coord.Apply(ctx, result.Clusters)
	for _, record := range records {
		if !record.Committed() {
			continue
		}
		// The watcher, when running, relays local records from the events
		// directory; broadcasting here as well would deliver them twice.
		if e.watcher == nil {
			e.hub.Broadcast(record)
		}
		if e.onMergeCommitted != nil {
			e.onMergeCommitted(record)
		}
	}
	return result, records, err
}

// Snapshot persists the current graph to the snapshot backend. A no-op
// without one.
func (e *Engine) Snapshot(ctx context.Context) error {
	if e.snapshots == nil {
		return nil
	}
	snap, err := e.store.Export(ctx)
	if err != nil {
		return err
	}
	return e.snapshots.Save(ctx, snap)
}

// Shutdown persists the graph and releases the hub and snapshot backend.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.started {
		return nil
	}
	e.started = false

	var firstErr error
	if err := e.Snapshot(ctx); err != nil {
		firstErr = err
	}
	if e.watcher != nil {
		e.watcher.Stop()
	}
	e.hub.Stop()
	if e.snapshots != nil {
		if err := e.snapshots.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func isDuplicate(err error) bool {
	return errors.Is(err, graph.ErrDuplicateID)
}
