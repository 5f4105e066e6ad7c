// Package storage persists whole-graph snapshots. The in-memory store is
// the source of truth at runtime; a SnapshotStore gives it durability
// across restarts via Export on the way out and Import on the way in.
package storage

import (
	"context"
	"errors"

	"github.com/scrypster/coalesce/pkg/types"
)

// ErrInvalidInput indicates a nil or structurally unusable argument.
var ErrInvalidInput = errors.New("invalid input")

// SnapshotStore persists and restores graph snapshots. Save replaces the
// stored snapshot wholesale; partial updates are not part of this
// interface.
type SnapshotStore interface {
	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, snap *types.Snapshot) error

	// Load returns the stored snapshot. An empty backend yields an empty
	// snapshot, not an error.
	Load(ctx context.Context) (*types.Snapshot, error)

	// Close releases the backend connection.
	Close() error
}
