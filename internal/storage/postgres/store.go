// Package postgres implements storage.SnapshotStore on PostgreSQL, for
// deployments where several resolver instances share one durable snapshot.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/scrypster/coalesce/internal/storage"
	"github.com/scrypster/coalesce/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	attributes  JSONB NOT NULL DEFAULT '{}',
	source      TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	id          TEXT PRIMARY KEY,
	position    INTEGER NOT NULL,
	source_id   TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	type        TEXT NOT NULL,
	attributes  JSONB NOT NULL DEFAULT '{}',
	strength    DOUBLE PRECISION NOT NULL DEFAULT 1,
	directed    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS aliases (
	alias      TEXT PRIMARY KEY,
	canonical  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_position ON relationships(position);
`

// Store implements storage.SnapshotStore using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New connects to PostgreSQL at the given DSN and ensures the schema
// exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save replaces the stored snapshot in one transaction.
func (s *Store) Save(ctx context.Context, snap *types.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("postgres: save: %w", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "TRUNCATE relationships, aliases, entities"); err != nil {
		return fmt.Errorf("postgres: clear tables: %w", err)
	}

	for _, e := range snap.Entities {
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("postgres: marshal attributes of %s: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, type, name, attributes, source, confidence, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.ID, e.Type, e.Name, attrs, e.Source, e.Confidence, e.CreatedAt, e.UpdatedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert entity %s: %w", e.ID, err)
		}
	}

	for i, r := range snap.Relationships {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return fmt.Errorf("postgres: marshal attributes of %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relationships (id, position, source_id, target_id, type, attributes, strength, directed, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			r.ID, i, r.SourceID, r.TargetID, r.Type, attrs, r.Strength, r.Directed, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert relationship %s: %w", r.ID, err)
		}
	}

	for _, a := range snap.Aliases {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO aliases (alias, canonical) VALUES ($1, $2)",
			a.Alias, a.Canonical,
		); err != nil {
			return fmt.Errorf("postgres: insert alias %s: %w", a.Alias, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit save: %w", err)
	}
	return nil
}

// Load reads the stored snapshot. Relationships come back in the order
// they were saved.
func (s *Store) Load(ctx context.Context) (*types.Snapshot, error) {
	snap := &types.Snapshot{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, attributes, source, confidence, created_at, updated_at
		FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e types.Entity
		var attrs []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Name, &attrs, &e.Source, &e.Confidence, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan entity: %w", err)
		}
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("postgres: decode entity %s: %w", e.ID, err)
		}
		snap.Entities = append(snap.Entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load entities: %w", err)
	}

	relRows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, attributes, strength, directed, created_at, updated_at
		FROM relationships ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load relationships: %w", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var r types.Relationship
		var attrs []byte
		if err := relRows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &attrs, &r.Strength, &r.Directed, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan relationship: %w", err)
		}
		if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
			return nil, fmt.Errorf("postgres: decode relationship %s: %w", r.ID, err)
		}
		snap.Relationships = append(snap.Relationships, &r)
	}
	if err := relRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load relationships: %w", err)
	}

	aliasRows, err := s.db.QueryContext(ctx, "SELECT alias, canonical FROM aliases ORDER BY alias")
	if err != nil {
		return nil, fmt.Errorf("postgres: load aliases: %w", err)
	}
	defer aliasRows.Close()
	for aliasRows.Next() {
		var a types.AliasPair
		if err := aliasRows.Scan(&a.Alias, &a.Canonical); err != nil {
			return nil, fmt.Errorf("postgres: scan alias: %w", err)
		}
		snap.Aliases = append(snap.Aliases, a)
	}
	if err := aliasRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load aliases: %w", err)
	}

	return snap, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
