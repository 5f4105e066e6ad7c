// Package sqlite implements storage.SnapshotStore on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/coalesce/internal/storage"
	"github.com/scrypster/coalesce/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	attributes  TEXT NOT NULL DEFAULT '{}',
	source      TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	id          TEXT PRIMARY KEY,
	position    INTEGER NOT NULL,
	source_id   TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	type        TEXT NOT NULL,
	attributes  TEXT NOT NULL DEFAULT '{}',
	strength    REAL NOT NULL DEFAULT 1,
	directed    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS aliases (
	alias      TEXT PRIMARY KEY,
	canonical  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_position ON relationships(position);
`

// Store implements storage.SnapshotStore using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) a SQLite snapshot store at the given
// DSN.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// SQLite supports one concurrent writer; a single connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save replaces the stored snapshot in one transaction.
func (s *Store) Save(ctx context.Context, snap *types.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("sqlite: save: %w", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"relationships", "aliases", "entities"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite: clear %s: %w", table, err)
		}
	}

	for _, e := range snap.Entities {
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("sqlite: marshal attributes of %s: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, type, name, attributes, source, confidence, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Type, e.Name, string(attrs), e.Source, e.Confidence,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
			e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("sqlite: insert entity %s: %w", e.ID, err)
		}
	}

	for i, r := range snap.Relationships {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return fmt.Errorf("sqlite: marshal attributes of %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relationships (id, position, source_id, target_id, type, attributes, strength, directed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, r.SourceID, r.TargetID, r.Type, string(attrs), r.Strength, boolToInt(r.Directed),
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
			r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("sqlite: insert relationship %s: %w", r.ID, err)
		}
	}

	for _, a := range snap.Aliases {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO aliases (alias, canonical) VALUES (?, ?)",
			a.Alias, a.Canonical,
		); err != nil {
			return fmt.Errorf("sqlite: insert alias %s: %w", a.Alias, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit save: %w", err)
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
		return nil, fmt.Errorf("sqlite: load entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e types.Entity
		var attrs, createdAt, updatedAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.Name, &attrs, &e.Source, &e.Confidence, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan entity: %w", err)
		}
		if err := decodeRow(attrs, createdAt, updatedAt, &e.Attributes, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: decode entity %s: %w", e.ID, err)
		}
		snap.Entities = append(snap.Entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load entities: %w", err)
	}

	relRows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, attributes, strength, directed, created_at, updated_at
		FROM relationships ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load relationships: %w", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var r types.Relationship
		var attrs, createdAt, updatedAt string
		var directed int
		if err := relRows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &attrs, &r.Strength, &directed, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan relationship: %w", err)
		}
		r.Directed = directed != 0
		if err := decodeRow(attrs, createdAt, updatedAt, &r.Attributes, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: decode relationship %s: %w", r.ID, err)
		}
		snap.Relationships = append(snap.Relationships, &r)
	}
	if err := relRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load relationships: %w", err)
	}

	aliasRows, err := s.db.QueryContext(ctx, "SELECT alias, canonical FROM aliases ORDER BY alias")
	if err != nil {
		return nil, fmt.Errorf("sqlite: load aliases: %w", err)
	}
	defer aliasRows.Close()
	for aliasRows.Next() {
		var a types.AliasPair
		if err := aliasRows.Scan(&a.Alias, &a.Canonical); err != nil {
			return nil, fmt.Errorf("sqlite: scan alias: %w", err)
		}
		snap.Aliases = append(snap.Aliases, a)
	}
	if err := aliasRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load aliases: %w", err)
	}

	return snap, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodeRow(attrs, createdAt, updatedAt string, attributes *map[string]types.Value, created, updated *time.Time) error {
	if err := json.Unmarshal([]byte(attrs), attributes); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	var err error
	if *created, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	if *updated, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
