package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the state database schema version
	CurrentSchemaVersion = "1.2.0"

	// CurrentSnippetSchemaVersion tracks the snippet database schema version
	CurrentSnippetSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
	// Optional migrations may fail (e.g. FTS5 missing from the driver);
	// the failure is skipped and retried on the next open.
	Optional bool
}

// StateMigrations builds the file_state / content_sig / ocr_queue database
var StateMigrations = []Migration{
	{Version: "1.0.0", Up: stateV1Up, Down: stateV1Down},
	{Version: "1.1.0", Up: stateV11Up, Down: stateV11Down},
	{Version: "1.2.0", Up: stateV12Up, Down: stateV12Down},
}

// SnippetMigrations builds the snippet database
var SnippetMigrations = []Migration{
	{Version: "1.0.0", Up: snippetV1Up, Down: snippetV1Down},
	{Version: "1.1.0", Up: snippetV11Up, Down: snippetV11Down, Optional: true},
}

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const stateV1Up = `
CREATE TABLE IF NOT EXISTS file_state (
    path TEXT PRIMARY KEY,
    size INTEGER NOT NULL,
    mtime INTEGER NOT NULL,
    cfg_hash TEXT NOT NULL DEFAULT '',
    text_hash TEXT NOT NULL DEFAULT '',
    chunk_count INTEGER NOT NULL DEFAULT 0,
    complete INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS content_sig (
    sig TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    first_seen INTEGER NOT NULL,
    last_seen INTEGER NOT NULL
);
`

const stateV1Down = `
DROP TABLE IF EXISTS content_sig;
DROP TABLE IF EXISTS meta;
DROP TABLE IF EXISTS file_state;
`

const stateV11Up = `
CREATE TABLE IF NOT EXISTS ocr_queue (
    path TEXT PRIMARY KEY,
    ext TEXT NOT NULL,
    size INTEGER NOT NULL,
    mtime INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ocr_queue_status ON ocr_queue(status, updated_at);
`

const stateV11Down = `
DROP INDEX IF EXISTS idx_ocr_queue_status;
DROP TABLE IF EXISTS ocr_queue;
`

const stateV12Up = `
ALTER TABLE file_state ADD COLUMN sidecar_sig TEXT NOT NULL DEFAULT '';
ALTER TABLE file_state ADD COLUMN duplicate_of TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_file_state_cfg ON file_state(cfg_hash, complete);
CREATE INDEX IF NOT EXISTS idx_file_state_updated ON file_state(updated_at);
`

const stateV12Down = `
DROP INDEX IF EXISTS idx_file_state_updated;
DROP INDEX IF EXISTS idx_file_state_cfg;
ALTER TABLE file_state DROP COLUMN duplicate_of;
ALTER TABLE file_state DROP COLUMN sidecar_sig;
`

const snippetV1Up = `
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    point_id TEXT NOT NULL UNIQUE,
    path TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    chunk_total INTEGER NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    text_hash TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path, chunk_index);
`

const snippetV1Down = `
DROP INDEX IF EXISTS idx_chunks_path;
DROP TABLE IF EXISTS chunks;
`

// External-content FTS5 table kept in sync by triggers. Updates must issue
// the special 'delete' command with the old values before re-inserting.
const snippetV11Up = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    text,
    path,
    content='chunks',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, text, path) VALUES (new.id, new.text, new.path);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text, path) VALUES ('delete', old.id, old.text, old.path);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text, path) VALUES ('delete', old.id, old.text, old.path);
    INSERT INTO chunks_fts(rowid, text, path) VALUES (new.id, new.text, new.path);
END;

INSERT INTO chunks_fts(chunks_fts) VALUES ('rebuild');
`

const snippetV11Down = `
DROP TRIGGER IF EXISTS chunks_au;
DROP TRIGGER IF EXISTS chunks_ad;
DROP TRIGGER IF EXISTS chunks_ai;
DROP TABLE IF EXISTS chunks_fts;
`

// currentVersion returns the highest applied version, or 0.0.0 on a fresh database
func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations of set, each in its own transaction
func ApplyMigrations(ctx context.Context, db *sql.DB, set []Migration) error {
	if _, err := db.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range set {
		version, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !current.LessThan(version) {
			continue
		}

		if err := applyOne(ctx, db, migration); err != nil {
			if migration.Optional {
				continue
			}
			return err
		}
		current = version
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", migration.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
	}
	return tx.Commit()
}

// RollbackMigration rolls back the most recent migration of set
func RollbackMigration(ctx context.Context, db *sql.DB, set []Migration) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	var migration *Migration
	for i := range set {
		if v, err := semver.NewVersion(set[i].Version); err == nil && v.Equal(current) {
			migration = &set[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration version
func SchemaVersion(ctx context.Context, db *sql.DB) (string, error) {
	v, err := currentVersion(ctx, db)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
