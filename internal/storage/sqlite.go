package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// DefaultBusyTimeout lets the indexer and the OCR worker share one state file
const DefaultBusyTimeout = 30 * time.Second

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// openDatabase opens a SQLite database in WAL mode with a busy timeout.
// Parent directories are created for file-backed databases.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// single writer; pragmas below apply to this one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []struct {
		stmt string
		desc string
	}{
		{fmt.Sprintf("PRAGMA busy_timeout=%d", DefaultBusyTimeout.Milliseconds()), "set busy timeout"},
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA synchronous=NORMAL", "set synchronous mode"},
		{"PRAGMA temp_store=MEMORY", "set temp store"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.desc, err)
		}
	}

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the state database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db, StateMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath, now: time.Now}, nil
}

// Path returns the database location
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, store: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// File state operations

func (s *SQLiteStore) getFileStateWithQuerier(ctx context.Context, q querier, path string) (*FileState, error) {
	query := `
		SELECT path, size, mtime, cfg_hash, text_hash, sidecar_sig, chunk_count,
		       complete, last_error, duplicate_of, updated_at
		FROM file_state WHERE path = ?
	`
	var st FileState
	var complete int
	err := q.QueryRowContext(ctx, query, path).Scan(
		&st.Path, &st.Size, &st.Mtime, &st.ConfigFingerprint, &st.ContentFingerprint,
		&st.SidecarSig, &st.ChunkCount, &complete, &st.LastError, &st.DuplicateOf, &st.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file state: %w", err)
	}
	st.Complete = complete != 0
	return &st, nil
}

func (s *SQLiteStore) GetFileState(ctx context.Context, path string) (*FileState, error) {
	return s.getFileStateWithQuerier(ctx, s.querier(), path)
}

func (s *SQLiteStore) putFileStateWithQuerier(ctx context.Context, q querier, st *FileState) error {
	query := `
		INSERT INTO file_state (path, size, mtime, cfg_hash, text_hash, sidecar_sig, chunk_count,
		                        complete, last_error, duplicate_of, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime = excluded.mtime,
			cfg_hash = excluded.cfg_hash,
			text_hash = excluded.text_hash,
			sidecar_sig = excluded.sidecar_sig,
			chunk_count = excluded.chunk_count,
			complete = excluded.complete,
			last_error = excluded.last_error,
			duplicate_of = excluded.duplicate_of,
			updated_at = excluded.updated_at
	`
	if st.UpdatedAt == 0 {
		st.UpdatedAt = s.now().Unix()
	}
	_, err := q.ExecContext(ctx, query,
		st.Path, st.Size, st.Mtime, st.ConfigFingerprint, st.ContentFingerprint, st.SidecarSig,
		st.ChunkCount, boolToInt(st.Complete), st.LastError, st.DuplicateOf, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put file state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutFileState(ctx context.Context, st *FileState) error {
	return s.putFileStateWithQuerier(ctx, s.querier(), st)
}

func (s *SQLiteStore) deleteFileStateWithQuerier(ctx context.Context, q querier, path string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM file_state WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete file state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteFileState(ctx context.Context, path string) error {
	return s.deleteFileStateWithQuerier(ctx, s.querier(), path)
}

// Run metadata

func (s *SQLiteStore) getMetaWithQuerier(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	return s.getMetaWithQuerier(ctx, s.querier(), key)
}

func (s *SQLiteStore) setMetaWithQuerier(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	return s.setMetaWithQuerier(ctx, s.querier(), key, value)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
