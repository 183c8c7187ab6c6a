package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/darkangelpraha/dropindex/pkg/types"
)

const (
	// snippetLookupBatch bounds the IN (...) list of point-id lookups
	snippetLookupBatch = 200

	// snippetPreviewChars is how much text a full-text hit carries
	snippetPreviewChars = 800

	// SourceFTS and SourceLike name the backend that produced a full-text hit
	SourceFTS  = "fts"
	SourceLike = "like"
)

// SnippetStore keeps chunk text next to the vector store for previews and
// keyword search. It lives in its own SQLite file.
type SnippetStore struct {
	db       *sql.DB
	path     string
	maxChars int
	now      func() time.Time
}

// NewSnippetStore opens the snippet database. maxChars truncates stored
// text; 0 stores it whole.
func NewSnippetStore(dbPath string, maxChars int) (*SnippetStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snippet database: %w", err)
	}
	if err := ApplyMigrations(context.Background(), db, SnippetMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply snippet migrations: %w", err)
	}
	return &SnippetStore{db: db, path: dbPath, maxChars: maxChars, now: time.Now}, nil
}

// Path returns the database location
func (s *SnippetStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SnippetStore) Close() error {
	return s.db.Close()
}

// HasFTS reports whether the FTS5 index was created
func (s *SnippetStore) HasFTS(ctx context.Context) bool {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'chunks_fts'").Scan(&name)
	return err == nil
}

// UpsertPoints writes the text of every point in one transaction, keyed by point id
func (s *SnippetStore) UpsertPoints(ctx context.Context, points []types.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (point_id, path, chunk_index, chunk_total, source, text, text_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(point_id) DO UPDATE SET
			path = excluded.path,
			chunk_index = excluded.chunk_index,
			chunk_total = excluded.chunk_total,
			source = excluded.source,
			text = excluded.text,
			text_hash = excluded.text_hash,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snippet upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := s.now().Unix()
	for i := range points {
		p := &points[i]
		text := types.Truncate(p.Text, s.maxChars)
		_, err := stmt.ExecContext(ctx, p.ID, p.Payload.Path, p.Payload.ChunkIndex, p.Payload.ChunkTotal,
			string(p.Payload.Source), text, p.Payload.TextHash, now)
		if err != nil {
			return fmt.Errorf("failed to upsert snippet %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteFrom removes the snippets of path with chunk_index >= minChunk.
// minChunk 0 removes every snippet of the path.
func (s *SnippetStore) DeleteFrom(ctx context.Context, path string, minChunk int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE path = ? AND chunk_index >= ?", path, minChunk)
	if err != nil {
		return 0, fmt.Errorf("failed to delete snippets: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of stored snippets
func (s *SnippetStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Search runs a keyword query against the FTS5 index, ordered by bm25.
// Without the index, or when the query has no indexable words, it falls
// back to a case-insensitive substring match.
func (s *SnippetStore) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	if match := buildFTSQuery(query); match != "" && s.HasFTS(ctx) {
		results, err := s.searchFTS(ctx, match, limit)
		if err == nil {
			return results, nil
		}
	}
	return s.searchLike(ctx, query, limit)
}

func (s *SnippetStore) searchFTS(ctx context.Context, match string, limit int) ([]types.SearchResult, error) {
	// bm25() is lower-is-better; negate so higher Score means more relevant
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.point_id, c.path, c.chunk_index, c.chunk_total, c.source, substr(c.text, 1, ?), -bm25(chunks_fts)
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts)
		LIMIT ?
	`, snippetPreviewChars, match, limit)
	if err != nil {
		return nil, err
	}
	return scanHits(rows, SourceFTS)
}

func (s *SnippetStore) searchLike(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT point_id, path, chunk_index, chunk_total, source, substr(text, 1, ?), 0.0
		FROM chunks
		WHERE text LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, id ASC
		LIMIT ?
	`, snippetPreviewChars, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search snippets: %w", err)
	}
	return scanHits(rows, SourceLike)
}

func scanHits(rows *sql.Rows, source string) ([]types.SearchResult, error) {
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0)
	for rows.Next() {
		var r types.SearchResult
		var origin string
		if err := rows.Scan(&r.PointID, &r.Path, &r.ChunkIndex, &r.ChunkTotal, &origin, &r.Preview, &r.Score); err != nil {
			return nil, err
		}
		r.Origin = types.Provenance(origin)
		r.Source = source
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	return results, rows.Err()
}

// TextByPointIDs returns stored text keyed by point id. Unknown ids are absent.
func (s *SnippetStore) TextByPointIDs(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += snippetLookupBatch {
		end := start + snippetLookupBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]interface{}, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx,
			"SELECT point_id, text FROM chunks WHERE point_id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up snippets: %w", err)
		}
		for rows.Next() {
			var id, text string
			if err := rows.Scan(&id, &text); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[id] = text
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
