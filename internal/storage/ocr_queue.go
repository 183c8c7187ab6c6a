package storage

import (
	"context"
	"fmt"
	"strings"
)

// MaxLastErrorLen bounds the stored error text of a queue entry
const MaxLastErrorLen = 1000

// enqueueOCRWithQuerier inserts a pending job. An existing entry keeps its
// status unless the file changed since it was queued, in which case it goes
// back to pending.
func (s *SQLiteStore) enqueueOCRWithQuerier(ctx context.Context, q querier, job *OCRJob) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ocr_queue (path, ext, size, mtime, status, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, 'pending', 0, '', ?)
		ON CONFLICT(path) DO UPDATE SET
			ext = excluded.ext,
			status = CASE
				WHEN ocr_queue.size != excluded.size OR ocr_queue.mtime != excluded.mtime THEN 'pending'
				ELSE ocr_queue.status
			END,
			updated_at = CASE
				WHEN ocr_queue.size != excluded.size OR ocr_queue.mtime != excluded.mtime THEN excluded.updated_at
				ELSE ocr_queue.updated_at
			END,
			size = excluded.size,
			mtime = excluded.mtime
	`, job.Path, strings.ToLower(job.Ext), job.Size, job.Mtime, s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to enqueue OCR job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EnqueueOCR(ctx context.Context, job *OCRJob) error {
	return s.enqueueOCRWithQuerier(ctx, s.querier(), job)
}

// fetchOCRJobsWithQuerier returns up to limit jobs that are not done (all
// jobs when force is set) with an extension in exts. PDFs come first, then
// the longest-waiting entries.
func (s *SQLiteStore) fetchOCRJobsWithQuerier(ctx context.Context, q querier, exts []string, limit int, force bool) ([]*OCRJob, error) {
	if len(exts) == 0 || limit <= 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString(`
		SELECT path, ext, size, mtime, status, attempts, last_error, updated_at
		FROM ocr_queue WHERE ext IN (`)
	args := make([]interface{}, 0, len(exts)+1)
	for i, ext := range exts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
		args = append(args, strings.ToLower(ext))
	}
	b.WriteString(")")
	if !force {
		b.WriteString(" AND status != 'done'")
	}
	b.WriteString(" ORDER BY CASE WHEN ext = '.pdf' THEN 0 ELSE 1 END, updated_at ASC LIMIT ?")
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OCR jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*OCRJob
	for rows.Next() {
		var j OCRJob
		var status string
		if err := rows.Scan(&j.Path, &j.Ext, &j.Size, &j.Mtime, &status, &j.Attempts, &j.LastError, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.Status = OCRStatus(status)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) FetchOCRJobs(ctx context.Context, exts []string, limit int, force bool) ([]*OCRJob, error) {
	return s.fetchOCRJobsWithQuerier(ctx, s.querier(), exts, limit, force)
}

func (s *SQLiteStore) updateOCRJobWithQuerier(ctx context.Context, q querier, path string, status OCRStatus, attempts int, lastError string) error {
	if len(lastError) > MaxLastErrorLen {
		lastError = lastError[:MaxLastErrorLen]
	}
	res, err := q.ExecContext(ctx,
		"UPDATE ocr_queue SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE path = ?",
		string(status), attempts, lastError, s.now().Unix(), path)
	if err != nil {
		return fmt.Errorf("failed to update OCR job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateOCRJob(ctx context.Context, path string, status OCRStatus, attempts int, lastError string) error {
	return s.updateOCRJobWithQuerier(ctx, s.querier(), path, status, attempts, lastError)
}

func (s *SQLiteStore) ocrQueueCountsWithQuerier(ctx context.Context, q querier) (map[OCRStatus]int, error) {
	rows, err := q.QueryContext(ctx, "SELECT status, COUNT(*) FROM ocr_queue GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count OCR queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[OCRStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[OCRStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) OCRQueueCounts(ctx context.Context) (map[OCRStatus]int, error) {
	return s.ocrQueueCountsWithQuerier(ctx, s.querier())
}
