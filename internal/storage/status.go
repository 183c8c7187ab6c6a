package storage

import (
	"context"
	"fmt"
)

func (s *SQLiteStore) statusCountsWithQuerier(ctx context.Context, q querier, configFingerprint string) (*StatusCounts, error) {
	var c StatusCounts
	err := q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN cfg_hash = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN complete = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN duplicate_of != '' THEN 1 ELSE 0 END), 0)
		FROM file_state
	`, configFingerprint).Scan(&c.TotalFiles, &c.MatchingConfig, &c.IncompleteFiles, &c.DuplicateFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to count file states: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) StatusCounts(ctx context.Context, configFingerprint string) (*StatusCounts, error) {
	return s.statusCountsWithQuerier(ctx, s.querier(), configFingerprint)
}

// recentUpdateTimesWithQuerier returns updated_at of the n most recently
// written rows for the fingerprint, newest first.
func (s *SQLiteStore) recentUpdateTimesWithQuerier(ctx context.Context, q querier, configFingerprint string, n int) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT updated_at FROM file_state WHERE cfg_hash = ? ORDER BY updated_at DESC LIMIT ?",
		configFingerprint, n)
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent updates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecentUpdateTimes(ctx context.Context, configFingerprint string, n int) ([]int64, error) {
	return s.recentUpdateTimesWithQuerier(ctx, s.querier(), configFingerprint, n)
}
