package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) getSignatureWithQuerier(ctx context.Context, q querier, sig string) (*ContentSignature, error) {
	var cs ContentSignature
	err := q.QueryRowContext(ctx,
		"SELECT sig, path, first_seen, last_seen FROM content_sig WHERE sig = ?", sig,
	).Scan(&cs.Signature, &cs.Path, &cs.FirstSeen, &cs.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content signature: %w", err)
	}
	return &cs, nil
}

func (s *SQLiteStore) GetSignature(ctx context.Context, sig string) (*ContentSignature, error) {
	return s.getSignatureWithQuerier(ctx, s.querier(), sig)
}

// putSignatureWithQuerier sets the canonical path for sig, keeping first_seen
// when the row already exists.
func (s *SQLiteStore) putSignatureWithQuerier(ctx context.Context, q querier, sig, path string) error {
	now := s.now().Unix()
	_, err := q.ExecContext(ctx, `
		INSERT INTO content_sig (sig, path, first_seen, last_seen) VALUES (?, ?, ?, ?)
		ON CONFLICT(sig) DO UPDATE SET path = excluded.path, last_seen = excluded.last_seen
	`, sig, path, now, now)
	if err != nil {
		return fmt.Errorf("failed to put content signature: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutSignature(ctx context.Context, sig, path string) error {
	return s.putSignatureWithQuerier(ctx, s.querier(), sig, path)
}

func (s *SQLiteStore) touchSignatureWithQuerier(ctx context.Context, q querier, sig string) error {
	if _, err := q.ExecContext(ctx, "UPDATE content_sig SET last_seen = ? WHERE sig = ?", s.now().Unix(), sig); err != nil {
		return fmt.Errorf("failed to touch content signature: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TouchSignature(ctx context.Context, sig string) error {
	return s.touchSignatureWithQuerier(ctx, s.querier(), sig)
}
