package storage

import (
	"context"
	"strings"
	"time"
)

// busyRetries bounds how often a transaction is retried when another
// process holds the write lock past the busy timeout
const busyRetries = 5

// IsBusy reports whether err is SQLite's lock contention error
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database table is locked")
}

// RunInTx runs fn inside a transaction and commits it. Lock contention
// rolls back and retries with a short linear backoff.
func RunInTx(ctx context.Context, s Store, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		err = runOnce(ctx, s, fn)
		if !IsBusy(err) {
			return err
		}
	}
	return err
}

func runOnce(ctx context.Context, s Store, fn func(tx Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
