package storage

import (
	"context"
	"database/sql"
	"errors"
)

// sqliteTx implements Tx for SQLite
type sqliteTx struct {
	tx    *sql.Tx
	store *SQLiteStore
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// Delegate all Store methods through the transaction

func (t *sqliteTx) GetFileState(ctx context.Context, path string) (*FileState, error) {
	return t.store.getFileStateWithQuerier(ctx, t.tx, path)
}

func (t *sqliteTx) PutFileState(ctx context.Context, st *FileState) error {
	return t.store.putFileStateWithQuerier(ctx, t.tx, st)
}

func (t *sqliteTx) DeleteFileState(ctx context.Context, path string) error {
	return t.store.deleteFileStateWithQuerier(ctx, t.tx, path)
}

func (t *sqliteTx) GetMeta(ctx context.Context, key string) (string, error) {
	return t.store.getMetaWithQuerier(ctx, t.tx, key)
}

func (t *sqliteTx) SetMeta(ctx context.Context, key, value string) error {
	return t.store.setMetaWithQuerier(ctx, t.tx, key, value)
}

func (t *sqliteTx) GetSignature(ctx context.Context, sig string) (*ContentSignature, error) {
	return t.store.getSignatureWithQuerier(ctx, t.tx, sig)
}

func (t *sqliteTx) PutSignature(ctx context.Context, sig, path string) error {
	return t.store.putSignatureWithQuerier(ctx, t.tx, sig, path)
}

func (t *sqliteTx) TouchSignature(ctx context.Context, sig string) error {
	return t.store.touchSignatureWithQuerier(ctx, t.tx, sig)
}

func (t *sqliteTx) EnqueueOCR(ctx context.Context, job *OCRJob) error {
	return t.store.enqueueOCRWithQuerier(ctx, t.tx, job)
}

func (t *sqliteTx) FetchOCRJobs(ctx context.Context, exts []string, limit int, force bool) ([]*OCRJob, error) {
	return t.store.fetchOCRJobsWithQuerier(ctx, t.tx, exts, limit, force)
}

func (t *sqliteTx) UpdateOCRJob(ctx context.Context, path string, status OCRStatus, attempts int, lastError string) error {
	return t.store.updateOCRJobWithQuerier(ctx, t.tx, path, status, attempts, lastError)
}

func (t *sqliteTx) OCRQueueCounts(ctx context.Context) (map[OCRStatus]int, error) {
	return t.store.ocrQueueCountsWithQuerier(ctx, t.tx)
}

func (t *sqliteTx) StatusCounts(ctx context.Context, configFingerprint string) (*StatusCounts, error) {
	return t.store.statusCountsWithQuerier(ctx, t.tx, configFingerprint)
}

func (t *sqliteTx) RecentUpdateTimes(ctx context.Context, configFingerprint string, n int) ([]int64, error) {
	return t.store.recentUpdateTimesWithQuerier(ctx, t.tx, configFingerprint, n)
}

func (t *sqliteTx) Close() error {
	return errors.New("cannot close transaction, use Commit or Rollback")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
