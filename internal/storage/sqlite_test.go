package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fixedClock makes updated_at values predictable
func fixedClock(store *SQLiteStore, start int64) func(int64) {
	now := start
	store.now = func() time.Time { return time.Unix(now, 0) }
	return func(ts int64) { now = ts }
}

func TestNewSQLiteStore(t *testing.T) {
	store := setupTestDB(t)
	assert.NotNil(t, store.db)

	version, err := SchemaVersion(context.Background(), store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestNewSQLiteStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.sqlite")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	assert.FileExists(t, path)
	assert.Equal(t, path, store.Path())
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.sqlite")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetMeta(ctx, MetaRunConfigHash, "abc"))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	v, err := store.GetMeta(ctx, MetaRunConfigHash)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestFileStateRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	fixedClock(store, 1000)

	_, err := store.GetFileState(ctx, "/a.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	st := &FileState{
		Path:               "/a.txt",
		Size:               10,
		Mtime:              20,
		ConfigFingerprint:  "cfg",
		ContentFingerprint: "content",
		SidecarSig:         "5:6",
		ChunkCount:         3,
		Complete:           true,
	}
	require.NoError(t, store.PutFileState(ctx, st))

	got, err := store.GetFileState(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.UpdatedAt)
	assert.Equal(t, *st, *got)

	// overwrite in place
	st.Complete = false
	st.LastError = "embed failed"
	st.ChunkCount = 1
	require.NoError(t, store.PutFileState(ctx, st))

	got, err = store.GetFileState(ctx, "/a.txt")
	require.NoError(t, err)
	assert.False(t, got.Complete)
	assert.Equal(t, "embed failed", got.LastError)
	assert.Equal(t, 1, got.ChunkCount)

	require.NoError(t, store.DeleteFileState(ctx, "/a.txt"))
	_, err = store.GetFileState(ctx, "/a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStateUnchanged(t *testing.T) {
	st := &FileState{Size: 1, Mtime: 2, ConfigFingerprint: "c", SidecarSig: "", Complete: true}

	assert.True(t, st.Unchanged(1, 2, "c", ""))
	assert.False(t, st.Unchanged(2, 2, "c", ""), "size changed")
	assert.False(t, st.Unchanged(1, 3, "c", ""), "mtime changed")
	assert.False(t, st.Unchanged(1, 2, "d", ""), "config changed")
	assert.False(t, st.Unchanged(1, 2, "c", "9:9"), "sidecar appeared")

	st.Complete = false
	assert.False(t, st.Unchanged(1, 2, "c", ""), "incomplete files are retried")
}

func TestMeta(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.GetMeta(ctx, MetaVectorSize)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetMeta(ctx, MetaVectorSize, "768"))
	require.NoError(t, store.SetMeta(ctx, MetaVectorSize, "1536"))

	v, err := store.GetMeta(ctx, MetaVectorSize)
	require.NoError(t, err)
	assert.Equal(t, "1536", v)
}

func TestContentSignatures(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	setNow := fixedClock(store, 100)

	_, err := store.GetSignature(ctx, "sig")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutSignature(ctx, "sig", "/a"))

	setNow(200)
	require.NoError(t, store.TouchSignature(ctx, "sig"))
	cs, err := store.GetSignature(ctx, "sig")
	require.NoError(t, err)
	assert.Equal(t, "/a", cs.Path)
	assert.Equal(t, int64(100), cs.FirstSeen)
	assert.Equal(t, int64(200), cs.LastSeen)

	// promotion keeps first_seen
	setNow(300)
	require.NoError(t, store.PutSignature(ctx, "sig", "/b"))
	cs, err = store.GetSignature(ctx, "sig")
	require.NoError(t, err)
	assert.Equal(t, "/b", cs.Path)
	assert.Equal(t, int64(100), cs.FirstSeen)
	assert.Equal(t, int64(300), cs.LastSeen)
}

func TestOCRQueue(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	setNow := fixedClock(store, 100)

	require.NoError(t, store.EnqueueOCR(ctx, &OCRJob{Path: "/img.png", Ext: ".PNG", Size: 1, Mtime: 1}))
	setNow(200)
	require.NoError(t, store.EnqueueOCR(ctx, &OCRJob{Path: "/b.pdf", Ext: ".pdf", Size: 1, Mtime: 1}))
	setNow(300)
	require.NoError(t, store.EnqueueOCR(ctx, &OCRJob{Path: "/a.pdf", Ext: ".pdf", Size: 1, Mtime: 1}))

	jobs, err := store.FetchOCRJobs(ctx, []string{".pdf", ".png"}, 10, false)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	// PDFs first, oldest first
	assert.Equal(t, "/b.pdf", jobs[0].Path)
	assert.Equal(t, "/a.pdf", jobs[1].Path)
	assert.Equal(t, "/img.png", jobs[2].Path)
	assert.Equal(t, ".png", jobs[2].Ext)
	assert.Equal(t, OCRPending, jobs[0].Status)

	jobs, err = store.FetchOCRJobs(ctx, []string{".pdf"}, 1, false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, store.UpdateOCRJob(ctx, "/b.pdf", OCRDone, 1, ""))
	jobs, err = store.FetchOCRJobs(ctx, []string{".pdf"}, 10, false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "/a.pdf", jobs[0].Path)

	jobs, err = store.FetchOCRJobs(ctx, []string{".pdf"}, 10, true)
	require.NoError(t, err)
	assert.Len(t, jobs, 2, "force includes done jobs")

	// re-enqueue of an unchanged file keeps its status
	require.NoError(t, store.EnqueueOCR(ctx, &OCRJob{Path: "/b.pdf", Ext: ".pdf", Size: 1, Mtime: 1}))
	jobs, err = store.FetchOCRJobs(ctx, []string{".pdf"}, 10, false)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	// a changed file goes back to pending
	require.NoError(t, store.EnqueueOCR(ctx, &OCRJob{Path: "/b.pdf", Ext: ".pdf", Size: 2, Mtime: 1}))
	jobs, err = store.FetchOCRJobs(ctx, []string{".pdf"}, 10, false)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	counts, err := store.OCRQueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[OCRPending])

	assert.ErrorIs(t, store.UpdateOCRJob(ctx, "/nope", OCRDone, 1, ""), ErrNotFound)
}

func TestOCRQueueTruncatesLastError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueOCR(ctx, &OCRJob{Path: "/a.pdf", Ext: ".pdf"}))
	require.NoError(t, store.UpdateOCRJob(ctx, "/a.pdf", OCRError, 2, strings.Repeat("x", 5000)))

	jobs, err := store.FetchOCRJobs(ctx, []string{".pdf"}, 1, false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Len(t, jobs[0].LastError, MaxLastErrorLen)
	assert.Equal(t, 2, jobs[0].Attempts)
	assert.Equal(t, OCRError, jobs[0].Status)
}

func TestFetchOCRJobsEmptyExts(t *testing.T) {
	store := setupTestDB(t)
	jobs, err := store.FetchOCRJobs(context.Background(), nil, 10, false)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestStatusCounts(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	setNow := fixedClock(store, 0)

	rows := []FileState{
		{Path: "/1", ConfigFingerprint: "a", Complete: true, UpdatedAt: 10},
		{Path: "/2", ConfigFingerprint: "a", Complete: false, UpdatedAt: 30},
		{Path: "/3", ConfigFingerprint: "b", Complete: true, UpdatedAt: 20},
		{Path: "/4", ConfigFingerprint: "a", Complete: true, DuplicateOf: "/1", UpdatedAt: 40},
	}
	for i := range rows {
		require.NoError(t, store.PutFileState(ctx, &rows[i]))
	}
	setNow(50)

	counts, err := store.StatusCounts(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, &StatusCounts{TotalFiles: 4, MatchingConfig: 3, IncompleteFiles: 1, DuplicateFiles: 1}, counts)

	times, err := store.RecentUpdateTimes(ctx, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{40, 30}, times)

	times, err = store.RecentUpdateTimes(ctx, "zzz", 5)
	require.NoError(t, err)
	assert.Empty(t, times)
}

func TestRunInTx(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	err := RunInTx(ctx, store, func(tx Tx) error {
		if err := tx.PutFileState(ctx, &FileState{Path: "/a", Complete: true}); err != nil {
			return err
		}
		return tx.SetMeta(ctx, MetaCollection, "c")
	})
	require.NoError(t, err)

	_, err = store.GetFileState(ctx, "/a")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = RunInTx(ctx, store, func(tx Tx) error {
		require.NoError(t, tx.PutFileState(ctx, &FileState{Path: "/b"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetFileState(ctx, "/b")
	assert.ErrorIs(t, err, ErrNotFound, "failed transaction is rolled back")
}

func TestTxRejectsNesting(t *testing.T) {
	store := setupTestDB(t)
	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.BeginTx(context.Background())
	assert.Error(t, err)
	assert.Error(t, tx.Close())
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.True(t, IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsBusy(errors.New("SQLITE_BUSY")))
	assert.False(t, IsBusy(errors.New("no such table")))
}
