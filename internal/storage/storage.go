package storage

import (
	"context"
)

// FileState is the incremental-indexing record for one absolute path.
type FileState struct {
	Path               string
	Size               int64
	Mtime              int64
	ConfigFingerprint  string
	ContentFingerprint string
	// SidecarSig is "size:mtime" of the file's OCR sidecar, empty when none
	SidecarSig string
	ChunkCount int
	Complete   bool
	LastError  string
	// DuplicateOf is the canonical path when this file was skipped as a duplicate
	DuplicateOf string
	UpdatedAt   int64
}

// Unchanged reports whether the file can be skipped: same size, mtime,
// configuration and sidecar, and the previous run finished it.
func (f *FileState) Unchanged(size, mtime int64, configFingerprint, sidecarSig string) bool {
	return f.Complete &&
		f.Size == size &&
		f.Mtime == mtime &&
		f.ConfigFingerprint == configFingerprint &&
		f.SidecarSig == sidecarSig
}

// ContentSignature maps a byte-content signature to its canonical path
type ContentSignature struct {
	Signature string
	Path      string
	FirstSeen int64
	LastSeen  int64
}

// OCRStatus is the lifecycle state of an OCR queue entry
type OCRStatus string

const (
	OCRPending OCRStatus = "pending"
	OCRRunning OCRStatus = "running"
	OCRDone    OCRStatus = "done"
	OCRError   OCRStatus = "error"
	OCRMissing OCRStatus = "missing"
)

// OCRJob is one file waiting for (or finished with) optical character recognition
type OCRJob struct {
	Path      string
	Ext       string
	Size      int64
	Mtime     int64
	Status    OCRStatus
	Attempts  int
	LastError string
	UpdatedAt int64
}

// StatusCounts is the bulk scan used by the status reporter
type StatusCounts struct {
	TotalFiles      int
	MatchingConfig  int
	IncompleteFiles int
	DuplicateFiles  int
}

// Store defines the interface for the persistent indexing state
type Store interface {
	// File state operations
	GetFileState(ctx context.Context, path string) (*FileState, error)
	PutFileState(ctx context.Context, state *FileState) error
	DeleteFileState(ctx context.Context, path string) error

	// Run metadata
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Content signature operations
	GetSignature(ctx context.Context, sig string) (*ContentSignature, error)
	PutSignature(ctx context.Context, sig, path string) error
	TouchSignature(ctx context.Context, sig string) error

	// OCR queue operations
	EnqueueOCR(ctx context.Context, job *OCRJob) error
	FetchOCRJobs(ctx context.Context, exts []string, limit int, force bool) ([]*OCRJob, error)
	UpdateOCRJob(ctx context.Context, path string, status OCRStatus, attempts int, lastError string) error
	OCRQueueCounts(ctx context.Context) (map[OCRStatus]int, error)

	// Status scans
	StatusCounts(ctx context.Context, configFingerprint string) (*StatusCounts, error)
	RecentUpdateTimes(ctx context.Context, configFingerprint string, n int) ([]int64, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Run metadata keys
const (
	MetaRunConfigHash = "run_cfg_hash"
	MetaVectorSize    = "vector_size"
	MetaCollection    = "collection"
)
