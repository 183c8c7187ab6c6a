package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/darkangelpraha/dropindex/internal/chunker"
	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/internal/dedup"
	"github.com/darkangelpraha/dropindex/internal/embedder"
	"github.com/darkangelpraha/dropindex/internal/extractor"
	"github.com/darkangelpraha/dropindex/internal/logger"
	"github.com/darkangelpraha/dropindex/internal/storage"
	"github.com/darkangelpraha/dropindex/internal/vectorstore"
	"github.com/darkangelpraha/dropindex/pkg/types"
)

var (
	// ErrIndexInProgress is returned when a run is already active in this process
	ErrIndexInProgress = errors.New("indexing already in progress")
	// ErrAlreadyRunning is returned when another indexer process was found
	ErrAlreadyRunning = errors.New("another indexer process is running")
)

// progressEvery is how often (in files seen) a progress line is logged
const progressEvery = 1000

// Embedder turns chunk texts into vectors, one result per text
type Embedder interface {
	Embed(ctx context.Context, texts []string) []embedder.Result
	DetectDimension(ctx context.Context) (int, error)
}

// VectorStore is the write side of the vector database
type VectorStore interface {
	EnsureCollection(ctx context.Context, vectorSize int) error
	CreatePayloadIndexes(ctx context.Context) error
	Upsert(ctx context.Context, points []types.VectorPoint) error
	DeleteByPath(ctx context.Context, path string, minChunk int) error
	Collection() string
	URL() string
}

// SnippetWriter mirrors point text into the full-text store
type SnippetWriter interface {
	UpsertPoints(ctx context.Context, points []types.VectorPoint) error
	DeleteFrom(ctx context.Context, path string, minChunk int) (int64, error)
}

// Extractor turns a file into chunks
type Extractor interface {
	Extract(ctx context.Context, path string, info fs.FileInfo) extractor.Result
}

// Indexer walks the roots and keeps the vector store in sync with them:
// extract -> embed -> upsert -> state
type Indexer struct {
	cfg      config.Config
	store    storage.Store
	vectors  VectorStore
	snippets SnippetWriter
	embed    Embedder
	extract  Extractor
	log      *logger.Logger
	audit    *logger.Logger

	lock IndexLock
}

// Option customizes an Indexer
type Option func(*Indexer)

// WithSnippets mirrors every flushed batch into a snippet store
func WithSnippets(s SnippetWriter) Option {
	return func(idx *Indexer) { idx.snippets = s }
}

// WithExtractor replaces the default extractor
func WithExtractor(e Extractor) Option {
	return func(idx *Indexer) { idx.extract = e }
}

// WithLogger sets the diagnostic logger
func WithLogger(l *logger.Logger) Option {
	return func(idx *Indexer) { idx.log = l }
}

// WithAudit writes one record per flushed batch to l
func WithAudit(l *logger.Logger) Option {
	return func(idx *Indexer) { idx.audit = l }
}

// New creates a new Indexer instance
func New(cfg config.Config, store storage.Store, vectors VectorStore, embed Embedder, opts ...Option) *Indexer {
	idx := &Indexer{
		cfg:     cfg,
		store:   store,
		vectors: vectors,
		embed:   embed,
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.log == nil {
		idx.log = logger.NewNop()
	}
	if idx.audit == nil {
		idx.audit = logger.NewNop()
	}
	if idx.extract == nil {
		idx.extract = extractor.New(cfg, idx.log)
	}
	return idx
}

// Summary is printed as JSON at the end of every run
type Summary struct {
	PointsIndexed      int     `json:"points_indexed"`
	FilesSeen          int     `json:"files_seen"`
	FilesIndexed       int     `json:"files_indexed"`
	FilesIncomplete    int     `json:"files_incomplete"`
	Skipped            int     `json:"skipped"`
	SkippedIncremental int     `json:"skipped_incremental"`
	SkippedDedup       int     `json:"skipped_dedup"`
	SkippedExcluded    int     `json:"skipped_excluded"`
	EmbedErrors        int     `json:"embed_errors"`
	OCREnqueued        int     `json:"ocr_enqueued"`
	TruncatedFiles     int     `json:"truncated_files"`
	SnippetErrors      int     `json:"snippet_errors"`
	StaleDeletes       int     `json:"stale_deletes"`
	Batches            int     `json:"batches"`
	Seconds            float64 `json:"seconds"`
	Collection         string  `json:"collection"`
	Qdrant             string  `json:"qdrant"`
}

// Run indexes every file under roots. The returned summary is non-nil
// whenever the run started, also when it ended with an error.
func (idx *Indexer) Run(ctx context.Context, roots []string) (*Summary, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	sum := &Summary{Collection: idx.vectors.Collection(), Qdrant: idx.vectors.URL()}

	fingerprint, err := idx.prepare(ctx)
	if err != nil {
		return sum, err
	}

	r := &run{
		idx:         idx,
		sum:         sum,
		fingerprint: fingerprint,
		resolver:    dedup.NewResolver(roots, idx.cfg.DedupHashBytes),
	}
	err = r.walk(ctx, roots)
	if err == nil {
		err = r.flush(ctx)
	}
	sum.Seconds = time.Since(start).Seconds()

	if err != nil {
		return sum, err
	}
	idx.log.Info("indexing finished",
		"files_seen", sum.FilesSeen,
		"files_indexed", sum.FilesIndexed,
		"points", sum.PointsIndexed,
		"seconds", fmt.Sprintf("%.1f", sum.Seconds))
	return sum, nil
}

// prepare sizes the collection and records the run configuration
func (idx *Indexer) prepare(ctx context.Context) (string, error) {
	size := idx.cfg.VectorSize
	if size == 0 {
		detected, err := idx.embed.DetectDimension(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to detect vector size: %w", err)
		}
		size = detected
	}
	if err := idx.vectors.EnsureCollection(ctx, size); err != nil {
		return "", fmt.Errorf("failed to prepare collection: %w", err)
	}
	if idx.cfg.CreatePayloadIndexes {
		if err := idx.vectors.CreatePayloadIndexes(ctx); err != nil {
			idx.log.Warn("payload index creation failed", "error", err)
		}
	}

	fingerprint := idx.cfg.Fingerprint()
	meta := []struct{ key, value string }{
		{storage.MetaRunConfigHash, fingerprint},
		{storage.MetaVectorSize, fmt.Sprint(size)},
		{storage.MetaCollection, idx.vectors.Collection()},
	}
	for _, m := range meta {
		cur, err := idx.store.GetMeta(ctx, m.key)
		if err == nil && cur == m.value {
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return "", err
		}
		if err := idx.store.SetMeta(ctx, m.key, m.value); err != nil {
			return "", err
		}
	}
	idx.log.Info("indexing started",
		"collection", idx.vectors.Collection(),
		"vector_size", size,
		"run_cfg_hash", fingerprint[:12])
	return fingerprint, nil
}

// pendingFile is one processed file waiting in the batch buffer
type pendingFile struct {
	state  storage.FileState
	points []types.VectorPoint
	// staleFrom is the first chunk index to delete after the flush, -1 for none
	staleFrom int
	// prevChunks is the chunk count recorded by the previous run
	prevChunks int
}

// markIncomplete leaves a file for the next run to retry. Chunks past the
// new total may still exist, so the larger count is kept.
func (f *pendingFile) markIncomplete(err error) {
	f.state.Complete = false
	f.state.LastError = types.Truncate(err.Error(), storage.MaxLastErrorLen)
	f.state.ChunkCount = max(f.state.ChunkCount, f.prevChunks)
	f.staleFrom = -1
}

// run is the state of a single Run call
type run struct {
	idx         *Indexer
	sum         *Summary
	fingerprint string
	resolver    *dedup.Resolver

	processed int
	stopped   bool

	pending       []pendingFile
	pendingPoints int
}

func (r *run) walk(ctx context.Context, roots []string) error {
	cfg := r.idx.cfg
	for _, root := range roots {
		if r.stopped {
			break
		}
		top := config.WalkRoot(root)
		err := filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				r.idx.log.Warn("walk error", "path", path, "error", err)
				if d != nil && d.IsDir() && path != top {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != top && cfg.IsExcludedDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if cfg.IsExcludedFile(d.Name()) {
				r.sum.SkippedExcluded++
				r.sum.Skipped++
				return nil
			}

			info, err := d.Info()
			if err != nil {
				// removed between listing and stat
				return nil
			}
			r.sum.FilesSeen++
			if r.sum.FilesSeen%progressEvery == 0 {
				r.idx.log.Info("progress",
					"files_seen", r.sum.FilesSeen,
					"files_indexed", r.sum.FilesIndexed,
					"skipped", r.sum.Skipped)
			}

			if err := r.processFile(ctx, path, info); err != nil {
				return err
			}
			if cfg.MaxFiles > 0 && r.processed >= cfg.MaxFiles {
				r.idx.log.Info("max files reached", "max_files", cfg.MaxFiles)
				r.stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// processFile moves one file through the per-file state machine
func (r *run) processFile(ctx context.Context, path string, info fs.FileInfo) error {
	cfg := r.idx.cfg
	store := r.idx.store
	size, mtime := info.Size(), info.ModTime().Unix()
	sidecarSig := extractor.SidecarSignature(cfg.SidecarDir, path)

	prev, err := store.GetFileState(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		prev = nil
	} else if err != nil {
		return err
	}

	if prev != nil && prev.Unchanged(size, mtime, r.fingerprint, sidecarSig) {
		// a duplicate whose canonical copy is gone must be looked at again
		if prev.DuplicateOf == "" || r.canonicalHolds(prev.DuplicateOf, path, size) {
			r.sum.SkippedIncremental++
			r.sum.Skipped++
			return nil
		}
	}

	if cfg.DedupFiles {
		skip, err := r.checkDuplicate(ctx, path, size, mtime, sidecarSig, prev)
		if err != nil || skip {
			return err
		}
	}

	r.processed++
	res := r.idx.extract.Extract(ctx, path, info)
	if res.Truncated {
		r.sum.TruncatedFiles++
		r.idx.log.Warn("chunk cap reached, trailing content dropped",
			"path", path, "kept", len(res.Chunks), "max_chunks", cfg.MaxChunksPerFile)
	}

	switch res.Outcome {
	case extractor.Deferred:
		ext := strings.ToLower(filepath.Ext(path))
		if cfg.IsOCRExt(ext) {
			job := &storage.OCRJob{Path: path, Ext: ext, Size: size, Mtime: mtime}
			if err := store.EnqueueOCR(ctx, job); err != nil {
				return err
			}
			r.sum.OCREnqueued++
		}
	case extractor.Failed:
		r.idx.log.Debug("extraction degraded to file name", "path", path, "reason", res.Reason)
	}

	entry := r.embedFile(ctx, path, size, mtime, res)
	entry.state.SidecarSig = sidecarSig
	if res.Outcome == extractor.Failed && entry.state.LastError == "" {
		entry.state.LastError = res.Reason
	}

	prevChunks := 0
	if prev != nil && prev.DuplicateOf == "" {
		prevChunks = prev.ChunkCount
	}
	entry.prevChunks = prevChunks
	total := len(res.Chunks)
	if entry.state.Complete {
		entry.state.ChunkCount = total
		if prevChunks > total {
			entry.staleFrom = total
		}
	} else {
		// chunks past total may still exist from the previous version
		entry.state.ChunkCount = max(total, prevChunks)
	}

	r.pending = append(r.pending, entry)
	r.pendingPoints += len(entry.points)
	if r.pendingPoints >= cfg.BatchSize {
		return r.flush(ctx)
	}
	return nil
}

// checkDuplicate resolves the file's content signature. When another path
// owns it the file is recorded as a duplicate and its own points removed.
func (r *run) checkDuplicate(ctx context.Context, path string, size, mtime int64, sidecarSig string, prev *storage.FileState) (bool, error) {
	sig, err := dedup.Signature(path, size, r.idx.cfg.DedupHashBytes)
	if err != nil {
		r.idx.log.Debug("content signature failed", "path", path, "error", err)
		return false, nil
	}

	decision, err := r.resolver.Resolve(ctx, r.idx.store, sig, path)
	if err != nil {
		return false, err
	}
	if decision.Promoted {
		r.idx.log.Info("canonical copy promoted", "path", path, "previous", decision.Previous)
	}
	if !decision.Duplicate(path) {
		return false, nil
	}

	// the canonical copy may still sit in the unflushed buffer, so the
	// duplicate's state waits for the same flush
	if prev != nil && prev.DuplicateOf == "" {
		if err := r.deleteFrom(ctx, path, 0); err != nil {
			// no state row yet, so the next run checks this file again
			r.idx.log.Warn("failed to remove points of new duplicate", "path", path, "error", err)
			r.sum.SkippedDedup++
			r.sum.Skipped++
			return true, nil
		}
	}
	r.pending = append(r.pending, pendingFile{
		state: storage.FileState{
			Path:              path,
			Size:              size,
			Mtime:             mtime,
			ConfigFingerprint: r.fingerprint,
			SidecarSig:        sidecarSig,
			Complete:          true,
			DuplicateOf:       decision.Canonical,
		},
		staleFrom: -1,
	})
	r.idx.audit.Info("batch",
		"status", "dedup_skip",
		"count", 1,
		"first_path", path,
		"last_path", decision.Canonical)
	r.sum.SkippedDedup++
	r.sum.Skipped++
	return true, nil
}

// canonicalHolds reports whether the canonical copy of a recorded duplicate
// still carries the duplicate's bytes. An edited canonical releases it.
func (r *run) canonicalHolds(canonical, path string, size int64) bool {
	sig, err := dedup.Signature(path, size, r.idx.cfg.DedupHashBytes)
	if err != nil {
		return false
	}
	return r.resolver.Live(canonical, sig)
}

// embedFile embeds the chunks of one file and assembles its points.
// Slots that failed to embed leave the file incomplete.
func (r *run) embedFile(ctx context.Context, path string, size, mtime int64, res extractor.Result) pendingFile {
	cfg := r.idx.cfg
	entry := pendingFile{
		state: storage.FileState{
			Path:               path,
			Size:               size,
			Mtime:              mtime,
			ConfigFingerprint:  r.fingerprint,
			ContentFingerprint: chunker.Fingerprint(res.Chunks),
		},
		staleFrom: -1,
	}

	results := r.idx.embed.Embed(ctx, res.Chunks)
	total := len(res.Chunks)
	var firstErr error
	for i, text := range res.Chunks {
		var out embedder.Result
		if i < len(results) {
			out = results[i]
		} else {
			out.Err = fmt.Errorf("%w: missing result", embedder.ErrProviderFailed)
		}
		if out.Err != nil || out.Embedding == nil {
			r.sum.EmbedErrors++
			if firstErr == nil {
				firstErr = out.Err
				if firstErr == nil {
					firstErr = embedder.ErrProviderFailed
				}
			}
			continue
		}

		chunk := types.NewChunk(i, total, text)
		if out.Embedding.Hash != "" {
			chunk.TextHash = out.Embedding.Hash
		}
		entry.points = append(entry.points, types.VectorPoint{
			ID:      vectorstore.PointID(path, i),
			Vector:  out.Embedding.Vector,
			Payload: types.NewPayload(path, size, mtime, res.Provenance, chunk, cfg.PreviewChars),
			Text:    text,
		})
	}

	entry.state.Complete = firstErr == nil
	if firstErr != nil {
		entry.state.LastError = types.Truncate(firstErr.Error(), storage.MaxLastErrorLen)
		r.idx.log.Warn("embedding failed for some chunks",
			"path", path, "failed", total-len(entry.points), "total", total, "error", firstErr)
	}
	return entry
}

// flush writes the buffered files: vectors, then snippets, then state,
// then stale chunk deletes. A crash before the state commit only causes
// the batch to be reprocessed.
func (r *run) flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = nil
	r.pendingPoints = 0
	r.sum.Batches++
	batchID := r.sum.Batches

	var points []types.VectorPoint
	for _, f := range batch {
		points = append(points, f.points...)
	}
	firstPath, lastPath := batch[0].state.Path, batch[len(batch)-1].state.Path

	if len(points) > 0 {
		if err := r.idx.vectors.Upsert(ctx, points); err != nil {
			r.idx.audit.Info("batch",
				"batch_id", batchID, "status", "error", "count", len(points),
				"first_path", firstPath, "last_path", lastPath, "error", err.Error())
			return fmt.Errorf("failed to upsert batch %d: %w", batchID, err)
		}
		if r.idx.snippets != nil {
			if err := r.idx.snippets.UpsertPoints(ctx, points); err != nil {
				r.idx.log.Warn("snippet upsert failed, files left for retry", "batch_id", batchID, "error", err)
				r.sum.SnippetErrors++
				for i := range batch {
					if len(batch[i].points) > 0 {
						batch[i].markIncomplete(fmt.Errorf("snippet upsert: %w", err))
					}
				}
			}
		}
	}

	err := storage.RunInTx(ctx, r.idx.store, func(tx storage.Tx) error {
		for i := range batch {
			if err := tx.PutFileState(ctx, &batch[i].state); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit state for batch %d: %w", batchID, err)
	}

	// the committed rows already carry the new chunk count; a failed delete
	// rewrites its row as incomplete so the next run deletes again
	for i := range batch {
		f := &batch[i]
		if f.state.DuplicateOf != "" {
			continue
		}
		if f.staleFrom >= 0 {
			if err := r.deleteFrom(ctx, f.state.Path, f.staleFrom); err != nil {
				r.idx.log.Warn("stale chunk delete failed, file left for retry",
					"path", f.state.Path, "min_chunk", f.staleFrom, "error", err)
				f.markIncomplete(fmt.Errorf("stale chunk delete: %w", err))
				if err := r.idx.store.PutFileState(ctx, &f.state); err != nil {
					return fmt.Errorf("failed to mark %s for retry: %w", f.state.Path, err)
				}
			} else {
				r.sum.StaleDeletes++
			}
		}
		if f.state.Complete {
			r.sum.FilesIndexed++
		} else {
			r.sum.FilesIncomplete++
		}
	}
	r.sum.PointsIndexed += len(points)

	r.idx.audit.Info("batch",
		"batch_id", batchID, "status", "ok", "count", len(points),
		"first_path", firstPath, "last_path", lastPath)
	r.idx.log.Debug("batch flushed", "batch_id", batchID, "files", len(batch), "points", len(points))
	return nil
}

// deleteFrom removes a path's chunks from minChunk on from both stores
func (r *run) deleteFrom(ctx context.Context, path string, minChunk int) error {
	if err := r.idx.vectors.DeleteByPath(ctx, path, minChunk); err != nil {
		return err
	}
	if r.idx.snippets != nil {
		if _, err := r.idx.snippets.DeleteFrom(ctx, path, minChunk); err != nil {
			return fmt.Errorf("snippets: %w", err)
		}
	}
	return nil
}
