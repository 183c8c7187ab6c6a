// Package indexer keeps a Qdrant collection in sync with local directory
// trees.
//
// # Basic Usage
//
//	idx := indexer.New(cfg, store, qdrant, embeddings,
//	    indexer.WithSnippets(snippets),
//	    indexer.WithLogger(log))
//
//	summary, err := idx.Run(ctx, roots)
//
// # Pipeline
//
// Each file goes through one state machine per run:
//
//  1. Excluded directories are pruned during the walk, excluded names skipped
//  2. Incremental check: size, mtime, run_cfg_hash and OCR sidecar signature
//     all match a complete state row
//  3. Deduplication: a content signature (size plus head and tail hashes)
//     maps to one canonical path; other paths are recorded as duplicates
//  4. Extract, chunk and embed the file synchronously
//  5. Buffer the file's points as a whole
//
// # Batch Flush
//
// When the buffer holds at least QDRANT_BATCH_SIZE points it is flushed in
// a fixed order:
//
//	upsert vectors -> upsert snippets -> commit file_state -> delete stale chunks
//
// A crash before the state commit leaves the files unrecorded, so the next
// run processes them again and overwrites the same deterministic point ids.
// Stale chunks of a file that shrank are only removed after the shorter
// version is stored.
//
// # Incomplete Files
//
// When any chunk of a file fails to embed, its row is written with
// complete=0 and the first error, so the next run retries it.
package indexer
