// Package storage provides SQLite-based persistence for the indexer.
//
// Two database files are managed:
//   - the state database: file_state, meta, content_sig and ocr_queue
//   - the snippet database: chunk text with an FTS5 index for keyword search
//
// # State Database
//
// file_state records, per absolute path, the size, mtime and configuration
// fingerprint seen when the file was last written to the vector store, plus
// whether every chunk made it. A file is skipped when all of those still
// match:
//
//	st, err := store.GetFileState(ctx, path)
//	if err == nil && st.Unchanged(size, mtime, cfgHash, sidecarSig) {
//	    return nil
//	}
//
// content_sig maps a cheap content signature to the canonical path holding
// those bytes. ocr_queue tracks files waiting for OCR.
//
// # Transactions
//
// Batch commits go through RunInTx, which retries on lock contention:
//
//	err := storage.RunInTx(ctx, store, func(tx storage.Tx) error {
//	    for _, st := range states {
//	        if err := tx.PutFileState(ctx, st); err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	})
//
// # Build Tags
//
// The default build uses modernc.org/sqlite (no C compiler needed). Building
// with -tags "sqlite_cgo fts5" switches to github.com/mattn/go-sqlite3.
//
// When the driver lacks FTS5 the snippet database still works: the FTS
// migration is skipped and keyword search falls back to LIKE.
package storage
