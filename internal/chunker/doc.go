// Package chunker divides extracted text into overlapping fixed-size windows
// for embedding.
//
// # Basic Usage
//
//	c := chunker.New(chunker.WithSize(2000), chunker.WithOverlap(200), chunker.WithMaxChunks(32))
//	chunks, truncated := c.Chunk(text)
//
// Text that fits in one window comes back unchanged. Longer text is cut into
// windows of Size runes advancing by Size-Overlap, so a sentence that spans a
// boundary appears whole in at least one chunk when it is shorter than the
// overlap.
//
// The per-file cap bounds embedding cost. Content past the cap is dropped and
// Chunk reports truncated=true so the caller can log it.
//
// Fingerprint hashes a chunk sequence; the indexer stores it as the file's
// content fingerprint.
package chunker
