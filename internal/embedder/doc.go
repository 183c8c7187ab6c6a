// Package embedder converts text chunks into vectors.
//
// A Service wraps exactly one Provider per run: OpenAIProvider (cloud, one
// batched request per call) or OllamaProvider (local daemon, native batch
// endpoint with a bounded per-text fallback). Results come back per input
// slot, so a failure embedding one text never fails the rest of the batch.
//
// # Caching
//
// Texts are clamped to a maximum length and hashed; the hash keys an LRU
// cache so repeated text (boilerplate, duplicated attachments) is embedded
// once. Duplicate texts inside one batch are sent to the provider once.
//
// # Dimension
//
// DetectDimension embeds a constant bootstrap string; the indexer uses it to
// create or validate the vector collection.
//
// # Retries
//
// HTTP calls go through internal/retry: refused or reset connections,
// timeouts and 429/502/503/504 responses are retried with capped exponential
// backoff, everything else fails the slot immediately.
package embedder
