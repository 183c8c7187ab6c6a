// Package types provides shared records passed between the extractor, the
// embedding service, the stores and the search layer.
//
// # Core Types
//
// Chunk is one bounded piece of extracted text together with the hash of the
// exact text that was embedded:
//
//	chunk := types.NewChunk(0, 3, "Invoice 42")
//
// VectorPoint carries a deterministic id, the vector and a typed Payload so
// every required payload field is checked at compile time:
//
//	point := types.VectorPoint{
//	    ID:      id,
//	    Vector:  vec,
//	    Payload: types.NewPayload(path, size, mtime, types.ProvenancePDFText, chunk, 300),
//	}
//
// Provenance tags record which extraction strategy produced the text, which is
// the first thing to look at when a search result looks wrong.
//
// SearchResult is returned by vector, full-text and hybrid search.
package types
