package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
)

// Provenance names the extraction strategy that produced a chunk's text
type Provenance string

const (
	ProvenanceText          Provenance = "text"
	ProvenanceTextSampled   Provenance = "text sampled windows"
	ProvenancePDFText       Provenance = "pdf text extraction"
	ProvenancePDFInternal   Provenance = "pdf internal parser"
	ProvenanceOCRSidecar    Provenance = "ocr sidecar"
	ProvenanceDocument      Provenance = "ooxml document"
	ProvenanceSpreadsheet   Provenance = "ooxml spreadsheet"
	ProvenanceFilename      Provenance = "filename context"
	ProvenanceUnknownFormat Provenance = "unsupported format"
)

// Chunk is a bounded-size piece of a file's extracted text, the unit that gets one vector
type Chunk struct {
	Index int
	Total int
	Text  string
	// TextHash is the sha256 of the exact text sent to the embedding provider
	TextHash string
}

// NewChunk builds a chunk and computes its text hash
func NewChunk(index, total int, text string) Chunk {
	c := Chunk{Index: index, Total: total, Text: text}
	c.ComputeTextHash()
	return c
}

// ComputeTextHash computes the SHA-256 hash of the chunk text
func (c *Chunk) ComputeTextHash() {
	sum := sha256.Sum256([]byte(c.Text))
	c.TextHash = hex.EncodeToString(sum[:])
}

// Validate checks if the chunk is valid
func (c *Chunk) Validate() error {
	if c.Text == "" {
		return ErrEmptyContent
	}
	if c.Index < 0 || c.Total <= 0 || c.Index >= c.Total {
		return ErrInvalidChunkIndex
	}
	if c.TextHash == "" {
		return errors.New("text hash must be computed")
	}
	return nil
}

// Payload is the metadata stored next to each vector
type Payload struct {
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	Mtime      int64      `json:"mtime"`
	Source     Provenance `json:"source"`
	ChunkIndex int        `json:"chunk_index"`
	ChunkTotal int        `json:"chunk_total"`
	TextHash   string     `json:"text_hash"`
	Preview    string     `json:"preview"`
}

// NewPayload fills the per-file fields of a payload for one chunk
func NewPayload(path string, size, mtime int64, source Provenance, chunk Chunk, previewChars int) Payload {
	return Payload{
		Path:       path,
		Name:       filepath.Base(path),
		Size:       size,
		Mtime:      mtime,
		Source:     source,
		ChunkIndex: chunk.Index,
		ChunkTotal: chunk.Total,
		TextHash:   chunk.TextHash,
		Preview:    Truncate(chunk.Text, previewChars),
	}
}

// VectorPoint is one (id, vector, payload) record written to the vector store.
// Text travels along for the snippet store and is never sent to the vector store.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload Payload
	Text    string
}

// Validate checks that all required payload fields are present
func (p *VectorPoint) Validate() error {
	if p.ID == "" {
		return ErrInvalidPointID
	}
	if len(p.Vector) == 0 {
		return ErrEmptyVector
	}
	if p.Payload.Path == "" {
		return ErrMissingPath
	}
	if p.Payload.ChunkTotal <= 0 || p.Payload.ChunkIndex < 0 || p.Payload.ChunkIndex >= p.Payload.ChunkTotal {
		return ErrInvalidChunkIndex
	}
	return nil
}

// Truncate cuts s to at most n runes. n <= 0 returns s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
