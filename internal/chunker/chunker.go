package chunker

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	// DefaultChunkSize is the window length in characters
	DefaultChunkSize = 2000

	// DefaultOverlap is the number of characters shared by neighbouring windows
	DefaultOverlap = 200

	// DefaultMaxChunks caps the chunks produced for one file
	DefaultMaxChunks = 32
)

// Chunker splits text into overlapping fixed-size windows
type Chunker struct {
	size      int
	overlap   int
	maxChunks int
}

// Option configures a Chunker
type Option func(*Chunker)

// WithSize sets the window length in characters
func WithSize(n int) Option {
	return func(c *Chunker) { c.size = n }
}

// WithOverlap sets the overlap between consecutive windows
func WithOverlap(n int) Option {
	return func(c *Chunker) { c.overlap = n }
}

// WithMaxChunks caps the number of chunks returned by Chunk. Zero disables the cap.
func WithMaxChunks(n int) Option {
	return func(c *Chunker) { c.maxChunks = n }
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:      DefaultChunkSize,
		overlap:   DefaultOverlap,
		maxChunks: DefaultMaxChunks,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap < 0 {
		c.overlap = 0
	}
	// an overlap as large as the window would never advance
	if c.size > 0 && c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the configured window length
func (c *Chunker) Size() int { return c.size }

// MaxChunks returns the per-file cap
func (c *Chunker) MaxChunks() int { return c.maxChunks }

// Split slides the window across text without applying the per-file cap.
// Text no longer than one window is returned unchanged as a single chunk.
// Lengths are counted in runes so multi-byte characters are never cut.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if c.size <= 0 || len(runes) <= c.size {
		return []string{text}
	}

	step := max(c.size-c.overlap, 1)
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Chunk splits text and applies the per-file cap. truncated reports whether
// content beyond the cap was dropped.
func (c *Chunker) Chunk(text string) (chunks []string, truncated bool) {
	chunks = c.Split(text)
	return c.Cap(chunks)
}

// Cap trims chunks to the per-file limit
func (c *Chunker) Cap(chunks []string) ([]string, bool) {
	if c.maxChunks > 0 && len(chunks) > c.maxChunks {
		return chunks[:c.maxChunks], true
	}
	return chunks, false
}

// Fingerprint hashes the ordered chunk sequence. Each chunk is followed by a
// NUL byte so ["ab","c"] and ["a","bc"] differ.
func Fingerprint(chunks []string) string {
	h := sha256.New()
	for _, c := range chunks {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
