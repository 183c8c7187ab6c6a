package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultMaxChunks, c.MaxChunks())
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
		want    []string
	}{
		{name: "empty", size: 10, overlap: 2, text: "", want: nil},
		{name: "shorter than window", size: 10, overlap: 2, text: "hello", want: []string{"hello"}},
		{name: "exactly one window", size: 5, overlap: 2, text: "abcde", want: []string{"abcde"}},
		{name: "overlapping windows", size: 4, overlap: 2, text: "abcdefgh", want: []string{"abcd", "cdef", "efgh"}},
		{name: "no overlap", size: 3, overlap: 0, text: "abcdefg", want: []string{"abc", "def", "g"}},
		{name: "zero size disables splitting", size: 0, overlap: 0, text: "abcdef", want: []string{"abcdef"}},
		{name: "multibyte runes", size: 3, overlap: 1, text: "žluťoučký", want: []string{"žlu", "uťo", "ouč", "čký"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithSize(tt.size), WithOverlap(tt.overlap), WithMaxChunks(0))
			assert.Equal(t, tt.want, c.Split(tt.text))
		})
	}
}

func TestSplit_OverlapPreservesBoundary(t *testing.T) {
	text := strings.Repeat("a", 90) + "INVOICE-42" + strings.Repeat("b", 90)
	c := New(WithSize(100), WithOverlap(20), WithMaxChunks(0))

	chunks := c.Split(text)
	require.Len(t, chunks, 3)

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch, "INVOICE-42") {
			found = true
		}
	}
	assert.True(t, found, "phrase spanning the boundary must survive whole")
}

func TestSplit_OverlapClamped(t *testing.T) {
	c := New(WithSize(8), WithOverlap(8), WithMaxChunks(0))
	chunks := c.Split(strings.Repeat("x", 20))
	// overlap falls back to size/4 = 2, step 6
	assert.Len(t, chunks, 3)
}

func TestChunk_Cap(t *testing.T) {
	c := New(WithSize(10), WithOverlap(0), WithMaxChunks(3))

	chunks, truncated := c.Chunk(strings.Repeat("x", 100))
	assert.Len(t, chunks, 3)
	assert.True(t, truncated)

	chunks, truncated = c.Chunk(strings.Repeat("x", 25))
	assert.Len(t, chunks, 3)
	assert.False(t, truncated)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"ab", "c"})
	b := Fingerprint([]string{"a", "bc"})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Fingerprint([]string{"ab", "c"}))
	assert.Len(t, a, 64)
}
