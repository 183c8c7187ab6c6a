package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunk(t *testing.T) {
	c := NewChunk(1, 3, "hello")
	assert.Equal(t, 1, c.Index)
	assert.Equal(t, 3, c.Total)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", c.TextHash)
	require.NoError(t, c.Validate())

	other := NewChunk(0, 1, "hello ")
	assert.NotEqual(t, c.TextHash, other.TextHash)
}

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name  string
		chunk Chunk
		want  error
	}{
		{"empty text", NewChunk(0, 1, ""), ErrEmptyContent},
		{"negative index", NewChunk(-1, 1, "x"), ErrInvalidChunkIndex},
		{"index past total", NewChunk(2, 2, "x"), ErrInvalidChunkIndex},
		{"zero total", NewChunk(0, 0, "x"), ErrInvalidChunkIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.chunk.Validate(), tt.want)
		})
	}

	t.Run("missing hash", func(t *testing.T) {
		c := Chunk{Index: 0, Total: 1, Text: "x"}
		assert.Error(t, c.Validate())
	})
}

func TestNewPayload(t *testing.T) {
	chunk := NewChunk(2, 5, strings.Repeat("ab", 10))
	p := NewPayload("/Dropbox/Docs/report.pdf", 1234, 99, ProvenancePDFText, chunk, 6)

	assert.Equal(t, "/Dropbox/Docs/report.pdf", p.Path)
	assert.Equal(t, "report.pdf", p.Name)
	assert.Equal(t, int64(1234), p.Size)
	assert.Equal(t, int64(99), p.Mtime)
	assert.Equal(t, ProvenancePDFText, p.Source)
	assert.Equal(t, 2, p.ChunkIndex)
	assert.Equal(t, 5, p.ChunkTotal)
	assert.Equal(t, chunk.TextHash, p.TextHash)
	assert.Equal(t, "ababab", p.Preview)
}

func TestVectorPointValidate(t *testing.T) {
	valid := VectorPoint{
		ID:      "id",
		Vector:  []float32{0.1},
		Payload: NewPayload("/a.txt", 1, 1, ProvenanceText, NewChunk(0, 1, "a"), 10),
	}
	require.NoError(t, valid.Validate())

	noID := valid
	noID.ID = ""
	assert.ErrorIs(t, noID.Validate(), ErrInvalidPointID)

	noVec := valid
	noVec.Vector = nil
	assert.ErrorIs(t, noVec.Validate(), ErrEmptyVector)

	noPath := valid
	noPath.Payload.Path = ""
	assert.ErrorIs(t, noPath.Validate(), ErrMissingPath)

	badIdx := valid
	badIdx.Payload.ChunkIndex = 1
	assert.ErrorIs(t, badIdx.Validate(), ErrInvalidChunkIndex)
}

func TestSearchResultValidate(t *testing.T) {
	r := SearchResult{PointID: "p", Path: "/a", Rank: 1}
	require.NoError(t, r.Validate())

	r.Rank = 0
	assert.ErrorIs(t, r.Validate(), ErrInvalidRank)

	r = SearchResult{Path: "/a", Rank: 1}
	assert.ErrorIs(t, r.Validate(), ErrInvalidPointID)

	r = SearchResult{PointID: "p", Rank: 1}
	assert.ErrorIs(t, r.Validate(), ErrMissingPath)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "žlu", Truncate("žluťoučký", 3))
	assert.Equal(t, "", Truncate("", 5))
}
