package types

// SearchResult represents a single search hit with relevance information
type SearchResult struct {
	// Identification
	PointID    string
	Path       string
	ChunkIndex int
	ChunkTotal int
	Rank       int // Position in result set (1-based)

	// Scoring
	Score    float64 // Raw score from the producing backend (cosine or bm25)
	RRFScore float64 // Set only by hybrid fusion

	// Metadata
	Source  string // vector, fts, like or hybrid
	Origin  Provenance
	Preview string
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.PointID == "" {
		return ErrInvalidPointID
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.Path == "" {
		return ErrMissingPath
	}
	return nil
}
