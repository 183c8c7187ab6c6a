package searcher

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/darkangelpraha/dropindex/pkg/types"
)

// PreviewLimit caps previews in JSON-lines output
const PreviewLimit = 200

// Header is the first JSON line of search output
type Header struct {
	Query string     `json:"query"`
	Limit int        `json:"limit"`
	Mode  SearchMode `json:"mode"`
	MS    int64      `json:"ms"`
}

// Hit is one JSON line per search result
type Hit struct {
	Score      float64 `json:"score"`
	RRFScore   float64 `json:"rrf_score"`
	Path       string  `json:"path"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkTotal int     `json:"chunk_total"`
	Source     string  `json:"source"`
	Preview    string  `json:"preview"`
}

// NewHit converts a result into its output form
func NewHit(r types.SearchResult) Hit {
	return Hit{
		Score:      r.Score,
		RRFScore:   r.RRFScore,
		Path:       r.Path,
		ChunkIndex: r.ChunkIndex,
		ChunkTotal: r.ChunkTotal,
		Source:     r.Source,
		Preview:    ShortPreview(r.Preview),
	}
}

// ShortPreview collapses whitespace and cuts text to PreviewLimit runes plus "..."
func ShortPreview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	cut := types.Truncate(text, PreviewLimit)
	if len(cut) < len(text) {
		return cut + "..."
	}
	return cut
}

// WriteJSONLines writes the header line followed by one line per hit
func WriteJSONLines(w io.Writer, query string, limit int, resp *SearchResponse) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(Header{
		Query: query,
		Limit: limit,
		Mode:  resp.SearchMode,
		MS:    resp.Duration.Milliseconds(),
	}); err != nil {
		return err
	}
	for _, r := range resp.Results {
		if err := enc.Encode(NewHit(r)); err != nil {
			return err
		}
	}
	return nil
}
