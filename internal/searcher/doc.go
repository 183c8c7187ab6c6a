// Package searcher runs queries against the indexed corpus.
//
// Three modes are supported:
//   - Vector: embeds the query and asks the vector store for nearest neighbours
//   - FullText: queries the snippet store (FTS5, or LIKE when FTS5 is missing)
//   - Hybrid: runs both concurrently and merges them with Reciprocal Rank Fusion
//
// # Basic Usage
//
//	s := searcher.NewSearcher(qdrantClient, snippetStore, embedService)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "2023 tax return",
//	    Limit: 10,
//	    Mode:  searcher.SearchModeHybrid,
//	})
//	if err != nil {
//	    return err
//	}
//	return searcher.WriteJSONLines(os.Stdout, "2023 tax return", 10, resp)
//
// # Reciprocal Rank Fusion
//
//	For each result r in vector_results:
//	    rrf_score[r.point_id] += 1 / (k + r.rank)
//
//	For each result r in text_results:
//	    rrf_score[r.point_id] += 1 / (k + r.rank)
//
//	Sort by rrf_score descending
//
// Where k = 60 and ranks start at 1. RRF only looks at ranks, so cosine
// similarity and bm25 never need to be normalised against each other.
//
// Vector hits get their preview from the snippet store when it holds the
// chunk text; otherwise the payload preview is kept.
//
// # Caching
//
// Responses can be cached in an LRU keyed by query, mode and limit
// (UseCache). Long-running processes such as the MCP server call
// InvalidateCache after every index run.
package searcher
