package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexRootsTool returns the tool definition for index_roots
func indexRootsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_roots",
		Description: "Incrementally index local folders into the vector store. Unchanged files are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"roots": map[string]interface{}{
					"type":        "array",
					"description": "Absolute directory paths to index. Defaults to the configured roots (every Dropbox folder).",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}

// searchIndexTool returns the tool definition for search_index
func searchIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_index",
		Description: "Search indexed documents with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: vector (semantic), fulltext (snippet store keywords), or hybrid (both, fused by rank)",
					"enum":        []string{"vector", "fulltext", "hybrid"},
					"default":     "vector",
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Report indexing progress, throughput estimates and OCR queue counts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"windows": map[string]interface{}{
					"type":        "string",
					"description": "Comma-separated sample sizes for rate/ETA estimation (each > 1)",
					"default":     "100,200,400,800",
				},
			},
		},
	}
}
