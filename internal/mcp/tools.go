package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/darkangelpraha/dropindex/internal/indexer"
	"github.com/darkangelpraha/dropindex/internal/searcher"
	"github.com/darkangelpraha/dropindex/internal/status"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleIndexRoots handles the index_roots tool invocation
func (s *Server) handleIndexRoots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	requested, err := getStringSlice(args, "roots")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "roots must be an array of strings", map[string]interface{}{
			"param": "roots",
		})
	}
	for _, root := range requested {
		if err := validatePath(root); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid root", map[string]interface{}{
				"param":  "roots",
				"value":  root,
				"reason": err.Error(),
			})
		}
	}

	roots, err := s.cfg.ResolveRoots(requested)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "no roots to index", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := s.guard(ctx); errors.Is(err, indexer.ErrAlreadyRunning) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"error": err.Error(),
		})
	} else if err != nil {
		s.log.Warn("process guard unavailable", "error", err)
	}

	summary, err := s.indexer.Run(ctx, roots)
	if summary != nil {
		// points may have changed even when the run failed part way
		s.searcher.InvalidateCache()
	}
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		data := map[string]interface{}{"error": err.Error()}
		if summary != nil {
			data["summary"] = summary
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", data)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"roots":   roots,
		"summary": summary,
	})), nil
}

// handleSearchIndex handles the search_index tool invocation
func (s *Server) handleSearchIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "mode", string(searcher.SearchModeVector)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   args["mode"],
			"allowed": []string{"vector", "fulltext", "hybrid"},
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     mode,
		UseCache: true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	hits := make([]searcher.Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, searcher.NewHit(r))
	}
	response := map[string]interface{}{
		"query":     query,
		"limit":     limit,
		"mode":      resp.SearchMode,
		"ms":        resp.Duration.Milliseconds(),
		"cache_hit": resp.CacheHit,
		"results":   hits,
	}
	if len(resp.Warnings) > 0 {
		response["warnings"] = resp.Warnings
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	windows := status.DefaultWindows
	if raw := getStringDefault(args, "windows", ""); raw != "" {
		windows, err = status.ParseWindows(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid windows", map[string]interface{}{
				"param":  "windows",
				"reason": err.Error(),
			})
		}
	}

	report, err := status.Build(ctx, s.status, s.cfg.StateDB, windows)
	if errors.Is(err, status.ErrNotInitialized) {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"indexed": false,
			"db":      s.cfg.StateDB,
			"message": "No index run recorded yet. Use index_roots first.",
		})), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	windowOut := make([]map[string]interface{}, 0, len(report.Windows))
	for _, w := range report.Windows {
		entry := map[string]interface{}{"size": w.Size, "samples": w.Samples}
		if w.Valid {
			entry["rate_per_hour"] = w.RatePerHour
			entry["eta_days"] = finiteOrNil(w.ETADays)
		}
		windowOut = append(windowOut, entry)
	}
	queue := make(map[string]int, len(report.OCRQueue))
	for k, v := range report.OCRQueue {
		queue[string(k)] = v
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"indexed":          true,
		"db":               report.DB,
		"run_cfg_hash":     report.RunConfigHash,
		"total_files":      report.TotalFiles,
		"indexed_files":    report.IndexedFiles,
		"incomplete_files": report.IncompleteFiles,
		"duplicate_files":  report.DuplicateFiles,
		"remaining_files":  report.RemainingFiles(),
		"progress":         fmt.Sprintf("%.3f%%", report.Progress()),
		"windows":          windowOut,
		"ocr_queue":        queue,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the call arguments; a call without arguments yields an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// validatePath checks that a root is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// finiteOrNil keeps +Inf out of JSON, which cannot encode it
func finiteOrNil(f float64) interface{} {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return f
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: non-string element", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: not an array", key)
	}
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
