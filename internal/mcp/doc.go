// Package mcp implements the Model Context Protocol (MCP) server for dropindex.
//
// The server exposes three tools to MCP clients over stdio:
//   - index_roots: run an incremental index over the given (or configured) roots
//   - search_index: vector, fulltext or hybrid search over indexed chunks
//   - index_status: progress, throughput estimates and OCR queue counts
//
// # Protocol Overview
//
// MCP is JSON-RPC 2.0 over stdio:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout carries protocol messages only.
//
// # Tool: index_roots
//
//	Request:
//	{
//	  "name": "index_roots",
//	  "arguments": {"roots": ["/Users/me/Library/CloudStorage/Dropbox"]}
//	}
//
//	Response:
//	{
//	  "roots": ["/Users/me/Library/CloudStorage/Dropbox"],
//	  "summary": {"files_seen": 1200, "files_indexed": 14, "points_indexed": 61, ...}
//	}
//
// A run already active in the process (for example from watch mode) yields
// error -32002. Successful runs clear the search cache.
//
// # Tool: search_index
//
//	Request:
//	{
//	  "name": "search_index",
//	  "arguments": {"query": "lease agreement 2021", "limit": 5, "mode": "hybrid"}
//	}
//
// Each result carries score, rrf_score, path, chunk_index, chunk_total,
// source and a preview of at most 200 characters.
//
// # Tool: index_status
//
//	Request:
//	{
//	  "name": "index_status",
//	  "arguments": {"windows": "100,200,400,800"}
//	}
//
// # Error Codes
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32002  indexing already in progress
//	-32004  empty query
package mcp
