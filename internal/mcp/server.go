package mcp

import (
	"context"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/internal/indexer"
	"github.com/darkangelpraha/dropindex/internal/logger"
	"github.com/darkangelpraha/dropindex/internal/searcher"
	"github.com/darkangelpraha/dropindex/internal/status"
)

const (
	// ServerName is the MCP server name
	ServerName = "dropindex"
)

// ServerVersion is reported to clients during initialization
var ServerVersion = "dev"

// IndexRunner performs an incremental index run
type IndexRunner interface {
	Run(ctx context.Context, roots []string) (*indexer.Summary, error)
}

// Searcher answers queries and drops cached answers after index runs
type Searcher interface {
	Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error)
	InvalidateCache()
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      config.Config
	indexer  IndexRunner
	searcher Searcher
	status   status.Source
	log      *logger.Logger

	// guard reports another indexer process; index_roots refuses to start then
	guard func(ctx context.Context) error
}

// NewServer creates a new MCP server instance with its tools registered
func NewServer(cfg config.Config, idx IndexRunner, srch Searcher, st status.Source, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		cfg:      cfg,
		indexer:  idx,
		searcher: srch,
		status:   st,
		log:      log,
		guard:    indexer.CheckNoOtherIndexer,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO runs the MCP protocol over the given streams
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	s.log.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexRootsTool(), s.handleIndexRoots)
	s.mcp.AddTool(searchIndexTool(), s.handleSearchIndex)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
}
