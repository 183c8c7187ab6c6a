package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/mcp"
)

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve index, search and status tools over MCP (stdio)",
		Long: `Starts a Model Context Protocol server on stdin/stdout exposing the tools
index_roots, search_index and index_status.

Client configuration:
  {
    "mcpServers": {
      "dropindex": {
        "command": "/path/to/dropindex",
        "args": ["mcp"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := a.buildStack(true)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			mcp.ServerVersion = Version
			server := mcp.NewServer(a.cfg, a.newIndexer(s), a.newSearcher(s), s.store, a.log)
			err = server.Serve(ctx)
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		},
	}
}
