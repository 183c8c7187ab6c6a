package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/searcher"
)

func newSearchCommand(a *app) *cobra.Command {
	var (
		limit  int
		mode   string
		fts    bool
		hybrid bool
	)

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search indexed documents",
		Long: `Runs a vector, fulltext or hybrid search. Hybrid runs both and merges
the lists with reciprocal rank fusion.

Output is JSON lines: a header {query, limit, mode, ms} followed by one
object per hit.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errors.New("missing query")
			}

			switch {
			case hybrid:
				mode = string(searcher.SearchModeHybrid)
			case fts:
				mode = string(searcher.SearchModeFullText)
			}
			searchMode, err := searcher.ParseMode(mode)
			if err != nil {
				return err
			}

			s, err := a.buildStack(searchMode != searcher.SearchModeFullText)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			resp, err := a.newSearcher(s).Search(cmd.Context(), searcher.SearchRequest{
				Query: query,
				Limit: limit,
				Mode:  searchMode,
			})
			if err != nil {
				return err
			}
			for _, w := range resp.Warnings {
				a.log.Warn("partial search result", "warning", w)
			}
			return searcher.WriteJSONLines(cmd.OutOrStdout(), query, limit, resp)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVar(&mode, "mode", "vector", "search mode: vector, fulltext or hybrid")
	cmd.Flags().BoolVar(&fts, "fts", false, "shorthand for --mode fulltext")
	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "shorthand for --mode hybrid")
	return cmd
}
