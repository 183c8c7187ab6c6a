package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/indexer"
)

func newIndexCommand(a *app) *cobra.Command {
	var (
		force    bool
		maxFiles int
	)

	cmd := &cobra.Command{
		Use:   "index [roots...]",
		Short: "Incrementally index folders into Qdrant",
		Long: `Walks the given roots (default: configured roots, then every Dropbox
mount) and indexes new or changed files. A JSON summary is printed to stdout
when the run ends, also when it ends with an error.

Only one indexer runs at a time: if another "dropindex index" or
"dropindex watch" process is found the command logs and exits successfully. --force skips that check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !force {
				err := indexer.CheckNoOtherIndexer(ctx)
				if errors.Is(err, indexer.ErrAlreadyRunning) {
					a.log.Info("another indexer is already running; exiting", "error", err)
					return nil
				}
				if err != nil {
					a.log.Warn("process guard unavailable", "error", err)
				}
			}

			if cmd.Flags().Changed("max-files") {
				a.cfg.MaxFiles = maxFiles
			}

			roots, err := a.cfg.ResolveRoots(args)
			if err != nil {
				return err
			}

			s, err := a.buildStack(true)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			summary, runErr := a.newIndexer(s).Run(ctx, roots)
			if summary != nil {
				if err := writeJSONLine(cmd, summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip the check for another running indexer")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "stop after this many files (0 = unlimited)")
	return cmd
}

func writeJSONLine(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
