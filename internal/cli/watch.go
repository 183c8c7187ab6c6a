package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/indexer"
	"github.com/darkangelpraha/dropindex/internal/watcher"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		debounce time.Duration
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "Index once, then re-index whenever files change",
		Long: `Watches the roots recursively and starts an incremental run after the
tree has been quiet for the debounce period. Each run's summary is printed
as one JSON line. Stops on SIGINT/SIGTERM.

Refuses to start while another "dropindex index" or "dropindex watch"
process is running, unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !force {
				err := indexer.CheckNoOtherIndexer(ctx)
				if errors.Is(err, indexer.ErrAlreadyRunning) {
					return err
				}
				if err != nil {
					a.log.Warn("process guard unavailable", "error", err)
				}
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

			opts := []watcher.Option{
				watcher.WithLogger(a.log),
				watcher.WithOnRun(func(summary *indexer.Summary, _ error) {
					if summary != nil {
						_ = writeJSONLine(cmd, summary)
					}
				}),
			}
			if debounce > 0 {
				opts = append(opts, watcher.WithDebounce(debounce))
			}

			w, err := watcher.New(a.cfg, a.newIndexer(s), opts...)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			err = w.Watch(ctx, roots)
			if errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a run (default from config, 30s)")
	cmd.Flags().BoolVar(&force, "force", false, "skip the running-indexer check")
	return cmd
}
