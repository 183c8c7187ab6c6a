package cli

import (
	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/status"
)

func newStatusCommand(a *app) *cobra.Command {
	var (
		db      string
		windows string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show indexing progress from the state database",
		Long: `Prints key=value lines: totals, progress, and per window the recent
throughput and estimated days to completion.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sizes, err := status.ParseWindows(windows)
			if err != nil {
				return err
			}
			if db != "" {
				a.cfg.StateDB = db
			}
			if err := a.requireStateDB(); err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, err := status.Build(cmd.Context(), store, a.cfg.StateDB, sizes)
			if err != nil {
				return err
			}
			_, err = report.WriteTo(cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "state database path (default from config)")
	cmd.Flags().StringVar(&windows, "windows", "100,200,400,800", "comma-separated sample sizes for rate/ETA estimation")
	return cmd
}
