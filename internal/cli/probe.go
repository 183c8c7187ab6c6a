package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/embedder"
	"github.com/darkangelpraha/dropindex/internal/storage"
)

func newProbeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check the embedding provider and report its vector size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			emb, err := embedder.New(a.cfg, a.log)
			if err != nil {
				return err
			}
			defer func() { _ = emb.Close() }()

			dim, err := emb.DetectDimension(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "provider=%s\n", emb.Provider())
			fmt.Fprintf(out, "model=%s\n", emb.Model())
			fmt.Fprintf(out, "dimension=%d\n", dim)
			fmt.Fprintf(out, "sqlite_driver=%s\n", storage.DriverName)
			fmt.Fprintf(out, "build_mode=%s\n", storage.BuildMode)
			return nil
		},
	}
}
