package cli

import (
	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/storage"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("dropindex version %s (%s, driver %s)\n", Version, storage.BuildMode, storage.DriverName)
		},
	}
}
