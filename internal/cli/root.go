// Package cli builds the dropindex command tree.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/internal/logger"
)

// Version is set by main from linker flags
var Version = "dev"

// app carries state shared by every subcommand once flags are parsed
type app struct {
	configPath string
	logMode    string
	logLevel   string

	cfg config.Config
	log *logger.Logger
}

// NewRootCommand returns the root command with every subcommand attached
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "dropindex",
		Short: "Incremental semantic indexer for local Dropbox folders",
		Long: `dropindex walks local folders (by default every Dropbox mount under
~/Library/CloudStorage), extracts text from documents, embeds it and keeps a
Qdrant collection in sync. Unchanged files are skipped on later runs.

Machine-readable output goes to stdout; logs go to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "optional TOML config file (or DROPINDEX_CONFIG)")
	flags.StringVar(&a.logMode, "log-mode", "", "log format: development or production")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newIndexCommand(a),
		newSearchCommand(a),
		newStatusCommand(a),
		newOCRCommand(a),
		newWatchCommand(a),
		newMCPCommand(a),
		newProbeCommand(a),
		newVersionCommand(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logMode != "" {
		cfg.LogMode = a.logMode
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// Execute runs the command tree and returns the process exit code
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
