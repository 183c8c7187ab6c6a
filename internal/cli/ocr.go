package cli

import (
	"github.com/spf13/cobra"

	"github.com/darkangelpraha/dropindex/internal/extractor"
	"github.com/darkangelpraha/dropindex/internal/ocr"
)

func newOCRCommand(a *app) *cobra.Command {
	var (
		maxFiles int
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "ocr",
		Short: "Run OCR on queued scanned PDFs and images",
		Long: `Drains the OCR queue filled by index runs: each file is recognized with
tesseract (pages rendered by pdftoppm) and the text is written to a sidecar
file. The next index run picks the sidecar up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("max-files") {
				a.cfg.OCRMaxFiles = maxFiles
			}
			if force {
				a.cfg.OCRForce = true
			}

			engine, err := ocr.NewTesseract(a.cfg.OCRLangs, a.cfg.OCRRenderDPI, a.cfg.ToolTimeout())
			if err != nil {
				return err
			}
			pdf, err := extractor.NewPopplerTools(a.cfg.ToolTimeout())
			if err != nil {
				a.log.Info("poppler not found; using the internal pdf reader for page counts")
				pdf = extractor.NewInternalPDF()
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, runErr := ocr.NewWorker(a.cfg, store, engine, pdf, a.log).Run(cmd.Context())
			if report != nil {
				if err := writeJSONLine(cmd, report); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "maximum queue entries to process (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "reprocess entries already marked done")
	return cmd
}
