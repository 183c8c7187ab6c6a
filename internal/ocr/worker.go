package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/internal/extractor"
	"github.com/darkangelpraha/dropindex/internal/logger"
	"github.com/darkangelpraha/dropindex/internal/storage"
)

// ErrNoText is recorded when OCR finished but recognized nothing
var ErrNoText = errors.New("ocr produced no text")

// Report summarizes one worker run
type Report struct {
	Fetched int `json:"fetched"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Missing int `json:"missing"`
}

// Worker drains the OCR queue into sidecar files
type Worker struct {
	cfg    config.Config
	store  storage.Store
	engine Engine
	pdf    extractor.PDFTools
	log    *logger.Logger
}

// NewWorker creates a worker. pdf is used for page counts.
func NewWorker(cfg config.Config, store storage.Store, engine Engine, pdf extractor.PDFTools, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Worker{cfg: cfg, store: store, engine: engine, pdf: pdf, log: log}
}

// Run processes up to OCRMaxFiles queued jobs, PDFs first
func (w *Worker) Run(ctx context.Context) (*Report, error) {
	jobs, err := w.store.FetchOCRJobs(ctx, w.cfg.OCRExts, w.cfg.OCRMaxFiles, w.cfg.OCRForce)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ocr jobs: %w", err)
	}
	report := &Report{Fetched: len(jobs)}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if info, err := os.Stat(job.Path); err != nil || !info.Mode().IsRegular() {
			report.Missing++
			if err := w.update(ctx, job.Path, storage.OCRMissing, job.Attempts, "source file missing"); err != nil {
				return report, err
			}
			continue
		}

		attempts := job.Attempts + 1
		if err := w.update(ctx, job.Path, storage.OCRRunning, attempts, ""); err != nil {
			return report, err
		}

		target, err := w.process(ctx, job)
		if err != nil {
			report.Failed++
			w.log.Warn("ocr failed", "path", job.Path, "attempts", attempts, "error", err)
			if err := w.update(ctx, job.Path, storage.OCRError, attempts, err.Error()); err != nil {
				return report, err
			}
			continue
		}

		report.Done++
		w.log.Info("ocr done", "path", job.Path, "sidecar", target)
		if err := w.update(ctx, job.Path, storage.OCRDone, attempts, ""); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (w *Worker) process(ctx context.Context, job *storage.OCRJob) (string, error) {
	var text string
	var err error
	if strings.ToLower(filepath.Ext(job.Path)) == ".pdf" {
		text, err = w.recognizePDF(ctx, job.Path)
	} else {
		text, err = w.engine.RecognizeImage(ctx, job.Path)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return extractor.WriteSidecar(w.cfg.SidecarDir, job.Path, text)
}

func (w *Worker) recognizePDF(ctx context.Context, path string) (string, error) {
	if w.pdf == nil {
		return "", fmt.Errorf("%w: no pdf page counter", ErrToolMissing)
	}
	count, err := w.pdf.PageCount(ctx, path)
	if err != nil {
		return "", err
	}
	if count <= 0 {
		return "", ErrNoText
	}
	pages := extractor.OneBased(extractor.PageSampleIndices(count, w.cfg.OCRMaxPages))
	return w.engine.RecognizePDF(ctx, path, pages)
}

// update writes a status change, retrying while the indexer holds the database
func (w *Worker) update(ctx context.Context, path string, status storage.OCRStatus, attempts int, lastError string) error {
	return storage.RunInTx(ctx, w.store, func(tx storage.Tx) error {
		return tx.UpdateOCRJob(ctx, path, status, attempts, lastError)
	})
}
