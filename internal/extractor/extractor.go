package extractor

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/darkangelpraha/dropindex/internal/chunker"
	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/internal/logger"
	"github.com/darkangelpraha/dropindex/pkg/types"
)

// ErrToolMissing is returned when an external converter is not on PATH
var ErrToolMissing = errors.New("external tool not found")

// Outcome is the variant of an extraction result
type Outcome int

const (
	// Extracted means the chunks hold the file's content (or its name, for
	// formats that carry no text)
	Extracted Outcome = iota
	// Failed means the content could not be read; Chunks hold the filename context
	Failed
	// Deferred means the file needs OCR first; Chunks hold the filename context
	Deferred
)

func (o Outcome) String() string {
	switch o {
	case Extracted:
		return "extracted"
	case Failed:
		return "failed"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Result is what Extract returns for every file. Chunks is never empty.
type Result struct {
	Outcome    Outcome
	Chunks     []string
	Provenance types.Provenance
	// Reason explains Failed and Deferred outcomes
	Reason string
	// Truncated is set when the per-file chunk cap dropped content
	Truncated bool
}

// Extractor turns files into ordered text chunks
type Extractor struct {
	cfg        config.Config
	chunker    *chunker.Chunker
	pdf        PDFTools
	pdfBackup  PDFTools
	sidecarDir string
	log        *logger.Logger
}

// Option customizes an Extractor
type Option func(*Extractor)

// WithPDFTools replaces the primary PDF backend
func WithPDFTools(t PDFTools) Option {
	return func(e *Extractor) { e.pdf = t }
}

// WithPDFFallback replaces the backend used when the primary one fails
func WithPDFFallback(t PDFTools) Option {
	return func(e *Extractor) { e.pdfBackup = t }
}

// New creates an extractor. Poppler's pdfinfo/pdftotext are used for PDFs
// when installed, with the in-process parser as fallback.
func New(cfg config.Config, log *logger.Logger, opts ...Option) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	e := &Extractor{
		cfg: cfg,
		chunker: chunker.New(
			chunker.WithSize(cfg.ChunkSize),
			chunker.WithOverlap(cfg.ChunkOverlap),
			chunker.WithMaxChunks(max(1, cfg.MaxChunksPerFile)),
		),
		pdfBackup:  NewInternalPDF(),
		sidecarDir: cfg.SidecarDir,
		log:        log,
	}
	if tools, err := NewPopplerTools(cfg.ToolTimeout()); err == nil {
		e.pdf = tools
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chunker returns the chunker used for extracted text
func (e *Extractor) Chunker() *chunker.Chunker {
	return e.chunker
}

func (e *Extractor) maxChunks() int {
	return max(1, e.cfg.MaxChunksPerFile)
}

// budget is the character cap applied before chunking
func (e *Extractor) budget() int {
	return max(e.cfg.MaxChars, e.cfg.ChunkSize*e.maxChunks())
}

// Extract reads path and returns its chunks. It never fails: unreadable or
// unsupported content degrades to a filename-context chunk.
func (e *Extractor) Extract(ctx context.Context, path string, info fs.FileInfo) Result {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case IsTextFile(path):
		return e.extractText(path, info.Size())
	case ext == ".pdf":
		return e.extractPDF(ctx, path)
	case ext == ".docx":
		return e.fromText(path, types.ProvenanceDocument, func() (string, error) {
			return readDocx(path, e.budget())
		})
	case ext == ".xlsx" || ext == ".xlsm":
		return e.fromText(path, types.ProvenanceSpreadsheet, func() (string, error) {
			return readXlsx(path, e.cfg.XLSXMaxCells, e.budget())
		})
	case slices.Contains(config.ImageExts, ext):
		return e.extractImage(path)
	default:
		return Result{
			Outcome:    Extracted,
			Chunks:     []string{FilenameContext(path)},
			Provenance: types.ProvenanceUnknownFormat,
		}
	}
}

// fromText chunks the text produced by read, degrading to the filename
// context when it fails or yields nothing.
func (e *Extractor) fromText(path string, prov types.Provenance, read func() (string, error)) Result {
	text, err := read()
	if err != nil {
		return e.failed(path, err.Error())
	}
	return e.chunkText(path, text, prov)
}

func (e *Extractor) chunkText(path, text string, prov types.Provenance) Result {
	text = types.Truncate(text, e.budget())
	if strings.TrimSpace(text) == "" {
		return filenameOnly(path)
	}
	chunks, truncated := e.chunker.Chunk(text)
	return Result{Outcome: Extracted, Chunks: chunks, Provenance: prov, Truncated: truncated}
}

func (e *Extractor) failed(path, reason string) Result {
	e.log.Debug("extraction failed", "path", path, "reason", reason)
	return Result{
		Outcome:    Failed,
		Chunks:     []string{FilenameContext(path)},
		Provenance: types.ProvenanceFilename,
		Reason:     reason,
	}
}

func deferred(path, reason, partial string) Result {
	text := FilenameContext(path)
	if partial = strings.TrimSpace(partial); partial != "" {
		text += "\n" + partial
	}
	return Result{
		Outcome:    Deferred,
		Chunks:     []string{text},
		Provenance: types.ProvenanceFilename,
		Reason:     reason,
	}
}

func filenameOnly(path string) Result {
	return Result{
		Outcome:    Extracted,
		Chunks:     []string{FilenameContext(path)},
		Provenance: types.ProvenanceFilename,
	}
}

func (e *Extractor) extractImage(path string) Result {
	if text, ok := ReadSidecar(e.sidecarDir, path); ok {
		return e.chunkText(path, text, types.ProvenanceOCRSidecar)
	}
	if e.cfg.ImageOCR {
		return deferred(path, "ocr needed", "")
	}
	return filenameOnly(path)
}

// FilenameContext describes a file by its last few directory names and its
// base name, so binary files stay discoverable by name.
func FilenameContext(path string) string {
	clean := filepath.Clean(path)
	parts := strings.Split(filepath.ToSlash(clean), "/")
	var trail []string
	for _, p := range parts {
		if p != "" {
			trail = append(trail, p)
		}
	}
	if len(trail) > 4 {
		trail = trail[len(trail)-4:]
	}

	base := filepath.Base(clean)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	words := strings.Join(strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	}), " ")

	out := strings.Join(trail, " / ")
	if words != "" && words != base {
		out += "\n" + words
	}
	return out
}
