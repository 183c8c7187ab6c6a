package extractor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/darkangelpraha/dropindex/pkg/types"
)

// PDFTools reads page counts and page text from PDF files
type PDFTools interface {
	PageCount(ctx context.Context, path string) (int, error)
	// PageText returns the text of the given one-based pages, in order
	PageText(ctx context.Context, path string, pages []int) (string, error)
}

// popplerTools shells out to pdfinfo and pdftotext
type popplerTools struct {
	pdfinfoPath   string
	pdftotextPath string
	timeout       time.Duration
}

// NewPopplerTools locates pdfinfo and pdftotext on PATH
func NewPopplerTools(timeout time.Duration) (PDFTools, error) {
	info, err := exec.LookPath("pdfinfo")
	if err != nil {
		return nil, fmt.Errorf("%w: pdfinfo", ErrToolMissing)
	}
	text, err := exec.LookPath("pdftotext")
	if err != nil {
		return nil, fmt.Errorf("%w: pdftotext", ErrToolMissing)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &popplerTools{pdfinfoPath: info, pdftotextPath: text, timeout: timeout}, nil
}

func (p *popplerTools) PageCount(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// pdfinfo exits non-zero on some damaged files but still prints the count
	out, runErr := exec.CommandContext(ctx, p.pdfinfoPath, path).CombinedOutput()
	if n, ok := ParsePDFInfoPages(out); ok {
		return n, nil
	}
	if runErr != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w; out=%s", runErr, types.Truncate(string(out), 200))
	}
	return 0, fmt.Errorf("pdfinfo reported no page count")
}

// ParsePDFInfoPages finds the "Pages:" line of pdfinfo output
func ParsePDFInfoPages(out []byte) (int, bool) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if len(line) < 6 || !strings.EqualFold(line[:6], "pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(line[6:]))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func (p *popplerTools) PageText(ctx context.Context, path string, pages []int) (string, error) {
	var parts []string
	for _, r := range PageRanges(pages) {
		text, err := p.rangeText(ctx, path, r)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (p *popplerTools) rangeText(ctx context.Context, path string, r PageRange) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.pdftotextPath,
		"-q",
		"-enc", "UTF-8",
		"-f", strconv.Itoa(r.First),
		"-l", strconv.Itoa(r.Last),
		path, "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext pages %d-%d failed: %w; stderr=%s",
			r.First, r.Last, err, types.Truncate(stderr.String(), 200))
	}
	// pdftotext separates pages with form feeds
	return strings.ReplaceAll(decode(out), "\f", "\n"), nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) Result {
	text, prov, err := e.pdfText(ctx, path)
	if err != nil {
		// an unparseable PDF may still have been OCRed
		if side, ok := ReadSidecar(e.sidecarDir, path); ok {
			return e.chunkText(path, side, types.ProvenanceOCRSidecar)
		}
		return e.failed(path, err.Error())
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) >= e.cfg.PDFMinChars {
		return e.chunkText(path, text, prov)
	}

	// likely scanned
	if side, ok := ReadSidecar(e.sidecarDir, path); ok {
		return e.chunkText(path, side, types.ProvenanceOCRSidecar)
	}
	return deferred(path, "ocr needed", text)
}

// pdfText extracts the sampled pages with the primary backend, falling
// back to the in-process parser.
func (e *Extractor) pdfText(ctx context.Context, path string) (string, types.Provenance, error) {
	var primaryErr error
	if e.pdf != nil {
		text, err := sampledPages(ctx, e.pdf, path, e.cfg.PDFMaxPages)
		if err == nil {
			return text, types.ProvenancePDFText, nil
		}
		primaryErr = err
		e.log.Debug("pdf text extraction failed, trying internal parser", "path", path, "error", err)
	}
	if e.pdfBackup == nil {
		if primaryErr == nil {
			primaryErr = fmt.Errorf("%w: no pdf backend", ErrToolMissing)
		}
		return "", "", primaryErr
	}

	text, err := sampledPages(ctx, e.pdfBackup, path, e.cfg.PDFMaxPages)
	if err != nil {
		if primaryErr != nil {
			return "", "", fmt.Errorf("%v; internal parser: %w", primaryErr, err)
		}
		return "", "", err
	}
	return text, types.ProvenancePDFInternal, nil
}

func sampledPages(ctx context.Context, tools PDFTools, path string, maxPages int) (string, error) {
	count, err := tools.PageCount(ctx, path)
	if err != nil {
		return "", err
	}
	if count <= 0 {
		return "", nil
	}
	return tools.PageText(ctx, path, OneBased(PageSampleIndices(count, maxPages)))
}
