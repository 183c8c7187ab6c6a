package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/darkangelpraha/dropindex/internal/extractor"
	"github.com/darkangelpraha/dropindex/pkg/types"
)

// ErrToolMissing is returned when a required OCR binary is not on PATH
var ErrToolMissing = errors.New("ocr tool not found")

// Engine recognizes text in PDF pages and images
type Engine interface {
	// RecognizePDF renders the given one-based pages and returns their text in page order
	RecognizePDF(ctx context.Context, path string, pages []int) (string, error)
	RecognizeImage(ctx context.Context, path string) (string, error)
}

// Tesseract drives tesseract, pdftoppm for page rendering and sips or
// ImageMagick convert for HEIC input
type Tesseract struct {
	tesseract string
	pdftoppm  string
	converter []string
	langs     string
	dpi       int
	timeout   time.Duration
}

// NewTesseract locates the OCR tools. tesseract is required; pdftoppm only
// for PDFs and a converter only for HEIC files.
func NewTesseract(langs string, dpi int, timeout time.Duration) (*Tesseract, error) {
	tess, err := exec.LookPath("tesseract")
	if err != nil {
		return nil, fmt.Errorf("%w: tesseract", ErrToolMissing)
	}
	t := &Tesseract{tesseract: tess, langs: langs, dpi: dpi, timeout: timeout}
	if t.langs == "" {
		t.langs = "eng"
	}
	if t.dpi <= 0 {
		t.dpi = 200
	}
	if t.timeout <= 0 {
		t.timeout = 2 * time.Minute
	}
	if p, err := exec.LookPath("pdftoppm"); err == nil {
		t.pdftoppm = p
	}
	if p, err := exec.LookPath("sips"); err == nil {
		t.converter = []string{p, "sips"}
	} else if p, err := exec.LookPath("convert"); err == nil {
		t.converter = []string{p, "convert"}
	}
	return t, nil
}

func (t *Tesseract) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w; stderr=%s", filepath.Base(name), err, types.Truncate(stderr.String(), 300))
	}
	return out, nil
}

func (t *Tesseract) recognize(ctx context.Context, image string) (string, error) {
	out, err := t.run(ctx, t.tesseract, image, "stdout", "-l", t.langs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(out), "")), nil
}

// RecognizePDF renders each consecutive page range with one pdftoppm call
// and runs tesseract per rendered page
func (t *Tesseract) RecognizePDF(ctx context.Context, path string, pages []int) (string, error) {
	if t.pdftoppm == "" {
		return "", fmt.Errorf("%w: pdftoppm", ErrToolMissing)
	}
	tmp, err := os.MkdirTemp("", "dropindex-ocr-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	var parts []string
	for i, r := range extractor.PageRanges(pages) {
		prefix := filepath.Join(tmp, "r"+strconv.Itoa(i))
		_, err := t.run(ctx, t.pdftoppm,
			"-r", strconv.Itoa(t.dpi),
			"-f", strconv.Itoa(r.First),
			"-l", strconv.Itoa(r.Last),
			"-png", path, prefix)
		if err != nil {
			return "", err
		}

		images, err := filepath.Glob(prefix + "-*.png")
		if err != nil {
			return "", err
		}
		sortRenderedPages(images)
		for _, img := range images {
			text, err := t.recognize(ctx, img)
			if err != nil {
				return "", err
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// sortRenderedPages orders pdftoppm output by page number, which is zero
// padded to a width that depends on the document
func sortRenderedPages(images []string) {
	pageOf := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		n, _ := strconv.Atoi(base[strings.LastIndexByte(base, '-')+1:])
		return n
	}
	sort.Slice(images, func(i, j int) bool { return pageOf(images[i]) < pageOf(images[j]) })
}

// RecognizeImage runs tesseract on an image, converting HEIC first
func (t *Tesseract) RecognizeImage(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".heic" && ext != ".heif" {
		return t.recognize(ctx, path)
	}
	if len(t.converter) == 0 {
		return "", fmt.Errorf("%w: sips or convert for %s", ErrToolMissing, ext)
	}

	tmp, err := os.MkdirTemp("", "dropindex-heic-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	png := filepath.Join(tmp, "image.png")
	if t.converter[1] == "sips" {
		_, err = t.run(ctx, t.converter[0], "-s", "format", "png", path, "--out", png)
	} else {
		_, err = t.run(ctx, t.converter[0], path, png)
	}
	if err != nil {
		return "", err
	}
	return t.recognize(ctx, png)
}
