package extractor

import (
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/darkangelpraha/dropindex/pkg/types"
)

var textExts = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".tsv": true,
	".json": true, ".yaml": true, ".yml": true, ".log": true, ".ini": true,
	".conf": true, ".toml": true, ".xml": true, ".html": true, ".htm": true,
}

// IsTextFile reports whether path is handled as plain text, by extension
// or by the registered media type.
func IsTextFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if textExts[ext] {
		return true
	}
	if ext == "" {
		return false
	}
	return strings.HasPrefix(mime.TypeByExtension(ext), "text/")
}

// decode drops invalid UTF-8 sequences, including characters cut in half
// at a window boundary
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}

func (e *Extractor) extractText(path string, size int64) Result {
	if size <= e.cfg.MaxBytes {
		f, err := os.Open(path)
		if err != nil {
			return e.failed(path, err.Error())
		}
		defer func() { _ = f.Close() }()

		data, err := io.ReadAll(io.LimitReader(f, e.cfg.MaxBytes))
		if err != nil {
			return e.failed(path, err.Error())
		}
		return e.chunkText(path, decode(data), types.ProvenanceText)
	}
	return e.sampleText(path, size)
}

// SampleOffsets spreads windows evenly over [0, size-windowBytes]
func SampleOffsets(size, windowBytes int64, windows int) []int64 {
	if windows <= 1 {
		return []int64{0}
	}
	maxStart := max(size-windowBytes, 0)
	offsets := make([]int64, windows)
	for i := range offsets {
		offsets[i] = int64(float64(i)*float64(maxStart)/float64(windows-1) + 0.5)
	}
	return offsets
}

// sampleText reads evenly spaced byte windows of an oversized file,
// chunks each one and interleaves the chunks round-robin so the capped
// output covers the whole file.
func (e *Extractor) sampleText(path string, size int64) Result {
	maxChunks := e.maxChunks()
	windows := max(1, min(e.cfg.SampleWindows, maxChunks))
	// all windows together stay within the byte cap
	windowBytes := max(e.cfg.MaxBytes/int64(windows), 1)

	f, err := os.Open(path)
	if err != nil {
		return e.failed(path, err.Error())
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, windowBytes)
	perWindow := make([][]string, 0, windows)
	for _, off := range SampleOffsets(size, windowBytes, windows) {
		n, err := f.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return e.failed(path, err.Error())
		}
		text := decode(buf[:n])
		if strings.TrimSpace(text) == "" {
			continue
		}
		perWindow = append(perWindow, e.chunker.Split(text))
	}

	chunks, total := interleave(perWindow, maxChunks)
	if len(chunks) == 0 {
		return filenameOnly(path)
	}
	return Result{
		Outcome:    Extracted,
		Chunks:     chunks,
		Provenance: types.ProvenanceTextSampled,
		Truncated:  total > len(chunks),
	}
}

// interleave takes one chunk from each window in turn until limit is
// reached. total is the number of chunks available.
func interleave(perWindow [][]string, limit int) (out []string, total int) {
	longest := 0
	for _, w := range perWindow {
		total += len(w)
		longest = max(longest, len(w))
	}
	for i := 0; i < longest && len(out) < limit; i++ {
		for _, w := range perWindow {
			if i < len(w) {
				out = append(out, w[i])
				if len(out) == limit {
					break
				}
			}
		}
	}
	return out, total
}
