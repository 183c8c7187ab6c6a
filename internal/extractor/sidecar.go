package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SidecarPath is where OCR text for path is stored: the sha256 of the
// absolute source path, under dir.
func SidecarPath(dir, path string) string {
	sum := sha256.Sum256([]byte(path))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".txt")
}

// SidecarSignature is "size:mtime" of the sidecar, or "" when none exists.
// It takes part in the incremental skip check so a new sidecar triggers
// re-indexing of an otherwise unchanged file.
func SidecarSignature(dir, path string) string {
	if dir == "" {
		return ""
	}
	info, err := os.Stat(SidecarPath(dir, path))
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().Unix())
}

// ReadSidecar returns the OCR text for path when a non-empty sidecar exists
func ReadSidecar(dir, path string) (string, bool) {
	if dir == "" {
		return "", false
	}
	data, err := os.ReadFile(SidecarPath(dir, path))
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(decode(data))
	return text, text != ""
}

// WriteSidecar stores text for path atomically. The directory is created
// with 0700 and the file with 0600 since OCR output may be sensitive.
func WriteSidecar(dir, path, text string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create sidecar dir: %w", err)
	}
	_ = os.Chmod(dir, 0o700)

	target := SidecarPath(dir, path)
	tmp, err := os.CreateTemp(dir, ".sidecar-*")
	if err != nil {
		return "", fmt.Errorf("create temp sidecar: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(strings.TrimSpace(text) + "\n"); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write sidecar: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("chmod sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close sidecar: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("rename sidecar: %w", err)
	}
	return target, nil
}
