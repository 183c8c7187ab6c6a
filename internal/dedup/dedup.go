// Package dedup detects byte-identical files across roots by a bounded-I/O
// content signature and keeps one canonical path per signature.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/darkangelpraha/dropindex/internal/storage"
)

// Signature hashes the first n bytes of the file and, when the file is
// larger than n, the last n bytes. The result is "size:head:tail" with an
// empty tail for small files.
func Signature(path string, size, n int64) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid hash window %d", n)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	head := sha256.New()
	if _, err := io.CopyN(head, f, n); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("hash head: %w", err)
	}

	tail := ""
	if size > n {
		h := sha256.New()
		if _, err := io.Copy(h, io.NewSectionReader(f, size-n, n)); err != nil {
			return "", fmt.Errorf("hash tail: %w", err)
		}
		tail = hex.EncodeToString(h.Sum(nil))
	}

	return strconv.FormatInt(size, 10) + ":" + hex.EncodeToString(head.Sum(nil)) + ":" + tail, nil
}

// Decision is the outcome of resolving one path
type Decision struct {
	// Canonical is the path that owns the signature after resolution
	Canonical string
	// Promoted is set when path replaced a canonical that vanished, left the
	// roots or no longer holds the signed bytes
	Promoted bool
	// Previous is the replaced canonical path when Promoted
	Previous string
}

// Duplicate reports whether the resolved path must be skipped
func (d Decision) Duplicate(path string) bool {
	return d.Canonical != path
}

// Resolver owns the signature to canonical path mapping for one run
type Resolver struct {
	roots     []string
	hashBytes int64
	// live caches canonical checks, keyed by signature and path
	live map[string]bool
}

// NewResolver creates a resolver for a run over roots. hashBytes must match
// the window used to compute the signatures passed to Resolve.
func NewResolver(roots []string, hashBytes int64) *Resolver {
	clean := make([]string, len(roots))
	for i, r := range roots {
		clean[i] = filepath.Clean(r)
	}
	return &Resolver{roots: clean, hashBytes: hashBytes, live: make(map[string]bool)}
}

// InRoots reports whether path lies under one of the scanned roots
func (r *Resolver) InRoots(path string) bool {
	for _, root := range r.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Live reports whether canonical can keep owning sig: it lies inside the
// scanned roots and its current content still has that signature.
func (r *Resolver) Live(canonical, sig string) bool {
	if !r.InRoots(canonical) {
		return false
	}
	key := sig + "\x00" + canonical
	if live, ok := r.live[key]; ok {
		return live
	}
	live := r.currentSignature(canonical) == sig
	r.live[key] = live
	return live
}

func (r *Resolver) currentSignature(path string) string {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	sig, err := Signature(path, info.Size(), r.hashBytes)
	if err != nil {
		return ""
	}
	return sig
}

// Resolve returns which path owns sig. The first path seen for a signature
// stays canonical for as long as it exists inside the scanned roots with the
// same content, so two live duplicates never swap roles between runs.
func (r *Resolver) Resolve(ctx context.Context, store storage.Store, sig, path string) (Decision, error) {
	cur, err := store.GetSignature(ctx, sig)
	if errors.Is(err, storage.ErrNotFound) {
		if err := store.PutSignature(ctx, sig, path); err != nil {
			return Decision{}, err
		}
		return Decision{Canonical: path}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	if cur.Path == path {
		if err := store.TouchSignature(ctx, sig); err != nil {
			return Decision{}, err
		}
		return Decision{Canonical: path}, nil
	}

	if r.Live(cur.Path, sig) {
		return Decision{Canonical: cur.Path}, nil
	}

	if err := store.PutSignature(ctx, sig, path); err != nil {
		return Decision{}, err
	}
	return Decision{Canonical: path, Promoted: true, Previous: cur.Path}, nil
}
