package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultRoots lists the Dropbox mounts under ~/Library/CloudStorage,
// keeping one entry per resolved directory.
func DefaultRoots(home string) []string {
	matches, err := filepath.Glob(filepath.Join(home, "Library", "CloudStorage", "Dropbox*"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.IsDir() {
			continue
		}
		resolved, err := filepath.EvalSymlinks(m)
		if err != nil {
			resolved = m
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, m)
	}
	return out
}

// ResolveRoots turns explicit roots into absolute paths, falling back to the
// configured roots and then to DefaultRoots.
func (c Config) ResolveRoots(args []string) ([]string, error) {
	roots := args
	if len(roots) == 0 {
		roots = c.Roots
	}
	if len(roots) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		roots = DefaultRoots(home)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no roots given and no Dropbox mount found", ErrInvalidConfig)
	}

	out := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", r, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// WalkRoot returns the path to hand to filepath.WalkDir for root. WalkDir
// does not follow a symlinked top, so a root that links to a directory gets
// a trailing separator; paths below it keep the link's name.
func WalkRoot(root string) string {
	root = filepath.Clean(root)
	info, err := os.Lstat(root)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return root
	}
	if target, err := os.Stat(root); err != nil || !target.IsDir() {
		return root
	}
	return root + string(filepath.Separator)
}
