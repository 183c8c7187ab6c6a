// Package status reports indexing progress from the state database.
package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/darkangelpraha/dropindex/internal/storage"
)

// DefaultWindows are the sample sizes used for rate and ETA estimates
var DefaultWindows = []int{100, 200, 400, 800}

// ErrNotInitialized is returned when the state database has no run fingerprint yet
var ErrNotInitialized = errors.New("state database is not initialized: meta.run_cfg_hash missing")

// Source is the subset of the state store the reporter reads
type Source interface {
	GetMeta(ctx context.Context, key string) (string, error)
	StatusCounts(ctx context.Context, configFingerprint string) (*storage.StatusCounts, error)
	RecentUpdateTimes(ctx context.Context, configFingerprint string, n int) ([]int64, error)
	OCRQueueCounts(ctx context.Context) (map[storage.OCRStatus]int, error)
}

// Window is the throughput estimate over the n most recent state writes.
// Rate and ETA are only meaningful when Valid is set.
type Window struct {
	Size        int
	Samples     int
	RatePerHour float64
	ETADays     float64
	Valid       bool
}

// Report is a snapshot of indexing progress
type Report struct {
	DB              string
	RunConfigHash   string
	TotalFiles      int
	IndexedFiles    int
	IncompleteFiles int
	DuplicateFiles  int
	Windows         []Window
	OCRQueue        map[storage.OCRStatus]int
}

// RemainingFiles is the number of known files not yet indexed under the current fingerprint
func (r *Report) RemainingFiles() int {
	return max(0, r.TotalFiles-r.IndexedFiles)
}

// Progress returns indexed/total as a percentage
func (r *Report) Progress() float64 {
	if r.TotalFiles <= 0 {
		return 0
	}
	return float64(r.IndexedFiles) / float64(r.TotalFiles) * 100
}

// ParseWindows parses a comma-separated list of window sizes, each > 1
func ParseWindows(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid window %q: %w", part, err)
		}
		if n <= 1 {
			return nil, fmt.Errorf("invalid window %d: windows must be > 1", n)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("no windows provided")
	}
	return out, nil
}

// Build reads the state store and computes a Report
func Build(ctx context.Context, src Source, dbPath string, windows []int) (*Report, error) {
	if len(windows) == 0 {
		windows = DefaultWindows
	}

	hash, err := src.GetMeta(ctx, storage.MetaRunConfigHash)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && hash == "") {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run fingerprint: %w", err)
	}

	counts, err := src.StatusCounts(ctx, hash)
	if err != nil {
		return nil, err
	}

	r := &Report{
		DB:              dbPath,
		RunConfigHash:   hash,
		TotalFiles:      counts.TotalFiles,
		IndexedFiles:    counts.MatchingConfig,
		IncompleteFiles: counts.IncompleteFiles,
		DuplicateFiles:  counts.DuplicateFiles,
	}

	for _, n := range windows {
		ts, err := src.RecentUpdateTimes(ctx, hash, n)
		if err != nil {
			return nil, err
		}
		r.Windows = append(r.Windows, Estimate(n, ts, r.RemainingFiles()))
	}

	queue, err := src.OCRQueueCounts(ctx)
	if err != nil {
		return nil, err
	}
	r.OCRQueue = queue
	return r, nil
}

// Estimate derives a rate from update timestamps (seconds). The span is
// at least one second so a burst of same-second writes stays finite.
func Estimate(size int, timestamps []int64, remaining int) Window {
	w := Window{Size: size, Samples: len(timestamps)}
	if len(timestamps) < 2 {
		return w
	}

	tmin, tmax := timestamps[0], timestamps[0]
	for _, ts := range timestamps[1:] {
		tmin = min(tmin, ts)
		tmax = max(tmax, ts)
	}
	dt := max(1, tmax-tmin)

	w.Valid = true
	w.RatePerHour = float64(len(timestamps)-1) / float64(dt) * 3600
	if w.RatePerHour > 0 {
		w.ETADays = float64(remaining) / w.RatePerHour / 24
	} else {
		w.ETADays = math.Inf(1)
	}
	return w
}

// WriteTo prints the report as key=value lines
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "db=%s\n", r.DB)
	fmt.Fprintf(&b, "run_cfg_hash=%s\n", r.RunConfigHash)
	fmt.Fprintf(&b, "total_files=%d\n", r.TotalFiles)
	fmt.Fprintf(&b, "indexed_files=%d\n", r.IndexedFiles)
	fmt.Fprintf(&b, "incomplete_files=%d\n", r.IncompleteFiles)
	fmt.Fprintf(&b, "remaining_files=%d\n", r.RemainingFiles())
	fmt.Fprintf(&b, "progress=%.3f%%\n", r.Progress())

	for _, win := range r.Windows {
		if !win.Valid {
			fmt.Fprintf(&b, "window_%d_rate_per_hour=NA\n", win.Size)
			fmt.Fprintf(&b, "window_%d_eta_days=NA\n", win.Size)
			continue
		}
		fmt.Fprintf(&b, "window_%d_rate_per_hour=%.1f\n", win.Size, win.RatePerHour)
		fmt.Fprintf(&b, "window_%d_eta_days=%.2f\n", win.Size, win.ETADays)
	}

	if line := r.OCRQueueLine(); line != "" {
		fmt.Fprintf(&b, "ocr_queue=%s\n", line)
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// OCRQueueLine formats queue counts as status:count pairs sorted by status
func (r *Report) OCRQueueLine() string {
	if len(r.OCRQueue) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.OCRQueue))
	for k := range r.OCRQueue {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, r.OCRQueue[storage.OCRStatus(k)]))
	}
	return strings.Join(parts, ",")
}
