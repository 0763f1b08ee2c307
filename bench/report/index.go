package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ChuDinhKlopp/moe-offloading/bench/metricfile"
	"github.com/ChuDinhKlopp/moe-offloading/bench/runkey"
)

// ObservabilityIndex maps a run's ConfigKey to its preemption count. An entry
// with a nil count records a well-formed observability file that lacked the
// metric. The index is read-only once BuildIndex returns.
type ObservabilityIndex struct {
	entries map[runkey.ConfigKey]*int64
}

// NewObservabilityIndex returns an empty index.
func NewObservabilityIndex() *ObservabilityIndex {
	return &ObservabilityIndex{entries: make(map[runkey.ConfigKey]*int64)}
}

// Lookup returns the preemption count for key. ok is false when no observability
// file for key was scanned or its metric was absent. Safe on a nil index.
func (idx *ObservabilityIndex) Lookup(key runkey.ConfigKey) (count int64, ok bool) {
	if idx == nil {
		return 0, false
	}
	v := idx.entries[key]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Contains reports whether an observability file decoded to key, regardless of
// whether its metric was present.
func (idx *ObservabilityIndex) Contains(key runkey.ConfigKey) bool {
	if idx == nil {
		return false
	}
	_, ok := idx.entries[key]
	return ok
}

// Len returns the number of indexed runs.
func (idx *ObservabilityIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

func (idx *ObservabilityIndex) set(key runkey.ConfigKey, count *int64) (replaced bool) {
	_, replaced = idx.entries[key]
	idx.entries[key] = count
	return replaced
}

// IndexOptions selects which files BuildIndex reads.
type IndexOptions struct {
	Schema    runkey.Schema
	Extension string // file extension including the dot, e.g. ".csv"
	Metric    string
}

// DefaultIndexOptions matches obs_*.csv files and the preemption counter.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		Schema:    runkey.Observability,
		Extension: ".csv",
		Metric:    metricfile.PreemptionsMetric,
	}
}

// BuildIndex scans dir for observability files and indexes their metric value by
// run key. Files whose names do not decode are skipped with a warning; files
// without the metric are indexed with an absent count. A later file with the same
// key replaces an earlier one. A missing dir yields an empty index.
func BuildIndex(dir string, opts IndexOptions) (*ObservabilityIndex, error) {
	idx := NewObservabilityIndex()

	entries, err := listDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.Warnf("observability directory %s does not exist; preemption counts will be empty", dir)
			return idx, nil
		}
		return nil, fmt.Errorf("listing observability directory: %w", err)
	}

	skipped := 0
	for _, entry := range entries {
		name := entry.Name()
		if !opts.Schema.Matches(name) || !isFile(dir, entry) || !strings.HasSuffix(name, opts.Extension) {
			continue
		}
		stem := strings.TrimSuffix(name, opts.Extension)
		key, err := opts.Schema.Decode(stem)
		if err != nil {
			logrus.Warnf("skipping observability file %s: %v", name, err)
			skipped++
			continue
		}

		var count *int64
		n, err := metricfile.LookupCount(filepath.Join(dir, name), opts.Metric)
		if err != nil {
			logrus.Debugf("observability file %s: %v", name, err)
		} else {
			count = &n
		}

		if idx.set(key, count) {
			logrus.Warnf("observability file %s duplicates run %s; keeping the later file", name, key)
		}
	}

	logrus.Infof("indexed %d observability runs from %s (%d skipped)", idx.Len(), dir, skipped)
	return idx, nil
}

// listDir returns dir's entries in the order the filesystem reports them.
// Unlike os.ReadDir, it does not sort.
func listDir(dir string) ([]fs.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.ReadDir(-1)
}

// isDir reports whether entry is a directory, following symlinks.
func isDir(dir string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir()
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.IsDir()
}

// isFile reports whether entry is a regular file, following symlinks.
func isFile(dir string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Type().IsRegular()
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.Mode().IsRegular()
}
