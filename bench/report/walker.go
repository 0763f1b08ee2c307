package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ChuDinhKlopp/moe-offloading/bench/runkey"
)

var (
	// ErrNoResultFile is returned for a report folder holding no result file.
	ErrNoResultFile = errors.New("no result file")
	// ErrBadResult is returned for a result file that is not a JSON object.
	ErrBadResult = errors.New("malformed result file")
)

// WalkOptions selects which folders and files WalkReports reads.
type WalkOptions struct {
	Schema          runkey.Schema
	ResultExtension string // e.g. ".json"
}

// DefaultWalkOptions matches report_* folders holding a *.json result.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{Schema: runkey.Benchmark, ResultExtension: ".json"}
}

// WalkStats counts what WalkReports saw. Every scanned folder is either emitted
// or counted in exactly one Skipped field.
type WalkStats struct {
	Scanned          int
	Emitted          int
	SkippedName      int // folder name did not decode
	SkippedNoResult  int // no result file inside
	SkippedBadResult int // result file unreadable or not a JSON object
	JoinMisses       int // emitted rows without a preemption count
}

// Skipped returns the number of scanned folders that produced no row.
func (s WalkStats) Skipped() int {
	return s.SkippedName + s.SkippedNoResult + s.SkippedBadResult
}

// WalkReports builds one Row per benchmark report folder in dir, in the order the
// filesystem lists them. Each row's preemption count comes from idx; a miss
// leaves it nil. Folders that cannot produce a row are skipped and counted in
// the returned stats. Only a failure to list dir is returned as an error.
func WalkReports(dir string, idx *ObservabilityIndex, opts WalkOptions) ([]Row, WalkStats, error) {
	var stats WalkStats

	entries, err := listDir(dir)
	if err != nil {
		return nil, stats, fmt.Errorf("listing benchmark directory: %w", err)
	}

	rows := make([]Row, 0, len(entries))
	seen := make(map[runkey.ConfigKey]string)
	for _, entry := range entries {
		name := entry.Name()
		if !opts.Schema.Matches(name) || !isDir(dir, entry) {
			continue
		}
		stats.Scanned++

		key, err := opts.Schema.Decode(name)
		if err != nil {
			logrus.Warnf("skipping report folder %s: %v", name, err)
			stats.SkippedName++
			continue
		}

		res, err := loadFolderResult(filepath.Join(dir, name), opts.ResultExtension)
		switch {
		case errors.Is(err, ErrNoResultFile):
			logrus.Infof("skipping report folder %s: %v", name, err)
			stats.SkippedNoResult++
			continue
		case err != nil:
			logrus.Warnf("skipping report folder %s: %v", name, err)
			stats.SkippedBadResult++
			continue
		}

		if prev, dup := seen[key]; dup {
			logrus.Warnf("report folder %s duplicates run %s already read from %s", name, key, prev)
		} else {
			seen[key] = name
		}

		row := Row{Key: key, Result: res}
		if n, ok := idx.Lookup(key); ok {
			row.Preemptions = &n
		} else {
			logrus.Debugf("no preemption count for %s", key)
			stats.JoinMisses++
		}
		rows = append(rows, row)
		stats.Emitted++
	}

	logrus.Infof("walked %d report folders in %s: %d rows, %d skipped, %d without preemption count",
		stats.Scanned, dir, stats.Emitted, stats.Skipped(), stats.JoinMisses)
	return rows, stats, nil
}

// loadFolderResult reads the first result file in folder, in listing order.
func loadFolderResult(folder, ext string) (BenchmarkResult, error) {
	path, err := findResultFile(folder, ext)
	if err != nil {
		return BenchmarkResult{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("%w: %v", ErrBadResult, err)
	}
	res, err := ParseResult(data)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return res, nil
}

// findResultFile returns the first regular file in folder with extension ext.
// When several exist the rest are ignored.
func findResultFile(folder, ext string) (string, error) {
	entries, err := listDir(folder)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResult, err)
	}
	var found []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ext) && isFile(folder, entry) {
			found = append(found, entry.Name())
		}
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w matching *%s", ErrNoResultFile, ext)
	}
	if len(found) > 1 {
		logrus.Warnf("%s holds %d result files; using %s", folder, len(found), found[0])
	}
	return filepath.Join(folder, found[0]), nil
}
