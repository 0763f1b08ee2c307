package report

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ChuDinhKlopp/moe-offloading/bench/metricfile"
	"github.com/ChuDinhKlopp/moe-offloading/bench/runkey"
)

// NamingConfig holds the tags and extensions of the two input naming conventions.
type NamingConfig struct {
	ObservabilityTag string `yaml:"observability_tag"`
	BenchmarkTag     string `yaml:"benchmark_tag"`
	ObservabilityExt string `yaml:"observability_ext"`
	ResultExt        string `yaml:"result_ext"`
}

// Config describes one compile run. Relative BenchDir, ObservabilityDir, Output
// and SQLite paths resolve against BaseDir.
type Config struct {
	BaseDir          string       `yaml:"base_dir"`
	BenchDir         string       `yaml:"bench_dir"`
	ObservabilityDir string       `yaml:"observability_dir"`
	Output           string       `yaml:"output"`
	SQLite           string       `yaml:"sqlite"` // empty disables the SQLite export
	Metric           string       `yaml:"metric"`
	Naming           NamingConfig `yaml:"naming"`
}

// DefaultConfig reads ./log/bench and ./log/observability and writes
// ./log/summary_report.csv.
func DefaultConfig() Config {
	return Config{
		BaseDir:          "./log",
		BenchDir:         "bench",
		ObservabilityDir: "observability",
		Output:           "summary_report.csv",
		Metric:           metricfile.PreemptionsMetric,
		Naming: NamingConfig{
			ObservabilityTag: runkey.Observability.Tag,
			BenchmarkTag:     runkey.Benchmark.Tag,
			ObservabilityExt: ".csv",
			ResultExt:        ".json",
		},
	}
}

// Validate returns an error describing the first unusable field.
func (c Config) Validate() error {
	required := []struct {
		name, value string
	}{
		{"base_dir", c.BaseDir},
		{"bench_dir", c.BenchDir},
		{"observability_dir", c.ObservabilityDir},
		{"output", c.Output},
		{"metric", c.Metric},
		{"naming.observability_tag", c.Naming.ObservabilityTag},
		{"naming.benchmark_tag", c.Naming.BenchmarkTag},
		{"naming.observability_ext", c.Naming.ObservabilityExt},
		{"naming.result_ext", c.Naming.ResultExt},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("config: %s must not be empty", f.name)
		}
	}
	for _, tag := range []string{c.Naming.ObservabilityTag, c.Naming.BenchmarkTag} {
		if strings.Contains(tag, runkey.Separator) {
			return fmt.Errorf("config: naming tag %q must not contain %q", tag, runkey.Separator)
		}
	}
	if c.Naming.ObservabilityTag == c.Naming.BenchmarkTag {
		return fmt.Errorf("config: observability and benchmark tags must differ, both are %q", c.Naming.BenchmarkTag)
	}
	for _, ext := range []string{c.Naming.ObservabilityExt, c.Naming.ResultExt} {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("config: extension %q must start with '.'", ext)
		}
	}
	return nil
}

// Paths are a Config's directories and outputs after resolving against BaseDir.
type Paths struct {
	BenchDir         string
	ObservabilityDir string
	Output           string
	SQLite           string // empty when disabled
}

// Paths resolves the config's relative paths.
func (c Config) Paths() Paths {
	p := Paths{
		BenchDir:         c.resolve(c.BenchDir),
		ObservabilityDir: c.resolve(c.ObservabilityDir),
		Output:           c.resolve(c.Output),
	}
	if c.SQLite != "" {
		p.SQLite = c.resolve(c.SQLite)
	}
	return p
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// IndexOptions derives the indexer options from the config.
func (c Config) IndexOptions() IndexOptions {
	return IndexOptions{
		Schema:    runkey.Schema{Tag: c.Naming.ObservabilityTag},
		Extension: c.Naming.ObservabilityExt,
		Metric:    c.Metric,
	}
}

// WalkOptions derives the walker options from the config.
func (c Config) WalkOptions() WalkOptions {
	return WalkOptions{
		Schema:          runkey.Schema{Tag: c.Naming.BenchmarkTag},
		ResultExtension: c.Naming.ResultExt,
	}
}

// Summary describes a finished compile run.
type Summary struct {
	Rows       int
	OutputPath string
	SQLitePath string
	Indexed    int
	Stats      WalkStats
}

// Compile indexes the observability directory, walks the benchmark directory,
// joins the two and writes the report. The index is complete before the first
// lookup. ctx only bounds the SQLite export; file scans are not interruptible.
func Compile(ctx context.Context, cfg Config) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	paths := cfg.Paths()
	logrus.Debugf("compile paths: bench=%s observability=%s output=%s sqlite=%q",
		paths.BenchDir, paths.ObservabilityDir, paths.Output, paths.SQLite)

	idx, err := BuildIndex(paths.ObservabilityDir, cfg.IndexOptions())
	if err != nil {
		return nil, err
	}

	rows, stats, err := WalkReports(paths.BenchDir, idx, cfg.WalkOptions())
	if err != nil {
		return nil, err
	}

	n, err := WriteReport(rows, paths.Output)
	if err != nil {
		return nil, err
	}
	summary := &Summary{
		Rows:       n,
		OutputPath: paths.Output,
		Indexed:    idx.Len(),
		Stats:      stats,
	}

	if paths.SQLite != "" {
		if err := ExportSQLite(ctx, paths.SQLite, rows); err != nil {
			return nil, fmt.Errorf("exporting to SQLite: %w", err)
		}
		summary.SQLitePath = paths.SQLite
		logrus.Infof("exported %d rows to %s (table %s)", len(rows), paths.SQLite, SQLiteTable)
	}
	return summary, nil
}
