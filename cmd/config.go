package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuDinhKlopp/moe-offloading/bench/report"
)

const (
	envBaseDir       = "MOE_BASE_DIR"
	envPrometheusURL = "PROMETHEUS_URL"
)

// loadCompileConfig starts from report.DefaultConfig, applies MOE_BASE_DIR and
// then the YAML file at path, if any. Unknown keys are rejected.
func loadCompileConfig(path string) (report.Config, error) {
	cfg := report.DefaultConfig()
	if v := os.Getenv(envBaseDir); v != "" {
		cfg.BaseDir = v
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// compileFlags are the compile command's overrides of the config file.
type compileFlags struct {
	configPath       string
	baseDir          string
	benchDir         string
	observabilityDir string
	output           string
	sqlite           string
	metric           string
}

func (f *compileFlags) register(cmd *cobra.Command) {
	d := report.DefaultConfig()
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&f.baseDir, "base-dir", d.BaseDir, "Directory holding the bench and observability logs (env "+envBaseDir+")")
	cmd.Flags().StringVar(&f.benchDir, "bench-dir", d.BenchDir, "Benchmark result folders, relative to --base-dir")
	cmd.Flags().StringVar(&f.observabilityDir, "obs-dir", d.ObservabilityDir, "Observability metric files, relative to --base-dir")
	cmd.Flags().StringVar(&f.output, "output", d.Output, "Summary CSV path, relative to --base-dir")
	cmd.Flags().StringVar(&f.sqlite, "sqlite", "", "Also export rows to this SQLite database, relative to --base-dir")
	cmd.Flags().StringVar(&f.metric, "metric", d.Metric, "Observability metric joined into the preemption column")
}

// resolve builds the effective config. Only flags the user set override the
// config file, so flag defaults never clobber file or env values.
func (f *compileFlags) resolve(cmd *cobra.Command) (report.Config, error) {
	cfg, err := loadCompileConfig(f.configPath)
	if err != nil {
		return cfg, err
	}
	overrides := []struct {
		flag  string
		value string
		dst   *string
	}{
		{"base-dir", f.baseDir, &cfg.BaseDir},
		{"bench-dir", f.benchDir, &cfg.BenchDir},
		{"obs-dir", f.observabilityDir, &cfg.ObservabilityDir},
		{"output", f.output, &cfg.Output},
		{"sqlite", f.sqlite, &cfg.SQLite},
		{"metric", f.metric, &cfg.Metric},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.dst = o.value
		}
	}
	return cfg, cfg.Validate()
}
