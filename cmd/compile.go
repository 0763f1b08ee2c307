package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ChuDinhKlopp/moe-offloading/bench/report"
)

var compileOpts compileFlags

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Join benchmark results with observability metrics into a summary CSV",
	Long: "Indexes the observability directory by run configuration, walks every benchmark " +
		"result folder and writes one summary row per folder. Folders without an " +
		"observability file still get a row, with an empty preemption column.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := compileOpts.resolve(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		summary, err := report.Compile(cmd.Context(), cfg)
		if err != nil {
			logrus.Fatalf("Report compilation failed: %v", err)
		}
		if skipped := summary.Stats.Skipped(); skipped > 0 {
			logrus.Warnf("Skipped %d of %d benchmark folders (see warnings above)", skipped, summary.Stats.Scanned)
		}
		fmt.Printf("Wrote %d rows to %s\n", summary.Rows, summary.OutputPath)
	},
}

func init() {
	compileOpts.register(compileCmd)
	rootCmd.AddCommand(compileCmd)
}
