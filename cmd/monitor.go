package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ChuDinhKlopp/moe-offloading/bench/telemetry"
)

var (
	monitorInterval time.Duration
	monitorDuration time.Duration
	monitorLogfile  string
	monitorStep     string
	monitorLayer    string
	monitorBinary   string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Log GPU utilization, PCIe throughput and memory while a benchmark runs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logrus.Infof("Sampling GPUs every %v (duration %v)", monitorInterval, monitorDuration)
		err := runMonitor(ctx, telemetry.NewNvidiaSMI(monitorBinary), monitorLogfile, telemetry.Options{
			Interval: monitorInterval,
			Duration: monitorDuration,
			Labels:   telemetry.StaticLabels(monitorStep, monitorLayer),
		})
		if err != nil {
			stop()
			logrus.Fatalf("GPU monitoring failed: %v", err)
		}
		logrus.Info("GPU monitoring stopped.")
	},
}

// runMonitor samples src into the CSV at logfile, or stdout when logfile is
// empty. The log file is closed before runMonitor returns.
func runMonitor(ctx context.Context, src telemetry.Source, logfile string, opts telemetry.Options) error {
	if logfile == "" {
		return telemetry.Monitor(ctx, src, os.Stdout, opts)
	}
	if err := os.MkdirAll(filepath.Dir(logfile), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.Create(logfile)
	if err != nil {
		return fmt.Errorf("creating telemetry log: %w", err)
	}
	monitorErr := telemetry.Monitor(ctx, src, f, opts)
	closeErr := f.Close()
	if monitorErr != nil {
		return monitorErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing telemetry log: %w", closeErr)
	}
	return nil
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Sampling interval")
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "Stop after this long (0 = until interrupted)")
	monitorCmd.Flags().StringVar(&monitorLogfile, "logfile", "", "Telemetry CSV path (default stdout)")
	monitorCmd.Flags().StringVar(&monitorStep, "step", "", "Model step recorded in every row")
	monitorCmd.Flags().StringVar(&monitorLayer, "layer", "", "Model layer recorded in every row")
	monitorCmd.Flags().StringVar(&monitorBinary, "nvidia-smi", "nvidia-smi", "nvidia-smi binary")

	rootCmd.AddCommand(monitorCmd)
}
