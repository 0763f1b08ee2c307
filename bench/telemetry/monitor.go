// Package telemetry samples per-GPU counters at a fixed interval and logs them as
// CSV while a benchmark runs.
package telemetry

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ChuDinhKlopp/moe-offloading/bench/metricfile"
)

// DeviceSample is one device's counters at one tick. Nil fields were not
// reported by the source.
type DeviceSample struct {
	Index       int
	UtilPercent *float64
	PCIeTxKiBps *float64
	PCIeRxKiBps *float64
	MemUsedGiB  *float64
	MemTotalGiB *float64
}

// Source reads the current counters of every device.
type Source interface {
	Sample(ctx context.Context) ([]DeviceSample, error)
}

// Labels tag each sampled row with the model step and layer being executed.
type Labels struct {
	Step  string
	Layer string
}

// StaticLabels returns a label source that always reports step and layer.
func StaticLabels(step, layer string) func() Labels {
	return func() Labels { return Labels{Step: step, Layer: layer} }
}

// Options configure Monitor.
type Options struct {
	Interval time.Duration
	Duration time.Duration // 0 samples until ctx is cancelled
	// Labels is called once per tick; nil writes empty step and layer columns.
	Labels func() Labels
}

// Columns is the header of a telemetry log.
var Columns = []string{
	"step",
	"layer",
	"gpu_index",
	"gpu_util (%)",
	"pcie_tx_throughput (KiB/s)",
	"pcie_rx_throughput (KiB/s)",
	"mem_used (GiB)",
	"mem_total (GiB)",
}

// Monitor writes the header, then one row per device every Interval until
// Duration has elapsed or ctx is cancelled. Rows are flushed after each tick. A
// failed sample is logged and its tick skipped. Cancellation is not an error.
func Monitor(ctx context.Context, src Source, w io.Writer, opts Options) error {
	if opts.Interval <= 0 {
		return fmt.Errorf("telemetry: interval must be positive, got %v", opts.Interval)
	}
	if opts.Duration < 0 {
		return fmt.Errorf("telemetry: duration must not be negative, got %v", opts.Duration)
	}
	labels := opts.Labels
	if labels == nil {
		labels = StaticLabels("", "")
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("writing telemetry header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("writing telemetry header: %w", err)
	}

	start := time.Now()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		samples, err := src.Sample(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			logrus.Warnf("telemetry: sampling failed: %v", err)
		default:
			if err := writeSamples(writer, labels(), samples); err != nil {
				return err
			}
		}

		if opts.Duration > 0 && time.Since(start) >= opts.Duration {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writeSamples(writer *csv.Writer, l Labels, samples []DeviceSample) error {
	for _, s := range samples {
		row := []string{
			l.Step,
			l.Layer,
			strconv.Itoa(s.Index),
			metricfile.FormatValue(s.UtilPercent),
			metricfile.FormatValue(s.PCIeTxKiBps),
			metricfile.FormatValue(s.PCIeRxKiBps),
			metricfile.FormatValue(s.MemUsedGiB),
			metricfile.FormatValue(s.MemTotalGiB),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing telemetry row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing telemetry rows: %w", err)
	}
	return nil
}
