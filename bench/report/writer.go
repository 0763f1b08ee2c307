package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ChuDinhKlopp/moe-offloading/bench/metricfile"
)

// Columns is the summary report header, in output order.
var Columns = []string{
	"Model",
	"Input Len",
	"Output Len",
	"In/Out Size",
	"Max Concurrency",
	"TP Size",
	"DP Size",
	"Parallel Config",
	"End-To-End Latency (s)",
	"Request Throughput (req/s)",
	"Output Token Throughput (tok/s)",
	"Total Token Throughput (tok/s)",
	"mean TTFT (ms)",
	"mean TPOT (ms)",
	"mean ITL (ms)",
	"num_total_preemption (reqs)",
}

// Record renders the row as CSV fields matching Columns. Absent values are empty.
func (r Row) Record() []string {
	res := r.Result
	return []string{
		r.Key.Model,
		strconv.Itoa(r.Key.InputLen),
		strconv.Itoa(r.Key.OutputLen),
		r.InOutSize(),
		strconv.Itoa(r.Key.Concurrency),
		strconv.Itoa(r.Key.TPSize),
		strconv.Itoa(r.Key.DPSize),
		r.ParallelConfig(),
		metricfile.FormatValue(res.Duration),
		metricfile.FormatValue(res.RequestThroughput),
		metricfile.FormatValue(res.OutputThroughput),
		metricfile.FormatValue(res.TotalTokenThroughput),
		metricfile.FormatValue(res.MeanTTFTMs),
		metricfile.FormatValue(res.MeanTPOTMs),
		metricfile.FormatValue(res.MeanITLMs),
		formatCount(r.Preemptions),
	}
}

func formatCount(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

// WriteCSV writes the header and one line per row, in order. The header is
// written even when rows is empty.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, r := range rows {
		if err := writer.Write(r.Record()); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteReport writes rows to path and returns the number of rows written. The
// report is written to a temporary file beside path and renamed into place, so
// an interrupted run never leaves a partial report.
func WriteReport(rows []Row, path string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating report file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := WriteCSV(tmp, rows); err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("setting report permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing report file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("moving report into place: %w", err)
	}
	return len(rows), nil
}
