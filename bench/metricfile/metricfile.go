// Package metricfile reads and appends the two-column `metric,val` CSV files that
// hold one scraped observability value per row.
package metricfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Column names of a metric file header.
const (
	MetricColumn = "metric"
	ValueColumn  = "val"
)

// PreemptionsMetric is the PromQL expression whose value records the number of
// preempted requests in a run.
const PreemptionsMetric = "sum(vllm:num_preemptions_total)"

// ErrMetricNotFound is returned when a file has no row for the requested metric,
// or the row's value is not a finite number.
var ErrMetricNotFound = errors.New("metric not found")

// Record is one row of a metric file. A nil Value means the value is absent or
// could not be parsed.
type Record struct {
	Name  string
	Value *float64
}

// ReadRecords reads every row of a metric file in file order. Columns are located
// by header name. Rows too short to hold both columns, and rows the CSV parser
// rejects, are skipped; only I/O failures and a bad header are returned.
func ReadRecords(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metric header: %w", err)
	}
	metricIdx, valIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case MetricColumn:
			metricIdx = i
		case ValueColumn:
			valIdx = i
		}
	}
	if metricIdx < 0 || valIdx < 0 {
		return nil, fmt.Errorf("metric header %v lacks %q or %q column", header, MetricColumn, ValueColumn)
	}

	var records []Record
	skippedRows := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skippedRows++
				continue
			}
			return nil, fmt.Errorf("reading metric row: %w", err)
		}
		if len(row) <= metricIdx || len(row) <= valIdx {
			skippedRows++
			continue
		}
		rec := Record{Name: row[metricIdx]}
		if v, ok := parseValue(row[valIdx]); ok {
			rec.Value = &v
		}
		records = append(records, rec)
	}
	if skippedRows > 0 {
		logrus.Debugf("metricfile: skipped %d malformed rows", skippedRows)
	}
	return records, nil
}

// Find returns the value of the first record named metric.
func Find(records []Record, metric string) (float64, error) {
	for _, rec := range records {
		if rec.Name != metric {
			continue
		}
		if rec.Value == nil {
			return 0, fmt.Errorf("%w: %q has a non-numeric value", ErrMetricNotFound, metric)
		}
		return *rec.Value, nil
	}
	return 0, fmt.Errorf("%w: no row for %q", ErrMetricNotFound, metric)
}

// Lookup reads a metric file and returns the value of the first row named metric.
func Lookup(r io.Reader, metric string) (float64, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return 0, err
	}
	return Find(records, metric)
}

// LookupCount opens the metric file at path and returns metric truncated to an
// integer. Counters scraped from Prometheus arrive as floats ("96" or "96.0").
func LookupCount(path, metric string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening metric file: %w", err)
	}
	defer func() { _ = f.Close() }()

	v, err := Lookup(f, metric)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if v >= math.MaxInt64 || v < math.MinInt64 {
		return 0, fmt.Errorf("%s: %w: %q value %g overflows an integer", path, ErrMetricNotFound, metric, v)
	}
	return int64(v), nil
}

// Append adds rec as a new row of the metric file at path, creating the file and
// writing the header first if it does not exist or is empty.
func Append(path string, rec Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening metric file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat metric file: %w", err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write([]string{MetricColumn, ValueColumn}); err != nil {
			return fmt.Errorf("writing metric header: %w", err)
		}
	}
	if err := writer.Write([]string{rec.Name, FormatValue(rec.Value)}); err != nil {
		return fmt.Errorf("writing metric row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing metric file: %w", err)
	}
	return f.Close()
}

// FormatValue renders a value in its shortest decimal form; nil renders empty.
func FormatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// parseValue accepts finite decimal numbers only.
func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
