package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/ChuDinhKlopp/moe-offloading/bench/runkey"
)

// BenchmarkResult holds the fields the report takes from a benchmark engine's
// result file. Each field is nil when the engine did not write it.
type BenchmarkResult struct {
	Duration             *float64 // seconds
	RequestThroughput    *float64 // req/s
	OutputThroughput     *float64 // tok/s
	TotalTokenThroughput *float64 // tok/s
	MeanTTFTMs           *float64
	MeanTPOTMs           *float64
	MeanITLMs            *float64
}

// resultFields maps result-file JSON keys to the BenchmarkResult field they fill.
func (r *BenchmarkResult) resultFields() map[string]**float64 {
	return map[string]**float64{
		"duration":               &r.Duration,
		"request_throughput":     &r.RequestThroughput,
		"output_throughput":      &r.OutputThroughput,
		"total_token_throughput": &r.TotalTokenThroughput,
		"mean_ttft_ms":           &r.MeanTTFTMs,
		"mean_tpot_ms":           &r.MeanTPOTMs,
		"mean_itl_ms":            &r.MeanITLMs,
	}
}

// ParseResult decodes a result file. The file must be a JSON object; each known
// field is decoded on its own, so a missing, null or non-numeric field leaves only
// that field nil. Unknown fields are ignored.
func ParseResult(data []byte) (BenchmarkResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return BenchmarkResult{}, fmt.Errorf("%w: %v", ErrBadResult, err)
	}
	if raw == nil {
		return BenchmarkResult{}, fmt.Errorf("%w: top-level value is null", ErrBadResult)
	}

	var res BenchmarkResult
	for name, dst := range res.resultFields() {
		msg, ok := raw[name]
		if !ok {
			continue
		}
		*dst = parseNumber(msg)
	}
	return res, nil
}

// parseNumber returns nil for anything but a finite JSON number.
func parseNumber(msg json.RawMessage) *float64 {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	num, ok := v.(json.Number)
	if !ok {
		return nil
	}
	f, err := num.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// Row is one line of the summary report: a run key joined with its benchmark
// result and preemption count.
type Row struct {
	Key         runkey.ConfigKey
	Result      BenchmarkResult
	Preemptions *int64 // nil when no observability entry matched
}

// InOutSize is the "(input, output)" display string.
func (r Row) InOutSize() string {
	return fmt.Sprintf("(%d, %d)", r.Key.InputLen, r.Key.OutputLen)
}

// ParallelConfig is the "(tp, dp)" display string.
func (r Row) ParallelConfig() string {
	return fmt.Sprintf("(%d, %d)", r.Key.TPSize, r.Key.DPSize)
}
