// Package runkey encodes and decodes benchmark run configurations to and from the
// directory and file names the benchmark scripts produce, e.g.
//
//	report_in4096_out1024_gpt-oss-120b_tp1_dp4_ep1_off2_con8
//
// The decoded ConfigKey is the join key between benchmark results and
// observability metrics. This package has no dependencies on the rest of bench/.
package runkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Separator joins the segments of a run name.
const Separator = "_"

// ConfigKey identifies one benchmark run. It is comparable and is used directly
// as a map key; equality is structural.
type ConfigKey struct {
	Model       string
	InputLen    int
	OutputLen   int
	TPSize      int
	DPSize      int
	Concurrency int
}

// String renders the key for log messages.
func (k ConfigKey) String() string {
	return fmt.Sprintf("%s in=%d out=%d tp=%d dp=%d con=%d",
		k.Model, k.InputLen, k.OutputLen, k.TPSize, k.DPSize, k.Concurrency)
}

// RunName is a fully decoded run name. ExpertParallel and Offload are carried in
// the name but are not part of the join key.
type RunName struct {
	Key            ConfigKey
	ExpertParallel int
	Offload        int
}

// FormatError reports a name that does not follow the naming schema.
type FormatError struct {
	Name   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed run name %q: %s", e.Name, e.Reason)
}

// segmentKind is the type of value a segment carries.
type segmentKind int

const (
	kindTag segmentKind = iota
	kindInt
	kindModel
)

// segment describes one position of the naming schema.
type segment struct {
	prefix string
	field  string
	kind   segmentKind
}

// layout is the ordered schema shared by every run name. Segments before the
// model are anchored from the front, segments after it from the back.
var layout = []segment{
	{field: "tag", kind: kindTag},
	{prefix: "in", field: "input_len", kind: kindInt},
	{prefix: "out", field: "output_len", kind: kindInt},
	{field: "model", kind: kindModel},
	{prefix: "tp", field: "tp_size", kind: kindInt},
	{prefix: "dp", field: "dp_size", kind: kindInt},
	{prefix: "ep", field: "ep_size", kind: kindInt},
	{prefix: "off", field: "offload", kind: kindInt},
	{prefix: "con", field: "concurrency", kind: kindInt},
}

// modelIndex is the position of the model segment in layout.
const modelIndex = 3

// Schema is one naming convention, distinguished by its leading tag.
type Schema struct {
	Tag string
}

var (
	// Observability names the per-run metric files, e.g. obs_in4096_..._con8.csv (stem only).
	Observability = Schema{Tag: "obs"}
	// Benchmark names the per-run report folders, e.g. report_in4096_..._con8.
	Benchmark = Schema{Tag: "report"}
)

// Matches reports whether name starts with the schema's tag and separator. It is a
// cheap filter for directory scans; Parse does the full validation.
func (s Schema) Matches(name string) bool {
	return strings.HasPrefix(name, s.Tag+Separator)
}

// Encode renders a run name. Decoding the result yields n again.
func (s Schema) Encode(n RunName) string {
	k := n.Key
	parts := []string{
		s.Tag,
		"in" + strconv.Itoa(k.InputLen),
		"out" + strconv.Itoa(k.OutputLen),
		k.Model,
		"tp" + strconv.Itoa(k.TPSize),
		"dp" + strconv.Itoa(k.DPSize),
		"ep" + strconv.Itoa(n.ExpertParallel),
		"off" + strconv.Itoa(n.Offload),
		"con" + strconv.Itoa(k.Concurrency),
	}
	return strings.Join(parts, Separator)
}

// Decode parses name and returns its join key.
func (s Schema) Decode(name string) (ConfigKey, error) {
	n, err := s.Parse(name)
	if err != nil {
		return ConfigKey{}, err
	}
	return n.Key, nil
}

// Parse validates name against the schema and returns every field it carries.
//
// A model identifier may itself contain the separator: the fields before the
// model are matched from the front and the fields after it from the back, and
// whatever remains is the model. This only works because no other segment can
// contain the separator.
func (s Schema) Parse(name string) (RunName, error) {
	parts := strings.Split(name, Separator)
	if len(parts) < len(layout) {
		return RunName{}, &FormatError{Name: name,
			Reason: fmt.Sprintf("has %d segments, want %d", len(parts), len(layout))}
	}

	// Align each layout position to the raw segment(s) it covers.
	tail := len(layout) - modelIndex - 1
	modelEnd := len(parts) - tail
	values := make(map[string]int, len(layout))
	var model string

	for i, seg := range layout {
		var raw string
		switch {
		case i < modelIndex:
			raw = parts[i]
		case i == modelIndex:
			raw = strings.Join(parts[modelIndex:modelEnd], Separator)
		default:
			raw = parts[modelEnd+i-modelIndex-1]
		}

		switch seg.kind {
		case kindTag:
			if raw != s.Tag {
				return RunName{}, &FormatError{Name: name,
					Reason: fmt.Sprintf("tag is %q, want %q", raw, s.Tag)}
			}
		case kindModel:
			if raw == "" {
				return RunName{}, &FormatError{Name: name, Reason: "empty model identifier"}
			}
			model = raw
		case kindInt:
			v, err := parseField(raw, seg)
			if err != nil {
				return RunName{}, &FormatError{Name: name, Reason: err.Error()}
			}
			values[seg.field] = v
		}
	}

	return RunName{
		Key: ConfigKey{
			Model:       model,
			InputLen:    values["input_len"],
			OutputLen:   values["output_len"],
			TPSize:      values["tp_size"],
			DPSize:      values["dp_size"],
			Concurrency: values["concurrency"],
		},
		ExpertParallel: values["ep_size"],
		Offload:        values["offload"],
	}, nil
}

// parseField strips the segment's literal prefix and parses a non-negative decimal.
func parseField(raw string, seg segment) (int, error) {
	if !strings.HasPrefix(raw, seg.prefix) {
		return 0, fmt.Errorf("%s segment %q lacks prefix %q", seg.field, raw, seg.prefix)
	}
	digits := raw[len(seg.prefix):]
	v, err := strconv.ParseUint(digits, 10, 31)
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%s segment %q: %s is out of range", seg.field, raw, digits)
	}
	if err != nil {
		return 0, fmt.Errorf("%s segment %q: %q is not a non-negative integer", seg.field, raw, digits)
	}
	return int(v), nil
}

// DecodeObservabilityName decodes the stem of an observability file name.
func DecodeObservabilityName(name string) (ConfigKey, error) {
	return Observability.Decode(name)
}

// DecodeBenchmarkName decodes a benchmark report folder name.
func DecodeBenchmarkName(name string) (ConfigKey, error) {
	return Benchmark.Decode(name)
}
