package metricfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_MatchingRow_ReturnsValue(t *testing.T) {
	body := "metric,val\nsum(vllm:num_preemptions_total),96\n"

	v, err := Lookup(strings.NewReader(body), PreemptionsMetric)

	require.NoError(t, err)
	assert.Equal(t, 96.0, v)
}

func TestLookup_FirstMatchWins(t *testing.T) {
	body := "metric,val\nfoo,1\nfoo,2\n"

	v, err := Lookup(strings.NewReader(body), "foo")

	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestLookup_ExactNameMatchOnly(t *testing.T) {
	body := "metric,val\nsum(vllm:num_preemptions_total) ,5\nSUM(vllm:num_preemptions_total),6\n"

	_, err := Lookup(strings.NewReader(body), PreemptionsMetric)

	assert.True(t, errors.Is(err, ErrMetricNotFound))
}

func TestLookup_MissingMetric_ReturnsErrMetricNotFound(t *testing.T) {
	body := "metric,val\nsum(vllm:num_requests_running),3\n"

	_, err := Lookup(strings.NewReader(body), PreemptionsMetric)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMetricNotFound))
}

func TestLookup_NonNumericValue_ReturnsErrMetricNotFound(t *testing.T) {
	for _, val := range []string{"", "n/a", "NaN", "+Inf", "12abc"} {
		t.Run(val, func(t *testing.T) {
			body := "metric,val\n" + PreemptionsMetric + "," + val + "\n"
			_, err := Lookup(strings.NewReader(body), PreemptionsMetric)
			assert.True(t, errors.Is(err, ErrMetricNotFound))
		})
	}
}

func TestLookup_MalformedOtherRows_Tolerated(t *testing.T) {
	// GIVEN rows that are short, ragged or non-numeric around the target row
	body := "metric,val\nlonely\nother,not-a-number\nx,1,extra\n" + PreemptionsMetric + ",7\n"

	v, err := Lookup(strings.NewReader(body), PreemptionsMetric)

	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestLookup_ColumnsLocatedByHeader(t *testing.T) {
	body := "val,metric\n42," + PreemptionsMetric + "\n"

	v, err := Lookup(strings.NewReader(body), PreemptionsMetric)

	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestLookup_BadHeader_ReturnsError(t *testing.T) {
	_, err := Lookup(strings.NewReader("name,value\nfoo,1\n"), "foo")
	assert.Error(t, err)
}

func TestLookup_EmptyFile_ReturnsErrMetricNotFound(t *testing.T) {
	_, err := Lookup(strings.NewReader(""), PreemptionsMetric)
	assert.True(t, errors.Is(err, ErrMetricNotFound))
}

func TestLookupCount_FractionalValue_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	require.NoError(t, os.WriteFile(path, []byte("metric,val\n"+PreemptionsMetric+",96.7\n"), 0o644))

	n, err := LookupCount(path, PreemptionsMetric)

	require.NoError(t, err)
	assert.Equal(t, int64(96), n)
}

func TestLookupCount_MissingFile_ReturnsError(t *testing.T) {
	_, err := LookupCount(filepath.Join(t.TempDir(), "nope.csv"), PreemptionsMetric)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrMetricNotFound))
}

func TestAppend_NewFile_WritesHeaderOnce(t *testing.T) {
	// GIVEN no file yet
	path := filepath.Join(t.TempDir(), "obs.csv")
	first, second := 96.0, 1.5

	// WHEN two records are appended
	require.NoError(t, Append(path, Record{Name: PreemptionsMetric, Value: &first}))
	require.NoError(t, Append(path, Record{Name: "other", Value: &second}))

	// THEN the header appears once, followed by both rows
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "metric,val\n"+PreemptionsMetric+",96\nother,1.5\n", string(data))
}

func TestAppend_EmptyExistingFile_WritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, Append(path, Record{Name: "m"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "metric,val\nm,\n", string(data))
}

func TestAppend_ThenLookup_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	v := 12.0
	require.NoError(t, Append(path, Record{Name: PreemptionsMetric, Value: &v}))

	n, err := LookupCount(path, PreemptionsMetric)

	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
