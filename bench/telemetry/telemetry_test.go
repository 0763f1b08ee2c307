package telemetry

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource returns two devices per call and cancels after cancelAfter calls.
type fakeSource struct {
	calls       int
	cancelAfter int
	cancel      context.CancelFunc
	failOn      int
}

func (f *fakeSource) Sample(ctx context.Context) ([]DeviceSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.calls++
	if f.cancelAfter > 0 && f.calls == f.cancelAfter {
		f.cancel()
	}
	if f.calls == f.failOn {
		return nil, errors.New("device busy")
	}
	util := float64(10 * f.calls)
	return []DeviceSample{
		{Index: 0, UtilPercent: &util},
		{Index: 1, UtilPercent: &util},
	}, nil
}

func readLog(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Equal(t, Columns, records[0])
	return records[1:]
}

func TestMonitor_CancelledAfterThreeTicks_ThreeTicksOfRows(t *testing.T) {
	// GIVEN a source that cancels the run on its third sample
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{cancelAfter: 3, cancel: cancel}
	var buf bytes.Buffer

	// WHEN monitored with step and layer labels
	err := Monitor(ctx, src, &buf, Options{
		Interval: time.Millisecond,
		Labels:   StaticLabels("7", "12"),
	})

	// THEN every device is logged once per tick with the labels
	require.NoError(t, err)
	rows := readLog(t, &buf)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"7", "12", "0", "10", "", "", "", ""}, rows[0])
	assert.Equal(t, []string{"7", "12", "1", "30", "", "", "", ""}, rows[5])
}

func TestMonitor_DurationElapsed_StopsAfterFirstTick(t *testing.T) {
	src := &fakeSource{}
	var buf bytes.Buffer

	err := Monitor(context.Background(), src, &buf, Options{Interval: time.Hour, Duration: time.Nanosecond})

	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	rows := readLog(t, &buf)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[0][0])
}

func TestMonitor_SampleError_TickSkipped(t *testing.T) {
	// GIVEN a source whose second sample fails
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{cancelAfter: 3, cancel: cancel, failOn: 2}
	var buf bytes.Buffer

	// WHEN monitored
	err := Monitor(ctx, src, &buf, Options{Interval: time.Millisecond})

	// THEN the run continues and only the good ticks are logged
	require.NoError(t, err)
	rows := readLog(t, &buf)
	require.Len(t, rows, 4)
	assert.Equal(t, "10", rows[0][3])
	assert.Equal(t, "30", rows[2][3])
}

func TestMonitor_InvalidOptions_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Monitor(context.Background(), &fakeSource{}, &buf, Options{}))
	assert.Error(t, Monitor(context.Background(), &fakeSource{}, &buf, Options{Interval: time.Second, Duration: -time.Second}))
}

func TestParseQueryGPU_ConvertsMemoryAndHandlesNA(t *testing.T) {
	out := []byte("0, 87, 40960, 81920\n1, [N/A], 1024, 81920\n")

	samples, err := parseQueryGPU(out)

	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 0, samples[0].Index)
	require.NotNil(t, samples[0].UtilPercent)
	assert.Equal(t, 87.0, *samples[0].UtilPercent)
	assert.Equal(t, 40.0, *samples[0].MemUsedGiB)
	assert.Equal(t, 80.0, *samples[0].MemTotalGiB)
	assert.Nil(t, samples[1].UtilPercent)
	assert.Equal(t, 1.0, *samples[1].MemUsedGiB)
}

func TestParseQueryGPU_BadIndex_ReturnsError(t *testing.T) {
	_, err := parseQueryGPU([]byte("x, 1, 2, 3\n"))
	assert.Error(t, err)
}

func TestParseDmonPCIe_ReadsColumnsFromHeader(t *testing.T) {
	out := []byte(strings.Join([]string{
		"# gpu  rxpci  txpci",
		"# Idx   MB/s   MB/s",
		"    0    120     34",
		"    1      -      -",
	}, "\n"))

	readings := parseDmonPCIe(out)

	require.Len(t, readings, 1)
	assert.Equal(t, pcieReading{rxMiBps: 120, txMiBps: 34}, readings[0])
}

func TestNvidiaSMI_Sample_MergesPCIe(t *testing.T) {
	// GIVEN a stubbed nvidia-smi answering both invocations
	n := NewNvidiaSMI("")
	n.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		require.Equal(t, "nvidia-smi", name)
		if args[0] == "dmon" {
			return []byte("# gpu rxpci txpci\n# Idx MB/s MB/s\n 0 2 1\n"), nil
		}
		return []byte("0, 50, 2048, 4096\n"), nil
	}

	// WHEN sampled
	samples, err := n.Sample(context.Background())

	// THEN throughput is reported in KiB/s
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 2048.0, *samples[0].PCIeRxKiBps)
	assert.Equal(t, 1024.0, *samples[0].PCIeTxKiBps)
}

func TestNvidiaSMI_DmonFails_PCIeAbsent(t *testing.T) {
	n := NewNvidiaSMI("/opt/nvidia-smi")
	n.run = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if args[0] == "dmon" {
			return nil, fmt.Errorf("dmon not supported")
		}
		return []byte("0, 50, 2048, 4096\n"), nil
	}

	samples, err := n.Sample(context.Background())

	require.NoError(t, err)
	assert.Nil(t, samples[0].PCIeRxKiBps)
	assert.Nil(t, samples[0].PCIeTxKiBps)
}

func TestNvidiaSMI_BinaryFails_ReturnsError(t *testing.T) {
	n := NewNvidiaSMI("")
	n.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("not found")
	}

	_, err := n.Sample(context.Background())

	assert.Error(t, err)
}
