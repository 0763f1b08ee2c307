package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	mibPerGiB = 1024
	kibPerMiB = 1024
)

// queryFields are the nvidia-smi --query-gpu fields read each tick, in column order.
var queryFields = []string{"index", "utilization.gpu", "memory.used", "memory.total"}

// runFunc executes a command and returns its standard output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// NvidiaSMI samples devices through the nvidia-smi binary. Utilization and memory
// come from --query-gpu; PCIe throughput comes from a one-shot dmon sample and is
// left absent when dmon is unavailable.
type NvidiaSMI struct {
	Binary string
	run    runFunc
}

// NewNvidiaSMI returns a source that runs binary, or "nvidia-smi" from PATH when
// binary is empty.
func NewNvidiaSMI(binary string) *NvidiaSMI {
	if binary == "" {
		binary = "nvidia-smi"
	}
	return &NvidiaSMI{Binary: binary, run: execRun}
}

// Sample implements Source.
func (n *NvidiaSMI) Sample(ctx context.Context) ([]DeviceSample, error) {
	out, err := n.run(ctx, n.Binary,
		"--query-gpu="+strings.Join(queryFields, ","),
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", n.Binary, err)
	}
	samples, err := parseQueryGPU(out)
	if err != nil {
		return nil, err
	}

	dmon, err := n.run(ctx, n.Binary, "dmon", "-s", "t", "-c", "1")
	if err != nil {
		logrus.Debugf("telemetry: PCIe throughput unavailable: %v", err)
		return samples, nil
	}
	pcie := parseDmonPCIe(dmon)
	for i := range samples {
		if p, ok := pcie[samples[i].Index]; ok {
			rx, tx := p.rxMiBps*kibPerMiB, p.txMiBps*kibPerMiB
			samples[i].PCIeRxKiBps = &rx
			samples[i].PCIeTxKiBps = &tx
		}
	}
	return samples, nil
}

// parseQueryGPU parses "index, util, mem.used, mem.total" lines. Memory is
// reported in MiB and converted to GiB. Unsupported fields become nil.
func parseQueryGPU(out []byte) ([]DeviceSample, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = len(queryFields)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing nvidia-smi output: %w", err)
	}

	samples := make([]DeviceSample, 0, len(records))
	for _, rec := range records {
		idx, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("parsing nvidia-smi gpu index %q: %w", rec[0], err)
		}
		s := DeviceSample{
			Index:       idx,
			UtilPercent: parseReading(rec[1]),
			MemUsedGiB:  parseReading(rec[2]),
			MemTotalGiB: parseReading(rec[3]),
		}
		for _, m := range []*float64{s.MemUsedGiB, s.MemTotalGiB} {
			if m != nil {
				*m /= mibPerGiB
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// parseReading returns nil for "[N/A]", "[Not Supported]" and anything else
// that is not a number.
func parseReading(field string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return nil
	}
	return &v
}

type pcieReading struct {
	rxMiBps float64
	txMiBps float64
}

// parseDmonPCIe reads "nvidia-smi dmon -s t" output. Column positions come from
// the "# gpu rxpci txpci" header; "-" readings are dropped.
func parseDmonPCIe(out []byte) map[int]pcieReading {
	readings := make(map[int]pcieReading)
	gpuCol, rxCol, txCol := -1, -1, -1

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "#" {
			if gpuCol >= 0 {
				continue // units line
			}
			for i, name := range fields[1:] {
				switch strings.ToLower(name) {
				case "gpu", "idx":
					gpuCol = i
				case "rxpci":
					rxCol = i
				case "txpci":
					txCol = i
				}
			}
			continue
		}
		if gpuCol < 0 || rxCol < 0 || txCol < 0 {
			continue
		}
		if len(fields) <= max(gpuCol, rxCol, txCol) {
			continue
		}
		idx, err := strconv.Atoi(fields[gpuCol])
		if err != nil {
			continue
		}
		rx, errRx := strconv.ParseFloat(fields[rxCol], 64)
		tx, errTx := strconv.ParseFloat(fields[txCol], 64)
		if errRx != nil || errTx != nil {
			continue
		}
		readings[idx] = pcieReading{rxMiBps: rx, txMiBps: tx}
	}
	return readings
}
