// Package promquery scrapes a single PromQL value from a Prometheus server and
// records it in an observability metric file.
package promquery

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"github.com/ChuDinhKlopp/moe-offloading/bench/metricfile"
)

// DefaultAddress is the Prometheus server the benchmark scripts run next to vLLM.
const DefaultAddress = "http://localhost:9090"

// Client runs instant queries against one Prometheus server.
type Client struct {
	api     v1.API
	timeout time.Duration
	now     func() time.Time
}

// New creates a client for the server at address. A zero timeout leaves the
// query unbounded apart from ctx.
func New(address string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("prometheus address must not be empty")
	}
	c, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	return &Client{api: v1.NewAPI(c), timeout: timeout, now: time.Now}, nil
}

// Query evaluates expr at the current time and returns the first sample's value.
// An empty result yields a Record with a nil Value, not an error.
func (c *Client) Query(ctx context.Context, expr string) (metricfile.Record, error) {
	rec := metricfile.Record{Name: expr}

	var opts []v1.Option
	if c.timeout > 0 {
		opts = append(opts, v1.WithTimeout(c.timeout))
	}
	result, warnings, err := c.api.Query(ctx, expr, c.now(), opts...)
	if err != nil {
		return rec, fmt.Errorf("querying %q: %w", expr, err)
	}
	for _, w := range warnings {
		logrus.Warnf("prometheus warning for %q: %s", expr, w)
	}

	var value model.SampleValue
	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			logrus.Warnf("prometheus returned an empty result for %q", expr)
			return rec, nil
		}
		if len(v) > 1 {
			logrus.Debugf("prometheus returned %d series for %q; using the first", len(v), expr)
		}
		value = v[0].Value
	case *model.Scalar:
		value = v.Value
	default:
		return rec, fmt.Errorf("querying %q: unsupported result type %s", expr, result.Type())
	}

	f := float64(value)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		logrus.Warnf("prometheus returned non-finite value %v for %q", f, expr)
		return rec, nil
	}
	rec.Value = &f
	return rec, nil
}

// QueryAndAppend queries expr and appends the result to the metric file at path.
// An empty result is still recorded, as a row with an empty value.
func (c *Client) QueryAndAppend(ctx context.Context, expr, path string) (metricfile.Record, error) {
	rec, err := c.Query(ctx, expr)
	if err != nil {
		return rec, err
	}
	if err := metricfile.Append(path, rec); err != nil {
		return rec, fmt.Errorf("recording %q: %w", expr, err)
	}
	return rec, nil
}
