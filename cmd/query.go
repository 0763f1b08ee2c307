package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ChuDinhKlopp/moe-offloading/bench/metricfile"
	"github.com/ChuDinhKlopp/moe-offloading/bench/promquery"
)

var (
	queryURL     string        // Prometheus server address
	queryMetric  string        // PromQL expression
	queryLogfile string        // Observability metric file to append to
	queryTimeout time.Duration // Server-side query timeout
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Record a Prometheus metric in an observability file",
	Long: "Runs one instant PromQL query and appends a metric,val row to --logfile. " +
		"Name the file obs_in<N>_out<N>_<model>_tp<N>_dp<N>_ep<N>_off<N>_con<N>.csv so compile can join it.",
	Run: func(cmd *cobra.Command, args []string) {
		address := resolveQueryURL(cmd)
		client, err := promquery.New(address, queryTimeout)
		if err != nil {
			logrus.Fatalf("Invalid Prometheus address: %v", err)
		}
		rec, err := client.QueryAndAppend(cmd.Context(), queryMetric, queryLogfile)
		if err != nil {
			logrus.Fatalf("Prometheus query failed: %v", err)
		}
		value := metricfile.FormatValue(rec.Value)
		if value == "" {
			value = "<empty>"
		}
		fmt.Printf("%s = %s (appended to %s)\n", rec.Name, value, queryLogfile)
	},
}

// resolveQueryURL prefers --url, then PROMETHEUS_URL, then the flag default.
func resolveQueryURL(cmd *cobra.Command) string {
	if !cmd.Flags().Changed("url") {
		if v := os.Getenv(envPrometheusURL); v != "" {
			return v
		}
	}
	return queryURL
}

func init() {
	queryCmd.Flags().StringVar(&queryURL, "url", promquery.DefaultAddress, "Prometheus server address (env "+envPrometheusURL+")")
	queryCmd.Flags().StringVar(&queryMetric, "metric", metricfile.PreemptionsMetric, "PromQL expression to record")
	queryCmd.Flags().StringVar(&queryLogfile, "logfile", "", "Observability metric file to append to")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 10*time.Second, "Query timeout (0 = none)")
	_ = queryCmd.MarkFlagRequired("logfile")

	rootCmd.AddCommand(queryCmd)
}
