// Package bench groups the tooling that turns MoE-offloading benchmark runs into
// a summary report.
//
// # Reading Guide
//
// Data flows through the sub-packages in this order:
//   - runkey/: the naming scheme. A ConfigKey (model, input/output length, TP, DP,
//     concurrency) is decoded from observability file names and benchmark folder names.
//   - metricfile/: the two-column "metric,val" CSV written next to each run.
//   - report/: builds the observability index, walks benchmark folders, joins the two
//     on ConfigKey and writes the 16-column summary CSV (optionally a SQLite table).
//
// # Collectors
//
// Two packages produce the inputs the report consumes:
//   - promquery/: scrapes a PromQL value (preemptions by default) into a metric file.
//   - telemetry/: samples per-GPU utilization, PCIe throughput and memory while a run
//     is in flight.
//
// The cmd/ package wires all of these behind the moe-bench CLI.
package bench
