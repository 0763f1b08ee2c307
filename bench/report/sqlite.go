package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteTable is the table ExportSQLite (re)creates.
const SQLiteTable = "summary_report"

// sqliteColumns mirrors Columns with SQL-friendly names and types.
var sqliteColumns = []struct {
	name string
	typ  string
}{
	{"model", "TEXT NOT NULL"},
	{"input_len", "INTEGER NOT NULL"},
	{"output_len", "INTEGER NOT NULL"},
	{"in_out_size", "TEXT NOT NULL"},
	{"max_concurrency", "INTEGER NOT NULL"},
	{"tp_size", "INTEGER NOT NULL"},
	{"dp_size", "INTEGER NOT NULL"},
	{"parallel_config", "TEXT NOT NULL"},
	{"e2e_latency_s", "REAL"},
	{"request_throughput", "REAL"},
	{"output_token_throughput", "REAL"},
	{"total_token_throughput", "REAL"},
	{"mean_ttft_ms", "REAL"},
	{"mean_tpot_ms", "REAL"},
	{"mean_itl_ms", "REAL"},
	{"num_total_preemption", "INTEGER"},
}

// ExportSQLite replaces the summary table in the SQLite database at path with
// rows. Absent values are stored as NULL. Row order is kept in the implicit rowid.
func ExportSQLite(ctx context.Context, path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	names := make([]string, len(sqliteColumns))
	defs := make([]string, len(sqliteColumns))
	for i, c := range sqliteColumns {
		names[i] = c.name
		defs[i] = c.name + " " + c.typ
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+SQLiteTable); err != nil {
		return fmt.Errorf("dropping %s: %w", SQLiteTable, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", SQLiteTable, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("creating %s: %w", SQLiteTable, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", SQLiteTable,
		strings.Join(names, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range rows {
		res := r.Result
		_, err := stmt.ExecContext(ctx,
			r.Key.Model, r.Key.InputLen, r.Key.OutputLen, r.InOutSize(),
			r.Key.Concurrency, r.Key.TPSize, r.Key.DPSize, r.ParallelConfig(),
			nullFloat(res.Duration), nullFloat(res.RequestThroughput),
			nullFloat(res.OutputThroughput), nullFloat(res.TotalTokenThroughput),
			nullFloat(res.MeanTTFTMs), nullFloat(res.MeanTPOTMs), nullFloat(res.MeanITLMs),
			nullInt(r.Preemptions),
		)
		if err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", SQLiteTable, err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
