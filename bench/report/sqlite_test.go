package report

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuDinhKlopp/moe-offloading/bench/runkey"
)

func TestExportSQLite_RowsQueryable_AbsentAsNull(t *testing.T) {
	// GIVEN two rows, one without a preemption count or latency fields
	path := filepath.Join(t.TempDir(), "summary.db")
	rows := []Row{
		{
			Key:         runkey.ConfigKey{Model: "gpt-oss-120b", InputLen: 4096, OutputLen: 1024, TPSize: 1, DPSize: 4, Concurrency: 8},
			Result:      BenchmarkResult{Duration: f64(12.3), RequestThroughput: f64(4.5)},
			Preemptions: i64(96),
		},
		{Key: runkey.ConfigKey{Model: "m", Concurrency: 1}},
	}

	// WHEN exported
	require.NoError(t, ExportSQLite(context.Background(), path, rows))

	// THEN the table holds both rows in order with NULLs for absent values
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+SQLiteTable).Scan(&count))
	assert.Equal(t, 2, count)

	var (
		model       string
		parallel    string
		duration    sql.NullFloat64
		preemptions sql.NullInt64
	)
	require.NoError(t, db.QueryRow(
		"SELECT model, parallel_config, e2e_latency_s, num_total_preemption FROM "+SQLiteTable+" ORDER BY rowid LIMIT 1",
	).Scan(&model, &parallel, &duration, &preemptions))
	assert.Equal(t, "gpt-oss-120b", model)
	assert.Equal(t, "(1, 4)", parallel)
	assert.Equal(t, sql.NullFloat64{Float64: 12.3, Valid: true}, duration)
	assert.Equal(t, sql.NullInt64{Int64: 96, Valid: true}, preemptions)

	require.NoError(t, db.QueryRow(
		"SELECT e2e_latency_s, num_total_preemption FROM "+SQLiteTable+" WHERE model = 'm'",
	).Scan(&duration, &preemptions))
	assert.False(t, duration.Valid)
	assert.False(t, preemptions.Valid)
}

func TestExportSQLite_Rerun_ReplacesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.db")
	ctx := context.Background()
	require.NoError(t, ExportSQLite(ctx, path, []Row{{Key: runkey.ConfigKey{Model: "a"}}, {Key: runkey.ConfigKey{Model: "b"}}}))
	require.NoError(t, ExportSQLite(ctx, path, []Row{{Key: runkey.ConfigKey{Model: "c"}}}))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+SQLiteTable).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteColumns_MirrorCSVColumns(t *testing.T) {
	assert.Len(t, sqliteColumns, len(Columns))
}
