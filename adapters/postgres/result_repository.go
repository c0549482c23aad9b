// Package postgres persists run results for cross-run queries. The TSV
// artifacts remain the canonical output; the database is a convenience
// sink enabled by DATABASE_URL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"pseudobulk/domain/core"
	"pseudobulk/domain/de"
	"pseudobulk/internal/errors"
	"pseudobulk/ports"
)

// Connect opens and pings a PostgreSQL connection
func Connect(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return db, nil
}

// resultRepository implements the ResultRepository interface
type resultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *sqlx.DB) ports.ResultRepository {
	return &resultRepository{db: db}
}

// EnsureSchema creates the result tables if they do not exist
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS de_results (
		run_id TEXT NOT NULL,
		contrast TEXT NOT NULL,
		test TEXT NOT NULL,
		results JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (run_id, contrast)
	);
	CREATE TABLE IF NOT EXISTS de_summaries (
		run_id TEXT NOT NULL,
		contrast TEXT NOT NULL,
		up_count INT NOT NULL,
		down_count INT NOT NULL,
		nonzero_count INT NOT NULL,
		total_count INT NOT NULL,
		alpha DOUBLE PRECISION NOT NULL,
		lfc_threshold DOUBLE PRECISION NOT NULL,
		outlier_count INT NOT NULL,
		low_count INT NOT NULL,
		design TEXT NOT NULL,
		test TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (run_id, contrast)
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create result schema")
	}
	return nil
}

// SaveResults stores one contrast's per-gene results for a run. Results are
// stored as a JSONB document per contrast; per-gene rows are never queried
// individually.
func (r *resultRepository) SaveResults(ctx context.Context, runID core.RunID, set *de.ResultSet) error {
	resultsJSON, err := json.Marshal(jsonSafeResults(set.Results))
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	query := `INSERT INTO de_results (run_id, contrast, test, results)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, contrast) DO UPDATE SET test = $3, results = $4`

	_, err = r.db.ExecContext(ctx, query, runID.String(), set.Contrast, string(set.Test), resultsJSON)
	if err != nil {
		return fmt.Errorf("failed to save results for %s: %w", set.Contrast, err)
	}
	return nil
}

// SaveSummary stores one contrast's summary row for a run
func (r *resultRepository) SaveSummary(ctx context.Context, runID core.RunID, s de.ContrastSummary) error {
	query := `INSERT INTO de_summaries (
		run_id, contrast, up_count, down_count, nonzero_count, total_count,
		alpha, lfc_threshold, outlier_count, low_count, design, test
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (run_id, contrast) DO UPDATE SET
		up_count = $3, down_count = $4, nonzero_count = $5, total_count = $6,
		alpha = $7, lfc_threshold = $8, outlier_count = $9, low_count = $10,
		design = $11, test = $12`

	_, err := r.db.ExecContext(ctx, query,
		runID.String(), s.Contrast, s.Up, s.Down, s.NonZero, s.Total,
		s.Alpha, s.LFCThreshold, s.Outliers, s.LowCounts, s.Design, string(s.Test),
	)
	if err != nil {
		return fmt.Errorf("failed to save summary for %s: %w", s.Contrast, err)
	}
	return nil
}

// GetSummaries returns the summary rows of a run
func (r *resultRepository) GetSummaries(ctx context.Context, runID core.RunID) ([]de.ContrastSummary, error) {
	query := `SELECT contrast, up_count, down_count, nonzero_count, total_count,
		alpha, lfc_threshold, outlier_count, low_count, design, test
	FROM de_summaries WHERE run_id = $1 ORDER BY contrast`

	rows, err := r.db.QueryContext(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []de.ContrastSummary
	for rows.Next() {
		var s de.ContrastSummary
		var test string
		err := rows.Scan(&s.Contrast, &s.Up, &s.Down, &s.NonZero, &s.Total,
			&s.Alpha, &s.LFCThreshold, &s.Outliers, &s.LowCounts, &s.Design, &test)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.Test = de.TestKind(test)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, errors.NotFound(fmt.Sprintf("run %s", runID))
	}
	return summaries, nil
}

// jsonResult mirrors de.Result with NaN replaced by null, since JSON has no
// NaN literal.
type jsonResult struct {
	Symbol         core.GeneSymbol `json:"symbol"`
	BaseMean       *float64        `json:"base_mean"`
	Log2FoldChange *float64        `json:"log2_fold_change"`
	LfcSE          *float64        `json:"lfc_se"`
	Stat           *float64        `json:"stat"`
	PValue         *float64        `json:"p_value"`
	PAdj           *float64        `json:"p_adj"`
}

func jsonSafeResults(results []de.Result) []jsonResult {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{
			Symbol:         r.Symbol,
			BaseMean:       nullableFloat(r.BaseMean),
			Log2FoldChange: nullableFloat(r.Log2FoldChange),
			LfcSE:          nullableFloat(r.LfcSE),
			Stat:           nullableFloat(r.Stat),
			PValue:         nullableFloat(r.PValue),
			PAdj:           nullableFloat(r.PAdj),
		}
	}
	return out
}

func nullableFloat(v float64) *float64 {
	if v != v {
		return nil
	}
	return &v
}
