package ports

import (
	"context"

	"pseudobulk/domain/core"
	"pseudobulk/domain/de"
)

// ResultRepository persists DE results and run summaries. Persistence is
// optional: runs without a configured sink skip it entirely.
type ResultRepository interface {
	// SaveResults stores one contrast's per-gene results for a run
	SaveResults(ctx context.Context, runID core.RunID, set *de.ResultSet) error

	// SaveSummary stores one contrast's summary row for a run
	SaveSummary(ctx context.Context, runID core.RunID, summary de.ContrastSummary) error

	// GetSummaries returns the summary rows of a run
	GetSummaries(ctx context.Context, runID core.RunID) ([]de.ContrastSummary, error)
}
