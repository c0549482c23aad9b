package nbinom

import (
	"context"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"pseudobulk/domain/de"
	"pseudobulk/ports"
)

// Shrinkage methods accepted by Shrink
const (
	ShrinkNormal = "normal"
	ShrinkNone   = "none"
)

// Shrink moderates fold-change estimates with a zero-centered normal prior:
// each gene's log2 fold change is scaled by prior^2 / (prior^2 + se^2), so
// noisy estimates move toward zero while well-determined ones barely change.
// The prior scale comes from the upper tail of the observed fold changes.
// Test statistics and p-values are left as tested; only the exported effect
// size and its standard error are moderated.
func (e *Engine) Shrink(ctx context.Context, pm ports.Model, set *de.ResultSet, method string) (*de.ResultSet, error) {
	if _, ok := pm.(*model); !ok {
		return nil, fmt.Errorf("model was not fitted by this engine")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if method == "" {
		method = ShrinkNormal
	}
	if method == ShrinkNone {
		return set, nil
	}
	if method != ShrinkNormal {
		return nil, fmt.Errorf("unknown shrinkage method %q", method)
	}

	priorVar := estimatePriorVariance(set.Results)

	shrunk := make([]de.Result, len(set.Results))
	for i, r := range set.Results {
		out := r
		if !math.IsNaN(r.LfcSE) && r.LfcSE > 0 && priorVar > 0 {
			w := priorVar / (priorVar + r.LfcSE*r.LfcSE)
			out.Log2FoldChange = r.Log2FoldChange * w
			out.LfcSE = r.LfcSE * math.Sqrt(w)
		}
		shrunk[i] = out
	}

	return &de.ResultSet{
		Contrast:        set.Contrast,
		Test:            set.Test,
		FilterThreshold: set.FilterThreshold,
		Results:         shrunk,
	}, nil
}

// estimatePriorVariance derives the prior scale from the 90th percentile of
// the absolute observed fold changes. A degenerate distribution (all zero)
// yields zero, which disables shrinkage.
func estimatePriorVariance(results []de.Result) float64 {
	var absLFC []float64
	for _, r := range results {
		if !math.IsNaN(r.Log2FoldChange) && r.Log2FoldChange != 0 {
			absLFC = append(absLFC, math.Abs(r.Log2FoldChange))
		}
	}
	if len(absLFC) == 0 {
		return 0
	}
	q, err := stats.Percentile(absLFC, 90)
	if err != nil || q <= 0 {
		return 0
	}
	// Treat the 90th percentile as ~1.28 prior standard deviations
	sd := q / 1.28
	return sd * sd
}
