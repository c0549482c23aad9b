package nbinom

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"pseudobulk/domain/de"
	"pseudobulk/ports"
)

// pseudoCount stabilizes log fold changes of genes near zero
const pseudoCount = 0.5

// Test extracts per-gene Wald statistics for a fitted two-level model.
// The first cluster level is the numerator, the second the denominator, so
// positive fold changes mean higher expression in the first cluster.
//
// Genes masked by the influence diagnostic get NaN for pvalue and padj;
// genes suppressed by independent filtering keep their pvalue but get NaN
// padj. Neither is an error.
func (e *Engine) Test(ctx context.Context, pm ports.Model) (*de.ResultSet, error) {
	m, ok := pm.(*model)
	if !ok {
		return nil, fmt.Errorf("model was not fitted by this engine")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.levels) != 2 {
		return nil, fmt.Errorf("Wald test requires exactly two cluster levels, contrast %s has %d", m.contrast.Name, len(m.levels))
	}

	colsA := m.levelCols[m.levels[0]]
	colsB := m.levelCols[m.levels[1]]
	normal := distuv.UnitNormal

	results := make([]de.Result, len(m.contrast.Counts.Genes))
	for i, symbol := range m.contrast.Counts.Genes {
		row := m.norm[i]
		baseMean := stat.Mean(row, nil)

		muA := groupMean(row, colsA)
		muB := groupMean(row, colsB)
		disp := m.dispersions[i]

		lfc := math.Log2(muA+pseudoCount) - math.Log2(muB+pseudoCount)
		se := waldSE(muA, muB, disp, len(colsA), len(colsB))

		r := de.Result{
			Symbol:         symbol,
			BaseMean:       baseMean,
			Log2FoldChange: lfc,
			LfcSE:          se,
		}
		if baseMean == 0 || se == 0 || math.IsInf(se, 0) {
			// Untestable: no counts at all for this gene
			r.Stat = 0
			r.PValue = math.NaN()
			r.PAdj = math.NaN()
		} else {
			r.Stat = lfc / se
			r.PValue = 2 * normal.Survival(math.Abs(r.Stat))
		}
		results[i] = r
	}

	// Influence diagnostic: with enough replicates per level, a single
	// column dominating a gene invalidates its test rather than its
	// neighbors'.
	if minReplicates(m) >= e.config.MinReplicatesForOutliers {
		e.maskOutliers(m, results)
	}

	threshold := e.adjustPValues(results)

	return &de.ResultSet{
		Contrast:        m.contrast.Name,
		Test:            de.TestWald,
		FilterThreshold: threshold,
		Results:         results,
	}, nil
}

func groupMean(row []float64, cols []int) float64 {
	var sum float64
	for _, j := range cols {
		sum += row[j]
	}
	return sum / float64(len(cols))
}

// waldSE approximates the standard error of the log2 fold change by the
// delta method under NB variance mu + disp*mu^2 for each group mean.
func waldSE(muA, muB, disp float64, nA, nB int) float64 {
	varLog2 := func(mu float64, n int) float64 {
		m := mu + pseudoCount
		v := (m + disp*m*m) / float64(n)
		return v / (m * m * math.Ln2 * math.Ln2)
	}
	return math.Sqrt(varLog2(muA, nA) + varLog2(muB, nB))
}

func minReplicates(m *model) int {
	min := math.MaxInt
	for _, cols := range m.levelCols {
		if len(cols) < min {
			min = len(cols)
		}
	}
	return min
}

// maskOutliers applies a Cook's-style cutoff: per gene, the largest squared
// standardized residual against its level mean, scaled by the coefficient
// count, compared with an F quantile. Flagged genes keep their fold change
// but lose pvalue and padj.
func (e *Engine) maskOutliers(m *model, results []de.Result) {
	p := float64(len(m.levels))
	dfResid := float64(len(m.contrast.Columns)) - p
	if dfResid <= 0 {
		return
	}
	cutoff := distuv.F{D1: p, D2: dfResid}.Quantile(e.config.CooksQuantile)

	for i := range results {
		row := m.norm[i]
		disp := m.dispersions[i]
		maxInfluence := 0.0
		for _, level := range m.levels {
			cols := m.levelCols[level]
			mu := groupMean(row, cols)
			if mu <= 0 {
				continue
			}
			sd := math.Sqrt(mu + disp*mu*mu)
			for _, j := range cols {
				r := (row[j] - mu) / sd
				influence := r * r / p
				if influence > maxInfluence {
					maxInfluence = influence
				}
			}
		}
		if maxInfluence > cutoff {
			results[i].PValue = math.NaN()
			results[i].PAdj = math.NaN()
		}
	}
}

// adjustPValues runs Benjamini-Hochberg over the genes surviving independent
// filtering and returns the chosen mean-count threshold. The threshold scans
// the baseMean quantiles and keeps the one maximizing discoveries at the
// configured alpha, the usual independent-filtering construction. Genes
// below it get NaN padj while keeping their raw pvalue.
func (e *Engine) adjustPValues(results []de.Result) float64 {
	var baseMeans []float64
	for _, r := range results {
		baseMeans = append(baseMeans, r.BaseMean)
	}

	bestThreshold := 0.0
	bestRejections := -1
	for q := 0.0; q <= 0.95; q += 0.05 {
		threshold := 0.0
		if q > 0 {
			t, err := stats.Percentile(baseMeans, q*100)
			if err != nil {
				continue
			}
			threshold = t
		}
		rejections := countRejections(results, threshold, e.config.Alpha)
		if rejections > bestRejections {
			bestRejections = rejections
			bestThreshold = threshold
		}
	}

	applyBH(results, bestThreshold)
	return bestThreshold
}

// countRejections computes BH discoveries at alpha among genes passing the
// mean filter, without mutating results.
func countRejections(results []de.Result, threshold, alpha float64) int {
	var ps []float64
	for _, r := range results {
		if r.BaseMean >= threshold && r.PValueDefined() {
			ps = append(ps, r.PValue)
		}
	}
	if len(ps) == 0 {
		return 0
	}
	sort.Float64s(ps)
	m := float64(len(ps))
	rejections := 0
	for k := len(ps) - 1; k >= 0; k-- {
		if ps[k] <= float64(k+1)/m*alpha {
			rejections = k + 1
			break
		}
	}
	return rejections
}

// applyBH writes adjusted p-values in place for genes passing the filter
func applyBH(results []de.Result, threshold float64) {
	type entry struct {
		idx int
		p   float64
	}
	var entries []entry
	for i, r := range results {
		if r.BaseMean >= threshold && r.PValueDefined() {
			entries = append(entries, entry{idx: i, p: r.PValue})
		} else {
			results[i].PAdj = math.NaN()
		}
	}
	if len(entries) == 0 {
		return
	}

	sort.Slice(entries, func(a, b int) bool { return entries[a].p < entries[b].p })
	m := float64(len(entries))
	prev := 1.0
	for k := len(entries) - 1; k >= 0; k-- {
		adj := entries[k].p * m / float64(k+1)
		if adj > prev {
			adj = prev
		}
		prev = adj
		results[entries[k].idx].PAdj = adj
	}
}
