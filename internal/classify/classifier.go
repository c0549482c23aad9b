package classify

import (
	"pseudobulk/domain/core"
	"pseudobulk/domain/de"
)

// Classification holds the thresholded gene sets and exclusion counts for
// one contrast.
type Classification struct {
	Contrast string
	Up       *de.GeneSet
	Down     *de.GeneSet
	Changed  *de.GeneSet
	// LowCounts genes had a defined raw p-value but an undefined adjusted
	// p-value: suppressed by independent filtering, excluded from all sets.
	LowCounts int
	// Outliers genes had baseMean > 0 but an undefined raw p-value: masked
	// by the engine's influence diagnostic.
	Outliers int
}

// Classify thresholds a result set at FDR cutoff alpha and fold-change
// magnitude tau. A gene is up iff padj is defined, < alpha, and
// log2FoldChange > tau; down with < -tau. Up and down are disjoint by
// construction and changed is exactly their union.
func Classify(set *de.ResultSet, alpha, tau float64) *Classification {
	var up, down, changed []core.GeneSymbol
	lowCounts, outliers := 0, 0

	for _, r := range set.Results {
		if !r.PAdjDefined() {
			if r.PValueDefined() {
				lowCounts++
			} else if r.BaseMean > 0 {
				outliers++
			}
			continue
		}
		if r.PAdj >= alpha {
			continue
		}
		switch {
		case r.Log2FoldChange > tau:
			up = append(up, r.Symbol)
			changed = append(changed, r.Symbol)
		case r.Log2FoldChange < -tau:
			down = append(down, r.Symbol)
			changed = append(changed, r.Symbol)
		}
	}

	return &Classification{
		Contrast:  set.Contrast,
		Up:        de.NewGeneSet(set.Contrast, de.DirectionUp, up),
		Down:      de.NewGeneSet(set.Contrast, de.DirectionDown, down),
		Changed:   de.NewGeneSet(set.Contrast, de.DirectionChanged, changed),
		LowCounts: lowCounts,
		Outliers:  outliers,
	}
}

// Set returns the gene set for a direction
func (c *Classification) Set(d de.Direction) *de.GeneSet {
	switch d {
	case de.DirectionUp:
		return c.Up
	case de.DirectionDown:
		return c.Down
	default:
		return c.Changed
	}
}

// Summarize builds the summary-table row for one contrast. NonZero counts
// genes with any count in the contrast's own (post-filtering) columns, so
// outlier-sample removal is reflected rather than reported stale.
func Summarize(contrast *de.Contrast, set *de.ResultSet, cls *Classification, alpha, tau float64) de.ContrastSummary {
	return de.ContrastSummary{
		Contrast:     contrast.Name,
		Up:           cls.Up.Len(),
		Down:         cls.Down.Len(),
		NonZero:      contrast.Counts.NonZeroGenes(nil),
		Total:        len(contrast.Counts.Genes),
		Alpha:        alpha,
		LFCThreshold: tau,
		Outliers:     cls.Outliers,
		LowCounts:    cls.LowCounts,
		Design:       contrast.Design(),
		Test:         set.Test,
	}
}
