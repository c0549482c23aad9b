package contrast

import (
	"pseudobulk/domain/core"
	"pseudobulk/domain/de"
	"pseudobulk/domain/expr"
	"pseudobulk/internal/errors"
)

// Build produces the contrast list for a run: first one full design across
// every cluster of interest, then one contrast per unordered cluster pair,
// in cluster-list order.
//
// When outlierSample is non-empty, its columns are removed from every
// contrast before fitting; the empty marker leaves all contrasts unchanged.
// A contrast whose column set comes up empty after filtering is an
// EmptyContrast error.
func Build(pb *expr.PseudobulkMatrix, clusters []core.ClusterID, outlierSample core.SampleName) ([]*de.Contrast, error) {
	if len(clusters) < 2 {
		return nil, errors.InputValidationf("need at least two clusters of interest, got %d", len(clusters))
	}
	present := make(map[core.ClusterID]bool)
	for _, col := range pb.Columns {
		present[col.Cluster] = true
	}
	for _, c := range clusters {
		if !present[c] {
			return nil, errors.InputValidationf("cluster %s has no pseudobulk columns", c)
		}
	}

	contrasts := make([]*de.Contrast, 0, 1+len(clusters)*(len(clusters)-1)/2)

	full, err := build(pb, de.ContrastName(clusters), clusters, outlierSample, true)
	if err != nil {
		return nil, err
	}
	contrasts = append(contrasts, full)

	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			pair := []core.ClusterID{clusters[i], clusters[j]}
			c, err := build(pb, de.ContrastName(pair), pair, outlierSample, false)
			if err != nil {
				return nil, err
			}
			contrasts = append(contrasts, c)
		}
	}

	return contrasts, nil
}

// PairwiseOnly drops the leading full design, which exists for QC and
// exploration only; per-pair significance testing runs on the remainder.
func PairwiseOnly(contrasts []*de.Contrast) []*de.Contrast {
	if len(contrasts) > 0 && contrasts[0].Full {
		return contrasts[1:]
	}
	return contrasts
}

func build(pb *expr.PseudobulkMatrix, name string, clusters []core.ClusterID, outlierSample core.SampleName, full bool) (*de.Contrast, error) {
	wanted := make(map[core.ClusterID]bool, len(clusters))
	for _, c := range clusters {
		wanted[c] = true
	}

	var cols []int
	for j, key := range pb.Columns {
		if !wanted[key.Cluster] {
			continue
		}
		if outlierSample != "" && key.Sample == outlierSample {
			continue
		}
		cols = append(cols, j)
	}
	if len(cols) == 0 {
		return nil, errors.EmptyContrast(name)
	}

	sub := pb.Subset(cols)
	c, err := de.NewContrast(name, clusters, sub.Columns, sub, full)
	if err != nil {
		return nil, errors.Wrap(err, "invalid contrast")
	}
	return c, nil
}
