// Package nbinom implements the differential-expression engine port with a
// compact negative-binomial Wald test: median-of-ratios size factors,
// moment-based gene dispersions moderated toward a fitted trend, per-cluster
// mean coefficients (no intercept), BH adjustment with independent filtering,
// and normal-prior shrinkage of fold changes.
package nbinom

import (
	"context"
	"fmt"

	"pseudobulk/domain/core"
	"pseudobulk/domain/de"
	"pseudobulk/ports"
)

// Config holds the engine's statistical knobs
type Config struct {
	// Alpha is the FDR target used when optimizing the independent
	// filtering threshold. Distinct from any classification cutoff the
	// caller applies afterwards.
	Alpha float64
	// CooksQuantile is the F-distribution quantile for the count-outlier
	// cutoff.
	CooksQuantile float64
	// MinReplicatesForOutliers disables outlier masking for contrasts with
	// fewer replicate columns per cluster level.
	MinReplicatesForOutliers int
}

// DefaultConfig mirrors the conventional defaults of reference NB engines
func DefaultConfig() Config {
	return Config{
		Alpha:                    0.1,
		CooksQuantile:            0.99,
		MinReplicatesForOutliers: 3,
	}
}

// Engine is the negative-binomial Wald implementation of ports.Engine
type Engine struct {
	config Config
}

// New creates an engine with the given configuration
func New(config Config) *Engine {
	if config.Alpha <= 0 || config.Alpha >= 1 {
		config.Alpha = 0.1
	}
	if config.CooksQuantile <= 0 || config.CooksQuantile >= 1 {
		config.CooksQuantile = 0.99
	}
	if config.MinReplicatesForOutliers <= 0 {
		config.MinReplicatesForOutliers = 3
	}
	return &Engine{config: config}
}

var _ ports.Engine = (*Engine)(nil)

// model carries the fitted per-contrast state between Fit and Test
type model struct {
	contrast    *de.Contrast
	levels      []core.ClusterID         // unique cluster levels, contrast order
	levelCols   map[core.ClusterID][]int // column positions per level
	sizeFactors []float64
	norm        [][]float64 // size-factor normalized counts
	dispersions []float64   // final per-gene dispersion
	fitMethod   string
}

func (m *model) Contrast() string {
	return m.contrast.Name
}

// Fit estimates size factors and per-gene dispersions for one contrast.
// Every cluster level of the design must have at least one column;
// otherwise the design matrix would carry an empty group and fitting fails.
func (e *Engine) Fit(ctx context.Context, contrast *de.Contrast, fitMethod string) (ports.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	levelCols := make(map[core.ClusterID][]int, len(contrast.Clusters))
	for j, key := range contrast.Columns {
		levelCols[key.Cluster] = append(levelCols[key.Cluster], j)
	}
	for _, level := range contrast.Clusters {
		if len(levelCols[level]) == 0 {
			return nil, fmt.Errorf("cluster level %s has no columns in contrast %s", level, contrast.Name)
		}
	}

	counts := contrast.Counts
	sizeFactors, err := estimateSizeFactors(counts.Data)
	if err != nil {
		return nil, fmt.Errorf("size factor estimation: %w", err)
	}

	norm := normalizeCounts(counts.Data, sizeFactors)

	m := &model{
		contrast:    contrast,
		levels:      contrast.Clusters,
		levelCols:   levelCols,
		sizeFactors: sizeFactors,
		norm:        norm,
		fitMethod:   fitMethod,
	}

	dispersions, err := estimateDispersions(norm, levelCols, fitMethod)
	if err != nil {
		return nil, fmt.Errorf("dispersion estimation: %w", err)
	}
	m.dispersions = dispersions

	return m, nil
}
