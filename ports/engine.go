package ports

import (
	"context"

	"pseudobulk/domain/de"
)

// Model is the opaque fitted state the engine carries between Fit and Test.
// Its contents belong to the engine implementation.
type Model interface {
	Contrast() string
}

// Engine is the differential-expression test boundary. Implementations fit a
// per-gene dispersion and coefficient model over a pseudobulk count matrix
// with the cluster label as the sole covariate (no intercept), extract
// per-gene statistics, and moderate effect sizes.
//
// Per-gene undefined outcomes are part of the contract, not failures: an
// implementation may mark individual genes untestable (low counts) or as
// count outliers by setting their p-value/adjusted p-value to NaN.
type Engine interface {
	// Fit fits the model for one contrast
	Fit(ctx context.Context, contrast *de.Contrast, fitMethod string) (Model, error)

	// Test extracts per-gene effect sizes and significance, including the
	// independent-filtering mean threshold
	Test(ctx context.Context, model Model) (*de.ResultSet, error)

	// Shrink applies empirical-Bayes shrinkage to the fold-change estimates;
	// the shrunken values are the final exported effect sizes
	Shrink(ctx context.Context, model Model, results *de.ResultSet, method string) (*de.ResultSet, error)
}
