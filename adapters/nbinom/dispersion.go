package nbinom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"pseudobulk/domain/core"
)

// Dispersion fit methods accepted by Fit
const (
	FitParametric = "parametric"
	FitMean       = "mean"
)

const minDispersion = 1e-8

// estimateDispersions produces one dispersion per gene: a moment estimate
// from within-level variability, moderated toward a trend over the mean.
//
// Method "parametric" fits the classic trend disp(mu) = a0 + a1/mu over the
// positive moment estimates; "mean" uses their plain average as a flat
// trend. The final value is the log-space midpoint of the gene estimate and
// the trend, which tames the noise of few-replicate moment estimates
// without erasing genuine gene-to-gene differences.
func estimateDispersions(norm [][]float64, levelCols map[core.ClusterID][]int, fitMethod string) ([]float64, error) {
	if fitMethod == "" {
		fitMethod = FitParametric
	}
	if fitMethod != FitParametric && fitMethod != FitMean {
		return nil, fmt.Errorf("unknown dispersion fit method %q", fitMethod)
	}

	raw := make([]float64, len(norm))
	baseMean := make([]float64, len(norm))
	for i, row := range norm {
		baseMean[i] = stat.Mean(row, nil)
		raw[i] = momentDispersion(row, levelCols)
	}

	trend, err := fitTrend(raw, baseMean, fitMethod)
	if err != nil {
		return nil, err
	}

	final := make([]float64, len(norm))
	for i := range norm {
		t := trend(baseMean[i])
		g := raw[i]
		if g < minDispersion {
			final[i] = t
			continue
		}
		// Log-space midpoint between gene estimate and trend
		final[i] = math.Exp((math.Log(g) + math.Log(t)) / 2)
	}
	return final, nil
}

// momentDispersion is the method-of-moments estimate pooled within cluster
// levels: (pooled within-level variance - mean) / mean^2, floored at zero.
func momentDispersion(row []float64, levelCols map[core.ClusterID][]int) float64 {
	mean := stat.Mean(row, nil)
	if mean <= 0 {
		return 0
	}

	var ssq float64
	var df int
	for _, cols := range levelCols {
		if len(cols) < 2 {
			continue
		}
		group := make([]float64, len(cols))
		for k, j := range cols {
			group[k] = row[j]
		}
		gm := stat.Mean(group, nil)
		for _, v := range group {
			ssq += (v - gm) * (v - gm)
		}
		df += len(cols) - 1
	}
	if df == 0 {
		return 0
	}
	variance := ssq / float64(df)

	d := (variance - mean) / (mean * mean)
	if d < 0 {
		return 0
	}
	return d
}

// fitTrend returns disp-as-a-function-of-mean for the chosen method
func fitTrend(raw, baseMean []float64, fitMethod string) (func(mu float64) float64, error) {
	var ds, mus []float64
	for i, d := range raw {
		if d > minDispersion && baseMean[i] > 0 {
			ds = append(ds, d)
			mus = append(mus, baseMean[i])
		}
	}
	if len(ds) == 0 {
		// Nothing informative; fall back to a small constant
		return func(float64) float64 { return 0.01 }, nil
	}

	if fitMethod == FitMean {
		m := stat.Mean(ds, nil)
		if m < minDispersion {
			m = minDispersion
		}
		return func(float64) float64 { return m }, nil
	}

	// Parametric trend disp = a0 + a1/mu via least squares on x = 1/mu
	x := make([]float64, len(mus))
	for i, mu := range mus {
		x[i] = 1 / mu
	}
	intercept, slope := stat.LinearRegression(x, ds, nil, false)
	return func(mu float64) float64 {
		if mu <= 0 {
			return math.Max(intercept, minDispersion)
		}
		t := intercept + slope/mu
		if t < minDispersion {
			t = minDispersion
		}
		return t
	}, nil
}
