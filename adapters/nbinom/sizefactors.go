package nbinom

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// estimateSizeFactors computes median-of-ratios size factors: each column's
// factor is the median, over genes expressed in every column, of its counts
// divided by the gene's geometric mean. Columns of deeper libraries get
// factors above one.
func estimateSizeFactors(counts [][]float64) ([]float64, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("empty count matrix")
	}
	cols := len(counts[0])
	if cols == 0 {
		return nil, fmt.Errorf("count matrix has no columns")
	}

	// Geometric means over genes with all-positive counts
	logGeoMean := make([]float64, len(counts))
	usable := make([]bool, len(counts))
	for i, row := range counts {
		sumLog := 0.0
		ok := true
		for _, v := range row {
			if v <= 0 {
				ok = false
				break
			}
			sumLog += math.Log(v)
		}
		if ok {
			logGeoMean[i] = sumLog / float64(cols)
			usable[i] = true
		}
	}

	factors := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var ratios []float64
		for i, row := range counts {
			if !usable[i] {
				continue
			}
			ratios = append(ratios, math.Exp(math.Log(row[j])-logGeoMean[i]))
		}
		if len(ratios) == 0 {
			return nil, fmt.Errorf("no gene is expressed in every column; cannot normalize")
		}
		med, err := stats.Median(ratios)
		if err != nil {
			return nil, err
		}
		if med <= 0 {
			return nil, fmt.Errorf("non-positive size factor for column %d", j)
		}
		factors[j] = med
	}

	return factors, nil
}

// normalizeCounts divides each column by its size factor
func normalizeCounts(counts [][]float64, sizeFactors []float64) [][]float64 {
	norm := make([][]float64, len(counts))
	for i, row := range counts {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = v / sizeFactors[j]
		}
		norm[i] = out
	}
	return norm
}
