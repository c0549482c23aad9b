package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"

	"pseudobulk/domain/core"
	"pseudobulk/domain/expr"
)

// TestKit builds deterministic synthetic single-cell datasets for tests.
// All randomness flows from the seed, so fixtures are reproducible.
type TestKit struct {
	rng *rand.Rand
}

// NewTestKit creates a kit with a fixed seed
func NewTestKit(seed int64) *TestKit {
	return &TestKit{rng: rand.New(rand.NewSource(seed))}
}

// DatasetSpec describes a synthetic clustered dataset
type DatasetSpec struct {
	Genes        int
	Samples      []string
	Clusters     []string
	CellsPerPair int // cells per (sample, cluster) combination
	// DiffGenes marks the leading genes as differential between the first
	// and second cluster, scaled up in the first.
	DiffGenes int
	FoldUp    float64
}

// SyntheticDataset returns a count matrix plus matching cell metadata.
// Counts follow a gene-specific Poisson-like draw; DiffGenes get their rate
// multiplied by FoldUp in the first cluster so downstream tests have a known
// signal to recover.
func (k *TestKit) SyntheticDataset(spec DatasetSpec) (*expr.CountMatrix, *expr.CellTable, error) {
	if spec.FoldUp == 0 {
		spec.FoldUp = 4
	}

	genes := make([]core.GeneSymbol, spec.Genes)
	baseRate := make([]float64, spec.Genes)
	for i := range genes {
		genes[i] = core.GeneSymbol(fmt.Sprintf("GENE%04d", i))
		baseRate[i] = 2 + k.rng.Float64()*18
	}

	var cells []expr.CellMeta
	var barcodes []core.Barcode
	for _, sample := range spec.Samples {
		for _, cluster := range spec.Clusters {
			for n := 0; n < spec.CellsPerPair; n++ {
				bc := core.Barcode(fmt.Sprintf("%s-%s-%04d", sample, cluster, n))
				barcodes = append(barcodes, bc)
				cells = append(cells, expr.CellMeta{
					Barcode:   bc,
					Sample:    core.SampleName(sample),
					Cluster:   core.ClusterID(cluster),
					Condition: "ctrl",
				})
			}
		}
	}

	data := make([][]float64, spec.Genes)
	for i := range data {
		row := make([]float64, len(barcodes))
		for j, meta := range cells {
			rate := baseRate[i]
			if i < spec.DiffGenes && len(spec.Clusters) > 0 && string(meta.Cluster) == spec.Clusters[0] {
				rate *= spec.FoldUp
			}
			row[j] = k.poisson(rate)
		}
		data[i] = row
	}

	table, err := expr.NewCellTable(cells)
	if err != nil {
		return nil, nil, err
	}
	matrix, err := expr.NewCountMatrix(genes, barcodes, data)
	if err != nil {
		return nil, nil, err
	}
	return matrix, table, nil
}

// SyntheticPseudobulk builds a pseudobulk matrix directly, skipping the
// per-cell stage, for tests that only exercise the contrast layer onward.
func (k *TestKit) SyntheticPseudobulk(genes int, samples, clusters []string) *expr.PseudobulkMatrix {
	symbols := make([]core.GeneSymbol, genes)
	for i := range symbols {
		symbols[i] = core.GeneSymbol(fmt.Sprintf("GENE%04d", i))
	}

	var columns []expr.GroupKey
	for _, s := range samples {
		for _, c := range clusters {
			columns = append(columns, expr.GroupKey{
				Sample:  core.SampleName(s),
				Cluster: core.ClusterID(c),
			})
		}
	}

	data := make([][]float64, genes)
	for i := range data {
		rate := 50 + k.rng.Float64()*500
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = math.Round(rate * (0.5 + k.rng.Float64()))
		}
		data[i] = row
	}

	return &expr.PseudobulkMatrix{Genes: symbols, Columns: columns, Data: data}
}

// poisson draws a Poisson-distributed count via Knuth's method. Rates in the
// test range are small enough that the multiplication loop stays cheap.
func (k *TestKit) poisson(rate float64) float64 {
	l := math.Exp(-rate)
	count := 0.0
	p := 1.0
	for {
		p *= k.rng.Float64()
		if p <= l {
			return count
		}
		count++
	}
}

// MedianDepth returns the median column total of a pseudobulk matrix;
// convenient for assertions on library-size balance.
func MedianDepth(pb *expr.PseudobulkMatrix) float64 {
	totals := make([]float64, len(pb.Columns))
	for j := range pb.Columns {
		totals[j] = pb.ColumnSum(j)
	}
	m, err := stats.Median(totals)
	if err != nil {
		return 0
	}
	return m
}
