package expr

import (
	"fmt"
	"sort"

	"pseudobulk/domain/core"
)

// CellMeta holds the per-cell attributes carried by the clustered dataset.
// Cells are immutable once loaded.
type CellMeta struct {
	Barcode   core.Barcode    `json:"barcode"`
	Sample    core.SampleName `json:"sample"`
	Cluster   core.ClusterID  `json:"cluster"`
	Condition string          `json:"condition,omitempty"`
	Sex       string          `json:"sex,omitempty"`
	Age       string          `json:"age,omitempty"`
}

// CellTable is the cell metadata store: per-cell attributes indexed by
// barcode, in load order.
type CellTable struct {
	Cells []CellMeta
	index map[core.Barcode]int
}

// NewCellTable builds a table from a slice of cell records. Duplicate
// barcodes are rejected.
func NewCellTable(cells []CellMeta) (*CellTable, error) {
	index := make(map[core.Barcode]int, len(cells))
	for i, c := range cells {
		if c.Barcode == "" {
			return nil, fmt.Errorf("cell at position %d has an empty barcode", i)
		}
		if _, dup := index[c.Barcode]; dup {
			return nil, fmt.Errorf("duplicate barcode %s", c.Barcode)
		}
		index[c.Barcode] = i
	}
	return &CellTable{Cells: cells, index: index}, nil
}

// Lookup returns the metadata for a barcode
func (t *CellTable) Lookup(barcode core.Barcode) (CellMeta, bool) {
	i, ok := t.index[barcode]
	if !ok {
		return CellMeta{}, false
	}
	return t.Cells[i], true
}

// Len returns the number of cells
func (t *CellTable) Len() int {
	return len(t.Cells)
}

// Unassigned returns the barcodes lacking a sample or cluster assignment,
// in table order. A non-empty return is a data-quality error for callers.
func (t *CellTable) Unassigned() []core.Barcode {
	var bad []core.Barcode
	for _, c := range t.Cells {
		if c.Sample == "" || c.Cluster == "" {
			bad = append(bad, c.Barcode)
		}
	}
	return bad
}

// Samples returns the distinct sample names present, sorted
func (t *CellTable) Samples() []core.SampleName {
	seen := make(map[core.SampleName]bool)
	for _, c := range t.Cells {
		if c.Sample != "" {
			seen[c.Sample] = true
		}
	}
	out := make([]core.SampleName, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CountMatrix is a raw gene x cell count matrix. Rows are genes, columns are
// cells; Data[i][j] is the count of gene i in cell j.
type CountMatrix struct {
	Genes []core.GeneSymbol
	Cells []core.Barcode
	Data  [][]float64
}

// NewCountMatrix validates matrix dimensions against the gene and cell axes
func NewCountMatrix(genes []core.GeneSymbol, cells []core.Barcode, data [][]float64) (*CountMatrix, error) {
	if len(data) != len(genes) {
		return nil, fmt.Errorf("count matrix has %d rows, expected %d genes", len(data), len(genes))
	}
	for i, row := range data {
		if len(row) != len(cells) {
			return nil, fmt.Errorf("count matrix row %d has %d columns, expected %d cells", i, len(row), len(cells))
		}
	}
	return &CountMatrix{Genes: genes, Cells: cells, Data: data}, nil
}

// CellTotal returns the total count of cell column j
func (m *CountMatrix) CellTotal(j int) float64 {
	var sum float64
	for i := range m.Data {
		sum += m.Data[i][j]
	}
	return sum
}

// GroupKey identifies one pseudobulk column: all cells of one sample that
// fell into one cluster.
type GroupKey struct {
	Sample  core.SampleName `json:"sample"`
	Cluster core.ClusterID  `json:"cluster"`
}

// Label renders the key as a column name
func (k GroupKey) Label() string {
	return fmt.Sprintf("%s.c%s", k.Sample, k.Cluster)
}

// Less orders keys lexicographically by (sample, cluster)
func (k GroupKey) Less(o GroupKey) bool {
	if k.Sample != o.Sample {
		return k.Sample < o.Sample
	}
	return k.Cluster < o.Cluster
}

// PseudobulkMatrix is a gene x group summed count matrix. Column order is
// lexicographic by (sample, cluster); this is a documented contract, not an
// accident of grouping order.
type PseudobulkMatrix struct {
	Genes   []core.GeneSymbol
	Columns []GroupKey
	Data    [][]float64
}

// ColumnIndex returns the position of a group key, or -1
func (m *PseudobulkMatrix) ColumnIndex(key GroupKey) int {
	for j, c := range m.Columns {
		if c == key {
			return j
		}
	}
	return -1
}

// ColumnSum returns the total count of column j
func (m *PseudobulkMatrix) ColumnSum(j int) float64 {
	var sum float64
	for i := range m.Data {
		sum += m.Data[i][j]
	}
	return sum
}

// Subset returns a new matrix restricted to the given column positions, in
// the given order. Gene rows are shared, not copied.
func (m *PseudobulkMatrix) Subset(cols []int) *PseudobulkMatrix {
	columns := make([]GroupKey, len(cols))
	data := make([][]float64, len(m.Genes))
	for i := range m.Data {
		row := make([]float64, len(cols))
		for jj, j := range cols {
			row[jj] = m.Data[i][j]
		}
		data[i] = row
	}
	for jj, j := range cols {
		columns[jj] = m.Columns[j]
	}
	return &PseudobulkMatrix{Genes: m.Genes, Columns: columns, Data: data}
}

// NonZeroGenes counts genes with a non-zero total across the given columns.
// With nil cols all columns are considered.
func (m *PseudobulkMatrix) NonZeroGenes(cols []int) int {
	if cols == nil {
		cols = make([]int, len(m.Columns))
		for j := range cols {
			cols[j] = j
		}
	}
	n := 0
	for i := range m.Data {
		for _, j := range cols {
			if m.Data[i][j] != 0 {
				n++
				break
			}
		}
	}
	return n
}

// SampleInfo maps a sample name to its experimental attributes from the
// sample table.
type SampleInfo struct {
	Name       core.SampleName
	Attributes map[string]string
}

// SampleTable holds the experiment's sample annotations
type SampleTable struct {
	Samples map[core.SampleName]SampleInfo
}

// Covers returns the given samples that are missing from the table; an
// empty result means full coverage.
func (t *SampleTable) Covers(samples []core.SampleName) []core.SampleName {
	var missing []core.SampleName
	for _, s := range samples {
		if _, ok := t.Samples[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
