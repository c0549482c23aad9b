package aggregate

import (
	"sort"

	"pseudobulk/domain/core"
	"pseudobulk/domain/expr"
	"pseudobulk/internal/errors"
)

// Aggregate sums per-cell counts into one pseudobulk column per
// (sample, cluster) group.
//
// Every cell column must carry a sample and a cluster; cells lacking either
// are a data-quality error reporting the offending barcodes, never a silent
// drop. Each cell contributes to exactly one column, so column totals equal
// the summed raw totals of their member cells.
//
// Column order is lexicographic by (sample, cluster). The grouping libraries
// this replaces emit columns in first-seen order; the sorted order here is a
// deliberate, documented contract so repeated runs produce identical
// artifacts.
func Aggregate(counts *expr.CountMatrix, cells *expr.CellTable) (*expr.PseudobulkMatrix, error) {
	if bad := cells.Unassigned(); len(bad) > 0 {
		return nil, errors.InputValidationf("%d cells lack a sample or cluster assignment (first: %s)", len(bad), bad[0])
	}

	// Map each cell column to its group
	groupOf := make([]expr.GroupKey, len(counts.Cells))
	seen := make(map[expr.GroupKey]bool)
	for j, barcode := range counts.Cells {
		meta, ok := cells.Lookup(barcode)
		if !ok {
			return nil, errors.InputValidationf("cell %s in count matrix has no metadata row", barcode)
		}
		key := expr.GroupKey{Sample: meta.Sample, Cluster: meta.Cluster}
		groupOf[j] = key
		seen[key] = true
	}

	columns := make([]expr.GroupKey, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Less(columns[j]) })

	colIndex := make(map[expr.GroupKey]int, len(columns))
	for j, key := range columns {
		colIndex[key] = j
	}

	data := make([][]float64, len(counts.Genes))
	for i := range counts.Data {
		row := make([]float64, len(columns))
		for j, count := range counts.Data[i] {
			row[colIndex[groupOf[j]]] += count
		}
		data[i] = row
	}

	return &expr.PseudobulkMatrix{
		Genes:   counts.Genes,
		Columns: columns,
		Data:    data,
	}, nil
}

// Regroup re-aggregates an existing pseudobulk matrix by its own column
// keys. Aggregation is idempotent: with unchanged keys this returns an
// equal matrix.
func Regroup(pb *expr.PseudobulkMatrix) (*expr.PseudobulkMatrix, error) {
	cells := make([]expr.CellMeta, len(pb.Columns))
	barcodes := make([]core.Barcode, len(pb.Columns))
	for j, key := range pb.Columns {
		barcodes[j] = core.Barcode(key.Label())
		cells[j] = expr.CellMeta{
			Barcode: barcodes[j],
			Sample:  key.Sample,
			Cluster: key.Cluster,
		}
	}
	table, err := expr.NewCellTable(cells)
	if err != nil {
		return nil, err
	}
	counts, err := expr.NewCountMatrix(pb.Genes, barcodes, pb.Data)
	if err != nil {
		return nil, err
	}
	return Aggregate(counts, table)
}
