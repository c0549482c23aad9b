package aggregate

import (
	"math"
	"testing"

	"pseudobulk/domain/core"
	"pseudobulk/domain/expr"
	"pseudobulk/internal/errors"
	"pseudobulk/internal/testkit"
)

func TestAggregateSumConservation(t *testing.T) {
	kit := testkit.NewTestKit(42)
	counts, cells, err := kit.SyntheticDataset(testkit.DatasetSpec{
		Genes:        30,
		Samples:      []string{"s1", "s2"},
		Clusters:     []string{"0", "3"},
		CellsPerPair: 20,
	})
	if err != nil {
		t.Fatalf("synthetic dataset: %v", err)
	}

	pb, err := Aggregate(counts, cells)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if len(pb.Columns) != 4 {
		t.Fatalf("expected 4 pseudobulk columns, got %d", len(pb.Columns))
	}

	// Each column total must equal the summed raw totals of its member cells
	for j, key := range pb.Columns {
		var want float64
		for cj, bc := range counts.Cells {
			meta, _ := cells.Lookup(bc)
			if meta.Sample == key.Sample && meta.Cluster == key.Cluster {
				want += counts.CellTotal(cj)
			}
		}
		if got := pb.ColumnSum(j); math.Abs(got-want) > 1e-9 {
			t.Errorf("column %s total = %v, want %v", key.Label(), got, want)
		}
	}

	// Grand totals match: every cell contributes to exactly one column
	var rawTotal, pbTotal float64
	for j := range counts.Cells {
		rawTotal += counts.CellTotal(j)
	}
	for j := range pb.Columns {
		pbTotal += pb.ColumnSum(j)
	}
	if math.Abs(rawTotal-pbTotal) > 1e-9 {
		t.Errorf("grand total mismatch: raw %v vs pseudobulk %v", rawTotal, pbTotal)
	}
}

func TestAggregateColumnOrderDeterministic(t *testing.T) {
	// Cells arrive interleaved; columns must still come out sorted by
	// (sample, cluster).
	cells, _ := expr.NewCellTable([]expr.CellMeta{
		{Barcode: "b1", Sample: "s2", Cluster: "3"},
		{Barcode: "b2", Sample: "s1", Cluster: "3"},
		{Barcode: "b3", Sample: "s2", Cluster: "0"},
		{Barcode: "b4", Sample: "s1", Cluster: "0"},
	})
	counts, _ := expr.NewCountMatrix(
		[]core.GeneSymbol{"G1"},
		[]core.Barcode{"b1", "b2", "b3", "b4"},
		[][]float64{{1, 2, 3, 4}},
	)

	pb, err := Aggregate(counts, cells)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	want := []string{"s1.c0", "s1.c3", "s2.c0", "s2.c3"}
	for j, key := range pb.Columns {
		if key.Label() != want[j] {
			t.Errorf("column %d = %s, want %s", j, key.Label(), want[j])
		}
	}
	wantCounts := []float64{4, 2, 3, 1}
	for j, v := range pb.Data[0] {
		if v != wantCounts[j] {
			t.Errorf("column %d count = %v, want %v", j, v, wantCounts[j])
		}
	}
}

func TestAggregateIdempotent(t *testing.T) {
	kit := testkit.NewTestKit(7)
	counts, cells, err := kit.SyntheticDataset(testkit.DatasetSpec{
		Genes:        10,
		Samples:      []string{"s1", "s2"},
		Clusters:     []string{"0", "61"},
		CellsPerPair: 5,
	})
	if err != nil {
		t.Fatalf("synthetic dataset: %v", err)
	}

	pb, err := Aggregate(counts, cells)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	again, err := Regroup(pb)
	if err != nil {
		t.Fatalf("regroup: %v", err)
	}

	if len(again.Columns) != len(pb.Columns) {
		t.Fatalf("regroup changed column count: %d vs %d", len(again.Columns), len(pb.Columns))
	}
	for j := range pb.Columns {
		if again.Columns[j] != pb.Columns[j] {
			t.Errorf("column %d changed: %v vs %v", j, again.Columns[j], pb.Columns[j])
		}
	}
	for i := range pb.Data {
		for j := range pb.Data[i] {
			if again.Data[i][j] != pb.Data[i][j] {
				t.Fatalf("value changed at (%d,%d): %v vs %v", i, j, again.Data[i][j], pb.Data[i][j])
			}
		}
	}
}

func TestAggregateRejectsUnassignedCells(t *testing.T) {
	cells, _ := expr.NewCellTable([]expr.CellMeta{
		{Barcode: "b1", Sample: "s1", Cluster: "0"},
		{Barcode: "b2", Sample: "", Cluster: "0"},
	})
	counts, _ := expr.NewCountMatrix(
		[]core.GeneSymbol{"G1"},
		[]core.Barcode{"b1", "b2"},
		[][]float64{{1, 1}},
	)

	_, err := Aggregate(counts, cells)
	if err == nil {
		t.Fatal("expected error for cell without sample")
	}
	if errors.GetCode(err) != errors.CodeInputValidation {
		t.Errorf("expected INPUT_VALIDATION, got %s", errors.GetCode(err))
	}
}

func TestAggregateRejectsUnknownBarcode(t *testing.T) {
	cells, _ := expr.NewCellTable([]expr.CellMeta{
		{Barcode: "b1", Sample: "s1", Cluster: "0"},
	})
	counts, _ := expr.NewCountMatrix(
		[]core.GeneSymbol{"G1"},
		[]core.Barcode{"b1", "ghost"},
		[][]float64{{1, 1}},
	)

	_, err := Aggregate(counts, cells)
	if err == nil {
		t.Fatal("expected error for barcode without metadata")
	}
	if errors.GetCode(err) != errors.CodeInputValidation {
		t.Errorf("expected INPUT_VALIDATION, got %s", errors.GetCode(err))
	}
}
