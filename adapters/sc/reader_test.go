package sc

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"pseudobulk/domain/core"
	"pseudobulk/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestReadCounts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "counts.tsv",
		"Symbol\tAAAC\tGGGT\tCCCA\n"+
			"ACTB\t3\t0\t7\n"+
			"GAPDH\t1\t2\t0\n")

	m, err := ReadCounts(path)
	if err != nil {
		t.Fatalf("read counts: %v", err)
	}
	if len(m.Genes) != 2 || len(m.Cells) != 3 {
		t.Fatalf("got %d genes x %d cells", len(m.Genes), len(m.Cells))
	}
	if m.Data[0][2] != 7 {
		t.Errorf("ACTB in CCCA = %v, want 7", m.Data[0][2])
	}
	if m.CellTotal(0) != 4 {
		t.Errorf("AAAC total = %v, want 4", m.CellTotal(0))
	}
}

func TestReadCountsGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counts.tsv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte("Symbol\tAAAC\nACTB\t5\n")); err != nil {
		t.Fatal(err)
	}
	gz.Close()
	f.Close()

	m, err := ReadCounts(path)
	if err != nil {
		t.Fatalf("read gz counts: %v", err)
	}
	if m.Data[0][0] != 5 {
		t.Errorf("got %v, want 5", m.Data[0][0])
	}
}

func TestReadCountsBadValue(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "counts.tsv", "Symbol\tAAAC\nACTB\tnotanumber\n")

	_, err := ReadCounts(path)
	if err == nil {
		t.Fatal("expected error for non-numeric count")
	}
	if errors.GetCode(err) != errors.CodeInputValidation {
		t.Errorf("expected INPUT_VALIDATION, got %s", errors.GetCode(err))
	}
}

func TestReadCellMeta(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cells.tsv",
		"barcode\tsample\tcluster\tcondition\tsex\tage\n"+
			"AAAC\ts1\t0\tctrl\tF\t63\n"+
			"GGGT\ts1\t3\tctrl\tF\t63\n")

	table, err := ReadCellMeta(path, "cluster")
	if err != nil {
		t.Fatalf("read cell meta: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("got %d cells, want 2", table.Len())
	}
	meta, ok := table.Lookup("GGGT")
	if !ok {
		t.Fatal("GGGT not found")
	}
	if meta.Cluster != "3" || meta.Sample != "s1" {
		t.Errorf("unexpected meta %+v", meta)
	}
}

func TestReadCellMetaCustomGroupColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cells.tsv",
		"barcode\tsample\tseurat_clusters\n"+
			"AAAC\ts1\t61\n")

	table, err := ReadCellMeta(path, "seurat_clusters")
	if err != nil {
		t.Fatalf("read cell meta: %v", err)
	}
	meta, _ := table.Lookup("AAAC")
	if meta.Cluster != "61" {
		t.Errorf("cluster = %s, want 61", meta.Cluster)
	}
}

func TestReadCellMetaMissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cells.tsv", "barcode\tsample\nAAAC\ts1\n")

	_, err := ReadCellMeta(path, "cluster")
	if err == nil {
		t.Fatal("expected error for missing cluster column")
	}
	if errors.GetCode(err) != errors.CodeInputValidation {
		t.Errorf("expected INPUT_VALIDATION, got %s", errors.GetCode(err))
	}
}

func TestReadSampleTable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "samples.tsv",
		"sample\tcondition\tsex\n"+
			"s1\tctrl\tF\n"+
			"s2\tdisease\tM\n")

	table, err := ReadSampleTable(path)
	if err != nil {
		t.Fatalf("read sample table: %v", err)
	}
	if len(table.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(table.Samples))
	}
	if table.Samples["s2"].Attributes["condition"] != "disease" {
		t.Errorf("unexpected attributes %+v", table.Samples["s2"].Attributes)
	}
	if missing := table.Covers([]core.SampleName{"s1", "s3"}); len(missing) != 1 || missing[0] != "s3" {
		t.Errorf("covers: got missing %v, want [s3]", missing)
	}
}

func TestReadCellMetaDuplicateBarcode(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cells.tsv",
		"barcode\tsample\tcluster\n"+
			"AAAC\ts1\t0\n"+
			"AAAC\ts2\t3\n")

	_, err := ReadCellMeta(path, "cluster")
	if err == nil {
		t.Fatal("expected error for duplicate barcode")
	}
	if errors.GetCode(err) != errors.CodeInputValidation {
		t.Errorf("expected INPUT_VALIDATION, got %s", errors.GetCode(err))
	}
}
