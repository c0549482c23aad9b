package report

import (
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"pseudobulk/domain/core"
	"pseudobulk/domain/de"
	"pseudobulk/domain/expr"
)

func samplePseudobulk() *expr.PseudobulkMatrix {
	return &expr.PseudobulkMatrix{
		Genes: []core.GeneSymbol{"g1", "g2"},
		Columns: []expr.GroupKey{
			{Sample: "s1", Cluster: "0"},
			{Sample: "s1", Cluster: "3"},
			{Sample: "s2", Cluster: "0"},
		},
		Data: [][]float64{
			{4, 0, 7},
			{1, 2, 3},
		},
	}
}

func sampleResultSet() *de.ResultSet {
	return &de.ResultSet{
		Contrast: "c0.vs.c3",
		Test:     de.TestWald,
		Results: []de.Result{
			{Symbol: "g1", BaseMean: 12.5, Log2FoldChange: 1.8, LfcSE: 0.4, Stat: 4.5, PValue: 0.001, PAdj: 0.01},
			{Symbol: "g2", BaseMean: 0.3, Log2FoldChange: 0.1, LfcSE: 1.2, Stat: 0.08, PValue: 0.9, PAdj: math.NaN()},
			{Symbol: "g3", BaseMean: 40, Log2FoldChange: math.NaN(), LfcSE: math.NaN(), Stat: math.NaN(), PValue: math.NaN(), PAdj: math.NaN()},
		},
	}
}

func TestWritePseudobulk(t *testing.T) {
	dir := t.TempDir()
	path, err := WritePseudobulk(dir, samplePseudobulk())
	if err != nil {
		t.Fatalf("WritePseudobulk: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if got, want := lines[0], "Symbol\ts1.c0\ts1.c3\ts2.c0"; got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
	if !strings.HasPrefix(lines[1], "g1\t4\t0\t7") {
		t.Errorf("row 1 = %q", lines[1])
	}
}

func TestWriteResultsNAForUndefined(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteResults(dir, sampleResultSet())
	if err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	if !strings.HasSuffix(path, "de_c0.vs.c3.tsv") {
		t.Errorf("artifact path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if got, want := lines[0], "Symbol\tbaseMean\tlog2FoldChange\tlfcSE\tstat\tpvalue\tpadj"; got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
	// g2 keeps its raw p-value but loses padj to independent filtering
	g2 := strings.Split(lines[2], "\t")
	if g2[6] != "NA" {
		t.Errorf("g2 padj = %q, want NA", g2[6])
	}
	if g2[5] == "NA" {
		t.Errorf("g2 pvalue should stay defined")
	}
	// g3 is an outlier: everything past baseMean is NA
	g3 := strings.Split(lines[3], "\t")
	for i := 2; i < len(g3); i++ {
		if g3[i] != "NA" {
			t.Errorf("g3 field %d = %q, want NA", i, g3[i])
		}
	}
}

func TestWriteOverlap(t *testing.T) {
	dir := t.TempDir()
	table := &de.OverlapTable{
		Direction: de.DirectionUp,
		Contrasts: []string{"c0.vs.c3", "c0.vs.c7"},
		Rows: []de.OverlapRow{
			{Symbol: "g1", Flags: []int{1, 0}},
			{Symbol: "g2", Flags: []int{1, 1}},
		},
	}
	path, err := WriteOverlap(dir, table)
	if err != nil {
		t.Fatalf("WriteOverlap: %v", err)
	}
	if !strings.HasSuffix(path, "overlap_up.tsv") {
		t.Errorf("artifact path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if got, want := lines[1], "g1\t1\t0"; got != want {
		t.Errorf("row 1 = %q, want %q", got, want)
	}
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	summaries := []de.ContrastSummary{
		{
			Contrast: "c0.vs.c3", Up: 12, Down: 7, NonZero: 900, Total: 1000,
			Alpha: 0.1, LFCThreshold: 0, Outliers: 2, LowCounts: 40,
			Design: "~ 0 + cluster", Test: de.TestWald,
		},
	}
	path, err := WriteSummary(dir, summaries)
	if err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "900.vs.1000") {
		t.Errorf("summary missing nonzero.vs.total column: %s", out)
	}
	if !strings.Contains(out, "c0.vs.c3\t12\t7") {
		t.Errorf("summary missing counts: %s", out)
	}
}

func TestWriteWorkbook(t *testing.T) {
	dir := t.TempDir()
	summaries := []de.ContrastSummary{
		{Contrast: "c0.vs.c3", Up: 3, Down: 1, NonZero: 50, Total: 60, Alpha: 0.1, Design: "~ 0 + cluster", Test: de.TestWald},
	}
	path, err := WriteWorkbook(dir, summaries, []*de.ResultSet{sampleResultSet()})
	if err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat workbook: %v", err)
	}
	if info.Size() == 0 {
		t.Error("workbook is empty")
	}
}

func TestWriteWorkbookLongContrastNames(t *testing.T) {
	dir := t.TempDir()
	// both names share the same 31-character prefix
	long1 := &de.ResultSet{Contrast: "c1000000000.vs.c2000000000.vs.c3", Test: de.TestWald}
	long2 := &de.ResultSet{Contrast: "c1000000000.vs.c2000000000.vs.c4", Test: de.TestWald}

	path, err := WriteWorkbook(dir, nil, []*de.ResultSet{long1, long2})
	if err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("opening workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 {
		t.Fatalf("got %d sheets %v, want 3 (truncated names must not collide)", len(sheets), sheets)
	}
	seen := map[string]bool{}
	for _, s := range sheets {
		if seen[s] {
			t.Errorf("duplicate sheet name %q", s)
		}
		seen[s] = true
		if len(s) > 31 {
			t.Errorf("sheet name %q exceeds 31 characters", s)
		}
	}
}

func TestWriteRunReport(t *testing.T) {
	dir := t.TempDir()
	rep := RunReport{
		RunID:      "0190fake",
		StartedAt:  time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 8, 30, 10, 5, 0, 0, time.UTC),
		Pseudobulk: samplePseudobulk(),
		Summaries: []de.ContrastSummary{
			{Contrast: "c0.vs.c3", Up: 3, Down: 1, NonZero: 50, Total: 60},
		},
		Failed: []string{"c3.vs.c7"},
		Alpha:  0.1,
	}
	mdPath, htmlPath, err := WriteRunReport(dir, rep)
	if err != nil {
		t.Fatalf("WriteRunReport: %v", err)
	}
	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("read report.md: %v", err)
	}
	if !strings.Contains(string(md), "c0.vs.c3") {
		t.Error("report.md missing contrast summary")
	}
	if !strings.Contains(string(md), "c3.vs.c7") {
		t.Error("report.md missing failed contrast")
	}
	htmlOut, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read report.html: %v", err)
	}
	if !strings.Contains(string(htmlOut), "<table>") {
		t.Error("report.html missing rendered summary table")
	}
}
