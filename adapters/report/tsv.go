// Package report writes the run artifacts: tab-separated result tables, an
// Excel workbook, and a rendered run report. Plot generation is deliberately
// outside this repository; these artifacts are what plotting consumes.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"pseudobulk/domain/de"
	"pseudobulk/domain/expr"
)

// WritePseudobulk writes the aggregated count matrix as
// pseudobulk_counts.tsv, genes by group columns.
func WritePseudobulk(dir string, pb *expr.PseudobulkMatrix) (string, error) {
	path := filepath.Join(dir, "pseudobulk_counts.tsv")
	w, file, err := createTSV(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]string, 1+len(pb.Columns))
	header[0] = "Symbol"
	for j, key := range pb.Columns {
		header[j+1] = key.Label()
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i, gene := range pb.Genes {
		record := make([]string, 1+len(pb.Columns))
		record[0] = gene.String()
		for j, v := range pb.Data[i] {
			record[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return path, w.Error()
}

// WriteResults writes one contrast's DE table as de_<contrast>.tsv.
// Undefined p-values render as NA.
func WriteResults(dir string, set *de.ResultSet) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("de_%s.tsv", set.Contrast))
	w, file, err := createTSV(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := w.Write([]string{"Symbol", "baseMean", "log2FoldChange", "lfcSE", "stat", "pvalue", "padj"}); err != nil {
		return "", err
	}
	for _, r := range set.Results {
		record := []string{
			r.Symbol.String(),
			formatFloat(r.BaseMean),
			formatFloat(r.Log2FoldChange),
			formatFloat(r.LfcSE),
			formatFloat(r.Stat),
			formatFloat(r.PValue),
			formatFloat(r.PAdj),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return path, w.Error()
}

// WriteOverlap writes one direction's membership table as
// overlap_<direction>.tsv.
func WriteOverlap(dir string, table *de.OverlapTable) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("overlap_%s.tsv", table.Direction))
	w, file, err := createTSV(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := append([]string{"Symbol"}, table.Contrasts...)
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, row := range table.Rows {
		record := make([]string, 1+len(row.Flags))
		record[0] = row.Symbol.String()
		for j, f := range row.Flags {
			record[j+1] = strconv.Itoa(f)
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return path, w.Error()
}

// WriteSummary writes the per-contrast summary table as summary.tsv
func WriteSummary(dir string, summaries []de.ContrastSummary) (string, error) {
	path := filepath.Join(dir, "summary.tsv")
	w, file, err := createTSV(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := w.Write([]string{"contrast", "up", "down", "nonzero.vs.total", "alpha", "lfcThreshold", "outliers", "low.counts", "design", "test"}); err != nil {
		return "", err
	}
	for _, s := range summaries {
		record := []string{
			s.Contrast,
			strconv.Itoa(s.Up),
			strconv.Itoa(s.Down),
			s.NonZeroVsTotal(),
			formatFloat(s.Alpha),
			formatFloat(s.LFCThreshold),
			strconv.Itoa(s.Outliers),
			strconv.Itoa(s.LowCounts),
			s.Design,
			string(s.Test),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return path, w.Error()
}

func createTSV(path string) (*csv.Writer, *os.File, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	w := csv.NewWriter(file)
	w.Comma = '\t'
	return w, file, nil
}

// formatFloat renders a value with NA for NaN, the convention downstream
// tabular tools expect.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
