package report

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"pseudobulk/domain/de"
)

// excel sheet names cap at 31 characters
const maxSheetName = 31

// WriteWorkbook writes results.xlsx: a summary sheet plus one sheet per
// contrast's DE table. Intended for collaborators who review runs in a
// spreadsheet rather than from the TSV artifacts.
func WriteWorkbook(dir string, summaries []de.ContrastSummary, sets []*de.ResultSet) (string, error) {
	path := filepath.Join(dir, "results.xlsx")
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	f.SetSheetName("Sheet1", summarySheet)

	summaryHeader := []interface{}{"contrast", "up", "down", "nonzero.vs.total", "alpha", "lfcThreshold", "outliers", "low.counts", "design", "test"}
	if err := writeRow(f, summarySheet, 1, summaryHeader); err != nil {
		return "", err
	}
	for i, s := range summaries {
		row := []interface{}{s.Contrast, s.Up, s.Down, s.NonZeroVsTotal(), s.Alpha, s.LFCThreshold, s.Outliers, s.LowCounts, s.Design, string(s.Test)}
		if err := writeRow(f, summarySheet, i+2, row); err != nil {
			return "", err
		}
	}

	used := map[string]bool{summarySheet: true}
	for _, set := range sets {
		sheet := uniqueSheetName(set.Contrast, used)
		if _, err := f.NewSheet(sheet); err != nil {
			return "", fmt.Errorf("creating sheet %s: %w", sheet, err)
		}
		header := []interface{}{"Symbol", "baseMean", "log2FoldChange", "lfcSE", "stat", "pvalue", "padj"}
		if err := writeRow(f, sheet, 1, header); err != nil {
			return "", err
		}
		for i, r := range set.Results {
			row := []interface{}{
				r.Symbol.String(),
				cellFloat(r.BaseMean),
				cellFloat(r.Log2FoldChange),
				cellFloat(r.LfcSE),
				cellFloat(r.Stat),
				cellFloat(r.PValue),
				cellFloat(r.PAdj),
			}
			if err := writeRow(f, sheet, i+2, row); err != nil {
				return "", err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving workbook: %w", err)
	}
	return path, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// cellFloat maps NaN to the NA string; excel has no NaN cell value
func cellFloat(v float64) interface{} {
	if v != v {
		return "NA"
	}
	return v
}

// uniqueSheetName fits a contrast name into the sheet-name limit. Two long
// names can share a truncated prefix, and excelize would silently reuse the
// existing sheet, so collisions get a numeric suffix instead.
func uniqueSheetName(contrast string, used map[string]bool) string {
	name := contrast
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		name = contrast
		if len(name)+len(suffix) > maxSheetName {
			name = name[:maxSheetName-len(suffix)]
		}
		name += suffix
	}
	used[name] = true
	return name
}
